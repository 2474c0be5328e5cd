package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix of every setting.
const envPrefix = "CITOOL"

// newViper builds a Viper instance with YAML file type, CITOOL_ env prefix,
// automatic env binding, and a "." → "_" key replacer so that
// "pipeline.method" resolves to CITOOL_PIPELINE_METHOD.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvKeys(v)
	return v
}

// bindEnvKeys registers scalar keys so that AutomaticEnv can override them
// even when the config file omits them; viper only consults the environment
// for keys it already knows.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"pipeline.method",
		"pipeline.default_stressor_weight",
		"pipeline.lenient_gear_scores",
		"pipeline.decay_cell_size",
		"store.backend",
		"store.dir",
		"store.prefix",
		"database.host",
		"database.port",
		"database.user",
		"database.password",
		"database.db_name",
		"database.ssl_mode",
		"redis.enabled",
		"redis.addr",
		"redis.password",
		"minio.endpoint",
		"minio.access_key",
		"minio.secret_key",
		"minio.bucket",
		"kafka.enabled",
		"kafka.topic",
		"metrics.enabled",
		"metrics.pushgateway_url",
		"log.level",
		"log.format",
	} {
		_ = v.BindEnv(key)
	}
}

// Load reads the YAML file at configPath, merges CITOOL_* environment
// overrides, applies defaults and validates the result.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}
	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config from CITOOL_* environment variables and
// defaults only. Activities and inputs cannot be expressed this way, so the
// result is only useful for commands that do not run the pipeline
// (migrate, tables, export).
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

// MustLoad is Load that panics on error. Only main() should use it.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
