// Package config defines the configuration structures of the cumulative
// impact toolbox. No I/O or parsing logic lives here, only plain data types
// and validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Pipeline
// ─────────────────────────────────────────────────────────────────────────────

// PipelineConfig holds the tunables of the aggregation stages.
type PipelineConfig struct {
	// Scenarios to run. Codes: c (current), f (future), p (protected).
	Scenarios []string `mapstructure:"scenarios"`

	// Method is the default intensity standardization: rescale | reclass | none.
	Method string `mapstructure:"method"`

	ReclassClasses   int     `mapstructure:"reclass_classes"`
	ReclassSlope     float64 `mapstructure:"reclass_slope"`
	ReclassIntercept float64 `mapstructure:"reclass_intercept"`

	// FishingPrefixes identify activities that require gear severity scores.
	FishingPrefixes []string `mapstructure:"fishing_prefixes"`

	LandIndexScale float64 `mapstructure:"land_index_scale"`

	// DefaultStressorWeight lets a missing (activity, sub_activity) stressor
	// row fall back to weight 1 instead of aborting the run.
	DefaultStressorWeight bool `mapstructure:"default_stressor_weight"`

	// LenientGearScores records a missing fishing gear score as a gap instead
	// of aborting the run.
	LenientGearScores bool `mapstructure:"lenient_gear_scores"`

	DecayCellSize float64 `mapstructure:"decay_cell_size"`
	DecayClasses  int     `mapstructure:"decay_classes"`

	SlowStage time.Duration `mapstructure:"slow_stage"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Inputs
// ─────────────────────────────────────────────────────────────────────────────

// GridConfig locates the planning unit grid.
type GridConfig struct {
	Path            string `mapstructure:"path"`
	IDField         string `mapstructure:"id_field"`
	AreaField       string `mapstructure:"area_field"`
	MarineAreaField string `mapstructure:"marine_area_field"`
}

// WatershedConfig locates the watershed polygons and their outlet points.
// Without an outlet layer the watershed centroid is used.
type WatershedConfig struct {
	Path          string `mapstructure:"path"`
	IDField       string `mapstructure:"id_field"`
	AreaField     string `mapstructure:"area_field"`
	OutletsPath   string `mapstructure:"outlets_path"`
	OutletIDField string `mapstructure:"outlet_id_field"`
}

// HabitatConfig locates one habitat layer.
type HabitatConfig struct {
	Type      string `mapstructure:"type"`
	Path      string `mapstructure:"path"`
	CodeField string `mapstructure:"code_field"`
}

// InputsConfig groups all reference data locations.
type InputsConfig struct {
	Grid               GridConfig      `mapstructure:"grid"`
	Watersheds         WatershedConfig `mapstructure:"watersheds"`
	StressorTable      string          `mapstructure:"stressor_table"`
	VulnerabilityTable string          `mapstructure:"vulnerability_table"`
	GearTable          string          `mapstructure:"gear_table"`
	Habitats           []HabitatConfig `mapstructure:"habitats"`
}

// ActivityConfig declares one activity and its per-scenario layers.
type ActivityConfig struct {
	Code             string            `mapstructure:"code"`
	Kind             string            `mapstructure:"kind"` // marine | coastal | land
	IntensityField   string            `mapstructure:"intensity_field"`
	SubActivityField string            `mapstructure:"sub_activity_field"`
	Method           string            `mapstructure:"method"`
	Layers           map[string]string `mapstructure:"layers"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Infrastructure
// ─────────────────────────────────────────────────────────────────────────────

// StoreConfig selects the table store backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend"` // dir | memory | postgres | minio
	Dir     string `mapstructure:"dir"`
	Prefix  string `mapstructure:"prefix"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationPath   string        `mapstructure:"migration_path"`
}

// RedisConfig holds the run lock connection parameters.
type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	LockTTL     time.Duration `mapstructure:"lock_ttl"`
	LockWait    time.Duration `mapstructure:"lock_wait"`
}

// MinIOConfig holds object storage parameters.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
}

// KafkaConfig holds the stage event producer parameters.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// MetricsConfig holds Prometheus Pushgateway parameters.
type MetricsConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Namespace      string `mapstructure:"namespace"`
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// LogConfig holds logger parameters.
type LogConfig struct {
	Level       string   `mapstructure:"level"`
	Format      string   `mapstructure:"format"`
	OutputPaths []string `mapstructure:"output_paths"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object.
type Config struct {
	Pipeline   PipelineConfig      `mapstructure:"pipeline"`
	Inputs     InputsConfig        `mapstructure:"inputs"`
	Activities []ActivityConfig    `mapstructure:"activities"`
	Sectors    map[string][]string `mapstructure:"sectors"`
	Store      StoreConfig         `mapstructure:"store"`
	Database   DatabaseConfig      `mapstructure:"database"`
	Redis      RedisConfig         `mapstructure:"redis"`
	MinIO      MinIOConfig         `mapstructure:"minio"`
	Kafka      KafkaConfig         `mapstructure:"kafka"`
	Metrics    MetricsConfig       `mapstructure:"metrics"`
	Log        LogConfig           `mapstructure:"log"`
}

// Activity returns the activity declaration with the given code.
func (c *Config) Activity(code string) (ActivityConfig, bool) {
	for _, a := range c.Activities {
		if a.Code == code {
			return a, true
		}
	}
	return ActivityConfig{}, false
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

var (
	validScenarios = map[string]bool{"c": true, "f": true, "p": true}
	validMethods   = map[string]bool{"rescale": true, "reclass": true, "none": true}
	validKinds     = map[string]bool{"marine": true, "coastal": true, "land": true}
	validBackends  = map[string]bool{"dir": true, "memory": true, "postgres": true, "minio": true}
)

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered.
func (c *Config) Validate() error {
	// Pipeline
	if len(c.Pipeline.Scenarios) == 0 {
		return fmt.Errorf("config: pipeline.scenarios must not be empty")
	}
	for _, s := range c.Pipeline.Scenarios {
		if !validScenarios[s] {
			return fmt.Errorf("config: pipeline.scenarios contains %q; expected c|f|p", s)
		}
	}
	if !validMethods[c.Pipeline.Method] {
		return fmt.Errorf("config: pipeline.method %q is invalid; expected rescale|reclass|none", c.Pipeline.Method)
	}
	if c.Pipeline.ReclassClasses < 1 {
		return fmt.Errorf("config: pipeline.reclass_classes must be ≥ 1, got %d", c.Pipeline.ReclassClasses)
	}
	if c.Pipeline.DecayCellSize <= 0 {
		return fmt.Errorf("config: pipeline.decay_cell_size must be > 0, got %g", c.Pipeline.DecayCellSize)
	}
	if c.Pipeline.DecayClasses < 0 {
		return fmt.Errorf("config: pipeline.decay_classes must be ≥ 0, got %d", c.Pipeline.DecayClasses)
	}
	if c.Pipeline.LandIndexScale <= 0 {
		return fmt.Errorf("config: pipeline.land_index_scale must be > 0")
	}

	// Activities
	seen := make(map[string]bool, len(c.Activities))
	for i, a := range c.Activities {
		if a.Code == "" {
			return fmt.Errorf("config: activities[%d].code is required", i)
		}
		if seen[a.Code] {
			return fmt.Errorf("config: activity %q is declared twice", a.Code)
		}
		seen[a.Code] = true
		if !validKinds[a.Kind] {
			return fmt.Errorf("config: activity %q kind %q is invalid; expected marine|coastal|land", a.Code, a.Kind)
		}
		if a.Method != "" && !validMethods[a.Method] {
			return fmt.Errorf("config: activity %q method %q is invalid", a.Code, a.Method)
		}
		for scn := range a.Layers {
			if !validScenarios[scn] {
				return fmt.Errorf("config: activity %q has a layer for unknown scenario %q", a.Code, scn)
			}
		}
	}
	for sector, codes := range c.Sectors {
		if strings.EqualFold(sector, "ALL") {
			return fmt.Errorf("config: sector name %q is reserved", sector)
		}
		for _, code := range codes {
			if !seen[code] {
				return fmt.Errorf("config: sector %q references undeclared activity %q", sector, code)
			}
		}
	}

	// Habitats
	for i, h := range c.Inputs.Habitats {
		if h.Type == "" {
			return fmt.Errorf("config: inputs.habitats[%d].type is required", i)
		}
		// The habitat type is the last "_" component of every per-habitat table name.
		if strings.Contains(h.Type, "_") {
			return fmt.Errorf("config: inputs.habitats[%d].type %q must not contain '_'", i, h.Type)
		}
		if strings.EqualFold(h.Type, "ALL") {
			return fmt.Errorf("config: inputs.habitats[%d].type %q is reserved", i, h.Type)
		}
	}

	// Store
	if !validBackends[c.Store.Backend] {
		return fmt.Errorf("config: store.backend %q is invalid; expected dir|memory|postgres|minio", c.Store.Backend)
	}
	switch c.Store.Backend {
	case "dir":
		if c.Store.Dir == "" {
			return fmt.Errorf("config: store.dir is required for the dir backend")
		}
	case "postgres":
		if c.Database.User == "" {
			return fmt.Errorf("config: database.user is required for the postgres backend")
		}
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
		}
	case "minio":
		if c.MinIO.Bucket == "" {
			return fmt.Errorf("config: minio.bucket is required for the minio backend")
		}
	}

	// Redis
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required when redis is enabled")
	}

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("config: kafka.topic is required")
		}
	}

	// Metrics
	if c.Metrics.Enabled && c.Metrics.PushgatewayURL == "" {
		return fmt.Errorf("config: metrics.pushgateway_url is required when metrics are enabled")
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}
	return nil
}
