package config

import "time"

const (
	DefaultMethod           = "rescale"
	DefaultReclassClasses   = 3
	DefaultReclassSlope     = 0.5
	DefaultLandIndexScale   = 100000
	DefaultDecayCellSize    = 1000
	DefaultSlowStage        = 10 * time.Minute
	DefaultGridIDField      = "unit_id"
	DefaultGridAreaField    = "area"
	DefaultMarineAreaField  = "marine_area"
	DefaultWatershedIDField = "ws_id"
	DefaultHabitatCodeField = "hab_code"

	DefaultStoreBackend = "dir"
	DefaultStoreDir     = "./output"

	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBName     = "citoolbox"
	DefaultDBMaxConns = 10

	DefaultRedisAddr = "localhost:6379"
	DefaultLockTTL   = 2 * time.Hour

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "citoolbox"

	DefaultKafkaBroker = "localhost:9092"
	DefaultKafkaTopic  = "citoolbox.pipeline.events"

	DefaultMetricsNamespace = "citoolbox"
	DefaultMetricsJob       = "citoolbox"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
)

// DefaultFishingPrefixes are the activity code prefixes treated as fishing.
var DefaultFishingPrefixes = []string{"cf", "sportf"}

// ApplyDefaults fills every zero-value field in cfg with its default.
// Explicitly configured values are left unchanged.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	if len(cfg.Pipeline.Scenarios) == 0 {
		cfg.Pipeline.Scenarios = []string{"c"}
	}
	if cfg.Pipeline.Method == "" {
		cfg.Pipeline.Method = DefaultMethod
	}
	if cfg.Pipeline.ReclassClasses == 0 {
		cfg.Pipeline.ReclassClasses = DefaultReclassClasses
	}
	if cfg.Pipeline.ReclassSlope == 0 {
		cfg.Pipeline.ReclassSlope = DefaultReclassSlope
	}
	if len(cfg.Pipeline.FishingPrefixes) == 0 {
		cfg.Pipeline.FishingPrefixes = append([]string(nil), DefaultFishingPrefixes...)
	}
	if cfg.Pipeline.LandIndexScale == 0 {
		cfg.Pipeline.LandIndexScale = DefaultLandIndexScale
	}
	if cfg.Pipeline.DecayCellSize == 0 {
		cfg.Pipeline.DecayCellSize = DefaultDecayCellSize
	}
	if cfg.Pipeline.SlowStage == 0 {
		cfg.Pipeline.SlowStage = DefaultSlowStage
	}

	// ── Inputs ────────────────────────────────────────────────────────────────
	if cfg.Inputs.Grid.IDField == "" {
		cfg.Inputs.Grid.IDField = DefaultGridIDField
	}
	if cfg.Inputs.Grid.AreaField == "" {
		cfg.Inputs.Grid.AreaField = DefaultGridAreaField
	}
	if cfg.Inputs.Grid.MarineAreaField == "" {
		cfg.Inputs.Grid.MarineAreaField = DefaultMarineAreaField
	}
	if cfg.Inputs.Watersheds.IDField == "" {
		cfg.Inputs.Watersheds.IDField = DefaultWatershedIDField
	}
	if cfg.Inputs.Watersheds.OutletIDField == "" {
		cfg.Inputs.Watersheds.OutletIDField = cfg.Inputs.Watersheds.IDField
	}
	for i := range cfg.Inputs.Habitats {
		if cfg.Inputs.Habitats[i].CodeField == "" {
			cfg.Inputs.Habitats[i].CodeField = DefaultHabitatCodeField
		}
	}

	// ── Store ─────────────────────────────────────────────────────────────────
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = DefaultStoreBackend
	}
	if cfg.Store.Dir == "" {
		cfg.Store.Dir = DefaultStoreDir
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MigrationPath == "" {
		cfg.Database.MigrationPath = "file://migrations"
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}
	if cfg.Redis.LockTTL == 0 {
		cfg.Redis.LockTTL = DefaultLockTTL
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = DefaultKafkaTopic
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = 10 * time.Second
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Job == "" {
		cfg.Metrics.Job = DefaultMetricsJob
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}
