package config

import "time"

// Default values for configuration fields.
const (
	// AWS defaults
	DefaultAWSRegion = "ap-southeast-2"

	// Recorder defaults
	DefaultRecorderModel   = "apac.anthropic.claude-sonnet-4-20250514-v1:0"
	DefaultRecorderAgentID = "tokenmeter"
	DefaultRecorderTimeout = 5 * time.Minute

	// Pricing defaults
	DefaultCostModel = "sonnet-4"

	// Metrics publisher defaults
	DefaultMetricsPublisherEnabled = true
	DefaultMetricsBackend          = "cloudwatch"
	DefaultMetricsNamespace        = "BedrockUsage"

	// Store defaults
	DefaultStoreEnabled       = true
	DefaultStoreBackend       = "dynamodb"
	DefaultStoreRetentionDays = 90
	DefaultStoreBatchSize     = 25
	DefaultStoreQueryTimeout  = 30 * time.Second
	DefaultDynamoDBTableName  = "bedrock-token-usage"
	DefaultSQLitePath         = "data/usage.db"
	DefaultSQLiteDriver       = "sqlite"
	DefaultSQLiteMaxOpenConns = 10
	DefaultSQLiteWALMode      = true
	DefaultSQLiteBusyTimeout  = 5 * time.Second
	DefaultRedisAddr          = "localhost:6379"
	DefaultRedisKeyPrefix     = "tokenmeter"
	DefaultRetentionSchedule  = "0 3 * * *"
	MaxStoreBatchSize         = 25

	// Dispatcher defaults
	DefaultDispatcherQueueSize     = 1000
	DefaultDispatcherFlushInterval = 60 * time.Second
	DefaultDispatcherWriteTimeout  = 5 * time.Second
	DefaultDispatcherShutdownGrace = 10 * time.Second
	DefaultBreakerFailureThreshold = 5
	DefaultBreakerRecoveryTimeout  = 60 * time.Second

	// Analyzer defaults
	DefaultAnalyzerQueryLimit     = 10000
	DefaultAnalyzerTopIncidents   = 10
	DefaultAnalyzerHistoricalDays = 30
	DefaultAnalyzerForecastDays   = 7
	DefaultAnalyzerMinHistory     = 7
	DefaultAnalyzerStableSlope    = 0.01

	// Alert defaults
	DefaultDailyCostThreshold  = 100.0
	DefaultHourlyCostThreshold = 10.0

	// Telemetry defaults
	DefaultLoggingLevel        = "info"
	DefaultLoggingFormat       = "json"
	DefaultPrometheusEnabled   = true
	DefaultPrometheusAddress   = ":9090"
	DefaultPrometheusPath      = "/metrics"
	DefaultPrometheusNamespace = "tokenmeter"
	DefaultTracingSampler      = "ratio"
	DefaultTracingSamplingRate = 1.0
	DefaultTracingServiceName  = "tokenmeter"
	DefaultTracingOTLPTimeout  = 10 * time.Second
)

// Default returns a complete configuration with every default applied.
// Boolean options that default to true are only set here, so LoadConfig
// decodes files on top of this value.
func Default() *Config {
	cfg := &Config{}
	cfg.Metrics.Enabled = DefaultMetricsPublisherEnabled
	cfg.Store.Enabled = DefaultStoreEnabled
	cfg.Store.SQLite.WALMode = DefaultSQLiteWALMode
	cfg.Telemetry.Metrics.Enabled = DefaultPrometheusEnabled
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// AWS defaults
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = DefaultAWSRegion
	}

	// Recorder defaults
	if cfg.Recorder.DefaultModel == "" {
		cfg.Recorder.DefaultModel = DefaultRecorderModel
	}
	if cfg.Recorder.DefaultAgentID == "" {
		cfg.Recorder.DefaultAgentID = DefaultRecorderAgentID
	}
	if cfg.Recorder.Timeout == 0 {
		cfg.Recorder.Timeout = DefaultRecorderTimeout
	}

	// Pricing defaults
	if cfg.Pricing.CostModel == "" {
		cfg.Pricing.CostModel = DefaultCostModel
	}

	// Metrics publisher defaults
	if len(cfg.Metrics.Backends) == 0 {
		cfg.Metrics.Backends = []string{DefaultMetricsBackend}
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}

	// Store defaults
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = DefaultStoreBackend
	}
	if cfg.Store.RetentionDays == 0 {
		cfg.Store.RetentionDays = DefaultStoreRetentionDays
	}
	if cfg.Store.BatchSize == 0 {
		cfg.Store.BatchSize = DefaultStoreBatchSize
	}
	if cfg.Store.QueryTimeout == 0 {
		cfg.Store.QueryTimeout = DefaultStoreQueryTimeout
	}
	if cfg.Store.DynamoDB.TableName == "" {
		cfg.Store.DynamoDB.TableName = DefaultDynamoDBTableName
	}
	if cfg.Store.SQLite.Path == "" {
		cfg.Store.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Store.SQLite.Driver == "" {
		cfg.Store.SQLite.Driver = DefaultSQLiteDriver
	}
	if cfg.Store.SQLite.MaxOpenConns == 0 {
		cfg.Store.SQLite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if cfg.Store.SQLite.BusyTimeout == 0 {
		cfg.Store.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Store.Redis.Addr == "" {
		cfg.Store.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Store.Redis.KeyPrefix == "" {
		cfg.Store.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Store.Retention.Schedule == "" {
		cfg.Store.Retention.Schedule = DefaultRetentionSchedule
	}

	// Dispatcher defaults
	if cfg.Dispatcher.QueueSize == 0 {
		cfg.Dispatcher.QueueSize = DefaultDispatcherQueueSize
	}
	if cfg.Dispatcher.FlushInterval == 0 {
		cfg.Dispatcher.FlushInterval = DefaultDispatcherFlushInterval
	}
	if cfg.Dispatcher.WriteTimeout == 0 {
		cfg.Dispatcher.WriteTimeout = DefaultDispatcherWriteTimeout
	}
	if cfg.Dispatcher.ShutdownGrace == 0 {
		cfg.Dispatcher.ShutdownGrace = DefaultDispatcherShutdownGrace
	}
	if cfg.Dispatcher.CircuitBreaker.FailureThreshold == 0 {
		cfg.Dispatcher.CircuitBreaker.FailureThreshold = DefaultBreakerFailureThreshold
	}
	if cfg.Dispatcher.CircuitBreaker.RecoveryTimeout == 0 {
		cfg.Dispatcher.CircuitBreaker.RecoveryTimeout = DefaultBreakerRecoveryTimeout
	}

	// Analyzer defaults
	if cfg.Analyzer.QueryLimit == 0 {
		cfg.Analyzer.QueryLimit = DefaultAnalyzerQueryLimit
	}
	if cfg.Analyzer.TopIncidents == 0 {
		cfg.Analyzer.TopIncidents = DefaultAnalyzerTopIncidents
	}
	if cfg.Analyzer.HistoricalDays == 0 {
		cfg.Analyzer.HistoricalDays = DefaultAnalyzerHistoricalDays
	}
	if cfg.Analyzer.ForecastDays == 0 {
		cfg.Analyzer.ForecastDays = DefaultAnalyzerForecastDays
	}
	if cfg.Analyzer.MinHistory == 0 {
		cfg.Analyzer.MinHistory = DefaultAnalyzerMinHistory
	}
	if cfg.Analyzer.StableSlope == 0 {
		cfg.Analyzer.StableSlope = DefaultAnalyzerStableSlope
	}

	// Alert defaults
	if cfg.Alerts.DailyCostThreshold == 0 {
		cfg.Alerts.DailyCostThreshold = DefaultDailyCostThreshold
	}
	if cfg.Alerts.HourlyCostThreshold == 0 {
		cfg.Alerts.HourlyCostThreshold = DefaultHourlyCostThreshold
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Address == "" {
		cfg.Telemetry.Metrics.Address = DefaultPrometheusAddress
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultPrometheusPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultPrometheusNamespace
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSamplingRate
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Telemetry.Tracing.OTLP.Timeout == 0 {
		cfg.Telemetry.Tracing.OTLP.Timeout = DefaultTracingOTLPTimeout
	}
}
