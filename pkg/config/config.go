package config

import "time"

// Config is the root configuration structure for tokenmeter.
type Config struct {
	// AWS contains the shared AWS client settings.
	AWS AWSConfig `yaml:"aws"`

	// Recorder contains model invocation settings.
	Recorder RecorderConfig `yaml:"recorder"`

	// Pricing contains the per-model price table settings.
	Pricing PricingConfig `yaml:"pricing"`

	// Metrics contains the usage metrics publisher settings.
	Metrics PublisherConfig `yaml:"metrics"`

	// Store contains the usage record store settings.
	Store StoreConfig `yaml:"store"`

	// Dispatcher contains the asynchronous delivery settings.
	Dispatcher DispatcherConfig `yaml:"dispatcher"`

	// Analyzer contains the cost analytics settings.
	Analyzer AnalyzerConfig `yaml:"analyzer"`

	// Alerts contains the cost alert thresholds.
	Alerts AlertsConfig `yaml:"alerts"`

	// Telemetry contains logging, Prometheus and tracing settings.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// AWSConfig contains the settings used to build AWS service clients.
type AWSConfig struct {
	// Region is the AWS region for Bedrock, CloudWatch and DynamoDB.
	// Default: "ap-southeast-2"
	Region string `yaml:"region"`

	// Profile selects a shared config profile. Empty uses the default chain.
	Profile string `yaml:"profile"`

	// AccessKeyID and SecretAccessKey switch the client to static
	// credentials when both are set.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`

	// Endpoint overrides the service endpoint (for example a local
	// DynamoDB or LocalStack).
	Endpoint string `yaml:"endpoint"`
}

// RecorderConfig contains model invocation settings.
type RecorderConfig struct {
	// DefaultModel is used when a call does not name a model.
	// Default: "apac.anthropic.claude-sonnet-4-20250514-v1:0"
	DefaultModel string `yaml:"default_model"`

	// DefaultAgentID is used when a call does not name an agent.
	// Default: "tokenmeter"
	DefaultAgentID string `yaml:"default_agent_id"`

	// Timeout bounds a single model invocation. Zero means no limit.
	// Default: 5m
	Timeout time.Duration `yaml:"timeout"`
}

// PricingConfig contains the per-model price table settings.
type PricingConfig struct {
	// CostModel selects the preset used for unknown models.
	// Options: "sonnet-4", "haiku-3", "opus-3"
	// Default: "sonnet-4"
	CostModel string `yaml:"cost_model"`

	// File is an optional YAML, JSON or TOML file with price overrides.
	File string `yaml:"file"`

	// Watch reloads File when it changes.
	// Default: false
	Watch bool `yaml:"watch"`

	// Custom registers additional model prices.
	Custom map[string]ModelPrice `yaml:"custom"`
}

// ModelPrice is the price of one model in USD per million tokens.
type ModelPrice struct {
	InputPerMillion  float64 `yaml:"input_cost_per_million"`
	OutputPerMillion float64 `yaml:"output_cost_per_million"`
}

// PublisherConfig contains the usage metrics publisher settings.
type PublisherConfig struct {
	// Enabled controls whether usage metrics are published.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backends lists the metric destinations.
	// Options: "cloudwatch", "prometheus", "log"
	// Default: ["cloudwatch"]
	Backends []string `yaml:"backends"`

	// Namespace is the CloudWatch namespace.
	// Default: "BedrockUsage"
	Namespace string `yaml:"namespace"`
}

// StoreConfig contains the usage record store settings.
type StoreConfig struct {
	// Enabled controls whether usage records are persisted.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backend selects the storage backend.
	// Options: "dynamodb", "sqlite", "redis", "memory"
	// Default: "dynamodb"
	Backend string `yaml:"backend"`

	// RetentionDays is added to the write time to derive each record's expiry.
	// Default: 90
	RetentionDays int `yaml:"retention_days"`

	// BatchSize is the number of records written per batch request (1-25).
	// Default: 25
	BatchSize int `yaml:"batch_size"`

	// QueryTimeout bounds a single store query.
	// Default: 30s
	QueryTimeout time.Duration `yaml:"query_timeout"`

	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Redis    RedisConfig    `yaml:"redis"`

	// Retention configures the scheduled purge of expired records.
	Retention RetentionConfig `yaml:"retention"`
}

// DynamoDBConfig contains DynamoDB backend settings.
type DynamoDBConfig struct {
	// TableName is the usage table.
	// Default: "bedrock-token-usage"
	TableName string `yaml:"table_name"`
}

// SQLiteConfig contains SQLite backend settings.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/usage.db"
	Path string `yaml:"path"`

	// Driver selects the database/sql driver.
	// Options: "sqlite" (pure Go), "sqlite3" (cgo)
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// MaxOpenConns limits open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long a writer waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RedisConfig contains Redis backend settings.
type RedisConfig struct {
	// Addr is the host:port of the Redis server.
	// Default: "localhost:6379"
	Addr string `yaml:"addr"`

	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// KeyPrefix namespaces every key written by the store.
	// Default: "tokenmeter"
	KeyPrefix string `yaml:"key_prefix"`
}

// RetentionConfig contains the scheduled purge settings.
type RetentionConfig struct {
	// Schedule is a standard five-field cron expression.
	// Default: "0 3 * * *"
	Schedule string `yaml:"schedule"`
}

// DispatcherConfig contains the asynchronous delivery settings.
type DispatcherConfig struct {
	// QueueSize is the capacity of each sink lane.
	// Default: 1000
	QueueSize int `yaml:"queue_size"`

	// FlushInterval is how often the metrics publisher is flushed.
	// Default: 60s
	FlushInterval time.Duration `yaml:"flush_interval"`

	// WriteTimeout bounds a single sink call.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownGrace bounds how long Close drains queued work.
	// Default: 10s
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`

	// CircuitBreaker configures the per-sink breakers.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig contains the per-sink breaker settings.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the breaker.
	// Default: 5
	FailureThreshold int `yaml:"failure_threshold"`

	// RecoveryTimeout is how long an open breaker waits before a trial call.
	// Default: 60s
	RecoveryTimeout time.Duration `yaml:"recovery_timeout"`
}

// AnalyzerConfig contains the cost analytics settings.
type AnalyzerConfig struct {
	// QueryLimit caps the records read for a single report.
	// Default: 10000
	QueryLimit int `yaml:"query_limit"`

	// TopIncidents is the number of incidents listed in a daily report.
	// Default: 10
	TopIncidents int `yaml:"top_incidents"`

	// HistoricalDays is the look-back window for forecasts.
	// Default: 30
	HistoricalDays int `yaml:"historical_days"`

	// ForecastDays is the number of days projected.
	// Default: 7
	ForecastDays int `yaml:"forecast_days"`

	// MinHistory is the minimum number of daily buckets a forecast needs.
	// Default: 7
	MinHistory int `yaml:"min_history"`

	// StableSlope is the absolute slope below which a trend is stable.
	// Default: 0.01
	StableSlope float64 `yaml:"stable_slope"`
}

// AlertsConfig contains the cost alert settings.
type AlertsConfig struct {
	// Enabled creates CloudWatch alarms for the thresholds on "store init".
	// Default: false
	Enabled bool `yaml:"enabled"`

	// DailyCostThreshold is the daily spend in USD that requires an alert.
	// Default: 100
	DailyCostThreshold float64 `yaml:"daily_cost_threshold"`

	// HourlyCostThreshold is the hourly spend in USD that requires an alert.
	// Default: 10
	HourlyCostThreshold float64 `yaml:"hourly_cost_threshold"`

	// SNSTopicARN is notified by the alarms when set.
	SNSTopicARN string `yaml:"sns_topic_arn"`
}

// TelemetryConfig contains logging, metrics and tracing configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains the Prometheus endpoint configuration.
type MetricsConfig struct {
	// Enabled controls whether Prometheus collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Address is the listen address of "metrics serve".
	// Default: ":9090"
	Address string `yaml:"address"`

	// Path is the HTTP path for the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "tokenmeter"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	Subsystem string `yaml:"subsystem"`

	// TokenCountBuckets defines histogram buckets for token counts.
	TokenCountBuckets []float64 `yaml:"token_count_buckets"`

	// CostBuckets defines histogram buckets for per-call cost in USD.
	CostBuckets []float64 `yaml:"cost_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "tokenmeter"
	ServiceName string `yaml:"service_name"`

	// OTLP contains OTLP exporter specific configuration.
	OTLP OTLPConfig `yaml:"otlp"`
}

// OTLPConfig contains OTLP exporter configuration.
type OTLPConfig struct {
	// Insecure disables TLS.
	Insecure bool `yaml:"insecure"`

	// Timeout is the export timeout.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}
