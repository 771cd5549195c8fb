package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"mercator-hq/tokenmeter/pkg/pricing"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "store.batch_size").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateAWS(cfg)...)
	errs = append(errs, validatePricing(&cfg.Pricing)...)
	errs = append(errs, validatePublisher(&cfg.Metrics)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateDispatcher(&cfg.Dispatcher)...)
	errs = append(errs, validateAnalyzer(&cfg.Analyzer)...)
	errs = append(errs, validateAlerts(&cfg.Alerts)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateAWS(cfg *Config) []FieldError {
	var errs []FieldError

	needsAWS := (cfg.Metrics.Enabled && cfg.Metrics.HasBackend("cloudwatch")) ||
		(cfg.Store.Enabled && cfg.Store.Backend == "dynamodb")
	if needsAWS && cfg.AWS.Region == "" {
		errs = append(errs, FieldError{
			Field:   "aws.region",
			Message: "region is required when a CloudWatch or DynamoDB sink is enabled",
		})
	}

	if (cfg.AWS.AccessKeyID == "") != (cfg.AWS.SecretAccessKey == "") {
		errs = append(errs, FieldError{
			Field:   "aws.access_key_id",
			Message: "access_key_id and secret_access_key must be set together",
		})
	}

	return errs
}

func validatePricing(cfg *PricingConfig) []FieldError {
	var errs []FieldError

	if _, ok := pricing.Presets[cfg.CostModel]; !ok {
		errs = append(errs, FieldError{
			Field:   "pricing.cost_model",
			Message: fmt.Sprintf("unknown cost model %q: must be 'sonnet-4', 'haiku-3', or 'opus-3'", cfg.CostModel),
		})
	}

	if cfg.Watch && cfg.File == "" {
		errs = append(errs, FieldError{
			Field:   "pricing.watch",
			Message: "watch requires pricing.file",
		})
	}

	for id, p := range cfg.Custom {
		if p.InputPerMillion < 0 || p.OutputPerMillion < 0 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("pricing.custom.%s", id),
				Message: "prices must be non-negative",
			})
		}
	}

	return errs
}

func validatePublisher(cfg *PublisherConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return errs
	}

	validBackends := map[string]bool{"cloudwatch": true, "prometheus": true, "log": true}
	for i, b := range cfg.Backends {
		if !validBackends[b] {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("metrics.backends[%d]", i),
				Message: fmt.Sprintf("unknown metrics backend %q: must be 'cloudwatch', 'prometheus', or 'log'", b),
			})
		}
	}

	if cfg.Namespace == "" {
		errs = append(errs, FieldError{
			Field:   "metrics.namespace",
			Message: "namespace is required when metrics are enabled",
		})
	}

	return errs
}

func validateStore(cfg *StoreConfig) []FieldError {
	var errs []FieldError

	if cfg.RetentionDays <= 0 {
		errs = append(errs, FieldError{
			Field:   "store.retention_days",
			Message: "retention days must be positive",
		})
	}

	if cfg.BatchSize < 1 || cfg.BatchSize > MaxStoreBatchSize {
		errs = append(errs, FieldError{
			Field:   "store.batch_size",
			Message: fmt.Sprintf("batch size must be between 1 and %d", MaxStoreBatchSize),
		})
	}

	if cfg.QueryTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "store.query_timeout",
			Message: "query timeout must be non-negative",
		})
	}

	if _, err := cron.ParseStandard(cfg.Retention.Schedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "store.retention.schedule",
			Message: fmt.Sprintf("invalid cron expression: %v", err),
		})
	}

	if !cfg.Enabled {
		return errs
	}

	switch cfg.Backend {
	case "dynamodb":
		if cfg.DynamoDB.TableName == "" {
			errs = append(errs, FieldError{
				Field:   "store.dynamodb.table_name",
				Message: "table name is required for the dynamodb backend",
			})
		}
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "store.sqlite.path",
				Message: "path is required for the sqlite backend",
			})
		}
		if cfg.SQLite.Driver != "sqlite" && cfg.SQLite.Driver != "sqlite3" {
			errs = append(errs, FieldError{
				Field:   "store.sqlite.driver",
				Message: fmt.Sprintf("unknown driver %q: must be 'sqlite' or 'sqlite3'", cfg.SQLite.Driver),
			})
		}
		if cfg.SQLite.MaxOpenConns < 0 {
			errs = append(errs, FieldError{
				Field:   "store.sqlite.max_open_conns",
				Message: "max open connections must be non-negative",
			})
		}
	case "redis":
		if cfg.Redis.Addr == "" {
			errs = append(errs, FieldError{
				Field:   "store.redis.addr",
				Message: "address is required for the redis backend",
			})
		}
	case "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "store.backend",
			Message: fmt.Sprintf("unknown store backend %q: must be 'dynamodb', 'sqlite', 'redis', or 'memory'", cfg.Backend),
		})
	}

	return errs
}

func validateDispatcher(cfg *DispatcherConfig) []FieldError {
	var errs []FieldError

	if cfg.QueueSize <= 0 {
		errs = append(errs, FieldError{
			Field:   "dispatcher.queue_size",
			Message: "queue size must be positive",
		})
	}
	if cfg.FlushInterval <= 0 {
		errs = append(errs, FieldError{
			Field:   "dispatcher.flush_interval",
			Message: "flush interval must be positive",
		})
	}
	if cfg.WriteTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "dispatcher.write_timeout",
			Message: "write timeout must be positive",
		})
	}
	if cfg.ShutdownGrace < 0 {
		errs = append(errs, FieldError{
			Field:   "dispatcher.shutdown_grace",
			Message: "shutdown grace must be non-negative",
		})
	}
	if cfg.CircuitBreaker.FailureThreshold <= 0 {
		errs = append(errs, FieldError{
			Field:   "dispatcher.circuit_breaker.failure_threshold",
			Message: "failure threshold must be positive",
		})
	}
	if cfg.CircuitBreaker.RecoveryTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "dispatcher.circuit_breaker.recovery_timeout",
			Message: "recovery timeout must be positive",
		})
	}

	return errs
}

func validateAnalyzer(cfg *AnalyzerConfig) []FieldError {
	var errs []FieldError

	positive := []struct {
		field string
		value int
	}{
		{"analyzer.query_limit", cfg.QueryLimit},
		{"analyzer.top_incidents", cfg.TopIncidents},
		{"analyzer.historical_days", cfg.HistoricalDays},
		{"analyzer.forecast_days", cfg.ForecastDays},
		{"analyzer.min_history", cfg.MinHistory},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, FieldError{Field: p.field, Message: "must be positive"})
		}
	}

	if cfg.MinHistory < 2 && cfg.MinHistory > 0 {
		errs = append(errs, FieldError{
			Field:   "analyzer.min_history",
			Message: "a forecast needs at least 2 points",
		})
	}
	if cfg.StableSlope < 0 {
		errs = append(errs, FieldError{
			Field:   "analyzer.stable_slope",
			Message: "stable slope must be non-negative",
		})
	}

	return errs
}

func validateAlerts(cfg *AlertsConfig) []FieldError {
	var errs []FieldError

	if cfg.DailyCostThreshold < 0 {
		errs = append(errs, FieldError{
			Field:   "alerts.daily_cost_threshold",
			Message: "daily cost threshold must be non-negative",
		})
	}
	if cfg.HourlyCostThreshold < 0 {
		errs = append(errs, FieldError{
			Field:   "alerts.hourly_cost_threshold",
			Message: "hourly cost threshold must be non-negative",
		})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing endpoint is required when tracing is enabled",
		})
	}
	switch cfg.Tracing.Sampler {
	case "always", "never", "ratio":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never', or 'ratio'", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	return errs
}

// HasBackend reports whether the named metrics backend is configured.
func (c *PublisherConfig) HasBackend(name string) bool {
	for _, b := range c.Backends {
		if b == name {
			return true
		}
	}
	return false
}
