package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every tokenmeter environment variable.
const EnvPrefix = "TOKENMETER_"

// LoadConfig loads configuration from a YAML file at the specified path.
// The file is decoded on top of Default(), remaining zero values are
// defaulted and the result is validated. Environment variables are not
// consulted; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. An empty path or a missing file yields the
// defaults, so the CLI runs without a configuration file.
//
// The loading sequence is:
// 1. Load YAML from file (or start from Default)
// 2. Apply environment variable overrides
// 3. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		loaded, err := LoadConfig(path)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. With no
// arguments it reads ".env" in the working directory. Missing files are
// ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}

	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("failed to load env files %v: %w", present, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables use the format TOKENMETER_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// AWS overrides
	if val := os.Getenv("AWS_REGION"); val != "" {
		cfg.AWS.Region = val
	}
	setString(&cfg.AWS.Region, "AWS_REGION")
	setString(&cfg.AWS.Profile, "AWS_PROFILE")
	setString(&cfg.AWS.Endpoint, "AWS_ENDPOINT")

	// Recorder overrides
	setString(&cfg.Recorder.DefaultModel, "RECORDER_DEFAULT_MODEL")
	setString(&cfg.Recorder.DefaultAgentID, "RECORDER_DEFAULT_AGENT_ID")
	setDuration(&cfg.Recorder.Timeout, "RECORDER_TIMEOUT")

	// Pricing overrides
	setString(&cfg.Pricing.CostModel, "PRICING_COST_MODEL")
	setString(&cfg.Pricing.File, "PRICING_FILE")
	setBool(&cfg.Pricing.Watch, "PRICING_WATCH")

	// Metrics publisher overrides
	setBool(&cfg.Metrics.Enabled, "METRICS_ENABLED")
	setString(&cfg.Metrics.Namespace, "METRICS_NAMESPACE")
	if val := os.Getenv(EnvPrefix + "METRICS_BACKENDS"); val != "" {
		var backends []string
		for _, b := range strings.Split(val, ",") {
			if b = strings.TrimSpace(b); b != "" {
				backends = append(backends, b)
			}
		}
		cfg.Metrics.Backends = backends
	}

	// Store overrides
	setBool(&cfg.Store.Enabled, "STORE_ENABLED")
	setString(&cfg.Store.Backend, "STORE_BACKEND")
	setInt(&cfg.Store.RetentionDays, "STORE_RETENTION_DAYS")
	setInt(&cfg.Store.BatchSize, "STORE_BATCH_SIZE")
	setString(&cfg.Store.DynamoDB.TableName, "STORE_DYNAMODB_TABLE_NAME")
	setString(&cfg.Store.SQLite.Path, "STORE_SQLITE_PATH")
	setString(&cfg.Store.SQLite.Driver, "STORE_SQLITE_DRIVER")
	setString(&cfg.Store.Redis.Addr, "STORE_REDIS_ADDR")
	setString(&cfg.Store.Redis.Password, "STORE_REDIS_PASSWORD")
	setInt(&cfg.Store.Redis.DB, "STORE_REDIS_DB")
	setString(&cfg.Store.Retention.Schedule, "STORE_RETENTION_SCHEDULE")

	// Dispatcher overrides
	setInt(&cfg.Dispatcher.QueueSize, "DISPATCHER_QUEUE_SIZE")
	setDuration(&cfg.Dispatcher.FlushInterval, "DISPATCHER_FLUSH_INTERVAL")
	setDuration(&cfg.Dispatcher.WriteTimeout, "DISPATCHER_WRITE_TIMEOUT")
	setDuration(&cfg.Dispatcher.ShutdownGrace, "DISPATCHER_SHUTDOWN_GRACE")
	setInt(&cfg.Dispatcher.CircuitBreaker.FailureThreshold, "DISPATCHER_CIRCUIT_BREAKER_FAILURE_THRESHOLD")
	setDuration(&cfg.Dispatcher.CircuitBreaker.RecoveryTimeout, "DISPATCHER_CIRCUIT_BREAKER_RECOVERY_TIMEOUT")

	// Alert overrides
	setBool(&cfg.Alerts.Enabled, "ALERTS_ENABLED")
	setFloat(&cfg.Alerts.DailyCostThreshold, "ALERTS_DAILY_COST_THRESHOLD")
	setFloat(&cfg.Alerts.HourlyCostThreshold, "ALERTS_HOURLY_COST_THRESHOLD")
	setString(&cfg.Alerts.SNSTopicARN, "ALERTS_SNS_TOPIC_ARN")

	// Telemetry overrides
	setString(&cfg.Telemetry.Logging.Level, "TELEMETRY_LOGGING_LEVEL")
	setString(&cfg.Telemetry.Logging.Format, "TELEMETRY_LOGGING_FORMAT")
	setBool(&cfg.Telemetry.Metrics.Enabled, "TELEMETRY_METRICS_ENABLED")
	setString(&cfg.Telemetry.Metrics.Address, "TELEMETRY_METRICS_ADDRESS")
	setString(&cfg.Telemetry.Metrics.Path, "TELEMETRY_METRICS_PATH")
	setBool(&cfg.Telemetry.Tracing.Enabled, "TELEMETRY_TRACING_ENABLED")
	setString(&cfg.Telemetry.Tracing.Endpoint, "TELEMETRY_TRACING_ENDPOINT")
	setFloat(&cfg.Telemetry.Tracing.SampleRatio, "TELEMETRY_TRACING_SAMPLE_RATIO")
}

func setString(dst *string, name string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		*dst = val
	}
}

func setBool(dst *bool, name string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, name string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func setFloat(dst *float64, name string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = f
		}
	}
}

// setDuration accepts Go durations ("90s") and bare integers as seconds.
func setDuration(dst *time.Duration, name string) {
	val := os.Getenv(EnvPrefix + name)
	if val == "" {
		return
	}
	if d, err := time.ParseDuration(val); err == nil {
		*dst = d
		return
	}
	if secs, err := strconv.Atoi(val); err == nil {
		*dst = time.Duration(secs) * time.Second
	}
}

// EnvVars returns the environment variables that reproduce the effective
// configuration, keyed by name. Secrets are omitted.
func EnvVars(cfg *Config) map[string]string {
	vars := map[string]string{
		EnvPrefix + "AWS_REGION":                                   cfg.AWS.Region,
		EnvPrefix + "RECORDER_DEFAULT_MODEL":                       cfg.Recorder.DefaultModel,
		EnvPrefix + "RECORDER_DEFAULT_AGENT_ID":                    cfg.Recorder.DefaultAgentID,
		EnvPrefix + "RECORDER_TIMEOUT":                             cfg.Recorder.Timeout.String(),
		EnvPrefix + "PRICING_COST_MODEL":                           cfg.Pricing.CostModel,
		EnvPrefix + "METRICS_ENABLED":                              strconv.FormatBool(cfg.Metrics.Enabled),
		EnvPrefix + "METRICS_BACKENDS":                             strings.Join(cfg.Metrics.Backends, ","),
		EnvPrefix + "METRICS_NAMESPACE":                            cfg.Metrics.Namespace,
		EnvPrefix + "STORE_ENABLED":                                strconv.FormatBool(cfg.Store.Enabled),
		EnvPrefix + "STORE_BACKEND":                                cfg.Store.Backend,
		EnvPrefix + "STORE_RETENTION_DAYS":                         strconv.Itoa(cfg.Store.RetentionDays),
		EnvPrefix + "STORE_BATCH_SIZE":                             strconv.Itoa(cfg.Store.BatchSize),
		EnvPrefix + "STORE_DYNAMODB_TABLE_NAME":                    cfg.Store.DynamoDB.TableName,
		EnvPrefix + "STORE_RETENTION_SCHEDULE":                     cfg.Store.Retention.Schedule,
		EnvPrefix + "DISPATCHER_QUEUE_SIZE":                        strconv.Itoa(cfg.Dispatcher.QueueSize),
		EnvPrefix + "DISPATCHER_FLUSH_INTERVAL":                    cfg.Dispatcher.FlushInterval.String(),
		EnvPrefix + "DISPATCHER_WRITE_TIMEOUT":                     cfg.Dispatcher.WriteTimeout.String(),
		EnvPrefix + "DISPATCHER_SHUTDOWN_GRACE":                    cfg.Dispatcher.ShutdownGrace.String(),
		EnvPrefix + "DISPATCHER_CIRCUIT_BREAKER_FAILURE_THRESHOLD": strconv.Itoa(cfg.Dispatcher.CircuitBreaker.FailureThreshold),
		EnvPrefix + "DISPATCHER_CIRCUIT_BREAKER_RECOVERY_TIMEOUT":  cfg.Dispatcher.CircuitBreaker.RecoveryTimeout.String(),
		EnvPrefix + "ALERTS_ENABLED":                               strconv.FormatBool(cfg.Alerts.Enabled),
		EnvPrefix + "ALERTS_DAILY_COST_THRESHOLD":                  strconv.FormatFloat(cfg.Alerts.DailyCostThreshold, 'f', -1, 64),
		EnvPrefix + "ALERTS_HOURLY_COST_THRESHOLD":                 strconv.FormatFloat(cfg.Alerts.HourlyCostThreshold, 'f', -1, 64),
		EnvPrefix + "TELEMETRY_LOGGING_LEVEL":                      cfg.Telemetry.Logging.Level,
		EnvPrefix + "TELEMETRY_LOGGING_FORMAT":                     cfg.Telemetry.Logging.Format,
		EnvPrefix + "TELEMETRY_METRICS_ENABLED":                    strconv.FormatBool(cfg.Telemetry.Metrics.Enabled),
		EnvPrefix + "TELEMETRY_TRACING_ENABLED":                    strconv.FormatBool(cfg.Telemetry.Tracing.Enabled),
	}

	if cfg.Pricing.File != "" {
		vars[EnvPrefix+"PRICING_FILE"] = cfg.Pricing.File
	}
	if cfg.Alerts.SNSTopicARN != "" {
		vars[EnvPrefix+"ALERTS_SNS_TOPIC_ARN"] = cfg.Alerts.SNSTopicARN
	}
	switch cfg.Store.Backend {
	case "sqlite":
		vars[EnvPrefix+"STORE_SQLITE_PATH"] = cfg.Store.SQLite.Path
		vars[EnvPrefix+"STORE_SQLITE_DRIVER"] = cfg.Store.SQLite.Driver
	case "redis":
		vars[EnvPrefix+"STORE_REDIS_ADDR"] = cfg.Store.Redis.Addr
		vars[EnvPrefix+"STORE_REDIS_DB"] = strconv.Itoa(cfg.Store.Redis.DB)
	}
	if cfg.Telemetry.Tracing.Enabled {
		vars[EnvPrefix+"TELEMETRY_TRACING_ENDPOINT"] = cfg.Telemetry.Tracing.Endpoint
	}

	return vars
}
