// Package config provides configuration management for tokenmeter.
//
// Configuration is read from a YAML file, completed with defaults, optionally
// overridden from the environment and validated before any component is
// built. Every violated constraint is reported at once:
//
//	configuration validation failed with 2 errors:
//	  - store.batch_size: batch size must be between 1 and 25
//	  - store.retention_days: retention days must be positive
//
// # Loading
//
//	cfg, err := config.LoadConfig("config.yaml")
//	cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// Environment variables follow the naming convention TOKENMETER_SECTION_FIELD,
// for example TOKENMETER_STORE_RETENTION_DAYS or TOKENMETER_AWS_REGION. The
// plain AWS_REGION variable is honoured when no tokenmeter-specific region is
// set. LoadDotEnv reads a .env file into the process environment first.
//
// # Precedence
//
//  1. Default values (defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation
//
// # Example Configuration
//
//	aws:
//	  region: ap-southeast-2
//
//	pricing:
//	  cost_model: sonnet-4
//
//	metrics:
//	  enabled: true
//	  backends: [cloudwatch, prometheus]
//	  namespace: BedrockUsage
//
//	store:
//	  enabled: true
//	  backend: dynamodb
//	  retention_days: 90
//	  dynamodb:
//	    table_name: bedrock-token-usage
//
//	alerts:
//	  daily_cost_threshold: 100
//	  hourly_cost_threshold: 10
package config
