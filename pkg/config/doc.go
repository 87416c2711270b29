// Package config loads the toolgate application configuration.
//
// The application config is a YAML file, separate from the TOML policy file
// that holds rules. It selects the policy file, tunes the engine, and
// configures alerts, analytics, telemetry and the HTTP server.
//
// # Loading
//
//	cfg, err := config.LoadConfigWithEnvOverrides("toolgate.yaml")
//	if err != nil {
//	    return err
//	}
//	eng, err := engine.NewFromFile(cfg.Policy.File, engine.WithConfig(cfg.EngineConfig()))
//
// Loading starts from Default, decodes the file on top of it (unknown keys
// are errors), fills remaining zero values with ApplyDefaults, applies
// TOOLGATE_SECTION_FIELD environment overrides and finally runs Validate.
// Validate reports every problem at once as a ValidationError.
//
// # Example
//
//	policy:
//	  file: policy.toml
//	  watch: true
//	engine:
//	  before_tool_failure: fail-closed
//	analytics:
//	  backend: sqlite
//	  sqlite:
//	    path: data/policy-analytics.db
//	  retention:
//	    days: 30
//	server:
//	  listen_address: ":8787"
package config
