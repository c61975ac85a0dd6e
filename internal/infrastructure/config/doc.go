// Package config handles loading and validating SberGate configuration.
//
// This package manages:
//   - Loading process configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//   - A separate runtime options store (options.json) for values discovered
//     at runtime, persisted only when a value actually changes
//
// Security Considerations:
//   - Sensitive values (tokens, MQTT credentials) should be set via
//     environment variables
//   - The config file should have restricted permissions (0600)
//
// Performance Characteristics:
//   - Process configuration is loaded once at startup
//   - Runtime options are rewritten only on value change
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Cloud.MQTT.Broker.Host)
package config
