// Package config handles loading and validating knxtest configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (KNXTEST_*)
//   - Validation of required fields, group addresses and function names
//   - Default value handling
//
// Security Considerations:
//   - The MQTT password should be set via KNXTEST_MQTT_PASSWORD
//   - MQTTAuthConfig redacts the password in String() and JSON output
//
// Usage:
//
//	cfg, err := config.Load("configs/knxtest.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	typeMap := cfg.KNXTypeMap()
package config
