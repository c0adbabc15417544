// Package config handles loading and validating mqttscope configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validating required settings
//   - Providing typed access to all sections
//
// # Loading Order
//
// Configuration values are resolved in this order (later wins):
//
//  1. Hardcoded defaults
//  2. YAML file
//  3. MQTTSCOPE_* environment variables
//
// # Runtime Settings
//
// The broker and buffers sections together form the Settings value that the
// engine accepts at runtime. Swapping settings re-evaluates every buffer
// budget immediately but never forces a reconnect; the broker section is
// picked up by the next connection attempt.
//
// # Example
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	engine.UpdateSettings(cfg.Settings())
package config
