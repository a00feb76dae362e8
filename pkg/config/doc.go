// Package config provides the configuration model for slotpool tools.
//
// A single Config structure describes a run: the pool under test, the stress
// policy, logging and observability. Every field carries yaml, json and
// mapstructure tags so the same document can be read by Load or layered by
// viper in the CLI.
//
// # Sections
//
//   - Pool: Name, capacity and arena budget
//   - Stress: Worker count, duration and the allocate/free policy
//   - Log: Level, encoding and outputs for the zap logger
//   - Observability: Tracing and the Prometheus endpoint
//
// # Usage
//
//	cfg, err := config.LoadFile("slotpool.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Values of the form ${VAR_NAME} are replaced with the environment variable
// before parsing:
//
//	pool:
//	  name: ${POOL_NAME}
//	  capacity: 4096
//	stress:
//	  workers: 8
//	  duration: 30s
//
// Start from Default and adjust only what differs:
//
//	cfg := config.Default()
//	cfg.Pool.Capacity = 4096
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
//
// Validation errors are *errors.Error values of type ErrorTypeConfig with the
// offending field in the "field" detail.
package config
