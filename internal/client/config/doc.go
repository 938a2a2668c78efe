// Package config loads runtime configuration for the ledgersync client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file selected via -c or -config. Files ending in
//     ".toml" are decoded as TOML, anything else as JSON.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Durations in files use timex.Duration, so "3s" and "5m" both work:
//
//	server_endpoint_addr = "127.0.0.1:50051"
//	db_path              = "ledger.db"
//	sync_interval        = "30s"
//	conflict_policy      = "client-wins"
//	max_attempts         = 5
//	backoff_min          = "1s"
package config
