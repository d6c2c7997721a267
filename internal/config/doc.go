// Package config handles HCL configuration parsing, validation, and reloading.
//
// # Overview
//
// holdover is configured with a single HCL file. This package provides:
//   - HCL parsing into [Config] with an `env` variable namespace
//   - Defaults for every omitted setting
//   - Validation that reports every problem at once ([ValidationErrors])
//   - HCL generation for `holdover config init`
//   - A file [Watcher] that re-reads the file when it changes
//
// # Configuration Blocks
//
//   - log: level and output format
//   - store: state backend (sqlite, badger, memory) and its path
//   - resource "<kind>": the policy being overridden (chrome_policy, sysctl, memory)
//   - api: HTTP listener, activation allow-pattern and rate limit
//   - control: control-plane socket path
//
// # Example
//
//	override_mode  = "default"
//	ttl            = "5m"
//	sweep_interval = "1m"
//
//	store {
//	  backend = "sqlite"
//	  path    = "${env.STATE_DIRECTORY}/state.db"
//	}
//
//	resource "chrome_policy" {
//	  key = "WebRtcIPHandling"
//	}
//
// Only the log level is applied on reload. Every other setting needs a restart.
package config
