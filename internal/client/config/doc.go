// Package config loads runtime configuration for the StudySync client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   API base URL, e.g. http://127.0.0.1:8080/api
//	-d string   data directory
//	-t int      request timeout (seconds)
//	-l string   log level
//
// # JSON schema
//
// Timeouts use timex.Duration, so values can be either strings like "30s" or
// integer nanoseconds:
//
//	{
//	  "server_base_url": "https://studysync.example/api",
//	  "data_dir": "/home/me/.studysync",
//	  "request_timeout": "30s",
//	  "auth_call_timeout": "10s",
//	  "refresh_wait_timeout": "15s",
//	  "max_transport_retries": 2,
//	  "log_level": "info"
//	}
//
// Environment variables are not read.
package config
