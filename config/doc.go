// Package config provides server configuration for tiltlink.
//
// Configuration is read from an optional TOML file on top of built-in
// defaults. Command line flags and environment variables are applied by the
// caller after Load.
//
// Example file:
//
//	[server]
//	host = "0.0.0.0"
//	port = 3000
//	static_dirs = ["public", "bower_components"]
//	allowed_origins = ["http://localhost:3000"]
//	public_url = "https://tilt.example.com"
//
//	[ngrok]
//	enabled = true
//	auth_token = "..."
//
//	[log]
//	level = "debug"
//	format = "json"
//
// Unknown keys are rejected so typos do not silently fall back to defaults.
package config
