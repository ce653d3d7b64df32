// Package config loads and validates the chartsmith TOML configuration.
//
// Loading merges an optional config file over repository defaults, expands
// home-relative paths, and normalizes every section so other packages can
// rely on populated values.
package config
