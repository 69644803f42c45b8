// Package config loads config.toml and META_CONF_* overrides with viper and
// resolves the data directory.
package config
