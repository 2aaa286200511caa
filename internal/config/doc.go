// Package config provides the configuration for pcrawl: crawl limits,
// fetcher settings, report options and per-site overrides loaded from a
// YAML or TOML file.
package config
