// Package config loads and validates the warden pipeline configuration.
//
// Configuration is YAML over a complete set of defaults, validated with
// struct tags. A file watcher supports hot reload of the resilience tuning
// knobs (rate limits, breaker thresholds, retry policy) without a restart.
package config
