// Package config loads, normalizes, and validates ferry configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the environment fallbacks the
// upload host has always used (DB_USER, DB_PASS, DB_HOSTNAME, DB_PORT,
// DB_NAME, ENDPOINT_URL, AWS_REGION, SLACK_WEBHOOK_URL). The Config type
// centralizes every knob the daemon and CLI need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
