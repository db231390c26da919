// Package config loads labeld configuration from JSON or YAML files with
// LABELD_* environment variable overlays.
package config
