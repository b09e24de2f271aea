// Package config loads, clamps, and persists the bridge configuration.
package config
