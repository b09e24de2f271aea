// Package metrics defines the bridge's Prometheus instrumentation.
package metrics
