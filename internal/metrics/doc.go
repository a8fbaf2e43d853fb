// Package metrics exposes intake-bot counters to Prometheus.
package metrics
