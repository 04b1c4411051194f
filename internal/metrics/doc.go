// Package metrics defines the observability hooks for the watch session and
// the refresh coordinator, with a Prometheus-backed implementation.
package metrics
