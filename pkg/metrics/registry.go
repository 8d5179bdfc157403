// Package metrics provides optional Prometheus metrics for the chat server.
//
// Metrics are opt-in: if InitRegistry is never called, constructors return
// no-op implementations with zero overhead, and the server runs exactly as
// it would without any instrumentation.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry. Safe to call
// multiple times; subsequent calls are ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the global registry, or nil if metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return registry != nil
}
