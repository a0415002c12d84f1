// Package metrics declares the observability surface every ambient
// component can optionally report to — mount/unmount activity, control
// request outcomes, sync copy/conflict counts, resolver readdir
// latency — without importing `prometheus/client_golang` directly,
// mirroring the teacher's `pkg/metrics`/`pkg/metrics/prometheus` split:
// this package holds interfaces plus nil-safe free functions, and
// `pkg/metrics/prometheus` supplies the one concrete implementation,
// registered back into this package through a constructor-injection
// indirection so neither package imports the other's implementation
// package, only its declared type.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.Mutex
	enabled  bool
	registry *prometheus.Registry
)

// InitRegistry turns metrics collection on, creating a fresh
// `*prometheus.Registry` future constructors will register their
// collectors against. Call before constructing anything that asks for
// metrics (daemon, sync daemon, resolver) so `IsEnabled` already
// reports true by the time they ask.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	registry = prometheus.NewRegistry()
	enabled = true
	return registry
}

// IsEnabled reports whether InitRegistry has been called. Every
// `New*Metrics` constructor in this package checks it first and returns
// a nil interface when false, so callers can pass that nil straight
// into components expecting a metrics interface at zero overhead.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// GetRegistry returns the active registry, or nil if metrics aren't
// enabled.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	return registry
}
