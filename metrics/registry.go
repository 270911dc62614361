// Package metrics exposes the allocation engine's Prometheus collectors.
// Engine code records through the package-level functions; they are no-ops
// until a collector is installed with SetGlobalCollector.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace for all metrics
	namespace = "allocation"
	// Subsystem for engine metrics
	subsystem = "engine"
)

var (
	// Registry is the global Prometheus registry for all metrics
	Registry *prometheus.Registry

	// globalCollector is set by SetGlobalCollector() when metrics are enabled
	globalCollector Recorder
)

// Recorder defines the interface engine code uses to record events.
type Recorder interface {
	RecordAllocation(nation, kind string, requested, allocated int64)
	RecordShortfall(kind, resource string)
	RecordRelease(kind string, units int)
	RecordCommit(kind string, units int)
	RecordInvariantViolation(code string)
	RecordPhase(phase string, turn int)
	RecordFinalize(nation string, seconds float64)
	RecordHandoff(kind string, quantity int64)
	RecordPool(nation, resource string, onHand, reserved float64)
}

// InitRegistry initializes the Prometheus registry with Go runtime collectors.
// Should be called once at application startup if metrics are enabled.
func InitRegistry() {
	Registry = prometheus.NewRegistry()
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// IsEnabled returns true if metrics collection is enabled
func IsEnabled() bool {
	return Registry != nil
}

// Handler serves the registry, or 404 when metrics are disabled.
func Handler() http.Handler {
	if Registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// SetGlobalCollector sets the global metrics collector
func SetGlobalCollector(c Recorder) {
	globalCollector = c
}

// Enable initializes the registry and installs a registered collector.
func Enable() (*EngineCollector, error) {
	InitRegistry()
	c := NewEngineCollector()
	if err := c.Register(); err != nil {
		return nil, err
	}
	SetGlobalCollector(c)
	return c, nil
}

func RecordAllocation(nation, kind string, requested, allocated int64) {
	if globalCollector != nil {
		globalCollector.RecordAllocation(nation, kind, requested, allocated)
	}
}

func RecordShortfall(kind, resource string) {
	if globalCollector != nil {
		globalCollector.RecordShortfall(kind, resource)
	}
}

func RecordRelease(kind string, units int) {
	if globalCollector != nil && units > 0 {
		globalCollector.RecordRelease(kind, units)
	}
}

func RecordCommit(kind string, units int) {
	if globalCollector != nil && units > 0 {
		globalCollector.RecordCommit(kind, units)
	}
}

func RecordInvariantViolation(code string) {
	if globalCollector != nil {
		globalCollector.RecordInvariantViolation(code)
	}
}

func RecordPhase(phase string, turn int) {
	if globalCollector != nil {
		globalCollector.RecordPhase(phase, turn)
	}
}

func RecordFinalize(nation string, seconds float64) {
	if globalCollector != nil {
		globalCollector.RecordFinalize(nation, seconds)
	}
}

func RecordHandoff(kind string, quantity int64) {
	if globalCollector != nil {
		globalCollector.RecordHandoff(kind, quantity)
	}
}

func RecordPool(nation, resource string, onHand, reserved float64) {
	if globalCollector != nil {
		globalCollector.RecordPool(nation, resource, onHand, reserved)
	}
}
