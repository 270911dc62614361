package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EngineCollector handles all allocation engine metrics
type EngineCollector struct {
	requestedUnits      *prometheus.GaugeVec
	allocatedUnits      *prometheus.GaugeVec
	shortfallsTotal     *prometheus.CounterVec
	releasedUnitsTotal  *prometheus.CounterVec
	committedUnitsTotal *prometheus.CounterVec
	invariantViolations *prometheus.CounterVec
	phase               *prometheus.GaugeVec
	turn                prometheus.Gauge
	finalizeDuration    *prometheus.HistogramVec
	handoffUnitsTotal   *prometheus.CounterVec
	poolOnHand          *prometheus.GaugeVec
	poolReserved        *prometheus.GaugeVec
}

// NewEngineCollector creates a new engine metrics collector
func NewEngineCollector() *EngineCollector {
	return &EngineCollector{
		requestedUnits: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "requested_units",
				Help:      "Units requested by the most recent set_requested per nation and category kind",
			},
			[]string{"nation", "kind"},
		),
		allocatedUnits: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "allocated_units",
				Help:      "Units allocated after the most recent recompute per nation and category kind",
			},
			[]string{"nation", "kind"},
		),
		shortfallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "shortfalls_total",
				Help:      "Recomputes that stopped short because a resource ran out",
			},
			[]string{"kind", "resource"},
		),
		releasedUnitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "released_units_total",
				Help:      "Reserved units returned to their pools",
			},
			[]string{"kind"},
		),
		committedUnitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "committed_units_total",
				Help:      "Reserved units consumed at finalize",
			},
			[]string{"kind"},
		),
		invariantViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "invariant_violations_total",
				Help:      "Ledger invariant violations that were clamped",
			},
			[]string{"code"},
		),
		phase: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "phase",
				Help:      "1 for the current turn phase, 0 otherwise",
			},
			[]string{"phase"},
		),
		turn: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "turn",
				Help:      "Current turn number",
			},
		),
		finalizeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "finalize_duration_seconds",
				Help:      "Time spent finalizing one nation",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"nation"},
		),
		handoffUnitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "handoff_units_total",
				Help:      "Units handed to downstream effect systems",
			},
			[]string{"kind"},
		),
		poolOnHand: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "pool_on_hand",
				Help:      "Stock on hand per nation and resource",
			},
			[]string{"nation", "resource"},
		),
		poolReserved: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "pool_reserved",
				Help:      "Stock reserved per nation and resource",
			},
			[]string{"nation", "resource"},
		),
	}
}

// Register registers all engine metrics with the Prometheus registry
func (c *EngineCollector) Register() error {
	if Registry == nil {
		return nil // Metrics not enabled
	}

	metrics := []prometheus.Collector{
		c.requestedUnits,
		c.allocatedUnits,
		c.shortfallsTotal,
		c.releasedUnitsTotal,
		c.committedUnitsTotal,
		c.invariantViolations,
		c.phase,
		c.turn,
		c.finalizeDuration,
		c.handoffUnitsTotal,
		c.poolOnHand,
		c.poolReserved,
	}

	for _, metric := range metrics {
		if err := Registry.Register(metric); err != nil {
			return err
		}
	}

	return nil
}

func (c *EngineCollector) RecordAllocation(nation, kind string, requested, allocated int64) {
	c.requestedUnits.WithLabelValues(nation, kind).Set(float64(requested))
	c.allocatedUnits.WithLabelValues(nation, kind).Set(float64(allocated))
}

func (c *EngineCollector) RecordShortfall(kind, resource string) {
	c.shortfallsTotal.WithLabelValues(kind, resource).Inc()
}

func (c *EngineCollector) RecordRelease(kind string, units int) {
	c.releasedUnitsTotal.WithLabelValues(kind).Add(float64(units))
}

func (c *EngineCollector) RecordCommit(kind string, units int) {
	c.committedUnitsTotal.WithLabelValues(kind).Add(float64(units))
}

func (c *EngineCollector) RecordInvariantViolation(code string) {
	c.invariantViolations.WithLabelValues(code).Inc()
}

// RecordPhase flips the phase gauge so exactly one phase label reads 1.
func (c *EngineCollector) RecordPhase(phase string, turn int) {
	c.phase.Reset()
	c.phase.WithLabelValues(phase).Set(1)
	c.turn.Set(float64(turn))
}

func (c *EngineCollector) RecordFinalize(nation string, seconds float64) {
	c.finalizeDuration.WithLabelValues(nation).Observe(seconds)
}

func (c *EngineCollector) RecordHandoff(kind string, quantity int64) {
	c.handoffUnitsTotal.WithLabelValues(kind).Add(float64(quantity))
}

func (c *EngineCollector) RecordPool(nation, resource string, onHand, reserved float64) {
	c.poolOnHand.WithLabelValues(nation, resource).Set(onHand)
	c.poolReserved.WithLabelValues(nation, resource).Set(reserved)
}
