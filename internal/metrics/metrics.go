// Package metrics exposes Prometheus instrumentation for the scheduling
// engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements application.Metrics on top of Prometheus primitives.
type Collector struct {
	tripsMaterialized       prometheus.Counter
	materializeConflicts    prometheus.Counter
	recurrenceParseFailures prometheus.Counter
	calendarResolveFailures prometheus.Counter
	projectionDuration      prometheus.Histogram
	projectionWindowDays    prometheus.Histogram
}

// NewCollector registers the engine's metrics on the given registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		tripsMaterialized: factory.NewCounter(prometheus.CounterOpts{
			Name: "bus_trips_materialized_total",
			Help: "Trips persisted from schedule occurrences.",
		}),
		materializeConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "bus_materialize_conflicts_total",
			Help: "Materialization races resolved by returning the winning row.",
		}),
		recurrenceParseFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "bus_recurrence_parse_failures_total",
			Help: "Schedules whose recurrence rule failed to expand during projection.",
		}),
		calendarResolveFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "bus_calendar_resolve_failures_total",
			Help: "Calendar references that could not be resolved during projection.",
		}),
		projectionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bus_projection_duration_seconds",
			Help:    "Wall time spent computing timetable projections.",
			Buckets: prometheus.DefBuckets,
		}),
		projectionWindowDays: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bus_projection_window_days",
			Help:    "Length in days of requested projection windows.",
			Buckets: []float64{1, 7, 14, 31, 62, 92, 183, 365},
		}),
	}
}

// TripMaterialized implements application.Metrics.
func (c *Collector) TripMaterialized() { c.tripsMaterialized.Inc() }

// MaterializeConflict implements application.Metrics.
func (c *Collector) MaterializeConflict() { c.materializeConflicts.Inc() }

// RecurrenceParseFailure implements application.Metrics.
func (c *Collector) RecurrenceParseFailure() { c.recurrenceParseFailures.Inc() }

// CalendarResolveFailure implements application.Metrics.
func (c *Collector) CalendarResolveFailure() { c.calendarResolveFailures.Inc() }

// ObserveProjection implements application.Metrics.
func (c *Collector) ObserveProjection(elapsed time.Duration, windowDays int) {
	c.projectionDuration.Observe(elapsed.Seconds())
	c.projectionWindowDays.Observe(float64(windowDays))
}
