package application

import (
	"context"
	"time"
)

// Publisher broadcasts trip lifecycle events to interested consumers.
// Implementations must not block the calling operation on delivery.
type Publisher interface {
	Publish(ctx context.Context, companyID, event string, trip TripView)
}

// Metrics records service-level counters and timings.
type Metrics interface {
	TripMaterialized()
	MaterializeConflict()
	RecurrenceParseFailure()
	CalendarResolveFailure()
	ObserveProjection(elapsed time.Duration, horizonDays int)
}

// NopPublisher discards events. It stands in when no broker is configured.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, string, string, TripView) {}

// NopMetrics discards measurements.
type NopMetrics struct{}

func (NopMetrics) TripMaterialized()                        {}
func (NopMetrics) MaterializeConflict()                     {}
func (NopMetrics) RecurrenceParseFailure()                  {}
func (NopMetrics) CalendarResolveFailure()                  {}
func (NopMetrics) ObserveProjection(time.Duration, int)     {}
