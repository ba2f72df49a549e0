package persistence

import (
	"context"
	"time"

	"github.com/example/intercity-bus/internal/dates"
	"github.com/example/intercity-bus/internal/scheduling"
)

// CalendarRepository stores calendars together with their date-rule entries.
type CalendarRepository interface {
	CreateCalendar(ctx context.Context, cal Calendar) error
	UpdateCalendar(ctx context.Context, cal Calendar) error
	GetCalendar(ctx context.Context, id string) (Calendar, error)
	GetCalendarByCode(ctx context.Context, companyID, code string) (Calendar, error)
	ListCalendars(ctx context.Context, companyID string) ([]Calendar, error)
	DeleteCalendar(ctx context.Context, id string) error
}

// RouteRepository stores routes and their versioned stop sequences.
type RouteRepository interface {
	CreateRoute(ctx context.Context, route Route) error
	GetRoute(ctx context.Context, id string) (Route, error)
	ListRoutes(ctx context.Context, companyID string) ([]Route, error)
	CreateRouteVersion(ctx context.Context, version RouteVersion) error
	GetRouteVersion(ctx context.Context, id string) (RouteVersion, error)
	ActiveRouteVersion(ctx context.Context, routeID string) (RouteVersion, error)
	// ActiveRouteVersions resolves the active version for each given route in
	// one round trip, keyed by route id. Routes without an active version are
	// absent from the result.
	ActiveRouteVersions(ctx context.Context, routeIDs []string) (map[string]RouteVersion, error)
}

// ScheduleFilter narrows schedule queries.
type ScheduleFilter struct {
	CompanyID  string
	RouteID    *string
	ActiveOnly bool
}

// ScheduleRepository stores schedules with their stop-time overrides and
// per-date exceptions.
type ScheduleRepository interface {
	CreateSchedule(ctx context.Context, schedule Schedule) error
	UpdateSchedule(ctx context.Context, schedule Schedule) error
	GetSchedule(ctx context.Context, id string) (Schedule, error)
	ListSchedules(ctx context.Context, filter ScheduleFilter) ([]Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error
	// CreateException adds one per-date exception. Returns ErrDuplicate when
	// the (schedule, date) pair already carries one.
	CreateException(ctx context.Context, scheduleID string, exc scheduling.Exception) error
	DeleteException(ctx context.Context, scheduleID string, date dates.Date) error
}

// TripFilter narrows trip queries to a company, optionally a route and a
// service-date window.
type TripFilter struct {
	CompanyID string
	RouteID   *string
	From      *dates.Date
	To        *dates.Date
	Statuses  []TripStatus
}

// TripRepository stores materialized trips and their per-stop timings.
type TripRepository interface {
	// CreateTripWithStops inserts the trip and its stop times atomically.
	// Returns ErrDuplicate when the (schedule, date) occurrence is already
	// materialized.
	CreateTripWithStops(ctx context.Context, trip Trip, stops []TripStopTime) error
	GetTrip(ctx context.Context, id string) (Trip, error)
	// GetTripBySchedule finds the materialized trip of a schedule occurrence.
	GetTripBySchedule(ctx context.Context, scheduleID string, date dates.Date) (Trip, error)
	ListTrips(ctx context.Context, filter TripFilter) ([]Trip, error)
	UpdateTrip(ctx context.Context, trip Trip) error
	ListTripStops(ctx context.Context, tripID string) ([]TripStopTime, error)
	// UpdateTripStopPlan rewrites the planned times of a trip's stops,
	// leaving recorded actuals alone.
	UpdateTripStopPlan(ctx context.Context, tripID string, stops []TripStopTime) error
	RecordStopActual(ctx context.Context, tripID, stopID string, arrival, departure *time.Time) error
	// CountTripsForSchedule reports how many materialized trips reference the
	// schedule, used to refuse deleting schedules with history.
	CountTripsForSchedule(ctx context.Context, scheduleID string) (int, error)
}
