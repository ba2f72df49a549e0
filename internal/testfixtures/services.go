package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/intercity-bus/internal/application"
	"github.com/example/intercity-bus/internal/recurrence"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// CalendarServiceDeps captures dependencies for constructing a calendar
// service.
type CalendarServiceDeps struct {
	Calendars   application.CalendarStore
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewCalendarService builds a calendar service using the supplied
// dependencies combined with the factory defaults.
func (f *ServiceFactory) NewCalendarService(deps CalendarServiceDeps) *application.CalendarService {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	return application.NewCalendarService(deps.Calendars, idGen, now, deps.Logger)
}

// RouteServiceDeps captures dependencies for constructing a route service.
type RouteServiceDeps struct {
	Routes      application.RouteStore
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewRouteService builds a route service using the supplied dependencies.
func (f *ServiceFactory) NewRouteService(deps RouteServiceDeps) *application.RouteService {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	return application.NewRouteService(deps.Routes, idGen, now, deps.Logger)
}

// ScheduleServiceDeps captures dependencies for constructing a schedule
// service.
type ScheduleServiceDeps struct {
	Schedules   application.ScheduleStore
	Routes      application.RouteVersionResolver
	Trips       application.TripCounter
	Expander    *recurrence.Expander
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewScheduleService builds a schedule service using the supplied
// dependencies.
func (f *ServiceFactory) NewScheduleService(deps ScheduleServiceDeps) *application.ScheduleService {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	return application.NewScheduleService(
		deps.Schedules,
		deps.Routes,
		deps.Trips,
		deps.Expander,
		idGen,
		now,
		deps.Logger,
	)
}

// TripServiceDeps captures dependencies for constructing a trip service.
type TripServiceDeps struct {
	Trips       application.TripStore
	Schedules   application.ScheduleStore
	Routes      application.RouteVersionSource
	Calendars   application.CalendarSource
	Expander    *recurrence.Expander
	Publisher   application.Publisher
	Metrics     application.Metrics
	Location    *time.Location
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewTripService builds a trip service using the supplied dependencies.
func (f *ServiceFactory) NewTripService(deps TripServiceDeps) *application.TripService {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	return application.NewTripService(
		deps.Trips,
		deps.Schedules,
		deps.Routes,
		deps.Calendars,
		deps.Expander,
		deps.Publisher,
		deps.Metrics,
		loc,
		idGen,
		now,
		deps.Logger,
	)
}
