package persistence

import (
	"time"

	"github.com/example/intercity-bus/internal/calendar"
	"github.com/example/intercity-bus/internal/dates"
	"github.com/example/intercity-bus/internal/scheduling"
)

// Calendar is a named, company-scoped set of date rules (holidays, school
// days) referenced by schedule modifiers. Entries are loaded and stored with
// the calendar.
type Calendar struct {
	ID        string
	CompanyID *string // nil marks a system-wide calendar visible to every company
	Code      string
	Name      string
	Entries   []CalendarEntry
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CalendarEntry is one date rule of a calendar.
type CalendarEntry struct {
	ID         string
	CalendarID string
	Name       string
	Rule       calendar.Rule
}

// Route is the commercial identity of a bus line.
type Route struct {
	ID        string
	CompanyID string
	Code      string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RouteVersion is an immutable snapshot of a route's stop sequence. At most
// one version per route is active at a time; trips reference the version they
// were planned against.
type RouteVersion struct {
	ID        string
	RouteID   string
	Version   int
	Active    bool
	Stops     []scheduling.RouteStop
	CreatedAt time.Time
}

// ScheduleKind distinguishes one-off departures from recurring ones.
type ScheduleKind string

const (
	ScheduleSingle    ScheduleKind = "single"
	ScheduleRecurring ScheduleKind = "recurring"
)

// Schedule is a planned departure pattern on a route. Recurring schedules
// carry an RFC 5545 recurrence rule; single schedules run once on ValidFrom.
type Schedule struct {
	ID             string
	CompanyID      string
	RouteID        string
	Kind           ScheduleKind
	RecurrenceRule string
	ValidFrom      dates.Date
	ValidTo        *dates.Date
	Departure      scheduling.TimeOfDay
	Arrival        scheduling.TimeOfDay
	VehicleID      *string
	DriverID       *string
	Modifiers      []scheduling.Modifier
	StopTimes      []scheduling.ExplicitStopTime
	Exceptions     []scheduling.Exception
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Defaults bundles the schedule's default occurrence parameters.
func (s Schedule) Defaults() scheduling.Defaults {
	return scheduling.Defaults{
		Departure: s.Departure,
		Arrival:   s.Arrival,
		VehicleID: s.VehicleID,
		DriverID:  s.DriverID,
	}
}

// TripStatus is the lifecycle state of a materialized trip.
type TripStatus string

const (
	TripScheduled  TripStatus = "scheduled"
	TripInProgress TripStatus = "in_progress"
	TripCompleted  TripStatus = "completed"
	TripCancelled  TripStatus = "cancelled"
)

// Trip is a materialized (persisted) trip row. ScheduleID and ScheduleDate
// are set for trips materialized from a schedule occurrence and nil for
// manually created trips; the pair is unique so the same occurrence cannot
// be materialized twice.
type Trip struct {
	ID             string
	CompanyID      string
	RouteVersionID string
	ScheduleID     *string
	ScheduleDate   *dates.Date
	ServiceDate    dates.Date
	Status         TripStatus
	Departure      time.Time
	Arrival        time.Time
	VehicleID      *string
	DriverID       *string
	Note           *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TripStopTime is the planned and observed timing of one stop on a trip.
type TripStopTime struct {
	TripID           string
	StopID           string
	Name             string
	Sequence         int
	PlannedArrival   time.Time
	PlannedDeparture time.Time
	ActualArrival    *time.Time
	ActualDeparture  *time.Time
}
