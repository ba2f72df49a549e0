package application

import (
	"time"

	"github.com/example/intercity-bus/internal/calendar"
	"github.com/example/intercity-bus/internal/dates"
	"github.com/example/intercity-bus/internal/scheduling"
)

// CalendarEntryInput captures caller provided calendar entry fields.
type CalendarEntryInput struct {
	Name string
	Rule calendar.Rule
}

// CalendarInput captures caller provided calendar fields.
type CalendarInput struct {
	Code    string
	Name    string
	Entries []CalendarEntryInput
}

// CreateCalendarParams wraps the data required to create a calendar.
type CreateCalendarParams struct {
	CompanyID string
	Input     CalendarInput
}

// UpdateCalendarParams wraps the data required to update a calendar.
type UpdateCalendarParams struct {
	CompanyID  string
	CalendarID string
	Input      CalendarInput
}

// RouteInput captures caller provided route fields.
type RouteInput struct {
	Code string
	Name string
}

// RouteVersionInput captures a new stop sequence for a route.
type RouteVersionInput struct {
	Activate bool
	Stops    []scheduling.RouteStop
}

// ScheduleInput captures caller provided schedule fields.
type ScheduleInput struct {
	RouteID        string
	Kind           string
	RecurrenceRule string
	ValidFrom      dates.Date
	ValidTo        *dates.Date
	Departure      string
	Arrival        string
	VehicleID      *string
	DriverID       *string
	Modifiers      []scheduling.Modifier
	StopTimes      []scheduling.ExplicitStopTime
	Exceptions     []scheduling.Exception
	Active         bool
}

// CreateScheduleParams wraps the data required to create a schedule.
type CreateScheduleParams struct {
	CompanyID string
	Input     ScheduleInput
}

// UpdateScheduleParams wraps the data required to update an existing schedule.
type UpdateScheduleParams struct {
	CompanyID  string
	ScheduleID string
	Input      ScheduleInput
}

// StopTimeView is the projected or persisted timing of one stop on a trip.
type StopTimeView struct {
	StopID          string     `json:"stop_id"`
	Name            string     `json:"name"`
	Sequence        int        `json:"sequence"`
	Arrival         time.Time  `json:"arrival"`
	Departure       time.Time  `json:"departure"`
	ActualArrival   *time.Time `json:"actual_arrival,omitempty"`
	ActualDeparture *time.Time `json:"actual_departure,omitempty"`
}

// TripView is the unified projection of a trip, virtual or materialized.
// Virtual trips carry a composite identifier and exist only in the response.
type TripView struct {
	ID             string         `json:"id"`
	Virtual        bool           `json:"virtual"`
	RouteID        string         `json:"route_id"`
	RouteVersionID string         `json:"route_version_id"`
	ScheduleID     *string        `json:"schedule_id,omitempty"`
	ServiceDate    dates.Date     `json:"service_date"`
	Status         string         `json:"status"`
	Departure      time.Time      `json:"departure"`
	Arrival        time.Time      `json:"arrival"`
	VehicleID      *string        `json:"vehicle_id,omitempty"`
	DriverID       *string        `json:"driver_id,omitempty"`
	Modified       bool           `json:"modified,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	Note           *string        `json:"note,omitempty"`
	StopTimes      []StopTimeView `json:"stop_times,omitempty"`
}

// Warning is a non-fatal finding surfaced alongside a projection.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ProjectionResult is the merged timetable for a window, with any
// degradations that occurred while computing it.
type ProjectionResult struct {
	Trips    []TripView `json:"trips"`
	Warnings []Warning  `json:"warnings,omitempty"`
}

// ProjectParams wraps the data required to project trips over a window.
// DriverID and Status narrow the merged result; a Status other than
// "scheduled" cannot match any virtual occurrence.
type ProjectParams struct {
	CompanyID string
	RouteID   *string
	DriverID  *string
	Status    *string
	From      dates.Date
	To        dates.Date
}

// MaterializeParams identifies the schedule occurrence to persist.
type MaterializeParams struct {
	CompanyID  string
	ScheduleID string
	Date       dates.Date
}

// ManualTripInput captures a trip created outside any schedule.
type ManualTripInput struct {
	RouteID     string
	ServiceDate dates.Date
	Departure   string
	Arrival     string
	VehicleID   *string
	DriverID    *string
	Note        *string
}

// CreateManualTripParams wraps the data required to create a manual trip.
type CreateManualTripParams struct {
	CompanyID string
	Input     ManualTripInput
}

// AssignParams wraps a vehicle or driver assignment for a trip.
type AssignParams struct {
	CompanyID string
	TripID    string
	VehicleID *string
	DriverID  *string
}

// UpdateTimesParams retimes a trip that has not departed yet.
type UpdateTimesParams struct {
	CompanyID string
	TripID    string
	Departure time.Time
	Arrival   time.Time
}

// StopActualParams records observed times for one stop of a running trip.
type StopActualParams struct {
	CompanyID string
	TripID    string
	StopID    string
	Arrival   *time.Time
	Departure *time.Time
}
