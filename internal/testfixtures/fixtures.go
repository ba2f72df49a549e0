package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/intercity-bus/internal/application"
	"github.com/example/intercity-bus/internal/calendar"
	"github.com/example/intercity-bus/internal/dates"
	"github.com/example/intercity-bus/internal/persistence"
	"github.com/example/intercity-bus/internal/scheduling"
)

var (
	calendarCounter uint64
	routeCounter    uint64
	scheduleCounter uint64
	tripCounter     uint64
)

var referenceTime = time.Date(2026, time.June, 1, 8, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// DefaultCompanyID is the carrier all fixtures belong to unless overridden.
const DefaultCompanyID = "carrier-001"

// MustDate parses an ISO date and panics on failure. Fixtures only feed it
// literals.
func MustDate(iso string) dates.Date {
	d, err := dates.Parse(iso)
	if err != nil {
		panic(fmt.Sprintf("testfixtures: bad date %q: %v", iso, err))
	}
	return d
}

// MustTimeOfDay parses an HH:MM literal and panics on failure.
func MustTimeOfDay(hhmm string) scheduling.TimeOfDay {
	t, err := scheduling.ParseTimeOfDay(hhmm)
	if err != nil {
		panic(fmt.Sprintf("testfixtures: bad time of day %q: %v", hhmm, err))
	}
	return t
}

// ---------------------------- Calendar fixtures ---------------------------

// CalendarFixture represents a deterministic calendar record.
type CalendarFixture struct {
	ID        string
	CompanyID string
	Code      string
	Name      string
	Entries   []persistence.CalendarEntry
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CalendarOption configures the generated calendar fixture.
type CalendarOption func(*CalendarFixture)

// NewCalendarFixture returns a deterministic calendar fixture. The default
// entries describe a fixed holiday and an Easter relative one.
func NewCalendarFixture(opts ...CalendarOption) CalendarFixture {
	idx := atomic.AddUint64(&calendarCounter, 1)
	id := fmt.Sprintf("cal-%03d", idx)
	fixture := CalendarFixture{
		ID:        id,
		CompanyID: DefaultCompanyID,
		Code:      fmt.Sprintf("holidays-%03d", idx),
		Name:      fmt.Sprintf("Holidays %03d", idx),
		Entries: []persistence.CalendarEntry{
			{ID: id + "-e1", CalendarID: id, Name: "Christmas", Rule: calendar.Fixed{Month: time.December, Day: 25}},
			{ID: id + "-e2", CalendarID: id, Name: "Easter Monday", Rule: calendar.EasterRelative{Offset: 1}},
		},
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithCalendarID overrides the generated calendar ID.
func WithCalendarID(id string) CalendarOption {
	return func(f *CalendarFixture) {
		f.ID = id
	}
}

// WithCalendarCompany sets the owning carrier.
func WithCalendarCompany(companyID string) CalendarOption {
	return func(f *CalendarFixture) {
		f.CompanyID = companyID
	}
}

// WithCalendarCode overrides the calendar code.
func WithCalendarCode(code string) CalendarOption {
	return func(f *CalendarFixture) {
		f.Code = code
	}
}

// WithCalendarEntries replaces the generated entries.
func WithCalendarEntries(entries ...persistence.CalendarEntry) CalendarOption {
	return func(f *CalendarFixture) {
		f.Entries = append([]persistence.CalendarEntry(nil), entries...)
	}
}

// WithCalendarUpdatedAt sets the updated timestamp. Projection caching keys
// off this value.
func WithCalendarUpdatedAt(t time.Time) CalendarOption {
	return func(f *CalendarFixture) {
		f.UpdatedAt = t
	}
}

// Persistence returns the fixture as a persistence.Calendar value. An empty
// company marks the calendar system-wide.
func (f CalendarFixture) Persistence() persistence.Calendar {
	var companyID *string
	if f.CompanyID != "" {
		company := f.CompanyID
		companyID = &company
	}
	return persistence.Calendar{
		ID:        f.ID,
		CompanyID: companyID,
		Code:      f.Code,
		Name:      f.Name,
		Entries:   append([]persistence.CalendarEntry(nil), f.Entries...),
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

// Input returns the fixture as an application.CalendarInput.
func (f CalendarFixture) Input() application.CalendarInput {
	input := application.CalendarInput{Code: f.Code, Name: f.Name}
	for _, entry := range f.Entries {
		input.Entries = append(input.Entries, application.CalendarEntryInput{Name: entry.Name, Rule: entry.Rule})
	}
	return input
}

// ----------------------------- Route fixtures -----------------------------

// RouteFixture represents a deterministic route together with one stop
// sequence.
type RouteFixture struct {
	ID        string
	CompanyID string
	Code      string
	Name      string
	VersionID string
	Version   int
	Active    bool
	Stops     []scheduling.RouteStop
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RouteOption configures the generated route fixture.
type RouteOption func(*RouteFixture)

// NewRouteFixture returns a deterministic route fixture with a two-stop
// active version.
func NewRouteFixture(opts ...RouteOption) RouteFixture {
	idx := atomic.AddUint64(&routeCounter, 1)
	id := fmt.Sprintf("route-%03d", idx)
	fixture := RouteFixture{
		ID:        id,
		CompanyID: DefaultCompanyID,
		Code:      fmt.Sprintf("R%03d", idx),
		Name:      fmt.Sprintf("Route %03d", idx),
		VersionID: id + "-v1",
		Version:   1,
		Active:    true,
		Stops: []scheduling.RouteStop{
			{StopID: "stop-a", Name: "Origin", Sequence: 1, DurationFromStartMin: 0},
			{StopID: "stop-b", Name: "Terminus", Sequence: 2, DistanceFromStartM: 85000, DurationFromStartMin: 90},
		},
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithRouteID overrides the generated route ID.
func WithRouteID(id string) RouteOption {
	return func(f *RouteFixture) {
		f.ID = id
	}
}

// WithRouteCompany sets the owning carrier.
func WithRouteCompany(companyID string) RouteOption {
	return func(f *RouteFixture) {
		f.CompanyID = companyID
	}
}

// WithRouteCode overrides the route code.
func WithRouteCode(code string) RouteOption {
	return func(f *RouteFixture) {
		f.Code = code
	}
}

// WithRouteStops replaces the stop sequence on the fixture's version.
func WithRouteStops(stops ...scheduling.RouteStop) RouteOption {
	return func(f *RouteFixture) {
		f.Stops = append([]scheduling.RouteStop(nil), stops...)
	}
}

// WithRouteVersion sets the version number and active flag.
func WithRouteVersion(version int, active bool) RouteOption {
	return func(f *RouteFixture) {
		f.Version = version
		f.Active = active
		f.VersionID = fmt.Sprintf("%s-v%d", f.ID, version)
	}
}

// Persistence returns the fixture as a persistence.Route value.
func (f RouteFixture) Persistence() persistence.Route {
	return persistence.Route{
		ID:        f.ID,
		CompanyID: f.CompanyID,
		Code:      f.Code,
		Name:      f.Name,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

// PersistenceVersion returns the fixture's stop sequence as a
// persistence.RouteVersion value.
func (f RouteFixture) PersistenceVersion() persistence.RouteVersion {
	return persistence.RouteVersion{
		ID:        f.VersionID,
		RouteID:   f.ID,
		Version:   f.Version,
		Active:    f.Active,
		Stops:     append([]scheduling.RouteStop(nil), f.Stops...),
		CreatedAt: f.CreatedAt,
	}
}

// Input returns the fixture as an application.RouteInput.
func (f RouteFixture) Input() application.RouteInput {
	return application.RouteInput{Code: f.Code, Name: f.Name}
}

// VersionInput returns the fixture's stop sequence as an
// application.RouteVersionInput.
func (f RouteFixture) VersionInput() application.RouteVersionInput {
	return application.RouteVersionInput{
		Activate: f.Active,
		Stops:    append([]scheduling.RouteStop(nil), f.Stops...),
	}
}

// --------------------------- Schedule fixtures ----------------------------

// ScheduleFixture represents a deterministic schedule record.
type ScheduleFixture struct {
	ID             string
	CompanyID      string
	RouteID        string
	Kind           persistence.ScheduleKind
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

// ScheduleFixtureOption configures the generated schedule fixture.
type ScheduleFixtureOption func(*ScheduleFixture)

// NewScheduleFixture returns a deterministic daily recurring schedule valid
// through June 2026.
func NewScheduleFixture(opts ...ScheduleFixtureOption) ScheduleFixture {
	idx := atomic.AddUint64(&scheduleCounter, 1)
	validTo := MustDate("2026-06-30")
	fixture := ScheduleFixture{
		ID:             fmt.Sprintf("sched-%03d", idx),
		CompanyID:      DefaultCompanyID,
		RouteID:        fmt.Sprintf("route-%03d", idx),
		Kind:           persistence.ScheduleRecurring,
		RecurrenceRule: "FREQ=DAILY",
		ValidFrom:      MustDate("2026-06-01"),
		ValidTo:        &validTo,
		Departure:      MustTimeOfDay("08:00"),
		Arrival:        MustTimeOfDay("09:30"),
		Active:         true,
		CreatedAt:      referenceTime,
		UpdatedAt:      referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithScheduleID overrides the generated schedule ID.
func WithScheduleID(id string) ScheduleFixtureOption {
	return func(f *ScheduleFixture) {
		f.ID = id
	}
}

// WithScheduleCompany sets the owning carrier.
func WithScheduleCompany(companyID string) ScheduleFixtureOption {
	return func(f *ScheduleFixture) {
		f.CompanyID = companyID
	}
}

// WithScheduleRoute sets the route the schedule runs on.
func WithScheduleRoute(routeID string) ScheduleFixtureOption {
	return func(f *ScheduleFixture) {
		f.RouteID = routeID
	}
}

// WithScheduleSingle turns the fixture into a one-off schedule on the given
// date.
func WithScheduleSingle(date dates.Date) ScheduleFixtureOption {
	return func(f *ScheduleFixture) {
		f.Kind = persistence.ScheduleSingle
		f.RecurrenceRule = ""
		f.ValidFrom = date
		f.ValidTo = nil
	}
}

// WithScheduleRule sets the recurrence rule.
func WithScheduleRule(rule string) ScheduleFixtureOption {
	return func(f *ScheduleFixture) {
		f.RecurrenceRule = rule
	}
}

// WithScheduleValidity sets the validity window.
func WithScheduleValidity(from dates.Date, to *dates.Date) ScheduleFixtureOption {
	return func(f *ScheduleFixture) {
		f.ValidFrom = from
		f.ValidTo = to
	}
}

// WithScheduleTimes sets departure and arrival.
func WithScheduleTimes(departure, arrival scheduling.TimeOfDay) ScheduleFixtureOption {
	return func(f *ScheduleFixture) {
		f.Departure = departure
		f.Arrival = arrival
	}
}

// WithScheduleModifiers sets the calendar modifiers.
func WithScheduleModifiers(modifiers ...scheduling.Modifier) ScheduleFixtureOption {
	return func(f *ScheduleFixture) {
		f.Modifiers = append([]scheduling.Modifier(nil), modifiers...)
	}
}

// WithScheduleExceptions sets the per-date exceptions.
func WithScheduleExceptions(exceptions ...scheduling.Exception) ScheduleFixtureOption {
	return func(f *ScheduleFixture) {
		f.Exceptions = append([]scheduling.Exception(nil), exceptions...)
	}
}

// WithScheduleVehicle sets the default vehicle assignment.
func WithScheduleVehicle(vehicleID string) ScheduleFixtureOption {
	return func(f *ScheduleFixture) {
		id := vehicleID
		f.VehicleID = &id
	}
}

// WithScheduleInactive deactivates the schedule.
func WithScheduleInactive() ScheduleFixtureOption {
	return func(f *ScheduleFixture) {
		f.Active = false
	}
}

// Persistence returns the fixture as a persistence.Schedule value.
func (f ScheduleFixture) Persistence() persistence.Schedule {
	return persistence.Schedule{
		ID:             f.ID,
		CompanyID:      f.CompanyID,
		RouteID:        f.RouteID,
		Kind:           f.Kind,
		RecurrenceRule: f.RecurrenceRule,
		ValidFrom:      f.ValidFrom,
		ValidTo:        f.ValidTo,
		Departure:      f.Departure,
		Arrival:        f.Arrival,
		VehicleID:      f.VehicleID,
		DriverID:       f.DriverID,
		Modifiers:      append([]scheduling.Modifier(nil), f.Modifiers...),
		StopTimes:      append([]scheduling.ExplicitStopTime(nil), f.StopTimes...),
		Exceptions:     append([]scheduling.Exception(nil), f.Exceptions...),
		Active:         f.Active,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
	}
}

// Input returns the fixture as an application.ScheduleInput.
func (f ScheduleFixture) Input() application.ScheduleInput {
	return application.ScheduleInput{
		RouteID:        f.RouteID,
		Kind:           string(f.Kind),
		RecurrenceRule: f.RecurrenceRule,
		ValidFrom:      f.ValidFrom,
		ValidTo:        f.ValidTo,
		Departure:      f.Departure.String(),
		Arrival:        f.Arrival.String(),
		VehicleID:      f.VehicleID,
		DriverID:       f.DriverID,
		Modifiers:      append([]scheduling.Modifier(nil), f.Modifiers...),
		StopTimes:      append([]scheduling.ExplicitStopTime(nil), f.StopTimes...),
		Exceptions:     append([]scheduling.Exception(nil), f.Exceptions...),
		Active:         f.Active,
	}
}

// ------------------------------ Trip fixtures -----------------------------

// TripFixture represents a deterministic materialized trip record.
type TripFixture struct {
	ID             string
	CompanyID      string
	RouteVersionID string
	ScheduleID     *string
	ScheduleDate   *dates.Date
	ServiceDate    dates.Date
	Status         persistence.TripStatus
	Departure      time.Time
	Arrival        time.Time
	VehicleID      *string
	DriverID       *string
	Note           *string
}

// TripOption configures the generated trip fixture.
type TripOption func(*TripFixture)

// NewTripFixture returns a deterministic scheduled trip on 2026-06-01.
func NewTripFixture(opts ...TripOption) TripFixture {
	idx := atomic.AddUint64(&tripCounter, 1)
	departure := time.Date(2026, time.June, 1, 8, 0, 0, 0, time.UTC)
	fixture := TripFixture{
		ID:             fmt.Sprintf("trip-%03d", idx),
		CompanyID:      DefaultCompanyID,
		RouteVersionID: fmt.Sprintf("route-%03d-v1", idx),
		ServiceDate:    MustDate("2026-06-01"),
		Status:         persistence.TripScheduled,
		Departure:      departure,
		Arrival:        departure.Add(90 * time.Minute),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithTripID overrides the generated trip ID.
func WithTripID(id string) TripOption {
	return func(f *TripFixture) {
		f.ID = id
	}
}

// WithTripCompany sets the owning carrier.
func WithTripCompany(companyID string) TripOption {
	return func(f *TripFixture) {
		f.CompanyID = companyID
	}
}

// WithTripSchedule ties the trip to a schedule occurrence.
func WithTripSchedule(scheduleID string, date dates.Date) TripOption {
	return func(f *TripFixture) {
		id := scheduleID
		d := date
		f.ScheduleID = &id
		f.ScheduleDate = &d
		f.ServiceDate = date
	}
}

// WithTripRouteVersion sets the route version the trip runs on.
func WithTripRouteVersion(versionID string) TripOption {
	return func(f *TripFixture) {
		f.RouteVersionID = versionID
	}
}

// WithTripStatus sets the lifecycle state.
func WithTripStatus(status persistence.TripStatus) TripOption {
	return func(f *TripFixture) {
		f.Status = status
	}
}

// WithTripTimes sets departure and arrival instants.
func WithTripTimes(departure, arrival time.Time) TripOption {
	return func(f *TripFixture) {
		f.Departure = departure
		f.Arrival = arrival
	}
}

// WithTripVehicle sets the vehicle assignment.
func WithTripVehicle(vehicleID string) TripOption {
	return func(f *TripFixture) {
		id := vehicleID
		f.VehicleID = &id
	}
}

// Persistence returns the fixture as a persistence.Trip value.
func (f TripFixture) Persistence() persistence.Trip {
	var scheduleID *string
	if f.ScheduleID != nil {
		id := *f.ScheduleID
		scheduleID = &id
	}
	var scheduleDate *dates.Date
	if f.ScheduleDate != nil {
		d := *f.ScheduleDate
		scheduleDate = &d
	}
	return persistence.Trip{
		ID:             f.ID,
		CompanyID:      f.CompanyID,
		RouteVersionID: f.RouteVersionID,
		ScheduleID:     scheduleID,
		ScheduleDate:   scheduleDate,
		ServiceDate:    f.ServiceDate,
		Status:         f.Status,
		Departure:      f.Departure,
		Arrival:        f.Arrival,
		VehicleID:      copyStringPtr(f.VehicleID),
		DriverID:       copyStringPtr(f.DriverID),
		Note:           copyStringPtr(f.Note),
	}
}

// helper to deep copy optional strings.
func copyStringPtr(src *string) *string {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}
