package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/intercity-bus/internal/calendar"
	"github.com/example/intercity-bus/internal/dates"
	"github.com/example/intercity-bus/internal/persistence"
	"github.com/example/intercity-bus/internal/scheduling"
)

type stubTripStore struct {
	mu      sync.Mutex
	trips   map[string]persistence.Trip
	stops   map[string][]persistence.TripStopTime
	creates int
}

func newStubTripStore() *stubTripStore {
	return &stubTripStore{
		trips: make(map[string]persistence.Trip),
		stops: make(map[string][]persistence.TripStopTime),
	}
}

func (s *stubTripStore) CreateTripWithStops(_ context.Context, trip persistence.Trip, stops []persistence.TripStopTime) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	for _, existing := range s.trips {
		if existing.ScheduleID != nil && trip.ScheduleID != nil &&
			*existing.ScheduleID == *trip.ScheduleID && existing.ScheduleDate.Equal(*trip.ScheduleDate) {
			return persistence.ErrDuplicate
		}
	}
	s.trips[trip.ID] = trip
	s.stops[trip.ID] = stops
	return nil
}

func (s *stubTripStore) GetTrip(_ context.Context, id string) (persistence.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trip, ok := s.trips[id]
	if !ok {
		return persistence.Trip{}, persistence.ErrNotFound
	}
	return trip, nil
}

func (s *stubTripStore) GetTripBySchedule(_ context.Context, scheduleID string, date dates.Date) (persistence.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, trip := range s.trips {
		if trip.ScheduleID != nil && *trip.ScheduleID == scheduleID && trip.ScheduleDate.Equal(date) {
			return trip, nil
		}
	}
	return persistence.Trip{}, persistence.ErrNotFound
}

func (s *stubTripStore) ListTrips(_ context.Context, filter persistence.TripFilter) ([]persistence.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []persistence.Trip
	for _, trip := range s.trips {
		if trip.CompanyID != filter.CompanyID {
			continue
		}
		if filter.From != nil && trip.ServiceDate.Before(*filter.From) {
			continue
		}
		if filter.To != nil && trip.ServiceDate.After(*filter.To) {
			continue
		}
		out = append(out, trip)
	}
	return out, nil
}

func (s *stubTripStore) UpdateTrip(_ context.Context, trip persistence.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trips[trip.ID]; !ok {
		return persistence.ErrNotFound
	}
	s.trips[trip.ID] = trip
	return nil
}

func (s *stubTripStore) ListTripStops(_ context.Context, tripID string) ([]persistence.TripStopTime, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops[tripID], nil
}

func (s *stubTripStore) UpdateTripStopPlan(_ context.Context, tripID string, stops []persistence.TripStopTime) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trips[tripID]; !ok {
		return persistence.ErrNotFound
	}
	s.stops[tripID] = stops
	return nil
}

func (s *stubTripStore) RecordStopActual(_ context.Context, tripID, stopID string, arrival, departure *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stops, ok := s.stops[tripID]
	if !ok {
		return persistence.ErrNotFound
	}
	for i, stop := range stops {
		if stop.StopID == stopID {
			if arrival != nil {
				stops[i].ActualArrival = arrival
			}
			if departure != nil {
				stops[i].ActualDeparture = departure
			}
			return nil
		}
	}
	return persistence.ErrNotFound
}

type stubScheduleSource struct {
	schedules map[string]persistence.Schedule
}

func (s *stubScheduleSource) CreateSchedule(_ context.Context, schedule persistence.Schedule) error {
	if _, exists := s.schedules[schedule.ID]; exists {
		return persistence.ErrDuplicate
	}
	s.schedules[schedule.ID] = schedule
	return nil
}

func (s *stubScheduleSource) UpdateSchedule(_ context.Context, schedule persistence.Schedule) error {
	if _, exists := s.schedules[schedule.ID]; !exists {
		return persistence.ErrNotFound
	}
	s.schedules[schedule.ID] = schedule
	return nil
}

func (s *stubScheduleSource) DeleteSchedule(_ context.Context, id string) error {
	if _, exists := s.schedules[id]; !exists {
		return persistence.ErrNotFound
	}
	delete(s.schedules, id)
	return nil
}

func (s *stubScheduleSource) GetSchedule(_ context.Context, id string) (persistence.Schedule, error) {
	schedule, ok := s.schedules[id]
	if !ok {
		return persistence.Schedule{}, persistence.ErrNotFound
	}
	return schedule, nil
}

func (s *stubScheduleSource) CreateException(_ context.Context, scheduleID string, exc scheduling.Exception) error {
	schedule, ok := s.schedules[scheduleID]
	if !ok {
		return persistence.ErrForeignKeyViolation
	}
	for _, existing := range schedule.Exceptions {
		if existing.On() == exc.On() {
			return persistence.ErrDuplicate
		}
	}
	schedule.Exceptions = append(schedule.Exceptions, exc)
	s.schedules[scheduleID] = schedule
	return nil
}

func (s *stubScheduleSource) DeleteException(_ context.Context, scheduleID string, date dates.Date) error {
	schedule, ok := s.schedules[scheduleID]
	if !ok {
		return persistence.ErrNotFound
	}
	for i, existing := range schedule.Exceptions {
		if existing.On() == date {
			schedule.Exceptions = append(schedule.Exceptions[:i], schedule.Exceptions[i+1:]...)
			s.schedules[scheduleID] = schedule
			return nil
		}
	}
	return persistence.ErrNotFound
}

func (s *stubScheduleSource) ListSchedules(_ context.Context, filter persistence.ScheduleFilter) ([]persistence.Schedule, error) {
	var out []persistence.Schedule
	for _, schedule := range s.schedules {
		if schedule.CompanyID != filter.CompanyID {
			continue
		}
		if filter.ActiveOnly && !schedule.Active {
			continue
		}
		out = append(out, schedule)
	}
	return out, nil
}

type stubRouteSource struct {
	byID   map[string]persistence.RouteVersion
	active map[string]persistence.RouteVersion
}

func (s *stubRouteSource) GetRouteVersion(_ context.Context, id string) (persistence.RouteVersion, error) {
	version, ok := s.byID[id]
	if !ok {
		return persistence.RouteVersion{}, persistence.ErrNotFound
	}
	return version, nil
}

func (s *stubRouteSource) ActiveRouteVersion(_ context.Context, routeID string) (persistence.RouteVersion, error) {
	version, ok := s.active[routeID]
	if !ok {
		return persistence.RouteVersion{}, persistence.ErrNotFound
	}
	return version, nil
}

func (s *stubRouteSource) ActiveRouteVersions(_ context.Context, routeIDs []string) (map[string]persistence.RouteVersion, error) {
	out := make(map[string]persistence.RouteVersion, len(routeIDs))
	for _, id := range routeIDs {
		if version, ok := s.active[id]; ok {
			out[id] = version
		}
	}
	return out, nil
}

type stubCalendarSource struct {
	calendars map[string]persistence.Calendar
}

func (s *stubCalendarSource) GetCalendar(_ context.Context, id string) (persistence.Calendar, error) {
	cal, ok := s.calendars[id]
	if !ok {
		return persistence.Calendar{}, persistence.ErrNotFound
	}
	return cal, nil
}

type countingMetrics struct {
	mu          sync.Mutex
	materalized int
	conflicts   int
	parseFails  int
	calFails    int
	projections int
}

func (m *countingMetrics) TripMaterialized() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.materalized++
}

func (m *countingMetrics) MaterializeConflict() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts++
}

func (m *countingMetrics) RecurrenceParseFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parseFails++
}

func (m *countingMetrics) CalendarResolveFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calFails++
}

func (m *countingMetrics) ObserveProjection(time.Duration, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projections++
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event string, _ TripView) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

type tripFixture struct {
	service   *TripService
	trips     *stubTripStore
	schedules *stubScheduleSource
	routes    *stubRouteSource
	calendars *stubCalendarSource
	metrics   *countingMetrics
	publisher *recordingPublisher
}

func newTripFixture(t *testing.T) *tripFixture {
	t.Helper()

	version := persistence.RouteVersion{
		ID:      "rv-1",
		RouteID: "route-1",
		Version: 1,
		Active:  true,
		Stops: []scheduling.RouteStop{
			{StopID: "stop-a", Name: "Warszawa Zachodnia", Sequence: 1, DurationFromStartMin: 0},
			{StopID: "stop-b", Name: "Lodz Fabryczna", Sequence: 2, DurationFromStartMin: 90},
		},
	}

	f := &tripFixture{
		trips: newStubTripStore(),
		schedules: &stubScheduleSource{schedules: map[string]persistence.Schedule{
			"sched-1": dailySchedule("sched-1"),
		}},
		routes: &stubRouteSource{
			byID:   map[string]persistence.RouteVersion{"rv-1": version},
			active: map[string]persistence.RouteVersion{"route-1": version},
		},
		calendars: &stubCalendarSource{calendars: map[string]persistence.Calendar{}},
		metrics:   &countingMetrics{},
		publisher: &recordingPublisher{},
	}

	seq := 0
	idGen := func() string {
		seq++
		return fmt.Sprintf("trip-%d", seq)
	}

	f.service = NewTripService(f.trips, f.schedules, f.routes, f.calendars, nil,
		f.publisher, f.metrics, time.UTC, idGen, nil, nil)
	return f
}

func dailySchedule(id string) persistence.Schedule {
	dep, _ := scheduling.ParseTimeOfDay("08:00")
	arr, _ := scheduling.ParseTimeOfDay("09:30")
	to := dates.MustParse("2026-06-30")
	return persistence.Schedule{
		ID:             id,
		CompanyID:      "co-1",
		RouteID:        "route-1",
		Kind:           persistence.ScheduleRecurring,
		RecurrenceRule: "FREQ=DAILY",
		ValidFrom:      dates.MustParse("2026-06-01"),
		ValidTo:        &to,
		Departure:      dep,
		Arrival:        arr,
		Active:         true,
	}
}

func TestProjectMergesMaterializedOverVirtual(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)
	ctx := context.Background()

	view, err := f.service.Materialize(ctx, MaterializeParams{
		CompanyID:  "co-1",
		ScheduleID: "sched-1",
		Date:       dates.MustParse("2026-06-02"),
	})
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}

	result, err := f.service.Project(ctx, ProjectParams{
		CompanyID: "co-1",
		From:      dates.MustParse("2026-06-01"),
		To:        dates.MustParse("2026-06-03"),
	})
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if len(result.Trips) != 3 {
		t.Fatalf("Project() returned %d trips, want 3", len(result.Trips))
	}

	for _, trip := range result.Trips {
		switch trip.ServiceDate.String() {
		case "2026-06-02":
			if trip.Virtual {
				t.Errorf("materialized occurrence projected as virtual")
			}
			if trip.ID != view.ID {
				t.Errorf("trip ID = %q, want %q", trip.ID, view.ID)
			}
		default:
			if !trip.Virtual {
				t.Errorf("occurrence on %s should be virtual", trip.ServiceDate)
			}
			wantID := scheduling.VirtualID{ScheduleID: "sched-1", Date: trip.ServiceDate}.String()
			if trip.ID != wantID {
				t.Errorf("trip ID = %q, want %q", trip.ID, wantID)
			}
		}
		if len(trip.StopTimes) != 2 {
			t.Errorf("trip on %s has %d stop times, want 2", trip.ServiceDate, len(trip.StopTimes))
		}
	}
}

func TestProjectTripsAreOrderedByDeparture(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)

	result, err := f.service.Project(context.Background(), ProjectParams{
		CompanyID: "co-1",
		From:      dates.MustParse("2026-06-01"),
		To:        dates.MustParse("2026-06-05"),
	})
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	for i := 1; i < len(result.Trips); i++ {
		if result.Trips[i].Departure.Before(result.Trips[i-1].Departure) {
			t.Fatalf("trips out of order at index %d", i)
		}
	}
}

func TestProjectSkipExceptionRemovesOccurrence(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)

	schedule := f.schedules.schedules["sched-1"]
	schedule.Exceptions = []scheduling.Exception{
		scheduling.Skip{Date: dates.MustParse("2026-06-02"), Reason: "road closure"},
	}
	f.schedules.schedules["sched-1"] = schedule

	result, err := f.service.Project(context.Background(), ProjectParams{
		CompanyID: "co-1",
		From:      dates.MustParse("2026-06-01"),
		To:        dates.MustParse("2026-06-03"),
	})
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if len(result.Trips) != 2 {
		t.Fatalf("Project() returned %d trips, want 2", len(result.Trips))
	}
	for _, trip := range result.Trips {
		if trip.ServiceDate.Equal(dates.MustParse("2026-06-02")) {
			t.Errorf("skipped occurrence still projected")
		}
	}
}

func TestProjectUnresolvableCalendarDegradesToWarning(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)

	schedule := f.schedules.schedules["sched-1"]
	schedule.Modifiers = []scheduling.Modifier{
		scheduling.ExcludeCalendar{CalendarID: "cal-missing"},
	}
	f.schedules.schedules["sched-1"] = schedule

	result, err := f.service.Project(context.Background(), ProjectParams{
		CompanyID: "co-1",
		From:      dates.MustParse("2026-06-01"),
		To:        dates.MustParse("2026-06-03"),
	})
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if len(result.Trips) != 3 {
		t.Errorf("dangling calendar modifier must no-op, got %d trips, want 3", len(result.Trips))
	}
	found := false
	for _, w := range result.Warnings {
		if w.Code == "calendar_unresolved" {
			found = true
		}
	}
	if !found {
		t.Errorf("missing calendar_unresolved warning, got %v", result.Warnings)
	}
	if f.metrics.calFails != 1 {
		t.Errorf("calendar resolve failures = %d, want 1", f.metrics.calFails)
	}
}

func TestProjectResolvesSystemCalendar(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)

	f.calendars.calendars["cal-sys"] = persistence.Calendar{
		ID:   "cal-sys",
		Code: "national-holidays",
		Name: "National holidays",
		Entries: []persistence.CalendarEntry{
			{ID: "cal-sys-e1", CalendarID: "cal-sys", Name: "Corpus Christi", Rule: calendar.Fixed{Month: time.June, Day: 2, Year: 2026}},
		},
	}
	schedule := f.schedules.schedules["sched-1"]
	schedule.Modifiers = []scheduling.Modifier{
		scheduling.ExcludeCalendar{CalendarID: "cal-sys"},
	}
	f.schedules.schedules["sched-1"] = schedule

	result, err := f.service.Project(context.Background(), ProjectParams{
		CompanyID: "co-1",
		From:      dates.MustParse("2026-06-01"),
		To:        dates.MustParse("2026-06-03"),
	})
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if len(result.Trips) != 2 {
		t.Fatalf("system calendar exclusion not applied, got %d trips, want 2", len(result.Trips))
	}
	for _, w := range result.Warnings {
		if w.Code == "calendar_unresolved" {
			t.Errorf("system calendar reported unresolved: %v", w)
		}
	}
}

func TestProjectMalformedRuleDegradesToWarning(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)

	schedule := f.schedules.schedules["sched-1"]
	schedule.RecurrenceRule = "FREQ=NONSENSE"
	f.schedules.schedules["sched-1"] = schedule

	result, err := f.service.Project(context.Background(), ProjectParams{
		CompanyID: "co-1",
		From:      dates.MustParse("2026-06-01"),
		To:        dates.MustParse("2026-06-03"),
	})
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if len(result.Trips) != 0 {
		t.Errorf("broken schedule yielded %d trips, want 0", len(result.Trips))
	}
	if len(result.Warnings) == 0 {
		t.Errorf("expected a warning for the malformed rule")
	}
	if f.metrics.parseFails != 1 {
		t.Errorf("recurrence parse failures = %d, want 1", f.metrics.parseFails)
	}
}

func TestProjectWindowValidation(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)

	tests := []struct {
		name string
		from string
		to   string
	}{
		{name: "inverted window", from: "2026-06-10", to: "2026-06-01"},
		{name: "window beyond horizon", from: "2026-01-01", to: "2027-06-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := f.service.Project(context.Background(), ProjectParams{
				CompanyID: "co-1",
				From:      dates.MustParse(tt.from),
				To:        dates.MustParse(tt.to),
			})
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Project() error = %v, want ValidationError", err)
			}
		})
	}
}

func TestProjectWarnsOnVehicleOverlap(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)

	vehicle := "bus-7"
	schedule := f.schedules.schedules["sched-1"]
	schedule.VehicleID = &vehicle
	f.schedules.schedules["sched-1"] = schedule

	overlapping := dailySchedule("sched-2")
	dep, _ := scheduling.ParseTimeOfDay("08:30")
	arr, _ := scheduling.ParseTimeOfDay("10:00")
	overlapping.Departure = dep
	overlapping.Arrival = arr
	overlapping.VehicleID = &vehicle
	f.schedules.schedules["sched-2"] = overlapping

	result, err := f.service.Project(context.Background(), ProjectParams{
		CompanyID: "co-1",
		From:      dates.MustParse("2026-06-01"),
		To:        dates.MustParse("2026-06-01"),
	})
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	found := false
	for _, w := range result.Warnings {
		if w.Code == "vehicle_overlap" {
			found = true
		}
	}
	if !found {
		t.Errorf("missing vehicle_overlap warning, got %v", result.Warnings)
	}
}

func TestMaterializeIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)
	ctx := context.Background()

	params := MaterializeParams{
		CompanyID:  "co-1",
		ScheduleID: "sched-1",
		Date:       dates.MustParse("2026-06-02"),
	}
	first, err := f.service.Materialize(ctx, params)
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	second, err := f.service.Materialize(ctx, params)
	if err != nil {
		t.Fatalf("second Materialize() error = %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("second call returned %q, want %q", second.ID, first.ID)
	}
	if f.trips.creates != 1 {
		t.Errorf("create called %d times, want 1", f.trips.creates)
	}
	if f.metrics.materalized != 1 {
		t.Errorf("materialized counter = %d, want 1", f.metrics.materalized)
	}
}

func TestMaterializeDuplicateFetchesWinnersRow(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)
	ctx := context.Background()

	scheduleID := "sched-1"
	date := dates.MustParse("2026-06-02")
	store := &racingTripStore{stubTripStore: f.trips, winner: persistence.Trip{
		ID:             "winner",
		CompanyID:      "co-1",
		RouteVersionID: "rv-1",
		ScheduleID:     &scheduleID,
		ScheduleDate:   &date,
		ServiceDate:    date,
		Status:         persistence.TripScheduled,
	}}
	f.service.trips = store

	view, err := f.service.Materialize(ctx, MaterializeParams{
		CompanyID:  "co-1",
		ScheduleID: scheduleID,
		Date:       date,
	})
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	if view.ID != "winner" {
		t.Errorf("view.ID = %q, want the racing winner", view.ID)
	}
	if f.metrics.conflicts != 1 {
		t.Errorf("conflict counter = %d, want 1", f.metrics.conflicts)
	}
	if f.metrics.materalized != 0 {
		t.Errorf("materialized counter = %d, want 0 for the loser", f.metrics.materalized)
	}
}

// racingTripStore simulates a competing writer: the first lookup misses, the
// insert reports a duplicate, and subsequent lookups see the winner's row.
type racingTripStore struct {
	*stubTripStore
	winner persistence.Trip
	looked bool
}

func (s *racingTripStore) GetTripBySchedule(ctx context.Context, scheduleID string, date dates.Date) (persistence.Trip, error) {
	if !s.looked {
		s.looked = true
		return persistence.Trip{}, persistence.ErrNotFound
	}
	return s.winner, nil
}

func (s *racingTripStore) CreateTripWithStops(context.Context, persistence.Trip, []persistence.TripStopTime) error {
	return persistence.ErrDuplicate
}

func TestMaterializeRejectsSkippedOccurrence(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)

	schedule := f.schedules.schedules["sched-1"]
	schedule.Exceptions = []scheduling.Exception{
		scheduling.Skip{Date: dates.MustParse("2026-06-02"), Reason: "road closure"},
	}
	f.schedules.schedules["sched-1"] = schedule

	_, err := f.service.Materialize(context.Background(), MaterializeParams{
		CompanyID:  "co-1",
		ScheduleID: "sched-1",
		Date:       dates.MustParse("2026-06-02"),
	})
	var dErr *DomainError
	if !errors.As(err, &dErr) || dErr.Code != CodeOccurrenceSkipped {
		t.Fatalf("Materialize() error = %v, want DomainError %s", err, CodeOccurrenceSkipped)
	}
}

func TestMaterializeRejectsUnscheduledDate(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)

	tests := []struct {
		name string
		date string
	}{
		{name: "before validity", date: "2026-05-31"},
		{name: "after validity", date: "2026-07-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := f.service.Materialize(context.Background(), MaterializeParams{
				CompanyID:  "co-1",
				ScheduleID: "sched-1",
				Date:       dates.MustParse(tt.date),
			})
			var dErr *DomainError
			if !errors.As(err, &dErr) || dErr.Code != CodeOccurrenceNotScheduled {
				t.Fatalf("Materialize() error = %v, want DomainError %s", err, CodeOccurrenceNotScheduled)
			}
		})
	}
}

func TestMaterializeRejectsWrongWeekday(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)

	schedule := f.schedules.schedules["sched-1"]
	schedule.RecurrenceRule = "FREQ=WEEKLY;BYDAY=MO"
	f.schedules.schedules["sched-1"] = schedule

	// 2026-06-02 is a Tuesday.
	_, err := f.service.Materialize(context.Background(), MaterializeParams{
		CompanyID:  "co-1",
		ScheduleID: "sched-1",
		Date:       dates.MustParse("2026-06-02"),
	})
	var dErr *DomainError
	if !errors.As(err, &dErr) || dErr.Code != CodeOccurrenceNotScheduled {
		t.Fatalf("Materialize() error = %v, want DomainError %s", err, CodeOccurrenceNotScheduled)
	}
}

func TestMaterializeScopesToCompany(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)

	_, err := f.service.Materialize(context.Background(), MaterializeParams{
		CompanyID:  "co-other",
		ScheduleID: "sched-1",
		Date:       dates.MustParse("2026-06-02"),
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Materialize() error = %v, want ErrNotFound", err)
	}
}

func TestStartOnVirtualIDMaterializesFirst(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)
	ctx := context.Background()

	id := scheduling.VirtualID{ScheduleID: "sched-1", Date: dates.MustParse("2026-06-02")}.String()
	view, err := f.service.Start(ctx, "co-1", id)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if view.Status != string(persistence.TripInProgress) {
		t.Errorf("status = %q, want in_progress", view.Status)
	}
	if f.trips.creates != 1 {
		t.Errorf("create called %d times, want 1", f.trips.creates)
	}
}

func TestCompleteRejectsVirtualID(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)

	id := scheduling.VirtualID{ScheduleID: "sched-1", Date: dates.MustParse("2026-06-02")}.String()
	_, err := f.service.Complete(context.Background(), "co-1", id)
	var dErr *DomainError
	if !errors.As(err, &dErr) || dErr.Code != CodeTripNotMaterialized {
		t.Fatalf("Complete() error = %v, want DomainError %s", err, CodeTripNotMaterialized)
	}
}

func TestTripLifecycle(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)
	ctx := context.Background()

	view, err := f.service.Materialize(ctx, MaterializeParams{
		CompanyID:  "co-1",
		ScheduleID: "sched-1",
		Date:       dates.MustParse("2026-06-02"),
	})
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}

	if _, err := f.service.Complete(ctx, "co-1", view.ID); err == nil {
		t.Fatalf("Complete() before Start() should fail")
	}

	if _, err := f.service.Start(ctx, "co-1", view.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := f.service.Start(ctx, "co-1", view.ID); err == nil {
		t.Fatalf("second Start() should fail")
	}

	done, err := f.service.Complete(ctx, "co-1", view.ID)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if done.Status != string(persistence.TripCompleted) {
		t.Errorf("status = %q, want completed", done.Status)
	}

	if _, err := f.service.Cancel(ctx, "co-1", view.ID, nil); err == nil {
		t.Fatalf("Cancel() after completion should fail")
	}

	want := []string{"materialized", "started", "completed"}
	if len(f.publisher.events) != len(want) {
		t.Fatalf("events = %v, want %v", f.publisher.events, want)
	}
	for i, event := range want {
		if f.publisher.events[i] != event {
			t.Errorf("events[%d] = %q, want %q", i, f.publisher.events[i], event)
		}
	}
}

func TestCancelKeepsRowAndSuppressesVirtualTwin(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)
	ctx := context.Background()

	view, err := f.service.Materialize(ctx, MaterializeParams{
		CompanyID:  "co-1",
		ScheduleID: "sched-1",
		Date:       dates.MustParse("2026-06-02"),
	})
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}

	reason := "vehicle breakdown"
	cancelled, err := f.service.Cancel(ctx, "co-1", view.ID, &reason)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if cancelled.Status != string(persistence.TripCancelled) {
		t.Errorf("status = %q, want cancelled", cancelled.Status)
	}
	if cancelled.Note == nil || *cancelled.Note != reason {
		t.Errorf("note = %v, want %q", cancelled.Note, reason)
	}

	result, err := f.service.Project(ctx, ProjectParams{
		CompanyID: "co-1",
		From:      dates.MustParse("2026-06-02"),
		To:        dates.MustParse("2026-06-02"),
	})
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if len(result.Trips) != 1 {
		t.Fatalf("Project() returned %d trips, want only the cancelled row", len(result.Trips))
	}
	if result.Trips[0].Status != string(persistence.TripCancelled) {
		t.Errorf("projected status = %q, want cancelled", result.Trips[0].Status)
	}
}

func TestProjectStatusFilterDropsVirtuals(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)
	ctx := context.Background()

	view, err := f.service.Materialize(ctx, MaterializeParams{
		CompanyID:  "co-1",
		ScheduleID: "sched-1",
		Date:       dates.MustParse("2026-06-02"),
	})
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	if _, err := f.service.Cancel(ctx, "co-1", view.ID, nil); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	cancelled := string(persistence.TripCancelled)
	result, err := f.service.Project(ctx, ProjectParams{
		CompanyID: "co-1",
		Status:    &cancelled,
		From:      dates.MustParse("2026-06-01"),
		To:        dates.MustParse("2026-06-03"),
	})
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if len(result.Trips) != 1 {
		t.Fatalf("status=cancelled returned %d trips, want only the cancelled row", len(result.Trips))
	}
	if result.Trips[0].Virtual {
		t.Errorf("a virtual occurrence matched a non-scheduled status filter")
	}

	scheduled := string(persistence.TripScheduled)
	result, err = f.service.Project(ctx, ProjectParams{
		CompanyID: "co-1",
		Status:    &scheduled,
		From:      dates.MustParse("2026-06-01"),
		To:        dates.MustParse("2026-06-03"),
	})
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if len(result.Trips) != 2 {
		t.Fatalf("status=scheduled returned %d trips, want the two virtual occurrences", len(result.Trips))
	}
	for _, trip := range result.Trips {
		if !trip.Virtual || trip.ServiceDate.Equal(dates.MustParse("2026-06-02")) {
			t.Errorf("unexpected trip %s on %s", trip.ID, trip.ServiceDate)
		}
	}

	bogus := "departed"
	_, err = f.service.Project(ctx, ProjectParams{
		CompanyID: "co-1",
		Status:    &bogus,
		From:      dates.MustParse("2026-06-01"),
		To:        dates.MustParse("2026-06-03"),
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Project() error = %v, want ValidationError for an unknown status", err)
	}
}

func TestProjectDriverFilterUsesResolvedOccurrence(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)
	ctx := context.Background()

	regular := "drv-1"
	substitute := "drv-2"
	schedule := f.schedules.schedules["sched-1"]
	schedule.DriverID = &regular
	schedule.Exceptions = []scheduling.Exception{
		scheduling.Modify{Date: dates.MustParse("2026-06-02"), DriverID: &substitute},
	}
	f.schedules.schedules["sched-1"] = schedule

	result, err := f.service.Project(ctx, ProjectParams{
		CompanyID: "co-1",
		DriverID:  &regular,
		From:      dates.MustParse("2026-06-01"),
		To:        dates.MustParse("2026-06-03"),
	})
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if len(result.Trips) != 2 {
		t.Fatalf("driver filter returned %d trips, want 2", len(result.Trips))
	}
	for _, trip := range result.Trips {
		if trip.ServiceDate.Equal(dates.MustParse("2026-06-02")) {
			t.Errorf("occurrence reassigned by exception still matched the regular driver")
		}
	}

	result, err = f.service.Project(ctx, ProjectParams{
		CompanyID: "co-1",
		DriverID:  &substitute,
		From:      dates.MustParse("2026-06-01"),
		To:        dates.MustParse("2026-06-03"),
	})
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if len(result.Trips) != 1 || !result.Trips[0].ServiceDate.Equal(dates.MustParse("2026-06-02")) {
		t.Fatalf("substitute driver filter returned %v, want only 2026-06-02", result.Trips)
	}
}

func TestAssignMaterializesVirtualTrip(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)

	vehicle := "bus-7"
	id := scheduling.VirtualID{ScheduleID: "sched-1", Date: dates.MustParse("2026-06-02")}.String()
	view, err := f.service.Assign(context.Background(), AssignParams{
		CompanyID: "co-1",
		TripID:    id,
		VehicleID: &vehicle,
	})
	if err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if view.VehicleID == nil || *view.VehicleID != vehicle {
		t.Errorf("vehicle = %v, want %q", view.VehicleID, vehicle)
	}
	if f.trips.creates != 1 {
		t.Errorf("create called %d times, want 1", f.trips.creates)
	}
}

func TestUpdateTimesShiftsPlannedStops(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)
	ctx := context.Background()

	id := scheduling.VirtualID{ScheduleID: "sched-1", Date: dates.MustParse("2026-06-02")}.String()
	view, err := f.service.UpdateTimes(ctx, UpdateTimesParams{
		CompanyID: "co-1",
		TripID:    id,
		Departure: time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC),
		Arrival:   time.Date(2026, 6, 2, 10, 30, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("UpdateTimes() error = %v", err)
	}
	if view.Virtual {
		t.Errorf("retimed trip still virtual")
	}
	if view.Departure != time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC) {
		t.Errorf("departure = %v", view.Departure)
	}
	if len(view.StopTimes) != 2 {
		t.Fatalf("expected 2 stops, got %d", len(view.StopTimes))
	}
	if !view.StopTimes[0].Departure.Equal(time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("first stop departure = %v, want the new departure", view.StopTimes[0].Departure)
	}
	if !view.StopTimes[1].Arrival.Equal(time.Date(2026, 6, 2, 10, 30, 0, 0, time.UTC)) {
		t.Errorf("terminus arrival = %v, want the new arrival", view.StopTimes[1].Arrival)
	}
}

func TestUpdateTimesRejectsStartedTrip(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)
	ctx := context.Background()

	view, err := f.service.Materialize(ctx, MaterializeParams{
		CompanyID:  "co-1",
		ScheduleID: "sched-1",
		Date:       dates.MustParse("2026-06-02"),
	})
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	if _, err := f.service.Start(ctx, "co-1", view.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	_, err = f.service.UpdateTimes(ctx, UpdateTimesParams{
		CompanyID: "co-1",
		TripID:    view.ID,
		Departure: time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC),
		Arrival:   time.Date(2026, 6, 2, 10, 30, 0, 0, time.UTC),
	})
	var dErr *DomainError
	if !errors.As(err, &dErr) || dErr.Code != CodeInvalidStatusTransition {
		t.Fatalf("UpdateTimes() error = %v, want DomainError %s", err, CodeInvalidStatusTransition)
	}
}

func TestRecordStopActualRequiresRunningTrip(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)
	ctx := context.Background()

	view, err := f.service.Materialize(ctx, MaterializeParams{
		CompanyID:  "co-1",
		ScheduleID: "sched-1",
		Date:       dates.MustParse("2026-06-02"),
	})
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}

	at := time.Date(2026, 6, 2, 8, 2, 0, 0, time.UTC)
	err = f.service.RecordStopActual(ctx, StopActualParams{
		CompanyID: "co-1",
		TripID:    view.ID,
		StopID:    "stop-a",
		Departure: &at,
	})
	var dErr *DomainError
	if !errors.As(err, &dErr) || dErr.Code != CodeInvalidStatusTransition {
		t.Fatalf("RecordStopActual() error = %v, want DomainError %s", err, CodeInvalidStatusTransition)
	}

	if _, err := f.service.Start(ctx, "co-1", view.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.service.RecordStopActual(ctx, StopActualParams{
		CompanyID: "co-1",
		TripID:    view.ID,
		StopID:    "stop-a",
		Departure: &at,
	}); err != nil {
		t.Fatalf("RecordStopActual() error = %v", err)
	}

	got, err := f.service.GetTrip(ctx, "co-1", view.ID)
	if err != nil {
		t.Fatalf("GetTrip() error = %v", err)
	}
	if got.StopTimes[0].ActualDeparture == nil || !got.StopTimes[0].ActualDeparture.Equal(at) {
		t.Errorf("actual departure not recorded")
	}
}

func TestGetTripResolvesVirtualID(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)

	id := scheduling.VirtualID{ScheduleID: "sched-1", Date: dates.MustParse("2026-06-02")}.String()
	view, err := f.service.GetTrip(context.Background(), "co-1", id)
	if err != nil {
		t.Fatalf("GetTrip() error = %v", err)
	}
	if !view.Virtual {
		t.Errorf("view.Virtual = false, want true")
	}
	if f.trips.creates != 0 {
		t.Errorf("GetTrip() must not materialize, creates = %d", f.trips.creates)
	}
	if view.Departure != time.Date(2026, 6, 2, 8, 0, 0, 0, time.UTC) {
		t.Errorf("departure = %v", view.Departure)
	}
}

func TestCreateManualTrip(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)

	view, err := f.service.CreateManualTrip(context.Background(), CreateManualTripParams{
		CompanyID: "co-1",
		Input: ManualTripInput{
			RouteID:     "route-1",
			ServiceDate: dates.MustParse("2026-06-15"),
			Departure:   "14:00",
			Arrival:     "15:30",
		},
	})
	if err != nil {
		t.Fatalf("CreateManualTrip() error = %v", err)
	}
	if view.ScheduleID != nil {
		t.Errorf("manual trip must not reference a schedule")
	}
	if len(view.StopTimes) != 2 {
		t.Errorf("stop times = %d, want 2", len(view.StopTimes))
	}

	// A second manual trip on the same day must not trip the occurrence
	// uniqueness that applies to schedule-born trips.
	if _, err := f.service.CreateManualTrip(context.Background(), CreateManualTripParams{
		CompanyID: "co-1",
		Input: ManualTripInput{
			RouteID:     "route-1",
			ServiceDate: dates.MustParse("2026-06-15"),
			Departure:   "18:00",
			Arrival:     "19:30",
		},
	}); err != nil {
		t.Fatalf("second CreateManualTrip() error = %v", err)
	}
}

func TestCreateManualTripValidation(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)

	_, err := f.service.CreateManualTrip(context.Background(), CreateManualTripParams{
		CompanyID: "co-1",
		Input: ManualTripInput{
			RouteID:   "route-1",
			Departure: "26:00",
			Arrival:   "15:30",
		},
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("CreateManualTrip() error = %v, want ValidationError", err)
	}
	for _, field := range []string{"departure", "service_date"} {
		if _, ok := vErr.FieldErrors[field]; !ok {
			t.Errorf("missing field error for %q", field)
		}
	}
}
