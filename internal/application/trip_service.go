package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/example/intercity-bus/internal/calendar"
	"github.com/example/intercity-bus/internal/dates"
	"github.com/example/intercity-bus/internal/persistence"
	"github.com/example/intercity-bus/internal/recurrence"
	"github.com/example/intercity-bus/internal/scheduling"
)

// TripStore captures the persistence interactions needed by the service.
type TripStore interface {
	CreateTripWithStops(ctx context.Context, trip persistence.Trip, stops []persistence.TripStopTime) error
	GetTrip(ctx context.Context, id string) (persistence.Trip, error)
	GetTripBySchedule(ctx context.Context, scheduleID string, date dates.Date) (persistence.Trip, error)
	ListTrips(ctx context.Context, filter persistence.TripFilter) ([]persistence.Trip, error)
	UpdateTrip(ctx context.Context, trip persistence.Trip) error
	ListTripStops(ctx context.Context, tripID string) ([]persistence.TripStopTime, error)
	UpdateTripStopPlan(ctx context.Context, tripID string, stops []persistence.TripStopTime) error
	RecordStopActual(ctx context.Context, tripID, stopID string, arrival, departure *time.Time) error
}

// RouteVersionSource resolves route versions for projection and
// materialization.
type RouteVersionSource interface {
	GetRouteVersion(ctx context.Context, id string) (persistence.RouteVersion, error)
	ActiveRouteVersion(ctx context.Context, routeID string) (persistence.RouteVersion, error)
	ActiveRouteVersions(ctx context.Context, routeIDs []string) (map[string]persistence.RouteVersion, error)
}

// CalendarSource resolves calendars referenced by schedule modifiers.
type CalendarSource interface {
	GetCalendar(ctx context.Context, id string) (persistence.Calendar, error)
}

// TripService projects virtual trips over a date window and manages the
// lifecycle of materialized trips.
type TripService struct {
	trips       TripStore
	schedules   ScheduleStore
	routes      RouteVersionSource
	calendars   CalendarSource
	expander    *recurrence.Expander
	publisher   Publisher
	metrics     Metrics
	loc         *time.Location
	calCache    *calendarCache
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewTripService wires dependencies for trip operations. The location is the
// operating timezone trip timelines are computed in.
func NewTripService(trips TripStore, schedules ScheduleStore, routes RouteVersionSource, calendars CalendarSource, expander *recurrence.Expander, publisher Publisher, metrics Metrics, loc *time.Location, idGenerator func() string, now func() time.Time, logger *slog.Logger) *TripService {
	if expander == nil {
		expander = &recurrence.Expander{}
	}
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &TripService{
		trips:       trips,
		schedules:   schedules,
		routes:      routes,
		calendars:   calendars,
		expander:    expander,
		publisher:   publisher,
		metrics:     metrics,
		loc:         loc,
		calCache:    newCalendarCache(0, 0, now),
		idGenerator: idGenerator,
		now:         now,
		logger:      logger,
	}
}

// SetCalendarCacheTTL overrides how long resolved calendar years are reused
// across projections. Zero keeps the default.
func (s *TripService) SetCalendarCacheTTL(ttl time.Duration) {
	s.calCache = newCalendarCache(ttl, 0, s.now)
}

// Project computes the merged timetable for a window: virtual occurrences
// expanded from active schedules plus materialized trips, with the
// materialized row winning whenever both describe the same occurrence.
// Per-schedule failures degrade to warnings so one bad schedule cannot take
// down the whole timetable.
func (s *TripService) Project(ctx context.Context, params ProjectParams) (ProjectionResult, error) {
	started := s.now()

	if err := validateWindow(params.From, params.To, s.horizonDays()); err != nil {
		return ProjectionResult{}, err
	}
	if err := validateStatusFilter(params.Status); err != nil {
		return ProjectionResult{}, err
	}

	var result ProjectionResult
	logger := serviceLogger(ctx, s.logger, "trip", "project", "company_id", params.CompanyID)

	// Every row in the window is fetched regardless of the driver and status
	// filters: a row must suppress its virtual twin even when the filters
	// exclude the row itself from the result.
	materialized, err := s.trips.ListTrips(ctx, persistence.TripFilter{
		CompanyID: params.CompanyID,
		RouteID:   params.RouteID,
		From:      &params.From,
		To:        &params.To,
	})
	if err != nil {
		return ProjectionResult{}, err
	}

	// Virtual occurrences are always scheduled, so any other status filter
	// rules out the whole expansion up front.
	if params.Status == nil || *params.Status == string(persistence.TripScheduled) {
		schedules, err := s.schedules.ListSchedules(ctx, persistence.ScheduleFilter{
			CompanyID:  params.CompanyID,
			RouteID:    params.RouteID,
			ActiveOnly: true,
		})
		if err != nil {
			return ProjectionResult{}, err
		}

		resolved := s.resolveCalendars(ctx, params.CompanyID, schedules, params.From.Year, params.To.Year, &result)

		taken := make(map[string]struct{}, len(materialized))
		for _, trip := range materialized {
			if trip.ScheduleID != nil && trip.ScheduleDate != nil {
				taken[occurrenceKey(*trip.ScheduleID, *trip.ScheduleDate)] = struct{}{}
			}
		}

		routeIDs := make([]string, 0, len(schedules))
		seenRoutes := make(map[string]struct{}, len(schedules))
		for _, schedule := range schedules {
			if _, ok := seenRoutes[schedule.RouteID]; !ok {
				seenRoutes[schedule.RouteID] = struct{}{}
				routeIDs = append(routeIDs, schedule.RouteID)
			}
		}
		versions, err := s.routes.ActiveRouteVersions(ctx, routeIDs)
		if err != nil {
			return ProjectionResult{}, err
		}

		for _, schedule := range schedules {
			version, ok := versions[schedule.RouteID]
			if !ok {
				result.Warnings = append(result.Warnings, Warning{
					Code:    CodeNoActiveRouteVersion,
					Message: fmt.Sprintf("schedule %s: route %s has no active version", schedule.ID, schedule.RouteID),
				})
				continue
			}

			occurrences, err := s.expandSchedule(schedule, params.From, params.To, resolved)
			if err != nil {
				s.metrics.RecurrenceParseFailure()
				logger.WarnContext(ctx, "schedule expansion failed", "schedule_id", schedule.ID, "error", err)
				result.Warnings = append(result.Warnings, Warning{
					Code:    "recurrence_invalid",
					Message: fmt.Sprintf("schedule %s: %v", schedule.ID, err),
				})
				continue
			}

			for _, occ := range occurrences {
				if _, exists := taken[occurrenceKey(schedule.ID, occ.Date)]; exists {
					continue
				}
				// The driver filter looks at the resolved occurrence, not the
				// schedule default, so per-date exception overrides count.
				if params.DriverID != nil && (occ.DriverID == nil || *occ.DriverID != *params.DriverID) {
					continue
				}
				view, err := s.virtualView(schedule, version, occ)
				if err != nil {
					result.Warnings = append(result.Warnings, Warning{
						Code:    "projection_failed",
						Message: fmt.Sprintf("schedule %s on %s: %v", schedule.ID, occ.Date, err),
					})
					continue
				}
				result.Trips = append(result.Trips, view)
			}
		}
	}

	for _, trip := range materialized {
		if params.Status != nil && string(trip.Status) != *params.Status {
			continue
		}
		if params.DriverID != nil && (trip.DriverID == nil || *trip.DriverID != *params.DriverID) {
			continue
		}
		view, err := s.materializedView(ctx, trip)
		if err != nil {
			return ProjectionResult{}, err
		}
		result.Trips = append(result.Trips, view)
	}

	sort.SliceStable(result.Trips, func(i, j int) bool {
		a, b := result.Trips[i], result.Trips[j]
		if a.Departure.Equal(b.Departure) {
			return a.ID < b.ID
		}
		return a.Departure.Before(b.Departure)
	})

	result.Warnings = append(result.Warnings, overlapWarnings(result.Trips)...)

	s.metrics.ObserveProjection(s.now().Sub(started), params.From.DaysUntil(params.To)+1)
	logger.InfoContext(ctx, "timetable projected",
		"from", params.From.String(), "to", params.To.String(),
		"trips", len(result.Trips), "warnings", len(result.Warnings))
	return result, nil
}

// Materialize persists one schedule occurrence as a trip row. The operation
// is idempotent: if the occurrence already has a row, that row is returned.
// Losing a materialization race is not an error either; the winner's row is
// fetched and returned instead.
func (s *TripService) Materialize(ctx context.Context, params MaterializeParams) (TripView, error) {
	existing, err := s.trips.GetTripBySchedule(ctx, params.ScheduleID, params.Date)
	if err == nil {
		return s.materializedView(ctx, existing)
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return TripView{}, err
	}

	schedule, err := s.schedules.GetSchedule(ctx, params.ScheduleID)
	if err != nil {
		return TripView{}, mapRepoError(err)
	}
	if schedule.CompanyID != params.CompanyID {
		return TripView{}, ErrNotFound
	}
	if !schedule.Active {
		return TripView{}, domainErrorf(CodeOccurrenceNotScheduled, "schedule is not active")
	}

	occ, err := s.resolveOccurrence(ctx, schedule, params.Date)
	if err != nil {
		return TripView{}, err
	}

	version, err := s.routes.ActiveRouteVersion(ctx, schedule.RouteID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return TripView{}, domainErrorf(CodeNoActiveRouteVersion, "route has no active version")
		}
		return TripView{}, err
	}

	dep, arr := scheduling.Timeline(occ.Date, occ.Departure, occ.Arrival, s.loc)
	projections, err := scheduling.SynthesizeStopTimes(version.Stops, schedule.StopTimes, occ.Date, dep, arr, s.loc)
	if err != nil {
		return TripView{}, err
	}

	scheduleID := schedule.ID
	date := occ.Date
	trip := persistence.Trip{
		ID:             s.idGenerator(),
		CompanyID:      params.CompanyID,
		RouteVersionID: version.ID,
		ScheduleID:     &scheduleID,
		ScheduleDate:   &date,
		ServiceDate:    occ.Date,
		Status:         persistence.TripScheduled,
		Departure:      dep,
		Arrival:        arr,
		VehicleID:      occ.VehicleID,
		DriverID:       occ.DriverID,
	}

	stops := make([]persistence.TripStopTime, 0, len(projections))
	for _, p := range projections {
		stops = append(stops, persistence.TripStopTime{
			TripID:           trip.ID,
			StopID:           p.StopID,
			Name:             p.Name,
			Sequence:         p.Sequence,
			PlannedArrival:   p.Arrival,
			PlannedDeparture: p.Departure,
		})
	}

	logger := serviceLogger(ctx, s.logger, "trip", "materialize", "schedule_id", schedule.ID, "date", occ.Date.String())

	if err := s.trips.CreateTripWithStops(ctx, trip, stops); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			// Lost the race; the winning row is authoritative.
			s.metrics.MaterializeConflict()
			logger.InfoContext(ctx, "materialization race lost, returning winner")
			winner, err := s.trips.GetTripBySchedule(ctx, params.ScheduleID, params.Date)
			if err != nil {
				return TripView{}, err
			}
			return s.materializedView(ctx, winner)
		}
		return TripView{}, err
	}

	s.metrics.TripMaterialized()
	view, err := s.materializedView(ctx, trip)
	if err != nil {
		return TripView{}, err
	}
	s.publisher.Publish(ctx, params.CompanyID, "materialized", view)
	logger.InfoContext(ctx, "trip materialized", "trip_id", trip.ID)
	return view, nil
}

// CreateManualTrip persists a trip that does not originate from any schedule.
func (s *TripService) CreateManualTrip(ctx context.Context, params CreateManualTripParams) (TripView, error) {
	vErr := &ValidationError{}

	departure, err := scheduling.ParseTimeOfDay(params.Input.Departure)
	if err != nil {
		vErr.add("departure", "departure must be HH:MM")
	}
	arrival, err := scheduling.ParseTimeOfDay(params.Input.Arrival)
	if err != nil {
		vErr.add("arrival", "arrival must be HH:MM")
	}
	if params.Input.ServiceDate.IsZero() {
		vErr.add("service_date", "service_date is required")
	}
	if vErr.HasErrors() {
		return TripView{}, vErr
	}

	version, err := s.routes.ActiveRouteVersion(ctx, params.Input.RouteID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return TripView{}, domainErrorf(CodeNoActiveRouteVersion, "route has no active version")
		}
		return TripView{}, err
	}

	dep, arr := scheduling.Timeline(params.Input.ServiceDate, departure, arrival, s.loc)
	projections, err := scheduling.SynthesizeStopTimes(version.Stops, nil, params.Input.ServiceDate, dep, arr, s.loc)
	if err != nil {
		return TripView{}, err
	}

	trip := persistence.Trip{
		ID:             s.idGenerator(),
		CompanyID:      params.CompanyID,
		RouteVersionID: version.ID,
		ServiceDate:    params.Input.ServiceDate,
		Status:         persistence.TripScheduled,
		Departure:      dep,
		Arrival:        arr,
		VehicleID:      params.Input.VehicleID,
		DriverID:       params.Input.DriverID,
		Note:           params.Input.Note,
	}

	stops := make([]persistence.TripStopTime, 0, len(projections))
	for _, p := range projections {
		stops = append(stops, persistence.TripStopTime{
			TripID:           trip.ID,
			StopID:           p.StopID,
			Name:             p.Name,
			Sequence:         p.Sequence,
			PlannedArrival:   p.Arrival,
			PlannedDeparture: p.Departure,
		})
	}

	if err := s.trips.CreateTripWithStops(ctx, trip, stops); err != nil {
		return TripView{}, err
	}

	view, err := s.materializedView(ctx, trip)
	if err != nil {
		return TripView{}, err
	}
	s.publisher.Publish(ctx, params.CompanyID, "created", view)
	return view, nil
}

// GetTrip resolves a trip identifier, virtual or materialized, into its view.
// Virtual identifiers are projected on the fly without persisting anything.
func (s *TripService) GetTrip(ctx context.Context, companyID, tripID string) (TripView, error) {
	id, err := scheduling.ParseTripID(tripID)
	if err != nil {
		return TripView{}, badTripID(err)
	}

	switch v := id.(type) {
	case scheduling.MaterializedID:
		trip, err := s.ownedTrip(ctx, companyID, v.TripID)
		if err != nil {
			return TripView{}, err
		}
		return s.materializedView(ctx, trip)
	case scheduling.VirtualID:
		if trip, err := s.trips.GetTripBySchedule(ctx, v.ScheduleID, v.Date); err == nil {
			return s.materializedView(ctx, trip)
		} else if !errors.Is(err, persistence.ErrNotFound) {
			return TripView{}, err
		}

		schedule, err := s.schedules.GetSchedule(ctx, v.ScheduleID)
		if err != nil {
			return TripView{}, mapRepoError(err)
		}
		if schedule.CompanyID != companyID || !schedule.Active {
			return TripView{}, ErrNotFound
		}
		occ, err := s.resolveOccurrence(ctx, schedule, v.Date)
		if err != nil {
			return TripView{}, err
		}
		version, err := s.routes.ActiveRouteVersion(ctx, schedule.RouteID)
		if err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				return TripView{}, domainErrorf(CodeNoActiveRouteVersion, "route has no active version")
			}
			return TripView{}, err
		}
		return s.virtualView(schedule, version, occ)
	default:
		return TripView{}, ErrNotFound
	}
}

// Assign sets the vehicle and/or driver of a trip. Virtual trips are
// materialized first so the assignment has a row to live on.
func (s *TripService) Assign(ctx context.Context, params AssignParams) (TripView, error) {
	trip, err := s.materializedTrip(ctx, params.CompanyID, params.TripID)
	if err != nil {
		return TripView{}, err
	}
	if trip.Status == persistence.TripCompleted || trip.Status == persistence.TripCancelled {
		return TripView{}, domainErrorf(CodeInvalidStatusTransition,
			fmt.Sprintf("cannot assign resources to a %s trip", trip.Status))
	}

	if params.VehicleID != nil {
		trip.VehicleID = params.VehicleID
	}
	if params.DriverID != nil {
		trip.DriverID = params.DriverID
	}
	if err := s.trips.UpdateTrip(ctx, trip); err != nil {
		return TripView{}, mapRepoError(err)
	}

	view, err := s.materializedView(ctx, trip)
	if err != nil {
		return TripView{}, err
	}
	s.publisher.Publish(ctx, params.CompanyID, "assigned", view)
	return view, nil
}

// UpdateTimes retimes a trip that has not departed yet. Planned stop times
// shift with the departure; the terminus keeps the requested arrival. Virtual
// trips are materialized first.
func (s *TripService) UpdateTimes(ctx context.Context, params UpdateTimesParams) (TripView, error) {
	if !params.Arrival.After(params.Departure) {
		vErr := &ValidationError{}
		vErr.add("arrival", "arrival must be after departure")
		return TripView{}, vErr
	}

	trip, err := s.materializedTrip(ctx, params.CompanyID, params.TripID)
	if err != nil {
		return TripView{}, err
	}
	if trip.Status != persistence.TripScheduled {
		return TripView{}, domainErrorf(CodeInvalidStatusTransition,
			fmt.Sprintf("cannot retime a %s trip", trip.Status))
	}

	delta := params.Departure.Sub(trip.Departure)
	stops, err := s.trips.ListTripStops(ctx, trip.ID)
	if err != nil {
		return TripView{}, mapRepoError(err)
	}
	for i := range stops {
		stops[i].PlannedArrival = stops[i].PlannedArrival.Add(delta)
		stops[i].PlannedDeparture = stops[i].PlannedDeparture.Add(delta)
	}
	if n := len(stops); n > 0 {
		stops[n-1].PlannedArrival = params.Arrival
	}

	trip.Departure = params.Departure
	trip.Arrival = params.Arrival
	if err := s.trips.UpdateTrip(ctx, trip); err != nil {
		return TripView{}, mapRepoError(err)
	}
	if err := s.trips.UpdateTripStopPlan(ctx, trip.ID, stops); err != nil {
		return TripView{}, mapRepoError(err)
	}

	view, err := s.materializedView(ctx, trip)
	if err != nil {
		return TripView{}, err
	}
	s.publisher.Publish(ctx, params.CompanyID, "retimed", view)
	return view, nil
}

// Start moves a scheduled trip into in_progress.
func (s *TripService) Start(ctx context.Context, companyID, tripID string) (TripView, error) {
	return s.transition(ctx, companyID, tripID, persistence.TripScheduled, persistence.TripInProgress, "started", nil)
}

// Cancel cancels a scheduled or running trip. The occurrence stays
// materialized so it keeps suppressing its virtual twin in projections.
func (s *TripService) Cancel(ctx context.Context, companyID, tripID string, reason *string) (TripView, error) {
	trip, err := s.materializedTrip(ctx, companyID, tripID)
	if err != nil {
		return TripView{}, err
	}
	if trip.Status != persistence.TripScheduled && trip.Status != persistence.TripInProgress {
		return TripView{}, domainErrorf(CodeInvalidStatusTransition,
			fmt.Sprintf("cannot cancel a %s trip", trip.Status))
	}

	trip.Status = persistence.TripCancelled
	if reason != nil {
		trip.Note = reason
	}
	if err := s.trips.UpdateTrip(ctx, trip); err != nil {
		return TripView{}, mapRepoError(err)
	}

	view, err := s.materializedView(ctx, trip)
	if err != nil {
		return TripView{}, err
	}
	s.publisher.Publish(ctx, companyID, "cancelled", view)
	return view, nil
}

// Complete moves a running trip into completed. A virtual identifier is
// rejected outright: a trip that never ran cannot be completed.
func (s *TripService) Complete(ctx context.Context, companyID, tripID string) (TripView, error) {
	id, err := scheduling.ParseTripID(tripID)
	if err != nil {
		return TripView{}, badTripID(err)
	}
	if _, virtual := id.(scheduling.VirtualID); virtual {
		return TripView{}, domainErrorf(CodeTripNotMaterialized, "only a started trip can be completed")
	}
	return s.transition(ctx, companyID, tripID, persistence.TripInProgress, persistence.TripCompleted, "completed", nil)
}

// RecordStopActual records observed stop times on a running trip.
func (s *TripService) RecordStopActual(ctx context.Context, params StopActualParams) error {
	id, err := scheduling.ParseTripID(params.TripID)
	if err != nil {
		return badTripID(err)
	}
	materializedID, ok := id.(scheduling.MaterializedID)
	if !ok {
		return domainErrorf(CodeTripNotMaterialized, "actual times can only be recorded on a started trip")
	}
	if params.Arrival == nil && params.Departure == nil {
		vErr := &ValidationError{}
		vErr.add("times", "an arrival or departure is required")
		return vErr
	}

	trip, err := s.ownedTrip(ctx, params.CompanyID, materializedID.TripID)
	if err != nil {
		return err
	}
	if trip.Status != persistence.TripInProgress {
		return domainErrorf(CodeInvalidStatusTransition,
			fmt.Sprintf("cannot record stop times on a %s trip", trip.Status))
	}

	return mapRepoError(s.trips.RecordStopActual(ctx, trip.ID, params.StopID, params.Arrival, params.Departure))
}

// --- internals ---

func (s *TripService) transition(ctx context.Context, companyID, tripID string, from, to persistence.TripStatus, event string, note *string) (TripView, error) {
	trip, err := s.materializedTrip(ctx, companyID, tripID)
	if err != nil {
		return TripView{}, err
	}
	if trip.Status != from {
		return TripView{}, domainErrorf(CodeInvalidStatusTransition,
			fmt.Sprintf("trip is %s, expected %s", trip.Status, from))
	}

	trip.Status = to
	if note != nil {
		trip.Note = note
	}
	if err := s.trips.UpdateTrip(ctx, trip); err != nil {
		return TripView{}, mapRepoError(err)
	}

	view, err := s.materializedView(ctx, trip)
	if err != nil {
		return TripView{}, err
	}
	s.publisher.Publish(ctx, companyID, event, view)
	return view, nil
}

// materializedTrip resolves an identifier to a trip row, materializing the
// occurrence first when the identifier is virtual.
func (s *TripService) materializedTrip(ctx context.Context, companyID, tripID string) (persistence.Trip, error) {
	id, err := scheduling.ParseTripID(tripID)
	if err != nil {
		return persistence.Trip{}, badTripID(err)
	}

	switch v := id.(type) {
	case scheduling.MaterializedID:
		return s.ownedTrip(ctx, companyID, v.TripID)
	case scheduling.VirtualID:
		if _, err := s.Materialize(ctx, MaterializeParams{
			CompanyID:  companyID,
			ScheduleID: v.ScheduleID,
			Date:       v.Date,
		}); err != nil {
			return persistence.Trip{}, err
		}
		return s.trips.GetTripBySchedule(ctx, v.ScheduleID, v.Date)
	default:
		return persistence.Trip{}, ErrNotFound
	}
}

func (s *TripService) ownedTrip(ctx context.Context, companyID, tripID string) (persistence.Trip, error) {
	trip, err := s.trips.GetTrip(ctx, tripID)
	if err != nil {
		return persistence.Trip{}, mapRepoError(err)
	}
	if trip.CompanyID != companyID {
		return persistence.Trip{}, ErrNotFound
	}
	return trip, nil
}

// resolveOccurrence verifies the date is one the schedule actually yields and
// resolves its parameters, distinguishing "never scheduled" from "skipped by
// exception".
func (s *TripService) resolveOccurrence(ctx context.Context, schedule persistence.Schedule, date dates.Date) (scheduling.Occurrence, error) {
	if date.Before(schedule.ValidFrom) || (schedule.ValidTo != nil && date.After(*schedule.ValidTo)) {
		return scheduling.Occurrence{}, domainErrorf(CodeOccurrenceNotScheduled, "date is outside the schedule's validity")
	}

	var exception scheduling.Exception
	for _, exc := range schedule.Exceptions {
		if exc.On().Equal(date) {
			exception = exc
			break
		}
	}
	if _, skip := exception.(scheduling.Skip); skip {
		return scheduling.Occurrence{}, domainErrorf(CodeOccurrenceSkipped, "occurrence is skipped by an exception")
	}

	var candidates []dates.Date
	if schedule.Kind == persistence.ScheduleRecurring {
		end := date
		var err error
		candidates, err = s.expander.Expand(schedule.RecurrenceRule, schedule.ValidFrom, &end, nil)
		if err != nil {
			return scheduling.Occurrence{}, fmt.Errorf("expand recurrence: %w", err)
		}
	} else {
		candidates = recurrence.SingleOccurrence(schedule.ValidFrom)
	}

	var projection ProjectionResult
	resolved := s.resolveCalendars(ctx, schedule.CompanyID, []persistence.Schedule{schedule}, date.Year, date.Year, &projection)
	candidates = scheduling.ApplyModifiers(candidates, schedule.Modifiers, resolved)

	found := false
	for _, candidate := range candidates {
		if candidate.Equal(date) {
			found = true
			break
		}
	}
	if !found {
		return scheduling.Occurrence{}, domainErrorf(CodeOccurrenceNotScheduled, "schedule does not run on this date")
	}

	occ, keep := scheduling.ResolveSingle(date, schedule.Defaults(), exception)
	if !keep {
		return scheduling.Occurrence{}, domainErrorf(CodeOccurrenceSkipped, "occurrence is skipped by an exception")
	}
	return occ, nil
}

// expandSchedule yields the schedule's resolved occurrences clipped to the
// requested window.
func (s *TripService) expandSchedule(schedule persistence.Schedule, from, to dates.Date, resolved map[string]calendar.DateSet) ([]scheduling.Occurrence, error) {
	start := schedule.ValidFrom
	if from.After(start) {
		start = from
	}
	end := to
	if schedule.ValidTo != nil && schedule.ValidTo.Before(end) {
		end = *schedule.ValidTo
	}
	if end.Before(start) {
		return nil, nil
	}

	var candidates []dates.Date
	if schedule.Kind == persistence.ScheduleRecurring {
		expanded, err := s.expander.Expand(schedule.RecurrenceRule, schedule.ValidFrom, &end, nil)
		if err != nil {
			return nil, err
		}
		for _, d := range expanded {
			if !d.Before(start) {
				candidates = append(candidates, d)
			}
		}
	} else {
		for _, d := range recurrence.SingleOccurrence(schedule.ValidFrom) {
			if !d.Before(start) && !d.After(end) {
				candidates = append(candidates, d)
			}
		}
	}

	candidates = scheduling.ApplyModifiers(candidates, schedule.Modifiers, resolved)
	return scheduling.ResolveExceptions(candidates, schedule.Defaults(), schedule.Exceptions), nil
}

// resolveCalendars loads every calendar the schedules' modifiers reference and
// expands it over the projection years. Unresolvable calendars degrade to a
// warning; the modifier then no-ops.
func (s *TripService) resolveCalendars(ctx context.Context, companyID string, schedules []persistence.Schedule, fromYear, toYear int, result *ProjectionResult) map[string]calendar.DateSet {
	refs := make([]string, 0)
	seen := make(map[string]struct{})
	for _, schedule := range schedules {
		for _, id := range scheduling.CalendarRefs(schedule.Modifiers) {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				refs = append(refs, id)
			}
		}
	}

	resolved := make(map[string]calendar.DateSet, len(refs))
	for _, id := range refs {
		cal, err := s.calendars.GetCalendar(ctx, id)
		if err != nil || !seesCalendar(cal, companyID) {
			s.metrics.CalendarResolveFailure()
			result.Warnings = append(result.Warnings, Warning{
				Code:    "calendar_unresolved",
				Message: fmt.Sprintf("calendar %s could not be resolved; its modifier is ignored", id),
			})
			continue
		}

		entries := make([]calendar.Entry, 0, len(cal.Entries))
		for _, entry := range cal.Entries {
			entries = append(entries, calendar.Entry{ID: entry.ID, Name: entry.Name, Rule: entry.Rule})
		}

		set := make(calendar.DateSet)
		for year := fromYear; year <= toYear; year++ {
			key := calendarCacheKey(cal, year)
			yearSet, ok := s.calCache.Get(key)
			if !ok {
				yearSet = make(calendar.DateSet)
				yearSet.Add(calendar.Resolve(entries, year))
				s.calCache.Store(key, yearSet)
			}
			for d := range yearSet {
				set[d] = struct{}{}
			}
		}
		resolved[id] = set
	}
	return resolved
}

func (s *TripService) virtualView(schedule persistence.Schedule, version persistence.RouteVersion, occ scheduling.Occurrence) (TripView, error) {
	dep, arr := scheduling.Timeline(occ.Date, occ.Departure, occ.Arrival, s.loc)
	projections, err := scheduling.SynthesizeStopTimes(version.Stops, schedule.StopTimes, occ.Date, dep, arr, s.loc)
	if err != nil {
		return TripView{}, err
	}

	scheduleID := schedule.ID
	view := TripView{
		ID:             scheduling.VirtualID{ScheduleID: schedule.ID, Date: occ.Date}.String(),
		Virtual:        true,
		RouteID:        schedule.RouteID,
		RouteVersionID: version.ID,
		ScheduleID:     &scheduleID,
		ServiceDate:    occ.Date,
		Status:         string(persistence.TripScheduled),
		Departure:      dep,
		Arrival:        arr,
		VehicleID:      occ.VehicleID,
		DriverID:       occ.DriverID,
		Modified:       occ.Modified,
		Reason:         occ.Reason,
	}
	for _, p := range projections {
		view.StopTimes = append(view.StopTimes, StopTimeView{
			StopID:    p.StopID,
			Name:      p.Name,
			Sequence:  p.Sequence,
			Arrival:   p.Arrival,
			Departure: p.Departure,
		})
	}
	return view, nil
}

func (s *TripService) materializedView(ctx context.Context, trip persistence.Trip) (TripView, error) {
	version, err := s.routes.GetRouteVersion(ctx, trip.RouteVersionID)
	if err != nil {
		return TripView{}, err
	}

	view := TripView{
		ID:             trip.ID,
		RouteID:        version.RouteID,
		RouteVersionID: trip.RouteVersionID,
		ScheduleID:     trip.ScheduleID,
		ServiceDate:    trip.ServiceDate,
		Status:         string(trip.Status),
		Departure:      trip.Departure,
		Arrival:        trip.Arrival,
		VehicleID:      trip.VehicleID,
		DriverID:       trip.DriverID,
		Note:           trip.Note,
	}

	stops, err := s.trips.ListTripStops(ctx, trip.ID)
	if err != nil {
		return TripView{}, err
	}
	for _, stop := range stops {
		view.StopTimes = append(view.StopTimes, StopTimeView{
			StopID:          stop.StopID,
			Name:            stop.Name,
			Sequence:        stop.Sequence,
			Arrival:         stop.PlannedArrival,
			Departure:       stop.PlannedDeparture,
			ActualArrival:   stop.ActualArrival,
			ActualDeparture: stop.ActualDeparture,
		})
	}
	return view, nil
}

func (s *TripService) horizonDays() int {
	if s.expander.HorizonDays > 0 {
		return s.expander.HorizonDays
	}
	return recurrence.DefaultHorizonDays
}

func validateWindow(from, to dates.Date, horizonDays int) error {
	vErr := &ValidationError{}
	if from.IsZero() {
		vErr.add("from", "from is required")
	}
	if to.IsZero() {
		vErr.add("to", "to is required")
	}
	if vErr.HasErrors() {
		return vErr
	}
	if to.Before(from) {
		vErr.add("to", "to must not precede from")
		return vErr
	}
	if from.DaysUntil(to) >= horizonDays {
		vErr.add("to", fmt.Sprintf("window must not exceed %d days", horizonDays))
		return vErr
	}
	return nil
}

func validateStatusFilter(status *string) error {
	if status == nil {
		return nil
	}
	switch persistence.TripStatus(*status) {
	case persistence.TripScheduled, persistence.TripInProgress, persistence.TripCompleted, persistence.TripCancelled:
		return nil
	default:
		vErr := &ValidationError{}
		vErr.add("status", "status must be scheduled, in_progress, completed or cancelled")
		return vErr
	}
}

func occurrenceKey(scheduleID string, date dates.Date) string {
	return scheduleID + "|" + date.String()
}

// overlapWarnings reports double-booked vehicles and drivers in the projected
// window.
func overlapWarnings(trips []TripView) []Warning {
	assignments := make([]scheduling.Assignment, 0, len(trips))
	for _, trip := range trips {
		if trip.Status == string(persistence.TripCancelled) {
			continue
		}
		assignments = append(assignments, scheduling.Assignment{
			TripKey:   trip.ID,
			VehicleID: trip.VehicleID,
			DriverID:  trip.DriverID,
			Departure: trip.Departure,
			Arrival:   trip.Arrival,
		})
	}

	overlaps := scheduling.DetectOverlaps(assignments)
	if len(overlaps) == 0 {
		return nil
	}
	warnings := make([]Warning, 0, len(overlaps))
	for _, o := range overlaps {
		warnings = append(warnings, Warning{
			Code: fmt.Sprintf("%s_overlap", o.Kind),
			Message: fmt.Sprintf("trip %s overlaps trip %s on %s %s",
				o.TripKey, o.WithTripKey, o.Kind, o.ResourceID),
		})
	}
	return warnings
}

func badTripID(err error) error {
	vErr := &ValidationError{}
	vErr.add("trip_id", err.Error())
	return vErr
}
