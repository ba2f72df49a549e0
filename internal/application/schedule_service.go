package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/intercity-bus/internal/dates"
	"github.com/example/intercity-bus/internal/persistence"
	"github.com/example/intercity-bus/internal/recurrence"
	"github.com/example/intercity-bus/internal/scheduling"
)

// ScheduleStore captures the persistence interactions needed by the service.
type ScheduleStore interface {
	CreateSchedule(ctx context.Context, schedule persistence.Schedule) error
	UpdateSchedule(ctx context.Context, schedule persistence.Schedule) error
	GetSchedule(ctx context.Context, id string) (persistence.Schedule, error)
	ListSchedules(ctx context.Context, filter persistence.ScheduleFilter) ([]persistence.Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error
	CreateException(ctx context.Context, scheduleID string, exc scheduling.Exception) error
	DeleteException(ctx context.Context, scheduleID string, date dates.Date) error
}

// TripCounter reports materialized trip usage of a schedule.
type TripCounter interface {
	CountTripsForSchedule(ctx context.Context, scheduleID string) (int, error)
}

// RouteVersionResolver checks that a schedule's route can run.
type RouteVersionResolver interface {
	GetRoute(ctx context.Context, id string) (persistence.Route, error)
	ActiveRouteVersion(ctx context.Context, routeID string) (persistence.RouteVersion, error)
}

// ScheduleService orchestrates validation and persistence for schedule
// operations.
type ScheduleService struct {
	schedules   ScheduleStore
	routes      RouteVersionResolver
	trips       TripCounter
	expander    *recurrence.Expander
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewScheduleService wires dependencies for schedule operations.
func NewScheduleService(schedules ScheduleStore, routes RouteVersionResolver, trips TripCounter, expander *recurrence.Expander, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ScheduleService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if expander == nil {
		expander = &recurrence.Expander{}
	}
	return &ScheduleService{
		schedules:   schedules,
		routes:      routes,
		trips:       trips,
		expander:    expander,
		idGenerator: idGenerator,
		now:         now,
		logger:      logger,
	}
}

// CreateSchedule validates the request before delegating to persistence.
func (s *ScheduleService) CreateSchedule(ctx context.Context, params CreateScheduleParams) (persistence.Schedule, error) {
	schedule, err := s.buildSchedule(ctx, params.CompanyID, params.Input)
	if err != nil {
		return persistence.Schedule{}, err
	}
	schedule.ID = s.idGenerator()

	if err := s.schedules.CreateSchedule(ctx, schedule); err != nil {
		return persistence.Schedule{}, mapScheduleRepoError(err)
	}

	serviceLogger(ctx, s.logger, "schedule", "create", "schedule_id", schedule.ID).
		InfoContext(ctx, "schedule created", "route_id", schedule.RouteID, "kind", string(schedule.Kind))
	return schedule, nil
}

// UpdateSchedule applies validation before updating persistence state.
// Already-materialized trips keep the parameters they were created with; only
// future projections see the change.
func (s *ScheduleService) UpdateSchedule(ctx context.Context, params UpdateScheduleParams) (persistence.Schedule, error) {
	existing, err := s.schedules.GetSchedule(ctx, params.ScheduleID)
	if err != nil {
		return persistence.Schedule{}, mapScheduleRepoError(err)
	}
	if existing.CompanyID != params.CompanyID {
		return persistence.Schedule{}, ErrNotFound
	}

	input := params.Input
	if input.RouteID != "" && input.RouteID != existing.RouteID {
		vErr := &ValidationError{}
		vErr.add("route_id", "route cannot be changed")
		return persistence.Schedule{}, vErr
	}
	input.RouteID = existing.RouteID

	updated, err := s.buildSchedule(ctx, params.CompanyID, input)
	if err != nil {
		return persistence.Schedule{}, err
	}
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt

	if err := s.schedules.UpdateSchedule(ctx, updated); err != nil {
		return persistence.Schedule{}, mapScheduleRepoError(err)
	}
	return updated, nil
}

// GetSchedule retrieves a company's schedule by ID.
func (s *ScheduleService) GetSchedule(ctx context.Context, companyID, scheduleID string) (persistence.Schedule, error) {
	schedule, err := s.schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		return persistence.Schedule{}, mapScheduleRepoError(err)
	}
	if schedule.CompanyID != companyID {
		return persistence.Schedule{}, ErrNotFound
	}
	return schedule, nil
}

// ListSchedules lists schedules for a company, optionally per route.
func (s *ScheduleService) ListSchedules(ctx context.Context, companyID string, routeID *string, activeOnly bool) ([]persistence.Schedule, error) {
	return s.schedules.ListSchedules(ctx, persistence.ScheduleFilter{
		CompanyID:  companyID,
		RouteID:    routeID,
		ActiveOnly: activeOnly,
	})
}

// DeleteSchedule removes a schedule that has no materialized trips. Schedules
// with history must be deactivated instead so trip provenance survives.
func (s *ScheduleService) DeleteSchedule(ctx context.Context, companyID, scheduleID string) error {
	schedule, err := s.GetSchedule(ctx, companyID, scheduleID)
	if err != nil {
		return err
	}

	count, err := s.trips.CountTripsForSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: schedule has %d materialized trips, deactivate it instead", ErrConflict, count)
	}

	if err := s.schedules.DeleteSchedule(ctx, scheduleID); err != nil {
		return mapScheduleRepoError(err)
	}

	serviceLogger(ctx, s.logger, "schedule", "delete", "schedule_id", schedule.ID).
		InfoContext(ctx, "schedule deleted")
	return nil
}

// AddException registers a per-date deviation on an existing schedule. A date
// carries at most one exception; a second registration is a conflict.
func (s *ScheduleService) AddException(ctx context.Context, companyID, scheduleID string, exc scheduling.Exception) error {
	if exc == nil {
		vErr := &ValidationError{}
		vErr.add("exception", "an exception is required")
		return vErr
	}
	if _, err := s.GetSchedule(ctx, companyID, scheduleID); err != nil {
		return err
	}

	if err := s.schedules.CreateException(ctx, scheduleID, exc); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			return fmt.Errorf("%w: an exception already exists for %s", ErrConflict, exc.On())
		}
		return mapScheduleRepoError(err)
	}

	serviceLogger(ctx, s.logger, "schedule", "add_exception", "schedule_id", scheduleID).
		InfoContext(ctx, "schedule exception added", "date", exc.On().String())
	return nil
}

// RemoveException deletes the exception on the given date.
func (s *ScheduleService) RemoveException(ctx context.Context, companyID, scheduleID string, date dates.Date) error {
	if _, err := s.GetSchedule(ctx, companyID, scheduleID); err != nil {
		return err
	}

	if err := s.schedules.DeleteException(ctx, scheduleID, date); err != nil {
		return mapScheduleRepoError(err)
	}

	serviceLogger(ctx, s.logger, "schedule", "remove_exception", "schedule_id", scheduleID).
		InfoContext(ctx, "schedule exception removed", "date", date.String())
	return nil
}

func (s *ScheduleService) buildSchedule(ctx context.Context, companyID string, input ScheduleInput) (persistence.Schedule, error) {
	vErr := &ValidationError{}

	kind := persistence.ScheduleKind(strings.TrimSpace(input.Kind))
	switch kind {
	case persistence.ScheduleSingle, persistence.ScheduleRecurring:
	default:
		vErr.add("kind", "kind must be single or recurring")
	}

	departure, err := scheduling.ParseTimeOfDay(input.Departure)
	if err != nil {
		vErr.add("departure", "departure must be HH:MM")
	}
	arrival, err := scheduling.ParseTimeOfDay(input.Arrival)
	if err != nil {
		vErr.add("arrival", "arrival must be HH:MM")
	}

	if input.ValidFrom.IsZero() {
		vErr.add("valid_from", "valid_from is required")
	}
	if input.ValidTo != nil && input.ValidTo.Before(input.ValidFrom) {
		vErr.add("valid_to", "valid_to must not precede valid_from")
	}

	if kind == persistence.ScheduleRecurring {
		if strings.TrimSpace(input.RecurrenceRule) == "" {
			vErr.add("recurrence_rule", "recurrence_rule is required for recurring schedules")
		} else if _, err := s.expander.Expand(input.RecurrenceRule, input.ValidFrom, &input.ValidFrom, nil); err != nil {
			vErr.add("recurrence_rule", "recurrence_rule is not a valid RFC 5545 rule")
		}
	} else if strings.TrimSpace(input.RecurrenceRule) != "" {
		vErr.add("recurrence_rule", "single schedules cannot carry a recurrence rule")
	}

	seenExceptions := make(map[string]struct{}, len(input.Exceptions))
	for i, exc := range input.Exceptions {
		key := exc.On().String()
		if _, dup := seenExceptions[key]; dup {
			vErr.add(fmt.Sprintf("exceptions[%d]", i), "only one exception per date")
		}
		seenExceptions[key] = struct{}{}
	}

	var version persistence.RouteVersion
	if route, err := s.routes.GetRoute(ctx, input.RouteID); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			vErr.add("route_id", "route does not exist")
		} else {
			return persistence.Schedule{}, err
		}
	} else if route.CompanyID != companyID {
		vErr.add("route_id", "route does not exist")
	} else if version, err = s.routes.ActiveRouteVersion(ctx, input.RouteID); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			vErr.add("route_id", "route has no active version")
		} else {
			return persistence.Schedule{}, err
		}
	}

	if len(version.Stops) > 0 {
		validateStopTimeOverrides(version.Stops, input.StopTimes, departure, arrival, vErr)
	}

	if vErr.HasErrors() {
		return persistence.Schedule{}, vErr
	}

	return persistence.Schedule{
		CompanyID:      companyID,
		RouteID:        input.RouteID,
		Kind:           kind,
		RecurrenceRule: strings.TrimSpace(input.RecurrenceRule),
		ValidFrom:      input.ValidFrom,
		ValidTo:        input.ValidTo,
		Departure:      departure,
		Arrival:        arrival,
		VehicleID:      input.VehicleID,
		DriverID:       input.DriverID,
		Modifiers:      input.Modifiers,
		StopTimes:      input.StopTimes,
		Exceptions:     input.Exceptions,
		Active:         input.Active,
	}, nil
}

// validateStopTimeOverrides checks explicit stop times against the active
// stop sequence: overrides must reference known stops, the set must pin down
// the first stop's departure and the last stop's arrival, and those terminal
// times must agree with the schedule's departure and arrival.
func validateStopTimeOverrides(stops []scheduling.RouteStop, overrides []scheduling.ExplicitStopTime, departure, arrival scheduling.TimeOfDay, vErr *ValidationError) {
	if len(overrides) == 0 || len(stops) == 0 {
		return
	}

	known := make(map[string]int, len(stops))
	for i, stop := range stops {
		known[stop.StopID] = i
	}

	var hasFirstDeparture, hasLastArrival bool
	for i, override := range overrides {
		idx, ok := known[override.StopID]
		if !ok {
			vErr.add(fmt.Sprintf("stop_times[%d].stop_id", i), "stop is not on the route")
			continue
		}
		if override.Arrival == nil && override.Departure == nil {
			vErr.add(fmt.Sprintf("stop_times[%d]", i), "an override needs an arrival or departure")
			continue
		}
		if idx == 0 && override.Departure != nil {
			hasFirstDeparture = true
			if *override.Departure != departure {
				vErr.add(fmt.Sprintf("stop_times[%d].departure", i), "first stop departure must match the schedule departure")
			}
		}
		if idx == len(stops)-1 && override.Arrival != nil {
			hasLastArrival = true
			if *override.Arrival != arrival {
				vErr.add(fmt.Sprintf("stop_times[%d].arrival", i), "last stop arrival must match the schedule arrival")
			}
		}
	}

	if !hasFirstDeparture {
		vErr.add("stop_times.first", "explicit stop times must include the first stop's departure")
	}
	if !hasLastArrival {
		vErr.add("stop_times.last", "explicit stop times must include the last stop's arrival")
	}
}

func mapScheduleRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		vErr := &ValidationError{}
		vErr.add("exceptions", "only one exception per date")
		return vErr
	}
	if errors.Is(err, persistence.ErrForeignKeyViolation) {
		vErr := &ValidationError{}
		vErr.add("route_id", "related records are missing")
		return vErr
	}
	return err
}
