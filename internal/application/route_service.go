package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/intercity-bus/internal/persistence"
	"github.com/example/intercity-bus/internal/scheduling"
)

// RouteStore captures the persistence interactions needed by the service.
type RouteStore interface {
	CreateRoute(ctx context.Context, route persistence.Route) error
	GetRoute(ctx context.Context, id string) (persistence.Route, error)
	ListRoutes(ctx context.Context, companyID string) ([]persistence.Route, error)
	CreateRouteVersion(ctx context.Context, version persistence.RouteVersion) error
	GetRouteVersion(ctx context.Context, id string) (persistence.RouteVersion, error)
	ActiveRouteVersion(ctx context.Context, routeID string) (persistence.RouteVersion, error)
}

// RouteService manages routes and their versioned stop sequences.
type RouteService struct {
	routes      RouteStore
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewRouteService wires dependencies for route operations.
func NewRouteService(routes RouteStore, idGenerator func() string, now func() time.Time, logger *slog.Logger) *RouteService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &RouteService{routes: routes, idGenerator: idGenerator, now: now, logger: logger}
}

// CreateRoute validates and persists a new route.
func (s *RouteService) CreateRoute(ctx context.Context, companyID string, input RouteInput) (persistence.Route, error) {
	vErr := &ValidationError{}
	if strings.TrimSpace(input.Code) == "" {
		vErr.add("code", "code is required")
	}
	if strings.TrimSpace(input.Name) == "" {
		vErr.add("name", "name is required")
	}
	if vErr.HasErrors() {
		return persistence.Route{}, vErr
	}

	route := persistence.Route{
		ID:        s.idGenerator(),
		CompanyID: companyID,
		Code:      strings.TrimSpace(input.Code),
		Name:      strings.TrimSpace(input.Name),
	}
	if err := s.routes.CreateRoute(ctx, route); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			vErr := &ValidationError{}
			vErr.add("code", "route code already in use")
			return persistence.Route{}, vErr
		}
		return persistence.Route{}, err
	}

	serviceLogger(ctx, s.logger, "route", "create", "route_id", route.ID).
		InfoContext(ctx, "route created", "code", route.Code)
	return route, nil
}

// GetRoute retrieves a company's route by ID.
func (s *RouteService) GetRoute(ctx context.Context, companyID, routeID string) (persistence.Route, error) {
	route, err := s.routes.GetRoute(ctx, routeID)
	if err != nil {
		return persistence.Route{}, mapRepoError(err)
	}
	if route.CompanyID != companyID {
		return persistence.Route{}, ErrNotFound
	}
	return route, nil
}

// ListRoutes lists a company's routes.
func (s *RouteService) ListRoutes(ctx context.Context, companyID string) ([]persistence.Route, error) {
	return s.routes.ListRoutes(ctx, companyID)
}

// CreateRouteVersion validates and persists a new stop sequence for a route.
// The version number continues from the route's current active version.
func (s *RouteService) CreateRouteVersion(ctx context.Context, companyID, routeID string, input RouteVersionInput) (persistence.RouteVersion, error) {
	if _, err := s.GetRoute(ctx, companyID, routeID); err != nil {
		return persistence.RouteVersion{}, err
	}

	if err := validateStops(input.Stops); err != nil {
		return persistence.RouteVersion{}, err
	}

	next := 1
	if current, err := s.routes.ActiveRouteVersion(ctx, routeID); err == nil {
		next = current.Version + 1
	} else if !errors.Is(err, persistence.ErrNotFound) {
		return persistence.RouteVersion{}, err
	}

	version := persistence.RouteVersion{
		ID:      s.idGenerator(),
		RouteID: routeID,
		Version: next,
		Active:  input.Activate,
		Stops:   input.Stops,
	}
	if err := s.routes.CreateRouteVersion(ctx, version); err != nil {
		return persistence.RouteVersion{}, err
	}

	serviceLogger(ctx, s.logger, "route", "create_version", "route_id", routeID).
		InfoContext(ctx, "route version created", "version", version.Version, "active", version.Active, "stops", len(version.Stops))
	return version, nil
}

// ActiveRouteVersion retrieves the active stop sequence of a route.
func (s *RouteService) ActiveRouteVersion(ctx context.Context, companyID, routeID string) (persistence.RouteVersion, error) {
	if _, err := s.GetRoute(ctx, companyID, routeID); err != nil {
		return persistence.RouteVersion{}, err
	}
	version, err := s.routes.ActiveRouteVersion(ctx, routeID)
	if err != nil {
		return persistence.RouteVersion{}, mapRepoError(err)
	}
	return version, nil
}

func validateStops(stops []scheduling.RouteStop) error {
	vErr := &ValidationError{}
	if len(stops) < 2 {
		vErr.add("stops", "a route needs at least two stops")
		return vErr
	}

	seen := make(map[string]struct{}, len(stops))
	prevDuration := -1
	for i, stop := range stops {
		if strings.TrimSpace(stop.StopID) == "" {
			vErr.add(fmt.Sprintf("stops[%d].stop_id", i), "stop_id is required")
		}
		if strings.TrimSpace(stop.Name) == "" {
			vErr.add(fmt.Sprintf("stops[%d].name", i), "name is required")
		}
		if stop.Sequence != i+1 {
			vErr.add(fmt.Sprintf("stops[%d].sequence", i), "sequence must be contiguous starting at 1")
		}
		if _, dup := seen[stop.StopID]; dup {
			vErr.add(fmt.Sprintf("stops[%d].stop_id", i), "duplicate stop")
		}
		seen[stop.StopID] = struct{}{}
		if stop.DurationFromStartMin < prevDuration {
			vErr.add(fmt.Sprintf("stops[%d].duration_from_start_min", i), "cumulative duration must not decrease")
		}
		prevDuration = stop.DurationFromStartMin
	}

	if vErr.HasErrors() {
		return vErr
	}
	return nil
}
