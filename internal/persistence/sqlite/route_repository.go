package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/intercity-bus/internal/persistence"
	"github.com/example/intercity-bus/internal/scheduling"
)

// RouteRepository implements persistence.RouteRepository using SQLite.
type RouteRepository struct {
	pool *ConnectionPool
	now  func() time.Time
}

// NewRouteRepository creates a new SQLite route repository.
func NewRouteRepository(pool *ConnectionPool) *RouteRepository {
	return &RouteRepository{pool: pool, now: time.Now}
}

// CreateRoute inserts a new route.
func (r *RouteRepository) CreateRoute(ctx context.Context, route persistence.Route) error {
	if route.ID == "" {
		return persistence.ErrConstraintViolation
	}

	now := r.now().UTC()
	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO routes (id, company_id, code, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		route.ID, route.CompanyID, route.Code, route.Name, timestamp(now), timestamp(now),
	)
	return mapError(err)
}

// GetRoute retrieves a route by ID.
func (r *RouteRepository) GetRoute(ctx context.Context, id string) (persistence.Route, error) {
	var route persistence.Route
	var createdAt, updatedAt string

	err := r.pool.DB().QueryRowContext(ctx, `
		SELECT id, company_id, code, name, created_at, updated_at
		FROM routes WHERE id = ?`, id,
	).Scan(&route.ID, &route.CompanyID, &route.Code, &route.Name, &createdAt, &updatedAt)
	if err != nil {
		return persistence.Route{}, mapError(err)
	}

	if route.CreatedAt, err = parseTimestamp("created_at", createdAt); err != nil {
		return persistence.Route{}, err
	}
	if route.UpdatedAt, err = parseTimestamp("updated_at", updatedAt); err != nil {
		return persistence.Route{}, err
	}
	return route, nil
}

// ListRoutes lists a company's routes ordered by code.
func (r *RouteRepository) ListRoutes(ctx context.Context, companyID string) ([]persistence.Route, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT id, company_id, code, name, created_at, updated_at
		FROM routes WHERE company_id = ? ORDER BY code ASC`, companyID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var routes []persistence.Route
	for rows.Next() {
		var route persistence.Route
		var createdAt, updatedAt string
		if err := rows.Scan(&route.ID, &route.CompanyID, &route.Code, &route.Name, &createdAt, &updatedAt); err != nil {
			return nil, mapError(err)
		}
		if route.CreatedAt, err = parseTimestamp("created_at", createdAt); err != nil {
			return nil, err
		}
		if route.UpdatedAt, err = parseTimestamp("updated_at", updatedAt); err != nil {
			return nil, err
		}
		routes = append(routes, route)
	}
	return routes, rows.Err()
}

// CreateRouteVersion inserts a new stop-sequence snapshot. When the version is
// marked active, every other version of the route is deactivated in the same
// transaction.
func (r *RouteRepository) CreateRouteVersion(ctx context.Context, version persistence.RouteVersion) error {
	if version.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if len(version.Stops) < 2 {
		return persistence.ErrConstraintViolation
	}

	now := r.now().UTC()
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if version.Active {
			if _, err := tx.ExecContext(ctx,
				"UPDATE route_versions SET active = 0 WHERE route_id = ?", version.RouteID); err != nil {
				return mapError(err)
			}
		}

		active := 0
		if version.Active {
			active = 1
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO route_versions (id, route_id, version, active, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			version.ID, version.RouteID, version.Version, active, timestamp(now),
		)
		if err != nil {
			return mapError(err)
		}

		for _, stop := range version.Stops {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO route_stops (route_version_id, stop_id, name, sequence, distance_from_start_m, duration_from_start_min)
				VALUES (?, ?, ?, ?, ?, ?)`,
				version.ID, stop.StopID, stop.Name, stop.Sequence, stop.DistanceFromStartM, stop.DurationFromStartMin,
			)
			if err != nil {
				return mapError(err)
			}
		}
		return nil
	})
}

// GetRouteVersion retrieves a route version with its stops by ID.
func (r *RouteRepository) GetRouteVersion(ctx context.Context, id string) (persistence.RouteVersion, error) {
	return r.getVersion(ctx, "rv.id = ?", id)
}

// ActiveRouteVersion retrieves the active version of a route.
func (r *RouteRepository) ActiveRouteVersion(ctx context.Context, routeID string) (persistence.RouteVersion, error) {
	return r.getVersion(ctx, "rv.route_id = ? AND rv.active = 1", routeID)
}

func (r *RouteRepository) getVersion(ctx context.Context, where string, args ...any) (persistence.RouteVersion, error) {
	var version persistence.RouteVersion
	var active int
	var createdAt string

	err := r.pool.DB().QueryRowContext(ctx, `
		SELECT rv.id, rv.route_id, rv.version, rv.active, rv.created_at
		FROM route_versions rv WHERE `+where, args...,
	).Scan(&version.ID, &version.RouteID, &version.Version, &active, &createdAt)
	if err != nil {
		return persistence.RouteVersion{}, mapError(err)
	}
	version.Active = active != 0
	if version.CreatedAt, err = parseTimestamp("created_at", createdAt); err != nil {
		return persistence.RouteVersion{}, err
	}

	version.Stops, err = r.loadStops(ctx, version.ID)
	if err != nil {
		return persistence.RouteVersion{}, err
	}
	return version, nil
}

// ActiveRouteVersions resolves the active version of each given route in one
// query, keyed by route id.
func (r *RouteRepository) ActiveRouteVersions(ctx context.Context, routeIDs []string) (map[string]persistence.RouteVersion, error) {
	out := make(map[string]persistence.RouteVersion, len(routeIDs))
	if len(routeIDs) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(routeIDs))
	args := make([]any, len(routeIDs))
	for i, id := range routeIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := r.pool.DB().QueryContext(ctx, fmt.Sprintf(`
		SELECT rv.id, rv.route_id, rv.version, rv.created_at
		FROM route_versions rv
		WHERE rv.active = 1 AND rv.route_id IN (%s)`, strings.Join(placeholders, ",")), args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var version persistence.RouteVersion
		var createdAt string
		if err := rows.Scan(&version.ID, &version.RouteID, &version.Version, &createdAt); err != nil {
			return nil, mapError(err)
		}
		version.Active = true
		if version.CreatedAt, err = parseTimestamp("created_at", createdAt); err != nil {
			return nil, err
		}
		out[version.RouteID] = version
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	for routeID, version := range out {
		if version.Stops, err = r.loadStops(ctx, version.ID); err != nil {
			return nil, err
		}
		out[routeID] = version
	}
	return out, nil
}

func (r *RouteRepository) loadStops(ctx context.Context, versionID string) ([]scheduling.RouteStop, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT stop_id, name, sequence, distance_from_start_m, duration_from_start_min
		FROM route_stops WHERE route_version_id = ? ORDER BY sequence ASC`, versionID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var stops []scheduling.RouteStop
	for rows.Next() {
		var stop scheduling.RouteStop
		if err := rows.Scan(&stop.StopID, &stop.Name, &stop.Sequence, &stop.DistanceFromStartM, &stop.DurationFromStartMin); err != nil {
			return nil, mapError(err)
		}
		stops = append(stops, stop)
	}
	return stops, rows.Err()
}
