package sqlite

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/example/intercity-bus/internal/dates"
	"github.com/example/intercity-bus/internal/persistence"
	"github.com/example/intercity-bus/internal/scheduling"
)

// newTestPool opens a migrated in-memory database unique to the test. The
// shared-cache URI keeps all pooled connections on the same database.
func newTestPool(t *testing.T) *ConnectionPool {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	pool, err := Open(dsn)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	if err := pool.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

func seedRoute(t *testing.T, pool *ConnectionPool, routeID, versionID string) {
	t.Helper()
	ctx := context.Background()

	routes := NewRouteRepository(pool)
	if err := routes.CreateRoute(ctx, persistence.Route{
		ID: routeID, CompanyID: "co-1", Code: "WAW-LDZ", Name: "Warszawa - Lodz",
	}); err != nil {
		t.Fatalf("seed route: %v", err)
	}
	if err := routes.CreateRouteVersion(ctx, persistence.RouteVersion{
		ID: versionID, RouteID: routeID, Version: 1, Active: true,
		Stops: []scheduling.RouteStop{
			{StopID: "stop-a", Name: "Warszawa Zachodnia", Sequence: 1},
			{StopID: "stop-b", Name: "Lodz Fabryczna", Sequence: 2, DurationFromStartMin: 90},
		},
	}); err != nil {
		t.Fatalf("seed route version: %v", err)
	}
}

func seedSchedule(t *testing.T, pool *ConnectionPool, scheduleID, routeID string) {
	t.Helper()

	repo := NewScheduleRepository(pool)
	err := repo.CreateSchedule(context.Background(), persistence.Schedule{
		ID:             scheduleID,
		CompanyID:      "co-1",
		RouteID:        routeID,
		Kind:           persistence.ScheduleRecurring,
		RecurrenceRule: "FREQ=DAILY",
		ValidFrom:      dates.MustParse("2026-01-01"),
		Departure:      scheduling.MustParseTimeOfDay("08:00"),
		Arrival:        scheduling.MustParseTimeOfDay("09:30"),
		Active:         true,
	})
	if err != nil {
		t.Fatalf("seed schedule: %v", err)
	}
}

func baseTrip(id, versionID string, scheduleID *string, date dates.Date) persistence.Trip {
	dep := date.Midnight(time.UTC).Add(8 * time.Hour)
	trip := persistence.Trip{
		ID:             id,
		CompanyID:      "co-1",
		RouteVersionID: versionID,
		ScheduleID:     scheduleID,
		ServiceDate:    date,
		Status:         persistence.TripScheduled,
		Departure:      dep,
		Arrival:        dep.Add(90 * time.Minute),
	}
	if scheduleID != nil {
		d := date
		trip.ScheduleDate = &d
	}
	return trip
}

func tripStops(tripID string, dep time.Time) []persistence.TripStopTime {
	return []persistence.TripStopTime{
		{TripID: tripID, StopID: "stop-a", Name: "Warszawa Zachodnia", Sequence: 1, PlannedArrival: dep, PlannedDeparture: dep},
		{TripID: tripID, StopID: "stop-b", Name: "Lodz Fabryczna", Sequence: 2, PlannedArrival: dep.Add(90 * time.Minute), PlannedDeparture: dep.Add(90 * time.Minute)},
	}
}
