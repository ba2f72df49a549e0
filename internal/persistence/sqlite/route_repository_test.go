package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/example/intercity-bus/internal/persistence"
	"github.com/example/intercity-bus/internal/scheduling"
)

func TestCreateRouteVersionActivationSwitch(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	seedRoute(t, pool, "route-1", "rv-1")

	ctx := context.Background()
	repo := NewRouteRepository(pool)

	// A second active version deactivates the first in the same transaction.
	err := repo.CreateRouteVersion(ctx, persistence.RouteVersion{
		ID: "rv-2", RouteID: "route-1", Version: 2, Active: true,
		Stops: []scheduling.RouteStop{
			{StopID: "stop-a", Name: "Warszawa Zachodnia", Sequence: 1},
			{StopID: "stop-x", Name: "Zgierz", Sequence: 2, DurationFromStartMin: 70},
			{StopID: "stop-b", Name: "Lodz Fabryczna", Sequence: 3, DurationFromStartMin: 90},
		},
	})
	if err != nil {
		t.Fatalf("CreateRouteVersion returned error: %v", err)
	}

	active, err := repo.ActiveRouteVersion(ctx, "route-1")
	if err != nil {
		t.Fatalf("ActiveRouteVersion returned error: %v", err)
	}
	if active.ID != "rv-2" || len(active.Stops) != 3 {
		t.Fatalf("unexpected active version: %+v", active)
	}

	old, err := repo.GetRouteVersion(ctx, "rv-1")
	if err != nil {
		t.Fatalf("GetRouteVersion returned error: %v", err)
	}
	if old.Active {
		t.Fatal("previous version still active")
	}
}

func TestCreateRouteVersionRejectsShortStopList(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	seedRoute(t, pool, "route-1", "rv-1")

	err := NewRouteRepository(pool).CreateRouteVersion(context.Background(), persistence.RouteVersion{
		ID: "rv-2", RouteID: "route-1", Version: 2,
		Stops: []scheduling.RouteStop{{StopID: "stop-a", Sequence: 1}},
	})
	if !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("single-stop version = %v, want ErrConstraintViolation", err)
	}
}

func TestActiveRouteVersionsBatch(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	seedRoute(t, pool, "route-1", "rv-1")

	ctx := context.Background()
	repo := NewRouteRepository(pool)

	// A route without any active version is simply absent from the result.
	if err := repo.CreateRoute(ctx, persistence.Route{
		ID: "route-2", CompanyID: "co-1", Code: "WAW-KRK", Name: "Warszawa - Krakow",
	}); err != nil {
		t.Fatalf("create route: %v", err)
	}

	got, err := repo.ActiveRouteVersions(ctx, []string{"route-1", "route-2", "route-missing"})
	if err != nil {
		t.Fatalf("ActiveRouteVersions returned error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d versions, want 1: %+v", len(got), got)
	}
	version, ok := got["route-1"]
	if !ok || version.ID != "rv-1" || len(version.Stops) != 2 {
		t.Fatalf("route-1 version wrong: %+v", version)
	}

	empty, err := repo.ActiveRouteVersions(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty input = %v, %v", empty, err)
	}
}

func TestRouteCodeUniquePerCompany(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	seedRoute(t, pool, "route-1", "rv-1")

	err := NewRouteRepository(pool).CreateRoute(context.Background(), persistence.Route{
		ID: "route-2", CompanyID: "co-1", Code: "WAW-LDZ", Name: "Duplicate",
	})
	if !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("duplicate code = %v, want ErrDuplicate", err)
	}
}
