package migration

import (
	"context"
	"testing"
)

func TestRunAppliesSchema(t *testing.T) {
	t.Parallel()

	db, err := Connect(DefaultConfig(":memory:"))
	if err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := Run(ctx, db); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	for _, table := range []string{
		"calendars", "calendar_entries",
		"routes", "route_versions", "route_stops",
		"schedules", "schedule_stop_times", "schedule_exceptions",
		"trips", "trip_stop_times",
	} {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing after migration: %v", table, err)
		}
	}
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()

	db, err := Connect(DefaultConfig(":memory:"))
	if err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := Run(ctx, db); err != nil {
		t.Fatalf("first Run returned error: %v", err)
	}
	if err := Run(ctx, db); err != nil {
		t.Fatalf("second Run returned error: %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count applied migrations: %v", err)
	}
	if count != len(Migrations) {
		t.Fatalf("applied %d migrations, want %d", count, len(Migrations))
	}
}

func TestConnectRejectsEmptyDSN(t *testing.T) {
	t.Parallel()

	if _, err := Connect(SQLiteConfig{}); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
