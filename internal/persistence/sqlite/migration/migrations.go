package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Migration is one versioned schema change. Statements run inside a single
// transaction together with the version bookkeeping.
type Migration struct {
	Version     int
	Description string
	Statements  []string
}

// Migrations is the ordered, embedded schema history of the store.
var Migrations = []Migration{
	{
		Version:     1,
		Description: "calendars and date rule entries",
		Statements: []string{
			`CREATE TABLE calendars (
				id TEXT PRIMARY KEY,
				company_id TEXT,
				code TEXT NOT NULL,
				name TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				UNIQUE (code)
			)`,
			`CREATE TABLE calendar_entries (
				id TEXT PRIMARY KEY,
				calendar_id TEXT NOT NULL REFERENCES calendars(id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				rule_type TEXT NOT NULL CHECK (rule_type IN ('fixed','easter_relative','nth_weekday','range')),
				month INTEGER,
				day INTEGER,
				year INTEGER,
				offset_days INTEGER,
				nth INTEGER,
				weekday INTEGER,
				start_date TEXT,
				end_date TEXT
			)`,
			`CREATE INDEX idx_calendar_entries_calendar ON calendar_entries (calendar_id)`,
		},
	},
	{
		Version:     2,
		Description: "routes and versioned stop sequences",
		Statements: []string{
			`CREATE TABLE routes (
				id TEXT PRIMARY KEY,
				company_id TEXT NOT NULL,
				code TEXT NOT NULL,
				name TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				UNIQUE (company_id, code)
			)`,
			`CREATE TABLE route_versions (
				id TEXT PRIMARY KEY,
				route_id TEXT NOT NULL REFERENCES routes(id),
				version INTEGER NOT NULL,
				active INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				UNIQUE (route_id, version)
			)`,
			`CREATE TABLE route_stops (
				route_version_id TEXT NOT NULL REFERENCES route_versions(id) ON DELETE CASCADE,
				stop_id TEXT NOT NULL,
				name TEXT NOT NULL,
				sequence INTEGER NOT NULL,
				distance_from_start_m REAL NOT NULL DEFAULT 0,
				duration_from_start_min INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (route_version_id, sequence)
			)`,
		},
	},
	{
		Version:     3,
		Description: "schedules with stop time overrides and exceptions",
		Statements: []string{
			`CREATE TABLE schedules (
				id TEXT PRIMARY KEY,
				company_id TEXT NOT NULL,
				route_id TEXT NOT NULL REFERENCES routes(id),
				kind TEXT NOT NULL CHECK (kind IN ('single','recurring')),
				recurrence_rule TEXT NOT NULL DEFAULT '',
				valid_from TEXT NOT NULL,
				valid_to TEXT,
				departure TEXT NOT NULL,
				arrival TEXT NOT NULL,
				vehicle_id TEXT,
				driver_id TEXT,
				modifiers TEXT,
				active INTEGER NOT NULL DEFAULT 1,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX idx_schedules_company_route ON schedules (company_id, route_id)`,
			`CREATE TABLE schedule_stop_times (
				schedule_id TEXT NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
				stop_id TEXT NOT NULL,
				arrival TEXT,
				departure TEXT,
				PRIMARY KEY (schedule_id, stop_id)
			)`,
			`CREATE TABLE schedule_exceptions (
				id TEXT PRIMARY KEY,
				schedule_id TEXT NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
				exception_date TEXT NOT NULL,
				kind TEXT NOT NULL CHECK (kind IN ('skip','modify')),
				departure TEXT,
				arrival TEXT,
				vehicle_id TEXT,
				driver_id TEXT,
				reason TEXT NOT NULL DEFAULT '',
				UNIQUE (schedule_id, exception_date)
			)`,
		},
	},
	{
		Version:     4,
		Description: "materialized trips and per stop timings",
		Statements: []string{
			`CREATE TABLE trips (
				id TEXT PRIMARY KEY,
				company_id TEXT NOT NULL,
				route_version_id TEXT NOT NULL REFERENCES route_versions(id),
				schedule_id TEXT REFERENCES schedules(id),
				schedule_date TEXT,
				service_date TEXT NOT NULL,
				status TEXT NOT NULL CHECK (status IN ('scheduled','in_progress','completed','cancelled')),
				departure TEXT NOT NULL,
				arrival TEXT NOT NULL,
				vehicle_id TEXT,
				driver_id TEXT,
				note TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				UNIQUE (schedule_id, schedule_date)
			)`,
			`CREATE INDEX idx_trips_company_date ON trips (company_id, service_date)`,
			`CREATE TABLE trip_stop_times (
				trip_id TEXT NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
				stop_id TEXT NOT NULL,
				name TEXT NOT NULL,
				sequence INTEGER NOT NULL,
				planned_arrival TEXT NOT NULL,
				planned_departure TEXT NOT NULL,
				actual_arrival TEXT,
				actual_departure TEXT,
				PRIMARY KEY (trip_id, stop_id)
			)`,
		},
	},
}

// Run applies every pending migration in version order. Each migration and
// its bookkeeping commit atomically, so a failed migration leaves the schema
// at the previous version.
func Run(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("migration: initialize version table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range Migrations {
		if _, ok := applied[m.Version]; ok {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]struct{}, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("migration: read applied versions: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]struct{})
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("migration: scan version: %w", err)
		}
		applied[v] = struct{}{}
	}
	return applied, rows.Err()
}

func apply(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %d: begin: %w", m.Version, err)
	}
	defer tx.Rollback()

	for _, stmt := range m.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
		m.Version, m.Description, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("migration %d: record version: %w", m.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration %d: commit: %w", m.Version, err)
	}
	return nil
}
