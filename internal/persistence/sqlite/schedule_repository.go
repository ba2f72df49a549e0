package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/intercity-bus/internal/dates"
	"github.com/example/intercity-bus/internal/persistence"
	"github.com/example/intercity-bus/internal/scheduling"
)

// ScheduleRepository implements persistence.ScheduleRepository using SQLite.
type ScheduleRepository struct {
	pool *ConnectionPool
	now  func() time.Time
}

// NewScheduleRepository creates a new SQLite schedule repository.
func NewScheduleRepository(pool *ConnectionPool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool, now: time.Now}
}

// CreateSchedule inserts a schedule with its stop-time overrides and
// exceptions.
func (r *ScheduleRepository) CreateSchedule(ctx context.Context, schedule persistence.Schedule) error {
	if schedule.ID == "" {
		return persistence.ErrConstraintViolation
	}

	now := r.now().UTC()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now

	modifiers, err := scheduling.EncodeModifiers(schedule.Modifiers)
	if err != nil {
		return fmt.Errorf("sqlite: encode modifiers: %w", err)
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		active := 0
		if schedule.Active {
			active = 1
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO schedules (id, company_id, route_id, kind, recurrence_rule, valid_from, valid_to,
				departure, arrival, vehicle_id, driver_id, modifiers, active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			schedule.ID, schedule.CompanyID, schedule.RouteID, string(schedule.Kind), schedule.RecurrenceRule,
			schedule.ValidFrom.String(), nullDate(schedule.ValidTo),
			schedule.Departure.String(), schedule.Arrival.String(),
			nullString(schedule.VehicleID), nullString(schedule.DriverID),
			nullBytes(modifiers), active,
			timestamp(schedule.CreatedAt), timestamp(schedule.UpdatedAt),
		)
		if err != nil {
			return mapError(err)
		}

		if err := r.insertStopTimes(ctx, tx, schedule.ID, schedule.StopTimes); err != nil {
			return err
		}
		return r.insertExceptions(ctx, tx, schedule.ID, schedule.Exceptions)
	})
}

// UpdateSchedule updates a schedule and replaces its stop times and
// exceptions.
func (r *ScheduleRepository) UpdateSchedule(ctx context.Context, schedule persistence.Schedule) error {
	if schedule.ID == "" {
		return persistence.ErrNotFound
	}

	schedule.UpdatedAt = r.now().UTC()

	modifiers, err := scheduling.EncodeModifiers(schedule.Modifiers)
	if err != nil {
		return fmt.Errorf("sqlite: encode modifiers: %w", err)
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		active := 0
		if schedule.Active {
			active = 1
		}
		result, err := tx.ExecContext(ctx, `
			UPDATE schedules
			SET kind = ?, recurrence_rule = ?, valid_from = ?, valid_to = ?,
				departure = ?, arrival = ?, vehicle_id = ?, driver_id = ?,
				modifiers = ?, active = ?, updated_at = ?
			WHERE id = ?`,
			string(schedule.Kind), schedule.RecurrenceRule,
			schedule.ValidFrom.String(), nullDate(schedule.ValidTo),
			schedule.Departure.String(), schedule.Arrival.String(),
			nullString(schedule.VehicleID), nullString(schedule.DriverID),
			nullBytes(modifiers), active, timestamp(schedule.UpdatedAt),
			schedule.ID,
		)
		if err != nil {
			return mapError(err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: rows affected: %w", err)
		}
		if affected == 0 {
			return persistence.ErrNotFound
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM schedule_stop_times WHERE schedule_id = ?", schedule.ID); err != nil {
			return mapError(err)
		}
		if err := r.insertStopTimes(ctx, tx, schedule.ID, schedule.StopTimes); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM schedule_exceptions WHERE schedule_id = ?", schedule.ID); err != nil {
			return mapError(err)
		}
		return r.insertExceptions(ctx, tx, schedule.ID, schedule.Exceptions)
	})
}

// GetSchedule retrieves a schedule with its stop times and exceptions by ID.
func (r *ScheduleRepository) GetSchedule(ctx context.Context, id string) (persistence.Schedule, error) {
	row := r.pool.DB().QueryRowContext(ctx, scheduleSelect+" WHERE id = ?", id)
	schedule, err := scanSchedule(row)
	if err != nil {
		return persistence.Schedule{}, err
	}
	return r.loadChildren(ctx, schedule)
}

// ListSchedules lists schedules matching the filter, ordered by departure
// time then id.
func (r *ScheduleRepository) ListSchedules(ctx context.Context, filter persistence.ScheduleFilter) ([]persistence.Schedule, error) {
	query := scheduleSelect + " WHERE company_id = ?"
	args := []any{filter.CompanyID}

	if filter.RouteID != nil {
		query += " AND route_id = ?"
		args = append(args, *filter.RouteID)
	}
	if filter.ActiveOnly {
		query += " AND active = 1"
	}
	query += " ORDER BY departure ASC, id ASC"

	rows, err := r.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var schedules []persistence.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	for i := range schedules {
		if schedules[i], err = r.loadChildren(ctx, schedules[i]); err != nil {
			return nil, err
		}
	}
	return schedules, nil
}

// DeleteSchedule removes a schedule; stop times and exceptions cascade.
// Callers are expected to refuse deletion while materialized trips reference
// the schedule; the trips foreign key backstops that rule.
func (r *ScheduleRepository) DeleteSchedule(ctx context.Context, id string) error {
	result, err := r.pool.DB().ExecContext(ctx, "DELETE FROM schedules WHERE id = ?", id)
	if err != nil {
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

const scheduleSelect = `
	SELECT id, company_id, route_id, kind, recurrence_rule, valid_from, valid_to,
		departure, arrival, vehicle_id, driver_id, modifiers, active, created_at, updated_at
	FROM schedules`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (persistence.Schedule, error) {
	var schedule persistence.Schedule
	var kind, validFrom, departure, arrival, createdAt, updatedAt string
	var validTo, vehicleID, driverID, modifiers sql.NullString
	var active int

	err := row.Scan(&schedule.ID, &schedule.CompanyID, &schedule.RouteID, &kind, &schedule.RecurrenceRule,
		&validFrom, &validTo, &departure, &arrival, &vehicleID, &driverID, &modifiers, &active,
		&createdAt, &updatedAt)
	if err != nil {
		return persistence.Schedule{}, mapError(err)
	}

	schedule.Kind = persistence.ScheduleKind(kind)
	schedule.Active = active != 0
	schedule.VehicleID = stringPtr(vehicleID)
	schedule.DriverID = stringPtr(driverID)

	if schedule.ValidFrom, err = dates.Parse(validFrom); err != nil {
		return persistence.Schedule{}, fmt.Errorf("sqlite: parse valid_from: %w", err)
	}
	if schedule.ValidTo, err = datePtr("valid_to", validTo); err != nil {
		return persistence.Schedule{}, err
	}
	if schedule.Departure, err = scheduling.ParseTimeOfDay(departure); err != nil {
		return persistence.Schedule{}, fmt.Errorf("sqlite: parse departure: %w", err)
	}
	if schedule.Arrival, err = scheduling.ParseTimeOfDay(arrival); err != nil {
		return persistence.Schedule{}, fmt.Errorf("sqlite: parse arrival: %w", err)
	}
	if modifiers.Valid {
		if schedule.Modifiers, err = scheduling.DecodeModifiers([]byte(modifiers.String)); err != nil {
			return persistence.Schedule{}, fmt.Errorf("sqlite: decode modifiers: %w", err)
		}
	}
	if schedule.CreatedAt, err = parseTimestamp("created_at", createdAt); err != nil {
		return persistence.Schedule{}, err
	}
	if schedule.UpdatedAt, err = parseTimestamp("updated_at", updatedAt); err != nil {
		return persistence.Schedule{}, err
	}
	return schedule, nil
}

func (r *ScheduleRepository) loadChildren(ctx context.Context, schedule persistence.Schedule) (persistence.Schedule, error) {
	var err error
	if schedule.StopTimes, err = r.loadStopTimes(ctx, schedule.ID); err != nil {
		return persistence.Schedule{}, err
	}
	if schedule.Exceptions, err = r.loadExceptions(ctx, schedule.ID); err != nil {
		return persistence.Schedule{}, err
	}
	return schedule, nil
}

func (r *ScheduleRepository) insertStopTimes(ctx context.Context, tx *sql.Tx, scheduleID string, stopTimes []scheduling.ExplicitStopTime) error {
	for _, st := range stopTimes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO schedule_stop_times (schedule_id, stop_id, arrival, departure)
			VALUES (?, ?, ?, ?)`,
			scheduleID, st.StopID, nullTimeOfDay(st.Arrival), nullTimeOfDay(st.Departure),
		)
		if err != nil {
			return mapError(err)
		}
	}
	return nil
}

func (r *ScheduleRepository) loadStopTimes(ctx context.Context, scheduleID string) ([]scheduling.ExplicitStopTime, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT stop_id, arrival, departure
		FROM schedule_stop_times WHERE schedule_id = ? ORDER BY stop_id ASC`, scheduleID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var stopTimes []scheduling.ExplicitStopTime
	for rows.Next() {
		var st scheduling.ExplicitStopTime
		var arrival, departure sql.NullString
		if err := rows.Scan(&st.StopID, &arrival, &departure); err != nil {
			return nil, mapError(err)
		}
		if st.Arrival, err = timeOfDayPtr("arrival", arrival); err != nil {
			return nil, err
		}
		if st.Departure, err = timeOfDayPtr("departure", departure); err != nil {
			return nil, err
		}
		stopTimes = append(stopTimes, st)
	}
	return stopTimes, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *ScheduleRepository) insertExceptions(ctx context.Context, tx *sql.Tx, scheduleID string, exceptions []scheduling.Exception) error {
	for _, exc := range exceptions {
		if err := insertException(ctx, tx, scheduleID, exc); err != nil {
			return err
		}
	}
	return nil
}

func insertException(ctx context.Context, db execer, scheduleID string, exc scheduling.Exception) error {
	var kind, reason string
	var departure, arrival, vehicleID, driverID sql.NullString

	switch e := exc.(type) {
	case scheduling.Skip:
		kind = "skip"
		reason = e.Reason
	case scheduling.Modify:
		kind = "modify"
		departure = nullTimeOfDay(e.Departure)
		arrival = nullTimeOfDay(e.Arrival)
		vehicleID = nullString(e.VehicleID)
		driverID = nullString(e.DriverID)
		reason = e.Reason
	default:
		return fmt.Errorf("sqlite: unsupported exception %T", exc)
	}

	// The (schedule, date) pair is unique, so the id can be derived.
	_, err := db.ExecContext(ctx, `
		INSERT INTO schedule_exceptions (id, schedule_id, exception_date, kind, departure, arrival, vehicle_id, driver_id, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		scheduleID+":"+exc.On().String(), scheduleID, exc.On().String(),
		kind, departure, arrival, vehicleID, driverID, reason,
	)
	if err != nil {
		return mapError(err)
	}
	return nil
}

// CreateException adds one per-date exception outside the wholesale
// create/update path. The UNIQUE (schedule_id, exception_date) constraint
// surfaces duplicates as ErrDuplicate.
func (r *ScheduleRepository) CreateException(ctx context.Context, scheduleID string, exc scheduling.Exception) error {
	return insertException(ctx, r.pool.DB(), scheduleID, exc)
}

// DeleteException removes the exception on the given date, if any.
func (r *ScheduleRepository) DeleteException(ctx context.Context, scheduleID string, date dates.Date) error {
	result, err := r.pool.DB().ExecContext(ctx,
		"DELETE FROM schedule_exceptions WHERE schedule_id = ? AND exception_date = ?",
		scheduleID, date.String())
	if err != nil {
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (r *ScheduleRepository) loadExceptions(ctx context.Context, scheduleID string) ([]scheduling.Exception, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT exception_date, kind, departure, arrival, vehicle_id, driver_id, reason
		FROM schedule_exceptions WHERE schedule_id = ? ORDER BY exception_date ASC`, scheduleID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var exceptions []scheduling.Exception
	for rows.Next() {
		var dateStr, kind, reason string
		var departure, arrival, vehicleID, driverID sql.NullString
		if err := rows.Scan(&dateStr, &kind, &departure, &arrival, &vehicleID, &driverID, &reason); err != nil {
			return nil, mapError(err)
		}

		date, err := dates.Parse(dateStr)
		if err != nil {
			return nil, fmt.Errorf("sqlite: parse exception_date: %w", err)
		}

		switch kind {
		case "skip":
			exceptions = append(exceptions, scheduling.Skip{Date: date, Reason: reason})
		case "modify":
			modify := scheduling.Modify{Date: date, Reason: reason}
			if modify.Departure, err = timeOfDayPtr("departure", departure); err != nil {
				return nil, err
			}
			if modify.Arrival, err = timeOfDayPtr("arrival", arrival); err != nil {
				return nil, err
			}
			modify.VehicleID = stringPtr(vehicleID)
			modify.DriverID = stringPtr(driverID)
			exceptions = append(exceptions, modify)
		default:
			return nil, fmt.Errorf("sqlite: unsupported exception kind %q", kind)
		}
	}
	return exceptions, rows.Err()
}

func nullBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
