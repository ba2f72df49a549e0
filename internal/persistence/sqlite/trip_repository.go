package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/intercity-bus/internal/dates"
	"github.com/example/intercity-bus/internal/persistence"
)

// TripRepository implements persistence.TripRepository using SQLite.
type TripRepository struct {
	pool *ConnectionPool
	now  func() time.Time
}

// NewTripRepository creates a new SQLite trip repository.
func NewTripRepository(pool *ConnectionPool) *TripRepository {
	return &TripRepository{pool: pool, now: time.Now}
}

// CreateTripWithStops inserts the trip and its stop times in one transaction.
// The UNIQUE (schedule_id, schedule_date) constraint turns a concurrent second
// materialization of the same occurrence into ErrDuplicate.
func (r *TripRepository) CreateTripWithStops(ctx context.Context, trip persistence.Trip, stops []persistence.TripStopTime) error {
	if trip.ID == "" {
		return persistence.ErrConstraintViolation
	}

	now := r.now().UTC()
	trip.CreatedAt = now
	trip.UpdatedAt = now

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO trips (id, company_id, route_version_id, schedule_id, schedule_date, service_date,
				status, departure, arrival, vehicle_id, driver_id, note, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			trip.ID, trip.CompanyID, trip.RouteVersionID,
			nullString(trip.ScheduleID), nullDate(trip.ScheduleDate), trip.ServiceDate.String(),
			string(trip.Status), timestamp(trip.Departure), timestamp(trip.Arrival),
			nullString(trip.VehicleID), nullString(trip.DriverID), nullString(trip.Note),
			timestamp(trip.CreatedAt), timestamp(trip.UpdatedAt),
		)
		if err != nil {
			return mapError(err)
		}

		for _, stop := range stops {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO trip_stop_times (trip_id, stop_id, name, sequence, planned_arrival, planned_departure, actual_arrival, actual_departure)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				trip.ID, stop.StopID, stop.Name, stop.Sequence,
				timestamp(stop.PlannedArrival), timestamp(stop.PlannedDeparture),
				nullTimestamp(stop.ActualArrival), nullTimestamp(stop.ActualDeparture),
			)
			if err != nil {
				return mapError(err)
			}
		}
		return nil
	})
}

// GetTrip retrieves a trip by ID.
func (r *TripRepository) GetTrip(ctx context.Context, id string) (persistence.Trip, error) {
	row := r.pool.DB().QueryRowContext(ctx, tripSelect+" WHERE id = ?", id)
	return scanTrip(row)
}

// GetTripBySchedule finds the materialized trip of a schedule occurrence.
func (r *TripRepository) GetTripBySchedule(ctx context.Context, scheduleID string, date dates.Date) (persistence.Trip, error) {
	row := r.pool.DB().QueryRowContext(ctx,
		tripSelect+" WHERE schedule_id = ? AND schedule_date = ?", scheduleID, date.String())
	return scanTrip(row)
}

// ListTrips lists trips matching the filter ordered by departure then id.
func (r *TripRepository) ListTrips(ctx context.Context, filter persistence.TripFilter) ([]persistence.Trip, error) {
	query := tripSelect + " WHERE company_id = ?"
	args := []any{filter.CompanyID}

	if filter.RouteID != nil {
		query += " AND route_version_id IN (SELECT id FROM route_versions WHERE route_id = ?)"
		args = append(args, *filter.RouteID)
	}
	if filter.From != nil {
		query += " AND service_date >= ?"
		args = append(args, filter.From.String())
	}
	if filter.To != nil {
		query += " AND service_date <= ?"
		args = append(args, filter.To.String())
	}
	if len(filter.Statuses) > 0 {
		query += " AND status IN ("
		for i, status := range filter.Statuses {
			if i > 0 {
				query += ","
			}
			query += "?"
			args = append(args, string(status))
		}
		query += ")"
	}
	query += " ORDER BY departure ASC, id ASC"

	rows, err := r.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var trips []persistence.Trip
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, trip)
	}
	return trips, rows.Err()
}

// UpdateTrip updates the mutable fields of a trip.
func (r *TripRepository) UpdateTrip(ctx context.Context, trip persistence.Trip) error {
	trip.UpdatedAt = r.now().UTC()

	result, err := r.pool.DB().ExecContext(ctx, `
		UPDATE trips
		SET status = ?, departure = ?, arrival = ?, vehicle_id = ?, driver_id = ?, note = ?, updated_at = ?
		WHERE id = ?`,
		string(trip.Status), timestamp(trip.Departure), timestamp(trip.Arrival),
		nullString(trip.VehicleID), nullString(trip.DriverID), nullString(trip.Note),
		timestamp(trip.UpdatedAt), trip.ID,
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
	return nil
}

// ListTripStops returns a trip's stop times ordered by sequence.
func (r *TripRepository) ListTripStops(ctx context.Context, tripID string) ([]persistence.TripStopTime, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT trip_id, stop_id, name, sequence, planned_arrival, planned_departure, actual_arrival, actual_departure
		FROM trip_stop_times WHERE trip_id = ? ORDER BY sequence ASC`, tripID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var stops []persistence.TripStopTime
	for rows.Next() {
		var stop persistence.TripStopTime
		var plannedArrival, plannedDeparture string
		var actualArrival, actualDeparture sql.NullString

		if err := rows.Scan(&stop.TripID, &stop.StopID, &stop.Name, &stop.Sequence,
			&plannedArrival, &plannedDeparture, &actualArrival, &actualDeparture); err != nil {
			return nil, mapError(err)
		}
		if stop.PlannedArrival, err = parseTimestamp("planned_arrival", plannedArrival); err != nil {
			return nil, err
		}
		if stop.PlannedDeparture, err = parseTimestamp("planned_departure", plannedDeparture); err != nil {
			return nil, err
		}
		if stop.ActualArrival, err = timePtr("actual_arrival", actualArrival); err != nil {
			return nil, err
		}
		if stop.ActualDeparture, err = timePtr("actual_departure", actualDeparture); err != nil {
			return nil, err
		}
		stops = append(stops, stop)
	}
	return stops, rows.Err()
}

// RecordStopActual records observed arrival/departure for one stop of a trip.
// Only the provided fields are overwritten.
// UpdateTripStopPlan rewrites planned stop times after a retime. Actuals are
// untouched.
func (r *TripRepository) UpdateTripStopPlan(ctx context.Context, tripID string, stops []persistence.TripStopTime) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, stop := range stops {
			result, err := tx.ExecContext(ctx, `
				UPDATE trip_stop_times
				SET planned_arrival = ?, planned_departure = ?
				WHERE trip_id = ? AND stop_id = ?`,
				timestamp(stop.PlannedArrival), timestamp(stop.PlannedDeparture), tripID, stop.StopID,
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
		}
		return nil
	})
}

func (r *TripRepository) RecordStopActual(ctx context.Context, tripID, stopID string, arrival, departure *time.Time) error {
	result, err := r.pool.DB().ExecContext(ctx, `
		UPDATE trip_stop_times
		SET actual_arrival = COALESCE(?, actual_arrival),
			actual_departure = COALESCE(?, actual_departure)
		WHERE trip_id = ? AND stop_id = ?`,
		nullTimestamp(arrival), nullTimestamp(departure), tripID, stopID,
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
	return nil
}

// CountTripsForSchedule reports how many trips reference the schedule.
func (r *TripRepository) CountTripsForSchedule(ctx context.Context, scheduleID string) (int, error) {
	var count int
	err := r.pool.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM trips WHERE schedule_id = ?", scheduleID,
	).Scan(&count)
	if err != nil {
		return 0, mapError(err)
	}
	return count, nil
}

const tripSelect = `
	SELECT id, company_id, route_version_id, schedule_id, schedule_date, service_date,
		status, departure, arrival, vehicle_id, driver_id, note, created_at, updated_at
	FROM trips`

func scanTrip(row rowScanner) (persistence.Trip, error) {
	var trip persistence.Trip
	var scheduleID, scheduleDate, vehicleID, driverID, note sql.NullString
	var serviceDate, status, departure, arrival, createdAt, updatedAt string

	err := row.Scan(&trip.ID, &trip.CompanyID, &trip.RouteVersionID,
		&scheduleID, &scheduleDate, &serviceDate, &status, &departure, &arrival,
		&vehicleID, &driverID, &note, &createdAt, &updatedAt)
	if err != nil {
		return persistence.Trip{}, mapError(err)
	}

	trip.ScheduleID = stringPtr(scheduleID)
	trip.Status = persistence.TripStatus(status)
	trip.VehicleID = stringPtr(vehicleID)
	trip.DriverID = stringPtr(driverID)
	trip.Note = stringPtr(note)

	if trip.ScheduleDate, err = datePtr("schedule_date", scheduleDate); err != nil {
		return persistence.Trip{}, err
	}
	if trip.ServiceDate, err = dates.Parse(serviceDate); err != nil {
		return persistence.Trip{}, fmt.Errorf("sqlite: parse service_date: %w", err)
	}
	if trip.Departure, err = parseTimestamp("departure", departure); err != nil {
		return persistence.Trip{}, err
	}
	if trip.Arrival, err = parseTimestamp("arrival", arrival); err != nil {
		return persistence.Trip{}, err
	}
	if trip.CreatedAt, err = parseTimestamp("created_at", createdAt); err != nil {
		return persistence.Trip{}, err
	}
	if trip.UpdatedAt, err = parseTimestamp("updated_at", updatedAt); err != nil {
		return persistence.Trip{}, err
	}
	return trip, nil
}
