package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/intercity-bus/internal/calendar"
	"github.com/example/intercity-bus/internal/dates"
	"github.com/example/intercity-bus/internal/persistence"
)

// CalendarRepository implements persistence.CalendarRepository using SQLite.
type CalendarRepository struct {
	pool *ConnectionPool
	now  func() time.Time
}

// NewCalendarRepository creates a new SQLite calendar repository.
func NewCalendarRepository(pool *ConnectionPool) *CalendarRepository {
	return &CalendarRepository{pool: pool, now: time.Now}
}

// CreateCalendar inserts a calendar together with its entries.
func (r *CalendarRepository) CreateCalendar(ctx context.Context, cal persistence.Calendar) error {
	if cal.ID == "" {
		return persistence.ErrConstraintViolation
	}

	now := r.now().UTC()
	cal.CreatedAt = now
	cal.UpdatedAt = now

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO calendars (id, company_id, code, name, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			cal.ID, cal.CompanyID, cal.Code, cal.Name, timestamp(cal.CreatedAt), timestamp(cal.UpdatedAt),
		)
		if err != nil {
			return mapError(err)
		}
		return r.insertEntries(ctx, tx, cal.ID, cal.Entries)
	})
}

// UpdateCalendar updates a calendar and replaces its entries.
func (r *CalendarRepository) UpdateCalendar(ctx context.Context, cal persistence.Calendar) error {
	if cal.ID == "" {
		return persistence.ErrNotFound
	}

	cal.UpdatedAt = r.now().UTC()

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE calendars SET code = ?, name = ?, updated_at = ? WHERE id = ?`,
			cal.Code, cal.Name, timestamp(cal.UpdatedAt), cal.ID,
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

		if _, err := tx.ExecContext(ctx, "DELETE FROM calendar_entries WHERE calendar_id = ?", cal.ID); err != nil {
			return mapError(err)
		}
		return r.insertEntries(ctx, tx, cal.ID, cal.Entries)
	})
}

// GetCalendar retrieves a calendar with its entries by ID.
func (r *CalendarRepository) GetCalendar(ctx context.Context, id string) (persistence.Calendar, error) {
	return r.getCalendar(ctx, "id = ?", id)
}

// GetCalendarByCode retrieves a calendar by code. Codes are unique across the
// store; a row with no company is visible to every caller.
func (r *CalendarRepository) GetCalendarByCode(ctx context.Context, companyID, code string) (persistence.Calendar, error) {
	return r.getCalendar(ctx, "code = ? AND (company_id = ? OR company_id IS NULL)", code, companyID)
}

func (r *CalendarRepository) getCalendar(ctx context.Context, where string, args ...any) (persistence.Calendar, error) {
	var cal persistence.Calendar
	var createdAt, updatedAt string

	err := r.pool.DB().QueryRowContext(ctx, `
		SELECT id, company_id, code, name, created_at, updated_at
		FROM calendars WHERE `+where, args...,
	).Scan(&cal.ID, &cal.CompanyID, &cal.Code, &cal.Name, &createdAt, &updatedAt)
	if err != nil {
		return persistence.Calendar{}, mapError(err)
	}

	if cal.CreatedAt, err = parseTimestamp("created_at", createdAt); err != nil {
		return persistence.Calendar{}, err
	}
	if cal.UpdatedAt, err = parseTimestamp("updated_at", updatedAt); err != nil {
		return persistence.Calendar{}, err
	}

	cal.Entries, err = r.loadEntries(ctx, cal.ID)
	if err != nil {
		return persistence.Calendar{}, err
	}
	return cal, nil
}

// ListCalendars lists a company's calendars plus the system-wide ones,
// ordered by code.
func (r *CalendarRepository) ListCalendars(ctx context.Context, companyID string) ([]persistence.Calendar, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT id, company_id, code, name, created_at, updated_at
		FROM calendars WHERE company_id = ? OR company_id IS NULL ORDER BY code ASC`, companyID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var calendars []persistence.Calendar
	for rows.Next() {
		var cal persistence.Calendar
		var createdAt, updatedAt string
		if err := rows.Scan(&cal.ID, &cal.CompanyID, &cal.Code, &cal.Name, &createdAt, &updatedAt); err != nil {
			return nil, mapError(err)
		}
		if cal.CreatedAt, err = parseTimestamp("created_at", createdAt); err != nil {
			return nil, err
		}
		if cal.UpdatedAt, err = parseTimestamp("updated_at", updatedAt); err != nil {
			return nil, err
		}
		calendars = append(calendars, cal)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	for i := range calendars {
		if calendars[i].Entries, err = r.loadEntries(ctx, calendars[i].ID); err != nil {
			return nil, err
		}
	}
	return calendars, nil
}

// DeleteCalendar removes a calendar; entries cascade.
func (r *CalendarRepository) DeleteCalendar(ctx context.Context, id string) error {
	result, err := r.pool.DB().ExecContext(ctx, "DELETE FROM calendars WHERE id = ?", id)
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

func (r *CalendarRepository) insertEntries(ctx context.Context, tx *sql.Tx, calendarID string, entries []persistence.CalendarEntry) error {
	for _, entry := range entries {
		row, err := encodeRule(entry.Rule)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO calendar_entries (id, calendar_id, name, rule_type, month, day, year, offset_days, nth, weekday, start_date, end_date)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ID, calendarID, entry.Name, row.ruleType,
			row.month, row.day, row.year, row.offsetDays, row.nth, row.weekday,
			row.startDate, row.endDate,
		)
		if err != nil {
			return mapError(err)
		}
	}
	return nil
}

func (r *CalendarRepository) loadEntries(ctx context.Context, calendarID string) ([]persistence.CalendarEntry, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT id, name, rule_type, month, day, year, offset_days, nth, weekday, start_date, end_date
		FROM calendar_entries WHERE calendar_id = ? ORDER BY id ASC`, calendarID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var entries []persistence.CalendarEntry
	for rows.Next() {
		var entry persistence.CalendarEntry
		var row ruleRow
		if err := rows.Scan(&entry.ID, &entry.Name, &row.ruleType,
			&row.month, &row.day, &row.year, &row.offsetDays, &row.nth, &row.weekday,
			&row.startDate, &row.endDate,
		); err != nil {
			return nil, mapError(err)
		}
		entry.CalendarID = calendarID
		if entry.Rule, err = decodeRule(row); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ruleRow is the column form of a calendar rule variant.
type ruleRow struct {
	ruleType   string
	month      sql.NullInt64
	day        sql.NullInt64
	year       sql.NullInt64
	offsetDays sql.NullInt64
	nth        sql.NullInt64
	weekday    sql.NullInt64
	startDate  sql.NullString
	endDate    sql.NullString
}

func encodeRule(rule calendar.Rule) (ruleRow, error) {
	switch v := rule.(type) {
	case calendar.Fixed:
		return ruleRow{
			ruleType: "fixed",
			month:    sql.NullInt64{Int64: int64(v.Month), Valid: true},
			day:      sql.NullInt64{Int64: int64(v.Day), Valid: true},
			year:     sql.NullInt64{Int64: int64(v.Year), Valid: v.Year != 0},
		}, nil
	case calendar.EasterRelative:
		return ruleRow{
			ruleType:   "easter_relative",
			offsetDays: sql.NullInt64{Int64: int64(v.Offset), Valid: true},
		}, nil
	case calendar.NthWeekday:
		return ruleRow{
			ruleType: "nth_weekday",
			nth:      sql.NullInt64{Int64: int64(v.Nth), Valid: true},
			weekday:  sql.NullInt64{Int64: int64(v.Weekday), Valid: true},
			month:    sql.NullInt64{Int64: int64(v.Month), Valid: true},
		}, nil
	case calendar.Range:
		return ruleRow{
			ruleType:  "range",
			startDate: sql.NullString{String: v.Start.String(), Valid: true},
			endDate:   sql.NullString{String: v.End.String(), Valid: true},
		}, nil
	default:
		return ruleRow{}, fmt.Errorf("sqlite: unsupported calendar rule %T", rule)
	}
}

func decodeRule(row ruleRow) (calendar.Rule, error) {
	switch row.ruleType {
	case "fixed":
		return calendar.Fixed{
			Month: time.Month(row.month.Int64),
			Day:   int(row.day.Int64),
			Year:  int(row.year.Int64),
		}, nil
	case "easter_relative":
		return calendar.EasterRelative{Offset: int(row.offsetDays.Int64)}, nil
	case "nth_weekday":
		return calendar.NthWeekday{
			Nth:     int(row.nth.Int64),
			Weekday: time.Weekday(row.weekday.Int64),
			Month:   time.Month(row.month.Int64),
		}, nil
	case "range":
		start, err := dates.Parse(row.startDate.String)
		if err != nil {
			return nil, fmt.Errorf("sqlite: parse start_date: %w", err)
		}
		end, err := dates.Parse(row.endDate.String)
		if err != nil {
			return nil, fmt.Errorf("sqlite: parse end_date: %w", err)
		}
		return calendar.Range{Start: start, End: end}, nil
	default:
		return nil, fmt.Errorf("sqlite: unsupported rule_type %q", row.ruleType)
	}
}
