package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/intercity-bus/internal/calendar"
	"github.com/example/intercity-bus/internal/persistence"
)

// CalendarStore captures the persistence interactions needed by the service.
type CalendarStore interface {
	CreateCalendar(ctx context.Context, cal persistence.Calendar) error
	UpdateCalendar(ctx context.Context, cal persistence.Calendar) error
	GetCalendar(ctx context.Context, id string) (persistence.Calendar, error)
	GetCalendarByCode(ctx context.Context, companyID, code string) (persistence.Calendar, error)
	ListCalendars(ctx context.Context, companyID string) ([]persistence.Calendar, error)
	DeleteCalendar(ctx context.Context, id string) error
}

// CalendarService manages named date-rule calendars and resolves them into
// concrete dates.
type CalendarService struct {
	calendars   CalendarStore
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewCalendarService wires dependencies for calendar operations.
func NewCalendarService(calendars CalendarStore, idGenerator func() string, now func() time.Time, logger *slog.Logger) *CalendarService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &CalendarService{
		calendars:   calendars,
		idGenerator: idGenerator,
		now:         now,
		logger:      logger,
	}
}

// CreateCalendar validates the request before delegating to persistence.
func (s *CalendarService) CreateCalendar(ctx context.Context, params CreateCalendarParams) (persistence.Calendar, error) {
	if err := validateCalendarInput(params.Input); err != nil {
		return persistence.Calendar{}, err
	}

	companyID := params.CompanyID
	cal := persistence.Calendar{
		ID:        s.idGenerator(),
		CompanyID: &companyID,
		Code:      strings.TrimSpace(params.Input.Code),
		Name:      strings.TrimSpace(params.Input.Name),
	}
	for _, entry := range params.Input.Entries {
		cal.Entries = append(cal.Entries, persistence.CalendarEntry{
			ID:         s.idGenerator(),
			CalendarID: cal.ID,
			Name:       strings.TrimSpace(entry.Name),
			Rule:       entry.Rule,
		})
	}

	if err := s.calendars.CreateCalendar(ctx, cal); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			vErr := &ValidationError{}
			vErr.add("code", "calendar code already in use")
			return persistence.Calendar{}, vErr
		}
		return persistence.Calendar{}, err
	}

	serviceLogger(ctx, s.logger, "calendar", "create", "calendar_id", cal.ID).
		InfoContext(ctx, "calendar created", "code", cal.Code, "entries", len(cal.Entries))
	return cal, nil
}

// UpdateCalendar validates and replaces a calendar's attributes and entries.
func (s *CalendarService) UpdateCalendar(ctx context.Context, params UpdateCalendarParams) (persistence.Calendar, error) {
	if err := validateCalendarInput(params.Input); err != nil {
		return persistence.Calendar{}, err
	}

	existing, err := s.calendars.GetCalendar(ctx, params.CalendarID)
	if err != nil {
		return persistence.Calendar{}, mapRepoError(err)
	}
	if !ownsCalendar(existing, params.CompanyID) {
		return persistence.Calendar{}, ErrNotFound
	}

	existing.Code = strings.TrimSpace(params.Input.Code)
	existing.Name = strings.TrimSpace(params.Input.Name)
	existing.Entries = existing.Entries[:0]
	for _, entry := range params.Input.Entries {
		existing.Entries = append(existing.Entries, persistence.CalendarEntry{
			ID:         s.idGenerator(),
			CalendarID: existing.ID,
			Name:       strings.TrimSpace(entry.Name),
			Rule:       entry.Rule,
		})
	}

	if err := s.calendars.UpdateCalendar(ctx, existing); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			vErr := &ValidationError{}
			vErr.add("code", "calendar code already in use")
			return persistence.Calendar{}, vErr
		}
		return persistence.Calendar{}, mapRepoError(err)
	}
	return existing, nil
}

// GetCalendar retrieves a calendar the company can see: its own or a
// system-wide one.
func (s *CalendarService) GetCalendar(ctx context.Context, companyID, calendarID string) (persistence.Calendar, error) {
	cal, err := s.calendars.GetCalendar(ctx, calendarID)
	if err != nil {
		return persistence.Calendar{}, mapRepoError(err)
	}
	if !seesCalendar(cal, companyID) {
		return persistence.Calendar{}, ErrNotFound
	}
	return cal, nil
}

// ListCalendars lists a company's calendars together with the system-wide
// ones.
func (s *CalendarService) ListCalendars(ctx context.Context, companyID string) ([]persistence.Calendar, error) {
	return s.calendars.ListCalendars(ctx, companyID)
}

// DeleteCalendar removes a calendar the company owns. System-wide calendars
// cannot be deleted through the company surface. Schedules referencing the
// deleted calendar by modifier keep working; their modifier becomes a no-op.
func (s *CalendarService) DeleteCalendar(ctx context.Context, companyID, calendarID string) error {
	cal, err := s.calendars.GetCalendar(ctx, calendarID)
	if err != nil {
		return mapRepoError(err)
	}
	if !ownsCalendar(cal, companyID) {
		return ErrNotFound
	}
	return mapRepoError(s.calendars.DeleteCalendar(ctx, calendarID))
}

// seesCalendar reports whether the company may read the calendar. A calendar
// with no company is system-wide and visible to everyone.
func seesCalendar(cal persistence.Calendar, companyID string) bool {
	return cal.CompanyID == nil || *cal.CompanyID == companyID
}

// ownsCalendar reports whether the company may mutate the calendar.
func ownsCalendar(cal persistence.Calendar, companyID string) bool {
	return cal.CompanyID != nil && *cal.CompanyID == companyID
}

// ResolveYear expands a calendar's entries into the concrete dates they cover
// in the given year.
func (s *CalendarService) ResolveYear(ctx context.Context, companyID, calendarID string, year int) ([]calendar.ResolvedDate, error) {
	cal, err := s.GetCalendar(ctx, companyID, calendarID)
	if err != nil {
		return nil, err
	}

	entries := make([]calendar.Entry, 0, len(cal.Entries))
	for _, entry := range cal.Entries {
		entries = append(entries, calendar.Entry{ID: entry.ID, Name: entry.Name, Rule: entry.Rule})
	}
	return calendar.Resolve(entries, year), nil
}

func validateCalendarInput(input CalendarInput) error {
	vErr := &ValidationError{}
	if strings.TrimSpace(input.Code) == "" {
		vErr.add("code", "code is required")
	}
	if strings.TrimSpace(input.Name) == "" {
		vErr.add("name", "name is required")
	}
	for i, entry := range input.Entries {
		if strings.TrimSpace(entry.Name) == "" {
			vErr.add(fmt.Sprintf("entries[%d].name", i), "name is required")
		}
		if entry.Rule == nil {
			vErr.add(fmt.Sprintf("entries[%d].rule", i), "rule is required")
		}
	}
	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
