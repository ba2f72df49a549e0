package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/intercity-bus/internal/application"
	"github.com/example/intercity-bus/internal/calendar"
	"github.com/example/intercity-bus/internal/persistence"
)

type calendarService interface {
	CreateCalendar(ctx context.Context, params application.CreateCalendarParams) (persistence.Calendar, error)
	UpdateCalendar(ctx context.Context, params application.UpdateCalendarParams) (persistence.Calendar, error)
	GetCalendar(ctx context.Context, companyID, calendarID string) (persistence.Calendar, error)
	ListCalendars(ctx context.Context, companyID string) ([]persistence.Calendar, error)
	DeleteCalendar(ctx context.Context, companyID, calendarID string) error
	ResolveYear(ctx context.Context, companyID, calendarID string, year int) ([]calendar.ResolvedDate, error)
}

type CalendarHandler struct {
	service   calendarService
	responder responder
}

func NewCalendarHandler(service calendarService, logger *slog.Logger) *CalendarHandler {
	return &CalendarHandler{service: service, responder: newResponder(logger)}
}

func (h *CalendarHandler) Create(w http.ResponseWriter, r *http.Request) {
	companyID, _ := CompanyIDFromContext(r.Context())

	var req calendarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	input, err := req.toInput()
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	cal, err := h.service.CreateCalendar(r.Context(), application.CreateCalendarParams{
		CompanyID: companyID,
		Input:     input,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toCalendarDTO(cal))
}

func (h *CalendarHandler) Update(w http.ResponseWriter, r *http.Request) {
	companyID, _ := CompanyIDFromContext(r.Context())
	calendarID, ok := PathIDFromContext(r.Context())
	if !ok || calendarID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingPathID)
		return
	}

	var req calendarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	input, err := req.toInput()
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	cal, err := h.service.UpdateCalendar(r.Context(), application.UpdateCalendarParams{
		CompanyID:  companyID,
		CalendarID: calendarID,
		Input:      input,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toCalendarDTO(cal))
}

func (h *CalendarHandler) Get(w http.ResponseWriter, r *http.Request) {
	companyID, _ := CompanyIDFromContext(r.Context())
	calendarID, ok := PathIDFromContext(r.Context())
	if !ok || calendarID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingPathID)
		return
	}

	cal, err := h.service.GetCalendar(r.Context(), companyID, calendarID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toCalendarDTO(cal))
}

func (h *CalendarHandler) List(w http.ResponseWriter, r *http.Request) {
	companyID, _ := CompanyIDFromContext(r.Context())

	calendars, err := h.service.ListCalendars(r.Context(), companyID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]calendarDTO, 0, len(calendars))
	for _, cal := range calendars {
		out = append(out, toCalendarDTO(cal))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listCalendarsResponse{Calendars: out})
}

func (h *CalendarHandler) Delete(w http.ResponseWriter, r *http.Request) {
	companyID, _ := CompanyIDFromContext(r.Context())
	calendarID, ok := PathIDFromContext(r.Context())
	if !ok || calendarID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingPathID)
		return
	}

	if err := h.service.DeleteCalendar(r.Context(), companyID, calendarID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Resolve expands a calendar into the concrete dates it covers in one year.
func (h *CalendarHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	companyID, _ := CompanyIDFromContext(r.Context())
	calendarID, ok := PathIDFromContext(r.Context())
	if !ok || calendarID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingPathID)
		return
	}

	year, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("year")))
	if err != nil || year < 1900 || year > 2200 {
		vErr := &application.ValidationError{}
		vErr.Add("year", "year must be a four-digit year")
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	resolved, err := h.service.ResolveYear(r.Context(), companyID, calendarID, year)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]resolvedDateDTO, 0, len(resolved))
	for _, entry := range resolved {
		out = append(out, resolvedDateDTO{Date: entry.Date.String(), Name: entry.Name, EntryID: entry.EntryID})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resolveCalendarResponse{Year: year, Dates: out})
}

type calendarRequest struct {
	Code    string                 `json:"code"`
	Name    string                 `json:"name"`
	Entries []calendarEntryRequest `json:"entries"`
}

type calendarEntryRequest struct {
	Name string  `json:"name"`
	Rule ruleDTO `json:"rule"`
}

func (r calendarRequest) toInput() (application.CalendarInput, error) {
	input := application.CalendarInput{Code: r.Code, Name: r.Name}
	vErr := &application.ValidationError{}
	for i, entry := range r.Entries {
		rule, err := entry.Rule.toRule()
		if err != nil {
			vErr.Add("entries["+strconv.Itoa(i)+"].rule", err.Error())
			continue
		}
		input.Entries = append(input.Entries, application.CalendarEntryInput{Name: entry.Name, Rule: rule})
	}
	if vErr.HasErrors() {
		return application.CalendarInput{}, vErr
	}
	return input, nil
}

type calendarDTO struct {
	ID      string             `json:"id"`
	Code    string             `json:"code"`
	Name    string             `json:"name"`
	System  bool               `json:"system,omitempty"`
	Entries []calendarEntryDTO `json:"entries"`
}

type calendarEntryDTO struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Rule ruleDTO `json:"rule"`
}

func toCalendarDTO(cal persistence.Calendar) calendarDTO {
	dto := calendarDTO{ID: cal.ID, Code: cal.Code, Name: cal.Name, System: cal.CompanyID == nil}
	for _, entry := range cal.Entries {
		dto.Entries = append(dto.Entries, calendarEntryDTO{
			ID:   entry.ID,
			Name: entry.Name,
			Rule: toRuleDTO(entry.Rule),
		})
	}
	return dto
}

type listCalendarsResponse struct {
	Calendars []calendarDTO `json:"calendars"`
}

type resolvedDateDTO struct {
	Date    string `json:"date"`
	Name    string `json:"name"`
	EntryID string `json:"entry_id,omitempty"`
}

type resolveCalendarResponse struct {
	Year  int               `json:"year"`
	Dates []resolvedDateDTO `json:"dates"`
}
