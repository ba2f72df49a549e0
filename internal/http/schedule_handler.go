package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/intercity-bus/internal/application"
	"github.com/example/intercity-bus/internal/dates"
	"github.com/example/intercity-bus/internal/persistence"
	"github.com/example/intercity-bus/internal/scheduling"
)

type scheduleService interface {
	CreateSchedule(ctx context.Context, params application.CreateScheduleParams) (persistence.Schedule, error)
	UpdateSchedule(ctx context.Context, params application.UpdateScheduleParams) (persistence.Schedule, error)
	GetSchedule(ctx context.Context, companyID, scheduleID string) (persistence.Schedule, error)
	ListSchedules(ctx context.Context, companyID string, routeID *string, activeOnly bool) ([]persistence.Schedule, error)
	DeleteSchedule(ctx context.Context, companyID, scheduleID string) error
	AddException(ctx context.Context, companyID, scheduleID string, exc scheduling.Exception) error
	RemoveException(ctx context.Context, companyID, scheduleID string, date dates.Date) error
}

type materializer interface {
	Materialize(ctx context.Context, params application.MaterializeParams) (application.TripView, error)
}

type ScheduleHandler struct {
	service      scheduleService
	materializer materializer
	responder    responder
}

func NewScheduleHandler(service scheduleService, materializer materializer, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{service: service, materializer: materializer, responder: newResponder(logger)}
}

func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	companyID, _ := CompanyIDFromContext(r.Context())

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	input, err := req.toInput()
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	schedule, err := h.service.CreateSchedule(r.Context(), application.CreateScheduleParams{
		CompanyID: companyID,
		Input:     input,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toScheduleDTO(schedule))
}

func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	companyID, _ := CompanyIDFromContext(r.Context())
	scheduleID, ok := PathIDFromContext(r.Context())
	if !ok || scheduleID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingPathID)
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	input, err := req.toInput()
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	schedule, err := h.service.UpdateSchedule(r.Context(), application.UpdateScheduleParams{
		CompanyID:  companyID,
		ScheduleID: scheduleID,
		Input:      input,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toScheduleDTO(schedule))
}

func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	companyID, _ := CompanyIDFromContext(r.Context())
	scheduleID, ok := PathIDFromContext(r.Context())
	if !ok || scheduleID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingPathID)
		return
	}

	schedule, err := h.service.GetSchedule(r.Context(), companyID, scheduleID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toScheduleDTO(schedule))
}

func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	companyID, _ := CompanyIDFromContext(r.Context())

	var routeID *string
	if v := strings.TrimSpace(r.URL.Query().Get("route_id")); v != "" {
		routeID = &v
	}
	activeOnly := r.URL.Query().Get("active") == "true"

	schedules, err := h.service.ListSchedules(r.Context(), companyID, routeID, activeOnly)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]scheduleDTO, 0, len(schedules))
	for _, schedule := range schedules {
		out = append(out, toScheduleDTO(schedule))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listSchedulesResponse{Schedules: out})
}

func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	companyID, _ := CompanyIDFromContext(r.Context())
	scheduleID, ok := PathIDFromContext(r.Context())
	if !ok || scheduleID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingPathID)
		return
	}

	if err := h.service.DeleteSchedule(r.Context(), companyID, scheduleID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// CreateException attaches a per-date exception to a schedule.
func (h *ScheduleHandler) CreateException(w http.ResponseWriter, r *http.Request) {
	companyID, _ := CompanyIDFromContext(r.Context())
	scheduleID, ok := PathIDFromContext(r.Context())
	if !ok || scheduleID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingPathID)
		return
	}

	var req exceptionDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	exc, err := req.toException()
	if err != nil {
		vErr := &application.ValidationError{}
		vErr.Add("exception", err.Error())
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	if err := h.service.AddException(r.Context(), companyID, scheduleID, exc); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toExceptionDTO(exc))
}

// DeleteException removes the exception on the date named in the path.
func (h *ScheduleHandler) DeleteException(w http.ResponseWriter, r *http.Request) {
	companyID, _ := CompanyIDFromContext(r.Context())
	scheduleID, ok := PathIDFromContext(r.Context())
	if !ok || scheduleID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingPathID)
		return
	}
	raw, ok := PathDateFromContext(r.Context())
	if !ok || raw == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingPathID)
		return
	}

	date, err := dates.Parse(raw)
	if err != nil {
		vErr := &application.ValidationError{}
		vErr.Add("date", "date must be YYYY-MM-DD")
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	if err := h.service.RemoveException(r.Context(), companyID, scheduleID, date); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Materialize persists one occurrence of the schedule as a concrete trip.
func (h *ScheduleHandler) Materialize(w http.ResponseWriter, r *http.Request) {
	companyID, _ := CompanyIDFromContext(r.Context())
	scheduleID, ok := PathIDFromContext(r.Context())
	if !ok || scheduleID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingPathID)
		return
	}

	var req materializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	date, err := dates.Parse(req.Date)
	if err != nil {
		vErr := &application.ValidationError{}
		vErr.Add("date", "date must be YYYY-MM-DD")
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	trip, err := h.materializer.Materialize(r.Context(), application.MaterializeParams{
		CompanyID:  companyID,
		ScheduleID: scheduleID,
		Date:       date,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, trip)
}

type scheduleRequest struct {
	RouteID        string                `json:"route_id"`
	Kind           string                `json:"kind"`
	RecurrenceRule string                `json:"recurrence_rule,omitempty"`
	ValidFrom      string                `json:"valid_from"`
	ValidTo        *string               `json:"valid_to,omitempty"`
	Departure      string                `json:"departure"`
	Arrival        string                `json:"arrival"`
	VehicleID      *string               `json:"vehicle_id,omitempty"`
	DriverID       *string               `json:"driver_id,omitempty"`
	Modifiers      []modifierDTO         `json:"modifiers,omitempty"`
	StopTimes      []stopTimeOverrideDTO `json:"stop_times,omitempty"`
	Exceptions     []exceptionDTO        `json:"exceptions,omitempty"`
	Active         bool                  `json:"active"`
}

type materializeRequest struct {
	Date string `json:"date"`
}

func (r scheduleRequest) toInput() (application.ScheduleInput, error) {
	vErr := &application.ValidationError{}
	input := application.ScheduleInput{
		RouteID:        r.RouteID,
		Kind:           r.Kind,
		RecurrenceRule: r.RecurrenceRule,
		Departure:      r.Departure,
		Arrival:        r.Arrival,
		VehicleID:      r.VehicleID,
		DriverID:       r.DriverID,
		Active:         r.Active,
	}

	validFrom, err := dates.Parse(r.ValidFrom)
	if err != nil {
		vErr.Add("valid_from", "valid_from must be YYYY-MM-DD")
	}
	input.ValidFrom = validFrom

	if r.ValidTo != nil {
		validTo, err := dates.Parse(*r.ValidTo)
		if err != nil {
			vErr.Add("valid_to", "valid_to must be YYYY-MM-DD")
		} else {
			input.ValidTo = &validTo
		}
	}

	for i, mod := range r.Modifiers {
		m, err := mod.toModifier()
		if err != nil {
			vErr.Add("modifiers["+strconv.Itoa(i)+"]", err.Error())
			continue
		}
		input.Modifiers = append(input.Modifiers, m)
	}

	for i, override := range r.StopTimes {
		o, err := override.toOverride()
		if err != nil {
			vErr.Add("stop_times["+strconv.Itoa(i)+"]", err.Error())
			continue
		}
		input.StopTimes = append(input.StopTimes, o)
	}

	for i, exc := range r.Exceptions {
		e, err := exc.toException()
		if err != nil {
			vErr.Add("exceptions["+strconv.Itoa(i)+"]", err.Error())
			continue
		}
		input.Exceptions = append(input.Exceptions, e)
	}

	if vErr.HasErrors() {
		return application.ScheduleInput{}, vErr
	}
	return input, nil
}

type scheduleDTO struct {
	ID             string                `json:"id"`
	RouteID        string                `json:"route_id"`
	Kind           string                `json:"kind"`
	RecurrenceRule string                `json:"recurrence_rule,omitempty"`
	ValidFrom      string                `json:"valid_from"`
	ValidTo        *string               `json:"valid_to,omitempty"`
	Departure      string                `json:"departure"`
	Arrival        string                `json:"arrival"`
	VehicleID      *string               `json:"vehicle_id,omitempty"`
	DriverID       *string               `json:"driver_id,omitempty"`
	Modifiers      []modifierDTO         `json:"modifiers,omitempty"`
	StopTimes      []stopTimeOverrideDTO `json:"stop_times,omitempty"`
	Exceptions     []exceptionDTO        `json:"exceptions,omitempty"`
	Active         bool                  `json:"active"`
}

func toScheduleDTO(schedule persistence.Schedule) scheduleDTO {
	dto := scheduleDTO{
		ID:             schedule.ID,
		RouteID:        schedule.RouteID,
		Kind:           string(schedule.Kind),
		RecurrenceRule: schedule.RecurrenceRule,
		ValidFrom:      schedule.ValidFrom.String(),
		Departure:      schedule.Departure.String(),
		Arrival:        schedule.Arrival.String(),
		VehicleID:      schedule.VehicleID,
		DriverID:       schedule.DriverID,
		Active:         schedule.Active,
	}
	if schedule.ValidTo != nil {
		s := schedule.ValidTo.String()
		dto.ValidTo = &s
	}
	for _, mod := range schedule.Modifiers {
		dto.Modifiers = append(dto.Modifiers, toModifierDTO(mod))
	}
	for _, override := range schedule.StopTimes {
		dto.StopTimes = append(dto.StopTimes, toStopTimeOverrideDTO(override))
	}
	for _, exc := range schedule.Exceptions {
		dto.Exceptions = append(dto.Exceptions, toExceptionDTO(exc))
	}
	return dto
}

type listSchedulesResponse struct {
	Schedules []scheduleDTO `json:"schedules"`
}
