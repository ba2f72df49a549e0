package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/intercity-bus/internal/application"
	"github.com/example/intercity-bus/internal/dates"
)

type tripService interface {
	Project(ctx context.Context, params application.ProjectParams) (application.ProjectionResult, error)
	CreateManualTrip(ctx context.Context, params application.CreateManualTripParams) (application.TripView, error)
	GetTrip(ctx context.Context, companyID, tripID string) (application.TripView, error)
	Assign(ctx context.Context, params application.AssignParams) (application.TripView, error)
	Start(ctx context.Context, companyID, tripID string) (application.TripView, error)
	Cancel(ctx context.Context, companyID, tripID string, reason *string) (application.TripView, error)
	Complete(ctx context.Context, companyID, tripID string) (application.TripView, error)
	UpdateTimes(ctx context.Context, params application.UpdateTimesParams) (application.TripView, error)
	RecordStopActual(ctx context.Context, params application.StopActualParams) error
}

type TripHandler struct {
	service   tripService
	responder responder
}

func NewTripHandler(service tripService, logger *slog.Logger) *TripHandler {
	return &TripHandler{service: service, responder: newResponder(logger)}
}

// List projects the merged timetable over a date window.
func (h *TripHandler) List(w http.ResponseWriter, r *http.Request) {
	companyID, _ := CompanyIDFromContext(r.Context())

	vErr := &application.ValidationError{}
	from, err := dates.Parse(strings.TrimSpace(r.URL.Query().Get("from")))
	if err != nil {
		vErr.Add("from", "from must be YYYY-MM-DD")
	}
	to, err := dates.Parse(strings.TrimSpace(r.URL.Query().Get("to")))
	if err != nil {
		vErr.Add("to", "to must be YYYY-MM-DD")
	}
	if vErr.HasErrors() {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	var routeID, driverID, status *string
	if v := strings.TrimSpace(r.URL.Query().Get("route_id")); v != "" {
		routeID = &v
	}
	if v := strings.TrimSpace(r.URL.Query().Get("driver_id")); v != "" {
		driverID = &v
	}
	if v := strings.TrimSpace(r.URL.Query().Get("status")); v != "" {
		status = &v
	}

	result, err := h.service.Project(r.Context(), application.ProjectParams{
		CompanyID: companyID,
		RouteID:   routeID,
		DriverID:  driverID,
		Status:    status,
		From:      from,
		To:        to,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, result)
}

// Create registers a manual trip outside any schedule.
func (h *TripHandler) Create(w http.ResponseWriter, r *http.Request) {
	companyID, _ := CompanyIDFromContext(r.Context())

	var req manualTripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	serviceDate, err := dates.Parse(req.ServiceDate)
	if err != nil {
		vErr := &application.ValidationError{}
		vErr.Add("service_date", "service_date must be YYYY-MM-DD")
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	trip, err := h.service.CreateManualTrip(r.Context(), application.CreateManualTripParams{
		CompanyID: companyID,
		Input: application.ManualTripInput{
			RouteID:     req.RouteID,
			ServiceDate: serviceDate,
			Departure:   req.Departure,
			Arrival:     req.Arrival,
			VehicleID:   req.VehicleID,
			DriverID:    req.DriverID,
			Note:        req.Note,
		},
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, trip)
}

func (h *TripHandler) Get(w http.ResponseWriter, r *http.Request) {
	companyID, _ := CompanyIDFromContext(r.Context())
	tripID, ok := PathIDFromContext(r.Context())
	if !ok || tripID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingPathID)
		return
	}

	trip, err := h.service.GetTrip(r.Context(), companyID, tripID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, trip)
}

// Assign sets the vehicle or driver of a trip, materializing it first when
// the identifier is virtual.
func (h *TripHandler) Assign(w http.ResponseWriter, r *http.Request) {
	companyID, _ := CompanyIDFromContext(r.Context())
	tripID, ok := PathIDFromContext(r.Context())
	if !ok || tripID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingPathID)
		return
	}

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	trip, err := h.service.Assign(r.Context(), application.AssignParams{
		CompanyID: companyID,
		TripID:    tripID,
		VehicleID: req.VehicleID,
		DriverID:  req.DriverID,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, trip)
}

func (h *TripHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, companyID, tripID string) (application.TripView, error) {
		return h.service.Start(ctx, companyID, tripID)
	})
}

func (h *TripHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	companyID, _ := CompanyIDFromContext(r.Context())
	tripID, ok := PathIDFromContext(r.Context())
	if !ok || tripID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingPathID)
		return
	}

	var req cancelRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
			return
		}
	}

	trip, err := h.service.Cancel(r.Context(), companyID, tripID, req.Reason)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, trip)
}

// Retime moves the planned departure and arrival of a trip that has not
// departed yet.
func (h *TripHandler) Retime(w http.ResponseWriter, r *http.Request) {
	companyID, _ := CompanyIDFromContext(r.Context())
	tripID, ok := PathIDFromContext(r.Context())
	if !ok || tripID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingPathID)
		return
	}

	var req retimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	trip, err := h.service.UpdateTimes(r.Context(), application.UpdateTimesParams{
		CompanyID: companyID,
		TripID:    tripID,
		Departure: req.Departure,
		Arrival:   req.Arrival,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, trip)
}

func (h *TripHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, companyID, tripID string) (application.TripView, error) {
		return h.service.Complete(ctx, companyID, tripID)
	})
}

// RecordStopActual stores observed arrival and departure times for one stop
// of a running trip.
func (h *TripHandler) RecordStopActual(w http.ResponseWriter, r *http.Request) {
	companyID, _ := CompanyIDFromContext(r.Context())
	tripID, ok := PathIDFromContext(r.Context())
	if !ok || tripID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingPathID)
		return
	}
	stopID, ok := StopIDFromContext(r.Context())
	if !ok || stopID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingPathID)
		return
	}

	var req stopActualRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	if err := h.service.RecordStopActual(r.Context(), application.StopActualParams{
		CompanyID: companyID,
		TripID:    tripID,
		StopID:    stopID,
		Arrival:   req.Arrival,
		Departure: req.Departure,
	}); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *TripHandler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, companyID, tripID string) (application.TripView, error)) {
	companyID, _ := CompanyIDFromContext(r.Context())
	tripID, ok := PathIDFromContext(r.Context())
	if !ok || tripID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingPathID)
		return
	}

	trip, err := op(r.Context(), companyID, tripID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, trip)
}

type manualTripRequest struct {
	RouteID     string  `json:"route_id"`
	ServiceDate string  `json:"service_date"`
	Departure   string  `json:"departure"`
	Arrival     string  `json:"arrival"`
	VehicleID   *string `json:"vehicle_id,omitempty"`
	DriverID    *string `json:"driver_id,omitempty"`
	Note        *string `json:"note,omitempty"`
}

type assignRequest struct {
	VehicleID *string `json:"vehicle_id,omitempty"`
	DriverID  *string `json:"driver_id,omitempty"`
}

type retimeRequest struct {
	Departure time.Time `json:"departure"`
	Arrival   time.Time `json:"arrival"`
}

type cancelRequest struct {
	Reason *string `json:"reason,omitempty"`
}

type stopActualRequest struct {
	Arrival   *time.Time `json:"arrival,omitempty"`
	Departure *time.Time `json:"departure,omitempty"`
}
