package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/example/intercity-bus/internal/application"
	"github.com/example/intercity-bus/internal/persistence"
)

type routeService interface {
	CreateRoute(ctx context.Context, companyID string, input application.RouteInput) (persistence.Route, error)
	GetRoute(ctx context.Context, companyID, routeID string) (persistence.Route, error)
	ListRoutes(ctx context.Context, companyID string) ([]persistence.Route, error)
	CreateRouteVersion(ctx context.Context, companyID, routeID string, input application.RouteVersionInput) (persistence.RouteVersion, error)
	ActiveRouteVersion(ctx context.Context, companyID, routeID string) (persistence.RouteVersion, error)
}

type RouteHandler struct {
	service   routeService
	responder responder
}

func NewRouteHandler(service routeService, logger *slog.Logger) *RouteHandler {
	return &RouteHandler{service: service, responder: newResponder(logger)}
}

func (h *RouteHandler) Create(w http.ResponseWriter, r *http.Request) {
	companyID, _ := CompanyIDFromContext(r.Context())

	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	route, err := h.service.CreateRoute(r.Context(), companyID, application.RouteInput{
		Code: req.Code,
		Name: req.Name,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toRouteDTO(route))
}

func (h *RouteHandler) Get(w http.ResponseWriter, r *http.Request) {
	companyID, _ := CompanyIDFromContext(r.Context())
	routeID, ok := PathIDFromContext(r.Context())
	if !ok || routeID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingPathID)
		return
	}

	route, err := h.service.GetRoute(r.Context(), companyID, routeID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toRouteDTO(route))
}

func (h *RouteHandler) List(w http.ResponseWriter, r *http.Request) {
	companyID, _ := CompanyIDFromContext(r.Context())

	routes, err := h.service.ListRoutes(r.Context(), companyID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]routeDTO, 0, len(routes))
	for _, route := range routes {
		out = append(out, toRouteDTO(route))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listRoutesResponse{Routes: out})
}

// CreateVersion registers a new stop sequence for a route.
func (h *RouteHandler) CreateVersion(w http.ResponseWriter, r *http.Request) {
	companyID, _ := CompanyIDFromContext(r.Context())
	routeID, ok := PathIDFromContext(r.Context())
	if !ok || routeID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingPathID)
		return
	}

	var req routeVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	input := application.RouteVersionInput{Activate: req.Activate}
	for _, stop := range req.Stops {
		input.Stops = append(input.Stops, stop.toStop())
	}

	version, err := h.service.CreateRouteVersion(r.Context(), companyID, routeID, input)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toRouteVersionDTO(version))
}

// ActiveVersion returns the stop sequence trips currently run on.
func (h *RouteHandler) ActiveVersion(w http.ResponseWriter, r *http.Request) {
	companyID, _ := CompanyIDFromContext(r.Context())
	routeID, ok := PathIDFromContext(r.Context())
	if !ok || routeID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingPathID)
		return
	}

	version, err := h.service.ActiveRouteVersion(r.Context(), companyID, routeID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toRouteVersionDTO(version))
}

type routeRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type routeVersionRequest struct {
	Activate bool      `json:"activate"`
	Stops    []stopDTO `json:"stops"`
}

type routeDTO struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

func toRouteDTO(route persistence.Route) routeDTO {
	return routeDTO{ID: route.ID, Code: route.Code, Name: route.Name}
}

type listRoutesResponse struct {
	Routes []routeDTO `json:"routes"`
}

type routeVersionDTO struct {
	ID      string    `json:"id"`
	RouteID string    `json:"route_id"`
	Version int       `json:"version"`
	Active  bool      `json:"active"`
	Stops   []stopDTO `json:"stops"`
}

func toRouteVersionDTO(version persistence.RouteVersion) routeVersionDTO {
	dto := routeVersionDTO{
		ID:      version.ID,
		RouteID: version.RouteID,
		Version: version.Version,
		Active:  version.Active,
	}
	for _, stop := range version.Stops {
		dto.Stops = append(dto.Stops, toStopDTO(stop))
	}
	return dto
}
