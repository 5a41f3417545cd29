package transit

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vialibre/vialibre/internal/audit"
	"github.com/vialibre/vialibre/internal/platform/httpx"
	"github.com/vialibre/vialibre/internal/rbac"
	"github.com/vialibre/vialibre/internal/shared"
)

// Handler exposes route, bus and stop endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	audit    audit.Recorder
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, recorder audit.Recorder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, audit: recorder, validate: validator.New()}
}

// MountRouteRoutes registers /rutas endpoints.
func (h *Handler) MountRouteRoutes(r chi.Router) {
	r.Get("/", h.listRoutes)
	r.Post("/", h.createRoute)
	r.Get("/{id}", h.getRoute)
	r.Put("/{id}", h.updateRoute)
	r.Delete("/{id}", h.deleteRoute)
}

// MountBusRoutes registers /buses endpoints.
func (h *Handler) MountBusRoutes(r chi.Router) {
	r.Get("/", h.listBuses)
	r.Post("/", h.createBus)
	r.Get("/{id}", h.getBus)
	r.Put("/{id}", h.updateBus)
	r.Delete("/{id}", h.deleteBus)
}

// MountStopRoutes registers /paradas endpoints.
func (h *Handler) MountStopRoutes(r chi.Router) {
	r.Get("/", h.listStops)
	r.Post("/", h.createStop)
	r.Get("/cercanas", h.nearbyStops)
	r.Get("/{id}", h.getStop)
	r.Put("/{id}", h.updateStop)
	r.Delete("/{id}", h.deleteStop)
	r.Patch("/{id}/toggle_activa", h.toggleStop)
}

type routePayload struct {
	Name            string   `json:"nombre_ruta" validate:"required,max=100"`
	ActiveCapacity  *int     `json:"capacidad_activa" validate:"omitempty,min=0"`
	WaitingCapacity *int     `json:"capacidad_espera" validate:"omitempty,min=0"`
	BusIDs          []string `json:"buses"`
}

type busPayload struct {
	Plate    string `json:"placa" validate:"required,max=10"`
	Brand    string `json:"marca" validate:"required,max=50"`
	Model    string `json:"modelo" validate:"required,max=50"`
	Capacity *int   `json:"capacidad" validate:"omitempty,min=0"`
	State    string `json:"estado_bus" validate:"required,max=50"`
}

type stopPayload struct {
	RouteID   string  `json:"ruta" validate:"required"`
	Name      string  `json:"nombre" validate:"required,max=200"`
	Address   string  `json:"direccion" validate:"max=300"`
	Latitude  float64 `json:"coordenada_lat" validate:"min=-90,max=90"`
	Longitude float64 `json:"coordenada_lng" validate:"min=-180,max=180"`
	Order     int     `json:"orden" validate:"min=0"`
	Active    *bool   `json:"activa"`
}

func (h *Handler) listRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := h.service.ListRoutes(r.Context())
	if err != nil {
		h.respondError(w, "list routes", err)
		return
	}
	httpx.JSON(w, http.StatusOK, routes)
}

func (h *Handler) getRoute(w http.ResponseWriter, r *http.Request) {
	rt, err := h.service.GetRoute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "get route", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rt)
}

func (h *Handler) createRoute(w http.ResponseWriter, r *http.Request) {
	var payload routePayload
	if !h.decode(w, r, &payload) {
		return
	}
	rt, err := h.service.CreateRoute(r.Context(), payload.Name, payload.ActiveCapacity, payload.WaitingCapacity, payload.BusIDs)
	if err != nil {
		h.respondError(w, "create route", err)
		return
	}
	h.record(r, "rutas.create", "Created route "+rt.Name)
	httpx.JSON(w, http.StatusCreated, rt)
}

func (h *Handler) updateRoute(w http.ResponseWriter, r *http.Request) {
	var payload routePayload
	if !h.decode(w, r, &payload) {
		return
	}
	rt, err := h.service.UpdateRoute(r.Context(), chi.URLParam(r, "id"), payload.Name, payload.ActiveCapacity, payload.WaitingCapacity, payload.BusIDs)
	if err != nil {
		h.respondError(w, "update route", err)
		return
	}
	h.record(r, "rutas.update", "Updated route "+rt.Name)
	httpx.JSON(w, http.StatusOK, rt)
}

func (h *Handler) deleteRoute(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRoute(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, "delete route", err)
		return
	}
	h.record(r, "rutas.delete", "Deleted route "+chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listBuses(w http.ResponseWriter, r *http.Request) {
	buses, err := h.service.ListBuses(r.Context())
	if err != nil {
		h.respondError(w, "list buses", err)
		return
	}
	httpx.JSON(w, http.StatusOK, buses)
}

func (h *Handler) getBus(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.GetBus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "get bus", err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) createBus(w http.ResponseWriter, r *http.Request) {
	var payload busPayload
	if !h.decode(w, r, &payload) {
		return
	}
	b, err := h.service.CreateBus(r.Context(), Bus{
		Plate: payload.Plate, Brand: payload.Brand, Model: payload.Model,
		Capacity: payload.Capacity, State: payload.State,
	})
	if err != nil {
		h.respondError(w, "create bus", err)
		return
	}
	h.record(r, "buses.create", "Created bus "+b.Plate)
	httpx.JSON(w, http.StatusCreated, b)
}

func (h *Handler) updateBus(w http.ResponseWriter, r *http.Request) {
	var payload busPayload
	if !h.decode(w, r, &payload) {
		return
	}
	b, err := h.service.UpdateBus(r.Context(), Bus{
		ID: chi.URLParam(r, "id"), Plate: payload.Plate, Brand: payload.Brand,
		Model: payload.Model, Capacity: payload.Capacity, State: payload.State,
	})
	if err != nil {
		h.respondError(w, "update bus", err)
		return
	}
	h.record(r, "buses.update", "Updated bus "+b.Plate)
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) deleteBus(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteBus(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, "delete bus", err)
		return
	}
	h.record(r, "buses.delete", "Deleted bus "+chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listStops(w http.ResponseWriter, r *http.Request) {
	routeID := r.URL.Query().Get("ruta_id")
	activeOnly := r.URL.Query().Get("activa") == "true"
	stops, err := h.service.ListStops(r.Context(), routeID, activeOnly)
	if err != nil {
		h.respondError(w, "list stops", err)
		return
	}
	if stops == nil {
		stops = []Stop{}
	}
	httpx.JSON(w, http.StatusOK, stops)
}

func (h *Handler) getStop(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.GetStop(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "get stop", err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (h *Handler) createStop(w http.ResponseWriter, r *http.Request) {
	var payload stopPayload
	if !h.decode(w, r, &payload) {
		return
	}
	active := true
	if payload.Active != nil {
		active = *payload.Active
	}
	st, err := h.service.CreateStop(r.Context(), Stop{
		RouteID: payload.RouteID, Name: payload.Name, Address: payload.Address,
		Latitude: payload.Latitude, Longitude: payload.Longitude,
		Order: payload.Order, Active: active,
	})
	if err != nil {
		h.respondError(w, "create stop", err)
		return
	}
	h.record(r, "paradas.create", "Created stop "+st.Name)
	httpx.JSON(w, http.StatusCreated, st)
}

func (h *Handler) updateStop(w http.ResponseWriter, r *http.Request) {
	var payload stopPayload
	if !h.decode(w, r, &payload) {
		return
	}
	active := true
	if payload.Active != nil {
		active = *payload.Active
	}
	st, err := h.service.UpdateStop(r.Context(), Stop{
		ID: chi.URLParam(r, "id"), RouteID: payload.RouteID, Name: payload.Name,
		Address: payload.Address, Latitude: payload.Latitude, Longitude: payload.Longitude,
		Order: payload.Order, Active: active,
	})
	if err != nil {
		h.respondError(w, "update stop", err)
		return
	}
	h.record(r, "paradas.update", "Updated stop "+st.Name)
	httpx.JSON(w, http.StatusOK, st)
}

func (h *Handler) deleteStop(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteStop(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, "delete stop", err)
		return
	}
	h.record(r, "paradas.delete", "Deleted stop "+chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) toggleStop(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.ToggleStop(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "toggle stop", err)
		return
	}
	h.record(r, "paradas.update", "Toggled stop "+st.Name)
	httpx.JSON(w, http.StatusOK, st)
}

func (h *Handler) nearbyStops(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(q.Get("lng"), 64)
	if latErr != nil || lngErr != nil {
		httpx.FieldErrors(w, "lat and lng are required numbers", map[string]string{
			"lat": "required number", "lng": "required number",
		})
		return
	}
	radius := 0.0
	if raw := q.Get("radio"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			httpx.FieldErrors(w, "radio must be a number", map[string]string{"radio": "expected a number"})
			return
		}
		radius = parsed
	}
	stops, err := h.service.NearbyStops(r.Context(), lat, lng, radius)
	if err != nil {
		h.respondError(w, "nearby stops", err)
		return
	}
	if radius <= 0 {
		radius = defaultNearbyRadiusKM
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"radio_km": radius,
		"centro":   map[string]float64{"lat": lat, "lng": lng},
		"paradas":  stops,
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, payload any) bool {
	if err := httpx.DecodeJSON(r, payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeBadRequest, "malformed JSON body")
		return false
	}
	if err := h.validate.Struct(payload); err != nil {
		fields := make(map[string]string)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
		}
		httpx.FieldErrors(w, "validation failed", fields)
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Error(w, http.StatusNotFound, httpx.CodeNotFound, "not found")
	case errors.Is(err, ErrInvalidInput):
		httpx.Error(w, http.StatusBadRequest, httpx.CodeBadRequest, err.Error())
	case errors.Is(err, ErrDuplicate):
		httpx.Error(w, http.StatusConflict, httpx.CodeConflict, err.Error())
	default:
		h.logger.Error(msg, slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, httpx.CodeServerError, "internal error")
	}
}

func (h *Handler) record(r *http.Request, action, description string) {
	if h.audit == nil {
		return
	}
	if principal := rbac.PrincipalFromContext(r.Context()); principal != nil {
		h.audit.Record(r.Context(), principal.ID, action, description)
	}
}
