package gps

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vialibre/vialibre/internal/audit"
	"github.com/vialibre/vialibre/internal/platform/httpx"
	"github.com/vialibre/vialibre/internal/rbac"
	"github.com/vialibre/vialibre/internal/shared"
)

// Handler exposes telemetry endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	audit   audit.Recorder
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, recorder audit.Recorder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, audit: recorder}
}

// MountPositionRoutes registers /posiciones endpoints.
func (h *Handler) MountPositionRoutes(r chi.Router) {
	r.Get("/", h.listPositions)
	r.Post("/", h.createPosition)
	r.Get("/cercanas", h.withinRadius)
	r.Get("/{id}", h.getPosition)
}

// MountDeviceRoutes registers /devices endpoints.
func (h *Handler) MountDeviceRoutes(r chi.Router) {
	r.Get("/", h.listDevices)
	r.Post("/", h.createDevice)
	r.Get("/{id}", h.getDevice)
	r.Put("/{id}", h.updateDevice)
	r.Delete("/{id}", h.deleteDevice)
}

// MountEventRoutes registers /eventos_desvio endpoints.
func (h *Handler) MountEventRoutes(r chi.Router) {
	r.Get("/", h.listEvents)
	r.Post("/", h.createEvent)
	r.Get("/{id}", h.getEvent)
	r.Put("/{id}", h.updateEvent)
	r.Delete("/{id}", h.deleteEvent)
}

type positionPayload struct {
	RouteID    *string  `json:"ruta"`
	UserID     *string  `json:"usuario"`
	DeviceID   *string  `json:"device"`
	Longitude  *float64 `json:"longitud"`
	Latitude   *float64 `json:"latitud"`
	Speed      *float64 `json:"velocidad"`
	Heading    *float64 `json:"heading"`
	Altitude   *float64 `json:"altitude"`
	Accuracy   *float64 `json:"accuracy"`
	Battery    *float64 `json:"battery"`
	RecordedAt *string  `json:"fecha_hora"`
}

func (h *Handler) createPosition(w http.ResponseWriter, r *http.Request) {
	var payload positionPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeBadRequest, "malformed JSON body")
		return
	}
	if payload.Latitude == nil || payload.Longitude == nil {
		httpx.FieldErrors(w, "latitud and longitud are required", map[string]string{
			"latitud": "required", "longitud": "required",
		})
		return
	}
	p := Position{
		RouteID:   payload.RouteID,
		UserID:    payload.UserID,
		DeviceID:  payload.DeviceID,
		Longitude: *payload.Longitude,
		Latitude:  *payload.Latitude,
		Speed:     payload.Speed,
		Heading:   payload.Heading,
		Altitude:  payload.Altitude,
		Accuracy:  payload.Accuracy,
		Battery:   payload.Battery,
	}
	if payload.RecordedAt != nil {
		ts, err := time.Parse(time.RFC3339, *payload.RecordedAt)
		if err != nil {
			httpx.FieldErrors(w, "fecha_hora must be RFC 3339", map[string]string{"fecha_hora": "invalid timestamp"})
			return
		}
		p.RecordedAt = ts
	}
	created, err := h.service.RecordPosition(r.Context(), p)
	if err != nil {
		h.respondError(w, "record position", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) listPositions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	list, err := h.service.ListPositions(r.Context(), q.Get("ruta"), q.Get("usuario"), limit)
	if err != nil {
		h.respondError(w, "list positions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) getPosition(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetPosition(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "get position", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) withinRadius(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(q.Get("lng"), 64)
	if latErr != nil || lngErr != nil {
		httpx.FieldErrors(w, "lat and lng are required numbers", map[string]string{
			"lat": "required number", "lng": "required number",
		})
		return
	}
	query := RadiusQuery{Latitude: lat, Longitude: lng}
	if raw := q.Get("metros"); raw != "" {
		meters, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			httpx.FieldErrors(w, "metros must be a number", map[string]string{"metros": "expected a number"})
			return
		}
		query.Meters = meters
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			httpx.FieldErrors(w, "limit must be an integer", map[string]string{"limit": "expected an integer"})
			return
		}
		query.Limit = limit
	}
	for param, dst := range map[string]**time.Time{"since": &query.Since, "until": &query.Until} {
		if raw := q.Get(param); raw != "" {
			ts, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				httpx.FieldErrors(w, param+" must be RFC 3339", map[string]string{param: "invalid timestamp"})
				return
			}
			*dst = &ts
		}
	}
	results, err := h.service.WithinRadius(r.Context(), query)
	if err != nil {
		h.respondError(w, "within radius", err)
		return
	}
	httpx.JSON(w, http.StatusOK, results)
}

type devicePayload struct {
	IMEI   string `json:"imei"`
	Name   string `json:"nombre"`
	Active *bool  `json:"activo"`
}

func (h *Handler) listDevices(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListDevices(r.Context())
	if err != nil {
		h.respondError(w, "list devices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) getDevice(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.GetDevice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "get device", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) createDevice(w http.ResponseWriter, r *http.Request) {
	var payload devicePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeBadRequest, "malformed JSON body")
		return
	}
	active := true
	if payload.Active != nil {
		active = *payload.Active
	}
	d, err := h.service.CreateDevice(r.Context(), payload.IMEI, payload.Name, active)
	if err != nil {
		h.respondError(w, "create device", err)
		return
	}
	h.record(r, "gps.device_create", "Registered device "+d.IMEI)
	httpx.JSON(w, http.StatusCreated, d)
}

func (h *Handler) updateDevice(w http.ResponseWriter, r *http.Request) {
	var payload devicePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeBadRequest, "malformed JSON body")
		return
	}
	active := true
	if payload.Active != nil {
		active = *payload.Active
	}
	d, err := h.service.UpdateDevice(r.Context(), Device{
		ID: chi.URLParam(r, "id"), IMEI: payload.IMEI, Name: payload.Name, Active: active,
	})
	if err != nil {
		h.respondError(w, "update device", err)
		return
	}
	h.record(r, "gps.device_update", "Updated device "+d.IMEI)
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) deleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteDevice(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, "delete device", err)
		return
	}
	h.record(r, "gps.device_delete", "Deleted device "+chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

type eventPayload struct {
	PositionID  *string `json:"posicion"`
	RouteID     *string `json:"ruta"`
	OccurredAt  *string `json:"fecha_hora"`
	Kind        string  `json:"tipo_desvio"`
	State       string  `json:"estado"`
	Description string  `json:"descripcion"`
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.service.ListEvents(r.Context(), q.Get("ruta"), q.Get("estado"))
	if err != nil {
		h.respondError(w, "list events", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	e, err := h.service.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "get event", err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) createEvent(w http.ResponseWriter, r *http.Request) {
	var payload eventPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeBadRequest, "malformed JSON body")
		return
	}
	e := DeviationEvent{
		PositionID:  payload.PositionID,
		RouteID:     payload.RouteID,
		Kind:        payload.Kind,
		State:       payload.State,
		Description: payload.Description,
	}
	if payload.OccurredAt != nil {
		ts, err := time.Parse(time.RFC3339, *payload.OccurredAt)
		if err != nil {
			httpx.FieldErrors(w, "fecha_hora must be RFC 3339", map[string]string{"fecha_hora": "invalid timestamp"})
			return
		}
		e.OccurredAt = ts
	}
	created, err := h.service.CreateEvent(r.Context(), e)
	if err != nil {
		h.respondError(w, "create event", err)
		return
	}
	h.record(r, "gps.event_create", "Recorded deviation "+created.Kind)
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateEvent(w http.ResponseWriter, r *http.Request) {
	var payload eventPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeBadRequest, "malformed JSON body")
		return
	}
	e, err := h.service.UpdateEvent(r.Context(), DeviationEvent{
		ID:          chi.URLParam(r, "id"),
		Kind:        payload.Kind,
		State:       payload.State,
		Description: payload.Description,
	})
	if err != nil {
		h.respondError(w, "update event", err)
		return
	}
	h.record(r, "gps.event_update", "Updated deviation "+e.ID)
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) deleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteEvent(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, "delete event", err)
		return
	}
	h.record(r, "gps.event_delete", "Deleted deviation "+chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
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
