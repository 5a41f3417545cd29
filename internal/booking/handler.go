package booking

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vialibre/vialibre/internal/audit"
	"github.com/vialibre/vialibre/internal/platform/httpx"
	"github.com/vialibre/vialibre/internal/rbac"
	"github.com/vialibre/vialibre/internal/shared"
)

// Handler exposes reservation and waitlist endpoints.
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

// MountReservationRoutes registers /reservas endpoints.
func (h *Handler) MountReservationRoutes(r chi.Router) {
	r.Get("/", h.listReservations)
	r.Post("/", h.reserve)
	r.Get("/{id}", h.getReservation)
	r.Post("/{id}/cancelar", h.cancel)
	r.Post("/{id}/completar", h.complete)
}

// MountWaitlistRoutes registers /lista-espera endpoints.
func (h *Handler) MountWaitlistRoutes(r chi.Router) {
	r.Get("/", h.listWaitlist)
	r.Post("/{id}/cancelar", h.leaveWaitlist)
}

type reservePayload struct {
	UserID  string `json:"usuario"`
	RouteID string `json:"ruta"`
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	var payload reservePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeBadRequest, "malformed JSON body")
		return
	}
	// Non-staff callers can only book for themselves.
	principal := rbac.PrincipalFromContext(r.Context())
	if payload.UserID == "" && principal != nil {
		payload.UserID = principal.ID
	}
	if principal != nil && !principal.Staff && !principal.Superuser && payload.UserID != principal.ID {
		httpx.Error(w, http.StatusForbidden, httpx.CodeForbidden, "permission denied")
		return
	}

	out, err := h.service.Reserve(r.Context(), payload.UserID, payload.RouteID)
	if err != nil {
		h.respondError(w, "reserve", err)
		return
	}
	if out.Reservation != nil {
		h.record(r, "reservas.create", "Reserved seat on route "+payload.RouteID)
	} else {
		h.record(r, "reservas.create", "Joined waitlist on route "+payload.RouteID)
	}
	httpx.JSON(w, http.StatusCreated, out)
}

func (h *Handler) listReservations(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("usuario")
	routeID := r.URL.Query().Get("ruta")

	// Non-staff only see their own reservations.
	if principal := rbac.PrincipalFromContext(r.Context()); principal != nil && !principal.Staff && !principal.Superuser {
		userID = principal.ID
	}
	list, err := h.service.ListReservations(r.Context(), userID, routeID)
	if err != nil {
		h.respondError(w, "list reservations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) getReservation(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.GetReservation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "get reservation", err)
		return
	}
	if principal := rbac.PrincipalFromContext(r.Context()); principal != nil && !principal.Staff && !principal.Superuser && res.UserID != principal.ID {
		httpx.Error(w, http.StatusForbidden, httpx.CodeForbidden, "permission denied")
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

type cancelPayload struct {
	Reason string `json:"motivo_cancelacion"`
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	var payload cancelPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeBadRequest, "malformed JSON body")
		return
	}
	cancelled, promoted, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"), payload.Reason)
	if err != nil {
		h.respondError(w, "cancel reservation", err)
		return
	}
	h.record(r, "reservas.cancel", "Cancelled reservation "+cancelled.ID)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"reserva":   cancelled,
		"promovida": promoted,
	})
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "complete reservation", err)
		return
	}
	h.record(r, "reservas.complete", "Completed reservation "+res.ID)
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) listWaitlist(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListWaitlist(r.Context(), r.URL.Query().Get("ruta"))
	if err != nil {
		h.respondError(w, "list waitlist", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) leaveWaitlist(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.LeaveWaitlist(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "leave waitlist", err)
		return
	}
	h.record(r, "lista_espera.cancel", "Left waitlist entry "+entry.ID)
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) respondError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Error(w, http.StatusNotFound, httpx.CodeNotFound, "not found")
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrNotCancellable):
		httpx.Error(w, http.StatusBadRequest, httpx.CodeBadRequest, err.Error())
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrCapacityFull):
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
