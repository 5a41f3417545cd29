package users

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vialibre/vialibre/internal/audit"
	"github.com/vialibre/vialibre/internal/platform/httpx"
	"github.com/vialibre/vialibre/internal/rbac"
	"github.com/vialibre/vialibre/internal/shared"
)

// Handler exposes administrative user endpoints.
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

// MountRoutes registers /users endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
}

type createPayload struct {
	Username  string `json:"username" validate:"required,max=150"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"required,max=50"`
	LastName  string `json:"last_name" validate:"required,max=50"`
	Phone     string `json:"phone" validate:"max=20"`
	IsActive  *bool  `json:"is_active"`
	IsStaff   bool   `json:"is_staff"`
}

type updatePayload struct {
	Username       string   `json:"username" validate:"required,max=150"`
	Email          string   `json:"email" validate:"required,email"`
	FirstName      string   `json:"first_name" validate:"max=50"`
	LastName       string   `json:"last_name" validate:"max=50"`
	Phone          string   `json:"phone" validate:"max=20"`
	Identification string   `json:"identificacion" validate:"max=10"`
	Avatar         string   `json:"avatar"`
	IsActive       bool     `json:"is_active"`
	IsStaff        bool     `json:"is_staff"`
	VerifiedEmail  bool     `json:"verified_email"`
	GPSLatitude    *float64 `json:"gps_latitude"`
	GPSLongitude   *float64 `json:"gps_longitude"`
	IsActiveGPS    bool     `json:"is_active_gps"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.respondError(w, "list users", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "get user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var payload createPayload
	if !h.decode(w, r, &payload) {
		return
	}
	active := true
	if payload.IsActive != nil {
		active = *payload.IsActive
	}
	u, err := h.service.Create(r.Context(), CreateInput{
		Username:  payload.Username,
		Email:     payload.Email,
		Password:  payload.Password,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Phone:     payload.Phone,
		IsActive:  active,
		IsStaff:   payload.IsStaff,
	})
	if err != nil {
		h.respondError(w, "create user", err)
		return
	}
	h.record(r, "users.create", "Created user "+u.Username)
	httpx.JSON(w, http.StatusCreated, u)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var payload updatePayload
	if !h.decode(w, r, &payload) {
		return
	}
	u, err := h.service.AdminUpdate(r.Context(), User{
		ID:             chi.URLParam(r, "id"),
		Username:       payload.Username,
		Email:          payload.Email,
		FirstName:      payload.FirstName,
		LastName:       payload.LastName,
		Phone:          payload.Phone,
		Identification: payload.Identification,
		Avatar:         payload.Avatar,
		IsActive:       payload.IsActive,
		IsStaff:        payload.IsStaff,
		VerifiedEmail:  payload.VerifiedEmail,
		GPSLatitude:    payload.GPSLatitude,
		GPSLongitude:   payload.GPSLongitude,
		IsActiveGPS:    payload.IsActiveGPS,
	})
	if err != nil {
		h.respondError(w, "update user", err)
		return
	}
	h.record(r, "users.update", "Updated user "+u.Username)
	httpx.JSON(w, http.StatusOK, u)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, "delete user", err)
		return
	}
	h.record(r, "users.delete", "Deleted user "+chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
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
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrWeakPassword):
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
