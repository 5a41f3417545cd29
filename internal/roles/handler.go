package roles

import (
	"encoding/json"
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

// Handler manages role endpoints, including the bulk-assign operations.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	audit    audit.Recorder
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, recorder audit.Recorder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, audit: recorder, validate: validator.New()}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
	r.Post("/{id}/assign_users", h.assignUsers)
	r.Post("/{id}/assign_resources", h.assignResources)
}

type rolePayload struct {
	Name        string `json:"name" validate:"required,max=80"`
	Slug        string `json:"slug" validate:"max=80"`
	Description string `json:"description"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.List(r.Context())
	if err != nil {
		h.respondError(w, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var payload rolePayload
	if !h.decode(w, r, &payload) {
		return
	}
	role, err := h.service.Create(r.Context(), payload.Name, payload.Slug, payload.Description)
	if err != nil {
		h.respondError(w, "create role", err)
		return
	}
	h.record(r, "roles.create", "Created role "+role.Name)
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var payload rolePayload
	if !h.decode(w, r, &payload) {
		return
	}
	role, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), payload.Name, payload.Slug, payload.Description)
	if err != nil {
		h.respondError(w, "update role", err)
		return
	}
	h.record(r, "roles.update", "Updated role "+role.Name)
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, "delete role", err)
		return
	}
	h.record(r, "roles.delete", "Deleted role "+chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

type assignUsersPayload struct {
	UserIDs []string `json:"user_ids"`
}

type assignResourcesPayload struct {
	ResourceIDs []string `json:"resource_ids"`
}

func (h *Handler) assignUsers(w http.ResponseWriter, r *http.Request) {
	var payload assignUsersPayload
	if !decodeIDList(w, r, &payload, "user_ids") {
		return
	}
	result, err := h.service.AssignUsers(r.Context(), chi.URLParam(r, "id"), payload.UserIDs)
	if err != nil {
		h.respondError(w, "assign users", err)
		return
	}
	h.record(r, "roles.update", "Assigned users to role "+chi.URLParam(r, "id"))
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) assignResources(w http.ResponseWriter, r *http.Request) {
	var payload assignResourcesPayload
	if !decodeIDList(w, r, &payload, "resource_ids") {
		return
	}
	result, err := h.service.AssignResources(r.Context(), chi.URLParam(r, "id"), payload.ResourceIDs)
	if err != nil {
		h.respondError(w, "assign resources", err)
		return
	}
	h.record(r, "roles.update", "Assigned resources to role "+chi.URLParam(r, "id"))
	httpx.JSON(w, http.StatusOK, result)
}

// decodeIDList decodes a bulk-assign body. A payload whose id field is not a
// list is a validation failure naming that field, never a panic.
func decodeIDList(w http.ResponseWriter, r *http.Request, payload any, field string) bool {
	if err := httpx.DecodeJSON(r, payload); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			httpx.FieldErrors(w, field+" must be a list", map[string]string{field: "expected a list of ids"})
			return false
		}
		httpx.Error(w, http.StatusBadRequest, httpx.CodeBadRequest, "malformed JSON body")
		return false
	}
	return true
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
