package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vialibre/vialibre/internal/platform/httpx"
	"github.com/vialibre/vialibre/internal/shared"
)

// Recorder captures administrative actions for the activity log.
type Recorder interface {
	Record(ctx context.Context, actorID, action, description string)
}

// Handler exposes resource and permission administration endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	audit    Recorder
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, recorder Recorder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, audit: recorder, validate: validator.New()}
}

// MountResourceRoutes registers /resources endpoints.
func (h *Handler) MountResourceRoutes(r chi.Router) {
	r.Get("/", h.listResources)
	r.Post("/", h.createResource)
	r.Get("/{id}", h.getResource)
	r.Put("/{id}", h.updateResource)
	r.Delete("/{id}", h.deleteResource)
}

// MountPermissionRoutes registers /permissions endpoints.
func (h *Handler) MountPermissionRoutes(r chi.Router) {
	r.Get("/", h.listPermissions)
	r.Post("/", h.createPermission)
	r.Put("/{id}", h.updatePermission)
	r.Delete("/{id}", h.deletePermission)
	r.Post("/{id}/resources", h.setPermissionResources)
}

type resourcePayload struct {
	Name         string `json:"name" validate:"required,max=120"`
	Description  string `json:"description"`
	Icon         string `json:"icon" validate:"max=100"`
	LinkFrontend string `json:"link_frontend"`
	LinkBackend  string `json:"link_backend"`
}

type permissionPayload struct {
	Code        string `json:"code" validate:"required,max=100"`
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description"`
}

type resourceView struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Icon         string       `json:"icon"`
	LinkFrontend string       `json:"link_frontend"`
	LinkBackend  string       `json:"link_backend"`
	Permissions  []Permission `json:"permissions,omitempty"`
}

func (h *Handler) listResources(w http.ResponseWriter, r *http.Request) {
	resources, err := h.service.ListResources(r.Context())
	if err != nil {
		h.respondError(w, r, "list resources", err)
		return
	}
	views := make([]resourceView, 0, len(resources))
	for _, res := range resources {
		views = append(views, toResourceView(res))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) getResource(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.GetResource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, "get resource", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResourceView(res))
}

func (h *Handler) createResource(w http.ResponseWriter, r *http.Request) {
	var payload resourcePayload
	if !h.decode(w, r, &payload) {
		return
	}
	res, err := h.service.CreateResource(r.Context(), ResourceInput(payload))
	if err != nil {
		h.respondError(w, r, "create resource", err)
		return
	}
	h.record(r, "resources.create", "Created resource "+res.Name)
	httpx.JSON(w, http.StatusCreated, toResourceView(res))
}

func (h *Handler) updateResource(w http.ResponseWriter, r *http.Request) {
	var payload resourcePayload
	if !h.decode(w, r, &payload) {
		return
	}
	res, err := h.service.UpdateResource(r.Context(), chi.URLParam(r, "id"), ResourceInput(payload))
	if err != nil {
		h.respondError(w, r, "update resource", err)
		return
	}
	h.record(r, "resources.update", "Updated resource "+res.Name)
	httpx.JSON(w, http.StatusOK, toResourceView(res))
}

func (h *Handler) deleteResource(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteResource(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, r, "delete resource", err)
		return
	}
	h.record(r, "resources.delete", "Deleted resource "+chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.respondError(w, r, "list permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var payload permissionPayload
	if !h.decode(w, r, &payload) {
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), PermissionInput(payload))
	if err != nil {
		h.respondError(w, r, "create permission", err)
		return
	}
	h.record(r, "permissions.create", "Created permission "+perm.Code)
	httpx.JSON(w, http.StatusCreated, perm)
}

func (h *Handler) updatePermission(w http.ResponseWriter, r *http.Request) {
	var payload permissionPayload
	if !h.decode(w, r, &payload) {
		return
	}
	perm, err := h.service.UpdatePermission(r.Context(), chi.URLParam(r, "id"), PermissionInput(payload))
	if err != nil {
		h.respondError(w, r, "update permission", err)
		return
	}
	h.record(r, "permissions.update", "Updated permission "+perm.Code)
	httpx.JSON(w, http.StatusOK, perm)
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeletePermission(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, r, "delete permission", err)
		return
	}
	h.record(r, "permissions.delete", "Deleted permission "+chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

type permissionResourcesPayload struct {
	ResourceIDs []string `json:"resource_ids"`
}

func (h *Handler) setPermissionResources(w http.ResponseWriter, r *http.Request) {
	var payload permissionResourcesPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.FieldErrors(w, "resource_ids must be a list", map[string]string{"resource_ids": "expected a list of ids"})
		return
	}
	accepted, err := h.service.SetPermissionResources(r.Context(), chi.URLParam(r, "id"), payload.ResourceIDs)
	if err != nil {
		h.respondError(w, r, "set permission resources", err)
		return
	}
	if accepted == nil {
		accepted = []string{}
	}
	h.record(r, "permissions.update", "Replaced resource links for permission "+chi.URLParam(r, "id"))
	httpx.JSON(w, http.StatusOK, map[string][]string{"assigned": accepted})
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

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Error(w, http.StatusNotFound, httpx.CodeNotFound, "not found")
	case errors.Is(err, ErrInvalidPermissionCode), errors.Is(err, ErrInvalidInput):
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
	if principal := PrincipalFromContext(r.Context()); principal != nil {
		h.audit.Record(r.Context(), principal.ID, action, description)
	}
}

func toResourceView(res Resource) resourceView {
	return resourceView(res)
}
