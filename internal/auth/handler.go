package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vialibre/vialibre/internal/audit"
	"github.com/vialibre/vialibre/internal/platform/httpx"
	"github.com/vialibre/vialibre/internal/shared"
	"github.com/vialibre/vialibre/internal/users"
)

// Handler exposes the session endpoints mounted outside the authorization
// gate: login has no principal yet and the rest operate on the session owner.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	users    *users.Service
	sessions *shared.SessionManager
	csrf     *shared.CSRFManager
	audit    audit.Recorder
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, userSvc *users.Service, sessions *shared.SessionManager, csrf *shared.CSRFManager, recorder audit.Recorder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		service:  service,
		users:    userSvc,
		sessions: sessions,
		csrf:     csrf,
		audit:    recorder,
		validate: validator.New(),
	}
}

// MountRoutes registers the auth group.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/csrf", h.csrfInit)
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)
	r.Get("/me", h.me)
	r.Get("/me/update", h.me)
	r.Put("/me/update", h.updateProfile)
	r.Post("/register", h.register)
	r.Post("/password/change", h.changePassword)
	r.Post("/password/reset", h.resetRequest)
	r.Post("/password/reset/confirm", h.resetConfirm)
}

// csrfInit primes the session with a CSRF token so the SPA can echo it on
// mutating requests.
func (h *Handler) csrfInit(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	token, err := h.csrf.EnsureToken(r.Context(), sess)
	if err != nil {
		h.logger.Error("csrf init", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, httpx.CodeServerError, "internal error")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{
		"detail":     "CSRF token issued",
		"csrf_token": token,
	})
}

type loginPayload struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var payload loginPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeBadRequest, "malformed JSON body")
		return
	}
	if payload.Username == "" || payload.Password == "" {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeBadRequest, "missing credentials")
		return
	}

	u, err := h.service.Login(r.Context(), payload.Username, payload.Password)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrInvalidCredentials):
			httpx.Error(w, http.StatusBadRequest, httpx.CodeBadRequest, "invalid credentials")
		case errors.Is(err, shared.ErrInactiveUser):
			httpx.Error(w, http.StatusForbidden, httpx.CodeForbidden, "inactive user")
		default:
			h.logger.Error("login", slog.Any("error", err))
			httpx.Error(w, http.StatusInternalServerError, httpx.CodeServerError, "internal error")
		}
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		sess.SetUser(u.ID)
		sess.SetRemember(payload.RememberMe)
	}
	h.record(r, u.ID, "auth.login", "Session opened for "+u.Username)

	view, err := h.users.Get(r.Context(), u.ID)
	if err != nil {
		view = u
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"detail":      "session opened",
		"remember_me": payload.RememberMe,
		"user":        view,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		httpx.Error(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		return
	}
	h.record(r, sess.User(), "auth.logout", "Session closed")
	h.sessions.Destroy(sess)
	httpx.JSON(w, http.StatusOK, map[string]string{"detail": "session closed"})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.sessionUser(w, r)
	if !ok {
		return
	}
	u, err := h.users.Get(r.Context(), userID)
	if err != nil {
		h.respondError(w, "me", err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

type profilePayload struct {
	FirstName    *string  `json:"first_name"`
	LastName     *string  `json:"last_name"`
	Phone        *string  `json:"phone"`
	Avatar       *string  `json:"avatar"`
	GPSLatitude  *float64 `json:"gps_latitude"`
	GPSLongitude *float64 `json:"gps_longitude"`
	IsActiveGPS  *bool    `json:"is_active_gps"`
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.sessionUser(w, r)
	if !ok {
		return
	}
	var payload profilePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeBadRequest, "malformed JSON body")
		return
	}
	u, err := h.users.UpdateProfile(r.Context(), userID, users.ProfileUpdate{
		FirstName:    payload.FirstName,
		LastName:     payload.LastName,
		Phone:        payload.Phone,
		Avatar:       payload.Avatar,
		GPSLatitude:  payload.GPSLatitude,
		GPSLongitude: payload.GPSLongitude,
		IsActiveGPS:  payload.IsActiveGPS,
	})
	if err != nil {
		h.respondError(w, "update profile", err)
		return
	}
	h.record(r, userID, "auth.profile_update", "Profile updated")
	httpx.JSON(w, http.StatusOK, u)
}

type registerPayload struct {
	Username  string `json:"username" validate:"required,max=150"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"required,max=50"`
	LastName  string `json:"last_name" validate:"required,max=50"`
	Phone     string `json:"phone" validate:"max=20"`
}

// register creates an account without opening a session; login stays an
// explicit step.
func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var payload registerPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeBadRequest, "malformed JSON body")
		return
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
		return
	}
	u, err := h.users.Create(r.Context(), users.CreateInput{
		Username:  payload.Username,
		Email:     payload.Email,
		Password:  payload.Password,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Phone:     payload.Phone,
		IsActive:  true,
	})
	if err != nil {
		h.respondError(w, "register", err)
		return
	}
	h.record(r, u.ID, "auth.register", "Account registered")
	httpx.JSON(w, http.StatusCreated, u)
}

type passwordChangePayload struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.sessionUser(w, r)
	if !ok {
		return
	}
	var payload passwordChangePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeBadRequest, "malformed JSON body")
		return
	}
	if err := h.service.ChangePassword(r.Context(), userID, payload.OldPassword, payload.NewPassword); err != nil {
		switch {
		case errors.Is(err, shared.ErrInvalidCredentials):
			httpx.FieldErrors(w, "validation failed", map[string]string{"old_password": "current password incorrect"})
		case errors.Is(err, users.ErrWeakPassword):
			httpx.FieldErrors(w, "validation failed", map[string]string{"new_password": err.Error()})
		default:
			h.respondError(w, "change password", err)
		}
		return
	}
	h.record(r, userID, "auth.password_change", "Password changed")
	httpx.JSON(w, http.StatusOK, map[string]string{"detail": "password changed"})
}

type resetRequestPayload struct {
	Email   string `json:"email"`
	BaseURL string `json:"base_url"`
}

func (h *Handler) resetRequest(w http.ResponseWriter, r *http.Request) {
	var payload resetRequestPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeBadRequest, "malformed JSON body")
		return
	}
	if payload.Email == "" {
		httpx.FieldErrors(w, "validation failed", map[string]string{"email": "required"})
		return
	}
	sent, err := h.service.RequestPasswordReset(r.Context(), payload.Email, payload.BaseURL)
	if err != nil {
		h.respondError(w, "password reset request", err)
		return
	}
	if !sent {
		httpx.JSON(w, http.StatusNotFound, map[string]any{"detail": "no account matches that email", "sent": false})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"detail": "recovery mail sent", "sent": true})
}

type resetConfirmPayload struct {
	UID         string `json:"uid"`
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (h *Handler) resetConfirm(w http.ResponseWriter, r *http.Request) {
	var payload resetConfirmPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeBadRequest, "malformed JSON body")
		return
	}
	if err := h.service.ConfirmPasswordReset(r.Context(), payload.UID, payload.Token, payload.NewPassword); err != nil {
		switch {
		case errors.Is(err, ErrResetTokenInvalid):
			httpx.FieldErrors(w, "validation failed", map[string]string{"token": "invalid or expired token"})
		case errors.Is(err, users.ErrWeakPassword):
			httpx.FieldErrors(w, "validation failed", map[string]string{"new_password": err.Error()})
		default:
			h.respondError(w, "password reset confirm", err)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"detail": "password reset"})
}

func (h *Handler) sessionUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		httpx.Error(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		return "", false
	}
	return sess.User(), true
}

func (h *Handler) respondError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Error(w, http.StatusNotFound, httpx.CodeNotFound, "not found")
	case errors.Is(err, users.ErrInvalidInput):
		httpx.Error(w, http.StatusBadRequest, httpx.CodeBadRequest, err.Error())
	case errors.Is(err, users.ErrDuplicate):
		httpx.Error(w, http.StatusConflict, httpx.CodeConflict, err.Error())
	default:
		h.logger.Error(msg, slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, httpx.CodeServerError, "internal error")
	}
}

func (h *Handler) record(r *http.Request, actorID, action, description string) {
	if h.audit == nil {
		return
	}
	h.audit.Record(r.Context(), actorID, action, description)
}
