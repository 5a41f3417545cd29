package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/vialibre/vialibre/internal/audit"
	"github.com/vialibre/vialibre/internal/auth"
	"github.com/vialibre/vialibre/internal/booking"
	"github.com/vialibre/vialibre/internal/gps"
	"github.com/vialibre/vialibre/internal/observability"
	"github.com/vialibre/vialibre/internal/rbac"
	"github.com/vialibre/vialibre/internal/roles"
	"github.com/vialibre/vialibre/internal/shared"
	"github.com/vialibre/vialibre/internal/transit"
	"github.com/vialibre/vialibre/internal/users"
	"github.com/vialibre/vialibre/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Gate           rbac.Gate

	AuthHandler    *auth.Handler
	UsersHandler   *users.Handler
	RolesHandler   *roles.Handler
	RBACHandler    *rbac.Handler
	AuditHandler   *audit.Handler
	TransitHandler *transit.Handler
	BookingHandler *booking.Handler
	GPSHandler     *gps.Handler
	JobHandler     *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router. Everything under /api is JSON; every
// group except the auth endpoints sits behind the authorization gate.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Route("/auth", func(r chi.Router) {
				r.Use(LoginRateLimiter())
				params.AuthHandler.MountRoutes(r)
			})

			r.Group(func(r chi.Router) {
				r.Use(params.Gate.Protect)
				r.Route("/users", params.UsersHandler.MountRoutes)
				r.Route("/roles", params.RolesHandler.MountRoutes)
				r.Route("/resources", params.RBACHandler.MountResourceRoutes)
				r.Route("/permissions", params.RBACHandler.MountPermissionRoutes)
				r.Route("/activity-logs", params.AuditHandler.MountRoutes)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(params.Gate.Protect)

			r.Route("/rutas", func(r chi.Router) {
				r.Route("/rutas", params.TransitHandler.MountRouteRoutes)
				r.Route("/buses", params.TransitHandler.MountBusRoutes)
			})
			r.Route("/paradas", params.TransitHandler.MountStopRoutes)

			r.Route("/gestion-cupo", func(r chi.Router) {
				r.Route("/reservas", params.BookingHandler.MountReservationRoutes)
				r.Route("/lista-espera", params.BookingHandler.MountWaitlistRoutes)
			})

			r.Route("/gps", func(r chi.Router) {
				r.Route("/posiciones", params.GPSHandler.MountPositionRoutes)
				r.Route("/devices", params.GPSHandler.MountDeviceRoutes)
				r.Route("/eventos_desvio", params.GPSHandler.MountEventRoutes)
			})
		})
	})

	return r
}
