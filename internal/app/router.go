package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/autoservis/autoservis/internal/audit"
	"github.com/autoservis/autoservis/internal/auth"
	"github.com/autoservis/autoservis/internal/invoices"
	"github.com/autoservis/autoservis/internal/observability"
	"github.com/autoservis/autoservis/internal/platform/httpx"
	"github.com/autoservis/autoservis/internal/rbac"
	"github.com/autoservis/autoservis/internal/roles"
	"github.com/autoservis/autoservis/internal/shared"
	"github.com/autoservis/autoservis/internal/stats"
	"github.com/autoservis/autoservis/internal/users"
	"github.com/autoservis/autoservis/internal/vehicles"
	"github.com/autoservis/autoservis/internal/workorders"
	"github.com/autoservis/autoservis/jobs"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
	// RequireSession resolves the bearer token into a principal.
	RequireSession func(http.Handler) http.Handler
	Database       Pinger

	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	PermissionsHandler *rbac.PermissionsHandler
	RolesHandler       *roles.Handler
	VehiclesHandler    *vehicles.Handler
	WorkOrdersHandler  *workorders.Handler
	InvoicesHandler    *invoices.Handler
	AuditHandler       *audit.Handler
	StatsHandler       *stats.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with the API routes under /api.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", healthz(params.Database, params.Logger))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if params.AuthHandler != nil {
			params.AuthHandler.MountPublicRoutes(r)
		}

		r.Group(func(r chi.Router) {
			if params.RequireSession != nil {
				r.Use(params.RequireSession)
			} else {
				r.Use(func(http.Handler) http.Handler {
					return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
						httpx.RespondError(w, params.Logger, shared.ErrSessionNotFound)
					})
				})
			}

			if params.AuthHandler != nil {
				params.AuthHandler.MountRoutes(r)
			}
			r.Route("/users", func(r chi.Router) {
				if params.UsersHandler != nil {
					params.UsersHandler.MountRoutes(r)
				}
				if params.PermissionsHandler != nil {
					params.PermissionsHandler.MountUserRoutes(r)
				}
			})
			if params.UsersHandler != nil {
				params.UsersHandler.MountLookupRoutes(r)
			}
			if params.RolesHandler != nil {
				r.Route("/roles", params.RolesHandler.MountRoutes)
			}
			if params.VehiclesHandler != nil {
				r.Route("/vehicles", params.VehiclesHandler.MountRoutes)
			}
			if params.WorkOrdersHandler != nil {
				r.Route("/work-orders", params.WorkOrdersHandler.MountRoutes)
			}
			if params.InvoicesHandler != nil {
				r.Route("/invoices", params.InvoicesHandler.MountRoutes)
			}
			if params.AuditHandler != nil {
				params.AuditHandler.MountRoutes(r)
			}
			if params.StatsHandler != nil {
				r.Route("/stats", params.StatsHandler.MountRoutes)
			}
			if params.JobHandler != nil {
				r.Route("/jobs", params.JobHandler.MountRoutes)
			}
		})
	})

	return r
}

func healthz(db Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				logger.Warn("health check", slog.Any("error", err))
				httpx.Problem(w, http.StatusServiceUnavailable, "unavailable", "Service Unavailable", "database unavailable")
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
