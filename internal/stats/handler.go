package stats

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autoservis/autoservis/internal/platform/httpx"
	"github.com/autoservis/autoservis/internal/rbac"
	"github.com/autoservis/autoservis/internal/shared"
)

// Handler exposes dashboard endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers dashboard routes below /stats.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireCapability(shared.ResourceStats, shared.ActionView))
	r.Get("/dashboard", h.dashboard)
	r.Get("/customer-dashboard", h.customer)
	r.Get("/mechanic-dashboard", h.mechanic)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	out, err := h.service.Dashboard(r.Context(), p)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) customer(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	out, err := h.service.CustomerDashboard(r.Context(), p)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) mechanic(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	out, err := h.service.MechanicDashboard(r.Context(), p)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}
