package roles

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autoservis/autoservis/internal/platform/httpx"
	"github.com/autoservis/autoservis/internal/rbac"
	"github.com/autoservis/autoservis/internal/shared"
)

// Handler manages role endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers role routes below /roles.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listRoles)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireCapability(shared.ResourceRoles, shared.ActionManage))
		r.Put("/{role}/permissions", h.setPermissions)
	})
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

type permissionsRequest struct {
	Permissions []rbac.Capability `json:"permissions" validate:"required,dive"`
}

func (h *Handler) setPermissions(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	var req permissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	grants, err := h.service.SetPermissions(r.Context(), shared.RoleName(chi.URLParam(r, "role")), req.Permissions, p)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	h.logger.Info("role permissions replaced", slog.String("role", string(grants.RoleName)), slog.String("by", p.UserID))
	httpx.JSON(w, http.StatusOK, grants)
}
