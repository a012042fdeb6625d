package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autoservis/autoservis/internal/platform/httpx"
	"github.com/autoservis/autoservis/internal/shared"
)

// PermissionsHandler manages permission listing.
type PermissionsHandler struct {
	service *Service
	logger  *slog.Logger
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(service *Service, logger *slog.Logger) *PermissionsHandler {
	return &PermissionsHandler{service: service, logger: logger}
}

// MountUserRoutes registers permission routes below /users.
func (h *PermissionsHandler) MountUserRoutes(r chi.Router) {
	r.Get("/{id}/permissions", h.listForUser)
}

func (h *PermissionsHandler) listForUser(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	userID, err := shared.NormalizeID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	perms, err := h.service.ListPermissions(r.Context(), userID, p)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}
