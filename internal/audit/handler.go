package audit

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/autoservis/autoservis/internal/platform/httpx"
	"github.com/autoservis/autoservis/internal/shared"
)

// Handler serves the audit log.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the audit handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/audit-log", h.list)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	q := r.URL.Query()
	filters := Filters{
		TableName:  q.Get("table_name"),
		ActionType: Action(q.Get("action_type")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			httpx.RespondError(w, h.logger, shared.Invalid("limit must be a number"))
			return
		}
		filters.Limit = limit
	}
	facts, err := h.service.List(r.Context(), p, filters)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, facts)
}
