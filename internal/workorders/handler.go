package workorders

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autoservis/autoservis/internal/platform/httpx"
	"github.com/autoservis/autoservis/internal/rbac"
	"github.com/autoservis/autoservis/internal/shared"
)

// Handler exposes work order endpoints.
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

// MountRoutes registers work order routes below /work-orders.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireCapability(shared.ResourceWorkOrders, shared.ActionView))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.With(h.rbac.RequireCapability(shared.ResourceWorkOrders, shared.ActionCreate)).Post("/", h.create)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireCapability(shared.ResourceWorkOrders, shared.ActionUpdate))
		r.Put("/{id}/status", h.setStatus)
		r.Put("/{id}/mechanic", h.assign)
		r.Post("/{id}/logs", h.addLog)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	orders, err := h.service.List(r.Context(), p)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	order, err := h.service.Get(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	order, err := h.service.Create(r.Context(), in, p)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	h.logger.Info("work order created", slog.String("work_order_id", order.WorkOrderID), slog.String("by", p.UserID))
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	var change StatusChange
	if err := httpx.DecodeJSON(r, &change); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	order, err := h.service.SetStatus(r.Context(), chi.URLParam(r, "id"), change, p)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

type assignRequest struct {
	MechanicID string `json:"mechanic_id"`
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	order, err := h.service.Assign(r.Context(), chi.URLParam(r, "id"), req.MechanicID, p)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) addLog(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	var in LogInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	entry, err := h.service.AddLog(r.Context(), chi.URLParam(r, "id"), in, p)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}
