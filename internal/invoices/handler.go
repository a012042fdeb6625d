package invoices

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autoservis/autoservis/internal/platform/httpx"
	"github.com/autoservis/autoservis/internal/rbac"
	"github.com/autoservis/autoservis/internal/shared"
)

// Handler exposes invoice endpoints.
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

// MountRoutes registers invoice routes below /invoices.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireCapability(shared.ResourceInvoices, shared.ActionView)).Get("/", h.list)
	r.With(h.rbac.RequireCapability(shared.ResourceInvoices, shared.ActionCreate)).Post("/", h.create)
	r.With(h.rbac.RequireCapability(shared.ResourceInvoices, shared.ActionIssue)).Put("/{id}/issue", h.issue)
	r.With(h.rbac.RequireCapability(shared.ResourceInvoices, shared.ActionCancel)).Put("/{id}/cancel", h.cancel)
	r.With(h.rbac.RequireOverride(rbac.OpInvoiceMarkPaid, "only the owner or an accountant can mark invoices paid")).Put("/{id}/pay", h.pay)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	invoices, err := h.service.List(r.Context(), p)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoices)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	inv, err := h.service.Create(r.Context(), in, p)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	h.logger.Info("invoice drafted", slog.String("invoice_number", inv.InvoiceNumber), slog.String("by", p.UserID))
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	inv, err := h.service.Issue(r.Context(), chi.URLParam(r, "id"), p)
	h.respond(w, inv, err)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	inv, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"), p)
	h.respond(w, inv, err)
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	inv, err := h.service.MarkPaid(r.Context(), chi.URLParam(r, "id"), p)
	h.respond(w, inv, err)
}

func (h *Handler) respond(w http.ResponseWriter, inv *Invoice, err error) {
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}
