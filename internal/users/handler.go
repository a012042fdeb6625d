package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autoservis/autoservis/internal/platform/httpx"
	"github.com/autoservis/autoservis/internal/rbac"
	"github.com/autoservis/autoservis/internal/shared"
)

// Handler manages user management endpoints.
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

// MountRoutes registers user routes below /users.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireOverride(rbac.OpUsersManage, "only the owner can manage users"))
		r.Get("/", h.listUsers)
		r.Post("/", h.createUser)
		r.Post("/{id}/roles", h.assignRole)
		r.Delete("/{id}/roles/{role}", h.removeRole)
	})
	r.Put("/{id}", h.updateUser)
}

// MountLookupRoutes registers the mechanic and customer pickers.
func (h *Handler) MountLookupRoutes(r chi.Router) {
	r.Get("/mechanics", h.listMechanics)
	r.Get("/customers", h.listCustomers)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	users, err := h.service.List(r.Context(), p)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, users)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	user, err := h.service.Create(r.Context(), in, p)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	h.logger.Info("user created", slog.String("user_id", user.ID), slog.String("by", p.UserID))
	httpx.JSON(w, http.StatusCreated, map[string]string{"user_id": user.ID, "message": "user created"})
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	var in UpdateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	user, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), in, p)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

type roleRequest struct {
	RoleName shared.RoleName `json:"role_name" validate:"required"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.AssignRole(r.Context(), chi.URLParam(r, "id"), req.RoleName, p); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "role assigned"})
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	role := shared.RoleName(chi.URLParam(r, "role"))
	if err := h.service.RemoveRole(r.Context(), chi.URLParam(r, "id"), role, p); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listMechanics(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.Mechanics(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	out, err := h.service.Customers(r.Context(), p)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}
