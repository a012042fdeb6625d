package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autoservis/autoservis/internal/platform/httpx"
	"github.com/autoservis/autoservis/internal/shared"
)

// Handler wires HTTP endpoints for authentication and sessions.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountPublicRoutes registers routes reachable without a session.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Post("/auth/login", h.login)
}

// MountRoutes registers routes that require a resolved principal.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/auth/me", h.me)
	r.Post("/auth/logout", h.logout)
	r.Get("/sessions", h.listSessions)
	r.Delete("/sessions/{id}", h.revokeSession)
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	result, err := h.service.Authenticate(r.Context(), req.Username, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	h.logger.Info("login", slog.String("user_id", result.User.UserID), slog.String("session_id", result.Session.SessionID))
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	me, err := h.service.Me(r.Context(), p)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, me)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	if err := h.service.Logout(r.Context(), p); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	sessions, err := h.service.ListActive(r.Context(), p)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sessions)
}

func (h *Handler) revokeSession(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	if err := h.service.Revoke(r.Context(), chi.URLParam(r, "id"), p); err != nil {
		// The caller's own session is valid here; an unknown target is a 404.
		if errors.Is(err, shared.ErrSessionNotFound) {
			err = shared.ErrNotFound
		}
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "session revoked"})
}
