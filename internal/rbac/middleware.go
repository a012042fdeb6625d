package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/autoservis/autoservis/internal/platform/httpx"
	"github.com/autoservis/autoservis/internal/shared"
)

// Authorizer checks generic capabilities for a principal.
type Authorizer interface {
	Require(ctx context.Context, p shared.Principal, resource, action string) error
}

// DenialObserver is notified of rejected requests.
type DenialObserver interface {
	AuthzDenied(check string)
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Authorizer Authorizer
	Logger     *slog.Logger
	Observer   DenialObserver
}

// RequireCapability ensures the current principal holds (resource, action).
func (m Middleware) RequireCapability(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, m.Logger, shared.ErrSessionNotFound)
				return
			}
			if err := m.Authorizer.Require(r.Context(), p, resource, action); err != nil {
				m.denied(resource + "." + action)
				httpx.RespondError(w, m.Logger, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOverride ensures the current principal is listed for op.
func (m Middleware) RequireOverride(op Operation, reason string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, m.Logger, shared.ErrSessionNotFound)
				return
			}
			if !Allowed(p.Roles, op) {
				m.denied(string(op))
				httpx.RespondError(w, m.Logger, shared.Forbidden(reason))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) denied(check string) {
	if m.Observer != nil {
		m.Observer.AuthzDenied(check)
	}
	if m.Logger != nil {
		m.Logger.Debug("rbac denied", slog.String("check", check))
	}
}
