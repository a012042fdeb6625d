package auth

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/autoservis/autoservis/internal/platform/httpx"
	"github.com/autoservis/autoservis/internal/shared"
)

// RequireSession resolves the bearer token into a principal. Missing,
// malformed, expired and revoked tokens all receive the same 401.
func RequireSession(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				httpx.RespondError(w, logger, shared.ErrSessionNotFound)
				return
			}
			p, err := service.ResolveToken(r.Context(), token)
			if err != nil {
				httpx.RespondError(w, logger, err)
				return
			}
			p.IP = clientIP(r)
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), p)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
