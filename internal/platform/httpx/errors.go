// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/autoservis/autoservis/internal/shared"
)

const pgUniqueViolation = "23505"

// RespondError maps domain errors to HTTP responses using RFC7807. Session
// failures share one body so that expired and unknown sessions look the same.
// Unclassified errors are logged and reported without detail.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		err = shared.Conflict(pgErr.ConstraintName)
	}
	kind := shared.KindOf(err)
	switch kind {
	case shared.KindUnauthorized:
		Problem(w, http.StatusUnauthorized, kind, "Unauthorized", "unauthorized")
	case shared.KindForbidden:
		Problem(w, http.StatusForbidden, kind, "Forbidden", reason(err, shared.ErrForbidden))
	case shared.KindNotFound:
		Problem(w, http.StatusNotFound, kind, "Not Found", reason(err, shared.ErrNotFound))
	case shared.KindInvalidTransition:
		Problem(w, http.StatusConflict, kind, "Invalid Transition", err.Error())
	case shared.KindValidation:
		Problem(w, http.StatusBadRequest, kind, "Validation Failed", reason(err, shared.ErrValidation))
	case shared.KindConflict:
		Problem(w, http.StatusConflict, kind, "Conflict", reason(err, shared.ErrConflict))
	default:
		if logger != nil {
			logger.Error("internal error", slog.Any("error", err))
		}
		Problem(w, http.StatusInternalServerError, shared.KindInternal, "Internal Error", "internal error")
	}
}

// reason strips the sentinel prefix so the client sees only the explanation.
func reason(err, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if idx := strings.Index(msg, prefix); idx >= 0 {
		return msg[idx+len(prefix):]
	}
	return msg
}
