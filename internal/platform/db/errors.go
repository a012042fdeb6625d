package db

import (
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/autoservis/autoservis/internal/shared"
)

// NotFound converts pgx.ErrNoRows into shared.ErrNotFound and passes every
// other error through.
func NotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	return err
}
