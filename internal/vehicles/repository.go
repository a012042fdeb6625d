package vehicles

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autoservis/autoservis/internal/audit"
	"github.com/autoservis/autoservis/internal/platform/db"
)

// Repository defines persistence operations for vehicles.
type Repository interface {
	List(ctx context.Context, ownerID string) ([]Vehicle, error)
	UserExists(ctx context.Context, userID string) (bool, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional vehicle writes.
type TxRepository interface {
	audit.Writer
	Insert(ctx context.Context, v Vehicle) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type pgTx struct {
	*audit.SQLWriter
	tx pgx.Tx
}

// WithTx runs fn inside a transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &pgTx{SQLWriter: audit.NewSQLWriter(tx), tx: tx})
	})
}

// List returns vehicles newest first, restricted to ownerID unless empty.
func (r *PGRepository) List(ctx context.Context, ownerID string) ([]Vehicle, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT v.vehicle_id::text, v.owner_id::text, u.username, u.email, v.license_plate,
		       v.brand, v.model, v.year, COALESCE(v.vin, ''), COALESCE(v.metadata::text, ''), v.created_at
		FROM vehicles v
		JOIN users u ON u.user_id = v.owner_id
		WHERE ($1 = '' OR v.owner_id = NULLIF($1, '')::uuid)
		ORDER BY v.created_at DESC, v.vehicle_id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Vehicle
	for rows.Next() {
		var (
			v        Vehicle
			metadata string
		)
		if err := rows.Scan(&v.VehicleID, &v.OwnerID, &v.OwnerName, &v.OwnerEmail, &v.LicensePlate,
			&v.Brand, &v.Model, &v.Year, &v.VIN, &metadata, &v.CreatedAt); err != nil {
			return nil, err
		}
		if metadata != "" {
			v.Metadata = json.RawMessage(metadata)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// UserExists reports whether a user row exists.
func (r *PGRepository) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE user_id = $1::uuid)`, userID).Scan(&exists)
	return exists, err
}

// Insert stores a vehicle. A duplicate plate surfaces as a unique violation.
func (t *pgTx) Insert(ctx context.Context, v Vehicle) error {
	metadata := "{}"
	if len(v.Metadata) > 0 {
		metadata = string(v.Metadata)
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO vehicles (vehicle_id, owner_id, license_plate, brand, model, year, vin, metadata, created_at)
		VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, NULLIF($7, ''), $8::jsonb, $9)`,
		v.VehicleID, v.OwnerID, v.LicensePlate, v.Brand, v.Model, v.Year, v.VIN, metadata, v.CreatedAt)
	return err
}
