package users

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autoservis/autoservis/internal/audit"
	"github.com/autoservis/autoservis/internal/platform/db"
	"github.com/autoservis/autoservis/internal/shared"
)

// Repository defines data access methods for users.
type Repository interface {
	List(ctx context.Context) ([]User, error)
	Get(ctx context.Context, id string) (*User, error)
	ListActiveWithRoles(ctx context.Context, roles []shared.RoleName) ([]Contact, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional user writes.
type TxRepository interface {
	audit.Writer
	Insert(ctx context.Context, u User, passwordHash string) error
	Lock(ctx context.Context, id string) (*User, error)
	Update(ctx context.Context, u User) error
	AddRole(ctx context.Context, a RoleAssignment) (bool, error)
	RemoveRole(ctx context.Context, userID string, role shared.RoleName) (bool, error)
}

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
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

const userSelect = `
	SELECT u.user_id::text, u.username, u.email, COALESCE(u.phone, ''), u.status,
	       COALESCE(u.metadata::text, ''), u.created_at,
	       COALESCE(array_agg(r.role_name ORDER BY r.priority) FILTER (WHERE r.role_name IS NOT NULL), '{}'),
	       COALESCE(MIN(r.priority), 0),
	       (SELECT MAX(s.created_at) FROM sessions s WHERE s.user_id = u.user_id)
	FROM users u
	LEFT JOIN user_roles ur ON ur.user_id = u.user_id
	LEFT JOIN roles r ON r.role_id = ur.role_id`

func scanUser(row pgx.Row) (*User, error) {
	var (
		u        User
		status   string
		metadata string
		roles    []string
		last     *time.Time
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Phone, &status, &metadata, &u.CreatedAt, &roles, &u.HighestPriority, &last); err != nil {
		return nil, err
	}
	u.Status = shared.UserStatus(status)
	if metadata != "" {
		u.Metadata = json.RawMessage(metadata)
	}
	u.Roles = make([]shared.RoleName, 0, len(roles))
	for _, name := range roles {
		u.Roles = append(u.Roles, shared.RoleName(name))
	}
	u.LastLogin = last
	return &u, nil
}

// List returns all users ordered by their highest priority role, then name.
func (r *PGRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, userSelect+`
		GROUP BY u.user_id
		ORDER BY COALESCE(MIN(r.priority), 99), u.username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// Get fetches a single user with roles.
func (r *PGRepository) Get(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, userSelect+` WHERE u.user_id = $1::uuid GROUP BY u.user_id`, id))
	if err != nil {
		return nil, db.NotFound(err)
	}
	return u, nil
}

// ListActiveWithRoles returns active users holding any of roles.
func (r *PGRepository) ListActiveWithRoles(ctx context.Context, roles []shared.RoleName) ([]Contact, error) {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, string(role))
	}
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT u.user_id::text, u.username, u.email
		FROM users u
		JOIN user_roles ur ON ur.user_id = u.user_id
		JOIN roles r ON r.role_id = ur.role_id
		WHERE r.role_name = ANY($1) AND u.status = 'active'
		ORDER BY u.username`, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.UserID, &c.Username, &c.Email); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Insert creates the account row.
func (t *pgTx) Insert(ctx context.Context, u User, passwordHash string) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO users (user_id, username, email, password_hash, phone, status, metadata, created_at)
		VALUES ($1::uuid, $2, $3, $4, NULLIF($5, ''), $6, $7::jsonb, $8)`,
		u.ID, u.Username, u.Email, passwordHash, u.Phone, string(u.Status), metadataArg(u.Metadata), u.CreatedAt)
	return err
}

// Lock loads the user row FOR UPDATE.
func (t *pgTx) Lock(ctx context.Context, id string) (*User, error) {
	if _, err := t.tx.Exec(ctx, `SELECT 1 FROM users WHERE user_id = $1::uuid FOR UPDATE`, id); err != nil {
		return nil, err
	}
	u, err := scanUser(t.tx.QueryRow(ctx, userSelect+` WHERE u.user_id = $1::uuid GROUP BY u.user_id`, id))
	if err != nil {
		return nil, db.NotFound(err)
	}
	return u, nil
}

// Update writes the editable columns.
func (t *pgTx) Update(ctx context.Context, u User) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE users SET email = $2, phone = NULLIF($3, ''), status = $4, metadata = $5::jsonb
		WHERE user_id = $1::uuid`,
		u.ID, u.Email, u.Phone, string(u.Status), metadataArg(u.Metadata))
	return err
}

// AddRole links a role to the user. It reports false when already linked.
func (t *pgTx) AddRole(ctx context.Context, a RoleAssignment) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id, assigned_by)
		SELECT $1::uuid, role_id, NULLIF($3, '')::uuid FROM roles WHERE role_name = $2
		ON CONFLICT (user_id, role_id) DO NOTHING`,
		a.UserID, string(a.RoleName), a.AssignedBy)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RemoveRole unlinks a role. It reports false when the user did not hold it.
func (t *pgTx) RemoveRole(ctx context.Context, userID string, role shared.RoleName) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		DELETE FROM user_roles
		WHERE user_id = $1::uuid AND role_id = (SELECT role_id FROM roles WHERE role_name = $2)`,
		userID, string(role))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func metadataArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
