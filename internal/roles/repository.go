package roles

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autoservis/autoservis/internal/audit"
	"github.com/autoservis/autoservis/internal/platform/db"
	"github.com/autoservis/autoservis/internal/rbac"
	"github.com/autoservis/autoservis/internal/shared"
)

// Repository defines data access methods for roles.
type Repository interface {
	List(ctx context.Context) ([]Role, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional grant changes.
type TxRepository interface {
	audit.Writer
	LockRole(ctx context.Context, name shared.RoleName) (*Role, error)
	Capabilities(ctx context.Context, name shared.RoleName) ([]rbac.Capability, error)
	ReplaceCapabilities(ctx context.Context, role Role, caps []rbac.Capability) error
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

// List returns all roles ordered by priority.
func (r *PGRepository) List(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT role_id, role_name, COALESCE(description, ''), priority FROM roles ORDER BY priority, role_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var (
			role Role
			name string
		)
		if err := rows.Scan(&role.RoleID, &name, &role.Description, &role.Priority); err != nil {
			return nil, err
		}
		role.RoleName = shared.RoleName(name)
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// LockRole loads the role row FOR UPDATE.
func (t *pgTx) LockRole(ctx context.Context, name shared.RoleName) (*Role, error) {
	var role Role
	err := t.tx.QueryRow(ctx, `
		SELECT role_id, COALESCE(description, ''), priority FROM roles WHERE role_name = $1 FOR UPDATE`,
		string(name)).Scan(&role.RoleID, &role.Description, &role.Priority)
	if err != nil {
		return nil, db.NotFound(err)
	}
	role.RoleName = name
	return &role, nil
}

// Capabilities returns the grants currently held by a role.
func (t *pgTx) Capabilities(ctx context.Context, name shared.RoleName) ([]rbac.Capability, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT p.resource_type, p.action
		FROM role_permissions rp
		JOIN roles r ON r.role_id = rp.role_id
		JOIN permissions p ON p.permission_id = rp.permission_id
		WHERE r.role_name = $1
		ORDER BY p.resource_type, p.action`, string(name))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var caps []rbac.Capability
	for rows.Next() {
		var c rbac.Capability
		if err := rows.Scan(&c.Resource, &c.Action); err != nil {
			return nil, err
		}
		caps = append(caps, c)
	}
	return caps, rows.Err()
}

// ReplaceCapabilities swaps the role's grants for caps, creating missing
// permission rows on the way.
func (t *pgTx) ReplaceCapabilities(ctx context.Context, role Role, caps []rbac.Capability) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, role.RoleID); err != nil {
		return err
	}
	for _, c := range caps {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO permissions (permission_name, resource_type, action)
			VALUES ($1, $2, $3)
			ON CONFLICT (resource_type, action) DO NOTHING`, c.Name(), c.Resource, c.Action); err != nil {
			return err
		}
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO role_permissions (role_id, permission_id)
			SELECT $1, permission_id FROM permissions WHERE resource_type = $2 AND action = $3`,
			role.RoleID, c.Resource, c.Action); err != nil {
			return err
		}
	}
	return nil
}
