package rbac

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autoservis/autoservis/internal/shared"
)

// Repository loads the permission table and role memberships.
type Repository interface {
	LoadGrants(ctx context.Context) ([]Grant, error)
	UserRoles(ctx context.Context, userID string) (shared.RoleSet, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// LoadGrants returns every (role, resource, action) row.
func (r *PGRepository) LoadGrants(ctx context.Context) ([]Grant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.role_name, p.resource_type, p.action
		FROM role_permissions rp
		JOIN roles r ON r.role_id = rp.role_id
		JOIN permissions p ON p.permission_id = rp.permission_id
		ORDER BY r.role_name, p.resource_type, p.action`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []Grant
	for rows.Next() {
		var g Grant
		var role string
		if err := rows.Scan(&role, &g.Resource, &g.Action); err != nil {
			return nil, err
		}
		g.Role = shared.RoleName(role)
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// UserRoles returns the current role memberships of a user.
func (r *PGRepository) UserRoles(ctx context.Context, userID string) (shared.RoleSet, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.role_name
		FROM user_roles ur
		JOIN roles r ON r.role_id = ur.role_id
		WHERE ur.user_id = $1::uuid`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []shared.RoleName
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, shared.RoleName(name))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return shared.NewRoleSet(names...), nil
}
