package rbac

import (
	"context"
	"fmt"

	"github.com/autoservis/autoservis/internal/platform/cache"
	"github.com/autoservis/autoservis/internal/shared"
)

// Service resolves capabilities against the cached permission table.
type Service struct {
	repo  Repository
	cache *cache.Versioned
}

// NewService constructs a Service. A nil cache loads the table on every call.
func NewService(repo Repository, tableCache *cache.Versioned) *Service {
	return &Service{repo: repo, cache: tableCache}
}

// Table returns the current permission table.
func (s *Service) Table(ctx context.Context) (Table, error) {
	key, err := s.cache.BuildKey(ctx, "table")
	if err != nil {
		return nil, fmt.Errorf("rbac: cache key: %w", err)
	}
	var table Table
	err = s.cache.FetchJSON(ctx, key, &table, func(ctx context.Context) (any, error) {
		grants, err := s.repo.LoadGrants(ctx)
		if err != nil {
			return nil, err
		}
		return NewTable(grants), nil
	})
	if err != nil {
		return nil, fmt.Errorf("rbac: load table: %w", err)
	}
	return table, nil
}

// Authorize reports whether roles hold (resource, action).
func (s *Service) Authorize(ctx context.Context, roles shared.RoleSet, resource, action string) (bool, error) {
	table, err := s.Table(ctx)
	if err != nil {
		return false, err
	}
	return table.Allows(roles, resource, action), nil
}

// Require returns ErrForbidden when the principal lacks (resource, action).
func (s *Service) Require(ctx context.Context, p shared.Principal, resource, action string) error {
	ok, err := s.Authorize(ctx, p.Roles, resource, action)
	if err != nil {
		return err
	}
	if !ok {
		return shared.Forbidden(fmt.Sprintf("missing permission %s.%s", resource, action))
	}
	return nil
}

// ListPermissions returns the effective permissions of userID. Only the user
// themself or a holder of permissions.view_any may ask.
func (s *Service) ListPermissions(ctx context.Context, userID string, requester shared.Principal) ([]Permission, error) {
	if !requester.Is(userID) && !Allowed(requester.Roles, OpPermissionsViewAny) {
		return nil, shared.Forbidden("cannot view permissions of another user")
	}
	roles, err := s.repo.UserRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	table, err := s.Table(ctx)
	if err != nil {
		return nil, err
	}
	return table.Union(roles), nil
}

// Invalidate drops cached tables after a grant change.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// Require on a static table, used where no store is needed.
func (t Table) Require(_ context.Context, p shared.Principal, resource, action string) error {
	if !t.Allows(p.Roles, resource, action) {
		return shared.Forbidden(fmt.Sprintf("missing permission %s.%s", resource, action))
	}
	return nil
}
