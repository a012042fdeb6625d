package roles

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/autoservis/autoservis/internal/audit"
	"github.com/autoservis/autoservis/internal/rbac"
	"github.com/autoservis/autoservis/internal/shared"
)

const permissionsTable = "permissions"

// Invalidator drops cached permission tables.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Service handles role business logic.
type Service struct {
	repo        Repository
	recorder    *audit.Recorder
	invalidator Invalidator
	logger      *slog.Logger
}

// NewService builds Service instance.
func NewService(repo Repository, recorder *audit.Recorder, invalidator Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, recorder: recorder, invalidator: invalidator, logger: logger}
}

// List returns all roles ordered by priority.
func (s *Service) List(ctx context.Context) ([]Role, error) {
	roles, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if roles == nil {
		roles = []Role{}
	}
	return roles, nil
}

// SetPermissions replaces the grants of a role.
func (s *Service) SetPermissions(ctx context.Context, name shared.RoleName, caps []rbac.Capability, requester shared.Principal) (*Grants, error) {
	if !rbac.Allowed(requester.Roles, rbac.OpUsersManage) {
		return nil, shared.Forbidden("only the owner can change role permissions")
	}
	name = shared.RoleName(strings.ToLower(strings.TrimSpace(string(name))))
	if !name.IsValid() {
		return nil, shared.ErrNotFound
	}
	next, err := normalizeCapabilities(caps)
	if err != nil {
		return nil, err
	}
	result := &Grants{RoleName: name, Capabilities: next}
	changed := false
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.LockRole(ctx, name)
		if err != nil {
			return err
		}
		current, err := tx.Capabilities(ctx, name)
		if err != nil {
			return err
		}
		current, _ = normalizeCapabilities(current)
		if equalCapabilities(current, next) {
			return nil
		}
		if err := tx.ReplaceCapabilities(ctx, *role, next); err != nil {
			return err
		}
		changed = true
		_, err = s.recorder.Record(ctx, tx, audit.Entry{
			Table:    permissionsTable,
			Action:   audit.ActionUpdate,
			RecordID: string(name),
			Old:      Grants{RoleName: name, Capabilities: current},
			New:      result,
			Actor:    requester,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if changed && s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx); err != nil {
			// Cached tables expire on their own TTL.
			s.logger.Warn("permission cache invalidate", slog.Any("error", err))
		}
	}
	return result, nil
}

func normalizeCapabilities(caps []rbac.Capability) ([]rbac.Capability, error) {
	seen := make(map[rbac.Capability]struct{}, len(caps))
	out := make([]rbac.Capability, 0, len(caps))
	for _, c := range caps {
		c.Resource = strings.ToLower(strings.TrimSpace(c.Resource))
		c.Action = strings.ToLower(strings.TrimSpace(c.Action))
		if c.Resource == "" || c.Action == "" {
			return nil, shared.Invalid("resource_type and action are required")
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

func equalCapabilities(a, b []rbac.Capability) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
