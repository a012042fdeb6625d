package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/autoservis/autoservis/internal/rbac"
	"github.com/autoservis/autoservis/internal/shared"
)

// Service exposes the audit trail to authorised readers.
type Service struct {
	repo Reader
}

// NewService builds the audit read service.
func NewService(repo Reader) *Service {
	return &Service{repo: repo}
}

// List returns facts newest first for holders of audit.view.
func (s *Service) List(ctx context.Context, requester shared.Principal, filters Filters) ([]Fact, error) {
	if !rbac.Allowed(requester.Roles, rbac.OpAuditView) {
		return nil, shared.Forbidden("audit log is restricted to owners and head mechanics")
	}
	filters.TableName = strings.TrimSpace(filters.TableName)
	filters.ActionType = Action(strings.ToUpper(strings.TrimSpace(string(filters.ActionType))))
	if filters.ActionType != "" && !filters.ActionType.IsValid() {
		return nil, shared.Invalid(fmt.Sprintf("unknown action_type %q", filters.ActionType))
	}
	switch {
	case filters.Limit <= 0:
		filters.Limit = DefaultLimit
	case filters.Limit > MaxLimit:
		filters.Limit = MaxLimit
	}
	facts, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, err
	}
	if facts == nil {
		facts = []Fact{}
	}
	return facts, nil
}
