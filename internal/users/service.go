package users

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/autoservis/autoservis/internal/audit"
	"github.com/autoservis/autoservis/internal/rbac"
	"github.com/autoservis/autoservis/internal/shared"
)

const (
	usersTable     = "users"
	userRolesTable = "user_roles"
)

// Service handles user business logic.
type Service struct {
	repo     Repository
	recorder *audit.Recorder
	hashCost int
	clock    func() time.Time
}

// NewService builds Service instance. A zero hashCost uses bcrypt.DefaultCost.
func NewService(repo Repository, recorder *audit.Recorder, hashCost int) *Service {
	if hashCost == 0 {
		hashCost = bcrypt.DefaultCost
	}
	return &Service{repo: repo, recorder: recorder, hashCost: hashCost, clock: time.Now}
}

func requireManage(p shared.Principal) error {
	if !rbac.Allowed(p.Roles, rbac.OpUsersManage) {
		return shared.Forbidden("only the owner can manage users")
	}
	return nil
}

// List returns all users with their roles.
func (s *Service) List(ctx context.Context, requester shared.Principal) ([]User, error) {
	if err := requireManage(requester); err != nil {
		return nil, err
	}
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

// Create registers a new account and, when given, its first role.
func (s *Service) Create(ctx context.Context, in CreateInput, requester shared.Principal) (*User, error) {
	if err := requireManage(requester); err != nil {
		return nil, err
	}
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Status == "" {
		in.Status = shared.UserActive
	}
	if !in.Status.IsValid() {
		return nil, shared.Invalid("unknown status " + string(in.Status))
	}
	if in.RoleName != "" && !in.RoleName.IsValid() {
		return nil, shared.Invalid("unknown role " + string(in.RoleName))
	}
	if len(in.Metadata) > 0 && !json.Valid(in.Metadata) {
		return nil, shared.Invalid("metadata must be a JSON object")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, shared.Invalid("password too long")
		}
		return nil, err
	}
	user := User{
		ID:        shared.NewID(),
		Username:  in.Username,
		Email:     in.Email,
		Phone:     in.Phone,
		Status:    in.Status,
		Metadata:  in.Metadata,
		Roles:     []shared.RoleName{},
		CreatedAt: s.clock().UTC(),
	}
	if in.RoleName != "" {
		user.Roles = append(user.Roles, in.RoleName)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.Insert(ctx, user, string(hash)); err != nil {
			return err
		}
		if in.RoleName != "" {
			if _, err := tx.AddRole(ctx, RoleAssignment{UserID: user.ID, RoleName: in.RoleName, AssignedBy: requester.UserID}); err != nil {
				return err
			}
		}
		_, err := s.recorder.Record(ctx, tx, audit.Entry{
			Table:    usersTable,
			Action:   audit.ActionInsert,
			RecordID: user.ID,
			New:      user,
			Actor:    requester,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Update edits the contact fields of a user. Users may edit themselves;
// editing others requires users.manage. Status changes are applied only for
// holders of users.set_status and silently ignored otherwise.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput, requester shared.Principal) (*User, error) {
	id, err := shared.NormalizeID(id)
	if err != nil {
		return nil, err
	}
	if !requester.Is(id) && !rbac.Allowed(requester.Roles, rbac.OpUsersManage) {
		return nil, shared.Forbidden("you can only edit your own account")
	}
	if in.Status != nil && !in.Status.IsValid() {
		return nil, shared.Invalid("unknown status " + string(*in.Status))
	}
	if len(in.Metadata) > 0 && !json.Valid(in.Metadata) {
		return nil, shared.Invalid("metadata must be a JSON object")
	}
	var result *User
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		next := *current
		if in.Email != nil {
			next.Email = strings.TrimSpace(*in.Email)
		}
		if in.Phone != nil {
			next.Phone = strings.TrimSpace(*in.Phone)
		}
		if len(in.Metadata) > 0 {
			next.Metadata = in.Metadata
		}
		if in.Status != nil && rbac.Allowed(requester.Roles, rbac.OpUsersSetStatus) {
			next.Status = *in.Status
		}
		result = &next
		if sameContact(*current, next) {
			return nil
		}
		if err := tx.Update(ctx, next); err != nil {
			return err
		}
		_, err = s.recorder.Record(ctx, tx, audit.Entry{
			Table:    usersTable,
			Action:   audit.ActionUpdate,
			RecordID: id,
			Old:      current,
			New:      next,
			Actor:    requester,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func sameContact(a, b User) bool {
	return a.Email == b.Email && a.Phone == b.Phone && a.Status == b.Status &&
		bytes.Equal(a.Metadata, b.Metadata)
}

// AssignRole grants role to the user. Granting a held role is a no-op.
func (s *Service) AssignRole(ctx context.Context, userID string, role shared.RoleName, requester shared.Principal) error {
	return s.changeRole(ctx, userID, role, requester, true)
}

// RemoveRole withdraws role from the user.
func (s *Service) RemoveRole(ctx context.Context, userID string, role shared.RoleName, requester shared.Principal) error {
	return s.changeRole(ctx, userID, role, requester, false)
}

func (s *Service) changeRole(ctx context.Context, userID string, role shared.RoleName, requester shared.Principal, grant bool) error {
	if err := requireManage(requester); err != nil {
		return err
	}
	userID, err := shared.NormalizeID(userID)
	if err != nil {
		return err
	}
	role = shared.RoleName(strings.ToLower(strings.TrimSpace(string(role))))
	if !role.IsValid() {
		return shared.Invalid("unknown role " + string(role))
	}
	assignment := RoleAssignment{UserID: userID, RoleName: role, AssignedBy: requester.UserID}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.Lock(ctx, userID); err != nil {
			return err
		}
		entry := audit.Entry{Table: userRolesTable, RecordID: userID, Actor: requester}
		if grant {
			changed, err := tx.AddRole(ctx, assignment)
			if err != nil || !changed {
				return err
			}
			entry.Action, entry.New = audit.ActionInsert, assignment
		} else {
			changed, err := tx.RemoveRole(ctx, userID, role)
			if err != nil {
				return err
			}
			if !changed {
				return shared.ErrNotFound
			}
			entry.Action, entry.Old = audit.ActionDelete, assignment
		}
		_, err := s.recorder.Record(ctx, tx, entry)
		return err
	})
}

// Mechanics lists active users who can be assigned to work orders.
func (s *Service) Mechanics(ctx context.Context) ([]Contact, error) {
	return s.contacts(ctx, rbac.OverrideRoles(rbac.OpAssignableAsMechanic))
}

// Customers lists active customers. Customer-only principals may not browse
// other customers.
func (s *Service) Customers(ctx context.Context, requester shared.Principal) ([]Contact, error) {
	if requester.Roles.Only(shared.RoleCustomer) {
		return nil, shared.Forbidden("customers cannot list other customers")
	}
	return s.contacts(ctx, []shared.RoleName{shared.RoleCustomer})
}

func (s *Service) contacts(ctx context.Context, roles []shared.RoleName) ([]Contact, error) {
	out, err := s.repo.ListActiveWithRoles(ctx, roles)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Contact{}
	}
	return out, nil
}
