package users

import (
	"encoding/json"
	"time"

	"github.com/autoservis/autoservis/internal/shared"
)

// User represents a user account for management. The password hash never
// leaves the repository.
type User struct {
	ID              string            `json:"user_id"`
	Username        string            `json:"username"`
	Email           string            `json:"email"`
	Phone           string            `json:"phone,omitempty"`
	Status          shared.UserStatus `json:"status"`
	Metadata        json.RawMessage   `json:"metadata,omitempty"`
	Roles           []shared.RoleName `json:"roles"`
	HighestPriority int               `json:"highest_priority,omitempty"`
	LastLogin       *time.Time        `json:"last_login,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// HasRole reports whether the user currently holds role.
func (u User) HasRole(role shared.RoleName) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Contact is the short form used by mechanic and customer pickers.
type Contact struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// CreateInput carries a new account.
type CreateInput struct {
	Username string            `json:"username" validate:"required,min=3,max=50"`
	Email    string            `json:"email" validate:"required,email"`
	Password string            `json:"password" validate:"required,min=6"`
	Phone    string            `json:"phone" validate:"omitempty,max=20"`
	Status   shared.UserStatus `json:"status" validate:"omitempty,oneof=active inactive pending banned"`
	Metadata json.RawMessage   `json:"metadata"`
	RoleName shared.RoleName   `json:"role_name"`
}

// UpdateInput holds the editable fields. Nil pointers leave a field as is.
type UpdateInput struct {
	Email    *string            `json:"email" validate:"omitempty,email"`
	Phone    *string            `json:"phone" validate:"omitempty,max=20"`
	Metadata json.RawMessage    `json:"metadata"`
	Status   *shared.UserStatus `json:"status"`
}

// RoleAssignment is the audited value of a user_roles row.
type RoleAssignment struct {
	UserID     string          `json:"user_id"`
	RoleName   shared.RoleName `json:"role_name"`
	AssignedBy string          `json:"assigned_by,omitempty"`
}
