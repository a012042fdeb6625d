package shared

import (
	"sort"
	"strings"
)

// RoleName identifies one of the shared role definitions.
type RoleName string

// Known roles.
const (
	RoleOwner        RoleName = "owner"
	RoleHeadMechanic RoleName = "head_mechanic"
	RoleMechanic     RoleName = "mechanic"
	RoleReceptionist RoleName = "receptionist"
	RoleAccountant   RoleName = "accountant"
	RoleCustomer     RoleName = "customer"
)

// KnownRoles lists every role in priority order.
func KnownRoles() []RoleName {
	return []RoleName{RoleOwner, RoleHeadMechanic, RoleMechanic, RoleReceptionist, RoleAccountant, RoleCustomer}
}

// IsValid reports whether the role is a known definition.
func (r RoleName) IsValid() bool {
	for _, known := range KnownRoles() {
		if r == known {
			return true
		}
	}
	return false
}

// UserStatus is the account state of a principal.
type UserStatus string

// Account states.
const (
	UserActive   UserStatus = "active"
	UserInactive UserStatus = "inactive"
	UserPending  UserStatus = "pending"
	UserBanned   UserStatus = "banned"
)

// IsValid reports whether the status is known.
func (s UserStatus) IsValid() bool {
	switch s {
	case UserActive, UserInactive, UserPending, UserBanned:
		return true
	}
	return false
}

// RoleSet is a deduplicated set of roles.
type RoleSet map[RoleName]struct{}

// NewRoleSet builds a RoleSet from names, dropping blanks.
func NewRoleSet(names ...RoleName) RoleSet {
	set := make(RoleSet, len(names))
	for _, n := range names {
		n = RoleName(strings.TrimSpace(strings.ToLower(string(n))))
		if n == "" {
			continue
		}
		set[n] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s RoleSet) Has(role RoleName) bool {
	_, ok := s[role]
	return ok
}

// HasAny reports whether any of roles is in the set.
func (s RoleSet) HasAny(roles ...RoleName) bool {
	for _, r := range roles {
		if s.Has(r) {
			return true
		}
	}
	return false
}

// Only reports whether the set contains exactly the given role and nothing else.
func (s RoleSet) Only(role RoleName) bool {
	return len(s) == 1 && s.Has(role)
}

// Names returns the roles sorted alphabetically.
func (s RoleSet) Names() []RoleName {
	out := make([]RoleName, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Principal describes the authenticated actor of a request.
type Principal struct {
	UserID    string
	Username  string
	Status    UserStatus
	Roles     RoleSet
	SessionID string
	IP        string
}

// Is reports whether the principal refers to the given user id.
func (p Principal) Is(userID string) bool {
	return p.UserID != "" && SameID(p.UserID, userID)
}
