package rbac

import (
	"sort"

	"github.com/autoservis/autoservis/internal/shared"
)

// Capability is a (resource, action) pair granted to a role.
type Capability struct {
	Resource string `json:"resource_type"`
	Action   string `json:"action"`
}

// Name renders the capability as resource.action.
func (c Capability) Name() string {
	return c.Resource + "." + c.Action
}

// Grant ties a capability to a role.
type Grant struct {
	Role shared.RoleName `json:"role_name"`
	Capability
}

// Permission is a capability as reported to clients.
type Permission struct {
	PermissionName string `json:"permission_name"`
	ResourceType   string `json:"resource_type"`
	Action         string `json:"action"`
}

// Table maps each role to its granted capabilities.
type Table map[shared.RoleName][]Capability

// NewTable builds a Table from grants, dropping duplicates.
func NewTable(grants []Grant) Table {
	seen := make(map[Grant]struct{}, len(grants))
	table := make(Table)
	for _, g := range grants {
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		table[g.Role] = append(table[g.Role], g.Capability)
	}
	return table
}

// Allows reports whether any role in roles holds the capability. The result
// is monotonic in roles: adding a role never removes a capability.
func (t Table) Allows(roles shared.RoleSet, resource, action string) bool {
	for role := range roles {
		for _, c := range t[role] {
			if c.Resource == resource && c.Action == action {
				return true
			}
		}
	}
	return false
}

// Union returns the deduplicated capabilities of roles, sorted by name.
func (t Table) Union(roles shared.RoleSet) []Permission {
	set := make(map[Capability]struct{})
	for role := range roles {
		for _, c := range t[role] {
			set[c] = struct{}{}
		}
	}
	out := make([]Permission, 0, len(set))
	for c := range set {
		out = append(out, Permission{PermissionName: c.Name(), ResourceType: c.Resource, Action: c.Action})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PermissionName < out[j].PermissionName })
	return out
}
