package roles

import (
	"github.com/autoservis/autoservis/internal/rbac"
	"github.com/autoservis/autoservis/internal/shared"
)

// Role is a shared role definition. Priority only orders listings.
type Role struct {
	RoleID      int             `json:"role_id"`
	RoleName    shared.RoleName `json:"role_name"`
	Description string          `json:"description"`
	Priority    int             `json:"priority"`
}

// Grants is the audited value of a role's permission set.
type Grants struct {
	RoleName     shared.RoleName   `json:"role_name"`
	Capabilities []rbac.Capability `json:"capabilities"`
}
