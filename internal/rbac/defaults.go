package rbac

import "github.com/autoservis/autoservis/internal/shared"

func grantsFor(role shared.RoleName, caps ...Capability) []Grant {
	out := make([]Grant, 0, len(caps))
	for _, c := range caps {
		out = append(out, Grant{Role: role, Capability: c})
	}
	return out
}

func capOf(resource, action string) Capability {
	return Capability{Resource: resource, Action: action}
}

// DefaultGrants is the seeded permission table.
func DefaultGrants() []Grant {
	var grants []Grant
	grants = append(grants, grantsFor(shared.RoleOwner,
		capOf(shared.ResourceUsers, shared.ActionView),
		capOf(shared.ResourceUsers, shared.ActionManage),
		capOf(shared.ResourceRoles, shared.ActionView),
		capOf(shared.ResourceRoles, shared.ActionManage),
		capOf(shared.ResourcePermissions, shared.ActionView),
		capOf(shared.ResourceVehicles, shared.ActionView),
		capOf(shared.ResourceVehicles, shared.ActionCreate),
		capOf(shared.ResourceWorkOrders, shared.ActionView),
		capOf(shared.ResourceWorkOrders, shared.ActionCreate),
		capOf(shared.ResourceWorkOrders, shared.ActionUpdate),
		capOf(shared.ResourceInvoices, shared.ActionView),
		capOf(shared.ResourceInvoices, shared.ActionCreate),
		capOf(shared.ResourceInvoices, shared.ActionIssue),
		capOf(shared.ResourceInvoices, shared.ActionCancel),
		capOf(shared.ResourceSessions, shared.ActionView),
		capOf(shared.ResourceAuditLog, shared.ActionView),
		capOf(shared.ResourceStats, shared.ActionView),
	)...)
	grants = append(grants, grantsFor(shared.RoleHeadMechanic,
		capOf(shared.ResourceRoles, shared.ActionView),
		capOf(shared.ResourceVehicles, shared.ActionView),
		capOf(shared.ResourceWorkOrders, shared.ActionView),
		capOf(shared.ResourceWorkOrders, shared.ActionCreate),
		capOf(shared.ResourceWorkOrders, shared.ActionUpdate),
		capOf(shared.ResourceSessions, shared.ActionView),
		capOf(shared.ResourceAuditLog, shared.ActionView),
		capOf(shared.ResourceStats, shared.ActionView),
	)...)
	grants = append(grants, grantsFor(shared.RoleMechanic,
		capOf(shared.ResourceRoles, shared.ActionView),
		capOf(shared.ResourceVehicles, shared.ActionView),
		capOf(shared.ResourceWorkOrders, shared.ActionView),
		capOf(shared.ResourceWorkOrders, shared.ActionUpdate),
		capOf(shared.ResourceSessions, shared.ActionView),
		capOf(shared.ResourceStats, shared.ActionView),
	)...)
	grants = append(grants, grantsFor(shared.RoleReceptionist,
		capOf(shared.ResourceRoles, shared.ActionView),
		capOf(shared.ResourceVehicles, shared.ActionView),
		capOf(shared.ResourceVehicles, shared.ActionCreate),
		capOf(shared.ResourceWorkOrders, shared.ActionView),
		capOf(shared.ResourceWorkOrders, shared.ActionCreate),
		capOf(shared.ResourceWorkOrders, shared.ActionUpdate),
		capOf(shared.ResourceInvoices, shared.ActionView),
		capOf(shared.ResourceInvoices, shared.ActionCreate),
		capOf(shared.ResourceSessions, shared.ActionView),
		capOf(shared.ResourceStats, shared.ActionView),
	)...)
	grants = append(grants, grantsFor(shared.RoleAccountant,
		capOf(shared.ResourceRoles, shared.ActionView),
		capOf(shared.ResourceInvoices, shared.ActionView),
		capOf(shared.ResourceInvoices, shared.ActionCreate),
		capOf(shared.ResourceInvoices, shared.ActionIssue),
		capOf(shared.ResourceInvoices, shared.ActionCancel),
		capOf(shared.ResourceSessions, shared.ActionView),
		capOf(shared.ResourceStats, shared.ActionView),
	)...)
	grants = append(grants, grantsFor(shared.RoleCustomer,
		capOf(shared.ResourceRoles, shared.ActionView),
		capOf(shared.ResourceVehicles, shared.ActionView),
		capOf(shared.ResourceVehicles, shared.ActionCreate),
		capOf(shared.ResourceWorkOrders, shared.ActionView),
		capOf(shared.ResourceInvoices, shared.ActionView),
		capOf(shared.ResourceSessions, shared.ActionView),
		capOf(shared.ResourceStats, shared.ActionView),
	)...)
	return grants
}
