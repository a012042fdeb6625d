package rbac

import "github.com/autoservis/autoservis/internal/shared"

// Operation names a check that is decided by fixed role membership instead of
// the editable permission table.
type Operation string

// Overridden operations.
const (
	OpSessionRevokeAny     Operation = "session.revoke_any"
	OpSessionListAll       Operation = "session.list_all"
	OpPermissionsViewAny   Operation = "permissions.view_any"
	OpUsersManage          Operation = "users.manage"
	OpUsersSetStatus       Operation = "users.set_status"
	OpWorkOrderSetStatus   Operation = "work_order.set_status"
	OpWorkOrderAssign      Operation = "work_order.assign"
	OpWorkOrderAddLog      Operation = "work_order.add_log"
	OpWorkOrderViewAll     Operation = "work_order.view_all"
	OpInvoiceMarkPaid      Operation = "invoice.mark_paid"
	OpInvoiceViewAll       Operation = "invoice.view_all"
	OpVehicleViewAll       Operation = "vehicle.view_all"
	OpVehicleCreateForAny  Operation = "vehicle.create_for_other"
	OpAuditView            Operation = "audit.view"
	OpStatsRecentActivity  Operation = "stats.recent_activity"
	OpStatsCustomerView    Operation = "stats.customer_dashboard"
	OpStatsMechanicView    Operation = "stats.mechanic_dashboard"
	OpAssignableAsMechanic Operation = "work_order.assignable"
)

var overrides = map[Operation][]shared.RoleName{
	OpSessionRevokeAny:     {shared.RoleOwner},
	OpSessionListAll:       {shared.RoleOwner},
	OpPermissionsViewAny:   {shared.RoleOwner},
	OpUsersManage:          {shared.RoleOwner},
	OpUsersSetStatus:       {shared.RoleOwner},
	OpWorkOrderSetStatus:   {shared.RoleOwner, shared.RoleReceptionist, shared.RoleHeadMechanic},
	OpWorkOrderAssign:      {shared.RoleOwner, shared.RoleReceptionist, shared.RoleHeadMechanic},
	OpWorkOrderAddLog:      {shared.RoleOwner, shared.RoleReceptionist, shared.RoleHeadMechanic},
	OpWorkOrderViewAll:     {shared.RoleOwner, shared.RoleReceptionist, shared.RoleHeadMechanic},
	OpInvoiceMarkPaid:      {shared.RoleOwner, shared.RoleAccountant},
	OpInvoiceViewAll:       {shared.RoleOwner, shared.RoleAccountant, shared.RoleReceptionist},
	OpVehicleViewAll:       {shared.RoleOwner, shared.RoleReceptionist, shared.RoleMechanic, shared.RoleHeadMechanic},
	OpVehicleCreateForAny:  {shared.RoleOwner, shared.RoleReceptionist},
	OpAuditView:            {shared.RoleOwner, shared.RoleHeadMechanic},
	OpStatsRecentActivity:  {shared.RoleOwner, shared.RoleHeadMechanic},
	OpStatsCustomerView:    {shared.RoleCustomer},
	OpStatsMechanicView:    {shared.RoleMechanic, shared.RoleHeadMechanic},
	OpAssignableAsMechanic: {shared.RoleMechanic, shared.RoleHeadMechanic, shared.RoleOwner},
}

// Allowed reports whether roles satisfy the override entry for op. Unknown
// operations are denied.
func Allowed(roles shared.RoleSet, op Operation) bool {
	return roles.HasAny(overrides[op]...)
}

// OverrideRoles returns the roles listed for op.
func OverrideRoles(op Operation) []shared.RoleName {
	roles := overrides[op]
	out := make([]shared.RoleName, len(roles))
	copy(out, roles)
	return out
}
