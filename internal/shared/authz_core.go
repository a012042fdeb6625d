package shared

// Resources guarded by the permission table.
const (
	ResourceUsers       = "users"
	ResourceRoles       = "roles"
	ResourceVehicles    = "vehicles"
	ResourceWorkOrders  = "work_orders"
	ResourceInvoices    = "invoices"
	ResourceSessions    = "sessions"
	ResourceAuditLog    = "audit_log"
	ResourceStats       = "stats"
	ResourcePermissions = "permissions"
)

// Actions on resources.
const (
	ActionView   = "view"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionManage = "manage"
	ActionIssue  = "issue"
	ActionCancel = "cancel"
)
