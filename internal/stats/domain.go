package stats

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	topMechanicsLimit   = 5
	recentActivityLimit = 10
)

// Counts are the shop-wide totals.
type Counts struct {
	TotalUsers      int64 `json:"total_users"`
	TotalVehicles   int64 `json:"total_vehicles"`
	TotalWorkOrders int64 `json:"total_work_orders"`
	PendingOrders   int64 `json:"pending_orders"`
	ActiveOrders    int64 `json:"active_orders"`
}

// MechanicRank is one row of the top mechanics table.
type MechanicRank struct {
	Username         string          `json:"username"`
	CompletedJobs    int64           `json:"completed_jobs"`
	TotalHoursWorked decimal.Decimal `json:"total_hours_worked"`
}

// Activity is a condensed audit fact.
type Activity struct {
	ActionType string    `json:"action_type"`
	TableName  string    `json:"table_name"`
	Timestamp  time.Time `json:"timestamp"`
	Username   string    `json:"username,omitempty"`
}

// Dashboard is the shop overview.
type Dashboard struct {
	Counts
	TopMechanics     []MechanicRank `json:"top_mechanics"`
	RecentActivities []Activity     `json:"recent_activities"`
}

// CustomerTotals summarises one customer's account.
type CustomerTotals struct {
	UserID          string          `json:"user_id"`
	Username        string          `json:"username"`
	TotalVehicles   int64           `json:"total_vehicles"`
	TotalWorkOrders int64           `json:"total_work_orders"`
	OpenWorkOrders  int64           `json:"open_work_orders"`
	UnpaidInvoices  int64           `json:"unpaid_invoices"`
	TotalSpent      decimal.Decimal `json:"total_spent"`
}

// VehicleSummary is the service history of one vehicle.
type VehicleSummary struct {
	VehicleID       string          `json:"vehicle_id"`
	LicensePlate    string          `json:"license_plate"`
	Brand           string          `json:"brand"`
	Model           string          `json:"model"`
	Year            *int            `json:"year,omitempty"`
	TotalServices   int64           `json:"total_services"`
	TotalSpent      decimal.Decimal `json:"total_spent"`
	LastServiceDate *time.Time      `json:"last_service_date,omitempty"`
}

// CustomerDashboard combines account totals and vehicles.
type CustomerDashboard struct {
	CustomerTotals
	Vehicles []VehicleSummary `json:"vehicles"`
}

// MechanicPerformance summarises a mechanic's completed work.
type MechanicPerformance struct {
	UserID            string          `json:"user_id"`
	Username          string          `json:"username"`
	CompletedJobs     int64           `json:"completed_jobs"`
	TotalHoursWorked  decimal.Decimal `json:"total_hours_worked"`
	AvgCompletionDays *float64        `json:"avg_completion_days,omitempty"`
}

// Workload counts a mechanic's open assignments by state.
type Workload struct {
	Queued       int64 `json:"queued"`
	InProgress   int64 `json:"in_progress"`
	WaitingParts int64 `json:"waiting_parts"`
}

// Open is the number of assignments not yet finished.
func (w Workload) Open() int64 {
	return w.Queued + w.InProgress + w.WaitingParts
}

// MechanicDashboard combines performance and workload.
type MechanicDashboard struct {
	MechanicPerformance
	Workload Workload `json:"workload"`
}
