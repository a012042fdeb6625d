package workorders

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/autoservis/autoservis/internal/shared"
)

// Status is the lifecycle state of a work order.
type Status string

// Work order states. Completed and cancelled are terminal.
const (
	StatusPending      Status = "pending"
	StatusApproved     Status = "approved"
	StatusInProgress   Status = "in_progress"
	StatusWaitingParts Status = "waiting_parts"
	StatusCompleted    Status = "completed"
	StatusCancelled    Status = "cancelled"
)

// IsValid reports whether s is a known state.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusInProgress, StatusWaitingParts, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no transition may leave s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Policy selects which status edges are accepted.
type Policy string

// Edge policies.
const (
	// PolicyPermissive accepts any edge that does not leave a terminal state.
	PolicyPermissive Policy = "permissive"
	// PolicyStrict accepts only the declared lifecycle graph.
	PolicyStrict Policy = "strict"
)

var strictEdges = map[Status][]Status{
	StatusPending:      {StatusApproved, StatusCancelled},
	StatusApproved:     {StatusInProgress, StatusWaitingParts, StatusCancelled},
	StatusInProgress:   {StatusCompleted, StatusWaitingParts, StatusCancelled},
	StatusWaitingParts: {StatusApproved, StatusInProgress, StatusCancelled},
}

// ParsePolicy reads a policy name. Empty selects permissive.
func ParsePolicy(name string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(name))) {
	case "", PolicyPermissive:
		return PolicyPermissive, nil
	case PolicyStrict:
		return PolicyStrict, nil
	}
	return "", fmt.Errorf("workorders: unknown transition policy %q", name)
}

// Check validates the edge from -> to. Callers treat from == to as a no-op
// before asking.
func (p Policy) Check(from, to Status) error {
	if !to.IsValid() {
		return shared.Invalid("unknown status " + string(to))
	}
	if from.IsTerminal() {
		return shared.Transition(string(from), string(to))
	}
	if p != PolicyStrict {
		return nil
	}
	for _, next := range strictEdges[from] {
		if next == to {
			return nil
		}
	}
	return shared.Transition(string(from), string(to))
}

// WorkOrder is a repair job on one vehicle. CustomerID is derived from the
// vehicle owner.
type WorkOrder struct {
	WorkOrderID    string              `json:"work_order_id"`
	VehicleID      string              `json:"vehicle_id"`
	CustomerID     string              `json:"customer_id"`
	CustomerName   string              `json:"customer_name,omitempty"`
	CustomerEmail  string              `json:"customer_email,omitempty"`
	LicensePlate   string              `json:"license_plate,omitempty"`
	Brand          string              `json:"brand,omitempty"`
	Model          string              `json:"model,omitempty"`
	Year           *int                `json:"year,omitempty"`
	MechanicID     string              `json:"mechanic_id,omitempty"`
	MechanicName   string              `json:"mechanic_name,omitempty"`
	Status         Status              `json:"status"`
	Description    string              `json:"description"`
	EstimatedCost  decimal.NullDecimal `json:"estimated_cost"`
	ActualCost     decimal.NullDecimal `json:"actual_cost"`
	CreatedBy      string              `json:"created_by,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	StartedAt      *time.Time          `json:"started_at,omitempty"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`
	HasInvoice     bool                `json:"has_invoice"`
	CompletionDays *float64            `json:"completion_days,omitempty"`
	Logs           []WorkLog           `json:"work_logs,omitempty"`
}

// state is the audited projection of a work order row.
type state struct {
	WorkOrderID   string              `json:"work_order_id"`
	VehicleID     string              `json:"vehicle_id"`
	MechanicID    string              `json:"mechanic_id,omitempty"`
	Status        Status              `json:"status"`
	Description   string              `json:"description"`
	EstimatedCost decimal.NullDecimal `json:"estimated_cost"`
	ActualCost    decimal.NullDecimal `json:"actual_cost"`
	StartedAt     *time.Time          `json:"started_at,omitempty"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty"`
}

func (w WorkOrder) state() state {
	return state{
		WorkOrderID:   w.WorkOrderID,
		VehicleID:     w.VehicleID,
		MechanicID:    w.MechanicID,
		Status:        w.Status,
		Description:   w.Description,
		EstimatedCost: w.EstimatedCost,
		ActualCost:    w.ActualCost,
		StartedAt:     w.StartedAt,
		CompletedAt:   w.CompletedAt,
	}
}

func (w *WorkOrder) fillCompletionDays() {
	if w.CompletedAt == nil {
		w.CompletionDays = nil
		return
	}
	days := w.CompletedAt.Sub(w.CreatedAt).Hours() / 24
	w.CompletionDays = &days
}

// WorkLog is one append-only note on a work order.
type WorkLog struct {
	LogID        int64               `json:"log_id"`
	WorkOrderID  string              `json:"work_order_id"`
	MechanicID   string              `json:"mechanic_id"`
	MechanicName string              `json:"mechanic_name,omitempty"`
	LogEntry     string              `json:"log_entry"`
	HoursWorked  decimal.NullDecimal `json:"hours_worked"`
	Timestamp    time.Time           `json:"timestamp"`
}

// CreateInput carries a new work order.
type CreateInput struct {
	VehicleID     string              `json:"vehicle_id" validate:"required"`
	MechanicID    string              `json:"assigned_mechanic_id"`
	Description   string              `json:"description" validate:"required"`
	EstimatedCost decimal.NullDecimal `json:"estimated_cost"`
	Status        Status              `json:"status"`
}

// StatusChange requests a transition. ActualCost, when given, is recorded
// with the transition.
type StatusChange struct {
	Status     Status              `json:"status" validate:"required"`
	ActualCost decimal.NullDecimal `json:"actual_cost"`
}

// LogInput carries a work log entry.
type LogInput struct {
	LogEntry    string              `json:"log_entry" validate:"required"`
	HoursWorked decimal.NullDecimal `json:"hours_worked"`
}

// ListFilter scopes a listing. All wins over the id filters; with no filter
// set the listing is empty.
type ListFilter struct {
	All        bool
	MechanicID string
	CustomerID string
}
