package workorders

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/autoservis/autoservis/internal/audit"
	"github.com/autoservis/autoservis/internal/rbac"
	"github.com/autoservis/autoservis/internal/shared"
)

const (
	ordersTable = "work_orders"
	logsTable   = "work_log"
)

// Service enforces the work order lifecycle. Every accepted mutation locks
// the order row and writes one audit fact in the same transaction.
type Service struct {
	repo     Repository
	recorder *audit.Recorder
	policy   Policy
	clock    func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, recorder *audit.Recorder, policy Policy) *Service {
	if policy == "" {
		policy = PolicyPermissive
	}
	return &Service{repo: repo, recorder: recorder, policy: policy, clock: time.Now}
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

// Create opens a work order for an existing vehicle. The customer is the
// vehicle owner.
func (s *Service) Create(ctx context.Context, in CreateInput, requester shared.Principal) (*WorkOrder, error) {
	vehicleID, err := shared.NormalizeID(in.VehicleID)
	if err != nil {
		return nil, shared.Invalid("vehicle_id does not name a vehicle")
	}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return nil, shared.Invalid("description is required")
	}
	status := in.Status
	if status == "" {
		status = StatusPending
	}
	if !status.IsValid() || status.IsTerminal() {
		return nil, shared.Invalid("initial status must be an open state")
	}
	if in.EstimatedCost.Valid && in.EstimatedCost.Decimal.IsNegative() {
		return nil, shared.Invalid("estimated_cost must not be negative")
	}
	mechanicID := ""
	if strings.TrimSpace(in.MechanicID) != "" {
		if mechanicID, err = shared.NormalizeID(in.MechanicID); err != nil {
			return nil, shared.Invalid("assigned_mechanic_id does not name a mechanic")
		}
	}
	order := WorkOrder{
		WorkOrderID: shared.NewID(),
		VehicleID:   vehicleID,
		MechanicID:  mechanicID,
		Status:      status,
		Description: description,
		CreatedBy:   requester.UserID,
		CreatedAt:   s.now(),
	}
	if in.EstimatedCost.Valid {
		order.EstimatedCost = in.EstimatedCost
		order.EstimatedCost.Decimal = in.EstimatedCost.Decimal.Round(2)
	}
	if status == StatusInProgress {
		started := order.CreatedAt
		order.StartedAt = &started
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		owner, err := tx.VehicleOwner(ctx, vehicleID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return shared.Invalid("vehicle_id does not name a vehicle")
			}
			return err
		}
		order.CustomerID = owner
		if mechanicID != "" {
			if err := s.requireEligible(ctx, tx, mechanicID); err != nil {
				return err
			}
		}
		if err := tx.Insert(ctx, order); err != nil {
			return err
		}
		_, err = s.recorder.Record(ctx, tx, audit.Entry{
			Table:    ordersTable,
			Action:   audit.ActionInsert,
			RecordID: order.WorkOrderID,
			New:      order.state(),
			Actor:    requester,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Service) requireEligible(ctx context.Context, tx TxRepository, mechanicID string) error {
	ok, err := tx.MechanicEligible(ctx, mechanicID, rbac.OverrideRoles(rbac.OpAssignableAsMechanic))
	if err != nil {
		return err
	}
	if !ok {
		return shared.Invalid("mechanic must be an active user with a mechanic role")
	}
	return nil
}

// List returns the orders visible to the requester: all for work_order.view_all,
// assigned orders for mechanics, own vehicles' orders for customers.
func (s *Service) List(ctx context.Context, requester shared.Principal) ([]WorkOrder, error) {
	filter := ListFilter{}
	switch {
	case rbac.Allowed(requester.Roles, rbac.OpWorkOrderViewAll):
		filter.All = true
	case requester.Roles.Has(shared.RoleMechanic):
		filter.MechanicID = requester.UserID
	case requester.Roles.Has(shared.RoleCustomer):
		filter.CustomerID = requester.UserID
	default:
		return []WorkOrder{}, nil
	}
	orders, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []WorkOrder{}
	}
	for i := range orders {
		orders[i].fillCompletionDays()
	}
	return orders, nil
}

func canView(order *WorkOrder, p shared.Principal) bool {
	switch {
	case rbac.Allowed(p.Roles, rbac.OpWorkOrderViewAll):
		return true
	case p.Roles.Has(shared.RoleMechanic) && order.MechanicID != "" && p.Is(order.MechanicID):
		return true
	case p.Roles.Has(shared.RoleCustomer) && p.Is(order.CustomerID):
		return true
	}
	return false
}

// Get returns one order with its work log, newest entry first.
func (s *Service) Get(ctx context.Context, id string, requester shared.Principal) (*WorkOrder, error) {
	id, err := shared.NormalizeID(id)
	if err != nil {
		return nil, err
	}
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(order, requester) {
		return nil, shared.Forbidden("you cannot view this work order")
	}
	logs, err := s.repo.Logs(ctx, id)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []WorkLog{}
	}
	order.Logs = logs
	order.fillCompletionDays()
	return order, nil
}

func canSetStatus(order *WorkOrder, p shared.Principal) bool {
	if rbac.Allowed(p.Roles, rbac.OpWorkOrderSetStatus) {
		return true
	}
	return p.Roles.Has(shared.RoleMechanic) && order.MechanicID != "" && p.Is(order.MechanicID)
}

// SetStatus moves an order to a new state. Setting the current state only
// updates actual_cost when a different one is given; otherwise it is a no-op
// and records nothing.
func (s *Service) SetStatus(ctx context.Context, id string, change StatusChange, requester shared.Principal) (*WorkOrder, error) {
	id, err := shared.NormalizeID(id)
	if err != nil {
		return nil, err
	}
	to := Status(strings.ToLower(strings.TrimSpace(string(change.Status))))
	if !to.IsValid() {
		return nil, shared.Invalid("unknown status " + string(change.Status))
	}
	if change.ActualCost.Valid && change.ActualCost.Decimal.IsNegative() {
		return nil, shared.Invalid("actual_cost must not be negative")
	}
	var result *WorkOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if !canSetStatus(order, requester) {
			return shared.Forbidden("only staff or the assigned mechanic can change the status")
		}
		result = order
		next := *order
		if change.ActualCost.Valid {
			next.ActualCost = decimal.NewNullDecimal(change.ActualCost.Decimal.Round(2))
		}
		if order.Status == to {
			if !costChanged(order.ActualCost, next.ActualCost) {
				return nil
			}
			if order.Status.IsTerminal() {
				return shared.Transition(string(order.Status), string(to))
			}
		} else {
			if err := s.policy.Check(order.Status, to); err != nil {
				return err
			}
			next.Status = to
			now := s.now()
			if to == StatusInProgress && next.StartedAt == nil {
				next.StartedAt = &now
			}
			if to == StatusCompleted {
				next.CompletedAt = &now
			}
		}
		if err := tx.Update(ctx, next); err != nil {
			return err
		}
		if _, err := s.recorder.Record(ctx, tx, audit.Entry{
			Table:    ordersTable,
			Action:   audit.ActionUpdate,
			RecordID: id,
			Old:      order.state(),
			New:      next.state(),
			Actor:    requester,
		}); err != nil {
			return err
		}
		result = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.fillCompletionDays()
	return result, nil
}

// Assign sets the order's mechanic. An empty mechanic id is ignored and the
// order is returned unchanged.
func (s *Service) Assign(ctx context.Context, id, mechanicID string, requester shared.Principal) (*WorkOrder, error) {
	if !rbac.Allowed(requester.Roles, rbac.OpWorkOrderAssign) {
		return nil, shared.Forbidden("only staff can assign mechanics")
	}
	id, err := shared.NormalizeID(id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(mechanicID) == "" {
		return s.repo.Get(ctx, id)
	}
	mechanicID, err = shared.NormalizeID(mechanicID)
	if err != nil {
		return nil, shared.Invalid("mechanic_id does not name a mechanic")
	}
	var result *WorkOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		result = order
		if shared.SameID(order.MechanicID, mechanicID) {
			return nil
		}
		if err := s.requireEligible(ctx, tx, mechanicID); err != nil {
			return err
		}
		next := *order
		next.MechanicID = mechanicID
		next.MechanicName = ""
		if err := tx.Update(ctx, next); err != nil {
			return err
		}
		if _, err := s.recorder.Record(ctx, tx, audit.Entry{
			Table:    ordersTable,
			Action:   audit.ActionUpdate,
			RecordID: id,
			Old:      order.state(),
			New:      next.state(),
			Actor:    requester,
		}); err != nil {
			return err
		}
		result = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AddLog appends a work log entry. Customers may never log; others must be
// the assigned mechanic unless they hold work_order.add_log.
func (s *Service) AddLog(ctx context.Context, id string, in LogInput, requester shared.Principal) (*WorkLog, error) {
	if requester.Roles.Only(shared.RoleCustomer) || len(requester.Roles) == 0 {
		return nil, shared.Forbidden("customers cannot add work logs")
	}
	id, err := shared.NormalizeID(id)
	if err != nil {
		return nil, err
	}
	entry := strings.TrimSpace(in.LogEntry)
	if entry == "" {
		return nil, shared.Invalid("log_entry is required")
	}
	if in.HoursWorked.Valid && in.HoursWorked.Decimal.IsNegative() {
		return nil, shared.Invalid("hours_worked must not be negative")
	}
	var result WorkLog
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if !rbac.Allowed(requester.Roles, rbac.OpWorkOrderAddLog) && !(order.MechanicID != "" && requester.Is(order.MechanicID)) {
			return shared.Forbidden("only the assigned mechanic can log work on this order")
		}
		result, err = tx.InsertLog(ctx, WorkLog{
			WorkOrderID: id,
			MechanicID:  requester.UserID,
			LogEntry:    entry,
			HoursWorked: in.HoursWorked,
		})
		if err != nil {
			return err
		}
		_, err = s.recorder.Record(ctx, tx, audit.Entry{
			Table:    logsTable,
			Action:   audit.ActionInsert,
			RecordID: strconv.FormatInt(result.LogID, 10),
			New:      result,
			Actor:    requester,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	result.MechanicName = requester.Username
	return &result, nil
}

func costChanged(old, next decimal.NullDecimal) bool {
	if old.Valid != next.Valid {
		return true
	}
	return next.Valid && !old.Decimal.Equal(next.Decimal)
}
