package invoices

import (
	"context"
	"errors"
	"time"

	"github.com/autoservis/autoservis/internal/audit"
	"github.com/autoservis/autoservis/internal/rbac"
	"github.com/autoservis/autoservis/internal/shared"
)

const invoicesTable = "invoices"

// Service drives the invoice lifecycle.
type Service struct {
	repo     Repository
	recorder *audit.Recorder
	clock    func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, recorder *audit.Recorder) *Service {
	return &Service{repo: repo, recorder: recorder, clock: time.Now}
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

// List returns every invoice for invoice.view_all roles, own invoices for
// customers, nothing otherwise.
func (s *Service) List(ctx context.Context, requester shared.Principal) ([]Invoice, error) {
	filter := ListFilter{}
	switch {
	case rbac.Allowed(requester.Roles, rbac.OpInvoiceViewAll):
		filter.All = true
	case requester.Roles.Has(shared.RoleCustomer):
		filter.CustomerID = requester.UserID
	default:
		return []Invoice{}, nil
	}
	invoices, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if invoices == nil {
		invoices = []Invoice{}
	}
	now := s.now()
	for i := range invoices {
		invoices[i].fillDerived(now)
	}
	return invoices, nil
}

// Create drafts an invoice for a completed work order.
func (s *Service) Create(ctx context.Context, in CreateInput, requester shared.Principal) (*Invoice, error) {
	workOrderID, err := shared.NormalizeID(in.WorkOrderID)
	if err != nil {
		return nil, shared.Invalid("work_order_id does not name a work order")
	}
	var inv Invoice
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.LockWorkOrder(ctx, workOrderID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return shared.Invalid("work_order_id does not name a work order")
			}
			return err
		}
		if order.Status != "completed" {
			return shared.Invalid("only completed work orders can be invoiced")
		}
		open, err := tx.HasOpenInvoice(ctx, workOrderID)
		if err != nil {
			return err
		}
		if open {
			return shared.Conflict("work order already has an invoice")
		}
		cost := order.ActualCost
		if !cost.Valid {
			cost = order.EstimatedCost
		}
		if !cost.Valid {
			return shared.Invalid("work order has no cost to invoice")
		}
		seq, err := tx.NextSequence(ctx)
		if err != nil {
			return err
		}
		now := s.now()
		inv = Invoice{
			InvoiceID:     shared.NewID(),
			InvoiceNumber: Number(now.Year(), seq),
			WorkOrderID:   workOrderID,
			CustomerID:    order.CustomerID,
			Status:        StatusDraft,
			CreatedBy:     requester.UserID,
			CreatedAt:     now,
		}
		inv.BaseAmount, inv.TaxAmount, inv.TotalAmount = Amounts(cost.Decimal)
		if err := tx.Insert(ctx, inv); err != nil {
			return err
		}
		_, err = s.recorder.Record(ctx, tx, audit.Entry{
			Table:    invoicesTable,
			Action:   audit.ActionInsert,
			RecordID: inv.InvoiceID,
			New:      inv.state(),
			Actor:    requester,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	inv.fillDerived(s.now())
	return &inv, nil
}

// Issue moves a draft to issued and starts the payment term.
func (s *Service) Issue(ctx context.Context, id string, requester shared.Principal) (*Invoice, error) {
	return s.transition(ctx, id, requester, StatusIssued, []Status{StatusDraft}, func(inv *Invoice, now time.Time) {
		inv.IssuedAt = &now
	})
}

// Cancel voids a draft or issued invoice. The work order may be invoiced again.
func (s *Service) Cancel(ctx context.Context, id string, requester shared.Principal) (*Invoice, error) {
	return s.transition(ctx, id, requester, StatusCancelled, []Status{StatusDraft, StatusIssued}, nil)
}

// MarkPaid settles an issued invoice. Any other state, including paid, is
// rejected so a repeated call records nothing.
func (s *Service) MarkPaid(ctx context.Context, id string, requester shared.Principal) (*Invoice, error) {
	if !rbac.Allowed(requester.Roles, rbac.OpInvoiceMarkPaid) {
		return nil, shared.Forbidden("only the owner or an accountant can mark invoices paid")
	}
	return s.transition(ctx, id, requester, StatusPaid, []Status{StatusIssued}, func(inv *Invoice, now time.Time) {
		inv.PaidAt = &now
	})
}

func (s *Service) transition(ctx context.Context, id string, requester shared.Principal, to Status, from []Status, stamp func(*Invoice, time.Time)) (*Invoice, error) {
	id, err := shared.NormalizeID(id)
	if err != nil {
		return nil, err
	}
	var result Invoice
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if !statusIn(current.Status, from) {
			return shared.Transition(string(current.Status), string(to))
		}
		next := *current
		next.Status = to
		if stamp != nil {
			stamp(&next, s.now())
		}
		if err := tx.Update(ctx, next); err != nil {
			return err
		}
		if _, err := s.recorder.Record(ctx, tx, audit.Entry{
			Table:    invoicesTable,
			Action:   audit.ActionUpdate,
			RecordID: id,
			Old:      current.state(),
			New:      next.state(),
			Actor:    requester,
		}); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.fillDerived(s.now())
	return &result, nil
}

func statusIn(s Status, set []Status) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}
