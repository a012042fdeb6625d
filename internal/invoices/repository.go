package invoices

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autoservis/autoservis/internal/audit"
	"github.com/autoservis/autoservis/internal/platform/db"
)

// Repository defines persistence operations for invoices.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Invoice, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional invoice writes.
type TxRepository interface {
	audit.Writer
	// LockWorkOrder serialises invoice creation for one work order.
	LockWorkOrder(ctx context.Context, workOrderID string) (*OrderSnapshot, error)
	HasOpenInvoice(ctx context.Context, workOrderID string) (bool, error)
	NextSequence(ctx context.Context) (int64, error)
	Insert(ctx context.Context, inv Invoice) error
	Lock(ctx context.Context, id string) (*Invoice, error)
	Update(ctx context.Context, inv Invoice) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type pgTx struct {
	*audit.SQLWriter
	tx pgx.Tx
}

// WithTx runs fn inside a transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &pgTx{SQLWriter: audit.NewSQLWriter(tx), tx: tx})
	})
}

const summarySelect = `
	SELECT i.invoice_id::text, i.invoice_number, i.work_order_id::text,
	       v.owner_id::text, c.username, c.email, wo.description, v.license_plate,
	       i.base_amount::text, i.tax_amount::text, i.total_amount::text,
	       i.status, i.issued_at, i.paid_at, COALESCE(i.created_by::text, ''), i.created_at
	FROM invoices i
	JOIN work_orders wo ON wo.work_order_id = i.work_order_id
	JOIN vehicles v ON v.vehicle_id = wo.vehicle_id
	JOIN users c ON c.user_id = v.owner_id`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var (
		inv              Invoice
		status           string
		base, tax, total string
	)
	if err := row.Scan(&inv.InvoiceID, &inv.InvoiceNumber, &inv.WorkOrderID,
		&inv.CustomerID, &inv.CustomerName, &inv.CustomerEmail, &inv.WorkDescription, &inv.LicensePlate,
		&base, &tax, &total,
		&status, &inv.IssuedAt, &inv.PaidAt, &inv.CreatedBy, &inv.CreatedAt); err != nil {
		return nil, err
	}
	inv.Status = Status(status)
	var err error
	if inv.BaseAmount, err = db.ParseDecimal(base); err != nil {
		return nil, err
	}
	if inv.TaxAmount, err = db.ParseDecimal(tax); err != nil {
		return nil, err
	}
	if inv.TotalAmount, err = db.ParseDecimal(total); err != nil {
		return nil, err
	}
	return &inv, nil
}

// List returns invoices newest first within the filter scope.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	query := summarySelect
	var args []any
	switch {
	case filter.All:
	case filter.CustomerID != "":
		query += ` WHERE v.owner_id = $1::uuid`
		args = append(args, filter.CustomerID)
	default:
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, query+` ORDER BY COALESCE(i.issued_at, i.created_at) DESC, i.invoice_number DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

// LockWorkOrder loads the invoicing view of a work order FOR UPDATE.
func (t *pgTx) LockWorkOrder(ctx context.Context, workOrderID string) (*OrderSnapshot, error) {
	var (
		o                 OrderSnapshot
		estimated, actual *string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT wo.work_order_id::text, v.owner_id::text, wo.status,
		       wo.estimated_cost::text, wo.actual_cost::text
		FROM work_orders wo
		JOIN vehicles v ON v.vehicle_id = wo.vehicle_id
		WHERE wo.work_order_id = $1::uuid
		FOR UPDATE OF wo`, workOrderID).Scan(&o.WorkOrderID, &o.CustomerID, &o.Status, &estimated, &actual)
	if err != nil {
		return nil, db.NotFound(err)
	}
	if o.EstimatedCost, err = db.ParseNullDecimal(estimated); err != nil {
		return nil, err
	}
	if o.ActualCost, err = db.ParseNullDecimal(actual); err != nil {
		return nil, err
	}
	return &o, nil
}

// HasOpenInvoice reports whether a non-cancelled invoice exists for the order.
func (t *pgTx) HasOpenInvoice(ctx context.Context, workOrderID string) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM invoices WHERE work_order_id = $1::uuid AND status <> 'cancelled')`,
		workOrderID).Scan(&ok)
	return ok, err
}

// NextSequence draws the next invoice number sequence value.
func (t *pgTx) NextSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := t.tx.QueryRow(ctx, `SELECT nextval('invoice_number_seq')`).Scan(&seq)
	return seq, err
}

// Insert stores a new invoice.
func (t *pgTx) Insert(ctx context.Context, inv Invoice) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO invoices (invoice_id, work_order_id, invoice_number, base_amount, tax_amount, total_amount,
		                      status, created_by, created_at)
		VALUES ($1::uuid, $2::uuid, $3, $4::numeric, $5::numeric, $6::numeric, $7, NULLIF($8, '')::uuid, $9)`,
		inv.InvoiceID, inv.WorkOrderID, inv.InvoiceNumber,
		inv.BaseAmount.String(), inv.TaxAmount.String(), inv.TotalAmount.String(),
		string(inv.Status), inv.CreatedBy, inv.CreatedAt)
	return err
}

// Lock loads an invoice FOR UPDATE.
func (t *pgTx) Lock(ctx context.Context, id string) (*Invoice, error) {
	inv, err := scanInvoice(t.tx.QueryRow(ctx, summarySelect+` WHERE i.invoice_id = $1::uuid FOR UPDATE OF i`, id))
	if err != nil {
		return nil, db.NotFound(err)
	}
	return inv, nil
}

// Update writes the lifecycle columns of an invoice.
func (t *pgTx) Update(ctx context.Context, inv Invoice) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE invoices SET status = $2, issued_at = $3, paid_at = $4
		WHERE invoice_id = $1::uuid`,
		inv.InvoiceID, string(inv.Status), inv.IssuedAt, inv.PaidAt)
	return err
}
