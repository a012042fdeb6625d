package workorders

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autoservis/autoservis/internal/audit"
	"github.com/autoservis/autoservis/internal/platform/db"
	"github.com/autoservis/autoservis/internal/shared"
)

// Repository defines persistence operations for work orders.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]WorkOrder, error)
	Get(ctx context.Context, id string) (*WorkOrder, error)
	Logs(ctx context.Context, id string) ([]WorkLog, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional work order writes. Lock takes the row
// lock that serialises concurrent mutations of one order.
type TxRepository interface {
	audit.Writer
	Lock(ctx context.Context, id string) (*WorkOrder, error)
	VehicleOwner(ctx context.Context, vehicleID string) (string, error)
	MechanicEligible(ctx context.Context, userID string, roles []shared.RoleName) (bool, error)
	Insert(ctx context.Context, w WorkOrder) error
	Update(ctx context.Context, w WorkOrder) error
	InsertLog(ctx context.Context, l WorkLog) (WorkLog, error)
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

const detailSelect = `
	SELECT wo.work_order_id::text, wo.vehicle_id::text, v.owner_id::text, c.username, c.email,
	       v.license_plate, v.brand, v.model, v.year,
	       COALESCE(wo.assigned_mechanic_id::text, ''), COALESCE(m.username, ''),
	       wo.status, wo.description, wo.estimated_cost::text, wo.actual_cost::text,
	       COALESCE(wo.created_by::text, ''), wo.created_at, wo.started_at, wo.completed_at,
	       EXISTS (SELECT 1 FROM invoices i WHERE i.work_order_id = wo.work_order_id AND i.status <> 'cancelled')
	FROM work_orders wo
	JOIN vehicles v ON v.vehicle_id = wo.vehicle_id
	JOIN users c ON c.user_id = v.owner_id
	LEFT JOIN users m ON m.user_id = wo.assigned_mechanic_id`

func scanOrder(row pgx.Row) (*WorkOrder, error) {
	var (
		w         WorkOrder
		status    string
		estimated *string
		actual    *string
	)
	if err := row.Scan(&w.WorkOrderID, &w.VehicleID, &w.CustomerID, &w.CustomerName, &w.CustomerEmail,
		&w.LicensePlate, &w.Brand, &w.Model, &w.Year,
		&w.MechanicID, &w.MechanicName,
		&status, &w.Description, &estimated, &actual,
		&w.CreatedBy, &w.CreatedAt, &w.StartedAt, &w.CompletedAt, &w.HasInvoice); err != nil {
		return nil, err
	}
	w.Status = Status(status)
	var err error
	if w.EstimatedCost, err = db.ParseNullDecimal(estimated); err != nil {
		return nil, err
	}
	if w.ActualCost, err = db.ParseNullDecimal(actual); err != nil {
		return nil, err
	}
	return &w, nil
}

// List returns orders newest first within the filter scope.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]WorkOrder, error) {
	query := detailSelect
	var args []any
	switch {
	case filter.All:
	case filter.MechanicID != "":
		query += ` WHERE wo.assigned_mechanic_id = $1::uuid`
		args = append(args, filter.MechanicID)
	case filter.CustomerID != "":
		query += ` WHERE v.owner_id = $1::uuid`
		args = append(args, filter.CustomerID)
	default:
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, query+` ORDER BY wo.created_at DESC, wo.work_order_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WorkOrder
	for rows.Next() {
		w, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// Get fetches one order with vehicle and people details.
func (r *PGRepository) Get(ctx context.Context, id string) (*WorkOrder, error) {
	w, err := scanOrder(r.pool.QueryRow(ctx, detailSelect+` WHERE wo.work_order_id = $1::uuid`, id))
	if err != nil {
		return nil, db.NotFound(err)
	}
	return w, nil
}

// Logs returns the order's work log newest first.
func (r *PGRepository) Logs(ctx context.Context, id string) ([]WorkLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT wl.log_id, wl.work_order_id::text, wl.mechanic_id::text, u.username,
		       wl.log_entry, wl.hours_worked::text, wl.timestamp
		FROM work_log wl
		JOIN users u ON u.user_id = wl.mechanic_id
		WHERE wl.work_order_id = $1::uuid
		ORDER BY wl.timestamp DESC, wl.log_id DESC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WorkLog
	for rows.Next() {
		var (
			l     WorkLog
			hours *string
		)
		if err := rows.Scan(&l.LogID, &l.WorkOrderID, &l.MechanicID, &l.MechanicName, &l.LogEntry, &hours, &l.Timestamp); err != nil {
			return nil, err
		}
		if l.HoursWorked, err = db.ParseNullDecimal(hours); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Lock loads an order FOR UPDATE.
func (t *pgTx) Lock(ctx context.Context, id string) (*WorkOrder, error) {
	w, err := scanOrder(t.tx.QueryRow(ctx, detailSelect+` WHERE wo.work_order_id = $1::uuid FOR UPDATE OF wo`, id))
	if err != nil {
		return nil, db.NotFound(err)
	}
	return w, nil
}

// VehicleOwner returns the owner of a vehicle.
func (t *pgTx) VehicleOwner(ctx context.Context, vehicleID string) (string, error) {
	var owner string
	err := t.tx.QueryRow(ctx, `SELECT owner_id::text FROM vehicles WHERE vehicle_id = $1::uuid`, vehicleID).Scan(&owner)
	if err != nil {
		return "", db.NotFound(err)
	}
	return owner, nil
}

// MechanicEligible reports whether userID is active and holds one of roles.
func (t *pgTx) MechanicEligible(ctx context.Context, userID string, roles []shared.RoleName) (bool, error) {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, string(r))
	}
	var ok bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM users u
			JOIN user_roles ur ON ur.user_id = u.user_id
			JOIN roles r ON r.role_id = ur.role_id
			WHERE u.user_id = $1::uuid AND u.status = 'active' AND r.role_name = ANY($2)
		)`, userID, names).Scan(&ok)
	return ok, err
}

// Insert stores a new order.
func (t *pgTx) Insert(ctx context.Context, w WorkOrder) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO work_orders (work_order_id, vehicle_id, created_by, assigned_mechanic_id, description,
		                         estimated_cost, status, created_at)
		VALUES ($1::uuid, $2::uuid, NULLIF($3, '')::uuid, NULLIF($4, '')::uuid, $5, $6::numeric, $7, $8)`,
		w.WorkOrderID, w.VehicleID, w.CreatedBy, w.MechanicID, w.Description,
		db.DecimalArg(w.EstimatedCost), string(w.Status), w.CreatedAt)
	return err
}

// Update writes the mutable columns of an order.
func (t *pgTx) Update(ctx context.Context, w WorkOrder) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE work_orders
		SET status = $2, assigned_mechanic_id = NULLIF($3, '')::uuid, actual_cost = $4::numeric,
		    started_at = $5, completed_at = $6
		WHERE work_order_id = $1::uuid`,
		w.WorkOrderID, string(w.Status), w.MechanicID, db.DecimalArg(w.ActualCost), w.StartedAt, w.CompletedAt)
	return err
}

// InsertLog appends a work log row and returns it as stored. Omitted hours
// stay NULL.
func (t *pgTx) InsertLog(ctx context.Context, l WorkLog) (WorkLog, error) {
	var (
		ts    time.Time
		hours *string
	)
	err := t.tx.QueryRow(ctx, `
		INSERT INTO work_log (work_order_id, mechanic_id, log_entry, hours_worked)
		VALUES ($1::uuid, $2::uuid, $3, $4::numeric)
		RETURNING log_id, hours_worked::text, timestamp`,
		l.WorkOrderID, l.MechanicID, l.LogEntry, db.DecimalArg(l.HoursWorked)).Scan(&l.LogID, &hours, &ts)
	if err != nil {
		return WorkLog{}, err
	}
	if l.HoursWorked, err = db.ParseNullDecimal(hours); err != nil {
		return WorkLog{}, err
	}
	l.Timestamp = ts
	return l, nil
}
