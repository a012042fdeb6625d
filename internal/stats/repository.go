package stats

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autoservis/autoservis/internal/platform/db"
)

// Repository reads dashboard aggregates.
type Repository interface {
	Counts(ctx context.Context) (Counts, error)
	TopMechanics(ctx context.Context, limit int) ([]MechanicRank, error)
	RecentActivity(ctx context.Context, limit int) ([]Activity, error)
	CustomerTotals(ctx context.Context, userID string) (CustomerTotals, error)
	CustomerVehicles(ctx context.Context, userID string) ([]VehicleSummary, error)
	MechanicPerformance(ctx context.Context, userID string) (MechanicPerformance, error)
	MechanicWorkload(ctx context.Context, userID string) (Workload, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Counts returns shop-wide totals.
func (r *PGRepository) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := r.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM users),
		       (SELECT COUNT(*) FROM vehicles),
		       (SELECT COUNT(*) FROM work_orders),
		       (SELECT COUNT(*) FROM work_orders WHERE status IN ('pending', 'approved')),
		       (SELECT COUNT(*) FROM work_orders WHERE status = 'in_progress')`).
		Scan(&c.TotalUsers, &c.TotalVehicles, &c.TotalWorkOrders, &c.PendingOrders, &c.ActiveOrders)
	return c, err
}

// TopMechanics ranks mechanics by completed jobs.
func (r *PGRepository) TopMechanics(ctx context.Context, limit int) ([]MechanicRank, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.username,
		       COUNT(*) FILTER (WHERE wo.status = 'completed') AS completed,
		       (SELECT COALESCE(SUM(wl.hours_worked), 0) FROM work_log wl WHERE wl.mechanic_id = u.user_id)::text
		FROM users u
		JOIN work_orders wo ON wo.assigned_mechanic_id = u.user_id
		GROUP BY u.user_id, u.username
		HAVING COUNT(*) FILTER (WHERE wo.status = 'completed') > 0
		ORDER BY completed DESC, u.username
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MechanicRank
	for rows.Next() {
		var (
			m     MechanicRank
			hours string
		)
		if err := rows.Scan(&m.Username, &m.CompletedJobs, &hours); err != nil {
			return nil, err
		}
		if m.TotalHoursWorked, err = db.ParseDecimal(hours); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecentActivity returns the newest audit facts.
func (r *PGRepository) RecentActivity(ctx context.Context, limit int) ([]Activity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT al.action_type, al.table_name, al.timestamp, COALESCE(u.username, '')
		FROM audit_log al
		LEFT JOIN users u ON u.user_id = al.user_id
		ORDER BY al.log_id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ActionType, &a.TableName, &a.Timestamp, &a.Username); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CustomerTotals summarises one customer.
func (r *PGRepository) CustomerTotals(ctx context.Context, userID string) (CustomerTotals, error) {
	c := CustomerTotals{UserID: userID}
	var spent string
	err := r.pool.QueryRow(ctx, `
		WITH orders AS (
			SELECT wo.work_order_id, wo.status
			FROM work_orders wo
			JOIN vehicles v ON v.vehicle_id = wo.vehicle_id
			WHERE v.owner_id = $1::uuid
		)
		SELECT u.username,
		       (SELECT COUNT(*) FROM vehicles v WHERE v.owner_id = u.user_id),
		       (SELECT COUNT(*) FROM orders),
		       (SELECT COUNT(*) FROM orders WHERE status NOT IN ('completed', 'cancelled')),
		       (SELECT COUNT(*) FROM invoices i JOIN orders o ON o.work_order_id = i.work_order_id WHERE i.status = 'issued'),
		       (SELECT COALESCE(SUM(i.total_amount), 0) FROM invoices i JOIN orders o ON o.work_order_id = i.work_order_id WHERE i.status = 'paid')::text
		FROM users u
		WHERE u.user_id = $1::uuid`, userID).
		Scan(&c.Username, &c.TotalVehicles, &c.TotalWorkOrders, &c.OpenWorkOrders, &c.UnpaidInvoices, &spent)
	if err != nil {
		return CustomerTotals{}, db.NotFound(err)
	}
	if c.TotalSpent, err = db.ParseDecimal(spent); err != nil {
		return CustomerTotals{}, err
	}
	return c, nil
}

// CustomerVehicles lists a customer's vehicles with service history.
func (r *PGRepository) CustomerVehicles(ctx context.Context, userID string) ([]VehicleSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT v.vehicle_id::text, v.license_plate, v.brand, v.model, v.year,
		       COUNT(DISTINCT wo.work_order_id),
		       COALESCE(SUM(i.total_amount), 0)::text,
		       MAX(wo.completed_at)
		FROM vehicles v
		LEFT JOIN work_orders wo ON wo.vehicle_id = v.vehicle_id
		LEFT JOIN invoices i ON i.work_order_id = wo.work_order_id AND i.status = 'paid'
		WHERE v.owner_id = $1::uuid
		GROUP BY v.vehicle_id, v.license_plate, v.brand, v.model, v.year
		ORDER BY v.license_plate`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []VehicleSummary
	for rows.Next() {
		var (
			v     VehicleSummary
			spent string
		)
		if err := rows.Scan(&v.VehicleID, &v.LicensePlate, &v.Brand, &v.Model, &v.Year,
			&v.TotalServices, &spent, &v.LastServiceDate); err != nil {
			return nil, err
		}
		if v.TotalSpent, err = db.ParseDecimal(spent); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// MechanicPerformance summarises one mechanic's completed work.
func (r *PGRepository) MechanicPerformance(ctx context.Context, userID string) (MechanicPerformance, error) {
	m := MechanicPerformance{UserID: userID}
	var hours string
	err := r.pool.QueryRow(ctx, `
		SELECT u.username,
		       COUNT(wo.work_order_id) FILTER (WHERE wo.status = 'completed'),
		       (SELECT COALESCE(SUM(wl.hours_worked), 0) FROM work_log wl WHERE wl.mechanic_id = u.user_id)::text,
		       (AVG(EXTRACT(EPOCH FROM (wo.completed_at - wo.created_at)) / 86400)
		           FILTER (WHERE wo.status = 'completed' AND wo.completed_at IS NOT NULL))::float8
		FROM users u
		LEFT JOIN work_orders wo ON wo.assigned_mechanic_id = u.user_id
		WHERE u.user_id = $1::uuid
		GROUP BY u.user_id, u.username`, userID).
		Scan(&m.Username, &m.CompletedJobs, &hours, &m.AvgCompletionDays)
	if err != nil {
		return MechanicPerformance{}, db.NotFound(err)
	}
	if m.TotalHoursWorked, err = db.ParseDecimal(hours); err != nil {
		return MechanicPerformance{}, err
	}
	return m, nil
}

// MechanicWorkload counts open assignments by state.
func (r *PGRepository) MechanicWorkload(ctx context.Context, userID string) (Workload, error) {
	var w Workload
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status IN ('pending', 'approved')),
		       COUNT(*) FILTER (WHERE status = 'in_progress'),
		       COUNT(*) FILTER (WHERE status = 'waiting_parts')
		FROM work_orders
		WHERE assigned_mechanic_id = $1::uuid`, userID).
		Scan(&w.Queued, &w.InProgress, &w.WaitingParts)
	return w, err
}
