package audit

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autoservis/autoservis/internal/platform/db"
)

// SQLWriter writes facts through a pool or transaction.
type SQLWriter struct {
	q db.Querier
}

// NewSQLWriter binds a writer to q, normally the caller's pgx.Tx.
func NewSQLWriter(q db.Querier) *SQLWriter {
	return &SQLWriter{q: q}
}

// InsertFact appends one row to audit_log.
func (w *SQLWriter) InsertFact(ctx context.Context, fact Fact) (Fact, error) {
	err := w.q.QueryRow(ctx, `
		INSERT INTO audit_log (table_name, action_type, record_id, old_value, new_value, user_id, ip_address)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid, NULLIF($7, ''))
		RETURNING log_id, timestamp`,
		fact.TableName, string(fact.ActionType), fact.RecordID,
		nullJSON(fact.OldValue), nullJSON(fact.NewValue), fact.UserID, fact.IPAddress,
	).Scan(&fact.LogID, &fact.Timestamp)
	return fact, err
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// Reader lists stored facts.
type Reader interface {
	List(ctx context.Context, filters Filters) ([]Fact, error)
}

// PGRepository implements Reader using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// List returns facts newest first.
func (r *PGRepository) List(ctx context.Context, filters Filters) ([]Fact, error) {
	var (
		where []string
		args  []any
	)
	if filters.TableName != "" {
		args = append(args, filters.TableName)
		where = append(where, "al.table_name = $"+strconv.Itoa(len(args)))
	}
	if filters.ActionType != "" {
		args = append(args, string(filters.ActionType))
		where = append(where, "al.action_type = $"+strconv.Itoa(len(args)))
	}
	query := `
		SELECT al.log_id, al.table_name, al.action_type, al.record_id,
		       COALESCE(al.old_value::text, ''), COALESCE(al.new_value::text, ''),
		       COALESCE(al.user_id::text, ''), COALESCE(u.username, ''),
		       COALESCE(al.ip_address, ''), al.timestamp
		FROM audit_log al
		LEFT JOIN users u ON u.user_id = al.user_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filters.Limit)
	query += " ORDER BY al.timestamp DESC, al.log_id DESC LIMIT $" + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var facts []Fact
	for rows.Next() {
		var (
			f        Fact
			action   string
			oldValue string
			newValue string
		)
		if err := rows.Scan(&f.LogID, &f.TableName, &action, &f.RecordID, &oldValue, &newValue, &f.UserID, &f.Username, &f.IPAddress, &f.Timestamp); err != nil {
			return nil, err
		}
		f.ActionType = Action(action)
		if oldValue != "" {
			f.OldValue = []byte(oldValue)
		}
		if newValue != "" {
			f.NewValue = []byte(newValue)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}
