package auth

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autoservis/autoservis/internal/audit"
	"github.com/autoservis/autoservis/internal/platform/db"
	"github.com/autoservis/autoservis/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindUser(ctx context.Context, id string) (*User, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, userID string, now time.Time) ([]Session, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional session writes.
type TxRepository interface {
	audit.Writer
	InsertSession(ctx context.Context, s Session) error
	LockSession(ctx context.Context, id string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error
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

const userColumns = `
	SELECT u.user_id::text, u.username, u.email, u.password_hash, u.status,
	       COALESCE(array_agg(r.role_name ORDER BY r.priority) FILTER (WHERE r.role_name IS NOT NULL), '{}')
	FROM users u
	LEFT JOIN user_roles ur ON ur.user_id = u.user_id
	LEFT JOIN roles r ON r.role_id = ur.role_id`

func scanUser(row pgx.Row) (*User, error) {
	var (
		u      User
		status string
		roles  []string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &status, &roles); err != nil {
		return nil, db.NotFound(err)
	}
	u.Status = shared.UserStatus(status)
	for _, name := range roles {
		u.Roles = append(u.Roles, shared.RoleName(name))
	}
	return &u, nil
}

// FindByUsername fetches a user with roles by username.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, userColumns+` WHERE u.username = $1 GROUP BY u.user_id`, username))
}

// FindUser fetches a user with roles by id.
func (r *PGRepository) FindUser(ctx context.Context, id string) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, userColumns+` WHERE u.user_id = $1::uuid GROUP BY u.user_id`, id))
}

const sessionColumns = `
	SELECT session_id::text, user_id::text, username, status, roles,
	       COALESCE(ip_address, ''), COALESCE(user_agent, ''), created_at, expires_at
	FROM sessions`

func scanSession(row pgx.Row) (*Session, error) {
	var (
		s      Session
		status string
		roles  []string
	)
	if err := row.Scan(&s.SessionID, &s.UserID, &s.Username, &status, &roles, &s.IPAddress, &s.UserAgent, &s.CreatedAt, &s.ExpiresAt); err != nil {
		return nil, err
	}
	s.Status = shared.UserStatus(status)
	for _, name := range roles {
		s.Roles = append(s.Roles, shared.RoleName(name))
	}
	return &s, nil
}

// GetSession loads a session by id.
func (r *PGRepository) GetSession(ctx context.Context, id string) (*Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, sessionColumns+` WHERE session_id = $1::uuid`, id))
	if err != nil {
		return nil, db.NotFound(err)
	}
	return s, nil
}

// ListSessions returns non-expired sessions, for one user or all when userID
// is empty, newest first.
func (r *PGRepository) ListSessions(ctx context.Context, userID string, now time.Time) ([]Session, error) {
	rows, err := r.pool.Query(ctx, sessionColumns+`
		WHERE expires_at > $1 AND ($2 = '' OR user_id = NULLIF($2, '')::uuid)
		ORDER BY created_at DESC, session_id DESC`, now, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// DeleteExpired removes sessions past their expiry.
func (r *PGRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// InsertSession persists a new login session.
func (t *pgTx) InsertSession(ctx context.Context, s Session) error {
	roles := make([]string, 0, len(s.Roles))
	for _, r := range s.Roles {
		roles = append(roles, string(r))
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO sessions (session_id, user_id, username, status, roles, ip_address, user_agent, created_at, expires_at)
		VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, $7, $8, $9)`,
		s.SessionID, s.UserID, s.Username, string(s.Status), roles, s.IPAddress, s.UserAgent, s.CreatedAt, s.ExpiresAt)
	return err
}

// LockSession loads a session row FOR UPDATE.
func (t *pgTx) LockSession(ctx context.Context, id string) (*Session, error) {
	s, err := scanSession(t.tx.QueryRow(ctx, sessionColumns+` WHERE session_id = $1::uuid FOR UPDATE`, id))
	if err != nil {
		return nil, db.NotFound(err)
	}
	return s, nil
}

// DeleteSession removes a session record.
func (t *pgTx) DeleteSession(ctx context.Context, id string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1::uuid`, id)
	return err
}
