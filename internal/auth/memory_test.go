package auth

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/autoservis/autoservis/internal/audit"
	"github.com/autoservis/autoservis/internal/shared"
)

type memoryRepo struct {
	mu        sync.Mutex
	users     map[string]*User
	sessions  map[string]Session
	facts     []audit.Fact
	failAudit bool
}

func newMemoryRepo(users ...*User) *memoryRepo {
	repo := &memoryRepo{users: make(map[string]*User), sessions: make(map[string]Session)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (m *memoryRepo) FindByUsername(_ context.Context, username string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memoryRepo) FindUser(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memoryRepo) GetSession(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &s, nil
}

func (m *memoryRepo) ListSessions(_ context.Context, userID string, now time.Time) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for _, s := range m.sessions {
		if !s.ExpiresAt.After(now) {
			continue
		}
		if userID != "" && s.UserID != userID {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SessionID > out[j].SessionID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *memoryRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if !s.ExpiresAt.After(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessions := make(map[string]Session, len(m.sessions))
	for k, v := range m.sessions {
		sessions[k] = v
	}
	facts := append([]audit.Fact(nil), m.facts...)
	if err := fn(ctx, &memoryTx{repo: m}); err != nil {
		m.sessions = sessions
		m.facts = facts
		return err
	}
	return nil
}

func (m *memoryRepo) factCount(table string, action audit.Action) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, f := range m.facts {
		if f.TableName == table && f.ActionType == action {
			n++
		}
	}
	return n
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) InsertFact(_ context.Context, fact audit.Fact) (audit.Fact, error) {
	if t.repo.failAudit {
		return audit.Fact{}, errors.New("audit store unavailable")
	}
	fact.LogID = int64(len(t.repo.facts) + 1)
	fact.Timestamp = time.Now()
	t.repo.facts = append(t.repo.facts, fact)
	return fact, nil
}

func (t *memoryTx) InsertSession(_ context.Context, s Session) error {
	t.repo.sessions[s.SessionID] = s
	return nil
}

func (t *memoryTx) LockSession(_ context.Context, id string) (*Session, error) {
	s, ok := t.repo.sessions[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &s, nil
}

func (t *memoryTx) DeleteSession(_ context.Context, id string) error {
	delete(t.repo.sessions, id)
	return nil
}
