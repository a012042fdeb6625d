package users

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/autoservis/autoservis/internal/audit"
	"github.com/autoservis/autoservis/internal/shared"
)

type storedUser struct {
	user User
	hash string
}

type memoryRepo struct {
	mu        sync.Mutex
	users     map[string]storedUser
	facts     []audit.Fact
	failAudit bool
}

func newMemoryRepo(users ...User) *memoryRepo {
	m := &memoryRepo{users: make(map[string]storedUser)}
	for _, u := range users {
		m.users[u.ID] = storedUser{user: u}
	}
	return m
}

func (m *memoryRepo) List(_ context.Context) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]User, 0, len(m.users))
	for _, s := range m.users {
		out = append(out, s.user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *memoryRepo) Get(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	u := s.user
	return &u, nil
}

func (m *memoryRepo) ListActiveWithRoles(_ context.Context, roles []shared.RoleName) ([]Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Contact
	for _, s := range m.users {
		if s.user.Status != shared.UserActive {
			continue
		}
		for _, r := range roles {
			if s.user.HasRole(r) {
				out = append(out, Contact{UserID: s.user.ID, Username: s.user.Username, Email: s.user.Email})
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make(map[string]storedUser, len(m.users))
	for k, v := range m.users {
		users[k] = v
	}
	facts := append([]audit.Fact(nil), m.facts...)
	if err := fn(ctx, &memoryTx{repo: m}); err != nil {
		m.users = users
		m.facts = facts
		return err
	}
	return nil
}

func (m *memoryRepo) factsFor(table string) []audit.Fact {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []audit.Fact
	for _, f := range m.facts {
		if f.TableName == table {
			out = append(out, f)
		}
	}
	return out
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

func (t *memoryTx) Insert(_ context.Context, u User, hash string) error {
	for _, s := range t.repo.users {
		if s.user.Username == u.Username {
			return shared.Conflict("users_username_key")
		}
	}
	u.Roles = nil
	t.repo.users[u.ID] = storedUser{user: u, hash: hash}
	return nil
}

func (t *memoryTx) Lock(_ context.Context, id string) (*User, error) {
	s, ok := t.repo.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	u := s.user
	u.Roles = append([]shared.RoleName(nil), s.user.Roles...)
	return &u, nil
}

func (t *memoryTx) Update(_ context.Context, u User) error {
	s := t.repo.users[u.ID]
	s.user.Email, s.user.Phone, s.user.Status, s.user.Metadata = u.Email, u.Phone, u.Status, u.Metadata
	t.repo.users[u.ID] = s
	return nil
}

func (t *memoryTx) AddRole(_ context.Context, a RoleAssignment) (bool, error) {
	s := t.repo.users[a.UserID]
	if s.user.HasRole(a.RoleName) {
		return false, nil
	}
	s.user.Roles = append(append([]shared.RoleName(nil), s.user.Roles...), a.RoleName)
	t.repo.users[a.UserID] = s
	return true, nil
}

func (t *memoryTx) RemoveRole(_ context.Context, userID string, role shared.RoleName) (bool, error) {
	s := t.repo.users[userID]
	kept := make([]shared.RoleName, 0, len(s.user.Roles))
	for _, r := range s.user.Roles {
		if r != role {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(s.user.Roles) {
		return false, nil
	}
	s.user.Roles = kept
	t.repo.users[userID] = s
	return true, nil
}
