package workorders

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/autoservis/autoservis/internal/audit"
	"github.com/autoservis/autoservis/internal/shared"
)

type memoryUser struct {
	status shared.UserStatus
	roles  shared.RoleSet
}

type memoryRepo struct {
	mu        sync.Mutex
	users     map[string]memoryUser
	vehicles  map[string]string
	orders    map[string]WorkOrder
	logs      []WorkLog
	facts     []audit.Fact
	failAudit bool
	tick      time.Time
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		users:    make(map[string]memoryUser),
		vehicles: make(map[string]string),
		orders:   make(map[string]WorkOrder),
		tick:     time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC),
	}
}

func (m *memoryRepo) List(_ context.Context, filter ListFilter) ([]WorkOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []WorkOrder
	for _, o := range m.orders {
		switch {
		case filter.All:
		case filter.MechanicID != "" && o.MechanicID == filter.MechanicID:
		case filter.CustomerID != "" && o.CustomerID == filter.CustomerID:
		default:
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryRepo) Get(_ context.Context, id string) (*WorkOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &o, nil
}

func (m *memoryRepo) Logs(_ context.Context, id string) ([]WorkLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []WorkLog
	for i := len(m.logs) - 1; i >= 0; i-- {
		if m.logs[i].WorkOrderID == id {
			out = append(out, m.logs[i])
		}
	}
	return out, nil
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	orders := make(map[string]WorkOrder, len(m.orders))
	for k, v := range m.orders {
		orders[k] = v
	}
	logs := append([]WorkLog(nil), m.logs...)
	facts := append([]audit.Fact(nil), m.facts...)
	if err := fn(ctx, &memoryTx{repo: m}); err != nil {
		m.orders, m.logs, m.facts = orders, logs, facts
		return err
	}
	return nil
}

func (m *memoryRepo) snapshotFacts() []audit.Fact {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.Fact(nil), m.facts...)
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) InsertFact(_ context.Context, fact audit.Fact) (audit.Fact, error) {
	if t.repo.failAudit {
		return audit.Fact{}, errors.New("audit store unavailable")
	}
	fact.LogID = int64(len(t.repo.facts) + 1)
	t.repo.facts = append(t.repo.facts, fact)
	return fact, nil
}

func (t *memoryTx) Lock(_ context.Context, id string) (*WorkOrder, error) {
	o, ok := t.repo.orders[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &o, nil
}

func (t *memoryTx) VehicleOwner(_ context.Context, vehicleID string) (string, error) {
	owner, ok := t.repo.vehicles[vehicleID]
	if !ok {
		return "", shared.ErrNotFound
	}
	return owner, nil
}

func (t *memoryTx) MechanicEligible(_ context.Context, userID string, roles []shared.RoleName) (bool, error) {
	u, ok := t.repo.users[userID]
	return ok && u.status == shared.UserActive && u.roles.HasAny(roles...), nil
}

func (t *memoryTx) Insert(_ context.Context, w WorkOrder) error {
	t.repo.orders[w.WorkOrderID] = w
	return nil
}

func (t *memoryTx) Update(_ context.Context, w WorkOrder) error {
	t.repo.orders[w.WorkOrderID] = w
	return nil
}

func (t *memoryTx) InsertLog(_ context.Context, l WorkLog) (WorkLog, error) {
	t.repo.tick = t.repo.tick.Add(time.Second)
	l.LogID = int64(len(t.repo.logs) + 1)
	l.Timestamp = t.repo.tick
	t.repo.logs = append(t.repo.logs, l)
	return l, nil
}
