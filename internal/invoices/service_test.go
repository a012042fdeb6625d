package invoices

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoservis/autoservis/internal/audit"
	"github.com/autoservis/autoservis/internal/rbac"
	"github.com/autoservis/autoservis/internal/shared"
	_ "github.com/autoservis/autoservis/testing"
)

type memoryRepo struct {
	mu        sync.Mutex
	orders    map[string]OrderSnapshot
	invoices  map[string]Invoice
	seq       int64
	facts     []audit.Fact
	failAudit bool
}

func (m *memoryRepo) List(_ context.Context, filter ListFilter) ([]Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Invoice
	for _, inv := range m.invoices {
		if filter.All || (filter.CustomerID != "" && inv.CustomerID == filter.CustomerID) {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvoiceNumber > out[j].InvoiceNumber })
	return out, nil
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	invoices := make(map[string]Invoice, len(m.invoices))
	for k, v := range m.invoices {
		invoices[k] = v
	}
	facts := append([]audit.Fact(nil), m.facts...)
	if err := fn(ctx, m); err != nil {
		m.invoices, m.facts = invoices, facts
		return err
	}
	return nil
}

func (m *memoryRepo) InsertFact(_ context.Context, fact audit.Fact) (audit.Fact, error) {
	if m.failAudit {
		return audit.Fact{}, errors.New("audit store unavailable")
	}
	fact.LogID = int64(len(m.facts) + 1)
	m.facts = append(m.facts, fact)
	return fact, nil
}

func (m *memoryRepo) LockWorkOrder(_ context.Context, id string) (*OrderSnapshot, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &o, nil
}

func (m *memoryRepo) HasOpenInvoice(_ context.Context, id string) (bool, error) {
	for _, inv := range m.invoices {
		if inv.WorkOrderID == id && inv.Status != StatusCancelled {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRepo) NextSequence(context.Context) (int64, error) {
	m.seq++
	return m.seq, nil
}

func (m *memoryRepo) Insert(_ context.Context, inv Invoice) error {
	m.invoices[inv.InvoiceID] = inv
	return nil
}

func (m *memoryRepo) Lock(_ context.Context, id string) (*Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &inv, nil
}

func (m *memoryRepo) Update(_ context.Context, inv Invoice) error {
	m.invoices[inv.InvoiceID] = inv
	return nil
}

func (m *memoryRepo) factsFor(action audit.Action) []audit.Fact {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []audit.Fact
	for _, f := range m.facts {
		if f.ActionType == action {
			out = append(out, f)
		}
	}
	return out
}

const (
	customerID = "7e3f0c11-2b9a-4d6e-8c50-000000000001"
	strangerID = "7e3f0c11-2b9a-4d6e-8c50-000000000002"
	doneOrder  = "7e3f0c11-2b9a-4d6e-8c50-0000000000a1"
	openOrder  = "7e3f0c11-2b9a-4d6e-8c50-0000000000a2"
	freeOrder  = "7e3f0c11-2b9a-4d6e-8c50-0000000000a3"
	otherOrder = "7e3f0c11-2b9a-4d6e-8c50-0000000000a4"
)

var (
	accountant   = shared.Principal{UserID: "7e3f0c11-2b9a-4d6e-8c50-000000000010", Roles: shared.NewRoleSet(shared.RoleAccountant)}
	receptionist = shared.Principal{UserID: "7e3f0c11-2b9a-4d6e-8c50-000000000011", Roles: shared.NewRoleSet(shared.RoleReceptionist)}
	mechanic     = shared.Principal{UserID: "7e3f0c11-2b9a-4d6e-8c50-000000000012", Roles: shared.NewRoleSet(shared.RoleMechanic)}
	customer     = shared.Principal{UserID: customerID, Roles: shared.NewRoleSet(shared.RoleCustomer)}
	stranger     = shared.Principal{UserID: strangerID, Roles: shared.NewRoleSet(shared.RoleCustomer)}
)

type fixture struct {
	repo *memoryRepo
	svc  *Service
	now  time.Time
}

func newFixture() *fixture {
	repo := &memoryRepo{
		orders: map[string]OrderSnapshot{
			doneOrder: {WorkOrderID: doneOrder, CustomerID: customerID, Status: "completed",
				EstimatedCost: decimal.NewNullDecimal(decimal.NewFromInt(80)),
				ActualCost:    decimal.NewNullDecimal(decimal.RequireFromString("99.99"))},
			openOrder: {WorkOrderID: openOrder, CustomerID: customerID, Status: "in_progress",
				EstimatedCost: decimal.NewNullDecimal(decimal.NewFromInt(50))},
			freeOrder: {WorkOrderID: freeOrder, CustomerID: customerID, Status: "completed"},
			otherOrder: {WorkOrderID: otherOrder, CustomerID: strangerID, Status: "completed",
				EstimatedCost: decimal.NewNullDecimal(decimal.NewFromInt(200))},
		},
		invoices: make(map[string]Invoice),
	}
	f := &fixture{repo: repo, now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	f.svc = NewService(repo, audit.NewRecorder(nil))
	f.svc.clock = func() time.Time { return f.now }
	return f
}

func (f *fixture) issued(t *testing.T, workOrderID string) *Invoice {
	t.Helper()
	ctx := context.Background()
	inv, err := f.svc.Create(ctx, CreateInput{WorkOrderID: workOrderID}, accountant)
	require.NoError(t, err)
	inv, err = f.svc.Issue(ctx, inv.InvoiceID, accountant)
	require.NoError(t, err)
	return inv
}

func TestAmounts(t *testing.T) {
	base, tax, total := Amounts(decimal.NewFromInt(100))
	assert.Equal(t, "100.00", base.StringFixed(2))
	assert.Equal(t, "25.00", tax.StringFixed(2))
	assert.Equal(t, "125.00", total.StringFixed(2))

	base, tax, total = Amounts(decimal.RequireFromString("99.99"))
	assert.Equal(t, "99.99", base.StringFixed(2))
	assert.Equal(t, "25.00", tax.StringFixed(2))
	assert.Equal(t, "124.99", total.StringFixed(2))
}

func TestDaysOverdue(t *testing.T) {
	now := time.Date(2026, 3, 30, 9, 0, 0, 0, time.UTC)
	ago := func(d time.Duration) *time.Time {
		at := now.Add(-d)
		return &at
	}
	day := 24 * time.Hour
	assert.Equal(t, 5, DaysOverdue(StatusIssued, ago(20*day), now))
	assert.Equal(t, 0, DaysOverdue(StatusIssued, ago(15*day), now))
	assert.Equal(t, 0, DaysOverdue(StatusIssued, ago(15*day-time.Nanosecond), now))
	assert.Equal(t, 1, DaysOverdue(StatusIssued, ago(16*day+23*time.Hour), now))
	assert.Equal(t, 0, DaysOverdue(StatusPaid, ago(20*day), now))
	assert.Equal(t, 0, DaysOverdue(StatusDraft, nil, now))
}

func TestNumber(t *testing.T) {
	assert.Equal(t, "INV-2026-000042", Number(2026, 42))
}

func TestCreateBillsActualCost(t *testing.T) {
	f := newFixture()
	inv, err := f.svc.Create(context.Background(), CreateInput{WorkOrderID: strings.ToUpper(doneOrder)}, accountant)
	require.NoError(t, err)

	assert.Equal(t, "INV-2026-000001", inv.InvoiceNumber)
	assert.Equal(t, StatusDraft, inv.Status)
	assert.Equal(t, string(StatusDraft), inv.DisplayStatus)
	assert.Equal(t, doneOrder, inv.WorkOrderID)
	assert.Equal(t, customerID, inv.CustomerID)
	assert.Equal(t, "99.99", inv.BaseAmount.StringFixed(2))
	assert.Equal(t, "124.99", inv.TotalAmount.StringFixed(2))
	assert.Nil(t, inv.IssuedAt)

	facts := f.repo.factsFor(audit.ActionInsert)
	require.Len(t, facts, 1)
	assert.Equal(t, invoicesTable, facts[0].TableName)
	assert.Equal(t, inv.InvoiceID, facts[0].RecordID)
}

func TestCreateRejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateInput{WorkOrderID: openOrder}, accountant)
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.svc.Create(ctx, CreateInput{WorkOrderID: freeOrder}, accountant)
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.svc.Create(ctx, CreateInput{WorkOrderID: shared.NewID()}, accountant)
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.svc.Create(ctx, CreateInput{WorkOrderID: "wo-1"}, accountant)
	assert.ErrorIs(t, err, shared.ErrValidation)

	first, err := f.svc.Create(ctx, CreateInput{WorkOrderID: doneOrder}, accountant)
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, CreateInput{WorkOrderID: doneOrder}, receptionist)
	assert.ErrorIs(t, err, shared.ErrConflict)

	_, err = f.svc.Cancel(ctx, first.InvoiceID, accountant)
	require.NoError(t, err)
	again, err := f.svc.Create(ctx, CreateInput{WorkOrderID: doneOrder}, accountant)
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-000002", again.InvoiceNumber)
}

func TestMarkPaidTwiceRecordsOneFact(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	inv := f.issued(t, doneOrder)

	f.now = f.now.Add(3 * 24 * time.Hour)
	paid, err := f.svc.MarkPaid(ctx, inv.InvoiceID, accountant)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	assert.Equal(t, f.now, *paid.PaidAt)
	assert.Equal(t, 0, paid.DaysOverdue)

	_, err = f.svc.MarkPaid(ctx, inv.InvoiceID, accountant)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	updates := f.repo.factsFor(audit.ActionUpdate)
	require.Len(t, updates, 2)
	var old, next state
	require.NoError(t, json.Unmarshal(updates[1].OldValue, &old))
	require.NoError(t, json.Unmarshal(updates[1].NewValue, &next))
	assert.Equal(t, StatusIssued, old.Status)
	assert.Equal(t, StatusPaid, next.Status)
}

func TestLifecycleRejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	draft, err := f.svc.Create(ctx, CreateInput{WorkOrderID: doneOrder}, accountant)
	require.NoError(t, err)

	_, err = f.svc.MarkPaid(ctx, draft.InvoiceID, accountant)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = f.svc.MarkPaid(ctx, draft.InvoiceID, receptionist)
	assert.ErrorIs(t, err, shared.ErrForbidden)
	_, err = f.svc.Issue(ctx, shared.NewID(), accountant)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.svc.Issue(ctx, draft.InvoiceID, accountant)
	require.NoError(t, err)
	_, err = f.svc.Issue(ctx, draft.InvoiceID, accountant)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = f.svc.MarkPaid(ctx, draft.InvoiceID, accountant)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, draft.InvoiceID, accountant)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestAuditFailureRollsBack(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	inv := f.issued(t, doneOrder)
	f.repo.failAudit = true

	_, err := f.svc.MarkPaid(ctx, inv.InvoiceID, accountant)
	require.ErrorIs(t, err, shared.ErrAuditWrite)
	assert.Equal(t, StatusIssued, f.repo.invoices[inv.InvoiceID].Status)

	_, err = f.svc.Create(ctx, CreateInput{WorkOrderID: otherOrder}, accountant)
	require.ErrorIs(t, err, shared.ErrAuditWrite)
	assert.Len(t, f.repo.invoices, 1)
}

func TestListVisibilityAndOverdue(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.issued(t, doneOrder)
	f.issued(t, otherOrder)
	f.now = f.now.Add(20 * 24 * time.Hour)

	all, err := f.svc.List(ctx, accountant)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, inv := range all {
		assert.Equal(t, 5, inv.DaysOverdue)
		assert.Equal(t, DisplayOverdue, inv.DisplayStatus)
		assert.Equal(t, StatusIssued, inv.Status)
	}

	own, err := f.svc.List(ctx, customer)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, doneOrder, own[0].WorkOrderID)

	none, err := f.svc.List(ctx, mechanic)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestHandlerRoutes(t *testing.T) {
	f := newFixture()
	h := NewHandler(nil, f.svc, rbac.Middleware{Authorizer: rbac.NewTable(rbac.DefaultGrants())})
	serve := func(p shared.Principal, method, path, body string) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), p)))
			})
		})
		r.Route("/invoices", h.MountRoutes)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
		return rec
	}

	assert.Equal(t, http.StatusForbidden, serve(customer, http.MethodPost, "/invoices", `{"work_order_id":"`+doneOrder+`"}`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(receptionist, http.MethodPost, "/invoices", `{}`).Code)
	created := serve(receptionist, http.MethodPost, "/invoices", `{"work_order_id":"`+doneOrder+`"}`)
	require.Equal(t, http.StatusCreated, created.Code)
	var inv Invoice
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &inv))
	assert.Contains(t, created.Body.String(), `"total_amount":"124.99"`)
	base := "/invoices/" + inv.InvoiceID

	assert.Equal(t, http.StatusForbidden, serve(receptionist, http.MethodPut, base+"/issue", "").Code)
	assert.Equal(t, http.StatusOK, serve(accountant, http.MethodPut, base+"/issue", "").Code)
	assert.Equal(t, http.StatusForbidden, serve(receptionist, http.MethodPut, base+"/pay", "").Code)
	assert.Equal(t, http.StatusOK, serve(accountant, http.MethodPut, base+"/pay", "").Code)
	assert.Equal(t, http.StatusConflict, serve(accountant, http.MethodPut, base+"/pay", "").Code)

	listed := serve(stranger, http.MethodGet, "/invoices", "")
	require.Equal(t, http.StatusOK, listed.Code)
	assert.JSONEq(t, `[]`, listed.Body.String())
	assert.Equal(t, http.StatusForbidden, serve(mechanic, http.MethodGet, "/invoices", "").Code)
}
