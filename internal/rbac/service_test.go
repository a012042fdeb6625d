package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoservis/autoservis/internal/platform/cache"
	"github.com/autoservis/autoservis/internal/shared"
)

type memoryRepo struct {
	grants []Grant
	roles  map[string]shared.RoleSet
	loads  int32
}

func (m *memoryRepo) LoadGrants(context.Context) ([]Grant, error) {
	atomic.AddInt32(&m.loads, 1)
	out := make([]Grant, len(m.grants))
	copy(out, m.grants)
	return out, nil
}

func (m *memoryRepo) UserRoles(_ context.Context, userID string) (shared.RoleSet, error) {
	return m.roles[userID], nil
}

const (
	ownerID    = "0b7f3a52-6d1e-4c57-9a3c-1f6f1f0e0a01"
	customerID = "0b7f3a52-6d1e-4c57-9a3c-1f6f1f0e0a02"
)

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		grants: DefaultGrants(),
		roles: map[string]shared.RoleSet{
			ownerID:    shared.NewRoleSet(shared.RoleOwner),
			customerID: shared.NewRoleSet(shared.RoleCustomer),
		},
	}
}

func TestAuthorizeDefaults(t *testing.T) {
	table := NewTable(DefaultGrants())
	assert.False(t, table.Allows(shared.NewRoleSet(shared.RoleCustomer), shared.ResourceWorkOrders, shared.ActionCreate))
	assert.True(t, table.Allows(shared.NewRoleSet(shared.RoleReceptionist), shared.ResourceWorkOrders, shared.ActionCreate))
	assert.False(t, table.Allows(shared.NewRoleSet(), shared.ResourceStats, shared.ActionView))
}

func TestAuthorizeIsMonotonicInRoles(t *testing.T) {
	table := NewTable(DefaultGrants())
	all := shared.KnownRoles()
	for _, g := range DefaultGrants() {
		for _, base := range all {
			roles := shared.NewRoleSet(base)
			before := table.Allows(roles, g.Resource, g.Action)
			for _, extra := range all {
				grown := shared.NewRoleSet(base, extra)
				if before {
					assert.True(t, table.Allows(grown, g.Resource, g.Action), "%s+%s lost %s", base, extra, g.Name())
				}
			}
		}
	}
}

func TestOverrides(t *testing.T) {
	owner := shared.NewRoleSet(shared.RoleOwner)
	accountant := shared.NewRoleSet(shared.RoleAccountant)
	mechanic := shared.NewRoleSet(shared.RoleMechanic)

	assert.True(t, Allowed(owner, OpInvoiceMarkPaid))
	assert.True(t, Allowed(accountant, OpInvoiceMarkPaid))
	assert.False(t, Allowed(mechanic, OpInvoiceMarkPaid))
	assert.False(t, Allowed(mechanic, OpWorkOrderSetStatus))
	assert.True(t, Allowed(shared.NewRoleSet(shared.RoleHeadMechanic), OpAuditView))
	assert.False(t, Allowed(owner, Operation("unknown.op")))
}

func TestServiceCachesTableUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := newMemoryRepo()
	svc := NewService(repo, cache.NewVersioned(client, "rbac", time.Minute))

	roles := shared.NewRoleSet(shared.RoleCustomer)
	ok, err := svc.Authorize(ctx, roles, shared.ResourceWorkOrders, shared.ActionCreate)
	require.NoError(t, err)
	assert.False(t, ok)

	repo.grants = append(repo.grants, Grant{Role: shared.RoleCustomer, Capability: Capability{Resource: shared.ResourceWorkOrders, Action: shared.ActionCreate}})
	ok, err = svc.Authorize(ctx, roles, shared.ResourceWorkOrders, shared.ActionCreate)
	require.NoError(t, err)
	assert.False(t, ok, "stale table served from cache")
	assert.Equal(t, int32(1), atomic.LoadInt32(&repo.loads))

	require.NoError(t, svc.Invalidate(ctx))
	ok, err = svc.Authorize(ctx, roles, shared.ResourceWorkOrders, shared.ActionCreate)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestListPermissions(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemoryRepo(), nil)
	customer := shared.Principal{UserID: customerID, Roles: shared.NewRoleSet(shared.RoleCustomer)}
	owner := shared.Principal{UserID: ownerID, Roles: shared.NewRoleSet(shared.RoleOwner)}

	perms, err := svc.ListPermissions(ctx, customerID, customer)
	require.NoError(t, err)
	require.NotEmpty(t, perms)
	for _, p := range perms {
		assert.NotEqual(t, "invoices.create", p.PermissionName)
	}

	_, err = svc.ListPermissions(ctx, ownerID, customer)
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.ListPermissions(ctx, customerID, owner)
	require.NoError(t, err)
}

func TestMiddleware(t *testing.T) {
	mw := Middleware{Authorizer: NewTable(DefaultGrants())}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	handler := mw.RequireCapability(shared.ResourceWorkOrders, shared.ActionCreate)(next)

	cases := []struct {
		name   string
		roles  []shared.RoleName
		anon   bool
		status int
	}{
		{"anonymous", nil, true, http.StatusUnauthorized},
		{"customer", []shared.RoleName{shared.RoleCustomer}, false, http.StatusForbidden},
		{"receptionist", []shared.RoleName{shared.RoleReceptionist}, false, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/work-orders", nil)
			if !tc.anon {
				p := shared.Principal{UserID: ownerID, Roles: shared.NewRoleSet(tc.roles...)}
				req = req.WithContext(shared.ContextWithPrincipal(req.Context(), p))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestRequireOverride(t *testing.T) {
	mw := Middleware{}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	handler := mw.RequireOverride(OpAuditView, "audit log is restricted")(next)

	req := httptest.NewRequest(http.MethodGet, "/audit-log", nil)
	p := shared.Principal{UserID: customerID, Roles: shared.NewRoleSet(shared.RoleMechanic)}
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), p))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "audit log is restricted")
}
