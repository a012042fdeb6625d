package users

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/autoservis/autoservis/internal/audit"
	"github.com/autoservis/autoservis/internal/rbac"
	"github.com/autoservis/autoservis/internal/shared"
	_ "github.com/autoservis/autoservis/testing"
)

const (
	ownerID    = "5f0e2b8a-1c44-4d7a-8f0e-000000000001"
	mechanicID = "5f0e2b8a-1c44-4d7a-8f0e-000000000002"
	customerID = "5f0e2b8a-1c44-4d7a-8f0e-000000000003"
	retiredID  = "5f0e2b8a-1c44-4d7a-8f0e-000000000004"
)

func principal(id string, roles ...shared.RoleName) shared.Principal {
	return shared.Principal{UserID: id, Status: shared.UserActive, Roles: shared.NewRoleSet(roles...)}
}

var (
	owner    = principal(ownerID, shared.RoleOwner)
	mechanic = principal(mechanicID, shared.RoleMechanic)
	customer = principal(customerID, shared.RoleCustomer)
)

func seededRepo() *memoryRepo {
	return newMemoryRepo(
		User{ID: ownerID, Username: "owner", Email: "owner@shop.test", Status: shared.UserActive, Roles: []shared.RoleName{shared.RoleOwner}},
		User{ID: mechanicID, Username: "mika", Email: "mika@shop.test", Status: shared.UserActive, Roles: []shared.RoleName{shared.RoleMechanic}},
		User{ID: customerID, Username: "cora", Email: "cora@mail.test", Status: shared.UserActive, Roles: []shared.RoleName{shared.RoleCustomer}},
		User{ID: retiredID, Username: "rex", Email: "rex@shop.test", Status: shared.UserInactive, Roles: []shared.RoleName{shared.RoleMechanic}},
	)
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, audit.NewRecorder(nil), bcrypt.MinCost)
}

func TestListRequiresOwner(t *testing.T) {
	svc := newTestService(seededRepo())
	_, err := svc.List(context.Background(), mechanic)
	require.ErrorIs(t, err, shared.ErrForbidden)

	users, err := svc.List(context.Background(), owner)
	require.NoError(t, err)
	assert.Len(t, users, 4)
}

func TestCreateUserHashesPasswordAndAudits(t *testing.T) {
	repo := seededRepo()
	svc := newTestService(repo)

	user, err := svc.Create(context.Background(), CreateInput{
		Username: "  nina ",
		Email:    "nina@shop.test",
		Password: "secret-pass",
		RoleName: shared.RoleReceptionist,
	}, owner)
	require.NoError(t, err)
	assert.Equal(t, "nina", user.Username)
	assert.Equal(t, shared.UserActive, user.Status)

	stored := repo.users[user.ID]
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.hash), []byte("secret-pass")))
	assert.True(t, stored.user.HasRole(shared.RoleReceptionist))

	facts := repo.factsFor(usersTable)
	require.Len(t, facts, 1)
	assert.Equal(t, audit.ActionInsert, facts[0].ActionType)
	assert.NotContains(t, string(facts[0].NewValue), "secret-pass")
	assert.NotContains(t, string(facts[0].NewValue), stored.hash)
}

func TestCreateUserValidation(t *testing.T) {
	repo := seededRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Username: "x1", Email: "a@b.test", Password: "pw", RoleName: "wizard"}, owner)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, CreateInput{Username: "mika", Email: "a@b.test", Password: "pw"}, owner)
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.Create(ctx, CreateInput{Username: "newbie", Email: "a@b.test", Password: "pw"}, mechanic)
	require.ErrorIs(t, err, shared.ErrForbidden)
	assert.Empty(t, repo.factsFor(usersTable))
}

func TestUpdateSelfIgnoresStatus(t *testing.T) {
	repo := seededRepo()
	svc := newTestService(repo)
	email := "mika@garage.test"
	banned := shared.UserBanned

	user, err := svc.Update(context.Background(), mechanicID, UpdateInput{Email: &email, Status: &banned}, mechanic)
	require.NoError(t, err)
	assert.Equal(t, email, user.Email)
	assert.Equal(t, shared.UserActive, user.Status)
	assert.Equal(t, shared.UserActive, repo.users[mechanicID].user.Status)

	facts := repo.factsFor(usersTable)
	require.Len(t, facts, 1)
	assert.Equal(t, audit.ActionUpdate, facts[0].ActionType)
	assert.Contains(t, string(facts[0].OldValue), "mika@shop.test")
	assert.Contains(t, string(facts[0].NewValue), email)
}

func TestUpdateOthers(t *testing.T) {
	repo := seededRepo()
	svc := newTestService(repo)
	inactive := shared.UserInactive

	_, err := svc.Update(context.Background(), customerID, UpdateInput{Status: &inactive}, mechanic)
	require.ErrorIs(t, err, shared.ErrForbidden)

	user, err := svc.Update(context.Background(), strings.ToUpper(customerID), UpdateInput{Status: &inactive}, owner)
	require.NoError(t, err)
	assert.Equal(t, shared.UserInactive, user.Status)

	_, err = svc.Update(context.Background(), customerID, UpdateInput{Status: &inactive}, owner)
	require.NoError(t, err)
	assert.Len(t, repo.factsFor(usersTable), 1)
}

func TestUpdateRollsBackOnAuditFailure(t *testing.T) {
	repo := seededRepo()
	repo.failAudit = true
	svc := newTestService(repo)
	phone := "+385 1 555 0100"

	_, err := svc.Update(context.Background(), mechanicID, UpdateInput{Phone: &phone}, mechanic)
	require.ErrorIs(t, err, shared.ErrAuditWrite)
	assert.Empty(t, repo.users[mechanicID].user.Phone)
}

func TestRoleAssignment(t *testing.T) {
	repo := seededRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	require.NoError(t, svc.AssignRole(ctx, mechanicID, shared.RoleHeadMechanic, owner))
	require.NoError(t, svc.AssignRole(ctx, mechanicID, shared.RoleHeadMechanic, owner))
	assert.Len(t, repo.factsFor(userRolesTable), 1)
	assert.True(t, repo.users[mechanicID].user.HasRole(shared.RoleHeadMechanic))

	require.NoError(t, svc.RemoveRole(ctx, mechanicID, shared.RoleHeadMechanic, owner))
	err := svc.RemoveRole(ctx, mechanicID, shared.RoleHeadMechanic, owner)
	require.ErrorIs(t, err, shared.ErrNotFound)

	facts := repo.factsFor(userRolesTable)
	require.Len(t, facts, 2)
	assert.Equal(t, audit.ActionDelete, facts[1].ActionType)

	require.ErrorIs(t, svc.AssignRole(ctx, mechanicID, "wizard", owner), shared.ErrValidation)
	require.ErrorIs(t, svc.AssignRole(ctx, mechanicID, shared.RoleOwner, mechanic), shared.ErrForbidden)
	require.ErrorIs(t, svc.AssignRole(ctx, shared.NewID(), shared.RoleOwner, owner), shared.ErrNotFound)
}

func TestLookups(t *testing.T) {
	svc := newTestService(seededRepo())
	ctx := context.Background()

	mechanics, err := svc.Mechanics(ctx)
	require.NoError(t, err)
	names := []string{}
	for _, m := range mechanics {
		names = append(names, m.Username)
	}
	assert.Equal(t, []string{"mika", "owner"}, names)

	customers, err := svc.Customers(ctx, mechanic)
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, "cora", customers[0].Username)

	_, err = svc.Customers(ctx, customer)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestHandlerRoutes(t *testing.T) {
	repo := seededRepo()
	h := NewHandler(nil, newTestService(repo), rbac.Middleware{Authorizer: rbac.NewTable(rbac.DefaultGrants())})

	serve := func(p shared.Principal, method, path, body string) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), p)))
			})
		})
		r.Route("/users", h.MountRoutes)
		h.MountLookupRoutes(r)
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := serve(mechanic, http.MethodGet, "/users", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(owner, http.MethodGet, "/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed, 4)

	rec = serve(owner, http.MethodPost, "/users", `{"username":"ivo","email":"not-an-email","password":"secret-pass"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(owner, http.MethodPost, "/users", `{"username":"ivo","email":"ivo@shop.test","password":"secret-pass","role_name":"accountant"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(mechanic, http.MethodPut, "/users/"+customerID, `{"email":"x@y.test"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(owner, http.MethodDelete, "/users/"+customerID+"/roles/customer", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(customer, http.MethodGet, "/mechanics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
