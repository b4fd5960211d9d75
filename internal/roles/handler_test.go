package roles

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/pelita-foundation/pelita/internal/authz"
	"github.com/pelita-foundation/pelita/internal/shared"
	"github.com/pelita-foundation/pelita/internal/view"
	_ "github.com/pelita-foundation/pelita/testing"
)

// allowAllCatalog satisfies authz.Store with an override that grants
// every permission, so guards pass and the handler logic is what the
// test exercises.
type allowAllCatalog struct {
	repo *memoryRoleRepo
}

func (c *allowAllCatalog) ListPages(context.Context) ([]authz.Page, error) { return nil, nil }
func (c *allowAllCatalog) ListPagePermissions(context.Context, int64) ([]authz.Permission, error) {
	return nil, nil
}
func (c *allowAllCatalog) GetPermissionByKey(_ context.Context, key string) (authz.Permission, error) {
	return authz.Permission{ID: 1, Key: key, IsActive: true}, nil
}
func (c *allowAllCatalog) ListActivePermissions(context.Context) ([]authz.Permission, error) {
	return nil, nil
}
func (c *allowAllCatalog) KnownPermissionIDs(_ context.Context, ids []int64) (map[int64]struct{}, error) {
	known := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}
	return known, nil
}
func (c *allowAllCatalog) ListRoles(context.Context) ([]authz.Role, error) { return nil, nil }
func (c *allowAllCatalog) GetRole(_ context.Context, id int64) (authz.Role, error) {
	role, ok := c.repo.roles[id]
	if !ok {
		return authz.Role{}, authz.ErrNotFound
	}
	return role, nil
}
func (c *allowAllCatalog) ActiveRoleIDs(context.Context, []int64) (map[int64]struct{}, error) {
	return nil, nil
}
func (c *allowAllCatalog) RoleGrantSet(context.Context, int64) (map[int64]struct{}, error) {
	return nil, nil
}
func (c *allowAllCatalog) AnyRoleGrants(context.Context, []int64, int64) (bool, error) {
	return false, nil
}
func (c *allowAllCatalog) GrantSetForRoles(context.Context, []int64) (map[int64]struct{}, error) {
	return nil, nil
}
func (c *allowAllCatalog) UserExists(context.Context, int64) (bool, error) { return true, nil }
func (c *allowAllCatalog) ActiveUserRoles(context.Context, int64) ([]int64, error) {
	return nil, nil
}
func (c *allowAllCatalog) UserOverrides(context.Context, int64) (map[int64]bool, error) {
	return nil, nil
}
func (c *allowAllCatalog) UserOverrideFor(context.Context, int64, int64) (bool, bool, error) {
	return true, true, nil
}
func (c *allowAllCatalog) WithTx(ctx context.Context, fn func(context.Context, authz.TxStore) error) error {
	return fn(ctx, nil)
}

func rolesFixture(t *testing.T) (http.Handler, *memoryRoleRepo) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := newMemoryRoleRepo()
	catalog := &allowAllCatalog{repo: repo}
	resolver := authz.NewResolver(catalog, logger, nil)
	guard := authz.Middleware{Resolver: resolver, Logger: logger}
	templates, err := view.NewEngine()
	require.NoError(t, err)
	handler := NewHandler(logger, NewService(repo), templates, shared.NewCSRFManager("test-secret"), guard, catalog, nil)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess := &shared.Session{ID: "test-session"}
			sess.SetUser("7")
			next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		})
	})
	r.Route("/settings/roles", handler.MountRoutes)
	return r, repo
}

func TestShowEditFormRendersRole(t *testing.T) {
	router, repo := rolesFixture(t)
	role, err := repo.CreateRole(context.Background(), "Mentor", "Pendamping desa")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/settings/roles/"+strconv.FormatInt(role.ID, 10)+"/edit", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Mentor")
	require.Contains(t, rec.Body.String(), "Ubah Peran")
}

func TestUpdateRoleRenames(t *testing.T) {
	router, repo := rolesFixture(t)
	role, err := repo.CreateRole(context.Background(), "Mentor", "")
	require.NoError(t, err)

	form := url.Values{"name": {"Mentor Lapangan"}, "description": {"Pendamping desa"}}
	req := httptest.NewRequest(http.MethodPost, "/settings/roles/"+strconv.FormatInt(role.ID, 10), strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/settings/roles", rec.Header().Get("Location"))
	require.Equal(t, "Mentor Lapangan", repo.roles[role.ID].Name)
	require.Equal(t, "Pendamping desa", repo.roles[role.ID].Description)
}

func TestUpdateRoleRejectsDuplicateName(t *testing.T) {
	router, repo := rolesFixture(t)
	_, err := repo.CreateRole(context.Background(), "Keuangan", "")
	require.NoError(t, err)
	role, err := repo.CreateRole(context.Background(), "Mentor", "")
	require.NoError(t, err)

	form := url.Values{"name": {"Keuangan"}}
	req := httptest.NewRequest(http.MethodPost, "/settings/roles/"+strconv.FormatInt(role.ID, 10), strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "Nama peran sudah dipakai")
	require.Equal(t, "Mentor", repo.roles[role.ID].Name)
}

func TestUpdateRoleUnknownID(t *testing.T) {
	router, _ := rolesFixture(t)

	form := url.Values{"name": {"Apapun"}}
	req := httptest.NewRequest(http.MethodPost, "/settings/roles/999", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
