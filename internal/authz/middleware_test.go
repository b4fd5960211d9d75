package authz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pelita-foundation/pelita/internal/shared"
)

func sessionContext(ctx context.Context, userID string) context.Context {
	sess := &shared.Session{}
	sess.SetUser(userID)
	return shared.ContextWithSession(ctx, sess)
}

func guardedRequest(t *testing.T, mw func(http.Handler) http.Handler, userID string) *httptest.ResponseRecorder {
	t.Helper()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodGet, "/baseline", nil)
	if userID != "" {
		req = req.WithContext(sessionContext(req.Context(), userID))
	}
	res := httptest.NewRecorder()
	mw(next).ServeHTTP(res, req)
	return res
}

func TestMiddlewareRequire(t *testing.T) {
	store := resolverFixture()
	store.assign(10, 1)
	guard := Middleware{Resolver: NewResolver(store, testLogger(), nil), Logger: testLogger()}

	res := guardedRequest(t, guard.Require("baseline.view"), "10")
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", res.Code)
	}

	res = guardedRequest(t, guard.Require("rop.delete"), "10")
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", res.Code)
	}

	// Any-of semantics: one allowed key suffices.
	res = guardedRequest(t, guard.Require("rop.delete", "baseline.view"), "10")
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected any-of pass, got %d", res.Code)
	}
}

func TestMiddlewareRequireAll(t *testing.T) {
	store := resolverFixture()
	store.assign(10, 1)
	store.assign(10, 2)
	guard := Middleware{Resolver: NewResolver(store, testLogger(), nil), Logger: testLogger()}

	res := guardedRequest(t, guard.RequireAll("baseline.view", "baseline.update"), "10")
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected pass, got %d", res.Code)
	}

	res = guardedRequest(t, guard.RequireAll("baseline.view", "rop.delete"), "10")
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", res.Code)
	}
}

func TestMiddlewareWithoutSession(t *testing.T) {
	store := resolverFixture()
	guard := Middleware{Resolver: NewResolver(store, testLogger(), nil), Logger: testLogger()}

	res := guardedRequest(t, guard.Require("baseline.view"), "")
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without session, got %d", res.Code)
	}
}

func TestMiddlewareSeesFreshDecisions(t *testing.T) {
	store := resolverFixture()
	store.assign(10, 1)
	guard := Middleware{Resolver: NewResolver(store, testLogger(), nil), Logger: testLogger()}
	admin := NewAdmin(store, testLogger(), nil)

	res := guardedRequest(t, guard.Require("baseline.view"), "10")
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected pass before edit, got %d", res.Code)
	}

	// An override written between requests must flip the very next one.
	if _, err := admin.SetUserPermissionOverrides(context.Background(), 1, 10, []OverrideUpdate{{PermissionID: 1, Allowed: false}}); err != nil {
		t.Fatalf("set override: %v", err)
	}
	res = guardedRequest(t, guard.Require("baseline.view"), "10")
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 after override, got %d", res.Code)
	}
}
