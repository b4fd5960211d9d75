package authz

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Fixture: page "baseline" with view/update, page "rop" with delete.
// Role 1 "Mentor" grants baseline.view, explicitly denies baseline.update.
// Role 2 "Editor" grants baseline.update. Role 3 "Admin" grants rop.delete.
func resolverFixture() *memStore {
	store := newMemStore()
	store.addPage(1, "baseline", true)
	store.addPage(2, "rop", true)
	store.addPerm(1, 1, ActionView, true)
	store.addPerm(2, 1, ActionUpdate, true)
	store.addPerm(3, 2, ActionDelete, true)
	store.addRole(1, "Mentor", true)
	store.addRole(2, "Editor", true)
	store.addRole(3, "Admin", true)
	store.grant(1, 1, true)
	store.grant(1, 2, false)
	store.grant(2, 2, true)
	store.grant(3, 3, true)
	return store
}

func TestResolveRoleGrant(t *testing.T) {
	store := resolverFixture()
	store.assign(10, 1)
	r := NewResolver(store, testLogger(), nil)

	if !r.Resolve(context.Background(), 10, "baseline.view") {
		t.Fatalf("expected mentor to view baseline")
	}
	if r.Resolve(context.Background(), 10, "baseline.update") {
		t.Fatalf("explicit false grant must not allow")
	}
	if r.Resolve(context.Background(), 10, "rop.delete") {
		t.Fatalf("absent grant must deny")
	}
}

func TestResolveORAcrossRoles(t *testing.T) {
	store := resolverFixture()
	store.assign(10, 1)
	store.assign(10, 2)
	r := NewResolver(store, testLogger(), nil)

	// Mentor carries is_allowed=false for baseline.update, Editor grants
	// it; roles are additive so the union allows.
	if !r.Resolve(context.Background(), 10, "baseline.update") {
		t.Fatalf("expected OR aggregation across roles to allow")
	}
}

func TestResolveDefaultDeny(t *testing.T) {
	store := resolverFixture()
	store.addUser(11)
	r := NewResolver(store, testLogger(), nil)

	for _, key := range []string{"baseline.view", "baseline.update", "rop.delete"} {
		if r.Resolve(context.Background(), 11, key) {
			t.Fatalf("user without roles must be denied %s", key)
		}
	}
	// Unknown users resolve the same way: no roles, no overrides, deny.
	if r.Resolve(context.Background(), 999, "baseline.view") {
		t.Fatalf("unknown user must be denied")
	}
}

func TestResolveOverrideBeatsRoleGrant(t *testing.T) {
	store := resolverFixture()
	store.assign(10, 3)
	store.override(10, 3, false)
	r := NewResolver(store, testLogger(), nil)

	if r.Resolve(context.Background(), 10, "rop.delete") {
		t.Fatalf("denying override must beat the Admin role grant")
	}
}

func TestResolveOverrideAllowsWithoutRole(t *testing.T) {
	store := resolverFixture()
	store.addUser(12)
	store.override(12, 1, true)
	r := NewResolver(store, testLogger(), nil)

	if !r.Resolve(context.Background(), 12, "baseline.view") {
		t.Fatalf("allowing override must grant without any role")
	}
	if r.Resolve(context.Background(), 12, "baseline.update") {
		t.Fatalf("override covers only its own permission")
	}
}

func TestResolveUnknownKeyDenies(t *testing.T) {
	store := resolverFixture()
	store.assign(10, 1)
	r := NewResolver(store, testLogger(), nil)

	if r.Resolve(context.Background(), 10, "nonexistent.view") {
		t.Fatalf("unknown permission key must deny")
	}
}

func TestResolveInactivePageDenies(t *testing.T) {
	store := resolverFixture()
	store.assign(10, 1)
	store.addPage(1, "baseline", false)
	r := NewResolver(store, testLogger(), nil)

	// The role still grants baseline.view but the page is deactivated.
	if r.Resolve(context.Background(), 10, "baseline.view") {
		t.Fatalf("permissions under a deactivated page must deny")
	}
}

func TestResolveInactiveRoleExcluded(t *testing.T) {
	store := resolverFixture()
	store.assign(10, 1)
	store.addRole(1, "Mentor", false)
	r := NewResolver(store, testLogger(), nil)

	if r.Resolve(context.Background(), 10, "baseline.view") {
		t.Fatalf("deactivated role must not contribute grants")
	}
}

func TestResolveStorageErrorFailsClosed(t *testing.T) {
	store := resolverFixture()
	store.assign(10, 1)
	store.failReads = true
	sink := &captureSink{}
	r := NewResolver(store, testLogger(), sink)

	if r.Resolve(context.Background(), 10, "baseline.view") {
		t.Fatalf("storage failure must deny, not allow")
	}
	require.Contains(t, sink.outcomes, OutcomeStorageFailed)
}

func TestResolveActionDerivesKey(t *testing.T) {
	store := resolverFixture()
	store.assign(10, 1)
	r := NewResolver(store, testLogger(), nil)

	if !r.ResolveAction(context.Background(), 10, "baseline", ActionView) {
		t.Fatalf("expected page+action resolution to allow")
	}
	if r.ResolveAction(context.Background(), 10, "baseline", Action("export")) {
		t.Fatalf("action outside the vocabulary must deny")
	}
}

func TestEffectivePermissions(t *testing.T) {
	store := resolverFixture()
	store.assign(10, 1)
	store.override(10, 1, false) // deny baseline.view despite the grant
	store.override(10, 3, true)  // allow rop.delete without a role
	r := NewResolver(store, testLogger(), nil)

	effective, err := r.EffectivePermissions(context.Background(), 10)
	require.NoError(t, err)
	require.NotContains(t, effective, "baseline.view")
	require.NotContains(t, effective, "baseline.update")
	require.Contains(t, effective, "rop.delete")
}

func TestEffectivePermissionsSkipsInactiveCatalog(t *testing.T) {
	store := resolverFixture()
	store.assign(10, 3)
	store.addPage(2, "rop", false)
	r := NewResolver(store, testLogger(), nil)

	effective, err := r.EffectivePermissions(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, effective)
}

type captureSink struct {
	outcomes []string
}

func (c *captureSink) AuthzDecision(outcome string) {
	c.outcomes = append(c.outcomes, outcome)
}
