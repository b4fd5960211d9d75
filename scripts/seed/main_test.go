package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pelita-foundation/pelita/internal/authz"
	"github.com/pelita-foundation/pelita/internal/shared"
	_ "github.com/pelita-foundation/pelita/testing"
)

func catalogKeys(t *testing.T) map[string]struct{} {
	t.Helper()
	keys := make(map[string]struct{})
	for _, page := range pages {
		for _, raw := range page.actions {
			action, err := authz.ParseAction(raw)
			require.NoError(t, err, "page %s declares action %q", page.key, raw)
			keys[authz.PermissionKey(page.key, action)] = struct{}{}
		}
	}
	return keys
}

func TestCatalogCoversGuardScopes(t *testing.T) {
	keys := catalogKeys(t)

	guarded := []string{
		shared.PermBaselineView, shared.PermBaselineCreate,
		shared.PermBaselineUpdate, shared.PermBaselineDelete,
		shared.PermFDPView, shared.PermFDPCreate, shared.PermFDPUpdate,
		shared.PermInterventionsView, shared.PermInterventionsCreate, shared.PermInterventionsUpdate,
		shared.PermROPView, shared.PermROPCreate, shared.PermROPUpdate, shared.PermROPDelete,
		shared.PermBankAccountsView, shared.PermBankAccountsUpdate,
	}
	guarded = append(guarded, shared.SettingsScopes()...)

	for _, key := range guarded {
		_, ok := keys[key]
		require.True(t, ok, "guard scope %s missing from seed catalog", key)
	}
}

func TestCatalogKeysAreUnique(t *testing.T) {
	seen := make(map[string]string)
	for _, page := range pages {
		for _, action := range page.actions {
			key := page.key + "." + action
			if prev, dup := seen[key]; dup {
				t.Fatalf("permission key %s declared by both %s and %s", key, prev, page.key)
			}
			seen[key] = page.key
		}
	}
}
