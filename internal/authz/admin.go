package authz

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/pelita-foundation/pelita/internal/shared"
)

// Admin executes the administrative mutations of the authorization
// engine. Each mutation is fully transactional; a failure anywhere rolls
// back the whole batch. Edits to the same role or the same user are
// serialized, edits to distinct entities run concurrently.
type Admin struct {
	store  Store
	logger *slog.Logger
	audit  shared.AuditRecorder

	roleLocks keyedLocks
	userLocks keyedLocks
}

// NewAdmin constructs an Admin. audit may be nil.
func NewAdmin(store Store, logger *slog.Logger, audit shared.AuditRecorder) *Admin {
	return &Admin{store: store, logger: logger, audit: audit}
}

// ReplaceRolePermissions atomically swaps a role's entire grant matrix.
// Every permission ID must exist in the active catalog; otherwise the
// whole batch is rejected before any write.
func (a *Admin) ReplaceRolePermissions(ctx context.Context, actorID, roleID int64, grants []Grant) (MutationResult, error) {
	unlock := a.roleLocks.lock(roleID)
	defer unlock()

	if _, err := a.store.GetRole(ctx, roleID); err != nil {
		return MutationResult{}, err
	}
	ids := make([]int64, 0, len(grants))
	seen := make(map[int64]struct{}, len(grants))
	for _, g := range grants {
		if _, dup := seen[g.PermissionID]; dup {
			return MutationResult{}, &ValidationError{Entity: "permission", IDs: []int64{g.PermissionID}, Reason: "listed twice"}
		}
		seen[g.PermissionID] = struct{}{}
		ids = append(ids, g.PermissionID)
	}
	if err := a.requireKnownPermissions(ctx, ids); err != nil {
		return MutationResult{}, err
	}

	var affected int64
	err := a.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		deleted, err := tx.DeleteRoleGrants(ctx, roleID)
		if err != nil {
			return err
		}
		inserted, err := tx.InsertRoleGrants(ctx, roleID, grants)
		if err != nil {
			return err
		}
		affected = deleted + inserted
		return nil
	})
	if err != nil {
		return MutationResult{}, err
	}

	a.recordAudit(ctx, actorID, "replace_role_permissions", "role", roleID, map[string]any{"grants": len(grants)})
	return MutationResult{RowsAffected: affected}, nil
}

// ReplaceUserRoles atomically swaps a user's role set. Any unknown or
// inactive role ID rejects the entire batch; no partial role set is ever
// persisted.
func (a *Admin) ReplaceUserRoles(ctx context.Context, actorID, userID int64, roleIDs []int64) (MutationResult, error) {
	unlock := a.userLocks.lock(userID)
	defer unlock()

	if err := a.requireUser(ctx, userID); err != nil {
		return MutationResult{}, err
	}
	seen := make(map[int64]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		if _, dup := seen[id]; dup {
			return MutationResult{}, &ValidationError{Entity: "role", IDs: []int64{id}, Reason: "listed twice"}
		}
		seen[id] = struct{}{}
	}
	if len(roleIDs) > 0 {
		active, err := a.store.ActiveRoleIDs(ctx, roleIDs)
		if err != nil {
			return MutationResult{}, err
		}
		var rejected []int64
		for _, id := range roleIDs {
			if _, ok := active[id]; !ok {
				rejected = append(rejected, id)
			}
		}
		if len(rejected) > 0 {
			return MutationResult{}, &ValidationError{Entity: "role", IDs: rejected, Reason: "unknown or inactive"}
		}
	}

	var affected int64
	err := a.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		deleted, err := tx.DeleteUserRoles(ctx, userID)
		if err != nil {
			return err
		}
		inserted, err := tx.InsertUserRoles(ctx, userID, roleIDs)
		if err != nil {
			return err
		}
		affected = deleted + inserted
		return nil
	})
	if err != nil {
		return MutationResult{}, err
	}

	a.recordAudit(ctx, actorID, "replace_user_roles", "user", userID, map[string]any{"roles": len(roleIDs)})
	return MutationResult{RowsAffected: affected}, nil
}

// SetUserPermissionOverrides upserts explicit per-user decisions. The
// call is additive: overrides not mentioned in updates are left alone.
// All upserts run in one transaction and the result names every
// permission that was applied; silent partial application cannot happen.
func (a *Admin) SetUserPermissionOverrides(ctx context.Context, actorID, userID int64, updates []OverrideUpdate) (OverrideResult, error) {
	unlock := a.userLocks.lock(userID)
	defer unlock()

	if err := a.requireUser(ctx, userID); err != nil {
		return OverrideResult{}, err
	}
	ids := make([]int64, 0, len(updates))
	seen := make(map[int64]struct{}, len(updates))
	for _, u := range updates {
		if _, dup := seen[u.PermissionID]; dup {
			return OverrideResult{}, &ValidationError{Entity: "permission", IDs: []int64{u.PermissionID}, Reason: "listed twice"}
		}
		seen[u.PermissionID] = struct{}{}
		ids = append(ids, u.PermissionID)
	}
	if err := a.requireKnownPermissions(ctx, ids); err != nil {
		return OverrideResult{}, err
	}

	err := a.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		for _, u := range updates {
			if err := tx.UpsertUserOverride(ctx, userID, u); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return OverrideResult{}, err
	}

	result := OverrideResult{Items: make([]OverrideItemResult, 0, len(updates))}
	for _, u := range updates {
		result.Items = append(result.Items, OverrideItemResult{PermissionID: u.PermissionID, Applied: true})
	}
	a.recordAudit(ctx, actorID, "set_user_overrides", "user", userID, map[string]any{"overrides": len(updates)})
	return result, nil
}

// ClearUserPermissionOverride removes one explicit decision so the user
// falls back to role resolution for that permission. Removing is a
// distinct operation from setting an override to false.
func (a *Admin) ClearUserPermissionOverride(ctx context.Context, actorID, userID, permissionID int64) (MutationResult, error) {
	unlock := a.userLocks.lock(userID)
	defer unlock()

	if err := a.requireUser(ctx, userID); err != nil {
		return MutationResult{}, err
	}
	var removed int64
	err := a.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		var err error
		removed, err = tx.DeleteUserOverride(ctx, userID, permissionID)
		return err
	})
	if err != nil {
		return MutationResult{}, err
	}
	if removed == 0 {
		return MutationResult{}, ErrNotFound
	}

	a.recordAudit(ctx, actorID, "clear_user_override", "user", userID, map[string]any{"permission_id": permissionID})
	return MutationResult{RowsAffected: removed}, nil
}

func (a *Admin) requireUser(ctx context.Context, userID int64) error {
	exists, err := a.store.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func (a *Admin) requireKnownPermissions(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	known, err := a.store.KnownPermissionIDs(ctx, ids)
	if err != nil {
		return err
	}
	var rejected []int64
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			rejected = append(rejected, id)
		}
	}
	if len(rejected) > 0 {
		return &ValidationError{Entity: "permission", IDs: rejected, Reason: "not in active catalog"}
	}
	return nil
}

func (a *Admin) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if a.audit == nil {
		return
	}
	err := a.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
	if err != nil {
		a.logger.Warn("authz: audit record", slog.Any("error", err))
	}
}

// keyedLocks serializes work per int64 key without blocking other keys.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[int64]*entityLock
}

type entityLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedLocks) lock(id int64) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[int64]*entityLock)
	}
	l, ok := k.locks[id]
	if !ok {
		l = &entityLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
