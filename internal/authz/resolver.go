package authz

import (
	"context"
	"errors"
	"log/slog"
)

// Decision outcomes reported to the DecisionSink.
const (
	OutcomeAllowed       = "allowed"
	OutcomeDenied        = "denied"
	OutcomeOverride      = "override"
	OutcomeCatalogMiss   = "catalog_miss"
	OutcomeStorageFailed = "storage_failed"
)

// DecisionSink receives the outcome of each resolution, typically a
// metrics counter. A nil sink is valid.
type DecisionSink interface {
	AuthzDecision(outcome string)
}

// Resolver computes the effective allow/deny decision for a user and a
// permission. It is a pure read path: no locks, no caches, safe under
// unbounded concurrent use. Every failure collapses to deny; "not
// granted" is a normal false, never an error.
type Resolver struct {
	store  Store
	logger *slog.Logger
	sink   DecisionSink
}

// NewResolver constructs a Resolver. logger must not be nil; sink may be.
func NewResolver(store Store, logger *slog.Logger, sink DecisionSink) *Resolver {
	return &Resolver{store: store, logger: logger, sink: sink}
}

// Resolve returns whether userID may exercise the permission named by
// permKey. Precedence: catalog existence, then per-user override, then
// OR across the user's active roles, then default deny.
func (r *Resolver) Resolve(ctx context.Context, userID int64, permKey string) bool {
	perm, err := r.store.GetPermissionByKey(ctx, permKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			r.logger.Warn("authz: permission not in active catalog",
				slog.String("permission", permKey), slog.Int64("user", userID))
			r.record(OutcomeCatalogMiss)
			return false
		}
		return r.failClosed("permission lookup", permKey, err)
	}

	allowed, present, err := r.store.UserOverrideFor(ctx, userID, perm.ID)
	if err != nil {
		return r.failClosed("override lookup", permKey, err)
	}
	if present {
		// Explicit per-user decision beats every role grant, in both
		// directions.
		r.record(OutcomeOverride)
		return allowed
	}

	roleIDs, err := r.store.ActiveUserRoles(ctx, userID)
	if err != nil {
		return r.failClosed("role lookup", permKey, err)
	}
	if len(roleIDs) == 0 {
		r.record(OutcomeDenied)
		return false
	}

	granted, err := r.store.AnyRoleGrants(ctx, roleIDs, perm.ID)
	if err != nil {
		return r.failClosed("grant lookup", permKey, err)
	}
	if granted {
		r.record(OutcomeAllowed)
		return true
	}
	r.record(OutcomeDenied)
	return false
}

// ResolveAction derives the permission key from a page key and action
// before resolving. An action outside the vocabulary denies.
func (r *Resolver) ResolveAction(ctx context.Context, userID int64, pageKey string, action Action) bool {
	if !action.Valid() {
		r.logger.Warn("authz: unknown action", slog.String("action", string(action)), slog.String("page", pageKey))
		r.record(OutcomeCatalogMiss)
		return false
	}
	return r.Resolve(ctx, userID, PermissionKey(pageKey, action))
}

// EffectivePermissions returns the set of permission keys userID may
// exercise right now: role grants minus denying overrides plus allowing
// overrides, limited to the active catalog. Storage failure yields an
// empty set.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID int64) (map[string]struct{}, error) {
	perms, err := r.store.ListActivePermissions(ctx)
	if err != nil {
		r.logger.Error("authz: effective permissions", slog.Any("error", err))
		return nil, err
	}
	overrides, err := r.store.UserOverrides(ctx, userID)
	if err != nil {
		r.logger.Error("authz: effective permissions", slog.Any("error", err))
		return nil, err
	}
	roleIDs, err := r.store.ActiveUserRoles(ctx, userID)
	if err != nil {
		r.logger.Error("authz: effective permissions", slog.Any("error", err))
		return nil, err
	}
	granted := map[int64]struct{}{}
	if len(roleIDs) > 0 {
		granted, err = r.store.GrantSetForRoles(ctx, roleIDs)
		if err != nil {
			r.logger.Error("authz: effective permissions", slog.Any("error", err))
			return nil, err
		}
	}

	effective := make(map[string]struct{})
	for _, perm := range perms {
		if allowed, present := overrides[perm.ID]; present {
			if allowed {
				effective[perm.Key] = struct{}{}
			}
			continue
		}
		if _, ok := granted[perm.ID]; ok {
			effective[perm.Key] = struct{}{}
		}
	}
	return effective, nil
}

func (r *Resolver) failClosed(step, permKey string, err error) bool {
	r.logger.Error("authz: "+step+" failed, denying",
		slog.String("permission", permKey), slog.Any("error", err))
	r.record(OutcomeStorageFailed)
	return false
}

func (r *Resolver) record(outcome string) {
	if r.sink != nil {
		r.sink.AuthzDecision(outcome)
	}
}
