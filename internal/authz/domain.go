package authz

import (
	"fmt"
	"time"
)

// Action is one of the four fixed operations a page can expose. The
// vocabulary is closed; extending it is a catalog migration, never a
// runtime call.
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Actions lists the full vocabulary in display order.
func Actions() []Action {
	return []Action{ActionView, ActionCreate, ActionUpdate, ActionDelete}
}

// Valid reports whether a is part of the closed vocabulary.
func (a Action) Valid() bool {
	switch a {
	case ActionView, ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// ParseAction normalises raw input into an Action.
func ParseAction(raw string) (Action, error) {
	a := Action(raw)
	if !a.Valid() {
		return "", fmt.Errorf("authz: unknown action %q", raw)
	}
	return a, nil
}

// Page is a protectable area of the application. Inactive pages are
// invisible to authorization but their rows are retained for audit.
type Page struct {
	ID        int64
	Key       string
	Name      string
	RoutePath string
	Section   string
	SortOrder int
	IsActive  bool
}

// Permission is one (page, action) pair, the atomic unit of authorization.
type Permission struct {
	ID       int64
	Key      string
	PageID   int64
	Action   Action
	IsActive bool
}

// PermissionKey derives the canonical permission key for a page and action.
func PermissionKey(pageKey string, action Action) string {
	return pageKey + "." + string(action)
}

// Role is an administrator-defined bundle of permission grants.
type Role struct {
	ID          int64
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Grant is one entry of a role's grant matrix as submitted by an admin.
type Grant struct {
	PermissionID int64
	Allowed      bool
}

// OverrideUpdate is one explicit per-user decision to upsert.
type OverrideUpdate struct {
	PermissionID int64
	Allowed      bool
}

// Override is a stored per-user decision. Its presence, regardless of
// Allowed, beats every role grant.
type Override struct {
	UserID       int64
	PermissionID int64
	Allowed      bool
	AssignedAt   time.Time
}

// MutationResult reports the effect of a bulk-replace mutation.
type MutationResult struct {
	RowsAffected int64
}

// OverrideItemResult is the per-permission outcome of an override batch.
type OverrideItemResult struct {
	PermissionID int64
	Applied      bool
}

// OverrideResult reports per-item outcomes; the batch commits atomically,
// so either every item applied or none did.
type OverrideResult struct {
	Items []OverrideItemResult
}
