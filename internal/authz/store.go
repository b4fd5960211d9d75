package authz

import "context"

// Store defines the read side consumed by the Resolver plus the
// transaction entry point used by Admin mutations. Catalog lookups only
// ever see active rows; deactivated pages, permissions and roles are
// treated as nonexistent while their rows survive for audit queries.
type Store interface {
	// Catalog.
	ListPages(ctx context.Context) ([]Page, error)
	ListPagePermissions(ctx context.Context, pageID int64) ([]Permission, error)
	GetPermissionByKey(ctx context.Context, key string) (Permission, error)
	ListActivePermissions(ctx context.Context) ([]Permission, error)
	KnownPermissionIDs(ctx context.Context, ids []int64) (map[int64]struct{}, error)

	// Roles.
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	ActiveRoleIDs(ctx context.Context, ids []int64) (map[int64]struct{}, error)
	RoleGrantSet(ctx context.Context, roleID int64) (map[int64]struct{}, error)
	AnyRoleGrants(ctx context.Context, roleIDs []int64, permissionID int64) (bool, error)
	GrantSetForRoles(ctx context.Context, roleIDs []int64) (map[int64]struct{}, error)

	// Assignments.
	UserExists(ctx context.Context, userID int64) (bool, error)
	ActiveUserRoles(ctx context.Context, userID int64) ([]int64, error)
	UserOverrides(ctx context.Context, userID int64) (map[int64]bool, error)
	UserOverrideFor(ctx context.Context, userID, permissionID int64) (allowed, present bool, err error)

	// WithTx runs fn inside one transaction; any error rolls back every
	// write fn performed.
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
}

// TxStore exposes the write operations available inside a transaction.
type TxStore interface {
	DeleteRoleGrants(ctx context.Context, roleID int64) (int64, error)
	InsertRoleGrants(ctx context.Context, roleID int64, grants []Grant) (int64, error)

	DeleteUserRoles(ctx context.Context, userID int64) (int64, error)
	InsertUserRoles(ctx context.Context, userID int64, roleIDs []int64) (int64, error)

	UpsertUserOverride(ctx context.Context, userID int64, update OverrideUpdate) error
	DeleteUserOverride(ctx context.Context, userID, permissionID int64) (int64, error)
}
