package authz

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pelita-foundation/pelita/internal/platform/db"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the same query
// helpers serve the read path and transactional writes.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore provides PostgreSQL backed persistence for the authorization
// engine.
type PGStore struct {
	pool *pgxpool.Pool
	db   querier
}

// NewStore constructs a PGStore.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool, db: pool}
}

var _ Store = (*PGStore)(nil)
var _ TxStore = (*PGStore)(nil)

// ListPages returns active pages in section/sort order.
func (s *PGStore) ListPages(ctx context.Context) ([]Page, error) {
	rows, err := s.db.Query(ctx, `SELECT id, key, name, route_path, section, sort_order, is_active
FROM pages WHERE is_active ORDER BY section, sort_order, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var pages []Page
	for rows.Next() {
		var p Page
		if err := rows.Scan(&p.ID, &p.Key, &p.Name, &p.RoutePath, &p.Section, &p.SortOrder, &p.IsActive); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// ListPagePermissions returns the active permissions of one page.
func (s *PGStore) ListPagePermissions(ctx context.Context, pageID int64) ([]Permission, error) {
	rows, err := s.db.Query(ctx, `SELECT id, key, page_id, action, is_active
FROM permissions WHERE page_id = $1 AND is_active ORDER BY id`, pageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// GetPermissionByKey resolves a permission key against the active catalog.
// A permission whose owning page is inactive is treated as nonexistent.
func (s *PGStore) GetPermissionByKey(ctx context.Context, key string) (Permission, error) {
	var p Permission
	err := s.db.QueryRow(ctx, `SELECT pm.id, pm.key, pm.page_id, pm.action, pm.is_active
FROM permissions pm
JOIN pages pg ON pg.id = pm.page_id
WHERE pm.key = $1 AND pm.is_active AND pg.is_active`, key).
		Scan(&p.ID, &p.Key, &p.PageID, &p.Action, &p.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, ErrNotFound
		}
		return Permission{}, err
	}
	return p, nil
}

// ListActivePermissions returns every permission visible to authorization.
func (s *PGStore) ListActivePermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.db.Query(ctx, `SELECT pm.id, pm.key, pm.page_id, pm.action, pm.is_active
FROM permissions pm
JOIN pages pg ON pg.id = pm.page_id
WHERE pm.is_active AND pg.is_active ORDER BY pm.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// KnownPermissionIDs filters ids down to those present in the active catalog.
func (s *PGStore) KnownPermissionIDs(ctx context.Context, ids []int64) (map[int64]struct{}, error) {
	rows, err := s.db.Query(ctx, `SELECT pm.id FROM permissions pm
JOIN pages pg ON pg.id = pm.page_id
WHERE pm.id = ANY($1) AND pm.is_active AND pg.is_active`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDSet(rows)
}

// ListRoles returns all roles including inactive ones for administration.
func (s *PGStore) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, description, is_active, created_at, updated_at
FROM roles ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.IsActive, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches one role by ID.
func (s *PGStore) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := s.db.QueryRow(ctx, `SELECT id, name, description, is_active, created_at, updated_at
FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.Description, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// ActiveRoleIDs filters ids down to roles that exist and are active.
func (s *PGStore) ActiveRoleIDs(ctx context.Context, ids []int64) (map[int64]struct{}, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM roles WHERE id = ANY($1) AND is_active`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDSet(rows)
}

// RoleGrantSet returns the permission IDs a role grants (is_allowed only).
func (s *PGStore) RoleGrantSet(ctx context.Context, roleID int64) (map[int64]struct{}, error) {
	rows, err := s.db.Query(ctx, `SELECT permission_id FROM role_permissions
WHERE role_id = $1 AND is_allowed`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDSet(rows)
}

// AnyRoleGrants reports whether any of roleIDs grants permissionID.
func (s *PGStore) AnyRoleGrants(ctx context.Context, roleIDs []int64, permissionID int64) (bool, error) {
	var granted bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM role_permissions
WHERE role_id = ANY($1) AND permission_id = $2 AND is_allowed)`, roleIDs, permissionID).
		Scan(&granted)
	return granted, err
}

// GrantSetForRoles unions the grant sets of the given roles.
func (s *PGStore) GrantSetForRoles(ctx context.Context, roleIDs []int64) (map[int64]struct{}, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT permission_id FROM role_permissions
WHERE role_id = ANY($1) AND is_allowed`, roleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDSet(rows)
}

// UserExists reports whether the user account exists.
func (s *PGStore) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	return exists, err
}

// ActiveUserRoles returns the IDs of the user's assigned, active roles.
// Deactivated roles are excluded as if never assigned.
func (s *PGStore) ActiveUserRoles(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.Query(ctx, `SELECT ur.role_id FROM user_roles ur
JOIN roles r ON r.id = ur.role_id
WHERE ur.user_id = $1 AND r.is_active ORDER BY ur.role_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UserOverrides returns the user's explicit overrides, keyed by permission.
func (s *PGStore) UserOverrides(ctx context.Context, userID int64) (map[int64]bool, error) {
	rows, err := s.db.Query(ctx, `SELECT permission_id, is_allowed FROM user_permissions
WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	overrides := make(map[int64]bool)
	for rows.Next() {
		var id int64
		var allowed bool
		if err := rows.Scan(&id, &allowed); err != nil {
			return nil, err
		}
		overrides[id] = allowed
	}
	return overrides, rows.Err()
}

// UserOverrideFor looks up one override; present distinguishes an explicit
// false from the absence of a row.
func (s *PGStore) UserOverrideFor(ctx context.Context, userID, permissionID int64) (bool, bool, error) {
	var allowed bool
	err := s.db.QueryRow(ctx, `SELECT is_allowed FROM user_permissions
WHERE user_id = $1 AND permission_id = $2`, userID, permissionID).Scan(&allowed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, false, nil
		}
		return false, false, err
	}
	return allowed, true, nil
}

// WithTx runs fn inside one RepeatableRead transaction against a
// TxStore bound to it.
func (s *PGStore) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &PGStore{pool: s.pool, db: tx})
	})
}

// DeleteRoleGrants removes the role's entire grant set.
func (s *PGStore) DeleteRoleGrants(ctx context.Context, roleID int64) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// InsertRoleGrants inserts the new grant set for a role.
func (s *PGStore) InsertRoleGrants(ctx context.Context, roleID int64, grants []Grant) (int64, error) {
	var inserted int64
	for _, g := range grants {
		tag, err := s.db.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id, is_allowed, granted_at)
VALUES ($1, $2, $3, NOW())`, roleID, g.PermissionID, g.Allowed)
		if err != nil {
			return inserted, mapConstraintError(err, "permission")
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// DeleteUserRoles removes every role assignment of the user.
func (s *PGStore) DeleteUserRoles(ctx context.Context, userID int64) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// InsertUserRoles inserts the new role set for a user.
func (s *PGStore) InsertUserRoles(ctx context.Context, userID int64, roleIDs []int64) (int64, error) {
	var inserted int64
	for _, roleID := range roleIDs {
		tag, err := s.db.Exec(ctx, `INSERT INTO user_roles (user_id, role_id, assigned_at)
VALUES ($1, $2, NOW())`, userID, roleID)
		if err != nil {
			return inserted, mapConstraintError(err, "role")
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// UpsertUserOverride inserts or updates one explicit per-user decision.
func (s *PGStore) UpsertUserOverride(ctx context.Context, userID int64, update OverrideUpdate) error {
	_, err := s.db.Exec(ctx, `INSERT INTO user_permissions (user_id, permission_id, is_allowed, assigned_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (user_id, permission_id) DO UPDATE SET is_allowed = EXCLUDED.is_allowed, assigned_at = NOW()`,
		userID, update.PermissionID, update.Allowed)
	return mapConstraintError(err, "permission")
}

// DeleteUserOverride removes one override row if present.
func (s *PGStore) DeleteUserOverride(ctx context.Context, userID, permissionID int64) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM user_permissions WHERE user_id = $1 AND permission_id = $2`, userID, permissionID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanPermissions(rows pgx.Rows) ([]Permission, error) {
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Key, &p.PageID, &p.Action, &p.IsActive); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func scanIDSet(rows pgx.Rows) (map[int64]struct{}, error) {
	set := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		set[id] = struct{}{}
	}
	return set, rows.Err()
}

// mapConstraintError converts unique and foreign key violations into
// ValidationError so callers see a payload problem, not a bare SQL error.
func mapConstraintError(err error, entity string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return &ValidationError{Entity: entity, Reason: "duplicate entry"}
		case "23503":
			return &ValidationError{Entity: entity, Reason: "unknown reference"}
		}
	}
	return err
}
