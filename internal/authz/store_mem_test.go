package authz

import (
	"context"
	"errors"
	"sort"
)

var errStorageDown = errors.New("storage unavailable")

// memStore is an in-memory Store/TxStore double. WithTx operates on a
// deep copy and commits it back only when fn succeeds, so rollback
// behaviour matches a real transaction.
type memStore struct {
	pages      map[int64]Page
	perms      map[int64]Permission
	roles      map[int64]Role
	roleGrants map[int64]map[int64]bool     // roleID -> permissionID -> allowed
	userRoles  map[int64]map[int64]struct{} // userID -> roleIDs
	overrides  map[int64]map[int64]bool     // userID -> permissionID -> allowed
	users      map[int64]struct{}

	failReads       bool
	failInsertAfter int // fail the Nth insert within a tx; 0 disables
	insertCount     int
}

func newMemStore() *memStore {
	return &memStore{
		pages:      make(map[int64]Page),
		perms:      make(map[int64]Permission),
		roles:      make(map[int64]Role),
		roleGrants: make(map[int64]map[int64]bool),
		userRoles:  make(map[int64]map[int64]struct{}),
		overrides:  make(map[int64]map[int64]bool),
		users:      make(map[int64]struct{}),
	}
}

func (m *memStore) addPage(id int64, key string, active bool) {
	m.pages[id] = Page{ID: id, Key: key, Name: key, RoutePath: "/" + key, IsActive: active}
}

func (m *memStore) addPerm(id, pageID int64, action Action, active bool) {
	page := m.pages[pageID]
	m.perms[id] = Permission{ID: id, Key: PermissionKey(page.Key, action), PageID: pageID, Action: action, IsActive: active}
}

func (m *memStore) addRole(id int64, name string, active bool) {
	m.roles[id] = Role{ID: id, Name: name, IsActive: active}
}

func (m *memStore) grant(roleID, permID int64, allowed bool) {
	if m.roleGrants[roleID] == nil {
		m.roleGrants[roleID] = make(map[int64]bool)
	}
	m.roleGrants[roleID][permID] = allowed
}

func (m *memStore) assign(userID, roleID int64) {
	m.users[userID] = struct{}{}
	if m.userRoles[userID] == nil {
		m.userRoles[userID] = make(map[int64]struct{})
	}
	m.userRoles[userID][roleID] = struct{}{}
}

func (m *memStore) addUser(userID int64) {
	m.users[userID] = struct{}{}
}

func (m *memStore) override(userID, permID int64, allowed bool) {
	m.users[userID] = struct{}{}
	if m.overrides[userID] == nil {
		m.overrides[userID] = make(map[int64]bool)
	}
	m.overrides[userID][permID] = allowed
}

func (m *memStore) permActive(id int64) bool {
	perm, ok := m.perms[id]
	if !ok || !perm.IsActive {
		return false
	}
	page, ok := m.pages[perm.PageID]
	return ok && page.IsActive
}

func (m *memStore) ListPages(ctx context.Context) ([]Page, error) {
	if m.failReads {
		return nil, errStorageDown
	}
	var pages []Page
	for _, p := range m.pages {
		if p.IsActive {
			pages = append(pages, p)
		}
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].ID < pages[j].ID })
	return pages, nil
}

func (m *memStore) ListPagePermissions(ctx context.Context, pageID int64) ([]Permission, error) {
	if m.failReads {
		return nil, errStorageDown
	}
	var perms []Permission
	for _, p := range m.perms {
		if p.PageID == pageID && p.IsActive {
			perms = append(perms, p)
		}
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].ID < perms[j].ID })
	return perms, nil
}

func (m *memStore) GetPermissionByKey(ctx context.Context, key string) (Permission, error) {
	if m.failReads {
		return Permission{}, errStorageDown
	}
	for _, p := range m.perms {
		if p.Key == key && m.permActive(p.ID) {
			return p, nil
		}
	}
	return Permission{}, ErrNotFound
}

func (m *memStore) ListActivePermissions(ctx context.Context) ([]Permission, error) {
	if m.failReads {
		return nil, errStorageDown
	}
	var perms []Permission
	for id, p := range m.perms {
		if m.permActive(id) {
			perms = append(perms, p)
		}
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].ID < perms[j].ID })
	return perms, nil
}

func (m *memStore) KnownPermissionIDs(ctx context.Context, ids []int64) (map[int64]struct{}, error) {
	if m.failReads {
		return nil, errStorageDown
	}
	known := make(map[int64]struct{})
	for _, id := range ids {
		if m.permActive(id) {
			known[id] = struct{}{}
		}
	}
	return known, nil
}

func (m *memStore) ListRoles(ctx context.Context) ([]Role, error) {
	if m.failReads {
		return nil, errStorageDown
	}
	var roles []Role
	for _, r := range m.roles {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].ID < roles[j].ID })
	return roles, nil
}

func (m *memStore) GetRole(ctx context.Context, id int64) (Role, error) {
	if m.failReads {
		return Role{}, errStorageDown
	}
	role, ok := m.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return role, nil
}

func (m *memStore) ActiveRoleIDs(ctx context.Context, ids []int64) (map[int64]struct{}, error) {
	if m.failReads {
		return nil, errStorageDown
	}
	active := make(map[int64]struct{})
	for _, id := range ids {
		if role, ok := m.roles[id]; ok && role.IsActive {
			active[id] = struct{}{}
		}
	}
	return active, nil
}

func (m *memStore) RoleGrantSet(ctx context.Context, roleID int64) (map[int64]struct{}, error) {
	if m.failReads {
		return nil, errStorageDown
	}
	set := make(map[int64]struct{})
	for permID, allowed := range m.roleGrants[roleID] {
		if allowed {
			set[permID] = struct{}{}
		}
	}
	return set, nil
}

func (m *memStore) AnyRoleGrants(ctx context.Context, roleIDs []int64, permissionID int64) (bool, error) {
	if m.failReads {
		return false, errStorageDown
	}
	for _, roleID := range roleIDs {
		if m.roleGrants[roleID][permissionID] {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) GrantSetForRoles(ctx context.Context, roleIDs []int64) (map[int64]struct{}, error) {
	if m.failReads {
		return nil, errStorageDown
	}
	set := make(map[int64]struct{})
	for _, roleID := range roleIDs {
		for permID, allowed := range m.roleGrants[roleID] {
			if allowed {
				set[permID] = struct{}{}
			}
		}
	}
	return set, nil
}

func (m *memStore) UserExists(ctx context.Context, userID int64) (bool, error) {
	if m.failReads {
		return false, errStorageDown
	}
	_, ok := m.users[userID]
	return ok, nil
}

func (m *memStore) ActiveUserRoles(ctx context.Context, userID int64) ([]int64, error) {
	if m.failReads {
		return nil, errStorageDown
	}
	var ids []int64
	for roleID := range m.userRoles[userID] {
		if role, ok := m.roles[roleID]; ok && role.IsActive {
			ids = append(ids, roleID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memStore) UserOverrides(ctx context.Context, userID int64) (map[int64]bool, error) {
	if m.failReads {
		return nil, errStorageDown
	}
	out := make(map[int64]bool, len(m.overrides[userID]))
	for permID, allowed := range m.overrides[userID] {
		out[permID] = allowed
	}
	return out, nil
}

func (m *memStore) UserOverrideFor(ctx context.Context, userID, permissionID int64) (bool, bool, error) {
	if m.failReads {
		return false, false, errStorageDown
	}
	allowed, present := m.overrides[userID][permissionID]
	return allowed, present, nil
}

func (m *memStore) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	clone := m.clone()
	clone.insertCount = 0
	if err := fn(ctx, clone); err != nil {
		return err
	}
	m.roleGrants = clone.roleGrants
	m.userRoles = clone.userRoles
	m.overrides = clone.overrides
	return nil
}

func (m *memStore) clone() *memStore {
	c := newMemStore()
	c.pages = m.pages
	c.perms = m.perms
	c.roles = m.roles
	c.users = m.users
	c.failInsertAfter = m.failInsertAfter
	for roleID, grants := range m.roleGrants {
		c.roleGrants[roleID] = make(map[int64]bool, len(grants))
		for k, v := range grants {
			c.roleGrants[roleID][k] = v
		}
	}
	for userID, roles := range m.userRoles {
		c.userRoles[userID] = make(map[int64]struct{}, len(roles))
		for k := range roles {
			c.userRoles[userID][k] = struct{}{}
		}
	}
	for userID, ov := range m.overrides {
		c.overrides[userID] = make(map[int64]bool, len(ov))
		for k, v := range ov {
			c.overrides[userID][k] = v
		}
	}
	return c
}

func (m *memStore) countInsert() error {
	m.insertCount++
	if m.failInsertAfter > 0 && m.insertCount >= m.failInsertAfter {
		return errStorageDown
	}
	return nil
}

func (m *memStore) DeleteRoleGrants(ctx context.Context, roleID int64) (int64, error) {
	deleted := int64(len(m.roleGrants[roleID]))
	delete(m.roleGrants, roleID)
	return deleted, nil
}

func (m *memStore) InsertRoleGrants(ctx context.Context, roleID int64, grants []Grant) (int64, error) {
	var inserted int64
	for _, g := range grants {
		if err := m.countInsert(); err != nil {
			return inserted, err
		}
		m.grant(roleID, g.PermissionID, g.Allowed)
		inserted++
	}
	return inserted, nil
}

func (m *memStore) DeleteUserRoles(ctx context.Context, userID int64) (int64, error) {
	deleted := int64(len(m.userRoles[userID]))
	delete(m.userRoles, userID)
	return deleted, nil
}

func (m *memStore) InsertUserRoles(ctx context.Context, userID int64, roleIDs []int64) (int64, error) {
	var inserted int64
	for _, roleID := range roleIDs {
		if err := m.countInsert(); err != nil {
			return inserted, err
		}
		m.assign(userID, roleID)
		inserted++
	}
	return inserted, nil
}

func (m *memStore) UpsertUserOverride(ctx context.Context, userID int64, update OverrideUpdate) error {
	if err := m.countInsert(); err != nil {
		return err
	}
	m.override(userID, update.PermissionID, update.Allowed)
	return nil
}

func (m *memStore) DeleteUserOverride(ctx context.Context, userID, permissionID int64) (int64, error) {
	if _, ok := m.overrides[userID][permissionID]; !ok {
		return 0, nil
	}
	delete(m.overrides[userID], permissionID)
	return 1, nil
}

var _ Store = (*memStore)(nil)
var _ TxStore = (*memStore)(nil)
