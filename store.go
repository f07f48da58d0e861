package roleadmin

import (
	"context"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
)

// RoleStore holds role definitions (system and custom) keyed by unique name.
// It performs no business rule checks; the Service validates before writing.
//
// Reads work on an immutable Snapshot and never block on writers. Writers copy the
// current snapshot, apply their change and publish the result atomically, so a reader
// always observes a whole pre- or post-write state.
type RoleStore struct {
	mu      sync.Mutex // serializes writers
	current atomic.Pointer[Snapshot]
}

// NewRoleStore creates a store holding the given roles.
//
// Example:
//
//	store := roleadmin.NewRoleStore(roleadmin.DefaultSystemRoles()...)
//	service := roleadmin.NewService(store, persistence)
func NewRoleStore(roles ...Role) *RoleStore {
	s := &RoleStore{}
	s.current.Store(newSnapshot(roles))
	return s
}

// Snapshot returns the current immutable view of the store.
func (s *RoleStore) Snapshot() *Snapshot {
	return s.current.Load()
}

// List returns all roles sorted by name.
func (s *RoleStore) List() []Role {
	return s.Snapshot().Roles()
}

// Get returns the role with the given name.
func (s *RoleStore) Get(name string) (Role, error) {
	role, ok := s.Snapshot().Get(name)
	if !ok {
		return Role{}, notFound(name)
	}
	return role, nil
}

// Put inserts or overwrites a role by name.
func (s *RoleStore) Put(role Role) {
	s.update(func(roles map[string]Role) {
		roles[role.Name] = role.Clone()
	})
}

// Remove deletes a role by name.
func (s *RoleStore) Remove(name string) error {
	var err error
	s.update(func(roles map[string]Role) {
		if _, ok := roles[name]; !ok {
			err = notFound(name)
			return
		}
		delete(roles, name)
	})
	return err
}

// Rename replaces the role stored under oldName with role in a single step.
func (s *RoleStore) Rename(oldName string, role Role) {
	s.update(func(roles map[string]Role) {
		delete(roles, oldName)
		roles[role.Name] = role.Clone()
	})
}

// Replace swaps the entire contents of the store.
func (s *RoleStore) Replace(roles []Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Store(newSnapshot(roles))
}

// Load replaces the store contents with the roles returned by the persistence collaborator.
func (s *RoleStore) Load(ctx context.Context, p Persistence) error {
	roles, err := p.FetchAllRoles(ctx)
	if err != nil {
		return persistenceFailure("fetch all roles", "", err)
	}
	s.Replace(roles)
	return nil
}

func (s *RoleStore) update(fn func(map[string]Role)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roles := maps.Clone(s.current.Load().roles)
	fn(roles)
	s.current.Store(&Snapshot{roles: roles, names: sortedKeys(roles)})
}

// Snapshot is an immutable point-in-time view of a RoleStore.
// The zero value is an empty snapshot.
type Snapshot struct {
	roles map[string]Role
	names []string
}

func newSnapshot(roles []Role) *Snapshot {
	m := make(map[string]Role, len(roles))
	for _, r := range roles {
		m[r.Name] = r.Clone()
	}
	return &Snapshot{roles: m, names: sortedKeys(m)}
}

// NewSnapshot builds a standalone snapshot from roles. Later roles overwrite earlier ones
// with the same name.
func NewSnapshot(roles ...Role) *Snapshot {
	return newSnapshot(roles)
}

// Get returns a copy of the named role.
func (s *Snapshot) Get(name string) (Role, bool) {
	r, ok := s.roles[name]
	if !ok {
		return Role{}, false
	}
	return r.Clone(), true
}

// Has reports whether the named role exists.
func (s *Snapshot) Has(name string) bool {
	_, ok := s.roles[name]
	return ok
}

// Len returns the number of roles.
func (s *Snapshot) Len() int {
	return len(s.roles)
}

// Names returns all role names in sorted order.
func (s *Snapshot) Names() []string {
	return slices.Clone(s.names)
}

// Roles returns copies of all roles sorted by name.
func (s *Snapshot) Roles() []Role {
	out := make([]Role, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, s.roles[name].Clone())
	}
	return out
}

// Dependants returns the names of roles whose parent is name, sorted.
func (s *Snapshot) Dependants(name string) []string {
	var out []string
	for _, n := range s.names {
		if s.roles[n].ParentRole == name {
			out = append(out, n)
		}
	}
	return out
}

// lookup returns the stored role without copying. Callers must not mutate it.
func (s *Snapshot) lookup(name string) (Role, bool) {
	r, ok := s.roles[name]
	return r, ok
}

func sortedKeys(m map[string]Role) []string {
	return slices.Sorted(maps.Keys(m))
}
