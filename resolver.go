package roleadmin

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
)

// MaxInheritanceDepth bounds the length of a parent chain. Longer chains are reported
// as circular inheritance.
const MaxInheritanceDepth = 32

// PermissionResolver computes effective permissions by walking a role's parent chain.
// It holds no state between calls; every result is a pure function of the snapshot.
type PermissionResolver struct {
	maxDepth int
}

// NewPermissionResolver creates a resolver bounded by MaxInheritanceDepth.
func NewPermissionResolver() *PermissionResolver {
	return &PermissionResolver{maxDepth: MaxInheritanceDepth}
}

// Resolve merges the named role with its ancestors.
//
// For every (resource, action) pair the broadest scope along the chain wins, portals are
// unioned and abilities are OR-ed. The result is sorted, so resolving the same snapshot
// twice yields identical values.
//
// Errors:
//   - ErrNotFound if the role does not exist
//   - ErrDanglingParent if a parent in the chain does not exist
//   - ErrCircularInheritance if the chain revisits a name or exceeds MaxInheritanceDepth
func (r *PermissionResolver) Resolve(snap *Snapshot, name string) (EffectivePermissions, error) {
	role, ok := snap.lookup(name)
	if !ok {
		return EffectivePermissions{}, notFound(name)
	}

	visited := make(map[string]struct{})
	perms := make(map[PermissionKey]Scope)
	portals := make(map[Portal]struct{})
	var abilities Abilities
	var chain []string

	current := role
	for {
		if _, seen := visited[current.Name]; seen {
			return EffectivePermissions{}, circular(name, current.Name, chain)
		}
		if len(chain) >= r.depth() {
			return EffectivePermissions{}, tooDeep(name, r.depth())
		}
		visited[current.Name] = struct{}{}
		chain = append(chain, current.Name)

		for _, p := range current.Permissions {
			if cur, ok := perms[p.Key()]; ok {
				perms[p.Key()] = MaxScope(cur, p.Scope)
				continue
			}
			perms[p.Key()] = p.Scope
		}
		for _, p := range current.Portals {
			portals[p] = struct{}{}
		}
		abilities = abilities.Merge(current.Abilities)

		if current.ParentRole == "" {
			break
		}
		parent, ok := snap.lookup(current.ParentRole)
		if !ok {
			return EffectivePermissions{}, dangling(name, current.Name, current.ParentRole)
		}
		current = parent
	}

	return EffectivePermissions{
		Role:        name,
		Chain:       chain,
		Permissions: sortedPermissions(perms),
		Portals:     sortedPortals(portals),
		Abilities:   abilities,
	}, nil
}

// DetectCycle reports whether making parent the parent of name would produce an invalid
// chain. The walk starts at parent with name already marked as visited, so reaching name
// again is a cycle. An empty parent is always valid.
func (r *PermissionResolver) DetectCycle(snap *Snapshot, name, parent string) error {
	return r.detectCycle(snap, name, parent, name)
}

func (r *PermissionResolver) detectCycle(snap *Snapshot, name, parent string, reserved ...string) error {
	if parent == "" {
		return nil
	}

	visited := make(map[string]struct{}, len(reserved))
	chain := make([]string, 0, len(reserved)+1)
	for _, n := range reserved {
		visited[n] = struct{}{}
	}
	chain = append(chain, name)

	prev := name
	for cur := parent; cur != ""; {
		if _, seen := visited[cur]; seen {
			return circular(name, cur, chain)
		}
		if len(chain) >= r.depth() {
			return tooDeep(name, r.depth())
		}
		role, ok := snap.lookup(cur)
		if !ok {
			return dangling(name, prev, cur)
		}
		visited[cur] = struct{}{}
		chain = append(chain, cur)
		prev, cur = cur, role.ParentRole
	}
	return nil
}

// AssignableParents returns every role that may legally become name's parent, sorted.
// The same walk as DetectCycle decides each candidate.
func (r *PermissionResolver) AssignableParents(snap *Snapshot, name string) []string {
	out := []string{}
	for _, candidate := range snap.names {
		if candidate == name {
			continue
		}
		if r.DetectCycle(snap, name, candidate) == nil {
			out = append(out, candidate)
		}
	}
	return out
}

func (r *PermissionResolver) depth() int {
	if r == nil || r.maxDepth <= 0 {
		return MaxInheritanceDepth
	}
	return r.maxDepth
}

func circular(role, repeated string, chain []string) *Error {
	path := append(slices.Clone(chain), repeated)
	return NewError(ErrCircularInheritance, fmt.Sprintf("inheritance chain %v revisits %q", path, repeated)).
		WithRole(role).WithField("parentRole", repeated)
}

func tooDeep(role string, limit int) *Error {
	return NewError(ErrCircularInheritance, fmt.Sprintf("inheritance chain exceeds %d roles", limit)).
		WithRole(role).WithField("parentRole", "")
}

func dangling(role, child, parent string) *Error {
	return NewError(ErrDanglingParent, fmt.Sprintf("role %q references missing parent %q", child, parent)).
		WithRole(role).WithField("parentRole", parent)
}

func sortedPermissions(m map[PermissionKey]Scope) []Permission {
	out := make([]Permission, 0, len(m))
	for k, scope := range m {
		out = append(out, Permission{Resource: k.Resource, Action: k.Action, Scope: scope})
	}
	slices.SortFunc(out, func(a, b Permission) int {
		return cmp.Or(cmp.Compare(a.Resource, b.Resource), cmp.Compare(a.Action, b.Action))
	})
	return out
}

func sortedPortals(set map[Portal]struct{}) []Portal {
	return slices.Sorted(maps.Keys(set))
}

// Can reports whether the effective set grants action on resource with at least the required scope.
func (e EffectivePermissions) Can(resource Resource, action Action, required Scope) bool {
	scope, ok := e.ScopeFor(resource, action)
	return ok && scope.Covers(required)
}

// ScopeFor returns the broadest scope granted for the (resource, action) pair.
func (e EffectivePermissions) ScopeFor(resource Resource, action Action) (Scope, bool) {
	i, ok := slices.BinarySearchFunc(e.Permissions, PermissionKey{resource, action}, func(p Permission, k PermissionKey) int {
		return cmp.Or(cmp.Compare(p.Resource, k.Resource), cmp.Compare(p.Action, k.Action))
	})
	if !ok {
		return "", false
	}
	return e.Permissions[i].Scope, true
}

// HasPortal reports whether the effective set includes the portal.
func (e EffectivePermissions) HasPortal(portal Portal) bool {
	_, ok := slices.BinarySearch(e.Portals, portal)
	return ok
}
