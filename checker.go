package roleadmin

// Checker answers permission questions for one resolved role.
// It is typically created by the Service and stored in context for use in handlers.
type Checker struct {
	eff EffectivePermissions
}

// NewChecker wraps resolved permissions.
func NewChecker(eff EffectivePermissions) *Checker {
	return &Checker{eff: eff}
}

// Role returns the role name this checker is for.
func (c *Checker) Role() string {
	return c.eff.Role
}

// Effective returns the resolved permissions behind the checker.
func (c *Checker) Effective() EffectivePermissions {
	return c.eff
}

// Can checks whether the role may perform action on resource with at least the required scope.
//
// Example:
//
//	if checker.Can(roleadmin.ResourceJobs, roleadmin.ActionEdit, roleadmin.ScopeDivision) {
//	    // edit any job in the user's division
//	}
func (c *Checker) Can(resource Resource, action Action, required Scope) bool {
	return c.eff.Can(resource, action, required)
}

// CanPermission is Can for a Permission value.
func (c *Checker) CanPermission(p Permission) bool {
	return c.eff.Can(p.Resource, p.Action, p.Scope)
}

// CanAny checks whether at least one of the permissions is granted.
func (c *Checker) CanAny(perms ...Permission) bool {
	for _, p := range perms {
		if c.CanPermission(p) {
			return true
		}
	}
	return false
}

// CanAll checks whether every permission is granted.
func (c *Checker) CanAll(perms ...Permission) bool {
	for _, p := range perms {
		if !c.CanPermission(p) {
			return false
		}
	}
	return true
}

// ScopeFor returns the broadest scope granted for the pair.
func (c *Checker) ScopeFor(resource Resource, action Action) (Scope, bool) {
	return c.eff.ScopeFor(resource, action)
}

// HasPortal checks portal access.
func (c *Checker) HasPortal(portal Portal) bool {
	return c.eff.HasPortal(portal)
}

// HasAbility checks an ability flag.
func (c *Checker) HasAbility(ability Ability) bool {
	return c.eff.Abilities.Has(ability)
}

// IsEmpty reports whether the role grants nothing at all.
func (c *Checker) IsEmpty() bool {
	return len(c.eff.Permissions) == 0 && len(c.eff.Portals) == 0 && len(c.eff.Abilities.Granted()) == 0
}
