package roleadmin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSystemRoles(t *testing.T) {
	roles := DefaultSystemRoles()
	require.Len(t, roles, 10)

	seen := make(map[string]bool)
	for _, r := range roles {
		require.NoError(t, ValidateConfig(r.Name, r.Config()), r.Name)
		if r.ParentRole != "" {
			assert.True(t, seen[r.ParentRole], "%s listed before its parent %s", r.Name, r.ParentRole)
		}
		seen[r.Name] = true
	}

	snap := NewSnapshot(roles...)
	resolver := NewPermissionResolver()
	for _, r := range roles {
		_, err := resolver.Resolve(snap, r.Name)
		assert.NoError(t, err, r.Name)
	}
}

func TestDefaultSystemRolesAreFresh(t *testing.T) {
	a := DefaultSystemRoles()
	a[0].Permissions[0].Scope = ScopeAll
	a[len(a)-1].Portals[0] = "changed"

	b := DefaultSystemRoles()
	assert.Equal(t, ScopeOwn, b[0].Permissions[0].Scope)
	assert.Equal(t, Portals[0], b[len(b)-1].Portals[0])
}

func TestAdministratorGrantsEverything(t *testing.T) {
	eff, err := NewPermissionResolver().Resolve(NewSnapshot(DefaultSystemRoles()...), RoleAdministrator)
	require.NoError(t, err)

	assert.Len(t, eff.Permissions, len(Resources)*len(Actions))
	assert.ElementsMatch(t, Portals, eff.Portals)
	assert.ElementsMatch(t, []Ability{AbilityManageUsers, AbilityManageContent, AbilityViewAllData}, eff.Abilities.Granted())
	for _, p := range eff.Permissions {
		assert.Equal(t, ScopeAll, p.Scope)
	}
}
