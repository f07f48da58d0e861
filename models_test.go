package roleadmin

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeOrder(t *testing.T) {
	assert.Less(t, ScopeOwn.Rank(), ScopeDivision.Rank())
	assert.Less(t, ScopeDivision.Rank(), ScopeAll.Rank())
	assert.Equal(t, -1, Scope("galaxy").Rank())

	assert.True(t, ScopeAll.Covers(ScopeOwn))
	assert.True(t, ScopeDivision.Covers(ScopeDivision))
	assert.False(t, ScopeOwn.Covers(ScopeDivision))
	assert.False(t, Scope("galaxy").Covers(ScopeOwn))
	assert.False(t, ScopeAll.Covers(Scope("galaxy")))

	assert.Equal(t, ScopeAll, MaxScope(ScopeOwn, ScopeAll))
	assert.Equal(t, ScopeAll, MaxScope(ScopeAll, ScopeOwn))
	assert.Equal(t, ScopeDivision, MaxScope(ScopeDivision, ScopeDivision))
	assert.Equal(t, ScopeOwn, MaxScope("", ScopeOwn))
}

func TestEnumDomains(t *testing.T) {
	assert.Len(t, Portals, 8)
	assert.Len(t, Resources, 10)
	assert.Len(t, Actions, 6)
	assert.Len(t, Scopes, 3)

	assert.True(t, PortalScavenger.Valid())
	assert.False(t, Portal("warehouse").Valid())
	assert.True(t, ResourceEncryption.Valid())
	assert.False(t, Resource("invoices").Valid())
	assert.True(t, ActionAssign.Valid())
	assert.False(t, Action("fly").Valid())
	assert.True(t, AuditActionDelete.Valid())
	assert.False(t, AuditAction("purge").Valid())
}

func TestAbilities(t *testing.T) {
	a := Abilities{CanManageUsers: true}
	b := Abilities{CanViewAllData: true}

	merged := a.Merge(b)
	assert.Equal(t, Abilities{CanManageUsers: true, CanViewAllData: true}, merged)
	assert.Equal(t, merged, b.Merge(a))
	assert.Equal(t, a, a.Merge(a))

	assert.True(t, merged.Has(AbilityManageUsers))
	assert.False(t, merged.Has(AbilityManageContent))
	assert.False(t, merged.Has(Ability("canFly")))
	assert.Equal(t, []Ability{AbilityManageUsers, AbilityViewAllData}, merged.Granted())
	assert.Empty(t, Abilities{}.Granted())
}

func TestRoleCloneIsDeep(t *testing.T) {
	r := Role{Name: "A", Portals: []Portal{PortalHR}, Permissions: Perms("users.view:all")}
	c := r.Clone()
	c.Portals[0] = PortalLab
	c.Permissions[0].Scope = ScopeOwn

	assert.Equal(t, PortalHR, r.Portals[0])
	assert.Equal(t, ScopeAll, r.Permissions[0].Scope)
}

func TestRoleConfig(t *testing.T) {
	r := Role{
		Name:        "A",
		ParentRole:  "B",
		Portals:     []Portal{PortalHR},
		Permissions: Perms("users.view:all"),
		Abilities:   Abilities{CanManageUsers: true},
		IsSystem:    true,
	}
	cfg := r.Config()
	assert.Equal(t, "A", cfg.Name)
	assert.Equal(t, "B", cfg.ParentRole)
	assert.Equal(t, r.Portals, cfg.Portals)
	assert.Equal(t, r.Permissions, cfg.Permissions)
	assert.Equal(t, r.Abilities, cfg.Abilities)
}

func TestAuditLogEntryJSONFieldNames(t *testing.T) {
	prev := Role{Name: "A", Permissions: Perms("jobs.view:own")}
	entry := AuditLogEntry{
		ID:             "e1",
		RoleName:       "A",
		Action:         AuditActionUpdate,
		PreviousConfig: &prev,
		UserID:         "u1",
		IPAddress:      "10.0.0.1",
		UserAgent:      "curl",
		CreatedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	raw, err := json.Marshal(entry)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, key := range []string{"id", "role_name", "action", "previous_config", "new_config", "user_id", "ip_address", "user_agent", "created_at"} {
		assert.Contains(t, fields, key)
	}
	assert.Nil(t, fields["new_config"])

	prevFields, ok := fields["previous_config"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"name", "portals", "permissions", "abilities", "isSystem"} {
		assert.Contains(t, prevFields, key)
	}
	abilities := prevFields["abilities"].(map[string]any)
	assert.Contains(t, abilities, "canManageUsers")
	assert.Contains(t, abilities, "canManageContent")
	assert.Contains(t, abilities, "canViewAllData")
}
