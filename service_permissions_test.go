package roleadmin

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceResolvePermissions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	eff, err := svc.ResolvePermissions(ctx, RoleLabTechnician)
	require.NoError(t, err)
	assert.Equal(t, []string{RoleLabTechnician, RoleTechnician, RoleViewer}, eff.Chain)
	assert.Equal(t, []Portal{PortalLab, PortalNeta, PortalOffice}, eff.Portals)

	scope, ok := eff.ScopeFor(ResourceJobs, ActionView)
	require.True(t, ok)
	assert.Equal(t, ScopeDivision, scope)
	assert.True(t, eff.Can(ResourceDocuments, ActionCreate, ScopeOwn))
	assert.False(t, eff.Can(ResourceJobs, ActionEdit, ScopeDivision))

	_, err = svc.ResolvePermissions(ctx, "Ghost")
	assert.True(t, IsNotFound(err))
}

func TestServiceResolveCorruptHierarchy(t *testing.T) {
	logger, logs := bufferLogger()
	metrics := NewMetrics()
	svc, _ := newTestService(t, WithLogger(logger), WithMetrics(metrics))
	ctx := context.Background()

	// loaded from storage as is, bypassing the service checks
	svc.Store().Put(Role{Name: "Loop A", ParentRole: "Loop B"})
	svc.Store().Put(Role{Name: "Loop B", ParentRole: "Loop A"})
	svc.Store().Put(Role{Name: "Orphan", ParentRole: "Missing"})

	_, err := svc.ResolvePermissions(ctx, "Loop A")
	assert.True(t, IsCircularInheritance(err))
	_, err = svc.ResolvePermissions(ctx, "Orphan")
	assert.True(t, IsDanglingParent(err))

	assert.Contains(t, logs.String(), "stored role hierarchy is corrupt")
	assert.Contains(t, logs.String(), `"role":"Loop A"`)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.resolutionErrors.WithLabelValues("circular_inheritance")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.resolutionErrors.WithLabelValues("dangling_parent")))

	// other roles are unaffected
	_, err = svc.ResolvePermissions(ctx, RoleManager)
	assert.NoError(t, err)

	// a missing role is a caller error, not corruption
	_, err = svc.ResolvePermissions(ctx, "Ghost")
	assert.True(t, IsNotFound(err))
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.resolutionErrors))
}

func TestServiceCanRole(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		role     string
		resource Resource
		action   Action
		scope    Scope
		want     bool
	}{
		{RoleTechnician, ResourceJobs, ActionEdit, ScopeOwn, true},
		{RoleTechnician, ResourceJobs, ActionEdit, ScopeDivision, false},
		{RoleEngineer, ResourceJobs, ActionEdit, ScopeDivision, true},
		{RoleEngineer, ResourceReports, ActionView, ScopeOwn, true},
		{RoleViewer, ResourceJobs, ActionView, ScopeOwn, false},
		{RoleHRSpecialist, ResourceUsers, ActionDelete, ScopeOwn, false},
		{RoleAdministrator, ResourceSystem, ActionDelete, ScopeAll, true},
	}
	for _, tt := range tests {
		t.Run(tt.role+"/"+Permission{Resource: tt.resource, Action: tt.action, Scope: tt.scope}.String(), func(t *testing.T) {
			got, err := svc.CanRole(ctx, tt.role, tt.resource, tt.action, tt.scope)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := svc.CanRole(ctx, "Ghost", ResourceJobs, ActionView, ScopeOwn)
	assert.True(t, IsNotFound(err))
}

func TestServiceChecker(t *testing.T) {
	svc, _ := newTestService(t)

	c, err := svc.Checker(context.Background(), RoleHRSpecialist)
	require.NoError(t, err)
	assert.Equal(t, RoleHRSpecialist, c.Role())
	assert.True(t, c.HasAbility(AbilityManageUsers))
	assert.False(t, c.HasAbility(AbilityViewAllData))
	assert.True(t, c.HasPortal(PortalHR))
	assert.True(t, c.HasPortal(PortalOffice))

	_, err = svc.Checker(context.Background(), "Ghost")
	assert.True(t, IsNotFound(err))
}

func TestServiceAssignableParents(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	parents, err := svc.AssignableParents(ctx, RoleTechnician)
	require.NoError(t, err)
	assert.NotContains(t, parents, RoleTechnician)
	assert.NotContains(t, parents, RoleLabTechnician)
	assert.NotContains(t, parents, RoleEngineer)
	assert.Contains(t, parents, RoleViewer)
	assert.Contains(t, parents, RoleManager)
	assert.Len(t, parents, 7)

	// a role that does not exist yet may inherit from anything
	parents, err = svc.AssignableParents(ctx, "Brand New")
	require.NoError(t, err)
	assert.Len(t, parents, 10)
}
