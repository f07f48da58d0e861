package roleadmin

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceListAndGetRoles(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	roles, err := svc.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 10)
	for i := 1; i < len(roles); i++ {
		assert.Less(t, roles[i-1].Name, roles[i].Name)
	}

	viewer, err := svc.GetRole(ctx, RoleViewer)
	require.NoError(t, err)
	assert.True(t, viewer.IsSystem)

	_, err = svc.GetRole(ctx, "Ghost")
	assert.True(t, IsNotFound(err))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = svc.ListRoles(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = svc.GetRole(cancelled, RoleViewer)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestServiceAuditQueries(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	other := testActor
	other.UserID = "admin-2"

	_, err := svc.SaveRole(ctx, "Field Tech", fieldTechConfig(), testActor)
	require.NoError(t, err)
	cfg := fieldTechConfig()
	cfg.Permissions = Perms("jobs.view:all")
	_, err = svc.SaveRole(ctx, "Field Tech", cfg, other)
	require.NoError(t, err)
	_, err = svc.SaveRole(ctx, "Temp", RoleConfig{}, testActor)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteRole(ctx, "Temp", other))

	t.Run("by role newest first", func(t *testing.T) {
		entries, err := svc.GetAuditLogs(ctx, "Field Tech", 0)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, AuditActionUpdate, entries[0].Action)
		assert.Equal(t, AuditActionCreate, entries[1].Action)
		assert.True(t, entries[0].CreatedAt.After(entries[1].CreatedAt))
		assert.Equal(t, Perms("jobs.view:division"), entries[0].PreviousConfig.Permissions)
		assert.Equal(t, Perms("jobs.view:all"), entries[0].NewConfig.Permissions)
	})

	t.Run("all roles with limit", func(t *testing.T) {
		entries, err := svc.GetAuditLogs(ctx, "", 3)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, AuditActionDelete, entries[0].Action)
		assert.Equal(t, "Temp", entries[0].RoleName)

		all, err := svc.GetAuditLogs(ctx, "", MaxAuditLimit)
		require.NoError(t, err)
		assert.Len(t, all, 10+4)
	})

	t.Run("by user and action", func(t *testing.T) {
		entries, err := svc.QueryAuditLogs(ctx, NewAuditLogFilter().WithUser("admin-2"))
		require.NoError(t, err)
		assert.Len(t, entries, 2)

		entries, err = svc.QueryAuditLogs(ctx, NewAuditLogFilter().WithAction(AuditActionDelete))
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Nil(t, entries[0].NewConfig)
		assert.Equal(t, "Temp", entries[0].PreviousConfig.Name)

		entries, err = svc.QueryAuditLogs(ctx, NewAuditLogFilter().WithUser(SystemActor.UserID))
		require.NoError(t, err)
		assert.Len(t, entries, 10)
	})

	t.Run("pagination", func(t *testing.T) {
		first, err := svc.QueryAuditLogs(ctx, NewAuditLogFilter().WithPagination(2, 0))
		require.NoError(t, err)
		second, err := svc.QueryAuditLogs(ctx, NewAuditLogFilter().WithPagination(2, 2))
		require.NoError(t, err)
		require.Len(t, first, 2)
		require.Len(t, second, 2)
		assert.NotEqual(t, first[1].ID, second[0].ID)
		assert.False(t, second[0].CreatedAt.After(first[1].CreatedAt))
	})

	t.Run("no match", func(t *testing.T) {
		entries, err := svc.GetAuditLogs(ctx, "Ghost", 10)
		require.NoError(t, err)
		assert.NotNil(t, entries)
		assert.Empty(t, entries)
	})
}

func TestServiceReloadPicksUpPersistedRoles(t *testing.T) {
	svc, p := newTestService(t)
	ctx := context.Background()

	// written by another instance
	require.NoError(t, p.PersistRole(ctx, Role{Name: "Remote", ParentRole: RoleViewer, Permissions: Perms("jobs.view:own")}))
	require.NoError(t, p.PersistRoleDeletion(ctx, RoleScavengerOperator))
	assert.False(t, svc.Store().Snapshot().Has("Remote"))

	require.NoError(t, svc.Reload(ctx))

	snap := svc.Store().Snapshot()
	assert.True(t, snap.Has("Remote"))
	assert.False(t, snap.Has(RoleScavengerOperator))
	assert.Equal(t, 10, snap.Len())
}

func TestServiceReloadFailureKeepsStore(t *testing.T) {
	store := NewRoleStore(DefaultSystemRoles()...)
	svc := NewService(store, failingFetch{NewMemoryPersistence()})
	before := store.Snapshot()

	err := svc.Reload(context.Background())
	require.Error(t, err)
	assert.True(t, IsPersistenceFailure(err))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Same(t, before, store.Snapshot())
}

// blockingFetch holds FetchAllRoles until release is closed.
type blockingFetch struct {
	*MemoryPersistence
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (b *blockingFetch) FetchAllRoles(ctx context.Context) ([]Role, error) {
	if b.calls.Add(1) == 1 {
		close(b.entered)
	}
	<-b.release
	return b.MemoryPersistence.FetchAllRoles(ctx)
}

func TestServiceReloadSharesFetch(t *testing.T) {
	p := &blockingFetch{
		MemoryPersistence: NewMemoryPersistence(DefaultSystemRoles()...),
		entered:           make(chan struct{}),
		release:           make(chan struct{}),
	}
	svc := NewService(NewRoleStore(), p)
	ctx := context.Background()

	const callers = 8
	errs := make(chan error, callers)
	go func() { errs <- svc.Reload(ctx) }()
	<-p.entered

	var wg sync.WaitGroup
	for range callers - 1 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- svc.Reload(ctx)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(p.release)
	wg.Wait()

	for range callers {
		assert.NoError(t, <-errs)
	}
	assert.Less(t, p.calls.Load(), int32(callers))
	assert.Equal(t, 10, svc.Store().Snapshot().Len())
}

func TestServiceReloadCallerCancelled(t *testing.T) {
	p := &blockingFetch{
		MemoryPersistence: NewMemoryPersistence(DefaultSystemRoles()...),
		entered:           make(chan struct{}),
		release:           make(chan struct{}),
	}
	svc := NewService(NewRoleStore(), p)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Reload(ctx) }()
	<-p.entered
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// the shared reload still completes
	close(p.release)
	require.NoError(t, svc.Reload(context.Background()))
	assert.Equal(t, 10, svc.Store().Snapshot().Len())
}
