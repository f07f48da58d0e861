package roleadmin

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testActor = Actor{
	UserID:    "admin-1",
	IPAddress: "10.0.0.1",
	UserAgent: "roleadmin-test",
	RequestID: "req-1",
}

// testClock returns increasing timestamps one second apart.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// newTestService returns a bootstrapped service on in-memory persistence.
func newTestService(t testing.TB, opts ...Option) (*Service, *MemoryPersistence) {
	t.Helper()

	p := NewMemoryPersistence()
	svc := newServiceOn(t, p, opts...)
	return svc, p
}

func newServiceOn(t testing.TB, p Persistence, opts ...Option) *Service {
	t.Helper()

	clock := newTestClock()
	opts = append([]Option{WithClock(clock.Now), WithAuditRetry(3, 0)}, opts...)
	svc := NewService(NewRoleStore(), p, opts...)
	_, err := svc.Bootstrap(context.Background())
	require.NoError(t, err)
	return svc
}

// bufferLogger returns a debug-level JSON logger writing to the returned buffer.
func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

// faultyPersistence wraps a Persistence without exposing Transactor, failing the
// selected calls. Counters record how often each write reached it.
type faultyPersistence struct {
	Persistence

	failPersist    atomic.Bool
	failDelete     atomic.Bool
	failAppend     atomic.Int32 // number of appends still to fail; -1 fails forever
	appendErr      error
	persistCalls   atomic.Int32
	deleteCalls    atomic.Int32
	appendCalls    atomic.Int32
	afterPersistFn func()
}

var errDiskFull = errors.New("disk full")

func newFaultyPersistence() *faultyPersistence {
	return &faultyPersistence{
		Persistence: NewMemoryPersistence(),
		appendErr:   errors.New("connection reset by peer"),
	}
}

func (f *faultyPersistence) PersistRole(ctx context.Context, role Role) error {
	f.persistCalls.Add(1)
	if f.failPersist.Load() {
		return errDiskFull
	}
	if err := f.Persistence.PersistRole(ctx, role); err != nil {
		return err
	}
	if f.afterPersistFn != nil {
		f.afterPersistFn()
	}
	return nil
}

func (f *faultyPersistence) PersistRoleDeletion(ctx context.Context, name string) error {
	f.deleteCalls.Add(1)
	if f.failDelete.Load() {
		return errDiskFull
	}
	return f.Persistence.PersistRoleDeletion(ctx, name)
}

func (f *faultyPersistence) AppendAuditEntry(ctx context.Context, entry AuditLogEntry) error {
	f.appendCalls.Add(1)
	switch n := f.failAppend.Load(); {
	case n < 0:
		return f.appendErr
	case n > 0:
		f.failAppend.Add(-1)
		return f.appendErr
	}
	return f.Persistence.AppendAuditEntry(ctx, entry)
}

func (f *faultyPersistence) resetCalls() {
	f.persistCalls.Store(0)
	f.deleteCalls.Store(0)
	f.appendCalls.Store(0)
}

// auditCount returns the number of audit entries stored for role.
func auditCount(t testing.TB, svc *Service, role string) int {
	t.Helper()
	entries, err := svc.GetAuditLogs(context.Background(), role, MaxAuditLimit)
	require.NoError(t, err)
	return len(entries)
}

func fieldTechConfig() RoleConfig {
	return RoleConfig{
		ParentRole:  RoleTechnician,
		Portals:     []Portal{PortalNeta},
		Permissions: Perms("jobs.view:division"),
	}
}
