package roleadmin

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// Persistence is the durable store behind the RoleStore and the AuditLog.
//
// Implementations must append audit entries without overwriting existing ones and must
// return entries from FetchAuditEntries newest first, ties broken by insertion order.
type Persistence interface {
	PersistRole(ctx context.Context, role Role) error
	PersistRoleDeletion(ctx context.Context, name string) error
	AppendAuditEntry(ctx context.Context, entry AuditLogEntry) error
	FetchAuditEntries(ctx context.Context, filter AuditLogFilter) ([]AuditLogEntry, error)
	FetchAllRoles(ctx context.Context) ([]Role, error)
}

// Transactor is implemented by persistence collaborators that can run several writes
// atomically. When available, the Service persists a role change and its audit entry
// in one transaction.
type Transactor interface {
	// WithinTransaction calls fn with a Persistence bound to a single transaction.
	// The transaction commits if fn returns nil and rolls back otherwise.
	WithinTransaction(ctx context.Context, fn func(Persistence) error) error
}

// compareAuditEntries orders entries newest first, falling back to insertion order.
func compareAuditEntries(a, b AuditLogEntry) int {
	return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(b.Sequence, a.Sequence))
}

// MemoryPersistence is an in-process Persistence. It is safe for concurrent use and
// supports transactions by staging writes on a private copy.
type MemoryPersistence struct {
	mu    sync.Mutex
	state memoryState
}

type memoryState struct {
	roles map[string]Role
	audit []AuditLogEntry
	ids   map[string]struct{}
	seq   int64
}

// NewMemoryPersistence creates an empty in-memory store seeded with roles.
func NewMemoryPersistence(roles ...Role) *MemoryPersistence {
	m := &MemoryPersistence{state: memoryState{
		roles: make(map[string]Role, len(roles)),
		ids:   make(map[string]struct{}),
	}}
	for _, r := range roles {
		m.state.roles[r.Name] = r.Clone()
	}
	return m
}

// PersistRole implements Persistence.
func (m *MemoryPersistence) PersistRole(ctx context.Context, role Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.persistRole(ctx, role)
}

// PersistRoleDeletion implements Persistence.
func (m *MemoryPersistence) PersistRoleDeletion(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.persistRoleDeletion(ctx, name)
}

// AppendAuditEntry implements Persistence.
func (m *MemoryPersistence) AppendAuditEntry(ctx context.Context, entry AuditLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.appendAuditEntry(ctx, entry)
}

// FetchAuditEntries implements Persistence.
func (m *MemoryPersistence) FetchAuditEntries(ctx context.Context, filter AuditLogFilter) ([]AuditLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.fetchAuditEntries(ctx, filter)
}

// FetchAllRoles implements Persistence.
func (m *MemoryPersistence) FetchAllRoles(ctx context.Context) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.fetchAllRoles(ctx)
}

// WithinTransaction implements Transactor. Writes made through the Persistence passed
// to fn become visible only if fn returns nil. Transactions are serialized.
func (m *MemoryPersistence) WithinTransaction(ctx context.Context, fn func(Persistence) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	staged := m.state.clone()
	if err := fn(&memoryTx{state: &staged}); err != nil {
		return err
	}
	m.state = staged
	return nil
}

// AuditLen returns the number of stored audit entries.
func (m *MemoryPersistence) AuditLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.audit)
}

func (s *memoryState) clone() memoryState {
	return memoryState{
		roles: maps.Clone(s.roles),
		audit: slices.Clone(s.audit),
		ids:   maps.Clone(s.ids),
		seq:   s.seq,
	}
}

func (s *memoryState) persistRole(ctx context.Context, role Role) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.roles[role.Name] = role.Clone()
	return nil
}

func (s *memoryState) persistRoleDeletion(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := s.roles[name]; !ok {
		return fmt.Errorf("role %q not stored", name)
	}
	delete(s.roles, name)
	return nil
}

func (s *memoryState) appendAuditEntry(ctx context.Context, entry AuditLogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, dup := s.ids[entry.ID]; dup {
		return fmt.Errorf("audit entry %s already exists", entry.ID)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.seq++
	entry.Sequence = s.seq
	entry.PreviousConfig = cloneRolePtr(entry.PreviousConfig)
	entry.NewConfig = cloneRolePtr(entry.NewConfig)
	s.ids[entry.ID] = struct{}{}
	s.audit = append(s.audit, entry)
	return nil
}

func (s *memoryState) fetchAuditEntries(ctx context.Context, filter AuditLogFilter) ([]AuditLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filter = filter.Normalized()

	var matched []AuditLogEntry
	for _, e := range s.audit {
		if filter.Matches(e) {
			matched = append(matched, e)
		}
	}
	slices.SortStableFunc(matched, compareAuditEntries)

	if filter.Offset >= len(matched) {
		return []AuditLogEntry{}, nil
	}
	matched = matched[filter.Offset:]
	if len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	out := make([]AuditLogEntry, len(matched))
	for i, e := range matched {
		e.PreviousConfig = cloneRolePtr(e.PreviousConfig)
		e.NewConfig = cloneRolePtr(e.NewConfig)
		out[i] = e
	}
	return out, nil
}

func (s *memoryState) fetchAllRoles(ctx context.Context) ([]Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]Role, 0, len(s.roles))
	for _, name := range slices.Sorted(maps.Keys(s.roles)) {
		out = append(out, s.roles[name].Clone())
	}
	return out, nil
}

// memoryTx exposes a staged memoryState as a Persistence. The parent lock is already held.
type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) PersistRole(ctx context.Context, role Role) error {
	return t.state.persistRole(ctx, role)
}

func (t *memoryTx) PersistRoleDeletion(ctx context.Context, name string) error {
	return t.state.persistRoleDeletion(ctx, name)
}

func (t *memoryTx) AppendAuditEntry(ctx context.Context, entry AuditLogEntry) error {
	return t.state.appendAuditEntry(ctx, entry)
}

func (t *memoryTx) FetchAuditEntries(ctx context.Context, filter AuditLogFilter) ([]AuditLogEntry, error) {
	return t.state.fetchAuditEntries(ctx, filter)
}

func (t *memoryTx) FetchAllRoles(ctx context.Context) ([]Role, error) {
	return t.state.fetchAllRoles(ctx)
}

func cloneRolePtr(r *Role) *Role {
	if r == nil {
		return nil
	}
	c := r.Clone()
	return &c
}
