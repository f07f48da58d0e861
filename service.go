package roleadmin

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Service is the only component that mutates the RoleStore. It validates every change,
// persists it, records an audit entry and then publishes the new role.
//
// Error Handling:
// Validation errors (ErrDuplicateRole, ErrCircularInheritance, ErrDanglingParent,
// ErrSystemRoleProtected, ErrInvalidPermission, ErrInvalidRole, ErrRoleInUse) are returned
// before the persistence collaborator is called and leave nothing changed.
// ErrPersistenceFailure means the collaborator failed and nothing changed either.
//
//	role, err := service.SaveRole(ctx, "Field Tech", cfg, actor)
//	switch {
//	case roleadmin.IsCircularInheritance(err):
//	    // reject the parent selection
//	case roleadmin.IsPersistenceFailure(err):
//	    // retry later
//	}
//
//	var e *roleadmin.Error
//	if errors.As(err, &e) {
//	    fmt.Printf("role=%s field=%s value=%s\n", e.Role, e.Field, e.Value)
//	}
type Service struct {
	store       *RoleStore
	persistence Persistence
	resolver    *PermissionResolver
	audit       *AuditLog
	locker      Locker
	logger      *slog.Logger
	metrics     *Metrics
	monitor     *mutationMonitor
	now         func() time.Time

	// applyMu orders mutations against each other and against Reload. Hierarchy changes
	// and Reload hold it exclusively, permission-only updates share it. See lockGraph.
	applyMu sync.RWMutex
	reload  singleflight.Group

	auditAttempts int
	auditBackoff  time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger. The default discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLocker replaces the in-process per-name locker, e.g. with a RedisLocker.
func WithLocker(locker Locker) Option {
	return func(s *Service) {
		if locker != nil {
			s.locker = locker
		}
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAuditLog replaces the audit log built on the service's persistence.
func WithAuditLog(a *AuditLog) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

// WithClock sets the clock used for role timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAuditRetry sets how often an audit append is attempted when the persistence
// collaborator has no transactions, and the initial backoff between attempts.
func WithAuditRetry(attempts int, backoff time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.auditAttempts = attempts
		}
		if backoff >= 0 {
			s.auditBackoff = backoff
		}
	}
}

// NewService creates a role administration service.
//
// Example:
//
//	store := roleadmin.NewRoleStore()
//	persistence := roleadmin.NewPostgresPersistence(db)
//	if err := store.Load(ctx, persistence); err != nil {
//	    return err
//	}
//	service := roleadmin.NewService(store, persistence, roleadmin.WithLogger(logger))
func NewService(store *RoleStore, p Persistence, opts ...Option) *Service {
	s := &Service{
		store:         store,
		persistence:   p,
		resolver:      NewPermissionResolver(),
		locker:        NewKeyedLocker(),
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		monitor:       newMutationMonitor(),
		now:           time.Now,
		auditAttempts: 3,
		auditBackoff:  100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.audit == nil {
		s.audit = NewAuditLog(p, WithAuditClock(s.now))
	}
	return s
}

// Store returns the role store.
func (s *Service) Store() *RoleStore {
	return s.store
}

// Resolver returns the permission resolver.
func (s *Service) Resolver() *PermissionResolver {
	return s.resolver
}

// AuditLog returns the audit log.
func (s *Service) AuditLog() *AuditLog {
	return s.audit
}
