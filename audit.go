package roleadmin

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditLog is the append-only history of role mutations.
// It never updates or deletes entries.
type AuditLog struct {
	persistence Persistence
	now         func() time.Time
	newID       func() string
}

// AuditOption configures an AuditLog.
type AuditOption func(*AuditLog)

// WithAuditClock sets the clock used to timestamp entries.
func WithAuditClock(now func() time.Time) AuditOption {
	return func(a *AuditLog) {
		a.now = now
	}
}

// WithAuditIDGenerator sets the function used to assign entry IDs.
func WithAuditIDGenerator(fn func() string) AuditOption {
	return func(a *AuditLog) {
		a.newID = fn
	}
}

// NewAuditLog creates an audit log on top of a persistence collaborator.
func NewAuditLog(p Persistence, opts ...AuditOption) *AuditLog {
	a := &AuditLog{
		persistence: p,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Record appends an entry. A missing ID or CreatedAt is filled in before validation.
// Collaborator errors are returned as ErrPersistenceFailure; nothing is written in that case.
func (a *AuditLog) Record(ctx context.Context, entry AuditLogEntry) (AuditLogEntry, error) {
	return a.recordTo(ctx, a.persistence, entry)
}

// recordTo appends through p, which may be bound to a transaction.
func (a *AuditLog) recordTo(ctx context.Context, p Persistence, entry AuditLogEntry) (AuditLogEntry, error) {
	entry = a.prepare(entry)
	if err := ValidateAuditEntry(entry); err != nil {
		return AuditLogEntry{}, err
	}
	if err := p.AppendAuditEntry(ctx, entry); err != nil {
		return AuditLogEntry{}, persistenceFailure("append audit entry", entry.RoleName, err)
	}
	return entry, nil
}

func (a *AuditLog) prepare(entry AuditLogEntry) AuditLogEntry {
	if entry.ID == "" {
		entry.ID = a.newID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = a.now().UTC().Truncate(time.Microsecond)
	}
	entry.PreviousConfig = cloneRolePtr(entry.PreviousConfig)
	entry.NewConfig = cloneRolePtr(entry.NewConfig)
	return entry
}

// Query returns entries matching filter, newest first. A zero Limit means DefaultAuditLimit.
func (a *AuditLog) Query(ctx context.Context, filter AuditLogFilter) ([]AuditLogEntry, error) {
	entries, err := a.persistence.FetchAuditEntries(ctx, filter.Normalized())
	if err != nil {
		return nil, persistenceFailure("fetch audit entries", filter.RoleName, err)
	}
	if entries == nil {
		entries = []AuditLogEntry{}
	}
	return entries, nil
}

// Diff returns the structural difference recorded by entry.
func (a *AuditLog) Diff(entry AuditLogEntry) AuditDiff {
	return Diff(entry)
}

// ValidateAuditEntry checks that an entry is fully populated and that its snapshots
// match its action: create has only a new config, delete only a previous one, update both.
func ValidateAuditEntry(e AuditLogEntry) error {
	invalid := func(field, msg string) error {
		return NewError(ErrInvalidAuditEntry, msg).WithRole(e.RoleName).WithField(field, "")
	}

	switch {
	case e.ID == "":
		return invalid("id", "id is required")
	case e.RoleName == "":
		return invalid("role_name", "role name is required")
	case e.UserID == "":
		return invalid("user_id", "user id is required")
	case e.CreatedAt.IsZero():
		return invalid("created_at", "timestamp is required")
	case !e.Action.Valid():
		return invalid("action", fmt.Sprintf("unknown action %q", e.Action))
	}

	hasPrev, hasNew := e.PreviousConfig != nil, e.NewConfig != nil
	switch e.Action {
	case AuditActionCreate:
		if hasPrev || !hasNew {
			return invalid("previous_config", "create entries carry only a new config")
		}
	case AuditActionUpdate:
		if !hasPrev || !hasNew {
			return invalid("new_config", "update entries carry both configs")
		}
	case AuditActionDelete:
		if !hasPrev || hasNew {
			return invalid("new_config", "delete entries carry only a previous config")
		}
	}
	return nil
}
