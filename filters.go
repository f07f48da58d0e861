package roleadmin

import "time"

// DefaultAuditLimit is the number of audit entries returned when no limit is given.
const DefaultAuditLimit = 50

// MaxAuditLimit caps a single audit query.
const MaxAuditLimit = 1000

// AuditLogFilter provides options for filtering audit log queries.
// Empty fields do not filter.
type AuditLogFilter struct {
	// Filter by role name
	RoleName string

	// Filter by mutation type
	Action AuditAction

	// Filter by the user who performed the mutation
	UserID string

	// Filter by time range (inclusive)
	Since time.Time
	Until time.Time

	// Pagination
	Limit  int
	Offset int
}

// NewAuditLogFilter creates a new AuditLogFilter with default values.
func NewAuditLogFilter() AuditLogFilter {
	return AuditLogFilter{
		Limit: DefaultAuditLimit,
	}
}

// WithRole sets the role name filter.
func (f AuditLogFilter) WithRole(name string) AuditLogFilter {
	f.RoleName = name
	return f
}

// WithAction sets the action filter.
func (f AuditLogFilter) WithAction(action AuditAction) AuditLogFilter {
	f.Action = action
	return f
}

// WithUser sets the acting user filter.
func (f AuditLogFilter) WithUser(userID string) AuditLogFilter {
	f.UserID = userID
	return f
}

// WithTimeRange sets the time range filter.
func (f AuditLogFilter) WithTimeRange(since, until time.Time) AuditLogFilter {
	f.Since = since
	f.Until = until
	return f
}

// WithSince sets the start time filter.
func (f AuditLogFilter) WithSince(since time.Time) AuditLogFilter {
	f.Since = since
	return f
}

// WithUntil sets the end time filter.
func (f AuditLogFilter) WithUntil(until time.Time) AuditLogFilter {
	f.Until = until
	return f
}

// WithLimit sets the limit for results.
func (f AuditLogFilter) WithLimit(limit int) AuditLogFilter {
	f.Limit = limit
	return f
}

// WithOffset sets the offset for pagination.
func (f AuditLogFilter) WithOffset(offset int) AuditLogFilter {
	f.Offset = offset
	return f
}

// WithPagination sets both limit and offset.
func (f AuditLogFilter) WithPagination(limit, offset int) AuditLogFilter {
	f.Limit = limit
	f.Offset = offset
	return f
}

// Normalized returns the filter with the limit defaulted and clamped and a non-negative offset.
func (f AuditLogFilter) Normalized() AuditLogFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultAuditLimit
	}
	if f.Limit > MaxAuditLimit {
		f.Limit = MaxAuditLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Matches reports whether the entry passes every filter except pagination.
func (f AuditLogFilter) Matches(e AuditLogEntry) bool {
	if f.RoleName != "" && e.RoleName != f.RoleName {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.CreatedAt.After(f.Until) {
		return false
	}
	return true
}
