package roleadmin

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/fernandezvara/dbkit"
)

// recordWithRetry appends an audit entry after its role change was already persisted.
// It detaches from ctx cancellation so that a caller timing out after the role write does
// not also lose the audit entry, and retries transient failures with exponential backoff.
func (s *Service) recordWithRetry(ctx context.Context, entry AuditLogEntry) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < s.auditAttempts; attempt++ {
		_, err := s.audit.recordTo(ctx, s.persistence, entry)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isTransientError(err) || attempt == s.auditAttempts-1 {
			break
		}

		s.logger.WarnContext(ctx, "retrying audit append",
			"role", entry.RoleName, "attempt", attempt+1, "error", err)

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(backoff(s.auditBackoff, attempt)):
		}
	}
	return lastErr
}

// backoff returns base*2^attempt plus up to 10% jitter.
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base << uint(attempt)
	jitter := time.Duration(float64(d) * 0.1 * rand.Float64())
	return d + jitter
}

// transientErrors are substrings of driver and network errors worth retrying.
var transientErrors = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"timeout",
	"deadlock",
	"lock wait timeout",
	"could not serialize access",
	"temporary failure",
	"try again",
	"resource temporarily unavailable",
	"connection",
}

// isTransientError reports whether err is worth retrying. Context cancellation is not.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if dbkit.IsDuplicate(err) || dbkit.IsNotFound(err) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, s := range transientErrors {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// asPersistenceFailure keeps errors this package already classified and wraps the rest.
func asPersistenceFailure(op, role string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return persistenceFailure(op, role, err)
}
