package roleadmin

import (
	"errors"
	"fmt"
)

// Sentinel errors for role administration.
var (
	// ErrNotFound is returned when an operation references a role that does not exist.
	ErrNotFound = errors.New("roleadmin: role not found")

	// ErrDuplicateRole is returned when creating (or renaming to) a name that is already taken.
	ErrDuplicateRole = errors.New("roleadmin: duplicate role")

	// ErrCircularInheritance is returned when a parent chain revisits a role name.
	ErrCircularInheritance = errors.New("roleadmin: circular inheritance")

	// ErrDanglingParent is returned when a parent role does not exist.
	ErrDanglingParent = errors.New("roleadmin: dangling parent role")

	// ErrSystemRoleProtected is returned on rename or delete of a system role.
	ErrSystemRoleProtected = errors.New("roleadmin: system role protected")

	// ErrInvalidPermission is returned when a permission uses an unknown resource, action or scope.
	ErrInvalidPermission = errors.New("roleadmin: invalid permission")

	// ErrInvalidRole is returned when a role name or portal is malformed.
	ErrInvalidRole = errors.New("roleadmin: invalid role")

	// ErrRoleInUse is returned when a role that other roles inherit from is deleted or renamed.
	ErrRoleInUse = errors.New("roleadmin: role in use")

	// ErrPersistenceFailure is returned when the persistence collaborator fails.
	ErrPersistenceFailure = errors.New("roleadmin: persistence failure")

	// ErrInvalidAuditEntry is returned when an audit entry is missing fields or its snapshots do not match its action.
	ErrInvalidAuditEntry = errors.New("roleadmin: invalid audit entry")

	// ErrAuditIncomplete is returned when a role change was persisted but its audit entry was not.
	ErrAuditIncomplete = errors.New("roleadmin: audit entry not recorded")

	// ErrForbidden is returned by permission checks that deny access.
	ErrForbidden = errors.New("roleadmin: forbidden")

	// ErrNoRole is returned when no role name is found in the request context.
	ErrNoRole = errors.New("roleadmin: no role in context")
)

// Error wraps a sentinel error with the context a caller needs to render it.
type Error struct {
	Err     error  // Underlying sentinel error
	Message string // Additional context
	Role    string // Role involved
	Field   string // Offending field (e.g. "parentRole", "permissions[2].resource")
	Value   string // Offending value
	Cause   error  // Collaborator error, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Err.Error()
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the sentinel and, when present, the collaborator cause.
func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

// Is checks if the error matches a target error.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new Error with context.
func NewError(err error, message string) *Error {
	return &Error{
		Err:     err,
		Message: message,
	}
}

// WithRole adds role information to the error.
func (e *Error) WithRole(role string) *Error {
	e.Role = role
	return e
}

// WithField adds the offending field to the error.
func (e *Error) WithField(field, value string) *Error {
	e.Field = field
	e.Value = value
	return e
}

// WithCause attaches the error returned by a collaborator.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

func notFound(name string) *Error {
	return NewError(ErrNotFound, fmt.Sprintf("role %q does not exist", name)).WithRole(name)
}

func persistenceFailure(op, role string, cause error) *Error {
	return NewError(ErrPersistenceFailure, op).WithRole(role).WithCause(cause)
}

// IsNotFound checks if an error is due to a missing role.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateRole checks if an error is due to a name collision.
func IsDuplicateRole(err error) bool {
	return errors.Is(err, ErrDuplicateRole)
}

// IsCircularInheritance checks if an error is due to an inheritance cycle.
func IsCircularInheritance(err error) bool {
	return errors.Is(err, ErrCircularInheritance)
}

// IsDanglingParent checks if an error is due to a missing parent role.
func IsDanglingParent(err error) bool {
	return errors.Is(err, ErrDanglingParent)
}

// IsSystemRoleProtected checks if an error is due to system role protection.
func IsSystemRoleProtected(err error) bool {
	return errors.Is(err, ErrSystemRoleProtected)
}

// IsInvalidPermission checks if an error is due to a permission outside the known domains.
func IsInvalidPermission(err error) bool {
	return errors.Is(err, ErrInvalidPermission)
}

// IsPersistenceFailure checks if an error came from the persistence collaborator.
func IsPersistenceFailure(err error) bool {
	return errors.Is(err, ErrPersistenceFailure)
}

// IsRoleInUse checks if an error is due to other roles inheriting from the target.
func IsRoleInUse(err error) bool {
	return errors.Is(err, ErrRoleInUse)
}

// IsInvalidRole checks if an error is due to a malformed role name or portal.
func IsInvalidRole(err error) bool {
	return errors.Is(err, ErrInvalidRole)
}

// IsAuditIncomplete checks if a mutation succeeded without its audit entry.
func IsAuditIncomplete(err error) bool {
	return errors.Is(err, ErrAuditIncomplete)
}

// IsForbidden checks if an error is a denied permission check.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsValidationError reports whether err is one of the errors raised before any persistence call.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrDuplicateRole,
		ErrCircularInheritance,
		ErrDanglingParent,
		ErrSystemRoleProtected,
		ErrInvalidPermission,
		ErrInvalidRole,
		ErrRoleInUse,
		ErrInvalidAuditEntry,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
