package roleadmin

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Permission grants one action on one resource type at a given breadth.
type Permission struct {
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
	Scope    Scope    `json:"scope"`
}

// PermissionKey identifies a permission independently of its scope.
// Permissions sharing a key are merged by keeping the broadest scope.
type PermissionKey struct {
	Resource Resource
	Action   Action
}

// String returns the key as "resource.action".
func (k PermissionKey) String() string {
	return string(k.Resource) + "." + string(k.Action)
}

// Key returns the (resource, action) pair of the permission.
func (p Permission) Key() PermissionKey {
	return PermissionKey{Resource: p.Resource, Action: p.Action}
}

// String returns the compact text form "resource.action:scope".
func (p Permission) String() string {
	return fmt.Sprintf("%s.%s:%s", p.Resource, p.Action, p.Scope)
}

// Validate checks that every component belongs to its enumerated domain.
func (p Permission) Validate() error {
	switch {
	case !p.Resource.Valid():
		return NewError(ErrInvalidPermission, fmt.Sprintf("unknown resource %q", p.Resource)).
			WithField("resource", string(p.Resource))
	case !p.Action.Valid():
		return NewError(ErrInvalidPermission, fmt.Sprintf("unknown action %q", p.Action)).
			WithField("action", string(p.Action))
	case !p.Scope.Valid():
		return NewError(ErrInvalidPermission, fmt.Sprintf("unknown scope %q", p.Scope)).
			WithField("scope", string(p.Scope))
	}
	return nil
}

// ParsePermission parses the compact form produced by Permission.String.
// The scope suffix is optional and defaults to "own".
//
// Examples:
//
//	ParsePermission("jobs.view:division") // {jobs view division}
//	ParsePermission("reports.approve")    // {reports approve own}
func ParsePermission(s string) (Permission, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Permission{}, NewError(ErrInvalidPermission, "permission cannot be empty")
	}

	body, scope, hasScope := strings.Cut(s, ":")
	if !hasScope {
		scope = string(ScopeOwn)
	}

	resource, action, ok := strings.Cut(body, ".")
	if !ok || resource == "" || action == "" {
		return Permission{}, NewError(ErrInvalidPermission, "permission must have the form resource.action[:scope]").
			WithField("permission", s)
	}

	p := Permission{Resource: Resource(resource), Action: Action(action), Scope: Scope(scope)}
	if err := p.Validate(); err != nil {
		return Permission{}, err
	}
	return p, nil
}

// MustParsePermission is like ParsePermission but panics on error.
// Intended for static role definitions.
func MustParsePermission(s string) Permission {
	p, err := ParsePermission(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Perms parses a list of compact permissions, panicking on the first invalid one.
func Perms(specs ...string) []Permission {
	out := make([]Permission, 0, len(specs))
	for _, s := range specs {
		out = append(out, MustParsePermission(s))
	}
	return out
}

// MaxRoleNameLength bounds role names.
const MaxRoleNameLength = 64

var roleNamePattern = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N} _.\-]*$`)

// ValidateRoleName checks that a role name is usable as an identifier.
func ValidateRoleName(name string) error {
	if strings.TrimSpace(name) == "" {
		return NewError(ErrInvalidRole, "role name cannot be empty").WithField("name", name)
	}
	if len(name) > MaxRoleNameLength {
		return NewError(ErrInvalidRole, fmt.Sprintf("role name exceeds %d characters", MaxRoleNameLength)).
			WithRole(name).WithField("name", name)
	}
	if name != strings.TrimSpace(name) || !roleNamePattern.MatchString(name) {
		return NewError(ErrInvalidRole, "role name contains invalid characters").
			WithRole(name).WithField("name", name)
	}
	return nil
}

// ValidateConfig checks a role configuration against the enumerated domains.
// It does not look at other roles; parent existence and cycles are checked by the Service.
func ValidateConfig(name string, cfg RoleConfig) error {
	if err := ValidateRoleName(name); err != nil {
		return err
	}
	if cfg.Name != "" && cfg.Name != name {
		if err := ValidateRoleName(cfg.Name); err != nil {
			return err
		}
	}
	if cfg.ParentRole != "" && cfg.ParentRole == effectiveName(name, cfg) {
		return NewError(ErrCircularInheritance, "role cannot inherit from itself").
			WithRole(name).WithField("parentRole", cfg.ParentRole)
	}
	for i, portal := range cfg.Portals {
		if !portal.Valid() {
			return NewError(ErrInvalidRole, fmt.Sprintf("unknown portal %q", portal)).
				WithRole(name).WithField(fmt.Sprintf("portals[%d]", i), string(portal))
		}
	}
	for i, p := range cfg.Permissions {
		if err := p.Validate(); err != nil {
			var e *Error
			if errors.As(err, &e) {
				e.WithRole(name).WithField(fmt.Sprintf("permissions[%d].%s", i, e.Field), e.Value)
			}
			return err
		}
	}
	return nil
}

func effectiveName(name string, cfg RoleConfig) string {
	if cfg.Name != "" {
		return cfg.Name
	}
	return name
}

// normalizePermissions collapses duplicate (resource, action) pairs to their broadest scope
// and returns them in canonical order.
func normalizePermissions(perms []Permission) []Permission {
	if len(perms) == 0 {
		return []Permission{}
	}
	merged := make(map[PermissionKey]Scope, len(perms))
	for _, p := range perms {
		if cur, ok := merged[p.Key()]; ok {
			merged[p.Key()] = MaxScope(cur, p.Scope)
			continue
		}
		merged[p.Key()] = p.Scope
	}
	return sortedPermissions(merged)
}

func normalizePortals(portals []Portal) []Portal {
	set := make(map[Portal]struct{}, len(portals))
	for _, p := range portals {
		set[p] = struct{}{}
	}
	return sortedPortals(set)
}
