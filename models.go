package roleadmin

import (
	"slices"
	"time"
)

// Portal identifies an application portal a role may access.
type Portal string

const (
	PortalSales       Portal = "sales"
	PortalNeta        Portal = "neta"
	PortalLab         Portal = "lab"
	PortalHR          Portal = "hr"
	PortalOffice      Portal = "office"
	PortalEngineering Portal = "engineering"
	PortalScavenger   Portal = "scavenger"
	PortalAdmin       Portal = "admin"
)

// Portals lists every known portal.
var Portals = []Portal{
	PortalSales, PortalNeta, PortalLab, PortalHR,
	PortalOffice, PortalEngineering, PortalScavenger, PortalAdmin,
}

// Valid reports whether p is a known portal.
func (p Portal) Valid() bool {
	return slices.Contains(Portals, p)
}

// Resource is the kind of record a permission applies to.
type Resource string

const (
	ResourceUsers         Resource = "users"
	ResourceRoles         Resource = "roles"
	ResourceCustomers     Resource = "customers"
	ResourceJobs          Resource = "jobs"
	ResourceOpportunities Resource = "opportunities"
	ResourceReports       Resource = "reports"
	ResourceDocuments     Resource = "documents"
	ResourceSettings      Resource = "settings"
	ResourceEncryption    Resource = "encryption"
	ResourceSystem        Resource = "system"
)

// Resources lists every known resource.
var Resources = []Resource{
	ResourceUsers, ResourceRoles, ResourceCustomers, ResourceJobs, ResourceOpportunities,
	ResourceReports, ResourceDocuments, ResourceSettings, ResourceEncryption, ResourceSystem,
}

// Valid reports whether r is a known resource.
func (r Resource) Valid() bool {
	return slices.Contains(Resources, r)
}

// Action is the operation a permission grants on a resource.
type Action string

const (
	ActionView    Action = "view"
	ActionCreate  Action = "create"
	ActionEdit    Action = "edit"
	ActionDelete  Action = "delete"
	ActionApprove Action = "approve"
	ActionAssign  Action = "assign"
)

// Actions lists every known action.
var Actions = []Action{
	ActionView, ActionCreate, ActionEdit, ActionDelete, ActionApprove, ActionAssign,
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	return slices.Contains(Actions, a)
}

// Scope is the breadth of a permission. Scopes are totally ordered: own < division < all.
type Scope string

const (
	ScopeOwn      Scope = "own"
	ScopeDivision Scope = "division"
	ScopeAll      Scope = "all"
)

// Scopes lists every known scope in ascending order.
var Scopes = []Scope{ScopeOwn, ScopeDivision, ScopeAll}

// Rank returns the position of s in the scope order, or -1 for an unknown scope.
func (s Scope) Rank() int {
	return slices.Index(Scopes, s)
}

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s.Rank() >= 0
}

// Covers reports whether a grant of scope s satisfies a requirement of scope required.
func (s Scope) Covers(required Scope) bool {
	return s.Valid() && required.Valid() && s.Rank() >= required.Rank()
}

// MaxScope returns the broader of two scopes.
func MaxScope(a, b Scope) Scope {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Abilities are coarse boolean grants that sit beside fine-grained permissions.
type Abilities struct {
	CanManageUsers   bool `json:"canManageUsers"`
	CanManageContent bool `json:"canManageContent"`
	CanViewAllData   bool `json:"canViewAllData"`
}

// Merge returns the OR of both ability sets.
func (a Abilities) Merge(other Abilities) Abilities {
	return Abilities{
		CanManageUsers:   a.CanManageUsers || other.CanManageUsers,
		CanManageContent: a.CanManageContent || other.CanManageContent,
		CanViewAllData:   a.CanViewAllData || other.CanViewAllData,
	}
}

// Ability names a single ability flag.
type Ability string

const (
	AbilityManageUsers   Ability = "canManageUsers"
	AbilityManageContent Ability = "canManageContent"
	AbilityViewAllData   Ability = "canViewAllData"
)

// Has reports whether the named ability is granted.
func (a Abilities) Has(ability Ability) bool {
	switch ability {
	case AbilityManageUsers:
		return a.CanManageUsers
	case AbilityManageContent:
		return a.CanManageContent
	case AbilityViewAllData:
		return a.CanViewAllData
	}
	return false
}

// Granted returns the names of the abilities set to true.
func (a Abilities) Granted() []Ability {
	var out []Ability
	for _, ability := range []Ability{AbilityManageUsers, AbilityManageContent, AbilityViewAllData} {
		if a.Has(ability) {
			out = append(out, ability)
		}
	}
	return out
}

// Role is a named policy bundle: portal access, abilities and permissions,
// optionally inheriting from a parent role.
type Role struct {
	Name        string       `json:"name"`
	ParentRole  string       `json:"parentRole,omitempty"`
	Portals     []Portal     `json:"portals"`
	Permissions []Permission `json:"permissions"`
	Abilities   Abilities    `json:"abilities"`
	IsSystem    bool         `json:"isSystem"`
	CreatedAt   time.Time    `json:"createdAt,omitzero"`
	UpdatedAt   time.Time    `json:"updatedAt,omitzero"`
}

// Clone returns a deep copy of the role.
func (r Role) Clone() Role {
	r.Portals = slices.Clone(r.Portals)
	r.Permissions = slices.Clone(r.Permissions)
	return r
}

// Config returns the caller-editable part of the role.
func (r Role) Config() RoleConfig {
	return RoleConfig{
		Name:        r.Name,
		ParentRole:  r.ParentRole,
		Portals:     slices.Clone(r.Portals),
		Permissions: slices.Clone(r.Permissions),
		Abilities:   r.Abilities,
	}
}

// RoleConfig is the mutable configuration supplied when saving a role.
// A non-empty Name different from the saved role's name requests a rename.
type RoleConfig struct {
	Name        string       `json:"name,omitempty"`
	ParentRole  string       `json:"parentRole,omitempty"`
	Portals     []Portal     `json:"portals"`
	Permissions []Permission `json:"permissions"`
	Abilities   Abilities    `json:"abilities"`
}

// Actor identifies who performed a mutation, for the audit trail.
type Actor struct {
	UserID    string `json:"user_id"`
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	RequestID string `json:"request_id,omitempty"`
}

// SystemActor is used for mutations performed by the engine itself, such as bootstrapping.
var SystemActor = Actor{UserID: "system"}

// AuditAction represents the type of mutation in the audit log.
type AuditAction string

const (
	AuditActionCreate AuditAction = "create"
	AuditActionUpdate AuditAction = "update"
	AuditActionDelete AuditAction = "delete"
)

// Valid reports whether a is a known audit action.
func (a AuditAction) Valid() bool {
	switch a {
	case AuditActionCreate, AuditActionUpdate, AuditActionDelete:
		return true
	}
	return false
}

// AuditLogEntry is an immutable record of one role mutation.
type AuditLogEntry struct {
	ID             string      `json:"id"`
	RoleName       string      `json:"role_name"`
	Action         AuditAction `json:"action"`
	PreviousConfig *Role       `json:"previous_config"`
	NewConfig      *Role       `json:"new_config"`
	UserID         string      `json:"user_id"`
	IPAddress      string      `json:"ip_address"`
	UserAgent      string      `json:"user_agent"`
	RequestID      string      `json:"request_id,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`

	// Sequence is the insertion order assigned by the persistence layer.
	// It breaks ties between entries with equal CreatedAt.
	Sequence int64 `json:"sequence"`
}

// EffectivePermissions is the merged result of walking a role's inheritance chain.
type EffectivePermissions struct {
	Role        string       `json:"role"`
	Chain       []string     `json:"chain"`
	Permissions []Permission `json:"permissions"`
	Portals     []Portal     `json:"portals"`
	Abilities   Abilities    `json:"abilities"`
}
