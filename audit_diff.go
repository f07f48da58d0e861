package roleadmin

import (
	"slices"
	"strconv"
)

// AuditDiff is the structural difference between the two snapshots of an audit entry.
// It is derived for display and never stored.
type AuditDiff struct {
	Added   DiffSet  `json:"added"`
	Removed DiffSet  `json:"removed"`
	Changed []Change `json:"changed,omitempty"`
}

// DiffSet groups items that appear on only one side of a diff.
type DiffSet struct {
	Permissions []Permission `json:"permissions,omitempty"`
	Portals     []Portal     `json:"portals,omitempty"`
	Abilities   []Ability    `json:"abilities,omitempty"`
}

// Empty reports whether the set holds nothing.
func (d DiffSet) Empty() bool {
	return len(d.Permissions) == 0 && len(d.Portals) == 0 && len(d.Abilities) == 0
}

// Change records a value present on both sides with different contents.
// Field is "name", "parentRole", "abilities.<flag>" or "permissions.<resource>.<action>".
type Change struct {
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// Empty reports whether the diff records no difference.
func (d AuditDiff) Empty() bool {
	return d.Added.Empty() && d.Removed.Empty() && len(d.Changed) == 0
}

// Diff compares the previous and new configs of an entry. A create entry diffs as
// everything added, a delete entry as everything removed.
func Diff(entry AuditLogEntry) AuditDiff {
	return DiffRoles(entry.PreviousConfig, entry.NewConfig)
}

// DiffRoles compares two role snapshots. Either may be nil.
func DiffRoles(prev, next *Role) AuditDiff {
	var before, after Role
	if prev != nil {
		before = *prev
	}
	if next != nil {
		after = *next
	}

	var d AuditDiff

	if prev != nil && next != nil && before.Name != after.Name {
		d.Changed = append(d.Changed, Change{Field: "name", From: before.Name, To: after.Name})
	}
	if before.ParentRole != after.ParentRole {
		d.Changed = append(d.Changed, Change{Field: "parentRole", From: before.ParentRole, To: after.ParentRole})
	}

	// Permissions are compared by (resource, action); a scope difference is a change.
	oldPerms := permissionIndex(before.Permissions)
	newPerms := permissionIndex(after.Permissions)
	for _, p := range normalizePermissions(after.Permissions) {
		old, ok := oldPerms[p.Key()]
		switch {
		case !ok:
			d.Added.Permissions = append(d.Added.Permissions, p)
		case old != p.Scope:
			d.Changed = append(d.Changed, Change{
				Field: "permissions." + p.Key().String(),
				From:  string(old),
				To:    string(p.Scope),
			})
		}
	}
	for _, p := range normalizePermissions(before.Permissions) {
		if _, ok := newPerms[p.Key()]; !ok {
			d.Removed.Permissions = append(d.Removed.Permissions, p)
		}
	}

	for _, p := range normalizePortals(after.Portals) {
		if !slices.Contains(before.Portals, p) {
			d.Added.Portals = append(d.Added.Portals, p)
		}
	}
	for _, p := range normalizePortals(before.Portals) {
		if !slices.Contains(after.Portals, p) {
			d.Removed.Portals = append(d.Removed.Portals, p)
		}
	}

	switch {
	case prev == nil:
		d.Added.Abilities = after.Abilities.Granted()
	case next == nil:
		d.Removed.Abilities = before.Abilities.Granted()
	default:
		for _, ability := range []Ability{AbilityManageUsers, AbilityManageContent, AbilityViewAllData} {
			was, is := before.Abilities.Has(ability), after.Abilities.Has(ability)
			if was != is {
				d.Changed = append(d.Changed, Change{
					Field: "abilities." + string(ability),
					From:  strconv.FormatBool(was),
					To:    strconv.FormatBool(is),
				})
			}
		}
	}

	return d
}

func permissionIndex(perms []Permission) map[PermissionKey]Scope {
	idx := make(map[PermissionKey]Scope, len(perms))
	for _, p := range perms {
		idx[p.Key()] = MaxScope(idx[p.Key()], p.Scope)
	}
	return idx
}
