// Package roleadmin provides role-based access control administration for a
// multi-portal business application.
//
// Roles carry portal access, resource permissions with an access scope, and a
// small set of abilities. A role may inherit from one parent role; the effective
// permissions of a role are the union of its own grants and those of its
// ancestors, keeping the widest scope for each resource and action.
//
// # Core Concepts
//
// Scope: how far a permission reaches. Scopes are ordered own < division < all.
//
// Permission: a (resource, action, scope) triple such as "jobs.edit:division".
//
// RoleStore: the authoritative in-memory set of roles. Reads see an immutable
// snapshot; writers publish a new snapshot atomically.
//
// PermissionResolver: walks the inheritance chain of a role and merges its grants.
// Cycles and missing parents are reported as corruption, never looped on.
//
// AuditLog: an append-only record of every create, update and delete, with the
// full configuration before and after the change.
//
// Service: the administration entry point. It validates, locks, persists, applies
// and audits every mutation.
//
// # Basic Usage
//
//	persistence := roleadmin.NewMemoryPersistence()
//	store := roleadmin.NewRoleStore()
//	service := roleadmin.NewService(store, persistence, roleadmin.WithLogger(logger))
//
//	if _, err := service.Bootstrap(ctx); err != nil {
//	    return err
//	}
//
//	actor := roleadmin.Actor{UserID: "u-42", IPAddress: "10.0.0.1"}
//	role, err := service.SaveRole(ctx, "Field Lead", roleadmin.RoleConfig{
//	    ParentRole:  roleadmin.RoleTechnician,
//	    Portals:     []roleadmin.Portal{roleadmin.PortalNeta},
//	    Permissions: roleadmin.Perms("jobs.assign:division"),
//	}, actor)
//
//	eff, err := service.ResolvePermissions(ctx, "Field Lead")
//	if eff.Can(roleadmin.ResourceJobs, roleadmin.ActionEdit, roleadmin.ScopeOwn) {
//	    // ...
//	}
//
// # HTTP
//
// NewHandler exposes the administration operations as a chi router, and
// NewMiddleware guards other routes by permission, portal or ability:
//
//	mw := roleadmin.NewMiddleware(service, roleadmin.WithRoleExtractor(roleadmin.RoleFromHeader("X-Role")))
//	r.With(mw.RequirePermission(roleadmin.ResourceReports, roleadmin.ActionView, roleadmin.ScopeDivision)).
//	    Get("/reports", listReports)
//
// # Persistence
//
// MemoryPersistence suits tests and single-process deployments. PostgresPersistence
// stores roles and audit entries through dbkit and runs both writes of a mutation
// in one transaction. RedisLocker serializes mutations across processes.
package roleadmin
