package roleadmin

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type saveMode int

const (
	saveUpsert saveMode = iota
	saveCreate
	saveBootstrap
)

// SaveRole creates the role if name is unknown and updates it otherwise. Setting cfg.Name
// to a different value renames a custom role.
//
// Checks run before anything is persisted:
//   - a rename of a system role fails with ErrSystemRoleProtected
//   - a rename onto a taken name fails with ErrDuplicateRole
//   - a rename of a role other roles inherit from fails with ErrRoleInUse
//   - a missing parent fails with ErrDanglingParent, a loop with ErrCircularInheritance
//   - permissions outside the known domains fail with ErrInvalidPermission
//
// The returned role is the one now held by the store. If the role was persisted but its
// audit entry could not be written, the role is returned together with ErrAuditIncomplete.
//
// Example:
//
//	role, err := service.SaveRole(ctx, "Field Tech", roleadmin.RoleConfig{
//	    ParentRole:  "Technician",
//	    Permissions: roleadmin.Perms("jobs.view:division"),
//	}, actor)
func (s *Service) SaveRole(ctx context.Context, name string, cfg RoleConfig, actor Actor) (Role, error) {
	return s.save(ctx, name, cfg, actor, saveUpsert)
}

// CreateRole creates a new custom role named cfg.Name. It fails with ErrDuplicateRole
// if the name is taken.
func (s *Service) CreateRole(ctx context.Context, cfg RoleConfig, actor Actor) (Role, error) {
	return s.save(ctx, cfg.Name, cfg, actor, saveCreate)
}

// DeleteRole removes a custom role. System roles fail with ErrSystemRoleProtected and
// roles other roles inherit from fail with ErrRoleInUse; neither reaches persistence.
func (s *Service) DeleteRole(ctx context.Context, name string, actor Actor) (err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "delete", name, actor, time.Since(start), err) }()

	if err := validateActor(name, actor); err != nil {
		return err
	}

	unlock, err := s.locker.Lock(ctx, name)
	if err != nil {
		return err
	}
	defer unlock()

	// removing a node can orphan a child saved concurrently
	snap, release := s.lockGraph(func(*Snapshot) bool { return true })
	defer release()

	existing, ok := snap.Get(name)
	if !ok {
		return notFound(name)
	}
	if existing.IsSystem {
		return NewError(ErrSystemRoleProtected, "system roles cannot be deleted").WithRole(name)
	}
	if deps := snap.Dependants(name); len(deps) > 0 {
		return NewError(ErrRoleInUse, fmt.Sprintf("roles %v inherit from %q", deps, name)).
			WithRole(name).WithField("parentRole", deps[0])
	}

	entry := actorEntry(actor)
	entry.RoleName = name
	entry.Action = AuditActionDelete
	entry.PreviousConfig = &existing

	return s.commit(ctx, entry,
		func(ctx context.Context, p Persistence) error {
			if err := p.PersistRoleDeletion(ctx, name); err != nil {
				return persistenceFailure("persist role deletion", name, err)
			}
			return nil
		},
		func() { _ = s.store.Remove(name) },
	)
}

// Bootstrap creates each given role that does not exist yet, marked as a system role and
// audited as created by SystemActor. Existing roles are left untouched. With no arguments
// it installs DefaultSystemRoles. Roles are created in order, so parents must come first.
func (s *Service) Bootstrap(ctx context.Context, roles ...Role) ([]Role, error) {
	if len(roles) == 0 {
		roles = DefaultSystemRoles()
	}

	var created []Role
	for _, r := range roles {
		if s.store.Snapshot().Has(r.Name) {
			continue
		}
		role, err := s.save(ctx, r.Name, r.Config(), SystemActor, saveBootstrap)
		if IsDuplicateRole(err) {
			continue
		}
		if err != nil && !IsAuditIncomplete(err) {
			return created, err
		}
		created = append(created, role)
		if err != nil {
			return created, err
		}
	}
	if len(created) > 0 {
		s.logger.InfoContext(ctx, "system roles bootstrapped", slog.Int("created", len(created)))
	}
	return created, nil
}

func (s *Service) save(ctx context.Context, name string, cfg RoleConfig, actor Actor, mode saveMode) (saved Role, err error) {
	operation := "save"
	if mode != saveUpsert {
		operation = "create"
	}
	start := time.Now()
	defer func() { s.observe(ctx, operation, name, actor, time.Since(start), err) }()

	if err := ValidateConfig(name, cfg); err != nil {
		return Role{}, err
	}
	if err := validateActor(name, actor); err != nil {
		return Role{}, err
	}
	if cfg.Permissions == nil {
		cfg.Permissions = []Permission{}
	}

	target := effectiveName(name, cfg)
	unlock, err := s.locker.Lock(ctx, name, target)
	if err != nil {
		return Role{}, err
	}
	defer unlock()

	snap, release := s.lockGraph(func(snap *Snapshot) bool {
		existing, ok := snap.Get(name)
		return !ok || target != name || existing.ParentRole != cfg.ParentRole
	})
	defer release()

	existing, exists := snap.Get(name)
	rename := target != name

	if exists && mode != saveUpsert {
		return Role{}, NewError(ErrDuplicateRole, fmt.Sprintf("role %q already exists", name)).
			WithRole(name).WithField("name", name)
	}
	if rename {
		if !exists {
			return Role{}, notFound(name)
		}
		if existing.IsSystem {
			return Role{}, NewError(ErrSystemRoleProtected, "system roles cannot be renamed").
				WithRole(name).WithField("name", target)
		}
		if snap.Has(target) {
			return Role{}, NewError(ErrDuplicateRole, fmt.Sprintf("role %q already exists", target)).
				WithRole(name).WithField("name", target)
		}
		if deps := snap.Dependants(name); len(deps) > 0 {
			return Role{}, NewError(ErrRoleInUse, fmt.Sprintf("roles %v inherit from %q", deps, name)).
				WithRole(name).WithField("name", target)
		}
	}
	if err := s.resolver.detectCycle(snap, target, cfg.ParentRole, target, name); err != nil {
		return Role{}, err
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	role := Role{
		Name:        target,
		ParentRole:  cfg.ParentRole,
		Portals:     normalizePortals(cfg.Portals),
		Permissions: normalizePermissions(cfg.Permissions),
		Abilities:   cfg.Abilities,
		IsSystem:    mode == saveBootstrap,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	entry := actorEntry(actor)
	entry.RoleName = target
	entry.Action = AuditActionCreate
	entry.NewConfig = &role
	if exists {
		role.IsSystem = existing.IsSystem
		role.CreatedAt = existing.CreatedAt
		entry.Action = AuditActionUpdate
		entry.PreviousConfig = &existing
	}

	err = s.commit(ctx, entry,
		func(ctx context.Context, p Persistence) error {
			if err := p.PersistRole(ctx, role); err != nil {
				return persistenceFailure("persist role", target, err)
			}
			if rename {
				if err := p.PersistRoleDeletion(ctx, name); err != nil {
					return persistenceFailure("persist role rename", name, err)
				}
			}
			return nil
		},
		func() {
			if rename {
				s.store.Rename(name, role)
				return
			}
			s.store.Put(role)
		},
	)
	if err != nil && !IsAuditIncomplete(err) {
		return Role{}, err
	}
	return role.Clone(), err
}

// lockGraph holds applyMu for the rest of a mutation and returns the snapshot to validate
// against. Mutations for which changesGraph reports true (creates, renames, deletes and
// parent changes) hold it exclusively, so cycle, parent and dependant checks see every
// other hierarchy change either fully applied or not started. Permission-only updates
// share it. Reload always runs exclusively.
func (s *Service) lockGraph(changesGraph func(*Snapshot) bool) (*Snapshot, func()) {
	s.applyMu.RLock()
	if snap := s.store.Snapshot(); !changesGraph(snap) {
		return snap, s.applyMu.RUnlock
	}
	s.applyMu.RUnlock()

	s.applyMu.Lock()
	return s.store.Snapshot(), s.applyMu.Unlock
}

// commit runs write and the audit append, then apply. The caller holds applyMu through
// lockGraph. With a Transactor both writes share one transaction. Without one, a failed
// audit append is retried; if it keeps failing the change stays applied and
// ErrAuditIncomplete is returned.
func (s *Service) commit(ctx context.Context, entry AuditLogEntry, write func(context.Context, Persistence) error, apply func()) error {
	entry = s.audit.prepare(entry)
	if err := ValidateAuditEntry(entry); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if tx, ok := s.persistence.(Transactor); ok {
		err := tx.WithinTransaction(ctx, func(p Persistence) error {
			if err := write(ctx, p); err != nil {
				return err
			}
			_, err := s.audit.recordTo(ctx, p, entry)
			return err
		})
		if err != nil {
			return asPersistenceFailure("commit transaction", entry.RoleName, err)
		}
		apply()
		return nil
	}

	if err := write(ctx, s.persistence); err != nil {
		return err
	}
	apply()

	if err := s.recordWithRetry(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "role change persisted without audit entry",
			slog.String("role", entry.RoleName),
			slog.String("action", string(entry.Action)),
			slog.String("audit_id", entry.ID),
			slog.String("actor", entry.UserID),
			slog.Any("error", err),
		)
		return NewError(ErrAuditIncomplete, "role change persisted without audit entry").
			WithRole(entry.RoleName).WithCause(err)
	}
	return nil
}

func (s *Service) observe(ctx context.Context, operation, role string, actor Actor, d time.Duration, err error) {
	s.monitor.record(d, err)
	s.metrics.observeMutation(operation, d, err)

	attrs := []any{
		slog.String("operation", operation),
		slog.String("role", role),
		slog.String("actor", actor.UserID),
		slog.Duration("duration", d),
	}
	switch outcome(err) {
	case "success":
		s.logger.InfoContext(ctx, "role mutation applied", attrs...)
	case "rejected":
		s.logger.DebugContext(ctx, "role mutation rejected", append(attrs, slog.Any("error", err))...)
	default:
		s.logger.WarnContext(ctx, "role mutation failed", append(attrs, slog.Any("error", err))...)
	}
}

func validateActor(role string, actor Actor) error {
	if actor.UserID == "" {
		return NewError(ErrInvalidAuditEntry, "actor user id is required").
			WithRole(role).WithField("user_id", "")
	}
	return nil
}

func actorEntry(actor Actor) AuditLogEntry {
	return AuditLogEntry{
		UserID:    actor.UserID,
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
		RequestID: actor.RequestID,
	}
}
