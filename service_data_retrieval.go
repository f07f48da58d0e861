package roleadmin

import (
	"context"
	"log/slog"
)

// ListRoles returns every role sorted by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.store.List(), nil
}

// GetRole returns a role by name, or ErrNotFound.
func (s *Service) GetRole(ctx context.Context, name string) (Role, error) {
	if err := ctx.Err(); err != nil {
		return Role{}, err
	}
	return s.store.Get(name)
}

// GetAuditLogs returns audit entries newest first, optionally for a single role.
// A limit of zero or less means DefaultAuditLimit.
//
// Example:
//
//	entries, err := service.GetAuditLogs(ctx, "Field Tech", 20)
func (s *Service) GetAuditLogs(ctx context.Context, roleName string, limit int) ([]AuditLogEntry, error) {
	return s.audit.Query(ctx, NewAuditLogFilter().WithRole(roleName).WithLimit(limit))
}

// QueryAuditLogs returns audit entries matching filter, newest first.
func (s *Service) QueryAuditLogs(ctx context.Context, filter AuditLogFilter) ([]AuditLogEntry, error) {
	return s.audit.Query(ctx, filter)
}

// Reload replaces the store contents with the roles held by the persistence collaborator.
// Concurrent calls share one fetch. Mutations in flight finish before the swap.
func (s *Service) Reload(ctx context.Context) error {
	ch := s.reload.DoChan("reload", func() (any, error) {
		s.applyMu.Lock()
		defer s.applyMu.Unlock()

		if err := s.store.Load(context.WithoutCancel(ctx), s.persistence); err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "role store reloaded", slog.Int("roles", s.store.Snapshot().Len()))
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}
