package roleadmin

import (
	"context"
	"log/slog"
)

// ResolvePermissions returns the effective permissions of a role against the current
// store snapshot.
//
// ErrCircularInheritance and ErrDanglingParent mean the stored roles are corrupt. They are
// logged at error level for the affected role and returned; other roles keep resolving.
func (s *Service) ResolvePermissions(ctx context.Context, name string) (EffectivePermissions, error) {
	if err := ctx.Err(); err != nil {
		return EffectivePermissions{}, err
	}

	eff, err := s.resolver.Resolve(s.store.Snapshot(), name)
	if err != nil {
		if IsCircularInheritance(err) || IsDanglingParent(err) {
			s.metrics.observeResolutionError(err)
			s.logger.ErrorContext(ctx, "stored role hierarchy is corrupt",
				slog.String("role", name),
				slog.Any("error", err),
			)
		}
		return EffectivePermissions{}, err
	}
	return eff, nil
}

// CanRole reports whether the role is granted action on resource with at least scope.
func (s *Service) CanRole(ctx context.Context, role string, resource Resource, action Action, scope Scope) (bool, error) {
	c, err := s.Checker(ctx, role)
	if err != nil {
		return false, err
	}
	return c.Can(resource, action, scope), nil
}

// Checker resolves the role and wraps the result for repeated checks.
func (s *Service) Checker(ctx context.Context, role string) (*Checker, error) {
	eff, err := s.ResolvePermissions(ctx, role)
	if err != nil {
		return nil, err
	}
	return NewChecker(eff), nil
}

// AssignableParents lists the roles that may become name's parent without breaking the
// hierarchy. name need not exist yet.
func (s *Service) AssignableParents(ctx context.Context, name string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.resolver.AssignableParents(s.store.Snapshot(), name), nil
}
