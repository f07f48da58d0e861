package roleadmin

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Middleware provides HTTP middleware for permission checks against resolved roles.
type Middleware struct {
	service      *Service
	getRole      RoleExtractor
	getUserID    func(*http.Request) string
	errorHandler func(http.ResponseWriter, *http.Request, error)
}

// MiddlewareOption configures the Middleware.
type MiddlewareOption func(*Middleware)

// RoleExtractor returns the role name of the caller.
type RoleExtractor func(*http.Request) (string, error)

// NewMiddleware creates a new Middleware instance.
//
// Example:
//
//	mw := roleadmin.NewMiddleware(service,
//	    roleadmin.WithRoleExtractor(func(r *http.Request) (string, error) {
//	        return session.From(r).Role, nil
//	    }),
//	)
//	router.Use(mw.InjectActor())
//	router.With(mw.RequirePermission(roleadmin.ResourceRoles, roleadmin.ActionEdit, roleadmin.ScopeAll)).
//	    Put("/roles/{name}", h.saveRole)
func NewMiddleware(service *Service, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{
		service:      service,
		getRole:      RoleFromContext,
		getUserID:    defaultGetUserID,
		errorHandler: defaultErrorHandler,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// WithRoleExtractor sets how the caller's role name is found.
func WithRoleExtractor(fn RoleExtractor) MiddlewareOption {
	return func(m *Middleware) {
		m.getRole = fn
	}
}

// WithUserIDExtractor sets a custom function to extract the acting user ID from the request.
func WithUserIDExtractor(fn func(*http.Request) string) MiddlewareOption {
	return func(m *Middleware) {
		m.getUserID = fn
	}
}

// WithErrorHandler sets a custom error handler for middleware.
func WithErrorHandler(fn func(http.ResponseWriter, *http.Request, error)) MiddlewareOption {
	return func(m *Middleware) {
		m.errorHandler = fn
	}
}

// defaultGetUserID trusts only what an authentication layer placed in the context.
func defaultGetUserID(r *http.Request) string {
	return GetUserID(r.Context())
}

// UserIDFromHeader creates a user ID extractor reading a request header. Only use it
// behind a proxy that sets the header itself; clients can send any value.
//
// Example:
//
//	roleadmin.WithUserIDExtractor(roleadmin.UserIDFromHeader("X-User-ID"))
func UserIDFromHeader(header string) func(*http.Request) string {
	return func(r *http.Request) string {
		return r.Header.Get(header)
	}
}

func defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, err)
}

// RoleFromContext reads the role set with WithRoleName.
func RoleFromContext(r *http.Request) (string, error) {
	if role := GetRoleName(r.Context()); role != "" {
		return role, nil
	}
	return "", ErrNoRole
}

// RoleFromHeader creates a RoleExtractor reading a request header.
//
// Example:
//
//	roleadmin.WithRoleExtractor(roleadmin.RoleFromHeader("X-Role"))
func RoleFromHeader(header string) RoleExtractor {
	return func(r *http.Request) (string, error) {
		if role := r.Header.Get(header); role != "" {
			return role, nil
		}
		return "", ErrNoRole
	}
}

// RequirePermission creates middleware that requires action on resource with at least scope.
func (m *Middleware) RequirePermission(resource Resource, action Action, scope Scope) func(http.Handler) http.Handler {
	required := Permission{Resource: resource, Action: action, Scope: scope}
	return m.require(func(c *Checker) bool {
		return c.CanPermission(required)
	}, "missing permission "+required.String())
}

// RequireAnyPermission creates middleware that requires at least one of the permissions.
func (m *Middleware) RequireAnyPermission(perms ...Permission) func(http.Handler) http.Handler {
	return m.require(func(c *Checker) bool {
		return c.CanAny(perms...)
	}, "missing required permission")
}

// RequirePortal creates middleware that requires access to a portal.
//
// Example:
//
//	router.With(mw.RequirePortal(roleadmin.PortalHR)).Get("/hr/dashboard", hrDashboard)
func (m *Middleware) RequirePortal(portal Portal) func(http.Handler) http.Handler {
	return m.require(func(c *Checker) bool {
		return c.HasPortal(portal)
	}, "missing portal "+string(portal))
}

// RequireAbility creates middleware that requires an ability flag.
func (m *Middleware) RequireAbility(ability Ability) func(http.Handler) http.Handler {
	return m.require(func(c *Checker) bool {
		return c.HasAbility(ability)
	}, "missing ability "+string(ability))
}

func (m *Middleware) require(allowed func(*Checker) bool, denial string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			role, err := m.getRole(r)
			if err != nil {
				m.errorHandler(w, r, err)
				return
			}

			checker, err := m.service.Checker(ctx, role)
			if err != nil {
				m.errorHandler(w, r, err)
				return
			}

			if !allowed(checker) {
				m.errorHandler(w, r, NewError(ErrForbidden, denial).WithRole(role))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithChecker(ctx, checker)))
		})
	}
}

// LoadChecker creates middleware that loads the caller's Checker into context without
// enforcing anything. Requests without a resolvable role continue without one.
func (m *Middleware) LoadChecker() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, err := m.getRole(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			checker, err := m.service.Checker(r.Context(), role)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithChecker(r.Context(), checker)))
		})
	}
}

// InjectActor creates middleware that extracts audit information from the request
// and adds it to the context. A request ID is generated when the client sent none.
//
// Example:
//
//	router.Use(mw.InjectActor())
func (m *Middleware) InjectActor() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", requestID)

			ctx := WithActor(r.Context(), Actor{
				UserID:    m.getUserID(r),
				IPAddress: clientIP(r),
				UserAgent: r.UserAgent(),
				RequestID: requestID,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
