package roleadmin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler exposes the Service as a JSON API.
type Handler struct {
	service   *Service
	logger    *slog.Logger
	validator *validator.Validate
	guard     *Middleware
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHandlerLogger sets the handler logger.
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithGuard protects the routes with permission checks on the roles resource.
func WithGuard(mw *Middleware) HandlerOption {
	return func(h *Handler) {
		h.guard = mw
	}
}

// NewHandler constructs a Handler.
func NewHandler(service *Service, opts ...HandlerOption) *Handler {
	v := validator.New()
	_ = v.RegisterValidation("rolename", func(fl validator.FieldLevel) bool {
		return ValidateRoleName(fl.Field().String()) == nil
	})

	h := &Handler{
		service:   service,
		logger:    service.logger,
		validator: v,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns a router with every endpoint mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

// MountRoutes registers the role administration routes on r.
func (h *Handler) MountRoutes(r chi.Router) {
	view := h.permission(ActionView)
	r.With(view).Get("/roles", h.listRoles)
	r.With(h.permission(ActionCreate)).Post("/roles", h.createRole)
	r.With(view).Get("/roles/{name}", h.getRole)
	r.With(h.permission(ActionEdit)).Put("/roles/{name}", h.saveRole)
	r.With(h.permission(ActionDelete)).Delete("/roles/{name}", h.deleteRole)
	r.With(view).Get("/roles/{name}/permissions", h.resolvePermissions)
	r.With(view).Get("/roles/{name}/parents", h.assignableParents)
	r.With(view).Get("/roles/{name}/audit", h.roleAudit)
	r.With(view).Get("/audit", h.queryAudit)
	r.With(h.permission(ActionEdit)).Post("/reload", h.reload)
}

func (h *Handler) permission(action Action) func(http.Handler) http.Handler {
	if h.guard == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return h.guard.RequirePermission(ResourceRoles, action, ScopeAll)
}

type permissionRequest struct {
	Resource Resource `json:"resource" validate:"required"`
	Action   Action   `json:"action" validate:"required"`
	Scope    Scope    `json:"scope" validate:"required"`
}

type roleRequest struct {
	Name        string              `json:"name" validate:"omitempty,rolename"`
	ParentRole  string              `json:"parentRole" validate:"omitempty,rolename"`
	Portals     []Portal            `json:"portals" validate:"dive,required"`
	Permissions []permissionRequest `json:"permissions" validate:"dive"`
	Abilities   Abilities           `json:"abilities"`
}

func (req roleRequest) config() RoleConfig {
	cfg := RoleConfig{
		Name:        req.Name,
		ParentRole:  req.ParentRole,
		Portals:     req.Portals,
		Permissions: make([]Permission, 0, len(req.Permissions)),
		Abilities:   req.Abilities,
	}
	for _, p := range req.Permissions {
		cfg.Permissions = append(cfg.Permissions, Permission(p))
	}
	return cfg
}

type auditEntryView struct {
	AuditLogEntry
	Diff AuditDiff `json:"diff"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.GetRole(r.Context(), roleParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error: "invalid request", Code: "invalid_request",
			Fields: map[string]string{"name": "required"},
		})
		return
	}

	role, err := h.service.CreateRole(r.Context(), req.config(), ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, role)
}

func (h *Handler) saveRole(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	role, err := h.service.SaveRole(r.Context(), roleParam(r), req.config(), ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRole(r.Context(), roleParam(r), ActorFromContext(r.Context())); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) resolvePermissions(w http.ResponseWriter, r *http.Request) {
	eff, err := h.service.ResolvePermissions(r.Context(), roleParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eff)
}

func (h *Handler) assignableParents(w http.ResponseWriter, r *http.Request) {
	parents, err := h.service.AssignableParents(r.Context(), roleParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"parents": parents})
}

func (h *Handler) roleAudit(w http.ResponseWriter, r *http.Request) {
	var limit int
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.badQuery(w, "limit", err)
			return
		}
		limit = n
	}
	entries, err := h.service.GetAuditLogs(r.Context(), roleParam(r), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": withDiffs(entries)})
}

func (h *Handler) queryAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := NewAuditLogFilter().
		WithRole(q.Get("role")).
		WithAction(AuditAction(q.Get("action"))).
		WithUser(q.Get("user"))

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			h.badQuery(w, "limit", err)
			return
		}
		filter = filter.WithLimit(limit)
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			h.badQuery(w, "offset", err)
			return
		}
		filter = filter.WithOffset(offset)
	}
	for _, bound := range []struct {
		name string
		set  func(time.Time)
	}{
		{"since", func(t time.Time) { filter = filter.WithSince(t) }},
		{"until", func(t time.Time) { filter = filter.WithUntil(t) }},
	} {
		if v := q.Get(bound.name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				h.badQuery(w, bound.name, err)
				return
			}
			bound.set(t)
		}
	}

	entries, err := h.service.QueryAuditLogs(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": withDiffs(entries)})
}

func (h *Handler) reload(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reload(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (roleRequest, bool) {
	var req roleRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed JSON body", Code: "bad_request"})
		return req, false
	}

	if err := h.validator.Struct(req); err != nil {
		fields := make(map[string]string)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields[fe.Namespace()] = fe.Tag()
			}
		}
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error: "invalid request", Code: "invalid_request", Fields: fields,
		})
		return req, false
	}
	return req, true
}

func (h *Handler) badQuery(w http.ResponseWriter, param string, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Error:  err.Error(),
		Code:   "bad_request",
		Fields: map[string]string{param: "invalid"},
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status := StatusCode(err); status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "role admin request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	writeError(w, err)
}

func withDiffs(entries []AuditLogEntry) []auditEntryView {
	out := make([]auditEntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryView{AuditLogEntry: e, Diff: Diff(e)})
	}
	return out
}

func roleParam(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	if name, err := url.PathUnescape(raw); err == nil {
		return name
	}
	return raw
}

type errorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code"`
	Role   string            `json:"role,omitempty"`
	Field  string            `json:"field,omitempty"`
	Value  string            `json:"value,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

var errorCodes = []struct {
	err    error
	code   string
	status int
}{
	{ErrNotFound, "not_found", http.StatusNotFound},
	{ErrDuplicateRole, "duplicate_role", http.StatusConflict},
	{ErrSystemRoleProtected, "system_role_protected", http.StatusConflict},
	{ErrRoleInUse, "role_in_use", http.StatusConflict},
	{ErrCircularInheritance, "circular_inheritance", http.StatusUnprocessableEntity},
	{ErrDanglingParent, "dangling_parent", http.StatusUnprocessableEntity},
	{ErrInvalidPermission, "invalid_permission", http.StatusUnprocessableEntity},
	{ErrInvalidRole, "invalid_role", http.StatusUnprocessableEntity},
	{ErrInvalidAuditEntry, "invalid_actor", http.StatusUnprocessableEntity},
	{ErrNoRole, "unauthenticated", http.StatusUnauthorized},
	{ErrForbidden, "forbidden", http.StatusForbidden},
	{ErrAuditIncomplete, "audit_incomplete", http.StatusInternalServerError},
	{ErrPersistenceFailure, "persistence_failure", http.StatusServiceUnavailable},
	{context.DeadlineExceeded, "timeout", http.StatusGatewayTimeout},
}

// StatusCode maps an error to the HTTP status used by the JSON API.
func StatusCode(err error) int {
	_, status := classify(err)
	return status
}

func classify(err error) (string, int) {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code, c.status
		}
	}
	return "internal", http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	code, status := classify(err)
	resp := errorResponse{Error: err.Error(), Code: code}
	if status == http.StatusInternalServerError && code == "internal" {
		resp.Error = http.StatusText(status)
	}
	var e *Error
	if errors.As(err, &e) {
		resp.Role = e.Role
		resp.Field = e.Field
		resp.Value = e.Value
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
