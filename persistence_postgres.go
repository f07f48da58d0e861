package roleadmin

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/fernandezvara/dbkit"
)

// PostgresPersistence stores roles and audit entries in PostgreSQL through dbkit.
//
// Error Handling:
// Every query is wrapped with dbkit's chainable error helpers, so callers can classify
// failures with dbkit.IsDuplicate, dbkit.IsNotFound or errors.As(err, *dbkit.Error).
type PostgresPersistence struct {
	db dbkit.IDB
}

// NewPostgresPersistence creates a persistence collaborator on a dbkit connection or transaction.
//
// Example:
//
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	persistence := roleadmin.NewPostgresPersistence(db)
//	if _, err := persistence.Migrate(ctx); err != nil {
//	    return err
//	}
func NewPostgresPersistence(db dbkit.IDB) *PostgresPersistence {
	return &PostgresPersistence{db: db}
}

type roleRecord struct {
	bun.BaseModel `bun:"table:roles,alias:r"`

	Name        string       `bun:"name,pk"`
	ParentRole  string       `bun:"parent_role,nullzero"`
	Portals     []Portal     `bun:"portals,type:jsonb,notnull"`
	Permissions []Permission `bun:"permissions,type:jsonb,notnull"`
	Abilities   Abilities    `bun:"abilities,type:jsonb,notnull"`
	IsSystem    bool         `bun:"is_system,notnull"`
	CreatedAt   time.Time    `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time    `bun:"updated_at,notnull,default:current_timestamp"`
}

func newRoleRecord(r Role) *roleRecord {
	rec := &roleRecord{
		Name:        r.Name,
		ParentRole:  r.ParentRole,
		Portals:     r.Portals,
		Permissions: r.Permissions,
		Abilities:   r.Abilities,
		IsSystem:    r.IsSystem,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if rec.Portals == nil {
		rec.Portals = []Portal{}
	}
	if rec.Permissions == nil {
		rec.Permissions = []Permission{}
	}
	return rec
}

func (rec *roleRecord) role() Role {
	return Role{
		Name:        rec.Name,
		ParentRole:  rec.ParentRole,
		Portals:     rec.Portals,
		Permissions: rec.Permissions,
		Abilities:   rec.Abilities,
		IsSystem:    rec.IsSystem,
		CreatedAt:   rec.CreatedAt.UTC(),
		UpdatedAt:   rec.UpdatedAt.UTC(),
	}
}

type auditRecord struct {
	bun.BaseModel `bun:"table:role_audit_log,alias:ral"`

	ID             string    `bun:"id,pk,type:uuid"`
	Seq            int64     `bun:"seq,autoincrement"`
	RoleName       string    `bun:"role_name,notnull"`
	Action         string    `bun:"action,notnull"`
	PreviousConfig *Role     `bun:"previous_config,type:jsonb"`
	NewConfig      *Role     `bun:"new_config,type:jsonb"`
	UserID         string    `bun:"user_id,notnull"`
	IPAddress      string    `bun:"ip_address"`
	UserAgent      string    `bun:"user_agent"`
	RequestID      string    `bun:"request_id"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
}

func newAuditRecord(e AuditLogEntry) *auditRecord {
	return &auditRecord{
		ID:             e.ID,
		RoleName:       e.RoleName,
		Action:         string(e.Action),
		PreviousConfig: e.PreviousConfig,
		NewConfig:      e.NewConfig,
		UserID:         e.UserID,
		IPAddress:      e.IPAddress,
		UserAgent:      e.UserAgent,
		RequestID:      e.RequestID,
		CreatedAt:      e.CreatedAt,
	}
}

func (rec *auditRecord) entry() AuditLogEntry {
	return AuditLogEntry{
		ID:             rec.ID,
		RoleName:       rec.RoleName,
		Action:         AuditAction(rec.Action),
		PreviousConfig: rec.PreviousConfig,
		NewConfig:      rec.NewConfig,
		UserID:         rec.UserID,
		IPAddress:      rec.IPAddress,
		UserAgent:      rec.UserAgent,
		RequestID:      rec.RequestID,
		CreatedAt:      rec.CreatedAt.UTC(),
		Sequence:       rec.Seq,
	}
}

// PersistRole inserts or replaces a role row.
func (p *PostgresPersistence) PersistRole(ctx context.Context, role Role) error {
	result, err := p.db.NewInsert().
		Model(newRoleRecord(role)).
		On("CONFLICT (name) DO UPDATE").
		Set("parent_role = EXCLUDED.parent_role").
		Set("portals = EXCLUDED.portals").
		Set("permissions = EXCLUDED.permissions").
		Set("abilities = EXCLUDED.abilities").
		Set("is_system = EXCLUDED.is_system").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return dbkit.WithErr(result, err, "PersistRole").Err()
}

// PersistRoleDeletion deletes a role row. Deleting a missing row is an error.
func (p *PostgresPersistence) PersistRoleDeletion(ctx context.Context, name string) error {
	result, err := p.db.NewDelete().
		Model((*roleRecord)(nil)).
		Where("name = ?", name).
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "PersistRoleDeletion").Err(); err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return dbkit.WithErr1(err, "PersistRoleDeletion").Err()
	}
	if affected == 0 {
		return fmt.Errorf("role %q not stored", name)
	}
	return nil
}

// AppendAuditEntry inserts an audit row. The sequence column orders rows with equal timestamps.
func (p *PostgresPersistence) AppendAuditEntry(ctx context.Context, entry AuditLogEntry) error {
	result, err := p.db.NewInsert().Model(newAuditRecord(entry)).Exec(ctx)
	return dbkit.WithErr(result, err, "AppendAuditEntry").Err()
}

// FetchAuditEntries returns audit rows newest first.
func (p *PostgresPersistence) FetchAuditEntries(ctx context.Context, filter AuditLogFilter) ([]AuditLogEntry, error) {
	filter = filter.Normalized()

	var records []auditRecord
	q := p.db.NewSelect().Model(&records)
	if filter.RoleName != "" {
		q = q.Where("role_name = ?", filter.RoleName)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", string(filter.Action))
	}
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		q = q.Where("created_at <= ?", filter.Until)
	}
	q = q.Order("created_at DESC", "seq DESC").Limit(filter.Limit)
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	if err := dbkit.WithErr1(q.Scan(ctx), "FetchAuditEntries").Err(); err != nil {
		if dbkit.IsNotFound(err) {
			return []AuditLogEntry{}, nil
		}
		return nil, err
	}

	entries := make([]AuditLogEntry, 0, len(records))
	for i := range records {
		entries = append(entries, records[i].entry())
	}
	return entries, nil
}

// FetchAllRoles returns every stored role sorted by name.
func (p *PostgresPersistence) FetchAllRoles(ctx context.Context) ([]Role, error) {
	var records []roleRecord
	err := dbkit.WithErr1(p.db.NewSelect().Model(&records).Order("name ASC").Scan(ctx), "FetchAllRoles").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return []Role{}, nil
		}
		return nil, err
	}

	roles := make([]Role, 0, len(records))
	for i := range records {
		roles = append(roles, records[i].role())
	}
	return roles, nil
}

// RoleExists reports whether a role row exists.
func (p *PostgresPersistence) RoleExists(ctx context.Context, name string) (bool, error) {
	return dbkit.Exists[roleRecord](ctx, p.db, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("name = ?", name)
	})
}

// CountRoles returns the number of stored roles.
func (p *PostgresPersistence) CountRoles(ctx context.Context) (int, error) {
	return dbkit.Count[roleRecord](ctx, p.db, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q
	})
}

// CountAuditEntries returns the number of audit rows for a role, or all rows when name is empty.
func (p *PostgresPersistence) CountAuditEntries(ctx context.Context, name string) (int, error) {
	return dbkit.Count[auditRecord](ctx, p.db, func(q *bun.SelectQuery) *bun.SelectQuery {
		if name != "" {
			q = q.Where("role_name = ?", name)
		}
		return q
	})
}

// WithinTransaction runs fn against a PostgresPersistence bound to one transaction.
// Inside an existing transaction a savepoint is used.
func (p *PostgresPersistence) WithinTransaction(ctx context.Context, fn func(Persistence) error) error {
	switch db := p.db.(type) {
	case *dbkit.Tx:
		return db.Transaction(ctx, func(tx *dbkit.Tx) error {
			return fn(&PostgresPersistence{db: tx})
		})
	case *dbkit.DBKit:
		return db.Transaction(ctx, func(tx *dbkit.Tx) error {
			return fn(&PostgresPersistence{db: tx})
		})
	default:
		return fmt.Errorf("transaction support requires a dbkit.DBKit or dbkit.Tx instance")
	}
}
