package roleadmin

import (
	"context"
	"fmt"
	"time"

	"github.com/fernandezvara/dbkit"
)

// Migrations returns the schema required by PostgresPersistence.
func (p *PostgresPersistence) Migrations() []dbkit.Migration {
	return []dbkit.Migration{
		{
			ID:          "roleadmin-001",
			Description: "Create roles table",
			SQL: `
                CREATE TABLE IF NOT EXISTS roles (
                    name TEXT PRIMARY KEY,
                    parent_role TEXT,
                    portals JSONB NOT NULL DEFAULT '[]'::jsonb,
                    permissions JSONB NOT NULL DEFAULT '[]'::jsonb,
                    abilities JSONB NOT NULL DEFAULT '{}'::jsonb,
                    is_system BOOLEAN NOT NULL DEFAULT false,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    updated_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
                )`,
		},
		{
			ID:          "roleadmin-002",
			Description: "Create role_audit_log table",
			SQL: `
                CREATE TABLE IF NOT EXISTS role_audit_log (
                    id UUID PRIMARY KEY,
                    seq BIGSERIAL NOT NULL UNIQUE,
                    role_name TEXT NOT NULL,
                    action TEXT NOT NULL CHECK (action IN ('create', 'update', 'delete')),
                    previous_config JSONB,
                    new_config JSONB,
                    user_id TEXT NOT NULL,
                    ip_address TEXT,
                    user_agent TEXT,
                    request_id TEXT,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
                )`,
		},
		{
			ID:          "roleadmin-003",
			Description: "Index role_audit_log by role and time",
			SQL: `
                CREATE INDEX IF NOT EXISTS idx_role_audit_log_role_created
                    ON role_audit_log (role_name, created_at DESC, seq DESC)`,
		},
		{
			ID:          "roleadmin-004",
			Description: "Index role_audit_log by time",
			SQL: `
                CREATE INDEX IF NOT EXISTS idx_role_audit_log_created
                    ON role_audit_log (created_at DESC, seq DESC)`,
		},
	}
}

// Migrate applies pending migrations and returns the IDs applied by this call.
func (p *PostgresPersistence) Migrate(ctx context.Context) ([]string, error) {
	db, ok := p.db.(*dbkit.DBKit)
	if !ok {
		return nil, fmt.Errorf("migrations require a dbkit.DBKit instance")
	}

	result, err := db.Migrate(ctx, p.Migrations())
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	applied := make([]string, 0, len(result.Applied))
	for _, m := range result.Applied {
		applied = append(applied, m.ID)
	}
	return applied, nil
}

// Health performs a health check of the database connection, including latency and pool statistics.
func (p *PostgresPersistence) Health(ctx context.Context) dbkit.HealthStatus {
	if db, ok := p.db.(*dbkit.DBKit); ok {
		return db.Health(ctx)
	}

	status := dbkit.HealthStatus{Healthy: p.Ping(ctx) == nil}
	if !status.Healthy {
		status.Error = "ping failed"
	}
	return status
}

// IsHealthy reports whether the database is reachable.
func (p *PostgresPersistence) IsHealthy(ctx context.Context) bool {
	if db, ok := p.db.(*dbkit.DBKit); ok {
		return db.IsHealthy(ctx)
	}
	return p.Ping(ctx) == nil
}

// Ping runs a trivial query.
func (p *PostgresPersistence) Ping(ctx context.Context) error {
	var one int
	return dbkit.WithErr1(p.db.NewRaw("SELECT 1").Scan(ctx, &one), "Ping").Err()
}

// PoolStats returns connection pool statistics, or zero values inside a transaction.
func (p *PostgresPersistence) PoolStats() dbkit.PoolStats {
	if db, ok := p.db.(*dbkit.DBKit); ok {
		return dbkit.PoolStatsFromSQL(db.Stats())
	}
	return dbkit.PoolStats{}
}

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	MaxOpenConnections    int           `env:"MAX_OPEN" envDefault:"25"`
	MaxIdleConnections    int           `env:"MAX_IDLE" envDefault:"5"`
	ConnectionMaxLifetime time.Duration `env:"MAX_LIFETIME" envDefault:"30m"`
	ConnectionMaxIdleTime time.Duration `env:"MAX_IDLE_TIME" envDefault:"5m"`
}

// DefaultPoolConfig returns the pool settings used when none are configured.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConnections:    25,
		MaxIdleConnections:    5,
		ConnectionMaxLifetime: 30 * time.Minute,
		ConnectionMaxIdleTime: 5 * time.Minute,
	}
}

// Validate checks the pool settings for consistency.
func (c PoolConfig) Validate() error {
	if c.MaxOpenConnections < 1 {
		return fmt.Errorf("pool: max open connections must be at least 1")
	}
	if c.MaxIdleConnections < 0 || c.MaxIdleConnections > c.MaxOpenConnections {
		return fmt.Errorf("pool: max idle connections must be between 0 and %d", c.MaxOpenConnections)
	}
	return nil
}

// ConfigurePool applies pool settings to the underlying connection.
func (p *PostgresPersistence) ConfigurePool(cfg PoolConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	db, ok := p.db.(*dbkit.DBKit)
	if !ok {
		return fmt.Errorf("connection pool configuration requires a dbkit.DBKit instance")
	}
	bunDB := db.Bun()
	if bunDB == nil {
		return fmt.Errorf("database instance not available")
	}

	bunDB.SetMaxOpenConns(cfg.MaxOpenConnections)
	bunDB.SetMaxIdleConns(cfg.MaxIdleConnections)
	bunDB.SetConnMaxLifetime(cfg.ConnectionMaxLifetime)
	bunDB.SetConnMaxIdleTime(cfg.ConnectionMaxIdleTime)
	return nil
}
