package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all authorization core migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create organizations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(255) NOT NULL UNIQUE,
					plan_key VARCHAR(100),
					state_code VARCHAR(10),
					enabled_modules JSONB,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_organizations_slug ON organizations(slug);
				CREATE INDEX idx_organizations_plan_key ON organizations(plan_key);
			`,
		},
		{
			Version:     2,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					username VARCHAR(255) NOT NULL UNIQUE,
					email VARCHAR(255) NOT NULL UNIQUE,
					role VARCHAR(50) NOT NULL DEFAULT 'member',
					organization_id BIGINT REFERENCES organizations(id) ON DELETE SET NULL,
					is_super_admin BOOLEAN NOT NULL DEFAULT FALSE,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_users_organization_id ON users(organization_id);
				CREATE INDEX idx_users_role ON users(role);
			`,
		},
		{
			Version:     3,
			Description: "Create org_entitlements table",
			SQL: `
				CREATE TABLE IF NOT EXISTS org_entitlements (
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					module VARCHAR(100) NOT NULL,
					status VARCHAR(20) NOT NULL,
					trial_expires_at TIMESTAMP,
					source VARCHAR(50) NOT NULL DEFAULT 'override',
					updated_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					PRIMARY KEY (organization_id, module)
				);

				CREATE INDEX idx_org_entitlements_module ON org_entitlements(module);
			`,
		},
		{
			Version:     4,
			Description: "Create org_subentitlements table",
			SQL: `
				CREATE TABLE IF NOT EXISTS org_subentitlements (
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					module VARCHAR(100) NOT NULL,
					submodule VARCHAR(100) NOT NULL,
					status VARCHAR(20) NOT NULL,
					trial_expires_at TIMESTAMP,
					source VARCHAR(50) NOT NULL DEFAULT 'override',
					updated_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					PRIMARY KEY (organization_id, module, submodule)
				);
			`,
		},
		{
			Version:     5,
			Description: "Create entitlement_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS entitlement_events (
					id UUID PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					module VARCHAR(100) NOT NULL,
					submodule VARCHAR(100),
					old_status VARCHAR(20),
					new_status VARCHAR(20),
					source VARCHAR(50) NOT NULL,
					actor_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_entitlement_events_org ON entitlement_events(organization_id, created_at DESC);
				CREATE INDEX idx_entitlement_events_module ON entitlement_events(module);
			`,
		},
		{
			Version:     6,
			Description: "Create audit_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_events (
					id UUID PRIMARY KEY,
					timestamp TIMESTAMP NOT NULL DEFAULT NOW(),
					event_type VARCHAR(100) NOT NULL,
					actor_id BIGINT,
					organization_id BIGINT,
					module VARCHAR(100),
					submodule VARCHAR(100),
					action VARCHAR(100),
					kind VARCHAR(50),
					bypass VARCHAR(50),
					message TEXT,
					metadata JSONB
				);

				CREATE INDEX idx_audit_events_timestamp ON audit_events(timestamp);
				CREATE INDEX idx_audit_events_org ON audit_events(organization_id, timestamp DESC);
				CREATE INDEX idx_audit_events_type ON audit_events(event_type);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS authcore_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM authcore_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO authcore_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
