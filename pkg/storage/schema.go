package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// schemaStatements are rendered per dialect: {{pk}} becomes the
// auto-incrementing primary key and {{json}} the JSON column type.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS organizations (
		id {{pk}},
		name VARCHAR(200) NOT NULL,
		code VARCHAR(50) NOT NULL,
		description TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_by BIGINT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		deleted_at TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_organizations_code_live ON organizations(code) WHERE deleted_at IS NULL`,

	`CREATE TABLE IF NOT EXISTS roles (
		id {{pk}},
		role_name VARCHAR(50) NOT NULL,
		description TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		deleted_at TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_roles_name_live ON roles(role_name) WHERE deleted_at IS NULL`,

	`CREATE TABLE IF NOT EXISTS permissions (
		id {{pk}},
		code VARCHAR(100) NOT NULL,
		name VARCHAR(255) NOT NULL,
		description TEXT,
		category VARCHAR(50),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		deleted_at TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_permissions_code_live ON permissions(code) WHERE deleted_at IS NULL`,

	`CREATE TABLE IF NOT EXISTS role_permissions (
		role_id BIGINT NOT NULL REFERENCES roles(id),
		permission_id BIGINT NOT NULL REFERENCES permissions(id),
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (role_id, permission_id)
	)`,

	`CREATE TABLE IF NOT EXISTS departments (
		id {{pk}},
		name VARCHAR(100) NOT NULL,
		description TEXT,
		head_of_department_id BIGINT,
		org_id BIGINT REFERENCES organizations(id),
		created_by BIGINT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		deleted_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_departments_org ON departments(org_id)`,

	`CREATE TABLE IF NOT EXISTS positions (
		id {{pk}},
		title VARCHAR(100) NOT NULL,
		department_id BIGINT REFERENCES departments(id),
		org_id BIGINT REFERENCES organizations(id),
		grade_level VARCHAR(20),
		description TEXT,
		created_by BIGINT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		deleted_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_positions_org ON positions(org_id)`,

	`CREATE TABLE IF NOT EXISTS employees (
		id {{pk}},
		employee_id VARCHAR(20) NOT NULL,
		full_name VARCHAR(200) NOT NULL,
		email VARCHAR(120) NOT NULL,
		phone VARCHAR(20),
		joining_date DATE NOT NULL,
		position_id BIGINT REFERENCES positions(id),
		department_id BIGINT REFERENCES departments(id),
		reporting_manager_id BIGINT REFERENCES employees(id),
		org_id BIGINT REFERENCES organizations(id),
		employment_status VARCHAR(20) NOT NULL DEFAULT 'Active',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_by BIGINT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		deleted_at TIMESTAMP,
		CHECK (reporting_manager_id IS NULL OR reporting_manager_id <> id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_employees_org ON employees(org_id)`,
	`CREATE INDEX IF NOT EXISTS idx_employees_manager ON employees(reporting_manager_id)`,

	`CREATE TABLE IF NOT EXISTS users (
		id {{pk}},
		username VARCHAR(80) NOT NULL,
		email VARCHAR(120) NOT NULL,
		password VARCHAR(200) NOT NULL,
		role_id BIGINT NOT NULL REFERENCES roles(id),
		employee_id BIGINT REFERENCES employees(id),
		org_id BIGINT REFERENCES organizations(id),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_login TIMESTAMP,
		created_by BIGINT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		deleted_at TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_live ON users(email) WHERE deleted_at IS NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_live ON users(username) WHERE deleted_at IS NULL`,

	`CREATE TABLE IF NOT EXISTS review_periods (
		id {{pk}},
		period_name VARCHAR(100) NOT NULL,
		period_type VARCHAR(50) NOT NULL,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		financial_period VARCHAR(50),
		description TEXT,
		status VARCHAR(20) NOT NULL DEFAULT 'Closed',
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		created_by BIGINT,
		updated_by BIGINT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		deleted_at TIMESTAMP,
		CHECK (end_date > start_date)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_review_periods_name_live ON review_periods(LOWER(period_name)) WHERE deleted_at IS NULL`,

	`CREATE TABLE IF NOT EXISTS audit_logs (
		id {{pk}},
		timestamp TIMESTAMP NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL,
		user_id BIGINT,
		username VARCHAR(255),
		organization_id BIGINT,
		resource_type VARCHAR(50),
		resource_id VARCHAR(255),
		ip_address VARCHAR(45),
		request_id VARCHAR(100),
		method VARCHAR(10),
		path TEXT,
		message TEXT,
		metadata {{json}},
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs(user_id)`,
}

// Schema returns the DDL statements rendered for dialect
func Schema(dialect Dialect) []string {
	replacer := strings.NewReplacer(
		"{{pk}}", "BIGSERIAL PRIMARY KEY",
		"{{json}}", "JSONB",
	)
	if dialect == DialectSQLite {
		replacer = strings.NewReplacer(
			"{{pk}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
			"{{json}}", "TEXT",
		)
	}

	out := make([]string, len(schemaStatements))
	for i, stmt := range schemaStatements {
		out[i] = replacer.Replace(stmt)
	}
	return out
}

// Migrate creates every table and index that does not exist yet
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	for i, stmt := range Schema(dialect) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}
	return nil
}

// SyncSequence realigns a PostgreSQL serial sequence after rows were
// inserted with explicit ids. It is a no-op for SQLite.
func SyncSequence(ctx context.Context, db *sql.DB, dialect Dialect, table string) error {
	if dialect != DialectPostgres {
		return nil
	}
	query := fmt.Sprintf(
		"SELECT setval(pg_get_serial_sequence('%s', 'id'), COALESCE((SELECT MAX(id) FROM %s), 1))",
		table, table,
	)
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to sync %s sequence: %w", table, err)
	}
	return nil
}
