package storage

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), Config{Driver: string(DialectSQLite), URL: ":memory:", MaxConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchema_RendersPerDialect(t *testing.T) {
	pg := strings.Join(Schema(DialectPostgres), "\n")
	assert.Contains(t, pg, "BIGSERIAL PRIMARY KEY")
	assert.Contains(t, pg, "JSONB")
	assert.NotContains(t, pg, "{{")

	lite := strings.Join(Schema(DialectSQLite), "\n")
	assert.Contains(t, lite, "INTEGER PRIMARY KEY AUTOINCREMENT")
	assert.NotContains(t, lite, "BIGSERIAL")
	assert.NotContains(t, lite, "{{")
}

func TestMigrate_SQLite(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	require.NoError(t, Migrate(ctx, db, DialectSQLite))
	// Idempotent
	require.NoError(t, Migrate(ctx, db, DialectSQLite))

	for _, table := range []string{"organizations", "roles", "permissions", "role_permissions", "departments", "positions", "employees", "users", "review_periods", "audit_logs"} {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = $1", table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_LiveUniqueness(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db, DialectSQLite))

	_, err := db.ExecContext(ctx, `INSERT INTO permissions (code, name) VALUES ('manage_permissions', 'Manage Permissions')`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `INSERT INTO permissions (code, name) VALUES ('manage_permissions', 'Again')`)
	assert.Error(t, err, "duplicate live code must be rejected")

	_, err = db.ExecContext(ctx, `UPDATE permissions SET deleted_at = CURRENT_TIMESTAMP WHERE code = 'manage_permissions'`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `INSERT INTO permissions (code, name) VALUES ('manage_permissions', 'Recreated')`)
	assert.NoError(t, err, "code may be reused once the old row is soft-deleted")
}

func TestMigrate_RoleGrantedOnce(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db, DialectSQLite))

	_, err := db.ExecContext(ctx, `INSERT INTO roles (id, role_name) VALUES (1, 'User Admin')`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO permissions (id, code, name) VALUES (1, 'manage_permissions', 'Manage Permissions')`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `INSERT INTO role_permissions (role_id, permission_id) VALUES (1, 1)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO role_permissions (role_id, permission_id) VALUES (1, 1)`)
	assert.Error(t, err)
}

func TestSyncSequence_NoopOnSQLite(t *testing.T) {
	db := openSQLite(t)
	assert.NoError(t, SyncSequence(context.Background(), db, DialectSQLite, "roles"))
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: string(DialectSQLite)})
	assert.Error(t, err)

	_, err = Open(context.Background(), Config{Driver: "no-such-driver", URL: "x"})
	assert.Error(t, err)
}

func TestConfig_Dialect(t *testing.T) {
	assert.Equal(t, DialectPostgres, DefaultConfig().Dialect())
	assert.Equal(t, DialectSQLite, Config{Driver: "sqlite3"}.Dialect())
	assert.Equal(t, DialectPostgres, Config{}.Dialect())
}
