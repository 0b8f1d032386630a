package rbac

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/scorecard/pkg/observability"
	"github.com/platinummonkey/scorecard/pkg/storage"
	"github.com/platinummonkey/scorecard/pkg/testutil"
)

func setupTestDB(t *testing.T) *sql.DB {
	return testutil.NewDB(t)
}

// setupSeededStore returns a store over a database seeded with the default
// catalog
func setupSeededStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	db := setupTestDB(t)
	store := NewStore(db)
	catalog, err := DefaultCatalog()
	require.NoError(t, err)
	_, err = Seed(context.Background(), store, catalog, storage.DialectSQLite)
	require.NoError(t, err)
	return store, db
}

func testLogger() *observability.Logger {
	return testutil.Logger()
}

// insertUser creates a user row directly
func insertUser(t *testing.T, db *sql.DB, username string, roleID int64) int64 {
	t.Helper()
	now := time.Now().UTC()
	var id int64
	err := db.QueryRowContext(context.Background(),
		"INSERT INTO users (username, email, password, role_id, is_active, created_at, updated_at)"+
			" VALUES ($1, $2, $3, $4, $5, $6, $6) RETURNING id",
		username, username+"@example.com", "x", roleID, true, now).Scan(&id)
	require.NoError(t, err)
	return id
}

func permissionID(t *testing.T, db *sql.DB, code string) int64 {
	t.Helper()
	var id int64
	require.NoError(t, db.QueryRowContext(context.Background(),
		"SELECT id FROM permissions WHERE code = $1 AND deleted_at IS NULL", code).Scan(&id))
	return id
}
