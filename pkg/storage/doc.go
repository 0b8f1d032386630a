// Package storage provides the relational persistence plumbing shared by the
// scorecard services.
//
// # Overview
//
// The package owns three things:
//
//   - Connection management (Open) for PostgreSQL in production and SQLite in tests
//   - The schema (Migrate) expressed once and rendered per dialect
//   - The soft-delete query scope (Live) that every repository builds its
//     WHERE clauses from
//
// # Soft Delete
//
// Roles, permissions, users, organizations, departments, positions and
// employees are never hard-deleted. Each table carries a nullable deleted_at
// column, and repositories must not hand-write the filter. Instead they start
// from a scope:
//
//	where, args := storage.Live().Where("id = ?", id).SQL()
//	row := db.QueryRowContext(ctx, "SELECT id, role_name FROM roles"+where, args...)
//
// Placeholders are written as '?' and rendered as $1..$n, which both lib/pq
// and go-sqlite3 accept. WithDeleted opts a single query out of the filter.
//
// # Errors
//
// Repositories return ErrNotFound when a live row does not exist and a
// *ConflictError (matching ErrConflict) when a uniqueness rule among live rows
// would be violated.
//
// # Redis
//
// NewRedisClient connects the optional Redis instance used by the login
// throttle and the health checker.
package storage
