// Package testutil holds helpers shared by package tests: a migrated
// in-memory database, a quiet logger and a token minter backed by a fresh
// Ed25519 key pair.
package testutil

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"database/sql"
	"io"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/scorecard/pkg/auth"
	"github.com/platinummonkey/scorecard/pkg/observability"
	"github.com/platinummonkey/scorecard/pkg/storage"
)

// NewDB returns a migrated in-memory SQLite database closed at test cleanup
func NewDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(ctx, storage.Config{Driver: string(storage.DialectSQLite), URL: ":memory:", MaxConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.Migrate(ctx, db, storage.DialectSQLite))
	return db
}

// Logger returns a logger that drops everything below error
func Logger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

// Tokens issues and verifies access tokens signed with a per-test key
type Tokens struct {
	Issuer   *auth.Issuer
	Verifier *auth.Verifier
}

// NewTokens generates a key pair and builds an issuer and verifier over it
func NewTokens(t *testing.T, opts ...auth.Option) *Tokens {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	issuer, err := auth.NewIssuer(priv, opts...)
	require.NoError(t, err)
	verifier, err := auth.NewVerifier(pub, opts...)
	require.NoError(t, err)
	return &Tokens{Issuer: issuer, Verifier: verifier}
}

// Bearer returns an Authorization header value for id
func (tk *Tokens) Bearer(t *testing.T, id auth.Identity) string {
	t.Helper()
	token, err := tk.Issuer.Issue(id)
	require.NoError(t, err)
	return "Bearer " + token
}

// Int64 returns a pointer to v
func Int64(v int64) *int64 {
	return &v
}
