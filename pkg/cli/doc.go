// Package cli implements scorecard-admin, the operator tool that prepares a
// deployment.
//
// keygen: print a fresh Ed25519 signing key pair as PEM
//
//	scorecard-admin keygen
//
// migrate: apply the schema
//
//	scorecard-admin migrate --driver postgres --db "$SCORECARD_DATABASE_URL"
//
// seed: upsert the permission catalog, built-in roles and default grants,
// and optionally create the first User Admin account
//
//	scorecard-admin seed --catalog ./catalog.yaml \
//		--admin-email admin@example.com --admin-password "$ADMIN_PASSWORD"
//
// seed is additive and may be run on every deploy.
package cli
