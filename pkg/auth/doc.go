// Package auth issues and verifies access tokens and checks passwords.
//
// Tokens are JWTs signed with Ed25519 (alg EdDSA, nothing else is accepted)
// and expire eight hours after issuance. There is no refresh flow and no
// revocation list: a leaked token stays valid until it expires.
//
//	issuer, _ := auth.NewIssuer(privateKey)
//	token, _ := issuer.Issue(auth.IdentityOf(user, "Manager"))
//
//	verifier, _ := auth.NewVerifier(publicKey)
//	claims, err := verifier.Verify(token)
//	switch {
//	case errors.Is(err, auth.ErrTokenExpired):
//	case errors.Is(err, auth.ErrTokenInvalid):
//	}
//
// The error values in errors.go are shared by every guard in the access
// gate so handlers can map any rejection through one function.
package auth
