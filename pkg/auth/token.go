package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultTokenTTL is the lifetime of every access token
	DefaultTokenTTL = 8 * time.Hour

	// DefaultIssuerName is written to the iss claim
	DefaultIssuerName = "scorecard"

	signingAlgorithm = "EdDSA"
)

type options struct {
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// Option configures an Issuer or a Verifier
type Option func(*options)

// WithTTL overrides the token lifetime
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIssuerName overrides the iss claim
func WithIssuerName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.issuer = name
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{ttl: DefaultTokenTTL, issuer: DefaultIssuerName, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Issuer signs access tokens with an Ed25519 private key
type Issuer struct {
	key  ed25519.PrivateKey
	opts options
}

// NewIssuer creates an issuer. A missing key is an error.
func NewIssuer(key ed25519.PrivateKey, opts ...Option) (*Issuer, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, errors.New("an Ed25519 signing key is required")
	}
	return &Issuer{key: key, opts: buildOptions(opts)}, nil
}

// TTL returns the lifetime given to issued tokens
func (i *Issuer) TTL() time.Duration {
	return i.opts.ttl
}

// Issue signs a token asserting id. The token expires TTL after issuance.
func (i *Issuer) Issue(id Identity) (string, error) {
	if id.UserID <= 0 {
		return "", errors.New("user id is required")
	}

	now := i.opts.now().UTC()
	claims := Claims{
		UserID:     id.UserID,
		Username:   id.Username,
		RoleID:     id.RoleID,
		Role:       id.RoleName,
		OrgID:      id.OrgID,
		EmployeeID: id.EmployeeID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.opts.issuer,
			Subject:   strconv.FormatInt(id.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.opts.ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verifier checks access tokens against an Ed25519 public key. It does no
// I/O and is safe for concurrent use.
type Verifier struct {
	key    ed25519.PublicKey
	parser *jwt.Parser
}

// NewVerifier creates a verifier. A missing key is an error.
func NewVerifier(key ed25519.PublicKey, opts ...Option) (*Verifier, error) {
	if len(key) != ed25519.PublicKeySize {
		return nil, errors.New("an Ed25519 verification key is required")
	}
	o := buildOptions(opts)
	return &Verifier{
		key: key,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{signingAlgorithm}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(o.now),
		),
	}, nil
}

// Verify returns the claims of a valid token. It fails with ErrTokenExpired
// once the embedded expiry has passed and with ErrTokenInvalid for any other
// defect. The user id is normalised so callers only read Claims.UserID.
func (v *Verifier) Verify(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrAuthenticationRequired
	}

	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if claims.UserID == 0 && claims.LegacyID != nil {
		claims.UserID = *claims.LegacyID
	}
	claims.LegacyID = nil
	if claims.UserID <= 0 {
		return nil, fmt.Errorf("%w: missing user id", ErrTokenInvalid)
	}

	return claims, nil
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrAuthenticationRequired
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrInvalidAuthHeader
	}
	return strings.TrimSpace(token), nil
}
