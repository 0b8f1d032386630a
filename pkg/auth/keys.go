package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var errNotEd25519 = errors.New("key is not an Ed25519 key")

// normalizePEM accepts keys passed through environments that escape
// newlines as a literal backslash-n
func normalizePEM(s string) []byte {
	return []byte(strings.TrimSpace(strings.ReplaceAll(s, `\n`, "\n")))
}

// ParsePrivateKeyPEM parses a PKCS#8 PEM-encoded Ed25519 private key
func ParsePrivateKeyPEM(s string) (ed25519.PrivateKey, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errors.New("private key is empty")
	}
	key, err := jwt.ParseEdPrivateKeyFromPEM(normalizePEM(s))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, errNotEd25519
	}
	return priv, nil
}

// ParsePublicKeyPEM parses a PKIX PEM-encoded Ed25519 public key
func ParsePublicKeyPEM(s string) (ed25519.PublicKey, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errors.New("public key is empty")
	}
	key, err := jwt.ParseEdPublicKeyFromPEM(normalizePEM(s))
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, errNotEd25519
	}
	return pub, nil
}

// KeysMatch reports whether pub is the public half of priv
func KeysMatch(priv ed25519.PrivateKey, pub ed25519.PublicKey) bool {
	derived, ok := priv.Public().(ed25519.PublicKey)
	return ok && derived.Equal(pub)
}

// GenerateKeyPair creates a fresh Ed25519 key pair encoded as PEM
func GenerateKeyPair() (privatePEM, publicPEM string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode public key: %w", err)
	}

	privatePEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}))
	publicPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	return privatePEM, publicPEM, nil
}
