// Package secrets provides the credential primitives used across the
// broker: slow adaptive hashing for user passwords, fast deterministic
// digests for API keys and client secrets, and random generators for
// every opaque credential the broker hands out.
package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt only hashes the first 72 bytes of its input. Inputs are
// truncated to that limit before hashing AND before verification, so a
// password longer than 72 bytes and its 72-byte prefix both verify.
// Changing this would break every previously issued hash.
const maxPasswordBytes = 72

// DefaultCost is the bcrypt cost used when the caller does not
// configure one.
const DefaultCost = bcrypt.DefaultCost

// HashPassword hashes a user-chosen password with bcrypt.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = DefaultCost
	}
	digest, err := bcrypt.GenerateFromPassword(truncate(password), cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// VerifyPassword reports whether the password matches the digest.
func VerifyPassword(password, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), truncate(password)) == nil
}

func truncate(password string) []byte {
	b := []byte(password)
	if len(b) > maxPasswordBytes {
		b = b[:maxPasswordBytes]
	}
	return b
}

// HashSecret digests a high-entropy machine credential (API key or
// client secret). Unlike passwords these are never user-chosen, so a
// fast deterministic digest is intentional: verifying an API key scans
// every project's digest, and paying bcrypt cost per project on every
// request would be a self-inflicted DoS.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// VerifySecret reports whether the plain secret matches the stored
// digest, in constant time.
func VerifySecret(secret, digest string) bool {
	computed := HashSecret(secret)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1
}

// NewAPIKey generates a project API key (256 bits, URL-safe).
func NewAPIKey() (string, error) {
	return randomURLSafe(32)
}

// NewClientID generates an OAuth2 client identifier (128 bits, hex).
func NewClientID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// NewClientSecret generates an OAuth2 client secret (384 bits).
func NewClientSecret() (string, error) {
	return randomURLSafe(48)
}

// NewJWTSecret generates a project JWT signing secret (256 bits).
func NewJWTSecret() (string, error) {
	return randomURLSafe(32)
}

// NewInvitationToken generates an invitation token (256 bits).
func NewInvitationToken() (string, error) {
	return randomURLSafe(32)
}

// NewSlugSuffix generates the 8-hex-character suffix appended to a
// slug that collides within its uniqueness scope.
func NewSlugSuffix() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func randomURLSafe(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
