// Package jwtutil is the broker's token codec. Tokens are signed with
// a symmetric HMAC secret owned by a single project, so every function
// here is parameterized by secret and algorithm instead of holding
// process-wide signing state.
package jwtutil

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// DefaultAlgorithm is used when a project does not configure one.
const DefaultAlgorithm = "HS256"

// RefreshTokenLifetime is fixed regardless of the project's configured
// access-token lifetime.
const RefreshTokenLifetime = 7 * 24 * time.Hour

// TypeRefresh is the value of the "type" claim stamped on refresh
// tokens, distinguishing them from access tokens.
const TypeRefresh = "refresh"

// SigningMethod maps a project's configured algorithm name to an HMAC
// signing method. Only the HS family is supported; anything else falls
// back to HS256.
func SigningMethod(algorithm string) *jwt.SigningMethodHMAC {
	switch algorithm {
	case "HS384":
		return jwt.SigningMethodHS384
	case "HS512":
		return jwt.SigningMethodHS512
	default:
		return jwt.SigningMethodHS256
	}
}

// Encode signs the claims with the project's secret, adding exp and
// iat. The caller-supplied map is not mutated.
func Encode(claims map[string]interface{}, secret, algorithm string, ttl time.Duration) (string, error) {
	now := time.Now()
	payload := jwt.MapClaims{}
	for k, v := range claims {
		payload[k] = v
	}
	payload["iat"] = now.Unix()
	payload["exp"] = now.Add(ttl).Unix()

	token := jwt.NewWithClaims(SigningMethod(algorithm), payload)
	return token.SignedString([]byte(secret))
}

// EncodeRefresh signs a refresh token: fixed 7-day lifetime plus a
// type claim so a refresh token cannot be replayed as an access token.
func EncodeRefresh(claims map[string]interface{}, secret, algorithm string) (string, error) {
	payload := map[string]interface{}{}
	for k, v := range claims {
		payload[k] = v
	}
	payload["type"] = TypeRefresh
	return Encode(payload, secret, algorithm, RefreshTokenLifetime)
}

// Decode verifies signature and expiry and returns the claims, or nil
// on any failure: malformed token, wrong secret, wrong algorithm,
// expired. Callers probe candidate secrets in sequence and rely on
// nil meaning "try the next one", so this never returns an error.
func Decode(tokenString, secret, algorithm string) jwt.MapClaims {
	expected := SigningMethod(algorithm)

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != expected.Alg() {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}
	return claims
}

// IsRefresh reports whether decoded claims belong to a refresh token.
func IsRefresh(claims jwt.MapClaims) bool {
	typ, _ := claims["type"].(string)
	return typ == TypeRefresh
}
