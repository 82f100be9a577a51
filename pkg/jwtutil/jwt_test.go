package jwtutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-signing-secret"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	claims := map[string]interface{}{
		"sub":   "3c7d8a1e-0000-0000-0000-000000000001",
		"email": "user@example.com",
		"roles": []string{"member", "admin"},
	}

	token, err := Encode(claims, testSecret, "HS256", time.Hour)
	require.NoError(t, err)

	decoded := Decode(token, testSecret, "HS256")
	require.NotNil(t, decoded)
	assert.Equal(t, "3c7d8a1e-0000-0000-0000-000000000001", decoded["sub"])
	assert.Equal(t, "user@example.com", decoded["email"])
	assert.NotNil(t, decoded["iat"])
	assert.NotNil(t, decoded["exp"])
}

func TestEncodeDoesNotMutateInput(t *testing.T) {
	claims := map[string]interface{}{"sub": "abc"}
	_, err := Encode(claims, testSecret, "HS256", time.Hour)
	require.NoError(t, err)

	assert.Len(t, claims, 1)
	_, hasExp := claims["exp"]
	assert.False(t, hasExp)
}

func TestDecodeWrongSecret(t *testing.T) {
	token, err := Encode(map[string]interface{}{"sub": "abc"}, testSecret, "HS256", time.Hour)
	require.NoError(t, err)

	assert.Nil(t, Decode(token, "a-different-secret", "HS256"))
}

func TestDecodeWrongAlgorithm(t *testing.T) {
	token, err := Encode(map[string]interface{}{"sub": "abc"}, testSecret, "HS256", time.Hour)
	require.NoError(t, err)

	// The same secret under a different HMAC variant must not verify.
	assert.Nil(t, Decode(token, testSecret, "HS512"))
}

func TestDecodeExpired(t *testing.T) {
	token, err := Encode(map[string]interface{}{"sub": "abc"}, testSecret, "HS256", -time.Minute)
	require.NoError(t, err)

	assert.Nil(t, Decode(token, testSecret, "HS256"))
}

func TestDecodeMalformed(t *testing.T) {
	assert.Nil(t, Decode("not-a-jwt", testSecret, "HS256"))
	assert.Nil(t, Decode("", testSecret, "HS256"))
	assert.Nil(t, Decode("aaaa.bbbb.cccc", testSecret, "HS256"))
}

func TestSigningMethodSelection(t *testing.T) {
	assert.Equal(t, jwt.SigningMethodHS256, SigningMethod("HS256"))
	assert.Equal(t, jwt.SigningMethodHS384, SigningMethod("HS384"))
	assert.Equal(t, jwt.SigningMethodHS512, SigningMethod("HS512"))

	// Unknown names fall back to HS256 rather than failing.
	assert.Equal(t, jwt.SigningMethodHS256, SigningMethod("RS256"))
	assert.Equal(t, jwt.SigningMethodHS256, SigningMethod(""))
}

func TestHMACVariantsRoundTrip(t *testing.T) {
	for _, alg := range []string{"HS256", "HS384", "HS512"} {
		t.Run(alg, func(t *testing.T) {
			token, err := Encode(map[string]interface{}{"sub": "abc"}, testSecret, alg, time.Hour)
			require.NoError(t, err)

			decoded := Decode(token, testSecret, alg)
			require.NotNil(t, decoded)
			assert.Equal(t, "abc", decoded["sub"])
		})
	}
}

func TestEncodeRefresh(t *testing.T) {
	token, err := EncodeRefresh(map[string]interface{}{"sub": "abc"}, testSecret, "HS256")
	require.NoError(t, err)

	claims := Decode(token, testSecret, "HS256")
	require.NotNil(t, claims)
	assert.True(t, IsRefresh(claims))

	exp, ok := claims["exp"].(float64)
	require.True(t, ok)
	iat, ok := claims["iat"].(float64)
	require.True(t, ok)
	assert.InDelta(t, RefreshTokenLifetime.Seconds(), exp-iat, 2)
}

func TestIsRefreshOnAccessToken(t *testing.T) {
	token, err := Encode(map[string]interface{}{"sub": "abc"}, testSecret, "HS256", time.Hour)
	require.NoError(t, err)

	claims := Decode(token, testSecret, "HS256")
	require.NotNil(t, claims)
	assert.False(t, IsRefresh(claims))
}
