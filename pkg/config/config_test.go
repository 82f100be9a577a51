package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identity-broker/pkg/jwtutil"
)

func TestLoadAuthDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, jwtutil.DefaultAlgorithm, cfg.Auth.DefaultJWTAlgorithm)
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
	assert.Equal(t, 30, cfg.Auth.DefaultJWTExpirationMinutes)
	assert.Equal(t, 48, cfg.Auth.DefaultInvitationTTLHours)
}

func TestLoadAuthOverrides(t *testing.T) {
	t.Setenv("AUTH_DEFAULT_JWT_ALGORITHM", "HS512")
	t.Setenv("AUTH_DEFAULT_JWT_EXPIRATION_MINUTES", "15")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "HS512", cfg.Auth.DefaultJWTAlgorithm)
	assert.Equal(t, 15, cfg.Auth.DefaultJWTExpirationMinutes)
}
