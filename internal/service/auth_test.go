package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identity-broker/internal/model"
	"identity-broker/pkg/jwtutil"
)

// grant is a ready-to-login fixture: one project, one tenant, one user
// with an active membership.
type grant struct {
	f       *fixture
	project *model.Project
	creds   *model.Credentials
	tenant  *model.Tenant
	user    *model.User
}

func newGrant(t *testing.T) *grant {
	t.Helper()
	f := newFixture(t)
	project, creds := f.mustProject(t, "Acme", model.StrategyDiscriminator)
	tenant := f.mustTenant(t, project, "Blue Team")
	user := f.mustUser(t, "alice@example.com", "password123")
	f.mustMembership(t, user, tenant, "member", "admin")
	return &grant{f: f, project: project, creds: creds, tenant: tenant, user: user}
}

func TestRegisterNormalizesAndRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.auth.Register(ctx, "  Alice@Example.COM ", "password123", "Alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.True(t, user.IsActive)
	assert.NotEqual(t, "password123", user.PasswordDigest)

	// Uniqueness is case-insensitive.
	_, err = f.auth.Register(ctx, "ALICE@example.com", "other-password", "Alice Again")
	require.Error(t, err)
	assert.Equal(t, KindBadRequest, KindOf(err))
	assert.Equal(t, "Email already registered", err.Error())
}

func TestRegisterRequiresAllFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, in := range [][3]string{
		{"", "password123", "Alice"},
		{"alice@example.com", "", "Alice"},
		{"alice@example.com", "password123", ""},
	} {
		_, err := f.auth.Register(ctx, in[0], in[1], in[2])
		require.Error(t, err)
		assert.Equal(t, KindBadRequest, KindOf(err))
	}
}

func TestLoginGlobal(t *testing.T) {
	g := newGrant(t)
	ctx := context.Background()

	result, err := g.f.auth.LoginGlobal(ctx, "alice@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, g.user.ID, result.User.ID)
	require.Len(t, result.Memberships, 1)
	assert.Equal(t, g.tenant.ID, result.Memberships[0].TenantID)
	assert.Equal(t, "Acme", result.Memberships[0].ProjectName)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	g := newGrant(t)
	ctx := context.Background()

	_, wrongPassword := g.f.auth.LoginGlobal(ctx, "alice@example.com", "nope")
	require.Error(t, wrongPassword)
	_, unknownEmail := g.f.auth.LoginGlobal(ctx, "nobody@example.com", "password123")
	require.Error(t, unknownEmail)

	inactive := false
	_, err := g.f.users.Update(ctx, g.user.ID, UserUpdate{IsActive: &inactive})
	require.NoError(t, err)
	_, inactiveUser := g.f.auth.LoginGlobal(ctx, "alice@example.com", "password123")
	require.Error(t, inactiveUser)

	// Same kind, same message: nothing to enumerate accounts with.
	assert.Equal(t, KindUnauthorized, KindOf(wrongPassword))
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	assert.Equal(t, wrongPassword.Error(), inactiveUser.Error())
}

func TestLoginTenantMintsScopedPair(t *testing.T) {
	g := newGrant(t)
	ctx := context.Background()

	pair, err := g.f.auth.LoginTenant(ctx, "alice@example.com", "password123", g.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, g.project.JWTExpirationMinutes*60, pair.ExpiresIn)

	claims := jwtutil.Decode(pair.AccessToken, g.creds.JWTSecret, g.project.JWTAlgorithm)
	require.NotNil(t, claims)
	assert.Equal(t, g.user.ID.String(), claims["sub"])
	assert.Equal(t, "alice@example.com", claims["email"])
	assert.Equal(t, g.tenant.ID.String(), claims["tenant_id"])
	assert.Equal(t, g.project.ID.String(), claims["project_id"])
	assert.False(t, jwtutil.IsRefresh(claims))

	refreshClaims := jwtutil.Decode(pair.RefreshToken, g.creds.JWTSecret, g.project.JWTAlgorithm)
	require.NotNil(t, refreshClaims)
	assert.True(t, jwtutil.IsRefresh(refreshClaims))
}

func TestLoginTenantRequiresActiveMembership(t *testing.T) {
	g := newGrant(t)
	ctx := context.Background()

	g.f.mustUser(t, "mallory@example.com", "password123")
	_, err := g.f.auth.LoginTenant(ctx, "mallory@example.com", "password123", g.tenant.ID)
	require.Error(t, err)
	assert.Equal(t, KindUnauthorized, KindOf(err))

	_, err = g.f.auth.LoginTenant(ctx, "alice@example.com", "password123", g.tenant.ID)
	require.NoError(t, err)
}

func TestLoginTenantUnknownTenant(t *testing.T) {
	g := newGrant(t)

	_, err := g.f.auth.LoginTenant(context.Background(), "alice@example.com", "password123", g.user.ID)
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestRefreshReissuesPair(t *testing.T) {
	g := newGrant(t)
	ctx := context.Background()

	pair, err := g.f.auth.LoginTenant(ctx, "alice@example.com", "password123", g.tenant.ID)
	require.NoError(t, err)

	// Without an API key the project is found by probing.
	fresh, err := g.f.auth.Refresh(ctx, pair.RefreshToken, "")
	require.NoError(t, err)
	claims := jwtutil.Decode(fresh.AccessToken, g.creds.JWTSecret, g.project.JWTAlgorithm)
	require.NotNil(t, claims)
	assert.Equal(t, g.user.ID.String(), claims["sub"])

	// With an API key the project is pinned.
	pinned, err := g.f.auth.Refresh(ctx, pair.RefreshToken, g.creds.APIKey)
	require.NoError(t, err)
	assert.NotEmpty(t, pinned.AccessToken)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	g := newGrant(t)
	ctx := context.Background()

	pair, err := g.f.auth.LoginTenant(ctx, "alice@example.com", "password123", g.tenant.ID)
	require.NoError(t, err)

	_, err = g.f.auth.Refresh(ctx, pair.AccessToken, g.creds.APIKey)
	require.Error(t, err)
	assert.Equal(t, KindUnauthorized, KindOf(err))
}

func TestRefreshProbesAcrossProjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Three projects, each with its own secret; the grant lives in the
	// middle one, so probing must pass the first project and stop at
	// the second.
	_, _ = f.mustProject(t, "First", model.StrategyDiscriminator)
	second, secondCreds := f.mustProject(t, "Second", model.StrategyDiscriminator)
	_, _ = f.mustProject(t, "Third", model.StrategyDiscriminator)

	tenant := f.mustTenant(t, second, "Blue Team")
	user := f.mustUser(t, "alice@example.com", "password123")
	f.mustMembership(t, user, tenant, "member")

	pair, err := f.auth.LoginTenant(ctx, "alice@example.com", "password123", tenant.ID)
	require.NoError(t, err)

	fresh, err := f.auth.Refresh(ctx, pair.RefreshToken, "")
	require.NoError(t, err)

	claims := jwtutil.Decode(fresh.AccessToken, secondCreds.JWTSecret, second.JWTAlgorithm)
	require.NotNil(t, claims)
	assert.Equal(t, second.ID.String(), claims["project_id"])

	// A token no project signed fails only after the whole scan.
	_, err = f.auth.Refresh(ctx, "not-a-token", "")
	require.Error(t, err)
	assert.Equal(t, KindUnauthorized, KindOf(err))
}

func TestRevokedMembershipInvalidatesRefresh(t *testing.T) {
	g := newGrant(t)
	ctx := context.Background()

	pair, err := g.f.auth.LoginTenant(ctx, "alice@example.com", "password123", g.tenant.ID)
	require.NoError(t, err)

	membership, err := g.f.memberships.GetByUserAndTenant(ctx, g.user.ID, g.tenant.ID)
	require.NoError(t, err)

	inactive := false
	_, err = g.f.memberships.Update(ctx, membership.ID, MembershipUpdate{IsActive: &inactive})
	require.NoError(t, err)

	// The JWT is still cryptographically valid, but the grant is gone.
	_, err = g.f.auth.Refresh(ctx, pair.RefreshToken, g.creds.APIKey)
	require.Error(t, err)
	assert.Equal(t, KindUnauthorized, KindOf(err))
	_, err = g.f.auth.LoginTenant(ctx, "alice@example.com", "password123", g.tenant.ID)
	require.Error(t, err)

	// Reactivation restores both flows, with roles from the membership.
	active := true
	roles := model.RoleList{"viewer"}
	_, err = g.f.memberships.Update(ctx, membership.ID, MembershipUpdate{IsActive: &active, Roles: &roles})
	require.NoError(t, err)

	fresh, err := g.f.auth.Refresh(ctx, pair.RefreshToken, g.creds.APIKey)
	require.NoError(t, err)
	claims := jwtutil.Decode(fresh.AccessToken, g.creds.JWTSecret, g.project.JWTAlgorithm)
	require.NotNil(t, claims)
	assert.Equal(t, []interface{}{"viewer"}, claims["roles"])
}

func TestAuthenticateWithAPIKey(t *testing.T) {
	g := newGrant(t)
	ctx := context.Background()

	pair, err := g.f.auth.AuthenticateWithAPIKey(ctx, g.creds.APIKey, "alice@example.com", "password123", "blue-team")
	require.NoError(t, err)
	claims := jwtutil.Decode(pair.AccessToken, g.creds.JWTSecret, g.project.JWTAlgorithm)
	require.NotNil(t, claims)
	assert.Equal(t, g.tenant.ID.String(), claims["tenant_id"])

	_, err = g.f.auth.AuthenticateWithAPIKey(ctx, "bogus-key", "alice@example.com", "password123", "blue-team")
	require.Error(t, err)
	assert.Equal(t, "Invalid API key", err.Error())

	_, err = g.f.auth.AuthenticateWithAPIKey(ctx, g.creds.APIKey, "alice@example.com", "password123", "no-such-tenant")
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestInactiveProjectRefusesAPIKey(t *testing.T) {
	g := newGrant(t)
	ctx := context.Background()

	inactive := false
	_, err := g.f.projects.Update(ctx, g.project.ID, ProjectUpdate{IsActive: &inactive})
	require.NoError(t, err)

	_, err = g.f.auth.GetProjectByAPIKey(ctx, g.creds.APIKey)
	require.Error(t, err)
	assert.Equal(t, "Project is inactive", err.Error())

	_, err = g.f.auth.AuthenticateWithAPIKey(ctx, g.creds.APIKey, "alice@example.com", "password123", "blue-team")
	require.Error(t, err)
	assert.Equal(t, KindUnauthorized, KindOf(err))
}

func TestAuthenticateWithOAuthPasswordGrant(t *testing.T) {
	g := newGrant(t)
	ctx := context.Background()

	pair, err := g.f.auth.AuthenticateWithOAuth(ctx,
		g.creds.ClientID, g.creds.ClientSecret,
		GrantPassword, "alice@example.com", "password123", "", "blue-team")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)

	// Wrong client secret fails before any user checks.
	_, err = g.f.auth.AuthenticateWithOAuth(ctx,
		g.creds.ClientID, "wrong-secret",
		GrantPassword, "alice@example.com", "password123", "", "blue-team")
	require.Error(t, err)
	assert.Equal(t, "Invalid client credentials", err.Error())
}

func TestAuthenticateWithOAuthRefreshGrant(t *testing.T) {
	g := newGrant(t)
	ctx := context.Background()

	pair, err := g.f.auth.LoginTenant(ctx, "alice@example.com", "password123", g.tenant.ID)
	require.NoError(t, err)

	fresh, err := g.f.auth.AuthenticateWithOAuth(ctx,
		g.creds.ClientID, g.creds.ClientSecret,
		GrantRefreshToken, "", "", pair.RefreshToken, "")
	require.NoError(t, err)
	assert.NotEmpty(t, fresh.AccessToken)
}

func TestAuthenticateWithOAuthUnsupportedGrant(t *testing.T) {
	g := newGrant(t)

	_, err := g.f.auth.AuthenticateWithOAuth(context.Background(),
		g.creds.ClientID, g.creds.ClientSecret,
		"client_credentials", "", "", "", "")
	require.Error(t, err)
	assert.Equal(t, KindBadRequest, KindOf(err))
}

func TestVerifyJWTInBand(t *testing.T) {
	g := newGrant(t)
	ctx := context.Background()

	pair, err := g.f.auth.LoginTenant(ctx, "alice@example.com", "password123", g.tenant.ID)
	require.NoError(t, err)

	valid := g.f.auth.VerifyJWT(ctx, g.creds.APIKey, pair.AccessToken)
	assert.True(t, valid.Valid)
	assert.Equal(t, g.user.ID.String(), valid.Payload["sub"])

	tampered := g.f.auth.VerifyJWT(ctx, g.creds.APIKey, pair.AccessToken+"x")
	assert.False(t, tampered.Valid)
	assert.NotEmpty(t, tampered.Error)

	// An invalid API key is still an in-band outcome.
	badKey := g.f.auth.VerifyJWT(ctx, "bogus", pair.AccessToken)
	assert.False(t, badKey.Valid)
	assert.Equal(t, "Invalid API key", badKey.Error)
}

func TestValidateTokenEchoesIdentity(t *testing.T) {
	g := newGrant(t)
	ctx := context.Background()

	pair, err := g.f.auth.LoginTenant(ctx, "alice@example.com", "password123", g.tenant.ID)
	require.NoError(t, err)

	identity := g.f.auth.ValidateToken(ctx, pair.AccessToken, g.creds.APIKey)
	assert.True(t, identity.Valid)
	assert.Equal(t, g.user.ID.String(), identity.Sub)
	assert.Equal(t, "alice@example.com", identity.Email)
	assert.Equal(t, g.tenant.ID.String(), identity.TenantID)
	assert.Equal(t, model.RoleList{"member", "admin"}, identity.Roles)

	invalid := g.f.auth.ValidateToken(ctx, "garbage", g.creds.APIKey)
	assert.False(t, invalid.Valid)
	assert.NotEmpty(t, invalid.Message)
}

func TestProbeAccessToken(t *testing.T) {
	g := newGrant(t)
	ctx := context.Background()

	pair, err := g.f.auth.LoginTenant(ctx, "alice@example.com", "password123", g.tenant.ID)
	require.NoError(t, err)

	identity, err := g.f.auth.ProbeAccessToken(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, g.user.ID.String(), identity.Sub)
	assert.Equal(t, g.project.ID.String(), identity.ProjectID)

	// Refresh tokens are rejected on the access surface.
	_, err = g.f.auth.ProbeAccessToken(ctx, pair.RefreshToken)
	require.Error(t, err)
	assert.Equal(t, KindUnauthorized, KindOf(err))

	_, err = g.f.auth.ProbeAccessToken(ctx, "garbage")
	require.Error(t, err)
	assert.Equal(t, KindUnauthorized, KindOf(err))
}

func TestGetTenantInfo(t *testing.T) {
	g := newGrant(t)
	ctx := context.Background()

	tenant, err := g.f.auth.GetTenantInfo(ctx, g.creds.APIKey, "blue-team")
	require.NoError(t, err)
	assert.Equal(t, g.tenant.ID, tenant.ID)

	_, err = g.f.auth.GetTenantInfo(ctx, g.creds.APIKey, "missing")
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}
