package service

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"identity-broker/internal/model"
	"identity-broker/pkg/config"
	"identity-broker/pkg/jwtutil"
	"identity-broker/pkg/secrets"
	"identity-broker/prometheus"
)

// OAuth2 grant types accepted by the token exchange surface.
const (
	GrantPassword     = "password"
	GrantRefreshToken = "refresh_token"
)

// AuthService orchestrates every credential-exchange flow: it resolves
// the project, verifies the caller's identity, consults the membership
// engine for authorization, and mints tokens with the project's own
// secret.
type AuthService struct {
	db          *gorm.DB
	cfg         config.AuthConfig
	users       *UserService
	memberships *MembershipService
	tenants     *TenantService
}

// NewAuthService wires the authentication service to its collaborators.
func NewAuthService(db *gorm.DB, cfg config.AuthConfig, users *UserService, memberships *MembershipService, tenants *TenantService) *AuthService {
	return &AuthService{
		db:          db,
		cfg:         cfg,
		users:       users,
		memberships: memberships,
		tenants:     tenants,
	}
}

// TokenPair is an access/refresh token grant scoped to one
// (user, tenant, project) triple.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// LoginResult is the outcome of a global login: the user plus every
// active membership, so the caller can pick a tenant before requesting
// tokens.
type LoginResult struct {
	User        *model.User               `json:"user"`
	Memberships []model.MembershipSummary `json:"memberships"`
}

// VerifyResult is the in-band outcome of a stateless JWT verification.
// It covers signature and expiry validity only; it is NOT a guarantee
// the referenced user still exists.
type VerifyResult struct {
	Valid   bool                   `json:"valid"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// TokenIdentity is the in-band outcome of decode-only token validation.
type TokenIdentity struct {
	Valid     bool           `json:"valid"`
	Sub       string         `json:"sub,omitempty"`
	Email     string         `json:"email,omitempty"`
	TenantID  string         `json:"tenant_id,omitempty"`
	ProjectID string         `json:"project_id,omitempty"`
	Roles     model.RoleList `json:"roles,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// Register creates a global user. Email uniqueness is case-insensitive
// and new users start verified with no memberships.
func (s *AuthService) Register(ctx context.Context, email, password, fullName string) (*model.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" || fullName == "" {
		return nil, ErrBadRequest("Email, password and full name are required")
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrBadRequest("Email already registered")
	}

	digest, err := secrets.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Email:          email,
		PasswordDigest: digest,
		FullName:       fullName,
		IsActive:       true,
		EmailVerified:  true,
	}
	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		// Lost a race against a concurrent registration for the same email.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrBadRequest("Email already registered")
		}
		return nil, err
	}
	return user, nil
}

// LoginGlobal verifies credentials and returns the user together with
// their active memberships. Unknown email, wrong password and inactive
// user all fail with the same generic message.
func (s *AuthService) LoginGlobal(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnauthorized()
	}

	memberships, err := s.memberships.ListUserMemberships(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, Memberships: memberships}, nil
}

// LoginTenant re-verifies credentials and mints a token pair scoped to
// the tenant, signed with the owning project's secret. Requires an
// active membership, tenant and project.
func (s *AuthService) LoginTenant(ctx context.Context, email, password string, tenantID uuid.UUID) (*TokenPair, error) {
	tenant, err := s.tenants.GetWithProject(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, ErrNotFound("Tenant not found")
	}

	user, err := s.users.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnauthorized()
	}

	return s.issueForTenant(ctx, user, tenant)
}

// Refresh exchanges a refresh token for a fresh pair. When an API key
// is supplied it pins the project used for decoding; otherwise every
// active project's secret is probed in turn, since a refresh token
// carries no issuer header. The user, membership, tenant and project
// are re-validated: a revoked membership invalidates all outstanding
// refresh tokens for that grant even though the JWT itself remains
// cryptographically valid.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, apiKey string) (*TokenPair, error) {
	var project *model.Project
	var claims jwt.MapClaims

	if apiKey != "" {
		var err error
		project, err = s.GetProjectByAPIKey(ctx, apiKey)
		if err != nil {
			return nil, err
		}
		claims = jwtutil.Decode(refreshToken, project.JWTSecret, project.JWTAlgorithm)
		if claims == nil {
			return nil, ErrUnauthorizedMsg("Invalid or expired refresh token")
		}
	} else {
		var err error
		project, claims, err = s.probeRefreshToken(ctx, refreshToken)
		if err != nil {
			return nil, err
		}
	}

	return s.refreshWithProject(ctx, project, claims)
}

// AuthenticateWithAPIKey is the legacy per-project exchange: the API
// key resolves the project, the slug resolves the tenant within it,
// then tenant-login semantics apply.
func (s *AuthService) AuthenticateWithAPIKey(ctx context.Context, apiKey, email, password, tenantSlug string) (*TokenPair, error) {
	project, err := s.GetProjectByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	tenant, err := s.tenants.GetBySlug(ctx, project.ID, tenantSlug)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, ErrNotFound("Tenant not found")
	}
	tenant.Project = *project

	user, err := s.users.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnauthorized()
	}

	return s.issueForTenant(ctx, user, tenant)
}

// AuthenticateWithOAuth implements the OAuth2 token endpoint for the
// password and refresh_token grants, scoped to the project identified
// by the client credentials.
func (s *AuthService) AuthenticateWithOAuth(ctx context.Context, clientID, clientSecret, grantType, username, password, refreshToken, tenantSlug string) (*TokenPair, error) {
	project, err := s.GetProjectByClientCredentials(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}

	switch grantType {
	case GrantPassword:
		if username == "" || password == "" {
			return nil, ErrBadRequest("Username and password are required")
		}
		tenant, err := s.tenants.GetBySlug(ctx, project.ID, tenantSlug)
		if err != nil {
			return nil, err
		}
		if tenant == nil {
			return nil, ErrNotFound("Tenant not found")
		}
		tenant.Project = *project

		user, err := s.users.Authenticate(ctx, username, password)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, ErrUnauthorized()
		}
		return s.issueForTenant(ctx, user, tenant)

	case GrantRefreshToken:
		if refreshToken == "" {
			return nil, ErrBadRequest("Refresh token is required")
		}
		claims := jwtutil.Decode(refreshToken, project.JWTSecret, project.JWTAlgorithm)
		if claims == nil {
			return nil, ErrUnauthorizedMsg("Invalid or expired refresh token")
		}
		return s.refreshWithProject(ctx, project, claims)

	default:
		return nil, ErrBadRequest("Unsupported grant type: " + grantType)
	}
}

// VerifyJWT checks signature and expiry against the project identified
// by the API key. It never fails out-of-band: every outcome, including
// an invalid API key, is reported in the result.
func (s *AuthService) VerifyJWT(ctx context.Context, apiKey, token string) *VerifyResult {
	project, err := s.GetProjectByAPIKey(ctx, apiKey)
	if err != nil {
		prometheus.VerifyCounter.WithLabelValues("invalid").Inc()
		return &VerifyResult{Valid: false, Error: err.Error()}
	}

	claims := jwtutil.Decode(token, project.JWTSecret, project.JWTAlgorithm)
	if claims == nil {
		prometheus.VerifyCounter.WithLabelValues("invalid").Inc()
		return &VerifyResult{Valid: false, Error: "Invalid or expired token"}
	}

	prometheus.VerifyCounter.WithLabelValues("valid").Inc()
	return &VerifyResult{Valid: true, Payload: claims}
}

// ValidateToken decodes a token and echoes the identity claims. Decode
// only: no user or membership re-check, so it must not be used where
// revocation semantics matter.
func (s *AuthService) ValidateToken(ctx context.Context, token, apiKey string) *TokenIdentity {
	project, err := s.GetProjectByAPIKey(ctx, apiKey)
	if err != nil {
		return &TokenIdentity{Valid: false, Message: err.Error()}
	}

	claims := jwtutil.Decode(token, project.JWTSecret, project.JWTAlgorithm)
	if claims == nil {
		return &TokenIdentity{Valid: false, Message: "Invalid or expired token"}
	}

	return &TokenIdentity{
		Valid:     true,
		Sub:       stringClaim(claims, "sub"),
		Email:     stringClaim(claims, "email"),
		TenantID:  stringClaim(claims, "tenant_id"),
		ProjectID: stringClaim(claims, "project_id"),
		Roles:     rolesClaim(claims),
	}
}

// ProbeAccessToken resolves a bearer access token without an API key
// by probing every active project's secret. Refresh tokens are
// rejected so they cannot be replayed on the access surface.
func (s *AuthService) ProbeAccessToken(ctx context.Context, token string) (*TokenIdentity, error) {
	var projects []model.Project
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at ASC").
		Find(&projects).Error; err != nil {
		return nil, err
	}

	for i := range projects {
		claims := jwtutil.Decode(token, projects[i].JWTSecret, projects[i].JWTAlgorithm)
		if claims == nil {
			continue
		}
		if jwtutil.IsRefresh(claims) {
			return nil, ErrUnauthorizedMsg("Token is not an access token")
		}
		return &TokenIdentity{
			Valid:     true,
			Sub:       stringClaim(claims, "sub"),
			Email:     stringClaim(claims, "email"),
			TenantID:  stringClaim(claims, "tenant_id"),
			ProjectID: stringClaim(claims, "project_id"),
			Roles:     rolesClaim(claims),
		}, nil
	}
	return nil, ErrUnauthorizedMsg("Invalid or expired token")
}

// GetProjectByAPIKey resolves an API key to its project, failing
// Unauthorized when the key is unknown or the project inactive.
func (s *AuthService) GetProjectByAPIKey(ctx context.Context, apiKey string) (*model.Project, error) {
	project, err := s.findProjectByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, ErrUnauthorizedMsg("Invalid API key")
	}
	if !project.IsActive {
		return nil, ErrUnauthorizedMsg("Project is inactive")
	}
	return project, nil
}

// GetProjectByClientCredentials resolves OAuth2 client credentials to
// their project.
func (s *AuthService) GetProjectByClientCredentials(ctx context.Context, clientID, clientSecret string) (*model.Project, error) {
	project, err := s.findProjectByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if project == nil || !secrets.VerifySecret(clientSecret, project.ClientSecretDigest) {
		return nil, ErrUnauthorizedMsg("Invalid client credentials")
	}
	if !project.IsActive {
		return nil, ErrUnauthorizedMsg("Project is inactive")
	}
	return project, nil
}

// GetTenantInfo resolves a tenant slug within the project identified
// by the API key.
func (s *AuthService) GetTenantInfo(ctx context.Context, apiKey, tenantSlug string) (*model.Tenant, error) {
	project, err := s.GetProjectByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	tenant, err := s.tenants.GetBySlug(ctx, project.ID, tenantSlug)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, ErrNotFound("Tenant not found")
	}
	return tenant, nil
}

// findProjectByAPIKey scans every project's digest. O(projects) per
// call is a deliberate tradeoff: keys are not guessable and the fast
// digest keeps each comparison cheap. Inactive projects are matched
// here so the caller can report "inactive" rather than "unknown key".
func (s *AuthService) findProjectByAPIKey(ctx context.Context, apiKey string) (*model.Project, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())

	var projects []model.Project
	if err := s.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&projects).Error; err != nil {
		return nil, err
	}

	for i := range projects {
		if secrets.VerifySecret(apiKey, projects[i].APIKeyDigest) {
			prometheus.APIKeyScanDepth.Observe(float64(i + 1))
			return &projects[i], nil
		}
	}
	prometheus.APIKeyScanDepth.Observe(float64(len(projects)))
	return nil, nil
}

// findProjectByClientID is a direct unique lookup.
func (s *AuthService) findProjectByClientID(ctx context.Context, clientID string) (*model.Project, error) {
	var project model.Project
	err := s.db.WithContext(ctx).First(&project, "client_id = ?", clientID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// probeRefreshToken tries every active project's secret in creation
// order until one decodes the token. nil from the codec means "try the
// next candidate"; only after the last secret does the failure surface.
func (s *AuthService) probeRefreshToken(ctx context.Context, refreshToken string) (*model.Project, jwt.MapClaims, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())

	var projects []model.Project
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at ASC").
		Find(&projects).Error; err != nil {
		return nil, nil, err
	}

	for i := range projects {
		claims := jwtutil.Decode(refreshToken, projects[i].JWTSecret, projects[i].JWTAlgorithm)
		if claims != nil {
			return &projects[i], claims, nil
		}
	}
	return nil, nil, ErrUnauthorizedMsg("Invalid or expired refresh token")
}

// refreshWithProject validates decoded refresh claims against the
// current state of the grant and mints a fresh pair.
func (s *AuthService) refreshWithProject(ctx context.Context, project *model.Project, claims jwt.MapClaims) (*TokenPair, error) {
	if !jwtutil.IsRefresh(claims) {
		return nil, ErrUnauthorizedMsg("Token is not a refresh token")
	}

	userID, err := uuid.Parse(stringClaim(claims, "sub"))
	if err != nil {
		return nil, ErrUnauthorizedMsg("Invalid or expired refresh token")
	}
	tenantID, err := uuid.Parse(stringClaim(claims, "tenant_id"))
	if err != nil {
		return nil, ErrUnauthorizedMsg("Invalid or expired refresh token")
	}

	if !project.IsActive {
		return nil, ErrUnauthorized()
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, ErrUnauthorized()
	}
	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil || !tenant.IsActive || tenant.ProjectID != project.ID {
		return nil, ErrUnauthorized()
	}
	membership, err := s.memberships.GetByUserAndTenant(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	if membership == nil || !membership.IsActive {
		return nil, ErrUnauthorized()
	}

	prometheus.TokenRefreshCounter.Inc()
	return s.mintPair(user, tenant, project, membership)
}

// issueForTenant applies the tenant-login authorization chain to an
// already-authenticated user and mints the pair.
func (s *AuthService) issueForTenant(ctx context.Context, user *model.User, tenant *model.Tenant) (*TokenPair, error) {
	if !tenant.IsActive || !tenant.Project.IsActive {
		return nil, ErrUnauthorized()
	}

	membership, err := s.memberships.GetByUserAndTenant(ctx, user.ID, tenant.ID)
	if err != nil {
		return nil, err
	}
	if membership == nil || !membership.IsActive {
		return nil, ErrUnauthorized()
	}

	return s.mintPair(user, tenant, &tenant.Project, membership)
}

// mintPair signs an access/refresh pair with the project's secret. The
// roles claim comes from the membership, never the user.
func (s *AuthService) mintPair(user *model.User, tenant *model.Tenant, project *model.Project, membership *model.Membership) (*TokenPair, error) {
	claims := map[string]interface{}{
		"sub":        user.ID.String(),
		"email":      user.Email,
		"tenant_id":  tenant.ID.String(),
		"project_id": project.ID.String(),
		"roles":      []string(membership.Roles),
	}

	ttl := time.Duration(project.JWTExpirationMinutes) * time.Minute
	accessToken, err := jwtutil.Encode(claims, project.JWTSecret, project.JWTAlgorithm, ttl)
	if err != nil {
		return nil, err
	}
	refreshToken, err := jwtutil.EncodeRefresh(claims, project.JWTSecret, project.JWTAlgorithm)
	if err != nil {
		return nil, err
	}

	prometheus.RecordTokenIssued("access")
	prometheus.RecordTokenIssued("refresh")

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    project.JWTExpirationMinutes * 60,
	}, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	value, _ := claims[key].(string)
	return value
}

func rolesClaim(claims jwt.MapClaims) model.RoleList {
	raw, ok := claims["roles"].([]interface{})
	if !ok {
		return model.RoleList{}
	}
	roles := make(model.RoleList, 0, len(raw))
	for _, entry := range raw {
		if role, ok := entry.(string); ok {
			roles = append(roles, role)
		}
	}
	return roles
}
