package handler

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"identity-broker/internal/service"
	"identity-broker/pkg/logger"
	"identity-broker/prometheus"
)

// APIKeyHeader carries the project API key on the auth surface.
const APIKeyHeader = "X-API-Key"

// AuthHandler exposes the credential-exchange flows over HTTP.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler returns an AuthHandler backed by the given service.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Register creates a global user account.
func (h *AuthHandler) Register(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RegisterCounter.Inc()

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		FullName string `json:"full_name"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse registration request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	user, err := h.auth.Register(c.Request().Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		log.Error("Registration failed", zap.String("email", req.Email), zap.Error(err))
		prometheus.RecordAuthError("registration_failed")
		return writeError(c, err)
	}

	log.Info("User registered", zap.String("email", user.Email))
	return c.JSON(http.StatusCreated, echo.Map{
		"id":        user.ID,
		"email":     user.Email,
		"full_name": user.FullName,
	})
}

// Login verifies credentials and returns the user's memberships so the
// caller can pick a tenant before requesting tokens.
func (h *AuthHandler) Login(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.LoginCounter.WithLabelValues("global").Inc()

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse login request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	result, err := h.auth.LoginGlobal(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		log.Error("Login failed", zap.String("email", req.Email))
		prometheus.RecordAuthError("invalid_credentials")
		return writeError(c, err)
	}

	log.Info("User logged in", zap.String("email", result.User.Email))
	return c.JSON(http.StatusOK, echo.Map{
		"user": echo.Map{
			"id":        result.User.ID,
			"email":     result.User.Email,
			"full_name": result.User.FullName,
		},
		"memberships": result.Memberships,
	})
}

// LoginTenant mints a token pair scoped to one tenant.
func (h *AuthHandler) LoginTenant(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.LoginCounter.WithLabelValues("tenant").Inc()

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		TenantID string `json:"tenant_id"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse tenant login request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant_id"})
	}

	pair, err := h.auth.LoginTenant(c.Request().Context(), req.Email, req.Password, tenantID)
	if err != nil {
		log.Error("Tenant login failed",
			zap.String("email", req.Email),
			zap.String("tenant_id", req.TenantID))
		prometheus.RecordAuthError("invalid_credentials")
		return writeError(c, err)
	}

	log.Info("User logged in with tenant context",
		zap.String("email", req.Email),
		zap.String("tenant_id", req.TenantID))
	return c.JSON(http.StatusOK, pair)
}

// RefreshToken exchanges a refresh token for a fresh pair. An API key
// is optional; without one the token is probed against every active
// project.
func (h *AuthHandler) RefreshToken(c echo.Context) error {
	log := logger.FromEcho(c)

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse refresh request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.RefreshToken == "" {
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token is required"})
	}

	apiKey := c.Request().Header.Get(APIKeyHeader)
	pair, err := h.auth.Refresh(c.Request().Context(), req.RefreshToken, apiKey)
	if err != nil {
		log.Error("Token refresh failed", zap.Error(err))
		prometheus.RecordAuthError("invalid_refresh_token")
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, pair)
}

// TokenWithAPIKey exchanges user credentials for tokens within the
// project identified by the API key; the tenant is addressed by slug.
func (h *AuthHandler) TokenWithAPIKey(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.LoginCounter.WithLabelValues("api_key").Inc()

	var req struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		TenantSlug string `json:"tenant_slug"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse token request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	pair, err := h.auth.AuthenticateWithAPIKey(c.Request().Context(),
		c.Request().Header.Get(APIKeyHeader), req.Email, req.Password, req.TenantSlug)
	if err != nil {
		log.Error("API key token exchange failed",
			zap.String("email", req.Email),
			zap.String("tenant_slug", req.TenantSlug))
		prometheus.RecordAuthError("invalid_credentials")
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, pair)
}

// GetProjectInfo returns the caller's project including the JWT secret
// used for signing.
func (h *AuthHandler) GetProjectInfo(c echo.Context) error {
	project, err := h.auth.GetProjectByAPIKey(c.Request().Context(), c.Request().Header.Get(APIKeyHeader))
	if err != nil {
		prometheus.RecordAuthError("invalid_api_key")
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"id":                     project.ID,
		"name":                   project.Name,
		"slug":                   project.Slug,
		"tenant_strategy":        project.TenantStrategy,
		"jwt_secret":             project.JWTSecret,
		"jwt_algorithm":          project.JWTAlgorithm,
		"jwt_expiration_minutes": project.JWTExpirationMinutes,
	})
}

// GetTenantInfo resolves a tenant slug within the caller's project.
func (h *AuthHandler) GetTenantInfo(c echo.Context) error {
	tenant, err := h.auth.GetTenantInfo(c.Request().Context(),
		c.Request().Header.Get(APIKeyHeader), c.Param("slug"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, tenant)
}

// VerifyJWT checks a token's signature and expiry against the caller's
// project. Always 200; the outcome is in the body.
func (h *AuthHandler) VerifyJWT(c echo.Context) error {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	result := h.auth.VerifyJWT(c.Request().Context(), c.Request().Header.Get(APIKeyHeader), req.Token)
	return c.JSON(http.StatusOK, result)
}

// VerifyJWTBearer is the header-based variant of VerifyJWT.
func (h *AuthHandler) VerifyJWTBearer(c echo.Context) error {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return c.JSON(http.StatusOK, service.VerifyResult{Valid: false, Error: "Authorization header is required"})
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return c.JSON(http.StatusOK, service.VerifyResult{Valid: false, Error: "Invalid Authorization header format. Use: Bearer <token>"})
	}

	result := h.auth.VerifyJWT(c.Request().Context(), c.Request().Header.Get(APIKeyHeader), parts[1])
	return c.JSON(http.StatusOK, result)
}
