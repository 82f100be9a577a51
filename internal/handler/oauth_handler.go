package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"identity-broker/internal/service"
	"identity-broker/pkg/logger"
	"identity-broker/prometheus"
)

// OAuthHandler exposes the OAuth2-style token exchange surface. Client
// credentials arrive via Basic auth or form fields.
type OAuthHandler struct {
	auth *service.AuthService
}

// NewOAuthHandler returns an OAuthHandler backed by the given service.
func NewOAuthHandler(auth *service.AuthService) *OAuthHandler {
	return &OAuthHandler{auth: auth}
}

// Token handles OAuth2 token requests for the password and
// refresh_token grants.
func (h *OAuthHandler) Token(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.LoginCounter.WithLabelValues("oauth").Inc()

	if err := c.Request().ParseForm(); err != nil {
		log.Error("Failed to parse form data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":             "invalid_request",
			"error_description": "Could not parse form data",
		})
	}

	clientID, clientSecret := clientCredentials(c)
	if clientID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"error":             "invalid_client",
			"error_description": "Client authentication required",
		})
	}

	grantType := c.FormValue("grant_type")
	pair, err := h.auth.AuthenticateWithOAuth(
		c.Request().Context(),
		clientID,
		clientSecret,
		grantType,
		c.FormValue("username"),
		c.FormValue("password"),
		c.FormValue("refresh_token"),
		c.FormValue("tenant_slug"),
	)
	if err != nil {
		log.Warn("OAuth token request failed",
			zap.String("grant_type", grantType),
			zap.String("client_id", clientID))
		prometheus.RecordAuthError("oauth_" + grantType)
		return writeOAuthError(c, err)
	}

	return c.JSON(http.StatusOK, pair)
}

// Validate decodes a token for the caller's project and echoes the
// identity claims. Always 200; the outcome is in the body.
func (h *OAuthHandler) Validate(c echo.Context) error {
	token := c.FormValue("token")
	if token == "" {
		token = c.QueryParam("token")
	}
	apiKey := c.Request().Header.Get(APIKeyHeader)

	identity := h.auth.ValidateToken(c.Request().Context(), token, apiKey)
	return c.JSON(http.StatusOK, identity)
}

// writeOAuthError maps domain failures onto RFC 6749 error bodies.
func writeOAuthError(c echo.Context, err error) error {
	switch service.KindOf(err) {
	case service.KindUnauthorized:
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"error":             "invalid_client",
			"error_description": err.Error(),
		})
	case service.KindNotFound, service.KindBadRequest:
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":             "invalid_grant",
			"error_description": err.Error(),
		})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error":             "server_error",
			"error_description": "Failed to process token request",
		})
	}
}

// clientCredentials reads the client id/secret from Basic auth,
// falling back to form fields.
func clientCredentials(c echo.Context) (string, string) {
	if id, secret, ok := c.Request().BasicAuth(); ok {
		return id, secret
	}
	return c.FormValue("client_id"), c.FormValue("client_secret")
}
