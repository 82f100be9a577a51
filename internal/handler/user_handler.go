package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"identity-broker/internal/service"
	"identity-broker/pkg/logger"
)

// UserHandler exposes the authenticated user's own profile surface.
// The acting user id comes from the bearer token via the auth
// middleware.
type UserHandler struct {
	users       *service.UserService
	memberships *service.MembershipService
}

// NewUserHandler returns a UserHandler backed by the given services.
func NewUserHandler(users *service.UserService, memberships *service.MembershipService) *UserHandler {
	return &UserHandler{users: users, memberships: memberships}
}

// GetProfile returns the authenticated user's profile.
func (h *UserHandler) GetProfile(c echo.Context) error {
	userID, ok := currentUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
	}

	user, err := h.users.GetByID(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	if user == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "User not found"})
	}
	return c.JSON(http.StatusOK, user)
}

// UpdateProfile updates the authenticated user's display name. Email
// changes are not allowed.
func (h *UserHandler) UpdateProfile(c echo.Context) error {
	userID, ok := currentUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
	}

	var req struct {
		FullName *string `json:"full_name"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	user, err := h.users.Update(c.Request().Context(), userID, service.UserUpdate{
		FullName: req.FullName,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

// ChangePassword replaces the authenticated user's password after
// verifying the current one.
func (h *UserHandler) ChangePassword(c echo.Context) error {
	log := logger.FromEcho(c)

	userID, ok := currentUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "new_password is required"})
	}

	if err := h.users.UpdatePassword(c.Request().Context(), userID,
		req.CurrentPassword, req.NewPassword); err != nil {
		return writeError(c, err)
	}

	log.Info("Password updated", zap.String("user_id", userID.String()))
	return c.JSON(http.StatusOK, echo.Map{"message": "Password updated successfully"})
}

// ListMemberships returns the authenticated user's active memberships
// with tenant and project details.
func (h *UserHandler) ListMemberships(c echo.Context) error {
	userID, ok := currentUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
	}

	memberships, err := h.memberships.ListUserMemberships(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, memberships)
}

func currentUserID(c echo.Context) (uuid.UUID, bool) {
	sub, _ := c.Get("user_id").(string)
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
