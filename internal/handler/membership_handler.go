package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"identity-broker/internal/model"
	"identity-broker/internal/service"
	"identity-broker/pkg/logger"
	"identity-broker/prometheus"
)

// MembershipHandler exposes the membership and invitation engine over HTTP.
type MembershipHandler struct {
	memberships *service.MembershipService
}

// NewMembershipHandler returns a MembershipHandler backed by the given service.
func NewMembershipHandler(memberships *service.MembershipService) *MembershipHandler {
	return &MembershipHandler{memberships: memberships}
}

// ListMembers returns a tenant's memberships with user details.
func (h *MembershipHandler) ListMembers(c echo.Context) error {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant id"})
	}

	skip, limit := pagination(c)
	members, err := h.memberships.ListTenantMembers(c.Request().Context(), tenantID, skip, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, members)
}

// CreateMember grants a user access to a tenant directly.
func (h *MembershipHandler) CreateMember(c echo.Context) error {
	log := logger.FromEcho(c)

	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant id"})
	}

	var req struct {
		UserID string         `json:"user_id"`
		Roles  model.RoleList `json:"roles"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user_id"})
	}

	membership, err := h.memberships.Create(c.Request().Context(), service.MembershipCreate{
		UserID:   userID,
		TenantID: tenantID,
		Roles:    req.Roles,
	})
	if err != nil {
		return writeError(c, err)
	}

	log.Info("Membership created",
		zap.String("user_id", userID.String()),
		zap.String("tenant_id", tenantID.String()))
	return c.JSON(http.StatusCreated, membership)
}

// UpdateMember applies a partial update; absent fields stay unchanged.
func (h *MembershipHandler) UpdateMember(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid membership id"})
	}

	var req struct {
		Roles    *model.RoleList `json:"roles"`
		IsActive *bool           `json:"is_active"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	membership, err := h.memberships.Update(c.Request().Context(), id, service.MembershipUpdate{
		Roles:    req.Roles,
		IsActive: req.IsActive,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, membership)
}

// DeleteMember revokes access. The user record stays.
func (h *MembershipHandler) DeleteMember(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid membership id"})
	}
	if err := h.memberships.Delete(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListInvitations returns a tenant's pending invitations.
func (h *MembershipHandler) ListInvitations(c echo.Context) error {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant id"})
	}

	skip, limit := pagination(c)
	invitations, err := h.memberships.ListTenantInvitations(c.Request().Context(), tenantID, skip, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, invitations)
}

// CreateInvitation invites an email to a tenant.
func (h *MembershipHandler) CreateInvitation(c echo.Context) error {
	log := logger.FromEcho(c)

	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant id"})
	}

	var req struct {
		Email    string         `json:"email"`
		Roles    model.RoleList `json:"roles"`
		TTLHours int            `json:"expires_in_hours"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	invitation, err := h.memberships.CreateInvitation(c.Request().Context(), tenantID, service.InvitationCreate{
		Email:    req.Email,
		Roles:    req.Roles,
		TTLHours: req.TTLHours,
	})
	if err != nil {
		return writeError(c, err)
	}

	prometheus.InvitationCounter.WithLabelValues("created").Inc()
	log.Info("Invitation created",
		zap.String("tenant_id", tenantID.String()),
		zap.String("email", invitation.Email))
	return c.JSON(http.StatusCreated, echo.Map{
		"id":         invitation.ID,
		"token":      invitation.Token,
		"expires_at": invitation.ExpiresAt,
	})
}

// GetInvitationInfo returns the public view of an invitation so the
// invitee can see what they are accepting.
func (h *MembershipHandler) GetInvitationInfo(c echo.Context) error {
	info, err := h.memberships.InvitationInfo(c.Request().Context(), c.Param("token"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, info)
}

// AcceptInvitation redeems an invitation token.
func (h *MembershipHandler) AcceptInvitation(c echo.Context) error {
	log := logger.FromEcho(c)

	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
		FullName string `json:"full_name"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	user, membership, err := h.memberships.AcceptInvitation(c.Request().Context(),
		req.Token, req.Password, req.FullName)
	if err != nil {
		return writeError(c, err)
	}

	prometheus.InvitationCounter.WithLabelValues("accepted").Inc()
	log.Info("Invitation accepted",
		zap.String("email", user.Email),
		zap.String("tenant_id", membership.TenantID.String()))
	return c.JSON(http.StatusOK, echo.Map{
		"user":       user,
		"membership": membership,
	})
}

// CancelInvitation removes a pending invitation.
func (h *MembershipHandler) CancelInvitation(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid invitation id"})
	}
	if err := h.memberships.CancelInvitation(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}

	prometheus.InvitationCounter.WithLabelValues("cancelled").Inc()
	return c.NoContent(http.StatusNoContent)
}
