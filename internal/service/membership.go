package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"identity-broker/internal/model"
	"identity-broker/pkg/config"
	"identity-broker/pkg/secrets"
	"identity-broker/prometheus"
)

// Invitation lifetime bounds in hours.
const (
	minInvitationTTLHours = 1
	maxInvitationTTLHours = 168
)

// MembershipService is the membership and invitation engine: it grants
// and revokes a user's access to a tenant, and runs the invitation
// lifecycle that turns an email-addressed, time-boxed token into a
// membership.
type MembershipService struct {
	db  *gorm.DB
	cfg config.AuthConfig
}

// NewMembershipService returns a MembershipService backed by the given
// database.
func NewMembershipService(db *gorm.DB, cfg config.AuthConfig) *MembershipService {
	return &MembershipService{db: db, cfg: cfg}
}

// MembershipCreate is the input for granting access directly.
type MembershipCreate struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	Roles    model.RoleList
}

// MembershipUpdate is a partial update; nil fields are left unchanged.
type MembershipUpdate struct {
	Roles    *model.RoleList
	IsActive *bool
}

// InvitationCreate is the input for inviting an email to a tenant.
type InvitationCreate struct {
	Email    string
	Roles    model.RoleList
	TTLHours int
}

// InvitationInfo is the public view of an invitation, safe to show the
// invitee before they accept.
type InvitationInfo struct {
	Email       string         `json:"email"`
	TenantName  string         `json:"tenant_name"`
	ProjectName string         `json:"project_name"`
	Roles       model.RoleList `json:"roles"`
	ExpiresAt   time.Time      `json:"expires_at"`
	UserExists  bool           `json:"user_exists"`
}

// GetByID returns the membership or nil when absent.
func (s *MembershipService) GetByID(ctx context.Context, id uuid.UUID) (*model.Membership, error) {
	var membership model.Membership
	err := s.db.WithContext(ctx).First(&membership, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

// GetByUserAndTenant returns the membership for the pair or nil.
func (s *MembershipService) GetByUserAndTenant(ctx context.Context, userID, tenantID uuid.UUID) (*model.Membership, error) {
	var membership model.Membership
	err := s.db.WithContext(ctx).
		First(&membership, "user_id = ? AND tenant_id = ?", userID, tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

// ListUserMemberships returns every active membership of the user with
// tenant and project names denormalized, newest-first.
func (s *MembershipService) ListUserMemberships(ctx context.Context, userID uuid.UUID) ([]model.MembershipSummary, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())

	var memberships []model.Membership
	err := s.db.WithContext(ctx).
		Preload("Tenant").
		Preload("Tenant.Project").
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("created_at DESC").
		Find(&memberships).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]model.MembershipSummary, 0, len(memberships))
	for _, m := range memberships {
		summaries = append(summaries, model.MembershipSummary{
			ID:          m.ID,
			TenantID:    m.TenantID,
			TenantName:  m.Tenant.Name,
			TenantSlug:  m.Tenant.Slug,
			ProjectID:   m.Tenant.ProjectID,
			ProjectName: m.Tenant.Project.Name,
			Roles:       m.Roles,
			IsActive:    m.IsActive,
		})
	}
	return summaries, nil
}

// ListTenantMembers returns the tenant's memberships with user details,
// newest-first with skip/limit pagination.
func (s *MembershipService) ListTenantMembers(ctx context.Context, tenantID uuid.UUID, skip, limit int) ([]model.Membership, error) {
	var memberships []model.Membership
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Offset(skip).
		Limit(normalizeLimit(limit)).
		Find(&memberships).Error
	return memberships, err
}

// Create grants a user access to a tenant directly.
func (s *MembershipService) Create(ctx context.Context, data MembershipCreate) (*model.Membership, error) {
	existing, err := s.GetByUserAndTenant(ctx, data.UserID, data.TenantID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrBadRequest("User is already a member of this tenant")
	}

	var user model.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", data.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound("User not found")
		}
		return nil, err
	}
	var tenant model.Tenant
	if err := s.db.WithContext(ctx).First(&tenant, "id = ?", data.TenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound("Tenant not found")
		}
		return nil, err
	}

	membership := &model.Membership{
		UserID:   data.UserID,
		TenantID: data.TenantID,
		Roles:    normalizeRoles(data.Roles),
		IsActive: true,
	}
	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := s.db.WithContext(ctx).Create(membership).Error; err != nil {
		// A concurrent create for the same pair loses on the unique
		// index; treat it as the same duplicate, not a crash.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrConflict("User is already a member of this tenant")
		}
		return nil, err
	}
	return membership, nil
}

// Update applies a partial update to a membership.
func (s *MembershipService) Update(ctx context.Context, id uuid.UUID, data MembershipUpdate) (*model.Membership, error) {
	membership, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if membership == nil {
		return nil, ErrNotFound("Membership not found")
	}

	updates := map[string]interface{}{}
	if data.Roles != nil {
		updates["roles"] = *data.Roles
	}
	if data.IsActive != nil {
		updates["is_active"] = *data.IsActive
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(membership).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return membership, nil
}

// Delete revokes access by removing the join row. The underlying user
// record is never touched.
func (s *MembershipService) Delete(ctx context.Context, id uuid.UUID) error {
	membership, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if membership == nil {
		return ErrNotFound("Membership not found")
	}
	return s.db.WithContext(ctx).Delete(membership).Error
}

// GetInvitationByID returns the invitation or nil when absent.
func (s *MembershipService) GetInvitationByID(ctx context.Context, id uuid.UUID) (*model.Invitation, error) {
	var invitation model.Invitation
	err := s.db.WithContext(ctx).First(&invitation, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invitation, nil
}

// GetInvitationByToken returns the invitation with tenant and project
// preloaded, or nil when absent.
func (s *MembershipService) GetInvitationByToken(ctx context.Context, token string) (*model.Invitation, error) {
	var invitation model.Invitation
	err := s.db.WithContext(ctx).
		Preload("Tenant").
		Preload("Tenant.Project").
		First(&invitation, "token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invitation, nil
}

// ListTenantInvitations returns the tenant's pending (unused)
// invitations, newest-first with skip/limit pagination.
func (s *MembershipService) ListTenantInvitations(ctx context.Context, tenantID uuid.UUID, skip, limit int) ([]model.Invitation, error) {
	var invitations []model.Invitation
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND used_at IS NULL", tenantID).
		Order("created_at DESC").
		Offset(skip).
		Limit(normalizeLimit(limit)).
		Find(&invitations).Error
	return invitations, err
}

// CreateInvitation opens the invitation lifecycle for an email on a
// tenant. At most one live (unused, unexpired) invitation may exist
// per (email, tenant), and existing members cannot be re-invited.
func (s *MembershipService) CreateInvitation(ctx context.Context, tenantID uuid.UUID, data InvitationCreate) (*model.Invitation, error) {
	var tenant model.Tenant
	if err := s.db.WithContext(ctx).First(&tenant, "id = ?", tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound("Tenant not found")
		}
		return nil, err
	}

	email := normalizeEmail(data.Email)
	if email == "" {
		return nil, ErrBadRequest("Email is required")
	}

	var user model.User
	err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err == nil {
		existing, err := s.GetByUserAndTenant(ctx, user.ID, tenantID)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.IsActive {
			return nil, ErrBadRequest("User is already a member of this tenant")
		}
	}

	pending, err := s.getPendingInvitation(ctx, email, tenantID)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, ErrBadRequest("An invitation already exists for this email")
	}

	ttl := data.TTLHours
	if ttl == 0 {
		ttl = s.cfg.DefaultInvitationTTLHours
	}
	if ttl < minInvitationTTLHours || ttl > maxInvitationTTLHours {
		return nil, ErrBadRequest("Invitation lifetime must be between 1 and 168 hours")
	}

	invitation := &model.Invitation{
		Email:     email,
		TenantID:  tenantID,
		Roles:     normalizeRoles(data.Roles),
		ExpiresAt: time.Now().Add(time.Duration(ttl) * time.Hour),
	}
	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := s.db.WithContext(ctx).Create(invitation).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrConflict("Invitation token collision, retry")
		}
		return nil, err
	}
	return invitation, nil
}

// AcceptInvitation redeems an invitation token. When no user exists
// for the invited email one is created, requiring password and full
// name. User creation, membership creation and marking the invitation
// used happen in one transaction; none of it is observable partially.
func (s *MembershipService) AcceptInvitation(ctx context.Context, token, password, fullName string) (*model.User, *model.Membership, error) {
	invitation, err := s.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if invitation == nil {
		return nil, nil, ErrNotFound("Invitation not found")
	}
	if invitation.IsUsed() {
		return nil, nil, ErrBadRequest("Invitation has already been used")
	}
	if invitation.IsExpired() {
		return nil, nil, ErrBadRequest("Invitation has expired")
	}

	var user model.User
	var membership model.Membership

	defer prometheus.TrackDBOperation("insert")(time.Now())
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&user, "email = ?", invitation.Email).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if password == "" {
				return ErrBadRequest("Password is required for new users")
			}
			if fullName == "" {
				return ErrBadRequest("Full name is required for new users")
			}
			digest, err := secrets.HashPassword(password, s.cfg.BcryptCost)
			if err != nil {
				return err
			}
			user = model.User{
				Email:          invitation.Email,
				PasswordDigest: digest,
				FullName:       fullName,
				IsActive:       true,
				EmailVerified:  true,
			}
			if err := tx.Create(&user).Error; err != nil {
				// Lost a race against a concurrent registration for the
				// same email.
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return ErrConflict("Email already registered")
				}
				return err
			}
		}

		membership = model.Membership{
			UserID:   user.ID,
			TenantID: invitation.TenantID,
			Roles:    invitation.Roles,
			IsActive: true,
		}
		if err := tx.Create(&membership).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrConflict("User is already a member of this tenant")
			}
			return err
		}

		// Claim the invitation. The used_at guard makes the claim
		// single-winner when two acceptances race past the checks above.
		res := tx.Model(&model.Invitation{}).
			Where("id = ? AND used_at IS NULL", invitation.ID).
			Update("used_at", time.Now())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrBadRequest("Invitation has already been used")
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &user, &membership, nil
}

// CancelInvitation removes a pending invitation.
func (s *MembershipService) CancelInvitation(ctx context.Context, id uuid.UUID) error {
	invitation, err := s.GetInvitationByID(ctx, id)
	if err != nil {
		return err
	}
	if invitation == nil {
		return ErrNotFound("Invitation not found")
	}
	return s.db.WithContext(ctx).Delete(invitation).Error
}

// InvitationInfo returns the public view of a live invitation.
func (s *MembershipService) InvitationInfo(ctx context.Context, token string) (*InvitationInfo, error) {
	invitation, err := s.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if invitation == nil {
		return nil, ErrNotFound("Invitation not found")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).
		Where("email = ?", invitation.Email).Count(&count).Error; err != nil {
		return nil, err
	}

	return &InvitationInfo{
		Email:       invitation.Email,
		TenantName:  invitation.Tenant.Name,
		ProjectName: invitation.Tenant.Project.Name,
		Roles:       invitation.Roles,
		ExpiresAt:   invitation.ExpiresAt,
		UserExists:  count > 0,
	}, nil
}

// normalizeRoles drops empty and duplicate role names, keeping the
// caller's order. Roles end up verbatim in token claims, so the stored
// list is kept canonical.
func normalizeRoles(roles model.RoleList) model.RoleList {
	out := model.RoleList{}
	for _, role := range roles {
		if role != "" && !out.Contains(role) {
			out = append(out, role)
		}
	}
	return out
}

// getPendingInvitation finds a live invitation for the pair: unused
// and not yet expired. Expired rows do not block a fresh invite.
func (s *MembershipService) getPendingInvitation(ctx context.Context, email string, tenantID uuid.UUID) (*model.Invitation, error) {
	var invitation model.Invitation
	err := s.db.WithContext(ctx).
		First(&invitation, "email = ? AND tenant_id = ? AND used_at IS NULL AND expires_at > ?",
			email, tenantID, time.Now()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invitation, nil
}
