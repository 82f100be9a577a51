package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"identity-broker/internal/model"
	"identity-broker/pkg/config"
	"identity-broker/pkg/secrets"
	"identity-broker/prometheus"
)

// UserService manages global user records.
type UserService struct {
	db  *gorm.DB
	cfg config.AuthConfig
}

// NewUserService returns a UserService backed by the given database.
func NewUserService(db *gorm.DB, cfg config.AuthConfig) *UserService {
	return &UserService{db: db, cfg: cfg}
}

// UserUpdate is a partial profile update; nil fields are left unchanged.
// Email changes are not supported.
type UserUpdate struct {
	FullName *string
	IsActive *bool
}

// GetByID returns the user or nil when absent.
func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail returns the user or nil when absent. Emails are stored
// lowercase, so the lookup is case-insensitive.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, "email = ?", normalizeEmail(email)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Update applies a partial profile update.
func (s *UserService) Update(ctx context.Context, id uuid.UUID, data UserUpdate) (*model.User, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound("User not found")
	}

	updates := map[string]interface{}{}
	if data.FullName != nil {
		updates["full_name"] = *data.FullName
	}
	if data.IsActive != nil {
		updates["is_active"] = *data.IsActive
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return user, nil
}

// UpdatePassword replaces the user's password after verifying the
// current one.
func (s *UserService) UpdatePassword(ctx context.Context, id uuid.UUID, currentPassword, newPassword string) error {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrNotFound("User not found")
	}
	if !secrets.VerifyPassword(currentPassword, user.PasswordDigest) {
		return ErrUnauthorized()
	}

	digest, err := secrets.HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	defer prometheus.TrackDBOperation("update")(time.Now())
	return s.db.WithContext(ctx).Model(user).Update("password_digest", digest).Error
}

// Delete removes the user record.
func (s *UserService) Delete(ctx context.Context, id uuid.UUID) error {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrNotFound("User not found")
	}
	return s.db.WithContext(ctx).Delete(user).Error
}

// Authenticate verifies a user's credentials. It returns nil for an
// unknown email, wrong password, or inactive user; the single code
// path keeps the three failures indistinguishable to callers.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())

	user, err := s.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive || !secrets.VerifyPassword(password, user.PasswordDigest) {
		return nil, nil
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
