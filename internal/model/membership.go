package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Membership grants a user access to one tenant with a set of roles.
// The (user, tenant) pair is unique: at most one membership per user
// per tenant. Its active flag is the sole authorization gate for
// issuing tokens scoped to that tenant.
type Membership struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID   uuid.UUID `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_memberships_user_tenant"`
	TenantID uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;uniqueIndex:idx_memberships_user_tenant"`
	Roles    RoleList  `json:"roles" gorm:"type:jsonb;not null"`
	IsActive bool      `json:"is_active" gorm:"not null;default:true"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User   User   `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Tenant Tenant `json:"-" gorm:"foreignKey:TenantID"`
}

func (m *Membership) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// MembershipSummary is a membership denormalized with tenant and
// project names, returned by global login and the profile surface so
// callers can pick a tenant before requesting tokens.
type MembershipSummary struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	TenantName  string    `json:"tenant_name"`
	TenantSlug  string    `json:"tenant_slug"`
	ProjectID   uuid.UUID `json:"project_id"`
	ProjectName string    `json:"project_name"`
	Roles       RoleList  `json:"roles"`
	IsActive    bool      `json:"is_active"`
}
