package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"identity-broker/pkg/secrets"
)

// Invitation is a time-boxed, single-use grant: whoever presents its
// token may create a membership on the tenant (and a user account if
// the email is not registered yet). Possession of the token is the
// only credential needed to accept.
type Invitation struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Email    string    `json:"email" gorm:"type:varchar(255);not null;index"`
	TenantID uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;index"`
	Roles    RoleList  `json:"roles" gorm:"type:jsonb;not null"`
	Token    string    `json:"token" gorm:"type:varchar(255);uniqueIndex;not null"`

	ExpiresAt time.Time  `json:"expires_at" gorm:"not null"`
	UsedAt    *time.Time `json:"used_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	Tenant Tenant `json:"-" gorm:"foreignKey:TenantID"`
}

func (i *Invitation) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.Token == "" {
		token, err := secrets.NewInvitationToken()
		if err != nil {
			return err
		}
		i.Token = token
	}
	return nil
}

// IsExpired reports whether the invitation's deadline has passed.
// Expiry is derived from the clock, never persisted as a state.
func (i *Invitation) IsExpired() bool {
	return time.Now().After(i.ExpiresAt)
}

// IsUsed reports whether the invitation has already been accepted.
func (i *Invitation) IsUsed() bool {
	return i.UsedAt != nil
}

// IsValid reports whether the invitation can still be accepted.
func (i *Invitation) IsValid() bool {
	return !i.IsUsed() && !i.IsExpired()
}
