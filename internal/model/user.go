package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a global identity. Users are not scoped to a tenant; access
// to tenants is granted through memberships.
type User struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Email          string    `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordDigest string    `json:"-" gorm:"type:varchar(255);not null"`
	FullName       string    `json:"full_name" gorm:"type:varchar(255);not null"`
	IsActive       bool      `json:"is_active" gorm:"not null;default:true"`
	EmailVerified  bool      `json:"email_verified" gorm:"not null;default:false"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
