package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tenant is a customer organization within a project. Its slug is
// unique within the owning project; SchemaName is set only when the
// project uses schema isolation.
type Tenant struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	ProjectID uuid.UUID `json:"project_id" gorm:"type:uuid;not null;uniqueIndex:idx_tenants_project_slug"`
	Name      string    `json:"name" gorm:"type:varchar(255);not null"`
	Slug      string    `json:"slug" gorm:"type:varchar(255);not null;uniqueIndex:idx_tenants_project_slug"`

	// Postgres schema backing this tenant, nil under the
	// discriminator strategy.
	SchemaName *string `json:"schema_name,omitempty" gorm:"type:varchar(255)"`

	IsActive bool `json:"is_active" gorm:"not null;default:true"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Project Project `json:"-" gorm:"foreignKey:ProjectID"`
}

func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
