package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tenant isolation strategies supported per project.
const (
	StrategySchema        = "schema"
	StrategyDiscriminator = "discriminator"
)

// Project represents an external SaaS application that delegates
// authentication to this broker. Each project owns its JWT signing
// secret and the credentials used to call the broker.
type Project struct {
	ID   uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name string    `json:"name" gorm:"type:varchar(255);not null"`
	Slug string    `json:"slug" gorm:"type:varchar(255);uniqueIndex;not null"`

	// How the project's tenants are isolated: dedicated schema or
	// discriminator column. Stored as a string, validated in code.
	TenantStrategy string `json:"tenant_strategy" gorm:"type:varchar(50);not null;default:'schema'"`

	// API key authentication. Only the digest is stored; the plain
	// key is shown exactly once at creation or regeneration.
	APIKeyDigest string `json:"-" gorm:"type:varchar(255);not null"`

	// OAuth2 client credentials.
	ClientID           string `json:"client_id" gorm:"type:varchar(255);uniqueIndex;not null"`
	ClientSecretDigest string `json:"-" gorm:"type:varchar(255);not null"`

	// Per-project JWT configuration. The secret is generated once at
	// creation and never rotated by credential regeneration.
	JWTSecret            string `json:"-" gorm:"type:varchar(255);not null"`
	JWTAlgorithm         string `json:"jwt_algorithm" gorm:"type:varchar(50);not null;default:'HS256'"`
	JWTExpirationMinutes int    `json:"jwt_expiration_minutes" gorm:"not null;default:30"`

	IsActive bool `json:"is_active" gorm:"not null;default:true"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Tenants []Tenant `json:"tenants,omitempty" gorm:"foreignKey:ProjectID"`
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Credentials carries the plain-text secrets generated for a project.
// They are returned exactly once; only digests are persisted.
type Credentials struct {
	APIKey       string `json:"api_key"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	JWTSecret    string `json:"jwt_secret"`
}
