package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"identity-broker/internal/model"
	"identity-broker/pkg/database"
	"identity-broker/pkg/logger"
	"identity-broker/prometheus"
)

// TenantService manages tenant records and, for schema-isolated
// projects, the lifecycle of their backing schemas.
type TenantService struct {
	db      *gorm.DB
	schemas database.SchemaManager
}

// NewTenantService returns a TenantService backed by the given
// database and schema manager.
func NewTenantService(db *gorm.DB, schemas database.SchemaManager) *TenantService {
	return &TenantService{db: db, schemas: schemas}
}

// TenantUpdate is a partial update; nil fields are left unchanged.
type TenantUpdate struct {
	Name     *string
	IsActive *bool
}

// Create provisions a tenant under a project. The slug is derived from
// the name and disambiguated with a random suffix when it collides
// within the project. Under the schema strategy a dedicated schema is
// created before the row is persisted.
func (s *TenantService) Create(ctx context.Context, projectID uuid.UUID, name string) (*model.Tenant, error) {
	var project model.Project
	err := s.db.WithContext(ctx).First(&project, "id = ?", projectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound("Project not found")
	}
	if err != nil {
		return nil, err
	}

	slug := slugify(name)
	if slug == "" {
		return nil, ErrBadRequest("Tenant name must contain at least one letter or digit")
	}
	existing, err := s.GetBySlug(ctx, projectID, slug)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if slug, err = withSlugSuffix(slug); err != nil {
			return nil, err
		}
	}

	var schemaName *string
	if project.TenantStrategy == model.StrategySchema {
		name := schemaNameFor(project.Slug, slug)
		if err := s.schemas.CreateSchema(name); err != nil {
			return nil, err
		}
		logger.FromContext(ctx).Info("Tenant schema created",
			zap.String("schema", name),
			zap.String("project_slug", project.Slug))
		schemaName = &name
	}

	tenant := &model.Tenant{
		ProjectID:  projectID,
		Name:       name,
		Slug:       slug,
		SchemaName: schemaName,
		IsActive:   true,
	}
	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := s.db.WithContext(ctx).Create(tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrConflict("Tenant slug already exists in this project")
		}
		return nil, err
	}
	return tenant, nil
}

// GetByID returns the tenant or nil when absent.
func (s *TenantService) GetByID(ctx context.Context, id uuid.UUID) (*model.Tenant, error) {
	var tenant model.Tenant
	err := s.db.WithContext(ctx).First(&tenant, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// GetWithProject returns the tenant with its owning project preloaded,
// or nil when absent.
func (s *TenantService) GetWithProject(ctx context.Context, id uuid.UUID) (*model.Tenant, error) {
	var tenant model.Tenant
	err := s.db.WithContext(ctx).Preload("Project").First(&tenant, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// GetBySlug returns the tenant with the slug within the project, or
// nil when absent.
func (s *TenantService) GetBySlug(ctx context.Context, projectID uuid.UUID, slug string) (*model.Tenant, error) {
	var tenant model.Tenant
	err := s.db.WithContext(ctx).
		First(&tenant, "project_id = ? AND slug = ?", projectID, slug).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// ListByProject returns the project's tenants newest-first.
func (s *TenantService) ListByProject(ctx context.Context, projectID uuid.UUID, skip, limit int) ([]model.Tenant, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())

	var tenants []model.Tenant
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Offset(skip).
		Limit(normalizeLimit(limit)).
		Find(&tenants).Error
	return tenants, err
}

// Update applies a partial update. Renaming is rejected for tenants
// with a backing schema: the schema name is derived from the slug and
// cannot follow.
func (s *TenantService) Update(ctx context.Context, id uuid.UUID, data TenantUpdate) (*model.Tenant, error) {
	tenant, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, ErrNotFound("Tenant not found")
	}

	updates := map[string]interface{}{}
	if data.Name != nil {
		if tenant.SchemaName != nil {
			return nil, ErrBadRequest("Cannot change tenant name when using schema isolation")
		}
		updates["name"] = *data.Name
	}
	if data.IsActive != nil {
		updates["is_active"] = *data.IsActive
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(tenant).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return tenant, nil
}

// Delete removes the tenant, dropping its backing schema first when
// one exists.
func (s *TenantService) Delete(ctx context.Context, id uuid.UUID) error {
	tenant, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if tenant == nil {
		return ErrNotFound("Tenant not found")
	}

	if tenant.SchemaName != nil {
		if err := s.schemas.DropSchema(*tenant.SchemaName); err != nil {
			return err
		}
		logger.FromContext(ctx).Info("Tenant schema dropped",
			zap.String("schema", *tenant.SchemaName))
	}
	defer prometheus.TrackDBOperation("delete")(time.Now())
	return s.db.WithContext(ctx).Delete(tenant).Error
}

func schemaNameFor(projectSlug, tenantSlug string) string {
	name := "tenant_" + projectSlug + "_" + tenantSlug
	return strings.ReplaceAll(name, "-", "_")
}
