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

// ProjectService manages project records and their broker credentials.
type ProjectService struct {
	db  *gorm.DB
	cfg config.AuthConfig
}

// NewProjectService returns a ProjectService backed by the given database.
func NewProjectService(db *gorm.DB, cfg config.AuthConfig) *ProjectService {
	return &ProjectService{db: db, cfg: cfg}
}

// ProjectCreate is the input for creating a project.
type ProjectCreate struct {
	Name           string
	TenantStrategy string
}

// ProjectUpdate is a partial update; nil fields are left unchanged.
type ProjectUpdate struct {
	Name                 *string
	JWTAlgorithm         *string
	JWTExpirationMinutes *int
	IsActive             *bool
}

// Create provisions a project with freshly generated credentials. The
// returned Credentials hold the only plain-text copy of the API key
// and client secret; after this call only their digests exist.
func (s *ProjectService) Create(ctx context.Context, data ProjectCreate) (*model.Project, *model.Credentials, error) {
	strategy := data.TenantStrategy
	if strategy == "" {
		strategy = model.StrategySchema
	}
	if strategy != model.StrategySchema && strategy != model.StrategyDiscriminator {
		return nil, nil, ErrBadRequest("Unknown tenant strategy: " + strategy)
	}

	slug := slugify(data.Name)
	if slug == "" {
		return nil, nil, ErrBadRequest("Project name must contain at least one letter or digit")
	}
	existing, err := s.GetBySlug(ctx, slug)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		if slug, err = withSlugSuffix(slug); err != nil {
			return nil, nil, err
		}
	}

	apiKey, err := secrets.NewAPIKey()
	if err != nil {
		return nil, nil, err
	}
	clientID, err := secrets.NewClientID()
	if err != nil {
		return nil, nil, err
	}
	clientSecret, err := secrets.NewClientSecret()
	if err != nil {
		return nil, nil, err
	}
	jwtSecret, err := secrets.NewJWTSecret()
	if err != nil {
		return nil, nil, err
	}

	project := &model.Project{
		Name:                 data.Name,
		Slug:                 slug,
		TenantStrategy:       strategy,
		APIKeyDigest:         secrets.HashSecret(apiKey),
		ClientID:             clientID,
		ClientSecretDigest:   secrets.HashSecret(clientSecret),
		JWTSecret:            jwtSecret,
		JWTAlgorithm:         s.cfg.DefaultJWTAlgorithm,
		JWTExpirationMinutes: s.cfg.DefaultJWTExpirationMinutes,
		IsActive:             true,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := s.db.WithContext(ctx).Create(project).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, nil, ErrConflict("Project slug or client id already exists")
		}
		return nil, nil, err
	}

	credentials := &model.Credentials{
		APIKey:       apiKey,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		JWTSecret:    jwtSecret,
	}
	return project, credentials, nil
}

// GetByID returns the project or nil when absent.
func (s *ProjectService) GetByID(ctx context.Context, id uuid.UUID) (*model.Project, error) {
	var project model.Project
	err := s.db.WithContext(ctx).First(&project, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// GetBySlug returns the project or nil when absent.
func (s *ProjectService) GetBySlug(ctx context.Context, slug string) (*model.Project, error) {
	var project model.Project
	err := s.db.WithContext(ctx).First(&project, "slug = ?", slug).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// List returns projects newest-first with skip/limit pagination.
func (s *ProjectService) List(ctx context.Context, skip, limit int) ([]model.Project, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())

	var projects []model.Project
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Offset(skip).
		Limit(normalizeLimit(limit)).
		Find(&projects).Error
	return projects, err
}

// Update applies a partial update to the project.
func (s *ProjectService) Update(ctx context.Context, id uuid.UUID, data ProjectUpdate) (*model.Project, error) {
	project, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, ErrNotFound("Project not found")
	}

	updates := map[string]interface{}{}
	if data.Name != nil {
		updates["name"] = *data.Name
	}
	if data.JWTAlgorithm != nil {
		switch *data.JWTAlgorithm {
		case "HS256", "HS384", "HS512":
		default:
			return nil, ErrBadRequest("Unsupported JWT algorithm: " + *data.JWTAlgorithm)
		}
		updates["jwt_algorithm"] = *data.JWTAlgorithm
	}
	if data.JWTExpirationMinutes != nil {
		if *data.JWTExpirationMinutes < 1 {
			return nil, ErrBadRequest("JWT expiration must be at least one minute")
		}
		updates["jwt_expiration_minutes"] = *data.JWTExpirationMinutes
	}
	if data.IsActive != nil {
		updates["is_active"] = *data.IsActive
	}

	if len(updates) > 0 {
		defer prometheus.TrackDBOperation("update")(time.Now())
		if err := s.db.WithContext(ctx).Model(project).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return project, nil
}

// Delete removes the project record.
func (s *ProjectService) Delete(ctx context.Context, id uuid.UUID) error {
	project, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if project == nil {
		return ErrNotFound("Project not found")
	}
	defer prometheus.TrackDBOperation("delete")(time.Now())
	return s.db.WithContext(ctx).Delete(project).Error
}

// RegenerateAPIKey replaces the project's API key and returns the new
// plain-text value once. The JWT secret is never touched.
func (s *ProjectService) RegenerateAPIKey(ctx context.Context, id uuid.UUID) (string, error) {
	project, err := s.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if project == nil {
		return "", ErrNotFound("Project not found")
	}

	apiKey, err := secrets.NewAPIKey()
	if err != nil {
		return "", err
	}
	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := s.db.WithContext(ctx).Model(project).
		Update("api_key_digest", secrets.HashSecret(apiKey)).Error; err != nil {
		return "", err
	}
	return apiKey, nil
}

// RegenerateClientSecret replaces the OAuth client secret and returns
// the new plain-text value once.
func (s *ProjectService) RegenerateClientSecret(ctx context.Context, id uuid.UUID) (string, error) {
	project, err := s.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if project == nil {
		return "", ErrNotFound("Project not found")
	}

	clientSecret, err := secrets.NewClientSecret()
	if err != nil {
		return "", err
	}
	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := s.db.WithContext(ctx).Model(project).
		Update("client_secret_digest", secrets.HashSecret(clientSecret)).Error; err != nil {
		return "", err
	}
	return clientSecret, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 100
	}
	return limit
}
