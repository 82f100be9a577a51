package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"identity-broker/internal/service"
	"identity-broker/pkg/logger"
)

// ProjectHandler exposes project administration over HTTP.
type ProjectHandler struct {
	projects *service.ProjectService
}

// NewProjectHandler returns a ProjectHandler backed by the given service.
func NewProjectHandler(projects *service.ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

// Create provisions a project. The response carries plain-text
// credentials exactly once.
func (h *ProjectHandler) Create(c echo.Context) error {
	log := logger.FromEcho(c)

	var req struct {
		Name           string `json:"name"`
		TenantStrategy string `json:"tenant_strategy"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	project, credentials, err := h.projects.Create(c.Request().Context(), service.ProjectCreate{
		Name:           req.Name,
		TenantStrategy: req.TenantStrategy,
	})
	if err != nil {
		log.Error("Failed to create project", zap.String("name", req.Name), zap.Error(err))
		return writeError(c, err)
	}

	log.Info("Project created", zap.String("slug", project.Slug))
	return c.JSON(http.StatusCreated, echo.Map{
		"project":     project,
		"credentials": credentials,
	})
}

// List returns projects with skip/limit pagination.
func (h *ProjectHandler) List(c echo.Context) error {
	skip, limit := pagination(c)
	projects, err := h.projects.List(c.Request().Context(), skip, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, projects)
}

// Get returns one project.
func (h *ProjectHandler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid project id"})
	}

	project, err := h.projects.GetByID(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	if project == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Project not found"})
	}
	return c.JSON(http.StatusOK, project)
}

// Update applies a partial update; absent fields stay unchanged.
func (h *ProjectHandler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid project id"})
	}

	var req struct {
		Name                 *string `json:"name"`
		JWTAlgorithm         *string `json:"jwt_algorithm"`
		JWTExpirationMinutes *int    `json:"jwt_expiration_minutes"`
		IsActive             *bool   `json:"is_active"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	project, err := h.projects.Update(c.Request().Context(), id, service.ProjectUpdate{
		Name:                 req.Name,
		JWTAlgorithm:         req.JWTAlgorithm,
		JWTExpirationMinutes: req.JWTExpirationMinutes,
		IsActive:             req.IsActive,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, project)
}

// Delete removes a project.
func (h *ProjectHandler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid project id"})
	}
	if err := h.projects.Delete(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// RegenerateAPIKey replaces the project's API key and returns the new
// plain-text value once.
func (h *ProjectHandler) RegenerateAPIKey(c echo.Context) error {
	log := logger.FromEcho(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid project id"})
	}

	apiKey, err := h.projects.RegenerateAPIKey(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}

	log.Info("Project API key regenerated", zap.String("project_id", id.String()))
	return c.JSON(http.StatusOK, echo.Map{"api_key": apiKey})
}

// RegenerateClientSecret replaces the OAuth client secret and returns
// the new plain-text value once.
func (h *ProjectHandler) RegenerateClientSecret(c echo.Context) error {
	log := logger.FromEcho(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid project id"})
	}

	clientSecret, err := h.projects.RegenerateClientSecret(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}

	log.Info("Project client secret regenerated", zap.String("project_id", id.String()))
	return c.JSON(http.StatusOK, echo.Map{"client_secret": clientSecret})
}
