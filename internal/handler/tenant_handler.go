package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"identity-broker/internal/service"
	"identity-broker/pkg/logger"
)

// TenantHandler exposes tenant administration over HTTP.
type TenantHandler struct {
	tenants *service.TenantService
}

// NewTenantHandler returns a TenantHandler backed by the given service.
func NewTenantHandler(tenants *service.TenantService) *TenantHandler {
	return &TenantHandler{tenants: tenants}
}

// Create provisions a tenant under a project.
func (h *TenantHandler) Create(c echo.Context) error {
	log := logger.FromEcho(c)

	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid project id"})
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	tenant, err := h.tenants.Create(c.Request().Context(), projectID, req.Name)
	if err != nil {
		log.Error("Failed to create tenant",
			zap.String("project_id", projectID.String()),
			zap.String("name", req.Name),
			zap.Error(err))
		return writeError(c, err)
	}

	log.Info("Tenant created",
		zap.String("project_id", projectID.String()),
		zap.String("slug", tenant.Slug))
	return c.JSON(http.StatusCreated, tenant)
}

// List returns a project's tenants with skip/limit pagination.
func (h *TenantHandler) List(c echo.Context) error {
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid project id"})
	}

	skip, limit := pagination(c)
	tenants, err := h.tenants.ListByProject(c.Request().Context(), projectID, skip, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, tenants)
}

// Get returns one tenant.
func (h *TenantHandler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant id"})
	}

	tenant, err := h.tenants.GetByID(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	if tenant == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Tenant not found"})
	}
	return c.JSON(http.StatusOK, tenant)
}

// Update applies a partial update; absent fields stay unchanged.
func (h *TenantHandler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant id"})
	}

	var req struct {
		Name     *string `json:"name"`
		IsActive *bool   `json:"is_active"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	tenant, err := h.tenants.Update(c.Request().Context(), id, service.TenantUpdate{
		Name:     req.Name,
		IsActive: req.IsActive,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, tenant)
}

// Delete removes a tenant, tearing down its schema when one exists.
func (h *TenantHandler) Delete(c echo.Context) error {
	log := logger.FromEcho(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant id"})
	}
	if err := h.tenants.Delete(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}

	log.Info("Tenant deleted", zap.String("tenant_id", id.String()))
	return c.NoContent(http.StatusNoContent)
}
