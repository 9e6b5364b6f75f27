package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/usecase"
)

// PermissionHandler exposes the permission catalogue.
type PermissionHandler struct {
	permissions *usecase.PermissionService
	policy      *usecase.CatalogPolicy
}

func NewPermissionHandler(permissions *usecase.PermissionService, policy *usecase.CatalogPolicy) *PermissionHandler {
	return &PermissionHandler{permissions: permissions, policy: policy}
}

func (h *PermissionHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("", h.list)
	r.POST("", h.create)
	r.GET("/:id", h.show)
	r.PATCH("/:id", h.update)
	r.DELETE("/:id", h.delete)
}

func (h *PermissionHandler) allowed(c *gin.Context, manage bool) bool {
	ctx := c.Request.Context()
	return authorize(c, func(actor domain.RoleHolder) (bool, error) {
		if manage {
			return h.policy.Manage(ctx, actor)
		}
		return h.policy.View(ctx, actor)
	})
}

// List godoc
// @Summary List permissions
// @Tags Permissions
// @Produce json
// @Security BearerAuth
// @Param search query string false "Matches the name"
// @Param module query string false "Module filter"
// @Param sort query string false "name, module, guard_name, created_at or updated_at"
// @Param direction query string false "asc or desc"
// @Param page query int false "Page number"
// @Param per_page query int false "Page size"
// @Success 200 {object} PermissionListResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/permissions [get]
func (h *PermissionHandler) list(c *gin.Context) {
	if !h.allowed(c, false) {
		return
	}
	page, err := h.permissions.List(c.Request.Context(), listQuery(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, PermissionListResponse{Data: newPermissionResponses(page.Items), Meta: newPageMeta(page)})
}

// Create godoc
// @Summary Create a permission
// @Tags Permissions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreatePermissionRequest true "Permission payload"
// @Success 201 {object} PermissionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/permissions [post]
func (h *PermissionHandler) create(c *gin.Context) {
	var req CreatePermissionRequest
	if !bindJSON(c, &req) || !h.allowed(c, true) {
		return
	}
	permission, err := h.permissions.Create(c.Request.Context(), usecase.CreatePermissionInput{
		ID:        req.ID,
		Name:      req.Name,
		GuardName: req.GuardName,
		Module:    req.Module,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newPermissionResponse(*permission))
}

// Show godoc
// @Summary Get a permission
// @Tags Permissions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Permission ID"
// @Success 200 {object} PermissionResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/permissions/{id} [get]
func (h *PermissionHandler) show(c *gin.Context) {
	if !h.allowed(c, false) {
		return
	}
	permission, err := h.permissions.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	if permission == nil {
		RespondError(c, usecase.ErrPermissionNotFound)
		return
	}
	c.JSON(http.StatusOK, newPermissionResponse(*permission))
}

// Update godoc
// @Summary Update a permission
// @Tags Permissions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Permission ID"
// @Param request body UpdatePermissionRequest true "Fields to change"
// @Success 200 {object} PermissionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/permissions/{id} [patch]
func (h *PermissionHandler) update(c *gin.Context) {
	var req UpdatePermissionRequest
	if !bindJSON(c, &req) || !h.allowed(c, true) {
		return
	}
	permission, err := h.permissions.Update(c.Request.Context(), c.Param("id"), usecase.UpdatePermissionInput{
		Name:      req.Name,
		GuardName: req.GuardName,
		Module:    req.Module,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPermissionResponse(*permission))
}

// Delete godoc
// @Summary Delete a permission
// @Tags Permissions
// @Security BearerAuth
// @Param id path string true "Permission ID"
// @Success 204
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/permissions/{id} [delete]
func (h *PermissionHandler) delete(c *gin.Context) {
	if !h.allowed(c, true) {
		return
	}
	if _, err := h.permissions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
