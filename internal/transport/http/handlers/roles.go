package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/usecase"
)

// RoleHandler exposes role management endpoints.
type RoleHandler struct {
	roles  *usecase.RoleService
	policy *usecase.CatalogPolicy
}

func NewRoleHandler(roles *usecase.RoleService, policy *usecase.CatalogPolicy) *RoleHandler {
	return &RoleHandler{roles: roles, policy: policy}
}

func (h *RoleHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("", h.list)
	r.POST("", h.create)
	r.GET("/:id", h.show)
	r.PATCH("/:id", h.update)
	r.DELETE("/:id", h.delete)
	r.PUT("/:id/permissions", h.syncPermissions)
	r.POST("/:id/permissions", h.givePermissions)
	r.DELETE("/:id/permissions", h.revokePermissions)
}

func (h *RoleHandler) canView(c *gin.Context) bool {
	ctx := c.Request.Context()
	return authorize(c, func(actor domain.RoleHolder) (bool, error) { return h.policy.View(ctx, actor) })
}

func (h *RoleHandler) canManage(c *gin.Context) bool {
	ctx := c.Request.Context()
	return authorize(c, func(actor domain.RoleHolder) (bool, error) { return h.policy.Manage(ctx, actor) })
}

// List godoc
// @Summary List roles
// @Tags Roles
// @Produce json
// @Security BearerAuth
// @Param search query string false "Matches the name"
// @Param module query string false "Module filter"
// @Param sort query string false "name, module, guard_name, created_at or updated_at"
// @Param direction query string false "asc or desc"
// @Param page query int false "Page number"
// @Param per_page query int false "Page size"
// @Success 200 {object} RoleListResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/roles [get]
func (h *RoleHandler) list(c *gin.Context) {
	if !h.canView(c) {
		return
	}
	page, err := h.roles.List(c.Request.Context(), listQuery(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, RoleListResponse{Data: newRoleResponses(page.Items), Meta: newPageMeta(page)})
}

// Create godoc
// @Summary Create a role
// @Description Listed permissions must all exist under the role's guard.
// @Tags Roles
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateRoleRequest true "Role payload"
// @Success 201 {object} RoleResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/roles [post]
func (h *RoleHandler) create(c *gin.Context) {
	var req CreateRoleRequest
	if !bindJSON(c, &req) || !h.canManage(c) {
		return
	}
	role, err := h.roles.Create(c.Request.Context(), usecase.CreateRoleInput{
		ID:          req.ID,
		Name:        req.Name,
		GuardName:   req.GuardName,
		Module:      req.Module,
		Permissions: req.Permissions,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newRoleResponse(*role))
}

// Show godoc
// @Summary Get a role
// @Tags Roles
// @Produce json
// @Security BearerAuth
// @Param id path string true "Role ID"
// @Success 200 {object} RoleResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/roles/{id} [get]
func (h *RoleHandler) show(c *gin.Context) {
	if !h.canView(c) {
		return
	}
	role, err := h.roles.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	if role == nil {
		RespondError(c, usecase.ErrRoleNotFound)
		return
	}
	c.JSON(http.StatusOK, newRoleResponse(*role))
}

// Update godoc
// @Summary Update a role
// @Description A present permissions list replaces the role's permissions; an empty list clears them.
// @Tags Roles
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Role ID"
// @Param request body UpdateRoleRequest true "Fields to change"
// @Success 200 {object} RoleResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/roles/{id} [patch]
func (h *RoleHandler) update(c *gin.Context) {
	var req UpdateRoleRequest
	if !bindJSON(c, &req) || !h.canManage(c) {
		return
	}
	input := usecase.UpdateRoleInput{Name: req.Name, GuardName: req.GuardName, Module: req.Module}
	if req.Permissions != nil {
		input.Permissions = append([]string{}, (*req.Permissions)...)
	}
	role, err := h.roles.Update(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRoleResponse(*role))
}

// Delete godoc
// @Summary Delete a role
// @Tags Roles
// @Security BearerAuth
// @Param id path string true "Role ID"
// @Success 204
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/roles/{id} [delete]
func (h *RoleHandler) delete(c *gin.Context) {
	if !h.canManage(c) {
		return
	}
	if _, err := h.roles.Delete(c.Request.Context(), c.Param("id")); err != nil {
		RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SyncPermissions godoc
// @Summary Replace a role's permissions
// @Description Every name must exist under the role's guard; otherwise nothing changes.
// @Tags Roles
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Role ID"
// @Param request body NamesRequest true "Permission names"
// @Success 200 {object} RoleResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/roles/{id}/permissions [put]
func (h *RoleHandler) syncPermissions(c *gin.Context) {
	h.changePermissions(c, h.roles.SyncPermissions)
}

// GivePermissions godoc
// @Summary Add permissions to a role
// @Tags Roles
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Role ID"
// @Param request body NamesRequest true "Permission names"
// @Success 200 {object} RoleResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/roles/{id}/permissions [post]
func (h *RoleHandler) givePermissions(c *gin.Context) {
	h.changePermissions(c, h.roles.GivePermissions)
}

// RevokePermissions godoc
// @Summary Remove permissions from a role
// @Tags Roles
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Role ID"
// @Param request body NamesRequest true "Permission names"
// @Success 200 {object} RoleResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/roles/{id}/permissions [delete]
func (h *RoleHandler) revokePermissions(c *gin.Context) {
	h.changePermissions(c, h.roles.RevokePermissions)
}

func (h *RoleHandler) changePermissions(c *gin.Context, change func(ctx context.Context, roleID string, names []string) (*domain.Role, error)) {
	var req NamesRequest
	if !bindJSON(c, &req) || !h.canManage(c) {
		return
	}
	role, err := change(c.Request.Context(), c.Param("id"), req.Names)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRoleResponse(*role))
}
