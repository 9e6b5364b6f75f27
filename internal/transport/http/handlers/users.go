package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/usecase"
)

// UserHandler exposes user management endpoints.
type UserHandler struct {
	users       *usecase.UserService
	policy      *usecase.UserPolicy
	roles       *usecase.CatalogPolicy
	permissions *usecase.CatalogPolicy
}

// NewUserHandler constructs UserHandler. Role and permission assignment are guarded by the
// catalog policies of the assigned entities.
func NewUserHandler(users *usecase.UserService, policy *usecase.UserPolicy, roles, permissions *usecase.CatalogPolicy) *UserHandler {
	return &UserHandler{users: users, policy: policy, roles: roles, permissions: permissions}
}

// RegisterRoutes binds /users routes; the group must already require authentication.
func (h *UserHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("", h.list)
	r.POST("", h.create)
	r.GET("/:id", h.show)
	r.PATCH("/:id", h.update)
	r.DELETE("/:id", h.delete)
	r.GET("/:id/roles", h.listRoles)
	r.PUT("/:id/roles", h.syncRoles)
	r.POST("/:id/roles", h.assignRoles)
	r.GET("/:id/permissions", h.listPermissions)
	r.POST("/:id/permissions", h.givePermissions)
}

func target(c *gin.Context) domain.RoleHolder {
	return domain.SubjectID(c.Param("id"))
}

// List godoc
// @Summary List users
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param search query string false "Matches name, email or username"
// @Param sort query string false "name, email, username, created_at or updated_at"
// @Param direction query string false "asc or desc"
// @Param page query int false "Page number"
// @Param per_page query int false "Page size"
// @Success 200 {object} UserListResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/users [get]
func (h *UserHandler) list(c *gin.Context) {
	ctx := c.Request.Context()
	if !authorize(c, func(actor domain.RoleHolder) (bool, error) { return h.policy.ViewAny(ctx, actor) }) {
		return
	}

	page, err := h.users.List(ctx, listQuery(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	data := make([]UserResponse, 0, len(page.Items))
	for _, user := range page.Items {
		data = append(data, newUserResponse(user.Sanitized(), nil))
	}
	c.JSON(http.StatusOK, UserListResponse{Data: data, Meta: newPageMeta(page)})
}

// Create godoc
// @Summary Create a user
// @Description The username is generated when omitted. Listed roles are assigned afterwards.
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateUserRequest true "User payload"
// @Success 201 {object} UserResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /api/v1/users [post]
func (h *UserHandler) create(c *gin.Context) {
	ctx := c.Request.Context()
	var req CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	if !authorize(c, func(actor domain.RoleHolder) (bool, error) { return h.policy.Create(ctx, actor) }) {
		return
	}
	if len(req.Roles) > 0 && !authorize(c, func(actor domain.RoleHolder) (bool, error) { return h.roles.Manage(ctx, actor) }) {
		return
	}

	user, err := h.users.Create(ctx, usecase.CreateUserInput{
		ID:        req.ID,
		Name:      req.Name,
		Email:     req.Email,
		Username:  req.Username,
		Password:  req.Password,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		RespondError(c, err)
		return
	}

	var roles []string
	if len(req.Roles) > 0 {
		assigned, err := h.users.AssignRoles(ctx, user.ID, req.Roles, "")
		if err != nil {
			RespondError(c, err)
			return
		}
		roles = roleNames(assigned)
	}
	c.JSON(http.StatusCreated, newUserResponse(user.Sanitized(), roles))
}

// Show godoc
// @Summary Get a user
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} UserResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/users/{id} [get]
func (h *UserHandler) show(c *gin.Context) {
	ctx := c.Request.Context()
	if !authorize(c, func(actor domain.RoleHolder) (bool, error) { return h.policy.View(ctx, actor, target(c)) }) {
		return
	}

	user, err := h.users.FindByID(ctx, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	if user == nil {
		RespondError(c, usecase.ErrUserNotFound)
		return
	}
	roles, err := h.users.RolesOf(ctx, user.ID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user.Sanitized(), roleNames(roles)))
}

// Update godoc
// @Summary Update a user
// @Description Only present fields change. A blank password keeps the current one.
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param request body UpdateUserRequest true "Fields to change"
// @Success 200 {object} UserResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/users/{id} [patch]
func (h *UserHandler) update(c *gin.Context) {
	ctx := c.Request.Context()
	var req UpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	if !authorize(c, func(actor domain.RoleHolder) (bool, error) { return h.policy.Update(ctx, actor, target(c)) }) {
		return
	}

	user, err := h.users.Update(ctx, c.Param("id"), usecase.UpdateUserInput{
		Name:      req.Name,
		Email:     req.Email,
		Username:  req.Username,
		Password:  req.Password,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user.Sanitized(), nil))
}

// Delete godoc
// @Summary Delete a user
// @Tags Users
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 204
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/users/{id} [delete]
func (h *UserHandler) delete(c *gin.Context) {
	ctx := c.Request.Context()
	if !authorize(c, func(actor domain.RoleHolder) (bool, error) { return h.policy.Delete(ctx, actor, target(c)) }) {
		return
	}
	if _, err := h.users.Delete(ctx, c.Param("id")); err != nil {
		RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListRoles godoc
// @Summary List a user's roles
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {array} RoleResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/users/{id}/roles [get]
func (h *UserHandler) listRoles(c *gin.Context) {
	ctx := c.Request.Context()
	if !authorize(c, func(actor domain.RoleHolder) (bool, error) { return h.policy.View(ctx, actor, target(c)) }) {
		return
	}
	roles, err := h.users.RolesOf(ctx, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRoleResponses(roles))
}

// SyncRoles godoc
// @Summary Replace a user's roles
// @Description Every name must exist under the guard; otherwise nothing changes.
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param request body NamesRequest true "Role names"
// @Success 200 {array} RoleResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/users/{id}/roles [put]
func (h *UserHandler) syncRoles(c *gin.Context) {
	h.linkRoles(c, h.users.SyncRoles)
}

// AssignRoles godoc
// @Summary Add roles to a user
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param request body NamesRequest true "Role names"
// @Success 200 {array} RoleResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/users/{id}/roles [post]
func (h *UserHandler) assignRoles(c *gin.Context) {
	h.linkRoles(c, h.users.AssignRoles)
}

type roleLinker func(ctx context.Context, userID string, names []string, guard string) ([]domain.Role, error)

func (h *UserHandler) linkRoles(c *gin.Context, link roleLinker) {
	ctx := c.Request.Context()
	var req NamesRequest
	if !bindJSON(c, &req) {
		return
	}
	if !authorize(c, func(actor domain.RoleHolder) (bool, error) { return h.roles.Manage(ctx, actor) }) {
		return
	}
	roles, err := link(ctx, c.Param("id"), req.Names, req.Guard)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRoleResponses(roles))
}

// ListPermissions godoc
// @Summary List a user's effective permissions
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param guard query string false "Guard name"
// @Success 200 {array} PermissionResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/users/{id}/permissions [get]
func (h *UserHandler) listPermissions(c *gin.Context) {
	ctx := c.Request.Context()
	if !authorize(c, func(actor domain.RoleHolder) (bool, error) { return h.policy.View(ctx, actor, target(c)) }) {
		return
	}
	permissions, err := h.users.PermissionsOf(ctx, c.Param("id"), c.Query("guard"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPermissionResponses(permissions))
}

// GivePermissions godoc
// @Summary Grant permissions directly to a user
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param request body NamesRequest true "Permission names"
// @Success 200 {array} PermissionResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/users/{id}/permissions [post]
func (h *UserHandler) givePermissions(c *gin.Context) {
	ctx := c.Request.Context()
	var req NamesRequest
	if !bindJSON(c, &req) {
		return
	}
	if !authorize(c, func(actor domain.RoleHolder) (bool, error) { return h.permissions.Manage(ctx, actor) }) {
		return
	}
	permissions, err := h.users.GivePermissions(ctx, c.Param("id"), req.Names, req.Guard)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPermissionResponses(permissions))
}

func roleNames(roles []domain.Role) []string {
	if len(roles) == 0 {
		return nil
	}
	return domain.RoleNames(roles)
}
