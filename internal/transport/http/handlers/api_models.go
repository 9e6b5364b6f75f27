package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/accounts-iam/internal/core/domain"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response carrying the request's trace ID.
func NewErrorResponse(c *gin.Context, message string) ErrorResponse {
	return ErrorResponse{Error: message, TraceID: c.GetString("trace_id")}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse is returned by the liveness probe.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse lists the state of each dependency.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// JWKSResponse documents the key set shape.
type JWKSResponse struct {
	Keys []map[string]string `json:"keys"`
}

// UserResponse is the public view of a user; credentials are never rendered.
type UserResponse struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Username        string     `json:"username"`
	Email           string     `json:"email"`
	Initials        string     `json:"initials"`
	AvatarURL       *string    `json:"avatar_url,omitempty"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	Roles           []string   `json:"roles,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func newUserResponse(user domain.User, roles []string) UserResponse {
	return UserResponse{
		ID:              user.ID,
		Name:            user.Name,
		Username:        user.Username,
		Email:           user.Email,
		Initials:        user.Initials(),
		AvatarURL:       user.AvatarURL,
		EmailVerifiedAt: user.EmailVerifiedAt,
		Roles:           roles,
		CreatedAt:       user.CreatedAt,
		UpdatedAt:       user.UpdatedAt,
	}
}

// PermissionResponse renders a permission.
type PermissionResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	GuardName string    `json:"guard_name"`
	Module    *string   `json:"module,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newPermissionResponse(permission domain.Permission) PermissionResponse {
	return PermissionResponse{
		ID:        permission.ID,
		Name:      permission.Name,
		GuardName: permission.GuardName,
		Module:    permission.Module,
		CreatedAt: permission.CreatedAt,
		UpdatedAt: permission.UpdatedAt,
	}
}

func newPermissionResponses(permissions []domain.Permission) []PermissionResponse {
	out := make([]PermissionResponse, 0, len(permissions))
	for _, permission := range permissions {
		out = append(out, newPermissionResponse(permission))
	}
	return out
}

// RoleResponse renders a role with its permissions.
type RoleResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	GuardName   string               `json:"guard_name"`
	Module      *string              `json:"module,omitempty"`
	Permissions []PermissionResponse `json:"permissions"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

func newRoleResponse(role domain.Role) RoleResponse {
	return RoleResponse{
		ID:          role.ID,
		Name:        role.Name,
		GuardName:   role.GuardName,
		Module:      role.Module,
		Permissions: newPermissionResponses(role.Permissions),
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	}
}

func newRoleResponses(roles []domain.Role) []RoleResponse {
	out := make([]RoleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, newRoleResponse(role))
	}
	return out
}

// PageMeta describes the position of a page within a listing.
type PageMeta struct {
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	LastPage int `json:"last_page"`
}

func newPageMeta[T any](page domain.Page[T]) PageMeta {
	return PageMeta{Total: page.Total, Page: page.Page, PageSize: page.PageSize, LastPage: page.LastPage()}
}

// UserListResponse is one page of users.
type UserListResponse struct {
	Data []UserResponse `json:"data"`
	Meta PageMeta       `json:"meta"`
}

// RoleListResponse is one page of roles.
type RoleListResponse struct {
	Data []RoleResponse `json:"data"`
	Meta PageMeta       `json:"meta"`
}

// PermissionListResponse is one page of permissions.
type PermissionListResponse struct {
	Data []PermissionResponse `json:"data"`
	Meta PageMeta             `json:"meta"`
}

// RegisterRequest is the self-service registration payload.
type RegisterRequest struct {
	Name                 string `json:"name" binding:"required"`
	Email                string `json:"email" binding:"required"`
	Password             string `json:"password" binding:"required"`
	PasswordConfirmation string `json:"password_confirmation" binding:"required"`
}

// LoginRequest accepts a username or an email as identifier.
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// LoginResponse carries the issued access token.
type LoginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int          `json:"expires_in"`
	User        UserResponse `json:"user"`
}

// CreateUserRequest is the admin payload for creating a user. Username is generated when omitted.
type CreateUserRequest struct {
	ID        string   `json:"id"`
	Name      string   `json:"name" binding:"required"`
	Email     string   `json:"email" binding:"required"`
	Username  string   `json:"username"`
	Password  string   `json:"password" binding:"required"`
	AvatarURL *string  `json:"avatar_url"`
	Roles     []string `json:"roles"`
}

// UpdateUserRequest changes only the fields present. A blank password keeps the current one.
type UpdateUserRequest struct {
	Name      *string `json:"name"`
	Email     *string `json:"email"`
	Username  *string `json:"username"`
	Password  *string `json:"password"`
	AvatarURL *string `json:"avatar_url"`
}

// NamesRequest lists role or permission names, optionally under a guard.
type NamesRequest struct {
	Names []string `json:"names"`
	Guard string   `json:"guard_name"`
}

// CreateRoleRequest is the payload for creating a role.
type CreateRoleRequest struct {
	ID          string   `json:"id"`
	Name        string   `json:"name" binding:"required"`
	GuardName   string   `json:"guard_name"`
	Module      *string  `json:"module"`
	Permissions []string `json:"permissions"`
}

// UpdateRoleRequest changes only the fields present. A present permissions list replaces the set.
type UpdateRoleRequest struct {
	Name        *string   `json:"name"`
	GuardName   *string   `json:"guard_name"`
	Module      *string   `json:"module"`
	Permissions *[]string `json:"permissions"`
}

// CreatePermissionRequest is the payload for creating a permission.
type CreatePermissionRequest struct {
	ID        string  `json:"id"`
	Name      string  `json:"name" binding:"required"`
	GuardName string  `json:"guard_name"`
	Module    *string `json:"module"`
}

// UpdatePermissionRequest changes only the fields present.
type UpdatePermissionRequest struct {
	Name      *string `json:"name"`
	GuardName *string `json:"guard_name"`
	Module    *string `json:"module"`
}
