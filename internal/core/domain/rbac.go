package domain

import "time"

// DefaultGuard is the authentication context used when callers do not name one.
const DefaultGuard = "web"

// Role groups permissions under a guard.
type Role struct {
	ID          string
	Name        string
	GuardName   string
	Module      *string
	Permissions []Permission
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission defines a named capability scoped to a guard.
type Permission struct {
	ID        string
	Name      string
	GuardName string
	Module    *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RoleNames extracts role names preserving order.
func RoleNames(roles []Role) []string {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	return names
}

// PermissionNames extracts permission names preserving order.
func PermissionNames(permissions []Permission) []string {
	names := make([]string, 0, len(permissions))
	for _, permission := range permissions {
		names = append(names, permission.Name)
	}
	return names
}
