package domain

import "time"

// UserCreatedEvent represents the payload for iam.user.created messages.
type UserCreatedEvent struct {
	EventID           string
	UserID            string
	Username          string
	Email             string
	UsernameGenerated bool
	CreatedAt         time.Time
	Metadata          map[string]any
}

// UserUpdatedEvent represents the payload for iam.user.updated messages.
type UserUpdatedEvent struct {
	EventID         string
	UserID          string
	ChangedFields   []string
	PasswordChanged bool
	UpdatedAt       time.Time
	Metadata        map[string]any
}

// UserDeletedEvent represents the payload for iam.user.deleted messages.
type UserDeletedEvent struct {
	EventID   string
	UserID    string
	Username  string
	DeletedAt time.Time
	Metadata  map[string]any
}

// RoleAssignment captures individual role changes associated with an event.
type RoleAssignment struct {
	RoleID   string
	RoleName string
}

// UserRolesSyncedEvent represents the payload for iam.user.roles.synced messages.
type UserRolesSyncedEvent struct {
	EventID  string
	UserID   string
	Guard    string
	Roles    []RoleAssignment
	Additive bool
	SyncedAt time.Time
	Metadata map[string]any
}

// RolePermissionsSyncedEvent represents the payload for iam.role.permissions.synced messages.
type RolePermissionsSyncedEvent struct {
	EventID     string
	RoleID      string
	RoleName    string
	Guard       string
	Permissions []string
	Additive    bool
	SyncedAt    time.Time
	Metadata    map[string]any
}
