package domain

// Authenticatable is implemented by subjects that can log in with a password.
type Authenticatable interface {
	AuthIdentifier() string
	AuthPasswordHash() string
}

// RoleHolder is implemented by subjects that can be assigned roles and direct permissions.
type RoleHolder interface {
	HolderID() string
}

var (
	_ Authenticatable = User{}
	_ RoleHolder      = User{}
)

// SubjectID lets a bare key stand in for a RoleHolder, e.g. the subject of an access token.
type SubjectID string

// HolderID implements RoleHolder.
func (s SubjectID) HolderID() string { return string(s) }
