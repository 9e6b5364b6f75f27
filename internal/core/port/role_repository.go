package port

import (
	"context"

	"github.com/arklim/accounts-iam/internal/core/domain"
)

// RoleRepository handles role CRUD and the role to permission links.
type RoleRepository interface {
	Create(ctx context.Context, role domain.Role) (*domain.Role, error)
	GetByID(ctx context.Context, id string) (*domain.Role, error)
	GetByName(ctx context.Context, name string, guard string) (*domain.Role, error)
	FindByNames(ctx context.Context, names []string, guard string) ([]domain.Role, error)
	Update(ctx context.Context, role domain.Role) (*domain.Role, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ListFilter) ([]domain.Role, int, error)

	// CreateWithPermissions inserts the role and links permissionIDs in one transaction.
	CreateWithPermissions(ctx context.Context, role domain.Role, permissionIDs []string) (*domain.Role, error)
	// UpdateWithPermissions updates the role and replaces its permission set in one transaction.
	UpdateWithPermissions(ctx context.Context, role domain.Role, permissionIDs []string) (*domain.Role, error)

	// SyncPermissions replaces the role's permission set atomically.
	SyncPermissions(ctx context.Context, roleID string, permissionIDs []string) error
	AssignPermissions(ctx context.Context, roleID string, permissionIDs []string) (int, error)
	RevokePermissions(ctx context.Context, roleID string, permissionIDs []string) (int, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Role, error)
}
