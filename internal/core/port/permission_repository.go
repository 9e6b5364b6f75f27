package port

import (
	"context"

	"github.com/arklim/accounts-iam/internal/core/domain"
)

// PermissionRepository manages permission storage.
type PermissionRepository interface {
	Create(ctx context.Context, permission domain.Permission) (*domain.Permission, error)
	GetByID(ctx context.Context, id string) (*domain.Permission, error)
	GetByName(ctx context.Context, name string, guard string) (*domain.Permission, error)
	FindByNames(ctx context.Context, names []string, guard string) ([]domain.Permission, error)
	Update(ctx context.Context, permission domain.Permission) (*domain.Permission, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ListFilter) ([]domain.Permission, int, error)

	ListByRole(ctx context.Context, roleID string) ([]domain.Permission, error)
	// ListByUser returns the distinct permissions a user holds under guard, directly or through roles.
	ListByUser(ctx context.Context, userID string, guard string) ([]domain.Permission, error)
}
