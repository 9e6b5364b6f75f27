package port

import (
	"context"

	"github.com/arklim/accounts-iam/internal/core/domain"
)

// ListFilter narrows and orders a listing query. SortField is expected to be pre-validated.
type ListFilter struct {
	Search    string
	Module    string
	SortField string
	SortDesc  bool
	Limit     int
	Offset    int
}

// UserRepository exposes persistence behavior for users.
type UserRepository interface {
	// Create inserts the user. An empty ID lets the store assign one.
	Create(ctx context.Context, user domain.User) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	Update(ctx context.Context, user domain.User) (*domain.User, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ListFilter) ([]domain.User, int, error)

	AssignRoles(ctx context.Context, userID string, roleIDs []string) error
	SyncRoles(ctx context.Context, userID string, roleIDs []string) error
	GivePermissions(ctx context.Context, userID string, permissionIDs []string) error
}
