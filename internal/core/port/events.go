package port

import (
	"context"

	"github.com/arklim/accounts-iam/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishUserCreated(ctx context.Context, event domain.UserCreatedEvent) error
	PublishUserUpdated(ctx context.Context, event domain.UserUpdatedEvent) error
	PublishUserDeleted(ctx context.Context, event domain.UserDeletedEvent) error
	PublishUserRolesSynced(ctx context.Context, event domain.UserRolesSyncedEvent) error
	PublishRolePermissionsSynced(ctx context.Context, event domain.RolePermissionsSyncedEvent) error
}
