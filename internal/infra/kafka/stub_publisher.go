package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/core/port"
	"github.com/arklim/accounts-iam/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Used when no brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(log *zap.Logger) *StubPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &StubPublisher{logger: log}
}

func (p *StubPublisher) logEvent(eventType, subject string, at time.Time, payload map[string]any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("subject", subject),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishUserCreated logs iam.user.created events.
func (p *StubPublisher) PublishUserCreated(_ context.Context, event domain.UserCreatedEvent) error {
	p.logEvent(EventUserCreated, event.UserID, event.CreatedAt, map[string]any{
		"user_id":            event.UserID,
		"username":           event.Username,
		"email":              logger.MaskEmail(event.Email),
		"username_generated": event.UsernameGenerated,
	})
	return nil
}

// PublishUserUpdated logs iam.user.updated events.
func (p *StubPublisher) PublishUserUpdated(_ context.Context, event domain.UserUpdatedEvent) error {
	p.logEvent(EventUserUpdated, event.UserID, event.UpdatedAt, map[string]any{
		"user_id":          event.UserID,
		"changed_fields":   event.ChangedFields,
		"password_changed": event.PasswordChanged,
	})
	return nil
}

// PublishUserDeleted logs iam.user.deleted events.
func (p *StubPublisher) PublishUserDeleted(_ context.Context, event domain.UserDeletedEvent) error {
	p.logEvent(EventUserDeleted, event.UserID, event.DeletedAt, map[string]any{
		"user_id":  event.UserID,
		"username": event.Username,
	})
	return nil
}

// PublishUserRolesSynced logs iam.user.roles.synced events.
func (p *StubPublisher) PublishUserRolesSynced(_ context.Context, event domain.UserRolesSyncedEvent) error {
	names := make([]string, 0, len(event.Roles))
	for _, role := range event.Roles {
		names = append(names, role.RoleName)
	}
	p.logEvent(EventUserRolesSynced, event.UserID, event.SyncedAt, map[string]any{
		"user_id":  event.UserID,
		"guard":    event.Guard,
		"roles":    names,
		"additive": event.Additive,
	})
	return nil
}

// PublishRolePermissionsSynced logs iam.role.permissions.synced events.
func (p *StubPublisher) PublishRolePermissionsSynced(_ context.Context, event domain.RolePermissionsSyncedEvent) error {
	p.logEvent(EventRolePermissionsSynced, event.RoleID, event.SyncedAt, map[string]any{
		"role_id":     event.RoleID,
		"role_name":   event.RoleName,
		"guard":       event.Guard,
		"permissions": event.Permissions,
		"additive":    event.Additive,
	})
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
