package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/core/port"
	"github.com/arklim/accounts-iam/internal/infra/config"
)

const schemaVersion = "1.0"

const (
	EventUserCreated           = "iam.user.created"
	EventUserUpdated           = "iam.user.updated"
	EventUserDeleted           = "iam.user.deleted"
	EventUserRolesSynced       = "iam.user.roles.synced"
	EventRolePermissionsSynced = "iam.role.permissions.synced"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	Subject   string           `json:"subject,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

type roleRef struct {
	RoleID   string `json:"role_id"`
	RoleName string `json:"role_name"`
}

// publish wraps payload in the envelope and queues it keyed by subject, so events about
// one user or role stay ordered within a partition.
func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, subject string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		Subject:   subject,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(subject),
		Value: sarama.ByteEncoder(bytes),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(eventType)},
		},
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishUserCreated publishes iam.user.created events.
func (p *EventPublisher) PublishUserCreated(ctx context.Context, event domain.UserCreatedEvent) error {
	payload := struct {
		UserID            string         `json:"user_id"`
		Username          string         `json:"username"`
		Email             string         `json:"email"`
		UsernameGenerated bool           `json:"username_generated"`
		CreatedAt         time.Time      `json:"created_at"`
		Metadata          map[string]any `json:"metadata,omitempty"`
	}{
		UserID:            event.UserID,
		Username:          event.Username,
		Email:             event.Email,
		UsernameGenerated: event.UsernameGenerated,
		CreatedAt:         event.CreatedAt.UTC(),
		Metadata:          event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventUserCreated, event.UserID, event.CreatedAt, payload)
}

// PublishUserUpdated publishes iam.user.updated events.
func (p *EventPublisher) PublishUserUpdated(ctx context.Context, event domain.UserUpdatedEvent) error {
	payload := struct {
		UserID          string         `json:"user_id"`
		ChangedFields   []string       `json:"changed_fields"`
		PasswordChanged bool           `json:"password_changed"`
		UpdatedAt       time.Time      `json:"updated_at"`
		Metadata        map[string]any `json:"metadata,omitempty"`
	}{
		UserID:          event.UserID,
		ChangedFields:   event.ChangedFields,
		PasswordChanged: event.PasswordChanged,
		UpdatedAt:       event.UpdatedAt.UTC(),
		Metadata:        event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventUserUpdated, event.UserID, event.UpdatedAt, payload)
}

// PublishUserDeleted publishes iam.user.deleted events.
func (p *EventPublisher) PublishUserDeleted(ctx context.Context, event domain.UserDeletedEvent) error {
	payload := struct {
		UserID    string         `json:"user_id"`
		Username  string         `json:"username"`
		DeletedAt time.Time      `json:"deleted_at"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		UserID:    event.UserID,
		Username:  event.Username,
		DeletedAt: event.DeletedAt.UTC(),
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventUserDeleted, event.UserID, event.DeletedAt, payload)
}

// PublishUserRolesSynced publishes iam.user.roles.synced events.
func (p *EventPublisher) PublishUserRolesSynced(ctx context.Context, event domain.UserRolesSyncedEvent) error {
	roles := make([]roleRef, 0, len(event.Roles))
	for _, assignment := range event.Roles {
		roles = append(roles, roleRef{RoleID: assignment.RoleID, RoleName: assignment.RoleName})
	}

	payload := struct {
		UserID   string         `json:"user_id"`
		Guard    string         `json:"guard"`
		Roles    []roleRef      `json:"roles"`
		Additive bool           `json:"additive"`
		SyncedAt time.Time      `json:"synced_at"`
		Metadata map[string]any `json:"metadata,omitempty"`
	}{
		UserID:   event.UserID,
		Guard:    event.Guard,
		Roles:    roles,
		Additive: event.Additive,
		SyncedAt: event.SyncedAt.UTC(),
		Metadata: event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventUserRolesSynced, event.UserID, event.SyncedAt, payload)
}

// PublishRolePermissionsSynced publishes iam.role.permissions.synced events.
func (p *EventPublisher) PublishRolePermissionsSynced(ctx context.Context, event domain.RolePermissionsSyncedEvent) error {
	permissions := event.Permissions
	if permissions == nil {
		permissions = []string{}
	}

	payload := struct {
		RoleID      string         `json:"role_id"`
		RoleName    string         `json:"role_name"`
		Guard       string         `json:"guard"`
		Permissions []string       `json:"permissions"`
		Additive    bool           `json:"additive"`
		SyncedAt    time.Time      `json:"synced_at"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}{
		RoleID:      event.RoleID,
		RoleName:    event.RoleName,
		Guard:       event.Guard,
		Permissions: permissions,
		Additive:    event.Additive,
		SyncedAt:    event.SyncedAt.UTC(),
		Metadata:    event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventRolePermissionsSynced, event.RoleID, event.SyncedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
