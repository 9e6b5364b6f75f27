package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/infra/config"
)

type fakeAsyncProducer struct {
	input  chan *sarama.ProducerMessage
	errors chan *sarama.ProducerError
}

func newFakeAsyncProducer() *fakeAsyncProducer {
	return &fakeAsyncProducer{
		input:  make(chan *sarama.ProducerMessage, 1),
		errors: make(chan *sarama.ProducerError, 1),
	}
}

func (f *fakeAsyncProducer) AsyncClose() {}

func (f *fakeAsyncProducer) Close() error { return nil }

func (f *fakeAsyncProducer) Input() chan<- *sarama.ProducerMessage { return f.input }

func (f *fakeAsyncProducer) Successes() <-chan *sarama.ProducerMessage { return nil }

func (f *fakeAsyncProducer) Errors() <-chan *sarama.ProducerError { return f.errors }

func (f *fakeAsyncProducer) IsTransactional() bool { return false }

func (f *fakeAsyncProducer) BeginTxn() error { return nil }

func (f *fakeAsyncProducer) CommitTxn() error { return nil }

func (f *fakeAsyncProducer) AbortTxn() error { return nil }

func (f *fakeAsyncProducer) AddOffsetsToTxn(offsets map[string][]*sarama.PartitionOffsetMetadata, groupID string) error {
	return nil
}

func (f *fakeAsyncProducer) AddMessageToTxn(msg *sarama.ConsumerMessage, groupID string, metadata *string) error {
	return nil
}

func (f *fakeAsyncProducer) TxnStatus() sarama.ProducerTxnStatusFlag {
	return sarama.ProducerTxnStatusFlag(0)
}

func newTestPublisher(t *testing.T) (*EventPublisher, *fakeAsyncProducer) {
	t.Helper()
	asyncProducer := newFakeAsyncProducer()
	producer := newProducer(asyncProducer, config.KafkaSettings{TopicPrefix: "iam"}, zaptest.NewLogger(t))
	t.Cleanup(func() { close(producer.done) })

	publisher := NewEventPublisher(producer, config.AppSettings{
		Name: "accounts-iam",
		Env:  "test",
	}, zaptest.NewLogger(t))
	return publisher, asyncProducer
}

func decodeEnvelope(t *testing.T, msg *sarama.ProducerMessage) map[string]any {
	t.Helper()
	bytes, err := msg.Value.Encode()
	if err != nil {
		t.Fatalf("Value.Encode returned error: %v", err)
	}
	var envelope map[string]any
	if err := json.Unmarshal(bytes, &envelope); err != nil {
		t.Fatalf("failed to unmarshal envelope: %v", err)
	}
	return envelope
}

func TestPublishUserCreated(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	createdAt := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	event := domain.UserCreatedEvent{
		EventID:           "event-123",
		UserID:            "42",
		Username:          "u12345678",
		Email:             "jane@example.com",
		UsernameGenerated: true,
		CreatedAt:         createdAt,
	}

	if err := publisher.PublishUserCreated(context.Background(), event); err != nil {
		t.Fatalf("PublishUserCreated returned error: %v", err)
	}

	msg := <-asyncProducer.input
	if msg.Topic != "iam.user.created" {
		t.Fatalf("unexpected topic: %s", msg.Topic)
	}
	key, _ := msg.Key.Encode()
	if string(key) != "42" {
		t.Fatalf("expected message keyed by user id, got %q", key)
	}

	envelope := decodeEnvelope(t, msg)
	if envelope["event_id"] != "event-123" || envelope["event_type"] != "iam.user.created" || envelope["subject"] != "42" {
		t.Fatalf("unexpected envelope: %v", envelope)
	}
	if envelope["timestamp"] != createdAt.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected timestamp: %v", envelope["timestamp"])
	}
	if envelope["version"] != schemaVersion {
		t.Fatalf("unexpected version: %v", envelope["version"])
	}

	payload, ok := envelope["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload not an object: %T", envelope["payload"])
	}
	if payload["username"] != "u12345678" || payload["username_generated"] != true {
		t.Fatalf("unexpected payload: %v", payload)
	}

	metadata, _ := envelope["metadata"].(map[string]any)
	if metadata["service"] != "accounts-iam" || metadata["environment"] != "test" {
		t.Fatalf("unexpected metadata: %v", metadata)
	}
}

func TestPublishRolePermissionsSyncedKeepsEmptySet(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	event := domain.RolePermissionsSyncedEvent{
		RoleID:   "7",
		RoleName: "editor",
		Guard:    "web",
	}
	if err := publisher.PublishRolePermissionsSynced(context.Background(), event); err != nil {
		t.Fatalf("PublishRolePermissionsSynced returned error: %v", err)
	}

	msg := <-asyncProducer.input
	if msg.Topic != "iam.role.permissions.synced" {
		t.Fatalf("unexpected topic: %s", msg.Topic)
	}
	envelope := decodeEnvelope(t, msg)
	if id, _ := envelope["event_id"].(string); id == "" {
		t.Fatal("expected generated event id")
	}
	payload := envelope["payload"].(map[string]any)
	permissions, ok := payload["permissions"].([]any)
	if !ok || len(permissions) != 0 {
		t.Fatalf("expected an empty permissions array, got %v", payload["permissions"])
	}
}

func TestPublishUserRolesSynced(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	event := domain.UserRolesSyncedEvent{
		EventID: "event-9",
		UserID:  "42",
		Guard:   "web",
		Roles:   []domain.RoleAssignment{{RoleID: "1", RoleName: "admin"}},
	}
	if err := publisher.PublishUserRolesSynced(context.Background(), event); err != nil {
		t.Fatalf("PublishUserRolesSynced returned error: %v", err)
	}

	envelope := decodeEnvelope(t, <-asyncProducer.input)
	roles := envelope["payload"].(map[string]any)["roles"].([]any)
	if len(roles) != 1 || roles[0].(map[string]any)["role_name"] != "admin" {
		t.Fatalf("unexpected roles payload: %v", roles)
	}
}

func TestPublishHonoursCancelledContext(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)
	asyncProducer.input <- &sarama.ProducerMessage{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := publisher.PublishUserDeleted(ctx, domain.UserDeletedEvent{UserID: "42"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTopicName(t *testing.T) {
	producer := &Producer{cfg: config.KafkaSettings{TopicPrefix: "iam"}}
	if got := producer.TopicName("iam.user.created"); got != "iam.user.created" {
		t.Fatalf("expected prefixed event type to be kept, got %s", got)
	}
	if got := producer.TopicName("audit"); got != "iam.audit" {
		t.Fatalf("expected prefix to be added, got %s", got)
	}
	if got := (&Producer{}).TopicName("audit"); got != "audit" {
		t.Fatalf("expected bare topic without prefix, got %s", got)
	}
}

func TestNewSaramaConfigDurability(t *testing.T) {
	if cfg := NewSaramaConfig(config.KafkaSettings{Async: true}, "iam"); cfg.Producer.RequiredAcks != sarama.WaitForLocal || cfg.ClientID != "iam" {
		t.Fatalf("unexpected async config: acks=%v client=%s", cfg.Producer.RequiredAcks, cfg.ClientID)
	}
	cfg := NewSaramaConfig(config.KafkaSettings{}, "")
	if cfg.Producer.RequiredAcks != sarama.WaitForAll || !cfg.Producer.Idempotent {
		t.Fatalf("expected durable config when async is off")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("durable config is invalid: %v", err)
	}
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	if _, err := NewProducer(config.KafkaSettings{}, "", zaptest.NewLogger(t)); !errors.Is(err, ErrNoBrokers) {
		t.Fatalf("expected ErrNoBrokers, got %v", err)
	}
}

func TestStubPublisherNeverFails(t *testing.T) {
	stub := NewStubPublisher(zaptest.NewLogger(t))
	ctx := context.Background()

	if err := stub.PublishUserCreated(ctx, domain.UserCreatedEvent{UserID: "1", Email: "jane@example.com"}); err != nil {
		t.Fatalf("PublishUserCreated returned error: %v", err)
	}
	if err := stub.PublishUserRolesSynced(ctx, domain.UserRolesSyncedEvent{UserID: "1"}); err != nil {
		t.Fatalf("PublishUserRolesSynced returned error: %v", err)
	}
	if err := stub.PublishRolePermissionsSynced(ctx, domain.RolePermissionsSyncedEvent{RoleID: "1"}); err != nil {
		t.Fatalf("PublishRolePermissionsSynced returned error: %v", err)
	}
}
