package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medflowlabs/trialops-backend/pkg/config"
	"github.com/medflowlabs/trialops-backend/pkg/db/models"
	"github.com/medflowlabs/trialops-backend/pkg/enums"
	"github.com/medflowlabs/trialops-backend/pkg/logger"
	"github.com/medflowlabs/trialops-backend/pkg/outbox"
	"github.com/medflowlabs/trialops-backend/pkg/outbox/payloads"
	"github.com/medflowlabs/trialops-backend/pkg/outbox/registry"
)

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			shipmentCreatedRow(t),
			shipmentCreatedRow(t),
		},
	}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
			fakePublishResult{},
		},
	}
	eventRegistry := &fakeRegistry{resolved: resolvedShipmentCreated()}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, pub, eventRegistry, dlqRepo)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(repo.failed); got != 1 {
		t.Fatalf("unexpected number of failed rows: %d", got)
	}
	if got := len(repo.published); got != 1 {
		t.Fatalf("unexpected number of published rows: %d", got)
	}
	if repo.failed[0] != repo.events[0].ID {
		t.Fatalf("failed row recorded wrong ID")
	}
	if repo.published[0] != repo.events[1].ID {
		t.Fatalf("published row recorded wrong ID")
	}
	if len(dlqRepo.entries) != 0 {
		t.Fatalf("transient failure must not reach the dlq")
	}
}

func TestServiceProcessBatchSendsNonRetryableToDLQ(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{shipmentCreatedRow(t)}}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: registry.NewNonRetryableError(errors.New("bad payload"))},
		},
	}
	eventRegistry := &fakeRegistry{resolved: resolvedShipmentCreated()}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, pub, eventRegistry, dlqRepo)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(dlqRepo.entries) != 1 {
		t.Fatalf("expected 1 dlq entry, got %d", len(dlqRepo.entries))
	}
	if dlqRepo.entries[0].ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected dlq reason %s", dlqRepo.entries[0].ErrorReason)
	}
	if len(repo.terminal) != 1 {
		t.Fatalf("expected row marked terminal")
	}
}

func TestServiceProcessBatchMaxAttemptsGoesTerminal(t *testing.T) {
	row := shipmentCreatedRow(t)
	row.AttemptCount = 2
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	pub := &fakePublisher{
		results: []publishResult{fakePublishResult{err: errors.New("still down")}},
	}
	eventRegistry := &fakeRegistry{resolved: resolvedShipmentCreated()}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, pub, eventRegistry, dlqRepo)
	service.maxAttempts = 3

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(dlqRepo.entries) != 1 {
		t.Fatalf("expected 1 dlq entry, got %d", len(dlqRepo.entries))
	}
	if dlqRepo.entries[0].ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("unexpected dlq reason %s", dlqRepo.entries[0].ErrorReason)
	}
}

func TestServiceProcessBatchUnresolvableEventGoesToDLQ(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{shipmentCreatedRow(t)}}
	eventRegistry := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("unknown event"))}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, &fakePublisher{}, eventRegistry, dlqRepo)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(dlqRepo.entries) != 1 {
		t.Fatalf("expected 1 dlq entry, got %d", len(dlqRepo.entries))
	}
	if len(repo.published) != 0 || len(repo.failed) != 0 {
		t.Fatalf("unresolvable event must not publish or retry")
	}
}

func newTestService(t *testing.T, repo *fakeRepo, pub *fakePublisher, reg *fakeRegistry, dlq *fakeDLQRepo) *Service {
	t.Helper()
	cfg := &config.Config{}
	cfg.PubSub.DomainTopic = "trialops-domain-events"
	service, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logger.New(logger.Options{ServiceName: "outbox-test"}),
		DB:         fakeDB{},
		PubSub:     fakePubSubClient{},
		Repository: repo,
		Registry:   reg,
		PublisherFactory: func(topic string) publisher {
			return pub
		},
		DLQRepository: dlq,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return service
}

func shipmentCreatedRow(t *testing.T) models.OutboxEvent {
	t.Helper()
	data, err := json.Marshal(payloads.ShipmentCreatedEvent{
		ShipmentID:     uuid.New(),
		ShipmentNumber: "SP01140326",
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       data,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventShipmentCreated,
		AggregateType: enums.AggregateShipment,
		AggregateID:   uuid.New(),
		Payload:       envelope,
	}
}

func resolvedShipmentCreated() *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			EventType:     enums.EventShipmentCreated,
			AggregateType: enums.AggregateShipment,
			Topic:         "trialops-domain-events",
		},
		Envelope: outbox.PayloadEnvelope{
			EventID:    uuid.NewString(),
			OccurredAt: time.Now(),
		},
		Payload: &payloads.ShipmentCreatedEvent{},
	}
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type fakePubSubClient struct{}

func (fakePubSubClient) Ping(context.Context) error { return nil }

func (fakePubSubClient) DomainPublisher() *gcppubsub.Publisher { return nil }

func (fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.resolved, nil
}

type fakePublisher struct {
	results []publishResult
	calls   int
}

func (f *fakePublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if f.calls >= len(f.results) {
		return fakePublishResult{}
	}
	result := f.results[f.calls]
	f.calls++
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "server-id", nil
}
