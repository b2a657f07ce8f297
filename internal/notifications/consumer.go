package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/medflowlabs/trialops-backend/pkg/db/models"
	"github.com/medflowlabs/trialops-backend/pkg/enums"
	"github.com/medflowlabs/trialops-backend/pkg/logger"
	"github.com/medflowlabs/trialops-backend/pkg/outbox"
	"github.com/medflowlabs/trialops-backend/pkg/outbox/idempotency"
	"github.com/medflowlabs/trialops-backend/pkg/outbox/payloads"
)

const domainNotificationConsumer = "domain-notifications"

type repository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// Consumer watches domain events and turns shipment and inventory activity
// into site notifications.
type Consumer struct {
	repo         repository
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds a domain notification consumer.
func NewConsumer(repo repository, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := msg.Attributes["event_type"]
	fields := map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	}
	logCtx := c.logg.WithFields(ctx, fields)

	handled := eventType == string(enums.EventShipmentAcknowledged) ||
		eventType == string(enums.EventDrugLowStock)
	if !handled {
		c.logg.Info(logCtx, "skipping event without notification handling")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, domainNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	if err := c.handle(ctx, enums.OutboxEventType(eventType), envelope.Data, logCtx); err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		_ = c.idempotency.Delete(ctx, domainNotificationConsumer, eventID)
		return processResult{nack: true}
	}

	return processResult{ack: true}
}

func (c *Consumer) handle(ctx context.Context, eventType enums.OutboxEventType, data json.RawMessage, logCtx context.Context) error {
	switch eventType {
	case enums.EventShipmentAcknowledged:
		var payload payloads.ShipmentAcknowledgedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("parse acknowledgment payload: %w", err)
		}
		return c.createAcknowledgmentNotification(ctx, payload, logCtx)
	case enums.EventDrugLowStock:
		var payload payloads.DrugLowStockEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("parse low stock payload: %w", err)
		}
		return c.createLowStockNotification(ctx, payload, logCtx)
	default:
		c.logg.Info(logCtx, "event type not handled")
		return nil
	}
}

func (c *Consumer) createAcknowledgmentNotification(ctx context.Context, payload payloads.ShipmentAcknowledgedEvent, logCtx context.Context) error {
	if payload.SiteID == uuid.Nil {
		return fmt.Errorf("site id missing")
	}
	title := "Shipment acknowledged"
	message := fmt.Sprintf("Shipment %s was acknowledged with status %s.", payload.ShipmentNumber, payload.Status)
	if payload.MissingUnits > 0 || payload.DamagedUnits > 0 {
		title = "Shipment discrepancies reported"
		message = fmt.Sprintf("Shipment %s reported %d missing and %d damaged units.",
			payload.ShipmentNumber, payload.MissingUnits, payload.DamagedUnits)
	}
	link := fmt.Sprintf("/shipments/%s", payload.ShipmentID)
	notification := &models.Notification{
		SiteID:  payload.SiteID,
		Type:    enums.NotificationTypeShipment,
		Title:   title,
		Message: message,
		Link:    &link,
	}
	if err := c.repo.Create(ctx, notification); err != nil {
		return err
	}
	c.logg.Info(logCtx, "site notified of acknowledgment")
	return nil
}

func (c *Consumer) createLowStockNotification(ctx context.Context, payload payloads.DrugLowStockEvent, logCtx context.Context) error {
	if payload.DrugID == uuid.Nil {
		return fmt.Errorf("drug id missing")
	}
	link := fmt.Sprintf("/drugs/%s", payload.DrugID)
	notification := &models.Notification{
		// Low-stock alerts go to the study team; the study id stands in as
		// the recipient scope.
		SiteID:  payload.StudyID,
		Type:    enums.NotificationTypeInventory,
		Title:   "Drug stock low",
		Message: fmt.Sprintf("%s has %d units remaining (threshold %d).", payload.Name, payload.RemainingQty, payload.Threshold),
		Link:    &link,
	}
	if err := c.repo.Create(ctx, notification); err != nil {
		return err
	}
	c.logg.Info(logCtx, "study team notified of low stock")
	return nil
}
