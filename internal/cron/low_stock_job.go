package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medflowlabs/trialops-backend/pkg/db/models"
	"github.com/medflowlabs/trialops-backend/pkg/enums"
	"github.com/medflowlabs/trialops-backend/pkg/logger"
	"github.com/medflowlabs/trialops-backend/pkg/outbox"
	"github.com/medflowlabs/trialops-backend/pkg/outbox/payloads"
)

const defaultLowStockThreshold = 10

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type lowStockLister interface {
	ListLowStock(ctx context.Context, studyID uuid.UUID, threshold int) ([]models.Drug, error)
}

type lowStockEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type LowStockJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Inventory lowStockLister
	Outbox    lowStockEmitter
	Threshold int
}

// NewLowStockJob builds the sweep that flags drugs whose remaining quantity
// dipped to or below the threshold. Emission is deduplicated per drug, so a
// drug that stays low does not alert on every cycle.
func NewLowStockJob(params LowStockJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	threshold := params.Threshold
	if threshold <= 0 {
		threshold = defaultLowStockThreshold
	}
	return &lowStockJob{
		logg:      params.Logger,
		db:        params.DB,
		inventory: params.Inventory,
		outbox:    params.Outbox,
		threshold: threshold,
	}, nil
}

type lowStockJob struct {
	logg      *logger.Logger
	db        txRunner
	inventory lowStockLister
	outbox    lowStockEmitter
	threshold int
}

func (j *lowStockJob) Name() string { return "low-stock-sweep" }

func (j *lowStockJob) Run(ctx context.Context) error {
	drugs, err := j.inventory.ListLowStock(ctx, uuid.Nil, j.threshold)
	if err != nil {
		return fmt.Errorf("list low stock: %w", err)
	}
	if len(drugs) == 0 {
		j.logg.Info(ctx, "no drugs below threshold")
		return nil
	}

	emitted := 0
	err = j.db.WithTx(ctx, func(tx *gorm.DB) error {
		for _, drug := range drugs {
			event := outbox.DomainEvent{
				EventType:     enums.EventDrugLowStock,
				AggregateType: enums.AggregateDrug,
				AggregateID:   drug.ID,
				Version:       1,
				Data: payloads.DrugLowStockEvent{
					DrugID:       drug.ID,
					StudyID:      drug.StudyID,
					Name:         drug.Name,
					RemainingQty: drug.RemainingQty,
					Threshold:    j.threshold,
				},
			}
			if err := j.outbox.EmitIfNotExists(ctx, tx, event); err != nil {
				return err
			}
			emitted++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("low stock sweep: %w", err)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"threshold":   j.threshold,
		"drugs_low":   len(drugs),
		"events_seen": emitted,
	})
	j.logg.Info(logCtx, "low stock sweep complete")
	return nil
}
