package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/medflowlabs/trialops-backend/pkg/enums"
)

// Acknowledgment reconciles one shipped unit against what the site reports.
// One row exists per (shipment, unit) from the moment the shipment is
// created; rows are updated in place, never deleted.
//
// Invariant once Status != not_acknowledged:
// ReceivedQty + MissingQty + DamagedQty == SentQty.
// ReceivedQty doubles as the remaining usable stock at the site; allocations
// decrement it, so the sum invariant is checked only at report time.
type Acknowledgment struct {
	ID             uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	ShipmentID     uuid.UUID                  `gorm:"column:shipment_id;type:uuid;not null;uniqueIndex:ux_acknowledgments_shipment_unit"`
	ShipmentUnitID uuid.UUID                  `gorm:"column:shipment_unit_id;type:uuid;not null;uniqueIndex:ux_acknowledgments_shipment_unit"`
	Status         enums.AcknowledgmentStatus `gorm:"column:status;type:text;not null;default:'not_acknowledged'"`
	SentQty        int                        `gorm:"column:sent_qty;not null"`
	ReceivedQty    int                        `gorm:"column:received_qty;not null;default:0"`
	MissingQty     int                        `gorm:"column:missing_qty;not null;default:0"`
	DamagedQty     int                        `gorm:"column:damaged_qty;not null;default:0"`
	AcknowledgedAt *time.Time                 `gorm:"column:acknowledged_at"`
	CreatedAt      time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}
