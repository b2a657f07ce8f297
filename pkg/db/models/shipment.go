package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/medflowlabs/trialops-backend/pkg/enums"
)

// Shipment is one dispatch event from depot to a trial site. The mode is
// fixed at creation; after that only acknowledgment-derived fields change.
type Shipment struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	StudyID        uuid.UUID            `gorm:"column:study_id;type:uuid;not null;index"`
	SiteID         uuid.UUID            `gorm:"column:site_id;type:uuid;not null;index"`
	ShipmentNumber string               `gorm:"column:shipment_number;uniqueIndex;not null"`
	ShipDate       time.Time            `gorm:"column:ship_date;not null"`
	Mode           enums.ShipmentMode   `gorm:"column:mode;type:text;not null"`
	Status         enums.ShipmentStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	IsAcknowledged bool                 `gorm:"column:is_acknowledged;not null;default:false"`
	Units          []ShipmentUnit       `gorm:"foreignKey:ShipmentID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// ShipmentUnit is one dispatched unit within a shipment. Exactly one of
// DrugID, DrugGroupID, KitRowID is set, matching UnitType.
type ShipmentUnit struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	ShipmentID  uuid.UUID              `gorm:"column:shipment_id;type:uuid;not null;index"`
	UnitType    enums.ShipmentUnitType `gorm:"column:unit_type;type:text;not null"`
	DrugID      *uuid.UUID             `gorm:"column:drug_id;type:uuid"`
	DrugGroupID *uuid.UUID             `gorm:"column:drug_group_id;type:uuid"`
	KitRowID    *uuid.UUID             `gorm:"column:kit_row_id;type:uuid"`
	SentQty     int                    `gorm:"column:sent_qty;not null;default:1"`
	Position    int                    `gorm:"column:position;not null;default:0"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
}
