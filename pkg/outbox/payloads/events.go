package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/medflowlabs/trialops-backend/pkg/enums"
)

// ShipmentCreatedEvent signals a new dispatch toward a site.
type ShipmentCreatedEvent struct {
	ShipmentID     uuid.UUID          `json:"shipment_id"`
	ShipmentNumber string             `json:"shipment_number"`
	StudyID        uuid.UUID          `json:"study_id"`
	SiteID         uuid.UUID          `json:"site_id"`
	Mode           enums.ShipmentMode `json:"mode"`
	UnitCount      int                `json:"unit_count"`
}

// ShipmentAcknowledgedEvent reports a site's reconciliation outcome.
type ShipmentAcknowledgedEvent struct {
	ShipmentID     uuid.UUID            `json:"shipment_id"`
	ShipmentNumber string               `json:"shipment_number"`
	SiteID         uuid.UUID            `json:"site_id"`
	Status         enums.ShipmentStatus `json:"status"`
	FullyReceived  bool                 `json:"fully_received"`
	MissingUnits   int                  `json:"missing_units"`
	DamagedUnits   int                  `json:"damaged_units"`
}

// EnrollmentScreenedEvent is emitted when a screening submission commits.
type EnrollmentScreenedEvent struct {
	EnrollmentID    uuid.UUID `json:"enrollment_id"`
	StudyID         uuid.UUID `json:"study_id"`
	SiteID          uuid.UUID `json:"site_id"`
	ScreeningNumber string    `json:"screening_number"`
	SubmittedAt     time.Time `json:"submitted_at"`
}

// EnrollmentRandomizedEvent is emitted when a randomization submission
// commits together with its inventory deduction or kit claim.
type EnrollmentRandomizedEvent struct {
	EnrollmentID        uuid.UUID               `json:"enrollment_id"`
	StudyID             uuid.UUID               `json:"study_id"`
	SiteID              uuid.UUID               `json:"site_id"`
	ShipmentID          *uuid.UUID              `json:"shipment_id,omitempty"`
	RandomizationNumber string                  `json:"randomization_number"`
	UnitType            *enums.ShipmentUnitType `json:"unit_type,omitempty"`
	KitRowID            *uuid.UUID              `json:"kit_row_id,omitempty"`
	ConsumedQty         *int                    `json:"consumed_qty,omitempty"`
	SubmittedAt         time.Time               `json:"submitted_at"`
}

// DrugLowStockEvent alerts downstream systems that a drug's remaining
// quantity dipped to or below the configured threshold.
type DrugLowStockEvent struct {
	DrugID       uuid.UUID `json:"drug_id"`
	StudyID      uuid.UUID `json:"study_id"`
	Name         string    `json:"name"`
	RemainingQty int       `json:"remaining_qty"`
	Threshold    int       `json:"threshold"`
}
