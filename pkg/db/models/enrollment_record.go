package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/medflowlabs/trialops-backend/pkg/enums"
	"github.com/medflowlabs/trialops-backend/pkg/types"
)

// EnrollmentRecord is the append-only clinical record created per successful
// stage submission. It is written exactly once inside the submission
// transaction and never mutated by the API afterwards.
type EnrollmentRecord struct {
	ID                  uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	Stage               enums.EnrollmentStage   `gorm:"column:stage;type:text;not null"`
	StudyID             uuid.UUID               `gorm:"column:study_id;type:uuid;not null;index"`
	SiteID              uuid.UUID               `gorm:"column:site_id;type:uuid;not null;index"`
	ShipmentID          *uuid.UUID              `gorm:"column:shipment_id;type:uuid"`
	ScreeningNumber     *string                 `gorm:"column:screening_number"`
	RandomizationNumber *string                 `gorm:"column:randomization_number"`
	SubmittedBy         uuid.UUID               `gorm:"column:submitted_by;type:uuid;not null"`
	UnitType            *enums.ShipmentUnitType `gorm:"column:unit_type;type:text"`
	DrugID              *uuid.UUID              `gorm:"column:drug_id;type:uuid"`
	DrugGroupID         *uuid.UUID              `gorm:"column:drug_group_id;type:uuid"`
	KitRowID            *uuid.UUID              `gorm:"column:kit_row_id;type:uuid"`
	ConsumedQty         *int                    `gorm:"column:consumed_qty"`
	FormFields          types.FieldBag          `gorm:"column:form_fields;type:jsonb;serializer:json"`
	CreatedAt           time.Time               `gorm:"column:created_at;autoCreateTime"`
}
