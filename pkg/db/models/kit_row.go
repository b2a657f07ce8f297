package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/medflowlabs/trialops-backend/pkg/types"
)

// KitRow is a pre-generated, single-use randomization assignment. Rows are
// bulk-imported with IsUsed=false and flip to used exactly once when the
// allocation engine claims them. Position fixes FIFO claim order.
type KitRow struct {
	ID                 uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	StudyID            uuid.UUID      `gorm:"column:study_id;type:uuid;not null;index;uniqueIndex:ux_kit_rows_study_kit_number"`
	KitNumber          string         `gorm:"column:kit_number;not null;uniqueIndex:ux_kit_rows_study_kit_number"`
	Attributes         types.FieldBag `gorm:"column:attributes;type:jsonb;serializer:json"`
	Position           int64          `gorm:"column:position;not null;index"`
	IsUsed             bool           `gorm:"column:is_used;not null;default:false"`
	UsedAt             *time.Time     `gorm:"column:used_at"`
	EnrollmentRecordID *uuid.UUID     `gorm:"column:enrollment_record_id;type:uuid"`
	CreatedAt          time.Time      `gorm:"column:created_at;autoCreateTime"`
}

// RandomizationNumberKey is the attribute every kit row must carry; a claimed
// row without it is malformed.
const RandomizationNumberKey = "randomization_number"
