package models

import (
	"time"

	"github.com/google/uuid"
)

// DrugGroup is a named bundle of drugs shippable as one unit. Quantities
// live on the member drugs; the group itself carries none.
type DrugGroup struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	StudyID   uuid.UUID `gorm:"column:study_id;type:uuid;not null;index"`
	Name      string    `gorm:"column:name;not null"`
	Members   []Drug    `gorm:"many2many:drug_group_members"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
