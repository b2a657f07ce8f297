package models

import (
	"time"

	"github.com/google/uuid"
)

// Drug is the inventory ledger row for one investigational product.
// Invariant: 0 <= remaining_qty <= total_qty. Restocks raise both counters,
// consumption lowers remaining only.
type Drug struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	StudyID      uuid.UUID `gorm:"column:study_id;type:uuid;not null;index"`
	Name         string    `gorm:"column:name;not null"`
	TotalQty     int       `gorm:"column:total_qty;not null;default:0"`
	RemainingQty int       `gorm:"column:remaining_qty;not null;default:0"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
