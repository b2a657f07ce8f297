package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/medflowlabs/trialops-backend/pkg/enums"
)

// Notification is an in-app message addressed to a site's staff. Delivery is
// best effort; a failed insert never fails the operation that produced it.
type Notification struct {
	ID        uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	SiteID    uuid.UUID              `gorm:"column:site_id;type:uuid;not null;index"`
	Type      enums.NotificationType `gorm:"column:type;type:text;not null"`
	Title     string                 `gorm:"column:title;not null"`
	Message   string                 `gorm:"column:message;not null"`
	Link      *string                `gorm:"column:link"`
	ReadAt    *time.Time             `gorm:"column:read_at"`
	CreatedAt time.Time              `gorm:"column:created_at;autoCreateTime"`
}
