package models

import (
	"time"

	"github.com/google/uuid"
)

// Study is read-only directory data; CRUD lives outside this service.
type Study struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Code      string    `gorm:"column:code;uniqueIndex;not null"`
	Name      string    `gorm:"column:name;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// Site is read-only directory data; CRUD lives outside this service.
type Site struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Code      string    `gorm:"column:code;uniqueIndex;not null"`
	Name      string    `gorm:"column:name;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// StudySite associates a site with the studies it runs. Kit claims are
// scoped through this table.
type StudySite struct {
	StudyID uuid.UUID `gorm:"column:study_id;type:uuid;primaryKey"`
	SiteID  uuid.UUID `gorm:"column:site_id;type:uuid;primaryKey"`
}
