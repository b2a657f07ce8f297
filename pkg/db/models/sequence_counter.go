package models

import "time"

// SequenceCounter backs every generated identifier (shipment numbers,
// screening numbers, randomization numbers). One row per scope, incremented
// atomically inside the transaction that consumes the value, replacing the
// scan-for-max approach that was unsafe under concurrency.
type SequenceCounter struct {
	Scope     string    `gorm:"column:scope;primaryKey"`
	Value     int64     `gorm:"column:value;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
