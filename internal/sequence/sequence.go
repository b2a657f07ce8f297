// Package sequence issues monotonically increasing numbers from a shared
// counter table. Every generated identifier in the system (shipment numbers,
// screening numbers, randomization numbers) draws from here so that
// concurrent transactions can never mint the same value twice.
package sequence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	pkgerrors "github.com/medflowlabs/trialops-backend/pkg/errors"
)

// Generator hands out the next value for a named counter scope.
type Generator interface {
	// Next atomically increments the counter for scope and returns the new
	// value. The first call for a scope returns 1. When tx is non-nil the
	// increment joins that transaction and rolls back with it.
	Next(ctx context.Context, tx *gorm.DB, scope string) (int64, error)
}

type generator struct {
	db *gorm.DB
}

// NewGenerator builds a counter-backed generator.
func NewGenerator(db *gorm.DB) (Generator, error) {
	if db == nil {
		return nil, fmt.Errorf("sequence generator requires a db handle")
	}
	return &generator{db: db}, nil
}

func (g *generator) Next(ctx context.Context, tx *gorm.DB, scope string) (int64, error) {
	if scope == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "sequence scope required")
	}

	conn := g.db
	if tx != nil {
		conn = tx
	}

	// Single-statement upsert so two transactions incrementing the same
	// scope serialize on the row instead of racing a read-then-write.
	// Supported by Postgres and by SQLite 3.35+ (RETURNING).
	var next int64
	err := conn.WithContext(ctx).Raw(
		`INSERT INTO sequence_counters (scope, value, updated_at)
		 VALUES (?, 1, CURRENT_TIMESTAMP)
		 ON CONFLICT (scope) DO UPDATE
		 SET value = sequence_counters.value + 1, updated_at = CURRENT_TIMESTAMP
		 RETURNING value`,
		scope,
	).Scan(&next).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment sequence counter")
	}
	return next, nil
}

// ShipmentScope returns the counter scope for shipment numbers, which reset
// per ship date.
func ShipmentScope(dateDDMMYY string) string {
	return "shipment:" + dateDDMMYY
}

// ScreeningScope returns the counter scope for a site's screening numbers.
func ScreeningScope(siteID string) string {
	return "screening:" + siteID
}

// RandomizationScope returns the counter scope for a site's sequential
// randomization numbers, used when no kit row supplies one.
func RandomizationScope(siteID string) string {
	return "randomization:" + siteID
}
