// Package kits manages the pool of pre-generated, single-use randomization
// rows. Rows enter via bulk import and leave exactly once, claimed FIFO by
// the allocation engine.
package kits

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medflowlabs/trialops-backend/pkg/db"
	"github.com/medflowlabs/trialops-backend/pkg/db/models"
	pkgerrors "github.com/medflowlabs/trialops-backend/pkg/errors"
	"github.com/medflowlabs/trialops-backend/pkg/types"
)

// claimAttempts bounds the retry loop when concurrent claimers keep winning
// the same FIFO candidate.
const claimAttempts = 5

// ClaimedRow is the outcome of a successful pool claim.
type ClaimedRow struct {
	Row                 *models.KitRow
	RandomizationNumber string
}

// RowInput is one row of an already-parsed kit sheet.
type RowInput struct {
	KitNumber  string         `json:"kit_number" validate:"required"`
	Attributes types.FieldBag `json:"attributes" validate:"required"`
}

// Service defines pool operations.
type Service interface {
	// ClaimNextAvailable flips the oldest unused row for one of studyIDs to
	// used and extracts its randomization number. Runs on tx when provided
	// so a failed enrollment aborts the claim with everything else.
	ClaimNextAvailable(ctx context.Context, tx *gorm.DB, studyIDs []uuid.UUID) (*ClaimedRow, error)
	ImportRows(ctx context.Context, studyID uuid.UUID, rows []RowInput) ([]models.KitRow, error)
	AvailableRows(ctx context.Context, studyIDs []uuid.UUID, limit int) ([]models.KitRow, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo Repository
	tx   txRunner
}

// NewService builds the kit pool service.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("kits repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

func (s *service) ClaimNextAvailable(ctx context.Context, tx *gorm.DB, studyIDs []uuid.UUID) (*ClaimedRow, error) {
	if len(studyIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one study required for claim")
	}

	repo := s.repo.WithTx(tx)
	for attempt := 0; attempt < claimAttempts; attempt++ {
		row, err := repo.ClaimOldestUnused(ctx, studyIDs)
		if err == nil {
			number, nerr := randomizationNumberOf(row)
			if nerr != nil {
				return nil, nerr
			}
			return &ClaimedRow{Row: row, RandomizationNumber: number}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim kit row")
		}

		remaining, cerr := repo.CountUnused(ctx, studyIDs)
		if cerr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, cerr, "count unused kit rows")
		}
		if remaining == 0 {
			return nil, pkgerrors.New(pkgerrors.CodePoolExhausted, "no unused kit rows available")
		}
		// Rows exist but a concurrent claimer took our candidate. Retry.
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "kit row claim contention, retry")
}

func (s *service) ImportRows(ctx context.Context, studyID uuid.UUID, inputs []RowInput) ([]models.KitRow, error) {
	if studyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "study id required")
	}
	if len(inputs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one kit row required")
	}
	for i, in := range inputs {
		if in.KitNumber == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("row %d: kit number required", i))
		}
		if _, ok := in.Attributes.Get(models.RandomizationNumberKey); !ok {
			return nil, pkgerrors.New(pkgerrors.CodeMalformedRow,
				fmt.Sprintf("row %d: missing %s attribute", i, models.RandomizationNumberKey))
		}
	}

	var rows []models.KitRow
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		base, err := repo.MaxPosition(ctx, studyID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve import position")
		}
		rows = make([]models.KitRow, 0, len(inputs))
		for i, in := range inputs {
			rows = append(rows, models.KitRow{
				ID:         uuid.New(),
				StudyID:    studyID,
				KitNumber:  in.KitNumber,
				Attributes: in.Attributes,
				Position:   base + int64(i) + 1,
			})
		}
		if err := repo.CreateRows(ctx, rows); err != nil {
			if db.IsUniqueViolation(err, "ux_kit_rows_study_kit_number") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "kit number already imported for study")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist kit rows")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *service) AvailableRows(ctx context.Context, studyIDs []uuid.UUID, limit int) ([]models.KitRow, error) {
	if len(studyIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one study required")
	}
	rows, err := s.repo.ListUnused(ctx, studyIDs, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unused kit rows")
	}
	return rows, nil
}

func randomizationNumberOf(row *models.KitRow) (string, error) {
	val, ok := row.Attributes.Get(models.RandomizationNumberKey)
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeMalformedRow, "kit row missing randomization number attribute")
	}
	switch val.Kind {
	case types.FieldKindString:
		if val.Str == "" {
			return "", pkgerrors.New(pkgerrors.CodeMalformedRow, "kit row randomization number is empty")
		}
		return val.Str, nil
	case types.FieldKindNumber:
		return val.String(), nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeMalformedRow, "kit row randomization number has invalid type")
	}
}
