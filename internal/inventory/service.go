// Package inventory is the drug ledger: per-drug total and remaining
// quantities with the invariant 0 <= remaining <= total enforced on every
// mutation.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medflowlabs/trialops-backend/pkg/db/models"
	pkgerrors "github.com/medflowlabs/trialops-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines the ledger operations.
type Service interface {
	Restock(ctx context.Context, drugID uuid.UUID, delta int) (*models.Drug, error)
	Consume(ctx context.Context, tx *gorm.DB, drugID uuid.UUID, amount int) error
	SetQuantity(ctx context.Context, drugID uuid.UUID, newTotal int) (*models.Drug, error)
	LowStock(ctx context.Context, studyID uuid.UUID, threshold int) ([]models.Drug, error)
	OutOfStock(ctx context.Context, studyID uuid.UUID) ([]models.Drug, error)
}

type service struct {
	repo Repository
	tx   txRunner
}

// NewService builds the inventory ledger service.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

func (s *service) Restock(ctx context.Context, drugID uuid.UUID, delta int) (*models.Drug, error) {
	if drugID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "drug id required")
	}
	if delta < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restock delta must not be negative")
	}

	var drug *models.Drug
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		affected, err := repo.Restock(ctx, drugID, delta)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restock drug")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "drug not found")
		}
		drug, err = repo.FindDrug(ctx, drugID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload drug")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return drug, nil
}

// Consume decrements remaining stock. The guard lives in the UPDATE itself,
// so concurrent consumers can never jointly over-draw. Runs on tx when the
// caller supplies one so allocation transactions abort as a whole.
func (s *service) Consume(ctx context.Context, tx *gorm.DB, drugID uuid.UUID, amount int) error {
	if drugID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "drug id required")
	}
	if amount <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "consume amount must be positive")
	}

	repo := s.repo.WithTx(tx)
	affected, err := repo.ConsumeRemaining(ctx, drugID, amount)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume drug stock")
	}
	if affected > 0 {
		return nil
	}

	// The conditional update matched nothing. Distinguish a missing drug
	// from an insufficient balance for the caller.
	if _, err := repo.FindDrug(ctx, drugID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "drug not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load drug")
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientQuantity, "insufficient remaining quantity")
}

func (s *service) SetQuantity(ctx context.Context, drugID uuid.UUID, newTotal int) (*models.Drug, error) {
	if drugID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "drug id required")
	}
	if newTotal < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total quantity must not be negative")
	}

	var drug *models.Drug
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		affected, err := repo.SetTotal(ctx, drugID, newTotal)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set drug quantity")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "drug not found")
		}
		drug, err = repo.FindDrug(ctx, drugID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload drug")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return drug, nil
}

func (s *service) LowStock(ctx context.Context, studyID uuid.UUID, threshold int) ([]models.Drug, error) {
	if threshold < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "threshold must not be negative")
	}
	drugs, err := s.repo.ListLowStock(ctx, studyID, threshold)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list low stock")
	}
	return drugs, nil
}

func (s *service) OutOfStock(ctx context.Context, studyID uuid.UUID) ([]models.Drug, error) {
	drugs, err := s.repo.ListOutOfStock(ctx, studyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list out of stock")
	}
	return drugs, nil
}
