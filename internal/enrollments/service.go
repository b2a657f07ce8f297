// Package enrollments is the allocation engine. A submission claims its
// drug quantity or kit row, generates the stage's identifiers, and writes
// the clinical record inside one transaction; any failure rolls the whole
// unit of work back.
package enrollments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medflowlabs/trialops-backend/internal/directory"
	"github.com/medflowlabs/trialops-backend/internal/kits"
	"github.com/medflowlabs/trialops-backend/internal/sequence"
	"github.com/medflowlabs/trialops-backend/internal/shipments"
	"github.com/medflowlabs/trialops-backend/pkg/db/models"
	"github.com/medflowlabs/trialops-backend/pkg/enums"
	pkgerrors "github.com/medflowlabs/trialops-backend/pkg/errors"
	"github.com/medflowlabs/trialops-backend/pkg/logger"
	"github.com/medflowlabs/trialops-backend/pkg/outbox"
	"github.com/medflowlabs/trialops-backend/pkg/outbox/payloads"
	"github.com/medflowlabs/trialops-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type kitClaimer interface {
	ClaimNextAvailable(ctx context.Context, tx *gorm.DB, studyIDs []uuid.UUID) (*kits.ClaimedRow, error)
}

type drugLedger interface {
	Consume(ctx context.Context, tx *gorm.DB, drugID uuid.UUID, amount int) error
}

// Notifier delivers best-effort post-commit messages.
type Notifier interface {
	Notify(ctx context.Context, subject, message, recipient string) error
}

// SubmitInput carries one stage submission.
type SubmitInput struct {
	Stage        enums.EnrollmentStage
	StudyID      uuid.UUID
	SiteID       uuid.UUID
	ShipmentID   *uuid.UUID
	UnitID       *uuid.UUID
	RequestedQty *int
	FormFields   types.FieldBag
	SubmittedBy  uuid.UUID
	// WithScreeningNumber also issues a screening number on randomization
	// submissions, for studies that fold both stages into one visit.
	WithScreeningNumber bool
}

// Service defines the allocation engine surface.
type Service interface {
	Submit(ctx context.Context, input SubmitInput) (*models.EnrollmentRecord, error)
	Get(ctx context.Context, id uuid.UUID) (*models.EnrollmentRecord, error)
	ListForSite(ctx context.Context, siteID uuid.UUID, limit, offset int) ([]models.EnrollmentRecord, error)
}

type service struct {
	repo      Repository
	shipRepo  shipments.Repository
	kits      kitClaimer
	kitRepo   kits.Repository
	dir       directory.Repository
	seq       sequence.Generator
	inventory drugLedger
	tx        txRunner
	outbox    outboxPublisher
	notifier  Notifier
	logg      *logger.Logger
}

// NewService builds the allocation engine.
func NewService(
	repo Repository,
	shipRepo shipments.Repository,
	kitSvc kitClaimer,
	kitRepo kits.Repository,
	dir directory.Repository,
	seq sequence.Generator,
	inventory drugLedger,
	tx txRunner,
	ob outboxPublisher,
	notifier Notifier,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("enrollments repository required")
	}
	if shipRepo == nil {
		return nil, fmt.Errorf("shipments repository required")
	}
	if kitSvc == nil {
		return nil, fmt.Errorf("kit claimer required")
	}
	if kitRepo == nil {
		return nil, fmt.Errorf("kit repository required")
	}
	if dir == nil {
		return nil, fmt.Errorf("directory repository required")
	}
	if seq == nil {
		return nil, fmt.Errorf("sequence generator required")
	}
	if inventory == nil {
		return nil, fmt.Errorf("drug inventory ledger required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:      repo,
		shipRepo:  shipRepo,
		kits:      kitSvc,
		kitRepo:   kitRepo,
		dir:       dir,
		seq:       seq,
		inventory: inventory,
		tx:        tx,
		outbox:    ob,
		notifier:  notifier,
		logg:      logg,
	}, nil
}

func (s *service) Submit(ctx context.Context, input SubmitInput) (*models.EnrollmentRecord, error) {
	if err := s.validate(ctx, input); err != nil {
		return nil, err
	}

	var record *models.EnrollmentRecord
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		switch input.Stage {
		case enums.StageScreening:
			return s.submitScreening(ctx, tx, input, &record)
		case enums.StageRandomization:
			return s.submitRandomization(ctx, tx, input, &record)
		default:
			return pkgerrors.New(pkgerrors.CodeValidation, "unknown enrollment stage")
		}
	})
	if err != nil {
		// Domain errors keep their code; anything else surfaces as an
		// aborted transaction.
		if typed := pkgerrors.As(err); typed != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransactionAborted, err, "enrollment submission rolled back")
	}

	s.notifySubmission(ctx, record)
	return record, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.EnrollmentRecord, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "enrollment id required")
	}
	record, err := s.repo.Find(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "enrollment record not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load enrollment record")
	}
	return record, nil
}

func (s *service) ListForSite(ctx context.Context, siteID uuid.UUID, limit, offset int) ([]models.EnrollmentRecord, error) {
	if siteID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "site id required")
	}
	records, err := s.repo.ListForSite(ctx, siteID, limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list enrollment records")
	}
	return records, nil
}

func (s *service) validate(ctx context.Context, input SubmitInput) error {
	if !input.Stage.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "enrollment stage required")
	}
	if input.StudyID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "study id required")
	}
	if input.SiteID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "site id required")
	}
	if input.SubmittedBy == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "submitter identity missing")
	}

	runs, err := s.dir.SiteRunsStudy(ctx, input.SiteID, input.StudyID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate study site")
	}
	if !runs {
		return pkgerrors.New(pkgerrors.CodeValidation, "site is not associated with study")
	}

	if input.Stage == enums.StageRandomization && input.ShipmentID == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "randomization requires a shipment")
	}
	return nil
}

func (s *service) submitScreening(ctx context.Context, tx *gorm.DB, input SubmitInput, out **models.EnrollmentRecord) error {
	number, err := s.nextScreeningNumber(ctx, tx, input.SiteID)
	if err != nil {
		return err
	}

	record := &models.EnrollmentRecord{
		ID:              uuid.New(),
		Stage:           enums.StageScreening,
		StudyID:         input.StudyID,
		SiteID:          input.SiteID,
		ScreeningNumber: &number,
		SubmittedBy:     input.SubmittedBy,
		FormFields:      input.FormFields,
	}
	if err := s.repo.WithTx(tx).Create(ctx, record); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist enrollment record")
	}
	*out = record

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventEnrollmentScreened,
		AggregateType: enums.AggregateEnrollment,
		AggregateID:   record.ID,
		Actor:         actorRef(input.SubmittedBy, input.SiteID),
		Version:       1,
		Data: payloads.EnrollmentScreenedEvent{
			EnrollmentID:    record.ID,
			StudyID:         record.StudyID,
			SiteID:          record.SiteID,
			ScreeningNumber: number,
			SubmittedAt:     time.Now(),
		},
	})
}

func (s *service) submitRandomization(ctx context.Context, tx *gorm.DB, input SubmitInput, out **models.EnrollmentRecord) error {
	ledger := s.shipRepo.WithTx(tx)

	shipment, err := ledger.FindShipment(ctx, *input.ShipmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipment")
	}
	if !shipment.Mode.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipment has invalid mode")
	}
	if shipment.SiteID != input.SiteID || shipment.StudyID != input.StudyID {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipment does not belong to this study site")
	}

	record := &models.EnrollmentRecord{
		ID:          uuid.New(),
		Stage:       enums.StageRandomization,
		StudyID:     input.StudyID,
		SiteID:      input.SiteID,
		ShipmentID:  &shipment.ID,
		SubmittedBy: input.SubmittedBy,
		FormFields:  input.FormFields,
	}

	if input.WithScreeningNumber {
		number, err := s.nextScreeningNumber(ctx, tx, input.SiteID)
		if err != nil {
			return err
		}
		record.ScreeningNumber = &number
	}

	var randomizationNumber string
	switch shipment.Mode {
	case enums.ShipmentModeDrug, enums.ShipmentModeDrugGroup:
		if err := s.consumeDrugUnit(ctx, tx, ledger, shipment, input, record); err != nil {
			return err
		}
		randomizationNumber, err = s.nextRandomizationNumber(ctx, tx, input.SiteID)
		if err != nil {
			return err
		}
	case enums.ShipmentModeRandomization:
		studyIDs, err := s.dir.WithTx(tx).StudyIDsForSite(ctx, input.SiteID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve site studies")
		}
		claimed, err := s.kits.ClaimNextAvailable(ctx, tx, studyIDs)
		if err != nil {
			return err
		}
		randomizationNumber = claimed.RandomizationNumber
		unitType := enums.UnitTypeKitRow
		record.UnitType = &unitType
		record.KitRowID = &claimed.Row.ID
	}

	record.RandomizationNumber = &randomizationNumber
	if err := s.repo.WithTx(tx).Create(ctx, record); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist enrollment record")
	}

	if record.KitRowID != nil {
		if err := s.kitRepo.WithTx(tx).LinkEnrollment(ctx, *record.KitRowID, record.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link kit row to enrollment")
		}
	}
	*out = record

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventEnrollmentRandomized,
		AggregateType: enums.AggregateEnrollment,
		AggregateID:   record.ID,
		Actor:         actorRef(input.SubmittedBy, input.SiteID),
		Version:       1,
		Data: payloads.EnrollmentRandomizedEvent{
			EnrollmentID:        record.ID,
			StudyID:             record.StudyID,
			SiteID:              record.SiteID,
			ShipmentID:          record.ShipmentID,
			RandomizationNumber: randomizationNumber,
			UnitType:            record.UnitType,
			KitRowID:            record.KitRowID,
			ConsumedQty:         record.ConsumedQty,
			SubmittedAt:         time.Now(),
		},
	})
}

// consumeDrugUnit draws the requested quantity out of the nominated unit's
// acknowledged stock and mirrors the draw against the depot inventory. Both
// decrements carry their own guard, so two submissions can never jointly
// overdraw a unit.
func (s *service) consumeDrugUnit(ctx context.Context, tx *gorm.DB, ledger shipments.Repository, shipment *models.Shipment, input SubmitInput, record *models.EnrollmentRecord) error {
	if input.UnitID == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "drug shipments require a nominated unit")
	}
	if input.RequestedQty == nil || *input.RequestedQty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "requested quantity must be positive")
	}
	qty := *input.RequestedQty

	var unit *models.ShipmentUnit
	for i := range shipment.Units {
		if shipment.Units[i].ID == *input.UnitID {
			unit = &shipment.Units[i]
			break
		}
	}
	if unit == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "unit does not belong to shipment")
	}

	ack, err := ledger.FindAcknowledgment(ctx, shipment.ID, unit.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "acknowledgment not found for unit")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load acknowledgment")
	}
	if ack.Status == enums.AckStatusNotAcknowledged {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "unit has not been acknowledged by the site")
	}

	affected, err := ledger.DecrementReceived(ctx, ack.ID, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement acknowledged stock")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeInsufficientQuantity,
			fmt.Sprintf("requested %d exceeds acknowledged stock", qty))
	}

	// Site stock is a slice of depot stock, so the depot ledger gives up the
	// same quantity in the same transaction.
	if unit.DrugID != nil {
		if err := s.inventory.Consume(ctx, tx, *unit.DrugID, qty); err != nil {
			return err
		}
	}

	record.UnitType = &unit.UnitType
	record.DrugID = unit.DrugID
	record.DrugGroupID = unit.DrugGroupID
	record.ConsumedQty = &qty
	return nil
}

func (s *service) nextScreeningNumber(ctx context.Context, tx *gorm.DB, siteID uuid.UUID) (string, error) {
	n, err := s.seq.Next(ctx, tx, sequence.ScreeningScope(siteID.String()))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("10-%03d", n), nil
}

func (s *service) nextRandomizationNumber(ctx context.Context, tx *gorm.DB, siteID uuid.UUID) (string, error) {
	n, err := s.seq.Next(ctx, tx, sequence.RandomizationScope(siteID.String()))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("R%03d", n), nil
}

func (s *service) notifySubmission(ctx context.Context, record *models.EnrollmentRecord) {
	if s.notifier == nil || record == nil {
		return
	}
	subject := "enrollment recorded"
	message := fmt.Sprintf("enrollment %s recorded at stage %s", record.ID, record.Stage)
	if record.RandomizationNumber != nil {
		message = fmt.Sprintf("enrollment %s randomized as %s", record.ID, *record.RandomizationNumber)
	}
	if err := s.notifier.Notify(ctx, subject, message, record.SiteID.String()); err != nil && s.logg != nil {
		s.logg.Warn(ctx, fmt.Sprintf("notification failed: %v", err))
	}
}

func actorRef(actorID, siteID uuid.UUID) *outbox.ActorRef {
	if actorID == uuid.Nil {
		return nil
	}
	ref := &outbox.ActorRef{UserID: actorID}
	if siteID != uuid.Nil {
		site := siteID
		ref.SiteID = &site
	}
	return ref
}
