// Package shipments handles dispatch events and their acknowledgment
// reconciliation: what was sent to a site, what the site confirmed, and the
// shipment status derived from the two.
package shipments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/medflowlabs/trialops-backend/internal/directory"
	"github.com/medflowlabs/trialops-backend/internal/sequence"
	"github.com/medflowlabs/trialops-backend/pkg/db/models"
	"github.com/medflowlabs/trialops-backend/pkg/enums"
	pkgerrors "github.com/medflowlabs/trialops-backend/pkg/errors"
	"github.com/medflowlabs/trialops-backend/pkg/logger"
	"github.com/medflowlabs/trialops-backend/pkg/outbox"
	"github.com/medflowlabs/trialops-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type drugFinder interface {
	FindDrug(ctx context.Context, id uuid.UUID) (*models.Drug, error)
	FindDrugGroup(ctx context.Context, id uuid.UUID) (*models.DrugGroup, error)
}

type kitRowFinder interface {
	FindRow(ctx context.Context, id uuid.UUID) (*models.KitRow, error)
}

// Notifier delivers best-effort post-commit messages. Failures are logged
// and never surface to the caller.
type Notifier interface {
	Notify(ctx context.Context, subject, message, recipient string) error
}

// DrugUnitInput nominates one drug line on a shipment.
type DrugUnitInput struct {
	DrugID uuid.UUID `json:"drug_id" validate:"required"`
	Qty    int       `json:"qty" validate:"required,gt=0"`
}

// GroupUnitInput nominates one drug group line on a shipment.
type GroupUnitInput struct {
	DrugGroupID uuid.UUID `json:"drug_group_id" validate:"required"`
	Qty         int       `json:"qty" validate:"required,gt=0"`
}

// CreateShipmentInput carries everything needed to register a dispatch.
type CreateShipmentInput struct {
	StudyID   uuid.UUID
	SiteID    uuid.UUID
	ShipDate  time.Time
	Mode      enums.ShipmentMode
	Drugs     []DrugUnitInput
	Groups    []GroupUnitInput
	KitRowIDs []uuid.UUID
	ActorID   uuid.UUID
}

// UnitReport is one line of a site's acknowledgment submission.
type UnitReport struct {
	ShipmentUnitID uuid.UUID `json:"shipment_unit_id" validate:"required"`
	ReceivedQty    int       `json:"received_qty" validate:"gte=0"`
	MissingQty     int       `json:"missing_qty" validate:"gte=0"`
	DamagedQty     int       `json:"damaged_qty" validate:"gte=0"`
}

// AcknowledgeInput is a site's full or partial reconciliation report.
type AcknowledgeInput struct {
	ShipmentID uuid.UUID
	Reports    []UnitReport
	ActorID    uuid.UUID
}

// AcknowledgeResult returns the updated ledger plus derived shipment state.
type AcknowledgeResult struct {
	Shipment        *models.Shipment
	Acknowledgments []models.Acknowledgment
}

// Service defines shipment operations.
type Service interface {
	Create(ctx context.Context, input CreateShipmentInput) (*models.Shipment, error)
	MarkSent(ctx context.Context, shipmentID uuid.UUID) (*models.Shipment, error)
	Acknowledge(ctx context.Context, input AcknowledgeInput) (*AcknowledgeResult, error)
	Get(ctx context.Context, shipmentID uuid.UUID) (*models.Shipment, []models.Acknowledgment, error)
	ListForSite(ctx context.Context, siteID uuid.UUID, limit, offset int) ([]models.Shipment, error)
	// AvailableUnits lists acknowledged drug units with usable stock left,
	// for populating allocation pickers.
	AvailableUnits(ctx context.Context, shipmentID uuid.UUID) ([]models.Acknowledgment, error)
}

type service struct {
	repo     Repository
	dir      directory.Repository
	drugs    drugFinder
	kits     kitRowFinder
	seq      sequence.Generator
	tx       txRunner
	outbox   outboxPublisher
	notifier Notifier
	logg     *logger.Logger
}

// NewService builds the shipment service.
func NewService(
	repo Repository,
	dir directory.Repository,
	drugs drugFinder,
	kits kitRowFinder,
	seq sequence.Generator,
	tx txRunner,
	ob outboxPublisher,
	notifier Notifier,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("shipments repository required")
	}
	if dir == nil {
		return nil, fmt.Errorf("directory repository required")
	}
	if drugs == nil {
		return nil, fmt.Errorf("drug finder required")
	}
	if kits == nil {
		return nil, fmt.Errorf("kit row finder required")
	}
	if seq == nil {
		return nil, fmt.Errorf("sequence generator required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:     repo,
		dir:      dir,
		drugs:    drugs,
		kits:     kits,
		seq:      seq,
		tx:       tx,
		outbox:   ob,
		notifier: notifier,
		logg:     logg,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateShipmentInput) (*models.Shipment, error) {
	if err := s.validateCreate(ctx, input); err != nil {
		return nil, err
	}

	shipDate := input.ShipDate
	if shipDate.IsZero() {
		shipDate = time.Now()
	}

	var shipment *models.Shipment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		number, err := s.nextShipmentNumber(ctx, tx, shipDate)
		if err != nil {
			return err
		}

		shipment = &models.Shipment{
			ID:             uuid.New(),
			StudyID:        input.StudyID,
			SiteID:         input.SiteID,
			ShipmentNumber: number,
			ShipDate:       shipDate,
			Mode:           input.Mode,
			Status:         enums.ShipmentStatusPending,
		}
		shipment.Units = buildUnits(shipment.ID, input)
		if err := repo.CreateShipment(ctx, shipment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist shipment")
		}

		// One acknowledgment row per unit from the start, so reconciliation
		// is an update by key and re-submissions stay idempotent.
		acks := make([]models.Acknowledgment, 0, len(shipment.Units))
		for _, unit := range shipment.Units {
			acks = append(acks, models.Acknowledgment{
				ID:             uuid.New(),
				ShipmentID:     shipment.ID,
				ShipmentUnitID: unit.ID,
				Status:         enums.AckStatusNotAcknowledged,
				SentQty:        unit.SentQty,
			})
		}
		if err := repo.CreateAcknowledgments(ctx, acks); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist acknowledgments")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventShipmentCreated,
			AggregateType: enums.AggregateShipment,
			AggregateID:   shipment.ID,
			Actor:         actorRef(input.ActorID, input.SiteID),
			Version:       1,
			Data: payloads.ShipmentCreatedEvent{
				ShipmentID:     shipment.ID,
				ShipmentNumber: shipment.ShipmentNumber,
				StudyID:        shipment.StudyID,
				SiteID:         shipment.SiteID,
				Mode:           shipment.Mode,
				UnitCount:      len(shipment.Units),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, "shipment created",
		fmt.Sprintf("shipment %s dispatched with %d units", shipment.ShipmentNumber, len(shipment.Units)),
		shipment.SiteID.String())
	return shipment, nil
}

func (s *service) MarkSent(ctx context.Context, shipmentID uuid.UUID) (*models.Shipment, error) {
	if shipmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipment id required")
	}
	var shipment *models.Shipment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		shipment, err = repo.FindShipment(ctx, shipmentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipment")
		}
		if shipment.Status != enums.ShipmentStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("shipment is %s, only pending shipments can be marked sent", shipment.Status))
		}
		if err := repo.UpdateShipmentStatus(ctx, shipmentID, enums.ShipmentStatusSent, false); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update shipment status")
		}
		shipment.Status = enums.ShipmentStatusSent
		return nil
	})
	if err != nil {
		return nil, err
	}
	return shipment, nil
}

func (s *service) Acknowledge(ctx context.Context, input AcknowledgeInput) (*AcknowledgeResult, error) {
	if input.ShipmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipment id required")
	}
	if len(input.Reports) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one unit report required")
	}

	var result AcknowledgeResult
	var event payloads.ShipmentAcknowledgedEvent
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		shipment, err := repo.FindShipment(ctx, input.ShipmentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipment")
		}
		if shipment.Status == enums.ShipmentStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				"shipment has not been marked sent, nothing to acknowledge")
		}

		unitsByID := make(map[uuid.UUID]models.ShipmentUnit, len(shipment.Units))
		for _, unit := range shipment.Units {
			unitsByID[unit.ID] = unit
		}

		now := time.Now()
		var reportErrs error
		for _, report := range input.Reports {
			unit, ok := unitsByID[report.ShipmentUnitID]
			if !ok {
				reportErrs = multierr.Append(reportErrs, pkgerrors.New(pkgerrors.CodeNotFound,
					fmt.Sprintf("unit %s does not belong to shipment", report.ShipmentUnitID)))
				continue
			}
			if err := validateReport(unit, report); err != nil {
				reportErrs = multierr.Append(reportErrs, err)
			}
		}
		if reportErrs != nil {
			return reportErrs
		}

		for _, report := range input.Reports {
			unit := unitsByID[report.ShipmentUnitID]
			existing, err := repo.FindAcknowledgment(ctx, shipment.ID, unit.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load acknowledgment")
			}
			if existing.Status != enums.AckStatusNotAcknowledged {
				// Allocations draw received_qty down after acknowledgment, so a
				// rewrite here would resurrect consumed stock. A retry of the
				// original report is a no-op; anything else is a correction we
				// refuse.
				if matchesOriginalReport(existing, report) {
					continue
				}
				return pkgerrors.New(pkgerrors.CodeStateConflict,
					fmt.Sprintf("unit %s is already acknowledged", unit.ID))
			}
			ack := models.Acknowledgment{
				ShipmentID:     shipment.ID,
				ShipmentUnitID: unit.ID,
				Status:         deriveStatus(unit.SentQty, report),
				ReceivedQty:    report.ReceivedQty,
				MissingQty:     report.MissingQty,
				DamagedQty:     report.DamagedQty,
				AcknowledgedAt: &now,
			}
			if err := repo.ApplyAcknowledgment(ctx, &ack); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply acknowledgment")
			}
		}

		shipment, acks, err := s.recomputeStatus(ctx, repo, shipment.ID)
		if err != nil {
			return err
		}
		result.Shipment = shipment
		result.Acknowledgments = acks

		missing, damaged := 0, 0
		for _, ack := range acks {
			missing += ack.MissingQty
			damaged += ack.DamagedQty
		}
		event = payloads.ShipmentAcknowledgedEvent{
			ShipmentID:     shipment.ID,
			ShipmentNumber: shipment.ShipmentNumber,
			SiteID:         shipment.SiteID,
			Status:         shipment.Status,
			FullyReceived:  shipment.Status == enums.ShipmentStatusAcknowledged,
			MissingUnits:   missing,
			DamagedUnits:   damaged,
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventShipmentAcknowledged,
			AggregateType: enums.AggregateShipment,
			AggregateID:   shipment.ID,
			Actor:         actorRef(input.ActorID, shipment.SiteID),
			Version:       1,
			Data:          event,
		})
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, "shipment acknowledged",
		fmt.Sprintf("shipment %s acknowledged with status %s", event.ShipmentNumber, event.Status),
		result.Shipment.StudyID.String())
	return &result, nil
}

func (s *service) Get(ctx context.Context, shipmentID uuid.UUID) (*models.Shipment, []models.Acknowledgment, error) {
	if shipmentID == uuid.Nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "shipment id required")
	}
	shipment, err := s.repo.FindShipment(ctx, shipmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipment")
	}
	acks, err := s.repo.ListAcknowledgments(ctx, shipmentID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load acknowledgments")
	}
	return shipment, acks, nil
}

func (s *service) ListForSite(ctx context.Context, siteID uuid.UUID, limit, offset int) ([]models.Shipment, error) {
	if siteID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "site id required")
	}
	shipments, err := s.repo.ListShipmentsForSite(ctx, siteID, limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list shipments")
	}
	return shipments, nil
}

func (s *service) AvailableUnits(ctx context.Context, shipmentID uuid.UUID) ([]models.Acknowledgment, error) {
	if shipmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipment id required")
	}
	acks, err := s.repo.ListAcknowledgments(ctx, shipmentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load acknowledgments")
	}
	available := acks[:0]
	for _, ack := range acks {
		if ack.Status != enums.AckStatusNotAcknowledged && ack.ReceivedQty > 0 {
			available = append(available, ack)
		}
	}
	return available, nil
}

func (s *service) validateCreate(ctx context.Context, input CreateShipmentInput) error {
	if input.StudyID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "study id required")
	}
	if input.SiteID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "site id required")
	}
	if !input.Mode.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid shipment mode")
	}

	populated := 0
	if len(input.Drugs) > 0 {
		populated++
	}
	if len(input.Groups) > 0 {
		populated++
	}
	if len(input.KitRowIDs) > 0 {
		populated++
	}
	if populated == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipment requires at least one unit")
	}
	if populated > 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipment mode is ambiguous: only one unit kind allowed")
	}

	switch input.Mode {
	case enums.ShipmentModeDrug:
		if len(input.Drugs) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "drug mode requires drug units")
		}
	case enums.ShipmentModeDrugGroup:
		if len(input.Groups) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "drug group mode requires group units")
		}
	case enums.ShipmentModeRandomization:
		if len(input.KitRowIDs) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "randomization mode requires kit rows")
		}
	}

	runs, err := s.dir.SiteRunsStudy(ctx, input.SiteID, input.StudyID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate study site")
	}
	if !runs {
		return pkgerrors.New(pkgerrors.CodeValidation, "site is not associated with study")
	}

	for _, d := range input.Drugs {
		if d.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "drug quantity must be positive")
		}
		if _, err := s.drugs.FindDrug(ctx, d.DrugID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("drug %s not found", d.DrugID))
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load drug")
		}
	}
	for _, g := range input.Groups {
		if g.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "group quantity must be positive")
		}
		if _, err := s.drugs.FindDrugGroup(ctx, g.DrugGroupID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("drug group %s not found", g.DrugGroupID))
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load drug group")
		}
	}
	for _, id := range input.KitRowIDs {
		row, err := s.kits.FindRow(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("kit row %s not found", id))
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load kit row")
		}
		if row.StudyID != input.StudyID {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("kit row %s belongs to another study", id))
		}
	}
	return nil
}

// nextShipmentNumber formats SP<seq:2><DDMMYY> with the sequence scoped to
// the ship date, so numbers restart at 01 each calendar day.
func (s *service) nextShipmentNumber(ctx context.Context, tx *gorm.DB, shipDate time.Time) (string, error) {
	dateSuffix := shipDate.Format("020106")
	seq, err := s.seq.Next(ctx, tx, sequence.ShipmentScope(dateSuffix))
	if err != nil {
		return "", err
	}
	if seq > 99 {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict, "daily shipment number space exhausted")
	}
	return fmt.Sprintf("SP%02d%s", seq, dateSuffix), nil
}

func (s *service) recomputeStatus(ctx context.Context, repo Repository, shipmentID uuid.UUID) (*models.Shipment, []models.Acknowledgment, error) {
	acks, err := repo.ListAcknowledgments(ctx, shipmentID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load acknowledgments")
	}

	pending, err := repo.CountUnacknowledged(ctx, shipmentID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count unacknowledged units")
	}
	acknowledged := pending == 0
	allReceived := true
	for _, ack := range acks {
		if ack.Status != enums.AckStatusReceived {
			allReceived = false
		}
	}

	shipment, err := repo.FindShipment(ctx, shipmentID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload shipment")
	}

	status := shipment.Status
	if acknowledged {
		if allReceived {
			status = enums.ShipmentStatusAcknowledged
		} else {
			status = enums.ShipmentStatusPartial
		}
	}
	if err := repo.UpdateShipmentStatus(ctx, shipmentID, status, acknowledged); err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update shipment status")
	}
	shipment.Status = status
	shipment.IsAcknowledged = acknowledged
	return shipment, acks, nil
}

func (s *service) notify(ctx context.Context, subject, message, recipient string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, subject, message, recipient); err != nil && s.logg != nil {
		s.logg.Warn(ctx, fmt.Sprintf("notification failed: %v", err))
	}
}

func buildUnits(shipmentID uuid.UUID, input CreateShipmentInput) []models.ShipmentUnit {
	units := make([]models.ShipmentUnit, 0, len(input.Drugs)+len(input.Groups)+len(input.KitRowIDs))
	pos := 0
	for _, d := range input.Drugs {
		drugID := d.DrugID
		units = append(units, models.ShipmentUnit{
			ID:         uuid.New(),
			ShipmentID: shipmentID,
			UnitType:   enums.UnitTypeDrug,
			DrugID:     &drugID,
			SentQty:    d.Qty,
			Position:   pos,
		})
		pos++
	}
	for _, g := range input.Groups {
		groupID := g.DrugGroupID
		units = append(units, models.ShipmentUnit{
			ID:          uuid.New(),
			ShipmentID:  shipmentID,
			UnitType:    enums.UnitTypeDrugGroup,
			DrugGroupID: &groupID,
			SentQty:     g.Qty,
			Position:    pos,
		})
		pos++
	}
	for _, id := range input.KitRowIDs {
		rowID := id
		units = append(units, models.ShipmentUnit{
			ID:         uuid.New(),
			ShipmentID: shipmentID,
			UnitType:   enums.UnitTypeKitRow,
			KitRowID:   &rowID,
			SentQty:    1,
			Position:   pos,
		})
		pos++
	}
	return units
}

// matchesOriginalReport reconstructs the originally reported received count
// from sent minus losses, since received_qty itself mutates as enrollments
// consume from it.
func matchesOriginalReport(existing *models.Acknowledgment, report UnitReport) bool {
	originalReceived := existing.SentQty - existing.MissingQty - existing.DamagedQty
	return report.ReceivedQty == originalReceived &&
		report.MissingQty == existing.MissingQty &&
		report.DamagedQty == existing.DamagedQty
}

func validateReport(unit models.ShipmentUnit, report UnitReport) error {
	if report.ReceivedQty < 0 || report.MissingQty < 0 || report.DamagedQty < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("unit %s: quantities must not be negative", unit.ID))
	}
	sum := report.ReceivedQty + report.MissingQty + report.DamagedQty
	if sum != unit.SentQty {
		return pkgerrors.New(pkgerrors.CodeQuantityMismatch,
			fmt.Sprintf("unit %s: received+missing+damaged=%d does not match sent=%d", unit.ID, sum, unit.SentQty))
	}
	return nil
}

// deriveStatus applies the reconciliation precedence: fully received wins,
// then partial, then damaged when nothing usable arrived, then missing.
func deriveStatus(sentQty int, report UnitReport) enums.AcknowledgmentStatus {
	switch {
	case report.ReceivedQty == sentQty:
		return enums.AckStatusReceived
	case report.ReceivedQty > 0:
		return enums.AckStatusPartial
	case report.DamagedQty > 0:
		return enums.AckStatusDamaged
	default:
		return enums.AckStatusMissing
	}
}

func actorRef(actorID uuid.UUID, siteID uuid.UUID) *outbox.ActorRef {
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
