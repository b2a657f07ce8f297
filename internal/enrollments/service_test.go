package enrollments

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/medflowlabs/trialops-backend/internal/directory"
	"github.com/medflowlabs/trialops-backend/internal/inventory"
	"github.com/medflowlabs/trialops-backend/internal/kits"
	"github.com/medflowlabs/trialops-backend/internal/sequence"
	"github.com/medflowlabs/trialops-backend/internal/shipments"
	"github.com/medflowlabs/trialops-backend/pkg/db/models"
	"github.com/medflowlabs/trialops-backend/pkg/enums"
	pkgerrors "github.com/medflowlabs/trialops-backend/pkg/errors"
	"github.com/medflowlabs/trialops-backend/pkg/outbox"
	"github.com/medflowlabs/trialops-backend/pkg/types"
)

type stubOutbox struct {
	mu      sync.Mutex
	events  []outbox.DomainEvent
	failErr error
}

func (s *stubOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.events = append(s.events, event)
	return nil
}

type stubNotifier struct {
	mu       sync.Mutex
	subjects []string
}

func (s *stubNotifier) Notify(ctx context.Context, subject, message, recipient string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects = append(s.subjects, subject)
	return nil
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type testEnv struct {
	svc      Service
	shipSvc  shipments.Service
	db       *gorm.DB
	outbox   *stubOutbox
	notifier *stubNotifier
	studyID  uuid.UUID
	siteID   uuid.UUID
	actorID  uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := "file:enrollments_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.Study{}, &models.Site{}, &models.StudySite{},
		&models.Drug{}, &models.DrugGroup{},
		&models.Shipment{}, &models.ShipmentUnit{}, &models.Acknowledgment{},
		&models.KitRow{}, &models.EnrollmentRecord{},
		&models.SequenceCounter{}, &models.OutboxEvent{},
	))

	studyID := uuid.New()
	siteID := uuid.New()
	require.NoError(t, db.Create(&models.Study{ID: studyID, Code: "ST-1", Name: "Study One"}).Error)
	require.NoError(t, db.Create(&models.Site{ID: siteID, Code: "10", Name: "Site Ten"}).Error)
	require.NoError(t, db.Create(&models.StudySite{StudyID: studyID, SiteID: siteID}).Error)

	seq, err := sequence.NewGenerator(db)
	require.NoError(t, err)
	ob := &stubOutbox{}
	notifier := &stubNotifier{}
	runner := gormTxRunner{db: db}

	shipSvc, err := shipments.NewService(
		shipments.NewRepository(db),
		directory.NewRepository(db),
		inventory.NewRepository(db),
		kits.NewRepository(db),
		seq,
		runner,
		ob,
		notifier,
		nil,
	)
	require.NoError(t, err)

	kitSvc, err := kits.NewService(kits.NewRepository(db), runner)
	require.NoError(t, err)

	invSvc, err := inventory.NewService(inventory.NewRepository(db), runner)
	require.NoError(t, err)

	svc, err := NewService(
		NewRepository(db),
		shipments.NewRepository(db),
		kitSvc,
		kits.NewRepository(db),
		directory.NewRepository(db),
		seq,
		invSvc,
		runner,
		ob,
		notifier,
		nil,
	)
	require.NoError(t, err)

	return &testEnv{
		svc:      svc,
		shipSvc:  shipSvc,
		db:       db,
		outbox:   ob,
		notifier: notifier,
		studyID:  studyID,
		siteID:   siteID,
		actorID:  uuid.New(),
	}
}

func (e *testEnv) seedDrug(t *testing.T, qty int) models.Drug {
	t.Helper()
	drug := models.Drug{ID: uuid.New(), StudyID: e.studyID, Name: "Compound 9", TotalQty: qty, RemainingQty: qty}
	require.NoError(t, e.db.Create(&drug).Error)
	return drug
}

func (e *testEnv) seedGroup(t *testing.T, members ...models.Drug) models.DrugGroup {
	t.Helper()
	group := models.DrugGroup{ID: uuid.New(), StudyID: e.studyID, Name: "Arm A", Members: members}
	require.NoError(t, e.db.Create(&group).Error)
	return group
}

func (e *testEnv) seedKitRow(t *testing.T, position int64, number string) models.KitRow {
	t.Helper()
	row := models.KitRow{
		ID:         uuid.New(),
		StudyID:    e.studyID,
		KitNumber:  fmt.Sprintf("KIT-%d", position),
		Attributes: types.FieldBag{}.Set(models.RandomizationNumberKey, types.StringValue(number)),
		Position:   position,
	}
	require.NoError(t, e.db.Create(&row).Error)
	return row
}

// acknowledgedGroupShipment creates a drug-group shipment and reconciles it
// so that receivedQty units are usable at the site.
func (e *testEnv) acknowledgedGroupShipment(t *testing.T, group models.DrugGroup, sentQty, receivedQty int) *models.Shipment {
	t.Helper()
	shipment, err := e.shipSvc.Create(context.Background(), shipments.CreateShipmentInput{
		StudyID: e.studyID,
		SiteID:  e.siteID,
		Mode:    enums.ShipmentModeDrugGroup,
		Groups:  []shipments.GroupUnitInput{{DrugGroupID: group.ID, Qty: sentQty}},
		ActorID: e.actorID,
	})
	require.NoError(t, err)
	require.Len(t, shipment.Units, 1)

	_, err = e.shipSvc.MarkSent(context.Background(), shipment.ID)
	require.NoError(t, err)

	_, err = e.shipSvc.Acknowledge(context.Background(), shipments.AcknowledgeInput{
		ShipmentID: shipment.ID,
		Reports: []shipments.UnitReport{{
			ShipmentUnitID: shipment.Units[0].ID,
			ReceivedQty:    receivedQty,
			MissingQty:     sentQty - receivedQty,
		}},
	})
	require.NoError(t, err)
	return shipment
}

// acknowledgedDrugShipment creates a single-drug shipment and reconciles it
// in full, so sentQty units are usable at the site.
func (e *testEnv) acknowledgedDrugShipment(t *testing.T, drug models.Drug, sentQty int) *models.Shipment {
	t.Helper()
	shipment, err := e.shipSvc.Create(context.Background(), shipments.CreateShipmentInput{
		StudyID: e.studyID,
		SiteID:  e.siteID,
		Mode:    enums.ShipmentModeDrug,
		Drugs:   []shipments.DrugUnitInput{{DrugID: drug.ID, Qty: sentQty}},
		ActorID: e.actorID,
	})
	require.NoError(t, err)
	require.Len(t, shipment.Units, 1)

	_, err = e.shipSvc.MarkSent(context.Background(), shipment.ID)
	require.NoError(t, err)

	_, err = e.shipSvc.Acknowledge(context.Background(), shipments.AcknowledgeInput{
		ShipmentID: shipment.ID,
		Reports: []shipments.UnitReport{{
			ShipmentUnitID: shipment.Units[0].ID,
			ReceivedQty:    sentQty,
		}},
	})
	require.NoError(t, err)
	return shipment
}

func (e *testEnv) remainingQty(t *testing.T, drugID uuid.UUID) int {
	t.Helper()
	var drug models.Drug
	require.NoError(t, e.db.First(&drug, "id = ?", drugID).Error)
	return drug.RemainingQty
}

func (e *testEnv) ackQty(t *testing.T, shipmentID, unitID uuid.UUID) int {
	t.Helper()
	var ack models.Acknowledgment
	require.NoError(t, e.db.
		Where("shipment_id = ? AND shipment_unit_id = ?", shipmentID, unitID).
		First(&ack).Error)
	return ack.ReceivedQty
}

func TestSubmit_ScreeningNumbersSequence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i, want := range []string{"10-001", "10-002", "10-003"} {
		record, err := env.svc.Submit(ctx, SubmitInput{
			Stage:       enums.StageScreening,
			StudyID:     env.studyID,
			SiteID:      env.siteID,
			SubmittedBy: env.actorID,
			FormFields:  types.FieldBag{}.Set("initials", types.StringValue("AB")),
		})
		require.NoError(t, err)
		require.NotNil(t, record.ScreeningNumber)
		require.Equal(t, want, *record.ScreeningNumber)
		require.Equal(t, enums.StageScreening, record.Stage)
		require.Nil(t, record.RandomizationNumber)

		require.Len(t, env.outbox.events, i+1)
		require.Equal(t, enums.EventEnrollmentScreened, env.outbox.events[i].EventType)
	}
}

func TestSubmit_GroupConsumptionDrawsDownAcknowledgedStock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	drug := env.seedDrug(t, 20)
	group := env.seedGroup(t, drug)
	shipment := env.acknowledgedGroupShipment(t, group, 20, 15)

	qty := 1
	record, err := env.svc.Submit(ctx, SubmitInput{
		Stage:        enums.StageRandomization,
		StudyID:      env.studyID,
		SiteID:       env.siteID,
		ShipmentID:   &shipment.ID,
		UnitID:       &shipment.Units[0].ID,
		RequestedQty: &qty,
		SubmittedBy:  env.actorID,
	})
	require.NoError(t, err)
	require.NotNil(t, record.RandomizationNumber)
	require.Equal(t, "R001", *record.RandomizationNumber)
	require.NotNil(t, record.DrugGroupID)
	require.Equal(t, group.ID, *record.DrugGroupID)
	require.NotNil(t, record.ConsumedQty)
	require.Equal(t, 1, *record.ConsumedQty)

	require.Equal(t, 14, env.ackQty(t, shipment.ID, shipment.Units[0].ID))

	// Sequential fallback numbers keep counting per site.
	second, err := env.svc.Submit(ctx, SubmitInput{
		Stage:        enums.StageRandomization,
		StudyID:      env.studyID,
		SiteID:       env.siteID,
		ShipmentID:   &shipment.ID,
		UnitID:       &shipment.Units[0].ID,
		RequestedQty: &qty,
		SubmittedBy:  env.actorID,
	})
	require.NoError(t, err)
	require.Equal(t, "R002", *second.RandomizationNumber)
	require.Equal(t, 13, env.ackQty(t, shipment.ID, shipment.Units[0].ID))
}

func TestSubmit_RandomizationWithScreeningNumber(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	drug := env.seedDrug(t, 10)
	group := env.seedGroup(t, drug)
	shipment := env.acknowledgedGroupShipment(t, group, 10, 10)

	qty := 2
	record, err := env.svc.Submit(ctx, SubmitInput{
		Stage:               enums.StageRandomization,
		StudyID:             env.studyID,
		SiteID:              env.siteID,
		ShipmentID:          &shipment.ID,
		UnitID:              &shipment.Units[0].ID,
		RequestedQty:        &qty,
		SubmittedBy:         env.actorID,
		WithScreeningNumber: true,
	})
	require.NoError(t, err)
	require.NotNil(t, record.ScreeningNumber)
	require.Equal(t, "10-001", *record.ScreeningNumber)
	require.NotNil(t, record.RandomizationNumber)
	require.Equal(t, 8, env.ackQty(t, shipment.ID, shipment.Units[0].ID))
}

func TestSubmit_InsufficientQuantityAbortsEverything(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	drug := env.seedDrug(t, 10)
	group := env.seedGroup(t, drug)
	shipment := env.acknowledgedGroupShipment(t, group, 10, 3)

	qty := 5
	_, err := env.svc.Submit(ctx, SubmitInput{
		Stage:        enums.StageRandomization,
		StudyID:      env.studyID,
		SiteID:       env.siteID,
		ShipmentID:   &shipment.ID,
		UnitID:       &shipment.Units[0].ID,
		RequestedQty: &qty,
		SubmittedBy:  env.actorID,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeInsufficientQuantity, typed.Code())

	// Nothing was written: no record, stock untouched.
	var count int64
	require.NoError(t, env.db.Model(&models.EnrollmentRecord{}).Count(&count).Error)
	require.Zero(t, count)
	require.Equal(t, 3, env.ackQty(t, shipment.ID, shipment.Units[0].ID))
}

func TestSubmit_UnacknowledgedUnitRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	drug := env.seedDrug(t, 10)
	shipment, err := env.shipSvc.Create(ctx, shipments.CreateShipmentInput{
		StudyID: env.studyID,
		SiteID:  env.siteID,
		Mode:    enums.ShipmentModeDrug,
		Drugs:   []shipments.DrugUnitInput{{DrugID: drug.ID, Qty: 10}},
	})
	require.NoError(t, err)

	qty := 1
	_, err = env.svc.Submit(ctx, SubmitInput{
		Stage:        enums.StageRandomization,
		StudyID:      env.studyID,
		SiteID:       env.siteID,
		ShipmentID:   &shipment.ID,
		UnitID:       &shipment.Units[0].ID,
		RequestedQty: &qty,
		SubmittedBy:  env.actorID,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestSubmit_KitRowsClaimedInOrderThenExhausted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rowA := env.seedKitRow(t, 1, "R100")
	rowB := env.seedKitRow(t, 2, "R200")

	shipment, err := env.shipSvc.Create(ctx, shipments.CreateShipmentInput{
		StudyID:   env.studyID,
		SiteID:    env.siteID,
		Mode:      enums.ShipmentModeRandomization,
		KitRowIDs: []uuid.UUID{rowA.ID, rowB.ID},
	})
	require.NoError(t, err)

	first, err := env.svc.Submit(ctx, SubmitInput{
		Stage:       enums.StageRandomization,
		StudyID:     env.studyID,
		SiteID:      env.siteID,
		ShipmentID:  &shipment.ID,
		SubmittedBy: env.actorID,
	})
	require.NoError(t, err)
	require.Equal(t, "R100", *first.RandomizationNumber)
	require.NotNil(t, first.KitRowID)
	require.Equal(t, rowA.ID, *first.KitRowID)

	// The claimed row is marked used and back-linked to its record.
	var claimed models.KitRow
	require.NoError(t, env.db.First(&claimed, "id = ?", rowA.ID).Error)
	require.True(t, claimed.IsUsed)
	require.NotNil(t, claimed.EnrollmentRecordID)
	require.Equal(t, first.ID, *claimed.EnrollmentRecordID)

	second, err := env.svc.Submit(ctx, SubmitInput{
		Stage:       enums.StageRandomization,
		StudyID:     env.studyID,
		SiteID:      env.siteID,
		ShipmentID:  &shipment.ID,
		SubmittedBy: env.actorID,
	})
	require.NoError(t, err)
	require.Equal(t, "R200", *second.RandomizationNumber)

	_, err = env.svc.Submit(ctx, SubmitInput{
		Stage:       enums.StageRandomization,
		StudyID:     env.studyID,
		SiteID:      env.siteID,
		ShipmentID:  &shipment.ID,
		SubmittedBy: env.actorID,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodePoolExhausted, typed.Code())
}

func TestSubmit_ConcurrentClaimersGetDistinctNumbers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rowA := env.seedKitRow(t, 1, "R100")
	rowB := env.seedKitRow(t, 2, "R200")

	shipment, err := env.shipSvc.Create(ctx, shipments.CreateShipmentInput{
		StudyID:   env.studyID,
		SiteID:    env.siteID,
		Mode:      enums.ShipmentModeRandomization,
		KitRowIDs: []uuid.UUID{rowA.ID, rowB.ID},
	})
	require.NoError(t, err)

	const submitters = 3
	var wg sync.WaitGroup
	numbers := make(chan string, submitters)
	failures := make(chan error, submitters)
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record, err := env.svc.Submit(ctx, SubmitInput{
				Stage:       enums.StageRandomization,
				StudyID:     env.studyID,
				SiteID:      env.siteID,
				ShipmentID:  &shipment.ID,
				SubmittedBy: env.actorID,
			})
			if err != nil {
				failures <- err
				return
			}
			numbers <- *record.RandomizationNumber
		}()
	}
	wg.Wait()
	close(numbers)
	close(failures)

	seen := map[string]bool{}
	for n := range numbers {
		seen[n] = true
	}
	require.Len(t, seen, 2)

	failed := 0
	for err := range failures {
		typed := pkgerrors.As(err)
		require.NotNil(t, typed)
		require.Equal(t, pkgerrors.CodePoolExhausted, typed.Code())
		failed++
	}
	require.Equal(t, 1, failed)
}

func TestSubmit_ForeignShipmentRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	otherSite := uuid.New()
	require.NoError(t, env.db.Create(&models.Site{ID: otherSite, Code: "20", Name: "Site Twenty"}).Error)
	require.NoError(t, env.db.Create(&models.StudySite{StudyID: env.studyID, SiteID: otherSite}).Error)

	drug := env.seedDrug(t, 10)
	shipment, err := env.shipSvc.Create(ctx, shipments.CreateShipmentInput{
		StudyID: env.studyID,
		SiteID:  otherSite,
		Mode:    enums.ShipmentModeDrug,
		Drugs:   []shipments.DrugUnitInput{{DrugID: drug.ID, Qty: 10}},
	})
	require.NoError(t, err)

	qty := 1
	_, err = env.svc.Submit(ctx, SubmitInput{
		Stage:        enums.StageRandomization,
		StudyID:      env.studyID,
		SiteID:       env.siteID,
		ShipmentID:   &shipment.ID,
		UnitID:       &shipment.Units[0].ID,
		RequestedQty: &qty,
		SubmittedBy:  env.actorID,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestSubmit_AcknowledgmentRetryCannotRefillConsumedStock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	drug := env.seedDrug(t, 10)
	group := env.seedGroup(t, drug)
	shipment := env.acknowledgedGroupShipment(t, group, 10, 10)

	qty := 10
	_, err := env.svc.Submit(ctx, SubmitInput{
		Stage:        enums.StageRandomization,
		StudyID:      env.studyID,
		SiteID:       env.siteID,
		ShipmentID:   &shipment.ID,
		UnitID:       &shipment.Units[0].ID,
		RequestedQty: &qty,
		SubmittedBy:  env.actorID,
	})
	require.NoError(t, err)
	require.Equal(t, 0, env.ackQty(t, shipment.ID, shipment.Units[0].ID))

	// A delivery retry replays the original report; the drained ledger must
	// stay drained.
	_, err = env.shipSvc.Acknowledge(ctx, shipments.AcknowledgeInput{
		ShipmentID: shipment.ID,
		Reports: []shipments.UnitReport{{
			ShipmentUnitID: shipment.Units[0].ID,
			ReceivedQty:    10,
		}},
	})
	require.NoError(t, err)
	require.Equal(t, 0, env.ackQty(t, shipment.ID, shipment.Units[0].ID))

	_, err = env.svc.Submit(ctx, SubmitInput{
		Stage:        enums.StageRandomization,
		StudyID:      env.studyID,
		SiteID:       env.siteID,
		ShipmentID:   &shipment.ID,
		UnitID:       &shipment.Units[0].ID,
		RequestedQty: &qty,
		SubmittedBy:  env.actorID,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeInsufficientQuantity, typed.Code())
}

func TestSubmit_DrugConsumptionAlsoDrawsDepotLedger(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	drug := env.seedDrug(t, 10)
	shipment := env.acknowledgedDrugShipment(t, drug, 5)

	qty := 2
	record, err := env.svc.Submit(ctx, SubmitInput{
		Stage:        enums.StageRandomization,
		StudyID:      env.studyID,
		SiteID:       env.siteID,
		ShipmentID:   &shipment.ID,
		UnitID:       &shipment.Units[0].ID,
		RequestedQty: &qty,
		SubmittedBy:  env.actorID,
	})
	require.NoError(t, err)
	require.NotNil(t, record.DrugID)
	require.Equal(t, drug.ID, *record.DrugID)

	// Site and depot ledgers move together.
	require.Equal(t, 3, env.ackQty(t, shipment.ID, shipment.Units[0].ID))
	require.Equal(t, 8, env.remainingQty(t, drug.ID))

	// An aborted submission leaves the depot ledger untouched too.
	env.outbox.failErr = fmt.Errorf("publisher unavailable")
	_, err = env.svc.Submit(ctx, SubmitInput{
		Stage:        enums.StageRandomization,
		StudyID:      env.studyID,
		SiteID:       env.siteID,
		ShipmentID:   &shipment.ID,
		UnitID:       &shipment.Units[0].ID,
		RequestedQty: &qty,
		SubmittedBy:  env.actorID,
	})
	require.Error(t, err)
	require.Equal(t, 3, env.ackQty(t, shipment.ID, shipment.Units[0].ID))
	require.Equal(t, 8, env.remainingQty(t, drug.ID))
}

func TestSubmit_InfrastructureFailureSurfacesAsAborted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	drug := env.seedDrug(t, 10)
	group := env.seedGroup(t, drug)
	shipment := env.acknowledgedGroupShipment(t, group, 10, 10)

	env.outbox.failErr = fmt.Errorf("publisher unavailable")

	qty := 1
	_, err := env.svc.Submit(ctx, SubmitInput{
		Stage:        enums.StageRandomization,
		StudyID:      env.studyID,
		SiteID:       env.siteID,
		ShipmentID:   &shipment.ID,
		UnitID:       &shipment.Units[0].ID,
		RequestedQty: &qty,
		SubmittedBy:  env.actorID,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeTransactionAborted, typed.Code())

	// The decrement rolled back with the rest of the transaction.
	require.Equal(t, 10, env.ackQty(t, shipment.ID, shipment.Units[0].ID))
	var count int64
	require.NoError(t, env.db.Model(&models.EnrollmentRecord{}).Count(&count).Error)
	require.Zero(t, count)
}
