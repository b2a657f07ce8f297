package shipments

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/medflowlabs/trialops-backend/internal/directory"
	"github.com/medflowlabs/trialops-backend/internal/inventory"
	"github.com/medflowlabs/trialops-backend/internal/kits"
	"github.com/medflowlabs/trialops-backend/internal/sequence"
	"github.com/medflowlabs/trialops-backend/pkg/db/models"
	"github.com/medflowlabs/trialops-backend/pkg/enums"
	pkgerrors "github.com/medflowlabs/trialops-backend/pkg/errors"
	"github.com/medflowlabs/trialops-backend/pkg/outbox"
	"github.com/medflowlabs/trialops-backend/pkg/types"
)

type stubOutbox struct {
	mu     sync.Mutex
	events []outbox.DomainEvent
}

func (s *stubOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
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
	db       *gorm.DB
	outbox   *stubOutbox
	notifier *stubNotifier
	studyID  uuid.UUID
	siteID   uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := "file:shipments_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.Study{}, &models.Site{}, &models.StudySite{},
		&models.Drug{}, &models.DrugGroup{},
		&models.Shipment{}, &models.ShipmentUnit{}, &models.Acknowledgment{},
		&models.KitRow{}, &models.SequenceCounter{}, &models.OutboxEvent{},
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
	svc, err := NewService(
		NewRepository(db),
		directory.NewRepository(db),
		inventory.NewRepository(db),
		kits.NewRepository(db),
		seq,
		gormTxRunner{db: db},
		ob,
		notifier,
		nil,
	)
	require.NoError(t, err)
	return &testEnv{svc: svc, db: db, outbox: ob, notifier: notifier, studyID: studyID, siteID: siteID}
}

func (e *testEnv) seedDrug(t *testing.T, qty int) models.Drug {
	t.Helper()
	drug := models.Drug{ID: uuid.New(), StudyID: e.studyID, Name: "Compound 9", TotalQty: qty, RemainingQty: qty}
	require.NoError(t, e.db.Create(&drug).Error)
	return drug
}

func (e *testEnv) seedKitRow(t *testing.T, position int64) models.KitRow {
	t.Helper()
	row := models.KitRow{
		ID:         uuid.New(),
		StudyID:    e.studyID,
		KitNumber:  "KIT-1",
		Attributes: types.FieldBag{}.Set(models.RandomizationNumberKey, types.StringValue("R001")),
		Position:   position,
	}
	require.NoError(t, e.db.Create(&row).Error)
	return row
}

func (e *testEnv) markSent(t *testing.T, shipmentID uuid.UUID) {
	t.Helper()
	_, err := e.svc.MarkSent(context.Background(), shipmentID)
	require.NoError(t, err)
}

func TestCreate_DrugMode(t *testing.T) {
	env := newTestEnv(t)
	drug := env.seedDrug(t, 20)
	shipDate := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	shipment, err := env.svc.Create(context.Background(), CreateShipmentInput{
		StudyID:  env.studyID,
		SiteID:   env.siteID,
		ShipDate: shipDate,
		Mode:     enums.ShipmentModeDrug,
		Drugs:    []DrugUnitInput{{DrugID: drug.ID, Qty: 20}},
		ActorID:  uuid.New(),
	})
	require.NoError(t, err)
	require.Equal(t, "SP01140326", shipment.ShipmentNumber)
	require.Equal(t, enums.ShipmentStatusPending, shipment.Status)
	require.Len(t, shipment.Units, 1)

	var acks []models.Acknowledgment
	require.NoError(t, env.db.Where("shipment_id = ?", shipment.ID).Find(&acks).Error)
	require.Len(t, acks, 1)
	require.Equal(t, enums.AckStatusNotAcknowledged, acks[0].Status)
	require.Equal(t, 20, acks[0].SentQty)

	require.Len(t, env.outbox.events, 1)
	require.Equal(t, enums.EventShipmentCreated, env.outbox.events[0].EventType)
	require.Equal(t, []string{"shipment created"}, env.notifier.subjects)

	// Numbers increment within the day.
	second, err := env.svc.Create(context.Background(), CreateShipmentInput{
		StudyID:  env.studyID,
		SiteID:   env.siteID,
		ShipDate: shipDate,
		Mode:     enums.ShipmentModeDrug,
		Drugs:    []DrugUnitInput{{DrugID: drug.ID, Qty: 5}},
	})
	require.NoError(t, err)
	require.Equal(t, "SP02140326", second.ShipmentNumber)
}

func TestCreate_RejectsAmbiguousMode(t *testing.T) {
	env := newTestEnv(t)
	drug := env.seedDrug(t, 10)
	row := env.seedKitRow(t, 1)

	_, err := env.svc.Create(context.Background(), CreateShipmentInput{
		StudyID:   env.studyID,
		SiteID:    env.siteID,
		Mode:      enums.ShipmentModeDrug,
		Drugs:     []DrugUnitInput{{DrugID: drug.ID, Qty: 1}},
		KitRowIDs: []uuid.UUID{row.ID},
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestCreate_RejectsUnknownDrug(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Create(context.Background(), CreateShipmentInput{
		StudyID: env.studyID,
		SiteID:  env.siteID,
		Mode:    enums.ShipmentModeDrug,
		Drugs:   []DrugUnitInput{{DrugID: uuid.New(), Qty: 1}},
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestMarkSent(t *testing.T) {
	env := newTestEnv(t)
	drug := env.seedDrug(t, 10)
	shipment, err := env.svc.Create(context.Background(), CreateShipmentInput{
		StudyID: env.studyID,
		SiteID:  env.siteID,
		Mode:    enums.ShipmentModeDrug,
		Drugs:   []DrugUnitInput{{DrugID: drug.ID, Qty: 10}},
	})
	require.NoError(t, err)

	sent, err := env.svc.MarkSent(context.Background(), shipment.ID)
	require.NoError(t, err)
	require.Equal(t, enums.ShipmentStatusSent, sent.Status)

	_, err = env.svc.MarkSent(context.Background(), shipment.ID)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestAcknowledge_FullReceipt(t *testing.T) {
	env := newTestEnv(t)
	drug := env.seedDrug(t, 10)
	shipment, err := env.svc.Create(context.Background(), CreateShipmentInput{
		StudyID: env.studyID,
		SiteID:  env.siteID,
		Mode:    enums.ShipmentModeDrug,
		Drugs:   []DrugUnitInput{{DrugID: drug.ID, Qty: 10}},
	})
	require.NoError(t, err)
	env.markSent(t, shipment.ID)

	result, err := env.svc.Acknowledge(context.Background(), AcknowledgeInput{
		ShipmentID: shipment.ID,
		Reports: []UnitReport{{
			ShipmentUnitID: shipment.Units[0].ID,
			ReceivedQty:    10,
		}},
	})
	require.NoError(t, err)
	require.True(t, result.Shipment.IsAcknowledged)
	require.Equal(t, enums.ShipmentStatusAcknowledged, result.Shipment.Status)
	require.Equal(t, enums.AckStatusReceived, result.Acknowledgments[0].Status)
}

func TestAcknowledge_QuantityMismatch(t *testing.T) {
	env := newTestEnv(t)
	drug := env.seedDrug(t, 10)
	shipment, err := env.svc.Create(context.Background(), CreateShipmentInput{
		StudyID: env.studyID,
		SiteID:  env.siteID,
		Mode:    enums.ShipmentModeDrug,
		Drugs:   []DrugUnitInput{{DrugID: drug.ID, Qty: 10}},
	})
	require.NoError(t, err)
	env.markSent(t, shipment.ID)

	// received=6 missing=1 damaged=2 sums to 9 against sent=10.
	_, err = env.svc.Acknowledge(context.Background(), AcknowledgeInput{
		ShipmentID: shipment.ID,
		Reports: []UnitReport{{
			ShipmentUnitID: shipment.Units[0].ID,
			ReceivedQty:    6,
			MissingQty:     1,
			DamagedQty:     2,
		}},
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeQuantityMismatch, typed.Code())

	// The failed report left the ledger untouched.
	var ack models.Acknowledgment
	require.NoError(t, env.db.Where("shipment_id = ?", shipment.ID).First(&ack).Error)
	require.Equal(t, enums.AckStatusNotAcknowledged, ack.Status)
}

func TestAcknowledge_StatusDerivation(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name     string
		received int
		missing  int
		damaged  int
		want     enums.AcknowledgmentStatus
	}{
		{"fully received", 10, 0, 0, enums.AckStatusReceived},
		{"partial", 4, 6, 0, enums.AckStatusPartial},
		{"damaged dominant", 0, 3, 7, enums.AckStatusDamaged},
		{"all missing", 0, 10, 0, enums.AckStatusMissing},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			drug := env.seedDrug(t, 10)
			shipment, err := env.svc.Create(context.Background(), CreateShipmentInput{
				StudyID: env.studyID,
				SiteID:  env.siteID,
				Mode:    enums.ShipmentModeDrug,
				Drugs:   []DrugUnitInput{{DrugID: drug.ID, Qty: 10}},
			})
			require.NoError(t, err)
			env.markSent(t, shipment.ID)

			result, err := env.svc.Acknowledge(context.Background(), AcknowledgeInput{
				ShipmentID: shipment.ID,
				Reports: []UnitReport{{
					ShipmentUnitID: shipment.Units[0].ID,
					ReceivedQty:    tc.received,
					MissingQty:     tc.missing,
					DamagedQty:     tc.damaged,
				}},
			})
			require.NoError(t, err)
			require.Equal(t, tc.want, result.Acknowledgments[0].Status)
		})
	}
}

func TestAcknowledge_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	drug := env.seedDrug(t, 10)
	shipment, err := env.svc.Create(context.Background(), CreateShipmentInput{
		StudyID: env.studyID,
		SiteID:  env.siteID,
		Mode:    enums.ShipmentModeDrug,
		Drugs:   []DrugUnitInput{{DrugID: drug.ID, Qty: 10}},
	})
	require.NoError(t, err)
	env.markSent(t, shipment.ID)

	report := UnitReport{ShipmentUnitID: shipment.Units[0].ID, ReceivedQty: 7, MissingQty: 3}
	first, err := env.svc.Acknowledge(context.Background(), AcknowledgeInput{ShipmentID: shipment.ID, Reports: []UnitReport{report}})
	require.NoError(t, err)
	second, err := env.svc.Acknowledge(context.Background(), AcknowledgeInput{ShipmentID: shipment.ID, Reports: []UnitReport{report}})
	require.NoError(t, err)

	require.Equal(t, first.Acknowledgments[0].Status, second.Acknowledgments[0].Status)
	require.Equal(t, first.Acknowledgments[0].ReceivedQty, second.Acknowledgments[0].ReceivedQty)
	require.Equal(t, first.Shipment.Status, second.Shipment.Status)
}

func TestAcknowledge_PartialThenComplete(t *testing.T) {
	env := newTestEnv(t)
	drugA := env.seedDrug(t, 10)
	drugB := env.seedDrug(t, 5)
	shipment, err := env.svc.Create(context.Background(), CreateShipmentInput{
		StudyID: env.studyID,
		SiteID:  env.siteID,
		Mode:    enums.ShipmentModeDrug,
		Drugs: []DrugUnitInput{
			{DrugID: drugA.ID, Qty: 10},
			{DrugID: drugB.ID, Qty: 5},
		},
	})
	require.NoError(t, err)
	env.markSent(t, shipment.ID)

	// Only the first unit is reported; the shipment stays unacknowledged.
	result, err := env.svc.Acknowledge(context.Background(), AcknowledgeInput{
		ShipmentID: shipment.ID,
		Reports:    []UnitReport{{ShipmentUnitID: shipment.Units[0].ID, ReceivedQty: 10}},
	})
	require.NoError(t, err)
	require.False(t, result.Shipment.IsAcknowledged)

	result, err = env.svc.Acknowledge(context.Background(), AcknowledgeInput{
		ShipmentID: shipment.ID,
		Reports:    []UnitReport{{ShipmentUnitID: shipment.Units[1].ID, ReceivedQty: 3, MissingQty: 2}},
	})
	require.NoError(t, err)
	require.True(t, result.Shipment.IsAcknowledged)
	require.Equal(t, enums.ShipmentStatusPartial, result.Shipment.Status)
}

func TestAcknowledge_RejectsPendingShipment(t *testing.T) {
	env := newTestEnv(t)
	drug := env.seedDrug(t, 10)
	shipment, err := env.svc.Create(context.Background(), CreateShipmentInput{
		StudyID: env.studyID,
		SiteID:  env.siteID,
		Mode:    enums.ShipmentModeDrug,
		Drugs:   []DrugUnitInput{{DrugID: drug.ID, Qty: 10}},
	})
	require.NoError(t, err)

	_, err = env.svc.Acknowledge(context.Background(), AcknowledgeInput{
		ShipmentID: shipment.ID,
		Reports:    []UnitReport{{ShipmentUnitID: shipment.Units[0].ID, ReceivedQty: 10}},
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestAcknowledge_RetryAfterConsumptionKeepsDrawnDownStock(t *testing.T) {
	env := newTestEnv(t)
	drug := env.seedDrug(t, 10)
	shipment, err := env.svc.Create(context.Background(), CreateShipmentInput{
		StudyID: env.studyID,
		SiteID:  env.siteID,
		Mode:    enums.ShipmentModeDrug,
		Drugs:   []DrugUnitInput{{DrugID: drug.ID, Qty: 10}},
	})
	require.NoError(t, err)
	env.markSent(t, shipment.ID)

	report := UnitReport{ShipmentUnitID: shipment.Units[0].ID, ReceivedQty: 10}
	_, err = env.svc.Acknowledge(context.Background(), AcknowledgeInput{ShipmentID: shipment.ID, Reports: []UnitReport{report}})
	require.NoError(t, err)

	// An enrollment draws the full acknowledged stock.
	var ack models.Acknowledgment
	require.NoError(t, env.db.Where("shipment_id = ?", shipment.ID).First(&ack).Error)
	affected, err := NewRepository(env.db).DecrementReceived(context.Background(), ack.ID, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, affected)

	// Retrying the original report must not resurrect the consumed stock.
	_, err = env.svc.Acknowledge(context.Background(), AcknowledgeInput{ShipmentID: shipment.ID, Reports: []UnitReport{report}})
	require.NoError(t, err)
	require.NoError(t, env.db.Where("id = ?", ack.ID).First(&ack).Error)
	require.Equal(t, 0, ack.ReceivedQty)

	// A second draw against the emptied unit fails the conditional guard.
	affected, err = NewRepository(env.db).DecrementReceived(context.Background(), ack.ID, 10)
	require.NoError(t, err)
	require.EqualValues(t, 0, affected)

	// A differing re-report is a correction we refuse outright.
	_, err = env.svc.Acknowledge(context.Background(), AcknowledgeInput{
		ShipmentID: shipment.ID,
		Reports:    []UnitReport{{ShipmentUnitID: shipment.Units[0].ID, ReceivedQty: 8, MissingQty: 2}},
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestAvailableUnits(t *testing.T) {
	env := newTestEnv(t)
	drugA := env.seedDrug(t, 10)
	drugB := env.seedDrug(t, 5)
	shipment, err := env.svc.Create(context.Background(), CreateShipmentInput{
		StudyID: env.studyID,
		SiteID:  env.siteID,
		Mode:    enums.ShipmentModeDrug,
		Drugs: []DrugUnitInput{
			{DrugID: drugA.ID, Qty: 10},
			{DrugID: drugB.ID, Qty: 5},
		},
	})
	require.NoError(t, err)
	env.markSent(t, shipment.ID)

	_, err = env.svc.Acknowledge(context.Background(), AcknowledgeInput{
		ShipmentID: shipment.ID,
		Reports: []UnitReport{
			{ShipmentUnitID: shipment.Units[0].ID, ReceivedQty: 10},
			{ShipmentUnitID: shipment.Units[1].ID, MissingQty: 5},
		},
	})
	require.NoError(t, err)

	available, err := env.svc.AvailableUnits(context.Background(), shipment.ID)
	require.NoError(t, err)
	require.Len(t, available, 1)
	require.Equal(t, shipment.Units[0].ID, available[0].ShipmentUnitID)
}
