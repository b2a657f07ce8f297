package shipments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medflowlabs/trialops-backend/pkg/db/models"
	"github.com/medflowlabs/trialops-backend/pkg/enums"
)

// Repository exposes shipment and acknowledgment persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateShipment(ctx context.Context, shipment *models.Shipment) error
	CreateAcknowledgments(ctx context.Context, acks []models.Acknowledgment) error
	FindShipment(ctx context.Context, id uuid.UUID) (*models.Shipment, error)
	ListShipmentsForSite(ctx context.Context, siteID uuid.UUID, limit, offset int) ([]models.Shipment, error)
	FindAcknowledgment(ctx context.Context, shipmentID, unitID uuid.UUID) (*models.Acknowledgment, error)
	ListAcknowledgments(ctx context.Context, shipmentID uuid.UUID) ([]models.Acknowledgment, error)
	ApplyAcknowledgment(ctx context.Context, ack *models.Acknowledgment) error
	DecrementReceived(ctx context.Context, ackID uuid.UUID, amount int) (int64, error)
	CountUnacknowledged(ctx context.Context, shipmentID uuid.UUID) (int64, error)
	UpdateShipmentStatus(ctx context.Context, shipmentID uuid.UUID, status enums.ShipmentStatus, acknowledged bool) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a shipments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateShipment(ctx context.Context, shipment *models.Shipment) error {
	return r.db.WithContext(ctx).Create(shipment).Error
}

func (r *repository) CreateAcknowledgments(ctx context.Context, acks []models.Acknowledgment) error {
	if len(acks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&acks).Error
}

func (r *repository) FindShipment(ctx context.Context, id uuid.UUID) (*models.Shipment, error) {
	var shipment models.Shipment
	err := r.db.WithContext(ctx).
		Preload("Units", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", id).
		First(&shipment).Error
	if err != nil {
		return nil, err
	}
	return &shipment, nil
}

func (r *repository) ListShipmentsForSite(ctx context.Context, siteID uuid.UUID, limit, offset int) ([]models.Shipment, error) {
	var shipments []models.Shipment
	q := r.db.WithContext(ctx).
		Preload("Units", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("site_id = ?", siteID).
		Order("ship_date DESC, created_at DESC").
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&shipments).Error; err != nil {
		return nil, err
	}
	return shipments, nil
}

func (r *repository) FindAcknowledgment(ctx context.Context, shipmentID, unitID uuid.UUID) (*models.Acknowledgment, error) {
	var ack models.Acknowledgment
	err := r.db.WithContext(ctx).
		Where("shipment_id = ? AND shipment_unit_id = ?", shipmentID, unitID).
		First(&ack).Error
	if err != nil {
		return nil, err
	}
	return &ack, nil
}

func (r *repository) ListAcknowledgments(ctx context.Context, shipmentID uuid.UUID) ([]models.Acknowledgment, error) {
	var acks []models.Acknowledgment
	err := r.db.WithContext(ctx).
		Where("shipment_id = ?", shipmentID).
		Order("created_at ASC").
		Find(&acks).Error
	if err != nil {
		return nil, err
	}
	return acks, nil
}

// ApplyAcknowledgment rewrites the reconciliation fields of an existing row.
// Rows are created with the shipment, so this is an update by key, never an
// insert.
func (r *repository) ApplyAcknowledgment(ctx context.Context, ack *models.Acknowledgment) error {
	return r.db.WithContext(ctx).
		Model(&models.Acknowledgment{}).
		Where("shipment_id = ? AND shipment_unit_id = ?", ack.ShipmentID, ack.ShipmentUnitID).
		Updates(map[string]any{
			"status":          ack.Status,
			"received_qty":    ack.ReceivedQty,
			"missing_qty":     ack.MissingQty,
			"damaged_qty":     ack.DamagedQty,
			"acknowledged_at": ack.AcknowledgedAt,
		}).Error
}

// DecrementReceived takes amount out of the acknowledged usable stock only
// when enough is left. Zero RowsAffected means the guard failed.
func (r *repository) DecrementReceived(ctx context.Context, ackID uuid.UUID, amount int) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Acknowledgment{}).
		Where("id = ? AND received_qty >= ?", ackID, amount).
		Update("received_qty", gorm.Expr("received_qty - ?", amount))
	return res.RowsAffected, res.Error
}

func (r *repository) CountUnacknowledged(ctx context.Context, shipmentID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Acknowledgment{}).
		Where("shipment_id = ? AND status = ?", shipmentID, enums.AckStatusNotAcknowledged).
		Count(&count).Error
	return count, err
}

func (r *repository) UpdateShipmentStatus(ctx context.Context, shipmentID uuid.UUID, status enums.ShipmentStatus, acknowledged bool) error {
	return r.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("id = ?", shipmentID).
		Updates(map[string]any{
			"status":          status,
			"is_acknowledged": acknowledged,
		}).Error
}
