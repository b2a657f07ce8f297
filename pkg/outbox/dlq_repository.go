package outbox

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medflowlabs/trialops-backend/pkg/db/models"
)

// Error messages from publish failures can carry whole stack traces; cap
// what lands in the dead-letter row.
const dlqErrorLimit = 1024

// DLQRepository persists events the drainer has given up on. Rows are
// written in the same transaction that marks the event terminal, so an
// event is never both dead-lettered and still pending.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ErrorMessage != nil && len(*entry.ErrorMessage) > dlqErrorLimit {
		clipped := (*entry.ErrorMessage)[:dlqErrorLimit]
		entry.ErrorMessage = &clipped
	}
	return tx.Create(&entry).Error
}
