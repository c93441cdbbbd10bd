package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/angelmondragon/audiophile-backend/pkg/db"
	"github.com/angelmondragon/audiophile-backend/pkg/db/models"
)

// lastErrorLimit bounds the provider error kept on a row.
const lastErrorLimit = 1024

var errNoTx = errors.New("transaction required")

// Repository stores order events between the transaction that queues them
// and the relay that publishes them.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Create(&event).Error
}

// Claim returns the oldest unpublished rows that still have attempts left.
// On postgres they stay locked with SKIP LOCKED until tx ends, so two relays
// never send the same row.
func (r *Repository) Claim(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errNoTx
	}
	q := tx.Where("published_at IS NULL")
	if maxAttempts > 0 {
		q = q.Where("attempt_count < ?", maxAttempts)
	}
	if tx.Dialector != nil && tx.Dialector.Name() == dbpkg.DriverPostgres {
		q = q.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate, Options: clause.LockingOptionsSkipLocked})
	}
	var rows []models.OutboxEvent
	err := q.Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Published stamps a row as delivered to the broker.
func (r *Repository) Published(tx *gorm.DB, id uuid.UUID) error {
	return r.settle(tx, id, map[string]any{"published_at": r.now().UTC()})
}

// Failed records a send error and spends one attempt.
func (r *Repository) Failed(tx *gorm.DB, id uuid.UUID, cause error) error {
	return r.settle(tx, id, map[string]any{
		"last_error":    lastError(cause),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

// Park spends every remaining attempt so Claim never returns the row again.
func (r *Repository) Park(tx *gorm.DB, id uuid.UUID, cause error, attempts int) error {
	return r.settle(tx, id, map[string]any{
		"last_error":    lastError(cause),
		"attempt_count": attempts,
	})
}

func (r *Repository) settle(tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	if tx == nil {
		return errNoTx
	}
	res := tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("outbox row %s not found", id)
	}
	return nil
}

func lastError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > lastErrorLimit {
		return msg[:lastErrorLimit]
	}
	return msg
}

// Prune deletes rows queued before cutoff that were published or parked
// with at least parkedAt attempts. Rows still waiting are kept.
func (r *Repository) Prune(ctx context.Context, tx *gorm.DB, cutoff time.Time, parkedAt int) (int64, error) {
	db := r.db
	if tx != nil {
		db = tx
	}
	res := db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Where("published_at IS NOT NULL OR attempt_count >= ?", parkedAt).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}
