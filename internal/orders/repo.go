package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/audiophile-backend/pkg/db/models"
	"github.com/angelmondragon/audiophile-backend/pkg/enums"
	"github.com/angelmondragon/audiophile-backend/pkg/types"
)

// stripeScanLimit bounds the intent lookup fallback.
const stripeScanLimit = 200

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListHistory(ctx context.Context, userID uuid.UUID, limit int, before *HistoryPosition) ([]models.Order, error)
	ListWithPaymentResult(ctx context.Context, method enums.PaymentMethod, userID *uuid.UUID, limit int) ([]models.Order, error)
	MarkPaid(ctx context.Context, id uuid.UUID, result types.PaymentResult, paidAt time.Time) (bool, error)
	SetPendingResult(ctx context.Context, id uuid.UUID, result types.PaymentResult) (bool, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order together with its items.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// FindByID returns nil, nil when the order does not exist.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("name ASC") }).
		Where("id = ?", id).
		Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListHistory returns a user's orders newest first, strictly after before
// when it is set.
func (r *repository) ListHistory(ctx context.Context, userID uuid.UUID, limit int, before *HistoryPosition) ([]models.Order, error) {
	query := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID)
	if before != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", before.PlacedAt, before.PlacedAt, before.OrderID)
	}
	var rows []models.Order
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ListWithPaymentResult returns the newest orders of a method that carry a
// stored payment result, optionally scoped to one user.
func (r *repository) ListWithPaymentResult(ctx context.Context, method enums.PaymentMethod, userID *uuid.UUID, limit int) ([]models.Order, error) {
	query := r.db.WithContext(ctx).
		Where("payment_method = ?", method).
		Where("payment_result IS NOT NULL")
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}
	var rows []models.Order
	err := query.
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MarkPaid flips is_paid in a single conditional update. It reports false
// when no unpaid order with that id exists.
func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, result types.PaymentResult, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND is_paid = ?", id, false).
		Updates(map[string]any{
			"is_paid":        true,
			"paid_at":        paidAt,
			"payment_result": result,
			"payment_state":  enums.PaymentStatePaid,
			"updated_at":     paidAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetPendingResult records a provider attempt on an unpaid order, replacing
// any earlier attempt.
func (r *repository) SetPendingResult(ctx context.Context, id uuid.UUID, result types.PaymentResult) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND is_paid = ?", id, false).
		Updates(map[string]any{
			"payment_result": result,
			"payment_state":  enums.PaymentStateAwaitingPayment,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND is_paid = ? AND is_delivered = ?", id, true, false).
		Updates(map[string]any{
			"is_delivered": true,
			"delivered_at": at,
			"updated_at":   at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
