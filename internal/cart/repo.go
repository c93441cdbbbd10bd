package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/audiophile-backend/internal/pricing"
	dbpkg "github.com/angelmondragon/audiophile-backend/pkg/db"
	"github.com/angelmondragon/audiophile-backend/pkg/db/models"
)

// Repository persists carts and their lines.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to an open transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByOwner loads the owner's cart with its items, or nil when there is
// none. With lock set the cart row is held until the transaction ends.
func (r *Repository) FindByOwner(ctx context.Context, owner Owner, lock bool) (*models.Cart, error) {
	query := r.db.WithContext(ctx)
	if lock {
		query = dbpkg.ForUpdate(query)
	}
	var cart models.Cart
	err := scopeOwner(query, owner, "").Take(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	items, err := r.ListItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Items = items
	return &cart, nil
}

func (r *Repository) ListItems(ctx context.Context, cartID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	err := r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Order("created_at ASC").
		Order("product_id ASC").
		Find(&items).Error
	return items, err
}

// Create inserts an empty cart for the owner.
func (r *Repository) Create(ctx context.Context, owner Owner) (*models.Cart, error) {
	cart := &models.Cart{}
	if owner.IsUser() {
		id := *owner.UserID
		cart.UserID = &id
	} else {
		session := owner.SessionID
		cart.SessionID = &session
	}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(cart).Error; err != nil {
		return nil, err
	}
	return cart, nil
}

func (r *Repository) CreateItem(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *Repository) UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	return r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("id = ?", itemID).
		Update("quantity", quantity).Error
}

func (r *Repository) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", itemID).Delete(&models.CartItem{}).Error
}

// Recompute reloads the lines and stores fresh totals on the cart row.
func (r *Repository) Recompute(ctx context.Context, cart *models.Cart) error {
	items, err := r.ListItems(ctx, cart.ID)
	if err != nil {
		return err
	}
	lines := make([]pricing.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, pricing.Line{PriceCents: item.PriceCents, Quantity: item.Quantity})
	}
	prices := pricing.CalculateCartPrices(lines)
	if err := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cart.ID).
		Updates(map[string]any{
			"items_price_cents": prices.ItemsPrice,
			"total_price_cents": prices.TotalPrice,
		}).Error; err != nil {
		return err
	}
	cart.Items = items
	cart.ItemsPriceCents = prices.ItemsPrice
	cart.TotalPriceCents = prices.TotalPrice
	return nil
}

// Delete removes the cart and its lines.
func (r *Repository) Delete(ctx context.Context, cartID uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Where("id = ?", cartID).Delete(&models.Cart{}).Error
}

// DeleteByOwner removes the owner's cart if present and reports whether a
// cart existed.
func (r *Repository) DeleteByOwner(ctx context.Context, owner Owner) (bool, error) {
	cart, err := r.FindByOwner(ctx, owner, true)
	if err != nil || cart == nil {
		return false, err
	}
	return true, r.Delete(ctx, cart.ID)
}

// Reassign moves a session cart to a user.
func (r *Repository) Reassign(ctx context.Context, cartID, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		Updates(map[string]any{
			"user_id":    userID,
			"session_id": nil,
		}).Error
}

// CountQuantities sums line quantities for the owner without loading the cart.
func (r *Repository) CountQuantities(ctx context.Context, owner Owner) (int, error) {
	var total int64
	query := r.db.WithContext(ctx).
		Table("cart_items").
		Joins("JOIN carts ON carts.id = cart_items.cart_id")
	err := scopeOwner(query, owner, "carts.").
		Select("COALESCE(SUM(cart_items.quantity), 0)").
		Scan(&total).Error
	return int(total), err
}

func scopeOwner(query *gorm.DB, owner Owner, prefix string) *gorm.DB {
	if owner.IsUser() {
		return query.Where(prefix+"user_id = ?", *owner.UserID)
	}
	return query.Where(prefix+"session_id = ?", owner.SessionID)
}

// DeleteAnonymousBefore removes session carts untouched since cutoff and
// reports how many carts were deleted.
func (r *Repository) DeleteAnonymousBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	db := r.db
	if tx != nil {
		db = tx
	}
	stale := db.WithContext(ctx).
		Model(&models.Cart{}).
		Select("id").
		Where("session_id IS NOT NULL AND updated_at < ?", cutoff)
	if err := db.WithContext(ctx).Where("cart_id IN (?)", stale).Delete(&models.CartItem{}).Error; err != nil {
		return 0, err
	}
	res := db.WithContext(ctx).
		Where("session_id IS NOT NULL AND updated_at < ?", cutoff).
		Delete(&models.Cart{})
	return res.RowsAffected, res.Error
}
