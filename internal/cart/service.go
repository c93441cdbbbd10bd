package cart

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/audiophile-backend/pkg/db"
	"github.com/angelmondragon/audiophile-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/audiophile-backend/pkg/errors"
	"github.com/angelmondragon/audiophile-backend/pkg/logger"
)

// Service exposes the cart store operations.
type Service interface {
	GetCart(ctx context.Context, owner Owner) (*Cart, error)
	AddItem(ctx context.Context, owner Owner, input AddItemInput) (*Cart, error)
	UpdateQuantity(ctx context.Context, owner Owner, productID int64, quantity int) (*Cart, error)
	Clear(ctx context.Context, owner Owner) error
	ItemCount(ctx context.Context, owner Owner) int
	AdoptSessionCart(ctx context.Context, sessionID string, userID uuid.UUID) (*Cart, error)
	InvalidateCount(ctx context.Context, owners ...Owner)
}

type ServiceParams struct {
	Repo     *Repository
	Tx       txRunner
	Products productLoader
	Counts   CountCache
	Logger   *logger.Logger
}

type service struct {
	repo     *Repository
	tx       txRunner
	products productLoader
	counts   CountCache
	logg     *logger.Logger
}

// NewService builds a cart service. The count cache is optional.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		products: params.Products,
		counts:   params.Counts,
		logg:     params.Logger,
	}, nil
}

func (s *service) GetCart(ctx context.Context, owner Owner) (*Cart, error) {
	if !owner.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart owner is required")
	}
	cart, err := s.repo.FindByOwner(ctx, owner, false)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	if cart == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	return FromModel(cart), nil
}

func (s *service) AddItem(ctx context.Context, owner Owner, input AddItemInput) (*Cart, error) {
	if !owner.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart owner is required")
	}
	if input.Quantity < 1 || input.Quantity > MaxQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between 1 and %d", MaxQuantity))
	}

	product, err := s.products.GetByID(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	line := models.CartItem{
		ProductID:  product.ID,
		Slug:       product.Slug,
		Name:       product.Name,
		PriceCents: product.PriceCents,
		Quantity:   input.Quantity,
		Image:      product.Image,
	}
	if err := validateLine(line); err != nil {
		return nil, err
	}

	var result *models.Cart
	err = s.withRetry(ctx, func(repo *Repository) error {
		cart, err := repo.FindByOwner(ctx, owner, true)
		if err != nil {
			return err
		}
		if cart == nil {
			if cart, err = repo.Create(ctx, owner); err != nil {
				return err
			}
		}
		if err := mergeLine(ctx, repo, cart, line); err != nil {
			return err
		}
		if err := repo.Recompute(ctx, cart); err != nil {
			return err
		}
		result = cart
		return nil
	})
	if err != nil {
		return nil, wrapInternal(err, "add item to cart")
	}

	s.InvalidateCount(ctx, owner)
	return FromModel(result), nil
}

func (s *service) UpdateQuantity(ctx context.Context, owner Owner, productID int64, quantity int) (*Cart, error) {
	if !owner.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart owner is required")
	}
	if productID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id must be positive")
	}

	var result *models.Cart
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.FindByOwner(ctx, owner, true)
		if err != nil {
			return err
		}
		if cart == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		line := findLine(cart, productID)
		if line == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "item not in cart")
		}

		if quantity <= 0 {
			if err := repo.DeleteItem(ctx, line.ID); err != nil {
				return err
			}
			if len(cart.Items) == 1 {
				return repo.Delete(ctx, cart.ID)
			}
		} else if err := repo.UpdateItemQuantity(ctx, line.ID, clampQuantity(quantity)); err != nil {
			return err
		}

		if err := repo.Recompute(ctx, cart); err != nil {
			return err
		}
		result = cart
		return nil
	})
	if err != nil {
		return nil, wrapInternal(err, "update cart quantity")
	}

	s.InvalidateCount(ctx, owner)
	return FromModel(result), nil
}

func (s *service) Clear(ctx context.Context, owner Owner) error {
	if !owner.Valid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart owner is required")
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := s.repo.WithTx(tx).DeleteByOwner(ctx, owner)
		return err
	})
	if err != nil {
		return wrapInternal(err, "clear cart")
	}
	s.InvalidateCount(ctx, owner)
	return nil
}

// ItemCount never fails: the badge falls back to zero.
func (s *service) ItemCount(ctx context.Context, owner Owner) int {
	if !owner.Valid() {
		return 0
	}
	if s.counts != nil {
		if count, ok, err := s.counts.Get(ctx, owner); err == nil && ok {
			return count
		} else if err != nil {
			s.warn(ctx, "cart count cache read failed", err)
		}
	}
	count, err := s.repo.CountQuantities(ctx, owner)
	if err != nil {
		s.warn(ctx, "cart count query failed", err)
		return 0
	}
	if s.counts != nil {
		if err := s.counts.Set(ctx, owner, count); err != nil {
			s.warn(ctx, "cart count cache write failed", err)
		}
	}
	return count
}

// AdoptSessionCart runs at sign-in. A session cart becomes the user's cart
// when the user has none; otherwise its lines are merged into the user's
// cart and the session cart is dropped.
func (s *service) AdoptSessionCart(ctx context.Context, sessionID string, userID uuid.UUID) (*Cart, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, nil
	}
	sessionOwner := SessionOwner(sessionID)
	userOwner := UserOwner(userID)

	var result *models.Cart
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sessionCart, err := repo.FindByOwner(ctx, sessionOwner, true)
		if err != nil || sessionCart == nil {
			return err
		}
		userCart, err := repo.FindByOwner(ctx, userOwner, true)
		if err != nil {
			return err
		}
		if userCart == nil {
			if err := repo.Reassign(ctx, sessionCart.ID, userID); err != nil {
				return err
			}
			sessionCart.UserID = &userID
			sessionCart.SessionID = nil
			result = sessionCart
			return nil
		}
		for _, line := range sessionCart.Items {
			if err := mergeLine(ctx, repo, userCart, line); err != nil {
				return err
			}
		}
		if err := repo.Delete(ctx, sessionCart.ID); err != nil {
			return err
		}
		if err := repo.Recompute(ctx, userCart); err != nil {
			return err
		}
		result = userCart
		return nil
	})
	if err != nil {
		return nil, wrapInternal(err, "adopt session cart")
	}

	s.InvalidateCount(ctx, sessionOwner, userOwner)
	return FromModel(result), nil
}

func (s *service) InvalidateCount(ctx context.Context, owners ...Owner) {
	if s.counts == nil || len(owners) == 0 {
		return
	}
	if err := s.counts.Invalidate(ctx, owners...); err != nil {
		s.warn(ctx, "cart count cache invalidation failed", err)
	}
}

// withRetry runs fn in a transaction and retries once when a concurrent
// request created the same cart or line first.
func (s *service) withRetry(ctx context.Context, fn func(repo *Repository) error) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return fn(s.repo.WithTx(tx))
		})
		if err == nil || !dbpkg.IsUniqueViolation(err, "") {
			return err
		}
	}
	return err
}

func (s *service) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), msg)
}

// mergeLine adds line to cart, summing quantities for a product already
// present and clamping the result.
func mergeLine(ctx context.Context, repo *Repository, cart *models.Cart, line models.CartItem) error {
	if existing := findLine(cart, line.ProductID); existing != nil {
		existing.Quantity = clampQuantity(existing.Quantity + line.Quantity)
		return repo.UpdateItemQuantity(ctx, existing.ID, existing.Quantity)
	}
	item := models.CartItem{
		CartID:     cart.ID,
		ProductID:  line.ProductID,
		Slug:       line.Slug,
		Name:       line.Name,
		PriceCents: line.PriceCents,
		Quantity:   clampQuantity(line.Quantity),
		Image:      line.Image,
	}
	if err := repo.CreateItem(ctx, &item); err != nil {
		return err
	}
	cart.Items = append(cart.Items, item)
	return nil
}

func findLine(cart *models.Cart, productID int64) *models.CartItem {
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			return &cart.Items[i]
		}
	}
	return nil
}

func validateLine(line models.CartItem) error {
	details := map[string]string{}
	if line.ProductID <= 0 {
		details["productId"] = "must be positive"
	}
	if strings.TrimSpace(line.Slug) == "" {
		details["slug"] = "is required"
	}
	if strings.TrimSpace(line.Name) == "" {
		details["name"] = "is required"
	}
	if line.PriceCents <= 0 {
		details["price"] = "must be positive"
	}
	if line.Quantity < 1 || line.Quantity > MaxQuantity {
		details["quantity"] = fmt.Sprintf("must be between 1 and %d", MaxQuantity)
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid cart item").WithDetails(details)
	}
	return nil
}

func wrapInternal(err error, msg string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, msg)
}
