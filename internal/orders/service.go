package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/audiophile-backend/internal/cart"
	"github.com/angelmondragon/audiophile-backend/internal/pricing"
	"github.com/angelmondragon/audiophile-backend/internal/users"
	"github.com/angelmondragon/audiophile-backend/pkg/db/models"
	"github.com/angelmondragon/audiophile-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/audiophile-backend/pkg/errors"
	"github.com/angelmondragon/audiophile-backend/pkg/logger"
	"github.com/angelmondragon/audiophile-backend/pkg/outbox"
	"github.com/angelmondragon/audiophile-backend/pkg/types"
)

// Service is the order ledger. MarkPaid and MarkPaidTx are the only way an
// order becomes paid.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (uuid.UUID, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*Order, error)
	GetOrderForUser(ctx context.Context, orderID, userID uuid.UUID) (*Order, error)
	ListOrdersForUser(ctx context.Context, userID uuid.UUID, page HistoryPage) (*OrderList, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID, result types.PaymentResult) (*Order, error)
	MarkPaidTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, result types.PaymentResult) (*models.Order, error)
	SetPendingPayment(ctx context.Context, orderID uuid.UUID, result types.PaymentResult) error
	FindStripeOrderByIntent(ctx context.Context, intentID string, userID *uuid.UUID) (*Order, error)
	MarkDelivered(ctx context.Context, orderID uuid.UUID) (*Order, error)
}

type ServiceParams struct {
	Repo    Repository
	Carts   *cart.Repository
	Users   *users.Repository
	Tx      txRunner
	Outbox  outboxPublisher
	Pricing *pricing.Engine
	Counts  countInvalidator
	Logger  *logger.Logger
	Now     func() time.Time
}

type service struct {
	repo    Repository
	carts   *cart.Repository
	users   *users.Repository
	tx      txRunner
	outbox  outboxPublisher
	pricing *pricing.Engine
	counts  countInvalidator
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	engine := params.Pricing
	if engine == nil {
		engine = pricing.DefaultEngine()
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:    params.Repo,
		carts:   params.Carts,
		users:   params.Users,
		tx:      params.Tx,
		outbox:  params.Outbox,
		pricing: engine,
		counts:  params.Counts,
		logg:    params.Logger,
		now:     now,
	}, nil
}

// CreateOrder snapshots the user's cart into an order in one transaction.
// Direct methods are settled in the same transaction and the cart is
// cleared with them; provider methods leave the cart alone until payment is
// confirmed.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (uuid.UUID, error) {
	input, err := normalizeCreateInput(input)
	if err != nil {
		return uuid.Nil, err
	}
	owner := cart.UserOwner(input.UserID)

	var (
		orderID     uuid.UUID
		cartCleared bool
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)
		current, err := carts.FindByOwner(ctx, owner, true)
		if err != nil {
			return err
		}
		if current == nil || len(current.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeEmptyCart, "your cart is empty").
				WithDetails(map[string]string{"redirect_to": "/"})
		}

		prices := s.pricing.CalculateOrderPrices(current.ItemsPriceCents)
		order := &models.Order{
			UserID:             input.UserID,
			ShippingAddress:    input.ShippingAddress,
			PaymentMethod:      input.PaymentMethod,
			ItemsPriceCents:    prices.ItemsPrice,
			ShippingPriceCents: prices.ShippingPrice,
			TaxPriceCents:      prices.TaxPrice,
			TotalPriceCents:    prices.TotalPrice,
			PaymentState:       enums.PaymentStateCreated,
			Items:              snapshotItems(current.Items),
		}
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.OrderCreatedEvent{
			OrderID:         order.ID,
			UserID:          input.UserID,
			PaymentMethod:   order.PaymentMethod.String(),
			TotalPriceCents: order.TotalPriceCents,
			ItemCount:       len(order.Items),
		}); err != nil {
			return err
		}

		if !input.PaymentMethod.RequiresProviderConfirmation() {
			if _, err := s.MarkPaidTx(ctx, tx, order.ID, s.directReceipt(order, input)); err != nil {
				return err
			}
			if err := carts.Delete(ctx, current.ID); err != nil {
				return err
			}
			cartCleared = true
		}

		if input.SaveAddress {
			if err := s.users.WithTx(tx).SaveCheckoutDefaults(ctx, input.UserID, input.ShippingAddress, input.PaymentMethod); err != nil {
				return err
			}
		}

		orderID = order.ID
		return nil
	})
	if err != nil {
		return uuid.Nil, passThrough(err, "create order")
	}

	if cartCleared && s.counts != nil {
		s.counts.InvalidateCount(ctx, owner)
	}
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, orderID.String())
		logCtx = s.logg.WithField(logCtx, "payment_method", input.PaymentMethod.String())
		s.logg.Info(logCtx, "order created")
	}
	return orderID, nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	return FromModel(order), nil
}

// GetOrderForUser hides orders owned by someone else behind NotFound.
func (s *service) GetOrderForUser(ctx context.Context, orderID, userID uuid.UUID) (*Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return FromModel(order), nil
}

func (s *service) ListOrdersForUser(ctx context.Context, userID uuid.UUID, page HistoryPage) (*OrderList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	before, err := decodeHistoryCursor(userID, page.Cursor)
	if err != nil {
		return nil, err
	}
	size := page.size()
	// One extra row tells us whether another page exists.
	rows, err := s.repo.ListHistory(ctx, userID, size+1, before)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}

	list := &OrderList{Orders: make([]Order, 0, size)}
	more := len(rows) > size
	if more {
		rows = rows[:size]
	}
	for i := range rows {
		list.Orders = append(list.Orders, *FromModel(&rows[i]))
	}
	if more {
		list.NextCursor = encodeHistoryCursor(userID, list.Orders[size-1])
	}
	return list, nil
}

func (s *service) MarkPaid(ctx context.Context, orderID uuid.UUID, result types.PaymentResult) (*Order, error) {
	var paid *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		paid, err = s.MarkPaidTx(ctx, tx, orderID, result)
		return err
	})
	if err != nil {
		return nil, passThrough(err, "mark order paid")
	}
	return FromModel(paid), nil
}

// MarkPaidTx settles the order on tx. The update only matches an unpaid row,
// so of two concurrent callers exactly one wins and the other gets
// ALREADY_PAID.
func (s *service) MarkPaidTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, result types.PaymentResult) (*models.Order, error) {
	repo := s.repo.WithTx(tx)
	paidAt := s.now()
	if result.Timestamp == "" {
		result.Timestamp = paidAt.Format(time.RFC3339)
	}

	updated, err := repo.MarkPaid(ctx, orderID, result, paidAt)
	if err != nil {
		return nil, err
	}
	order, err := s.load(ctx, repo, orderID)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyPaid, "order is already paid")
	}

	if err := s.outbox.Emit(ctx, tx, outbox.OrderPaidEvent{
		OrderID:         order.ID,
		UserID:          order.UserID,
		PaymentMethod:   order.PaymentMethod.String(),
		Provider:        order.PaymentMethod.Provider().String(),
		TransactionID:   result.ID,
		TotalPriceCents: order.TotalPriceCents,
		PaidAt:          paidAt,
	}); err != nil {
		return nil, err
	}
	return order, nil
}

// SetPendingPayment stores a provider attempt. Retrying creation overwrites
// the previous attempt since nothing was captured yet.
func (s *service) SetPendingPayment(ctx context.Context, orderID uuid.UUID, result types.PaymentResult) error {
	updated, err := s.repo.SetPendingResult(ctx, orderID, result)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store pending payment")
	}
	if updated {
		return nil
	}
	if _, err := s.load(ctx, s.repo, orderID); err != nil {
		return err
	}
	return pkgerrors.New(pkgerrors.CodeAlreadyPaid, "order is already paid")
}

// FindStripeOrderByIntent resolves an order from a stored PaymentIntent id
// for redirect flows that lost the order id. It scans the newest Stripe
// orders of the user, or of everyone when userID is nil.
func (s *service) FindStripeOrderByIntent(ctx context.Context, intentID string, userID *uuid.UUID) (*Order, error) {
	if intentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	rows, err := s.repo.ListWithPaymentResult(ctx, enums.PaymentMethodStripe, userID, stripeScanLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "scan stripe orders")
	}
	for _, row := range rows {
		if row.PaymentResult != nil && row.PaymentResult.ID == intentID {
			return s.GetOrder(ctx, row.ID)
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found for payment intent")
}

func (s *service) MarkDelivered(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	var delivered *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		at := s.now()
		updated, err := repo.MarkDelivered(ctx, orderID, at)
		if err != nil {
			return err
		}
		order, err := s.load(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if !updated {
			if !order.IsPaid {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not paid").
					WithDetails(map[string]string{"paymentState": order.PaymentState.String()})
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is already delivered")
		}
		delivered = order
		return s.outbox.Emit(ctx, tx, outbox.OrderDeliveredEvent{
			OrderID:     order.ID,
			UserID:      order.UserID,
			DeliveredAt: at,
		})
	})
	if err != nil {
		return nil, passThrough(err, "mark order delivered")
	}
	return FromModel(delivered), nil
}

func (s *service) load(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

// directReceipt is the local receipt for methods settled without a provider.
// The e-Money PIN is checked but never stored.
func (s *service) directReceipt(order *models.Order, input CreateOrderInput) types.PaymentResult {
	result := types.PaymentResult{
		ID:           fmt.Sprintf("direct_%s", order.ID.String()),
		Status:       types.PaymentStatusCompleted,
		EmailAddress: input.ShippingAddress.Email,
		PricePaid:    types.Money(order.TotalPriceCents).String(),
		Extra: map[string]any{
			"provider": enums.PaymentProviderDirect.String(),
			"method":   input.PaymentMethod.String(),
		},
	}
	if input.PaymentMethod == enums.PaymentMethodEMoney {
		result.Extra["eMoneyNumber"] = maskEMoneyNumber(input.EMoneyNumber)
	}
	return result
}

// passThrough keeps typed errors and wraps anything else as internal.
func passThrough(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, msg)
}
