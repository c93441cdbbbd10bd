package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/audiophile-backend/internal/cart"
	"github.com/angelmondragon/audiophile-backend/internal/orders"
	"github.com/angelmondragon/audiophile-backend/internal/pricing"
	"github.com/angelmondragon/audiophile-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/audiophile-backend/pkg/errors"
	"github.com/angelmondragon/audiophile-backend/pkg/logger"
	"github.com/angelmondragon/audiophile-backend/pkg/metrics"
	"github.com/angelmondragon/audiophile-backend/pkg/types"
)

type profileLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Service sequences the checkout pages. It owns no state; carts, orders and
// payments do the work.
type Service interface {
	Entry(ctx context.Context, identity *Identity) (*EntryResult, error)
	Submit(ctx context.Context, identity *Identity, input SubmitInput) (*SubmitResult, error)
	Confirmation(ctx context.Context, identity *Identity, orderID uuid.UUID) (*orders.Order, error)
	Finish(ctx context.Context, owner cart.Owner) error
}

type ServiceParams struct {
	Carts    cart.Service
	Orders   orders.Service
	Profiles profileLoader
	Pricing  *pricing.Engine
	Metrics  *metrics.PaymentMetrics
	Logger   *logger.Logger
}

type service struct {
	carts    cart.Service
	orders   orders.Service
	profiles profileLoader
	pricing  *pricing.Engine
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	engine := params.Pricing
	if engine == nil {
		engine = pricing.DefaultEngine()
	}
	return &service{
		carts:    params.Carts,
		orders:   params.Orders,
		profiles: params.Profiles,
		pricing:  engine,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// Entry guards the checkout page: anonymous callers are sent to sign in and
// callers with an empty cart are sent home.
func (s *service) Entry(ctx context.Context, identity *Identity) (*EntryResult, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	current, err := s.carts.GetCart(ctx, cart.UserOwner(identity.UserID))
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, err
	}
	if current == nil || len(current.Items) == 0 {
		return nil, emptyCart()
	}

	prices := s.pricing.CalculateOrderPrices(current.ItemsPrice.Cents())
	result := &EntryResult{
		Cart: current,
		Summary: Summary{
			ItemsPrice:    types.Money(prices.ItemsPrice),
			ShippingPrice: types.Money(prices.ShippingPrice),
			TaxPrice:      types.Money(prices.TaxPrice),
			TotalPrice:    types.Money(prices.TotalPrice),
		},
	}
	s.applyDefaults(ctx, identity.UserID, result)
	return result, nil
}

// Submit creates the order and tells the client which payment step follows.
func (s *service) Submit(ctx context.Context, identity *Identity, input SubmitInput) (*SubmitResult, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	orderID, err := s.orders.CreateOrder(ctx, input.toOrderInput(identity.UserID))
	if err != nil {
		return nil, err
	}
	s.metrics.IncOrderCreated(input.PaymentMethod.String())
	return &SubmitResult{
		OrderID:       orderID,
		PaymentMethod: input.PaymentMethod,
		NextStep:      nextStepFor(input.PaymentMethod),
	}, nil
}

func (s *service) Confirmation(ctx context.Context, identity *Identity, orderID uuid.UUID) (*orders.Order, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	return s.orders.GetOrderForUser(ctx, orderID, identity.UserID)
}

// Finish is the "back to home" action. Settlement already cleared the cart
// server-side; this drops anything left over and is a no-op otherwise.
func (s *service) Finish(ctx context.Context, owner cart.Owner) error {
	if !owner.Valid() {
		return nil
	}
	return s.carts.Clear(ctx, owner)
}

// applyDefaults prefills the form from the profile. A missing profile only
// means no defaults.
func (s *service) applyDefaults(ctx context.Context, userID uuid.UUID, result *EntryResult) {
	if s.profiles == nil {
		return
	}
	user, err := s.profiles.FindByID(ctx, userID)
	if err != nil {
		if s.logg != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			s.logg.Warn(s.logg.WithUserID(ctx, userID.String()), fmt.Sprintf("load checkout defaults: %v", err))
		}
		return
	}
	result.ShippingAddress = user.Address
	result.PaymentMethod = user.PaymentMethod
}

func requireIdentity(identity *Identity) error {
	if identity.authenticated() {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to continue to checkout").
		WithDetails(map[string]string{"redirect_to": signInRedirect})
}

func emptyCart() error {
	return pkgerrors.New(pkgerrors.CodeEmptyCart, "your cart is empty").
		WithDetails(map[string]string{"redirect_to": homeRedirect})
}
