package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/audiophile-backend/internal/cart"
	"github.com/angelmondragon/audiophile-backend/internal/orders"
	"github.com/angelmondragon/audiophile-backend/pkg/db/models"
	"github.com/angelmondragon/audiophile-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/audiophile-backend/pkg/errors"
	"github.com/angelmondragon/audiophile-backend/pkg/logger"
	"github.com/angelmondragon/audiophile-backend/pkg/metrics"
	"github.com/angelmondragon/audiophile-backend/pkg/types"
)

// Service drives provider-confirmed orders to paid. Every branch settles
// through the ledger's MarkPaidTx together with the cart clear.
type Service interface {
	CreatePayPalOrder(ctx context.Context, userID, orderID uuid.UUID) (string, error)
	ApprovePayPalOrder(ctx context.Context, userID, orderID uuid.UUID, providerOrderID string) (*orders.Order, error)
	CreatePaymentIntent(ctx context.Context, userID, orderID uuid.UUID) (*IntentResult, error)
	CompleteStripePayment(ctx context.Context, input CompleteStripeInput) (*orders.Order, error)
}

// IntentResult is handed to the client to confirm the PaymentIntent. The
// client secret must not be persisted or logged.
type IntentResult struct {
	ID           string      `json:"id"`
	ClientSecret string      `json:"clientSecret"`
	Amount       types.Money `json:"amount"`
}

// CompleteStripeInput identifies the order either by id or, for redirect
// flows that lost it, by the stored PaymentIntent id. A nil UserID means a
// trusted caller such as the webhook.
type CompleteStripeInput struct {
	UserID          *uuid.UUID `json:"-"`
	OrderID         *uuid.UUID `json:"orderId"`
	PaymentIntentID string     `json:"paymentIntentId" validate:"required"`
	Email           string     `json:"email" validate:"omitempty,email"`
}

type ServiceParams struct {
	Orders   ledger
	Carts    *cart.Repository
	Tx       txRunner
	PayPal   PayPalGateway
	Stripe   StripeGateway
	Counts   countInvalidator
	Metrics  *metrics.PaymentMetrics
	Logger   *logger.Logger
	Currency string
}

type service struct {
	orders   ledger
	carts    *cart.Repository
	tx       txRunner
	paypal   PayPalGateway
	stripe   StripeGateway
	counts   countInvalidator
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
	currency string
}

func NewService(params ServiceParams) (Service, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("order ledger required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.PayPal == nil {
		return nil, fmt.Errorf("paypal gateway required")
	}
	if params.Stripe == nil {
		return nil, fmt.Errorf("stripe gateway required")
	}
	currency := strings.TrimSpace(params.Currency)
	if currency == "" {
		currency = "USD"
	}
	return &service{
		orders:   params.Orders,
		carts:    params.Carts,
		tx:       params.Tx,
		paypal:   params.PayPal,
		stripe:   params.Stripe,
		counts:   params.Counts,
		metrics:  params.Metrics,
		logg:     params.Logger,
		currency: currency,
	}, nil
}

// CreatePayPalOrder opens a remote order for the total and stores its id as
// the pending result. Calling it again replaces the pending attempt.
func (s *service) CreatePayPalOrder(ctx context.Context, userID, orderID uuid.UUID) (string, error) {
	order, err := s.payableOrder(ctx, userID, orderID, enums.PaymentMethodPayPal)
	if err != nil {
		return "", err
	}

	started := time.Now()
	providerOrderID, err := s.paypal.CreateOrder(ctx, order.TotalPrice.Cents(), s.currency, order.ID.String())
	s.metrics.ObserveCall(enums.PaymentProviderPayPal.String(), "create_order", time.Since(started), err)
	if err != nil {
		s.logProviderFailure(ctx, order.ID, enums.PaymentProviderPayPal, "paypal create order failed", err)
		return "", asProviderError(err, "paypal create order failed")
	}

	if err := s.orders.SetPendingPayment(ctx, order.ID, types.PaymentResult{ID: providerOrderID}); err != nil {
		return "", err
	}
	return providerOrderID, nil
}

// ApprovePayPalOrder captures the remote order and settles the local one.
// The capture must match the stored pending id, be COMPLETED and cover the
// order total; anything else leaves the order unpaid. ALREADY_PAID is
// returned as is.
func (s *service) ApprovePayPalOrder(ctx context.Context, userID, orderID uuid.UUID, providerOrderID string) (*orders.Order, error) {
	providerOrderID = strings.TrimSpace(providerOrderID)
	if providerOrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "paypal order id is required").
			WithDetails(map[string]string{"providerOrderId": "is required"})
	}
	order, err := s.payableOrder(ctx, userID, orderID, enums.PaymentMethodPayPal)
	if err != nil {
		return nil, err
	}
	if order.PaymentResult == nil || order.PaymentResult.ID != providerOrderID {
		s.reject(ctx, order.ID, enums.PaymentProviderPayPal, "paypal order id does not match pending payment")
		return nil, pkgerrors.New(pkgerrors.CodePaymentMismatch, "paypal order does not match this order")
	}

	started := time.Now()
	capture, err := s.paypal.CaptureOrder(ctx, providerOrderID)
	s.metrics.ObserveCall(enums.PaymentProviderPayPal.String(), "capture_order", time.Since(started), err)
	if err != nil {
		s.logProviderFailure(ctx, order.ID, enums.PaymentProviderPayPal, "paypal capture failed", err)
		return nil, asProviderError(err, "paypal capture failed")
	}

	if capture.OrderID != order.PaymentResult.ID {
		s.rejectCapture(ctx, order, capture, "captured paypal order does not match pending payment")
		return nil, pkgerrors.New(pkgerrors.CodePaymentMismatch, "paypal capture does not match this order")
	}
	if capture.Status != paypalStatusCompleted {
		s.rejectCapture(ctx, order, capture, "paypal capture not completed")
		return nil, pkgerrors.New(pkgerrors.CodePaymentIncomplete, "paypal payment was not completed").
			WithDetails(map[string]string{"status": capture.Status})
	}
	if capture.AmountCents != order.TotalPrice.Cents() {
		s.rejectCapture(ctx, order, capture, "paypal captured amount differs from order total")
		return nil, pkgerrors.New(pkgerrors.CodePaymentMismatch, "paypal captured amount does not match order total")
	}

	result := types.PaymentResult{
		ID:           capture.OrderID,
		Status:       capture.Status,
		EmailAddress: capture.PayerEmail,
		PricePaid:    types.Money(capture.AmountCents).String(),
		Extra: map[string]any{
			"provider":  enums.PaymentProviderPayPal.String(),
			"captureId": capture.CaptureID,
		},
	}
	return s.settle(ctx, order.ID, result, enums.PaymentProviderPayPal)
}

// CreatePaymentIntent opens a PaymentIntent for the total and stores its id
// as the pending result.
func (s *service) CreatePaymentIntent(ctx context.Context, userID, orderID uuid.UUID) (*IntentResult, error) {
	order, err := s.payableOrder(ctx, userID, orderID, enums.PaymentMethodStripe)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	intent, err := s.stripe.CreatePaymentIntent(ctx, order.TotalPrice.Cents(), s.currency, order.ID.String())
	s.metrics.ObserveCall(enums.PaymentProviderStripe.String(), "create_payment_intent", time.Since(started), err)
	if err != nil {
		s.logProviderFailure(ctx, order.ID, enums.PaymentProviderStripe, "stripe create payment intent failed", err)
		return nil, asProviderError(err, "stripe create payment intent failed")
	}

	pending := types.PaymentResult{ID: intent.ID, Status: types.PaymentStatusPending}
	if err := s.orders.SetPendingPayment(ctx, order.ID, pending); err != nil {
		return nil, err
	}
	return &IntentResult{ID: intent.ID, ClientSecret: intent.ClientSecret, Amount: types.Money(intent.AmountCents)}, nil
}

// CompleteStripePayment settles a Stripe order once the PaymentIntent has
// succeeded. It is safe to call more than once: when the order is already
// paid with the same intent the settled order is returned without error.
func (s *service) CompleteStripePayment(ctx context.Context, input CompleteStripeInput) (*orders.Order, error) {
	intentID := strings.TrimSpace(input.PaymentIntentID)
	if intentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required").
			WithDetails(map[string]string{"paymentIntentId": "is required"})
	}

	order, err := s.resolveStripeOrder(ctx, input, intentID)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod != enums.PaymentMethodStripe {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is not paid with stripe").
			WithDetails(map[string]string{"paymentMethod": order.PaymentMethod.String()})
	}
	if order.IsPaid {
		if order.PaymentResult != nil && order.PaymentResult.ID == intentID {
			s.metrics.IncSettled(enums.PaymentProviderStripe.String(), metrics.OutcomeIdempotent)
			return order, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyPaid, "order is already paid")
	}
	if order.PaymentResult == nil || order.PaymentResult.ID != intentID {
		s.reject(ctx, order.ID, enums.PaymentProviderStripe, "payment intent does not match pending payment")
		return nil, pkgerrors.New(pkgerrors.CodePaymentMismatch, "payment intent does not match this order")
	}

	started := time.Now()
	intent, err := s.stripe.RetrievePaymentIntent(ctx, intentID)
	s.metrics.ObserveCall(enums.PaymentProviderStripe.String(), "retrieve_payment_intent", time.Since(started), err)
	if err != nil {
		s.logProviderFailure(ctx, order.ID, enums.PaymentProviderStripe, "stripe retrieve payment intent failed", err)
		return nil, asProviderError(err, "stripe retrieve payment intent failed")
	}
	if intent.Status != stripeStatusSucceeded {
		s.reject(ctx, order.ID, enums.PaymentProviderStripe, "payment intent not succeeded")
		return nil, pkgerrors.New(pkgerrors.CodePaymentIncomplete, "stripe payment was not completed").
			WithDetails(map[string]string{"status": intent.Status})
	}
	if intent.AmountCents != order.TotalPrice.Cents() {
		s.reject(ctx, order.ID, enums.PaymentProviderStripe, "payment intent amount differs from order total")
		return nil, pkgerrors.New(pkgerrors.CodePaymentMismatch, "payment amount does not match order total")
	}
	if intent.OrderID != "" && intent.OrderID != order.ID.String() {
		s.reject(ctx, order.ID, enums.PaymentProviderStripe, "payment intent belongs to another order")
		return nil, pkgerrors.New(pkgerrors.CodePaymentMismatch, "payment intent does not match this order")
	}

	email := strings.TrimSpace(input.Email)
	if email == "" {
		email = intent.ReceiptEmail
	}
	if email == "" {
		email = order.ShippingAddress.Email
	}
	result := types.PaymentResult{
		ID:           intent.ID,
		Status:       intent.Status,
		EmailAddress: email,
		PricePaid:    types.Money(intent.AmountCents).String(),
		Extra: map[string]any{
			"provider": enums.PaymentProviderStripe.String(),
			"currency": intent.Currency,
		},
	}

	paid, err := s.settle(ctx, order.ID, result, enums.PaymentProviderStripe)
	if pkgerrors.IsCode(err, pkgerrors.CodeAlreadyPaid) {
		// Lost the race to a concurrent confirmation of the same intent.
		s.metrics.IncSettled(enums.PaymentProviderStripe.String(), metrics.OutcomeIdempotent)
		return s.orders.GetOrder(ctx, order.ID)
	}
	return paid, err
}

func (s *service) resolveStripeOrder(ctx context.Context, input CompleteStripeInput, intentID string) (*orders.Order, error) {
	if input.OrderID == nil || *input.OrderID == uuid.Nil {
		return s.orders.FindStripeOrderByIntent(ctx, intentID, input.UserID)
	}
	if input.UserID != nil {
		return s.orders.GetOrderForUser(ctx, *input.OrderID, *input.UserID)
	}
	return s.orders.GetOrder(ctx, *input.OrderID)
}

// payableOrder loads the caller's order and checks it can still take a
// payment with the given method.
func (s *service) payableOrder(ctx context.Context, userID, orderID uuid.UUID, method enums.PaymentMethod) (*orders.Order, error) {
	order, err := s.orders.GetOrderForUser(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod != method {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("order is not paid with %s", method.Provider())).
			WithDetails(map[string]string{"paymentMethod": order.PaymentMethod.String()})
	}
	if order.IsPaid {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyPaid, "order is already paid")
	}
	return order, nil
}

// settle marks the order paid and clears the owner's cart in one
// transaction.
func (s *service) settle(ctx context.Context, orderID uuid.UUID, result types.PaymentResult, provider enums.PaymentProvider) (*orders.Order, error) {
	var (
		paid    *models.Order
		cleared bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.MarkPaidTx(ctx, tx, orderID, result)
		if err != nil {
			return err
		}
		cleared, err = s.carts.WithTx(tx).DeleteByOwner(ctx, cart.UserOwner(order.UserID))
		if err != nil {
			return err
		}
		paid = order
		return nil
	})
	if err != nil {
		if !pkgerrors.IsCode(err, pkgerrors.CodeAlreadyPaid) {
			s.metrics.IncSettled(provider.String(), metrics.OutcomeError)
		}
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "settle payment")
	}

	if cleared && s.counts != nil {
		s.counts.InvalidateCount(ctx, cart.UserOwner(paid.UserID))
	}
	s.metrics.IncSettled(provider.String(), metrics.OutcomeSuccess)
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, paid.ID.String())
		logCtx = s.logg.WithProvider(logCtx, provider.String())
		s.logg.Info(logCtx, "order paid")
	}
	return orders.FromModel(paid), nil
}

func (s *service) reject(ctx context.Context, orderID uuid.UUID, provider enums.PaymentProvider, msg string) {
	s.metrics.IncSettled(provider.String(), metrics.OutcomeRejected)
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithOrderID(ctx, orderID.String())
	logCtx = s.logg.WithProvider(logCtx, provider.String())
	s.logg.Warn(logCtx, msg)
}

var errCaptureNeedsReconciliation = pkgerrors.New(pkgerrors.CodePaymentMismatch, "paypal capture needs manual reconciliation")

// rejectCapture records a capture PayPal already executed but the order did
// not accept. Money may have moved, so the entry carries everything needed to
// reconcile or refund it by hand.
func (s *service) rejectCapture(ctx context.Context, order *orders.Order, capture *Capture, msg string) {
	s.metrics.IncSettled(enums.PaymentProviderPayPal.String(), metrics.OutcomeRejected)
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	logCtx = s.logg.WithProvider(logCtx, enums.PaymentProviderPayPal.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"paypal_order_id":       capture.OrderID,
		"capture_id":            capture.CaptureID,
		"capture_status":        capture.Status,
		"captured_amount_cents": capture.AmountCents,
		"order_total_cents":     order.TotalPrice.Cents(),
	})
	s.logg.Error(logCtx, msg, errCaptureNeedsReconciliation)
}

func (s *service) logProviderFailure(ctx context.Context, orderID uuid.UUID, provider enums.PaymentProvider, msg string, err error) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithOrderID(ctx, orderID.String())
	logCtx = s.logg.WithProvider(logCtx, provider.String())
	s.logg.Error(logCtx, msg, err)
}

func asProviderError(err error, msg string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodePaymentProvider, err, msg)
}
