package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/audiophile-backend/internal/orders"
	"github.com/angelmondragon/audiophile-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/audiophile-backend/pkg/errors"
	"github.com/angelmondragon/audiophile-backend/pkg/logger"
)

type stripeCompleter interface {
	CompleteStripePayment(ctx context.Context, input payments.CompleteStripeInput) (*orders.Order, error)
}

type ServiceParams struct {
	Payments stripeCompleter
	Logger   *logger.Logger
}

// Service settles Stripe orders from webhook deliveries. It races the
// client's own completion call; whichever lands second is a no-op.
type Service struct {
	payments stripeCompleter
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	return &Service{payments: params.Payments, logg: params.Logger}, nil
}

// HandleEvent returns an error only when a retry could succeed. Events for
// intents this store never created, or that fail verification, are
// acknowledged and logged.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
		}
		return s.complete(ctx, &intent)
	case stripe.EventTypePaymentIntentPaymentFailed:
		if s.logg != nil {
			logCtx := s.logg.WithProvider(ctx, "stripe")
			logCtx = s.logg.WithField(logCtx, "payment_intent_id", event.GetObjectValue("id"))
			s.logg.Warn(logCtx, "payment intent failed")
		}
		return nil
	default:
		return nil
	}
}

func (s *Service) complete(ctx context.Context, intent *stripe.PaymentIntent) error {
	if intent.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}
	input := payments.CompleteStripeInput{
		PaymentIntentID: intent.ID,
		Email:           intent.ReceiptEmail,
	}
	if raw := intent.Metadata[payments.OrderIDMetadataKey]; raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			input.OrderID = &id
		}
	}

	order, err := s.payments.CompleteStripePayment(ctx, input)
	if err == nil {
		if s.logg != nil {
			s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "stripe webhook settled order")
		}
		return nil
	}
	if isPermanent(err) {
		if s.logg != nil {
			logCtx := s.logg.WithField(ctx, "payment_intent_id", intent.ID)
			s.logg.Warn(logCtx, fmt.Sprintf("stripe webhook ignored: %v", err))
		}
		return nil
	}
	return err
}

func isPermanent(err error) bool {
	for _, code := range []pkgerrors.Code{
		pkgerrors.CodeNotFound,
		pkgerrors.CodeValidation,
		pkgerrors.CodePaymentMismatch,
		pkgerrors.CodePaymentIncomplete,
		pkgerrors.CodeAlreadyPaid,
	} {
		if pkgerrors.IsCode(err, code) {
			return true
		}
	}
	return false
}
