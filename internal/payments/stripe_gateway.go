package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/audiophile-backend/pkg/errors"
)

type paymentIntentsAPI interface {
	Create(ctx context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error)
	Retrieve(ctx context.Context, id string, params *stripe.PaymentIntentRetrieveParams) (*stripe.PaymentIntent, error)
}

type stripeGateway struct {
	intents paymentIntentsAPI
}

// NewStripeGateway adapts the Stripe PaymentIntents API.
func NewStripeGateway(client *stripe.Client) (StripeGateway, error) {
	if client == nil || client.V1PaymentIntents == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	return &stripeGateway{intents: client.V1PaymentIntents}, nil
}

func (g *stripeGateway) CreatePaymentIntent(ctx context.Context, amountCents int64, currency, orderID string) (*Intent, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata(OrderIDMetadataKey, orderID)
	pi, err := g.intents.Create(ctx, params)
	if err != nil {
		return nil, providerError("stripe", "create payment intent", err)
	}
	return intentFromStripe(pi)
}

func (g *stripeGateway) RetrievePaymentIntent(ctx context.Context, intentID string) (*Intent, error) {
	pi, err := g.intents.Retrieve(ctx, intentID, &stripe.PaymentIntentRetrieveParams{})
	if err != nil {
		return nil, providerError("stripe", "retrieve payment intent", err)
	}
	return intentFromStripe(pi)
}

// OrderIDMetadataKey links a PaymentIntent back to its order. Webhooks read
// it to settle without the client.
const OrderIDMetadataKey = "orderId"

func intentFromStripe(pi *stripe.PaymentIntent) (*Intent, error) {
	if pi == nil || pi.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodePaymentProvider, "stripe returned no payment intent")
	}
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
		ReceiptEmail: pi.ReceiptEmail,
		OrderID:      pi.Metadata[OrderIDMetadataKey],
	}, nil
}
