package payments

import (
	"context"
)

// Capture is the outcome of capturing a PayPal order.
type Capture struct {
	OrderID     string
	CaptureID   string
	Status      string
	PayerEmail  string
	AmountCents int64
}

// Intent is the subset of a Stripe PaymentIntent the orchestrator reads.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	AmountCents  int64
	Currency     string
	ReceiptEmail string
	OrderID      string
}

// PayPalGateway creates and captures remote PayPal orders.
type PayPalGateway interface {
	CreateOrder(ctx context.Context, amountCents int64, currency, referenceID string) (string, error)
	CaptureOrder(ctx context.Context, providerOrderID string) (*Capture, error)
}

// StripeGateway creates and reads PaymentIntents. Confirmation happens
// client-side against Stripe.
type StripeGateway interface {
	CreatePaymentIntent(ctx context.Context, amountCents int64, currency, orderID string) (*Intent, error)
	RetrievePaymentIntent(ctx context.Context, intentID string) (*Intent, error)
}

const (
	paypalStatusCompleted = "COMPLETED"
	stripeStatusSucceeded = "succeeded"
)
