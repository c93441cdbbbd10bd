package main

import (
	"context"

	"go.uber.org/multierr"

	"github.com/angelmondragon/audiophile-backend/internal/cart"
	"github.com/angelmondragon/audiophile-backend/internal/orders"
	"github.com/angelmondragon/audiophile-backend/internal/payments"
	"github.com/angelmondragon/audiophile-backend/pkg/config"
	"github.com/angelmondragon/audiophile-backend/pkg/db"
	"github.com/angelmondragon/audiophile-backend/pkg/logger"
	"github.com/angelmondragon/audiophile-backend/pkg/metrics"
	pkgpaypal "github.com/angelmondragon/audiophile-backend/pkg/paypal"
	pkgstripe "github.com/angelmondragon/audiophile-backend/pkg/stripe"
)

type paymentProviders struct {
	paypal *pkgpaypal.Client
	stripe *pkgstripe.Client
}

// newPaymentProviders connects both providers and reports every
// misconfiguration at once.
func newPaymentProviders(ctx context.Context, cfg *config.Config, logg *logger.Logger) (paymentProviders, error) {
	paypalClient, paypalErr := pkgpaypal.NewClient(ctx, cfg.PayPal, logg)
	stripeClient, stripeErr := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err := multierr.Combine(paypalErr, stripeErr); err != nil {
		return paymentProviders{}, err
	}
	return paymentProviders{paypal: paypalClient, stripe: stripeClient}, nil
}

func newPaymentService(
	providers paymentProviders,
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	cartRepo *cart.Repository,
	ledger orders.Service,
	counts cart.Service,
	paymentMetrics *metrics.PaymentMetrics,
) (payments.Service, error) {
	paypalGateway, err := payments.NewPayPalGateway(providers.paypal.API())
	if err != nil {
		return nil, err
	}
	stripeGateway, err := payments.NewStripeGateway(providers.stripe.API())
	if err != nil {
		return nil, err
	}
	return payments.NewService(payments.ServiceParams{
		Orders:   ledger,
		Carts:    cartRepo,
		Tx:       dbClient,
		PayPal:   paypalGateway,
		Stripe:   stripeGateway,
		Counts:   counts,
		Metrics:  paymentMetrics,
		Logger:   logg,
		Currency: cfg.Pricing.Currency,
	})
}
