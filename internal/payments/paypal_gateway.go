package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/plutov/paypal/v4"

	pkgerrors "github.com/angelmondragon/audiophile-backend/pkg/errors"
	"github.com/angelmondragon/audiophile-backend/pkg/types"
)

type paypalOrdersAPI interface {
	CreateOrder(ctx context.Context, intent string, purchaseUnits []paypal.PurchaseUnitRequest, paymentSource *paypal.PaymentSource, appContext *paypal.ApplicationContext) (*paypal.Order, error)
	CaptureOrder(ctx context.Context, orderID string, req paypal.CaptureOrderRequest) (*paypal.CaptureOrderResponse, error)
}

var _ paypalOrdersAPI = (*paypal.Client)(nil)

type paypalGateway struct {
	api paypalOrdersAPI
}

// NewPayPalGateway adapts the PayPal Orders v2 client.
func NewPayPalGateway(api *paypal.Client) (PayPalGateway, error) {
	if api == nil {
		return nil, fmt.Errorf("paypal client required")
	}
	return &paypalGateway{api: api}, nil
}

func (g *paypalGateway) CreateOrder(ctx context.Context, amountCents int64, currency, referenceID string) (string, error) {
	order, err := g.api.CreateOrder(ctx, paypal.OrderIntentCapture, []paypal.PurchaseUnitRequest{{
		ReferenceID: referenceID,
		Amount: &paypal.PurchaseUnitAmount{
			Currency: strings.ToUpper(currency),
			Value:    types.Money(amountCents).String(),
		},
	}}, nil, nil)
	if err != nil {
		return "", providerError("paypal", "create order", err)
	}
	if order == nil || order.ID == "" {
		return "", pkgerrors.New(pkgerrors.CodePaymentProvider, "paypal returned no order id")
	}
	return order.ID, nil
}

func (g *paypalGateway) CaptureOrder(ctx context.Context, providerOrderID string) (*Capture, error) {
	resp, err := g.api.CaptureOrder(ctx, providerOrderID, paypal.CaptureOrderRequest{})
	if err != nil {
		return nil, providerError("paypal", "capture order", err)
	}
	if resp == nil {
		return nil, pkgerrors.New(pkgerrors.CodePaymentProvider, "paypal returned an empty capture")
	}
	out := &Capture{OrderID: resp.ID, Status: resp.Status}
	if resp.Payer != nil {
		out.PayerEmail = resp.Payer.EmailAddress
	}
	for _, unit := range resp.PurchaseUnits {
		if unit.Payments == nil {
			continue
		}
		for _, c := range unit.Payments.Captures {
			if out.CaptureID == "" {
				out.CaptureID = c.ID
			}
			if c.Amount == nil {
				continue
			}
			cents, err := types.ParseAmountToCents(c.Amount.Value)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodePaymentProvider, err, "paypal capture amount is malformed")
			}
			out.AmountCents += cents
		}
	}
	return out, nil
}

// providerError keeps the provider's message in the chain for logs while the
// public message stays generic.
func providerError(provider, op string, err error) error {
	return pkgerrors.Wrap(pkgerrors.CodePaymentProvider, err, fmt.Sprintf("%s %s failed", provider, op))
}
