package enums

// PaymentMethod is what the shopper picks on the checkout form.
type PaymentMethod string

const (
	PaymentMethodEMoney         PaymentMethod = "e-Money"
	PaymentMethodPayPal         PaymentMethod = "PayPal"
	PaymentMethodStripe         PaymentMethod = "Stripe"
	PaymentMethodCashOnDelivery PaymentMethod = "Cash on Delivery"
)

var paymentMethods = closedSet[PaymentMethod]{
	PaymentMethodEMoney,
	PaymentMethodPayPal,
	PaymentMethodStripe,
	PaymentMethodCashOnDelivery,
}

// settledBy maps each method to who settles it. e-Money and cash are taken
// on trust at checkout; the order is paid when it is placed.
var settledBy = map[PaymentMethod]PaymentProvider{
	PaymentMethodPayPal: PaymentProviderPayPal,
	PaymentMethodStripe: PaymentProviderStripe,
}

func (p PaymentMethod) String() string { return string(p) }

func (p PaymentMethod) IsValid() bool { return paymentMethods.has(p) }

// RequiresProviderConfirmation reports whether the order stays unpaid until
// a provider confirms the money moved.
func (p PaymentMethod) RequiresProviderConfirmation() bool {
	_, external := settledBy[p]
	return external
}

// Provider names who settles payments made with this method.
func (p PaymentMethod) Provider() PaymentProvider {
	if provider, ok := settledBy[p]; ok {
		return provider
	}
	return PaymentProviderDirect
}

// ParsePaymentMethod accepts the checkout form's labels in any case.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	return paymentMethods.parse("payment method", value, true)
}
