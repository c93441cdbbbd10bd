package enums

// PaymentProvider names the backend that settled a payment.
type PaymentProvider string

const (
	PaymentProviderPayPal PaymentProvider = "paypal"
	PaymentProviderStripe PaymentProvider = "stripe"
	PaymentProviderDirect PaymentProvider = "direct"
)

// String implements fmt.Stringer.
func (p PaymentProvider) String() string {
	return string(p)
}
