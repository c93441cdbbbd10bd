package enums

// PaymentState tracks where an order is in the payment lifecycle.
type PaymentState string

const (
	PaymentStateCreated         PaymentState = "created"
	PaymentStateAwaitingPayment PaymentState = "awaiting_payment"
	PaymentStatePaid            PaymentState = "paid"
)

var paymentStates = closedSet[PaymentState]{
	PaymentStateCreated,
	PaymentStateAwaitingPayment,
	PaymentStatePaid,
}

func (s PaymentState) String() string { return string(s) }

func (s PaymentState) IsValid() bool { return paymentStates.has(s) }

// ParsePaymentState reads the payment_state column.
func ParsePaymentState(value string) (PaymentState, error) {
	return paymentStates.parse("payment state", value, false)
}
