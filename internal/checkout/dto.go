package checkout

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/audiophile-backend/internal/cart"
	"github.com/angelmondragon/audiophile-backend/internal/orders"
	"github.com/angelmondragon/audiophile-backend/pkg/enums"
	"github.com/angelmondragon/audiophile-backend/pkg/types"
)

// Identity is the authenticated caller. A nil *Identity is anonymous.
type Identity struct {
	UserID uuid.UUID
	Email  string
}

func (i *Identity) authenticated() bool {
	return i != nil && i.UserID != uuid.Nil
}

// NextStep tells the client what to render after submission.
type NextStep string

const (
	NextStepPayPalApproval NextStep = "paypal_approval"
	NextStepStripePayment  NextStep = "stripe_payment"
	NextStepConfirmation   NextStep = "confirmation"
)

const (
	signInRedirect = "/sign-in?callbackUrl=/checkout"
	homeRedirect   = "/"
)

// Summary is the price preview shown next to the checkout form.
type Summary struct {
	ItemsPrice    types.Money `json:"itemsPrice"`
	ShippingPrice types.Money `json:"shippingPrice"`
	TaxPrice      types.Money `json:"taxPrice"`
	TotalPrice    types.Money `json:"totalPrice"`
}

// EntryResult is everything the checkout page needs to render: the cart,
// the price preview and the user's saved checkout defaults.
type EntryResult struct {
	Cart            *cart.Cart             `json:"cart"`
	Summary         Summary                `json:"summary"`
	ShippingAddress *types.ShippingAddress `json:"shippingAddress,omitempty"`
	PaymentMethod   *enums.PaymentMethod   `json:"paymentMethod,omitempty"`
}

// SubmitInput is the checkout form body.
type SubmitInput struct {
	ShippingAddress types.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   enums.PaymentMethod   `json:"paymentMethod" validate:"required"`
	SaveAddress     bool                  `json:"saveAddress"`
	EMoneyNumber    string                `json:"eMoneyNumber"`
	EMoneyPIN       string                `json:"eMoneyPin"`
}

func (in SubmitInput) toOrderInput(userID uuid.UUID) orders.CreateOrderInput {
	return orders.CreateOrderInput{
		UserID:          userID,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
		SaveAddress:     in.SaveAddress,
		EMoneyNumber:    in.EMoneyNumber,
		EMoneyPIN:       in.EMoneyPIN,
	}
}

type SubmitResult struct {
	OrderID       uuid.UUID           `json:"orderId"`
	PaymentMethod enums.PaymentMethod `json:"paymentMethod"`
	NextStep      NextStep            `json:"nextStep"`
}

func nextStepFor(method enums.PaymentMethod) NextStep {
	switch method {
	case enums.PaymentMethodPayPal:
		return NextStepPayPalApproval
	case enums.PaymentMethodStripe:
		return NextStepStripePayment
	default:
		return NextStepConfirmation
	}
}
