package orders

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/audiophile-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/audiophile-backend/pkg/errors"
	"github.com/angelmondragon/audiophile-backend/pkg/validation"
)

var (
	eMoneyNumberPattern = regexp.MustCompile(`^[0-9]{9}$`)
	eMoneyPINPattern    = regexp.MustCompile(`^[0-9]{4}$`)
)

// normalizeCreateInput trims and checks a submission, returning field level
// details on failure. The first failing field is also used as the message so
// a form can show it inline.
func normalizeCreateInput(in CreateOrderInput) (CreateOrderInput, error) {
	if in.UserID == uuid.Nil {
		return in, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to place an order")
	}

	method, err := enums.ParsePaymentMethod(string(in.PaymentMethod))
	if err != nil {
		return in, pkgerrors.New(pkgerrors.CodeValidation, "payment method is required").
			WithDetails(map[string]string{"paymentMethod": "must be one of: e-Money, PayPal, Stripe, Cash on Delivery"})
	}
	in.PaymentMethod = method
	in.ShippingAddress = in.ShippingAddress.Normalize()

	if err := validation.Struct(&in); err != nil {
		return in, err
	}

	if method != enums.PaymentMethodEMoney {
		in.EMoneyNumber, in.EMoneyPIN = "", ""
		return in, nil
	}

	in.EMoneyNumber = strings.ReplaceAll(strings.TrimSpace(in.EMoneyNumber), " ", "")
	in.EMoneyPIN = strings.TrimSpace(in.EMoneyPIN)
	details := map[string]string{}
	var first string
	switch {
	case in.EMoneyNumber == "":
		details["eMoneyNumber"] = "e-Money Number is required"
		first = details["eMoneyNumber"]
	case !eMoneyNumberPattern.MatchString(in.EMoneyNumber):
		details["eMoneyNumber"] = "e-Money Number must be 9 digits"
		first = details["eMoneyNumber"]
	}
	switch {
	case in.EMoneyPIN == "":
		details["eMoneyPin"] = "e-Money PIN is required"
	case !eMoneyPINPattern.MatchString(in.EMoneyPIN):
		details["eMoneyPin"] = "e-Money PIN must be 4 digits"
	}
	if first == "" {
		first = details["eMoneyPin"]
	}
	if len(details) > 0 {
		return in, pkgerrors.New(pkgerrors.CodeValidation, first).WithDetails(details)
	}
	return in, nil
}

// maskEMoneyNumber keeps the last four digits.
func maskEMoneyNumber(number string) string {
	if len(number) <= 4 {
		return number
	}
	return strings.Repeat("*", len(number)-4) + number[len(number)-4:]
}
