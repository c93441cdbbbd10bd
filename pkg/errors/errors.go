package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeStateConflict     Code = "STATE_CONFLICT"
	CodeEmptyCart         Code = "EMPTY_CART"
	CodeAlreadyPaid       Code = "ALREADY_PAID"
	CodePaymentMismatch   Code = "PAYMENT_MISMATCH"
	CodePaymentIncomplete Code = "PAYMENT_INCOMPLETE"
	CodePaymentProvider   Code = "PAYMENT_PROVIDER_ERROR"
	CodeIdempotency       Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit         Code = "RATE_LIMITED"
	CodeInternal          Code = "INTERNAL_ERROR"
	CodeDependency        Code = "DEPENDENCY_ERROR"
)

// Metadata says how a code reaches the shopper.
type Metadata struct {
	HTTPStatus    int
	Retryable     bool
	PublicMessage string
	// OwnMessage lets the error's message replace PublicMessage.
	OwnMessage     bool
	DetailsAllowed bool
}

// rejected is a request the shopper can fix; the error's message is shown.
func rejected(status int, public string) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: public, OwnMessage: true}
}

// failed is a fault on our side or a provider's; only the public text is shown.
func failed(status int, public string) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: public, Retryable: true}
}

func (m Metadata) withDetails() Metadata { m.DetailsAllowed = true; return m }
func (m Metadata) fixedText() Metadata   { m.OwnMessage = false; return m }
func (m Metadata) retryable() Metadata   { m.Retryable = true; return m }

var metadataByCode = map[Code]Metadata{
	CodeValidation:    rejected(http.StatusBadRequest, "validation failed").withDetails(),
	CodeUnauthorized:  rejected(http.StatusUnauthorized, "authentication required").withDetails(),
	CodeForbidden:     rejected(http.StatusForbidden, "access denied"),
	CodeNotFound:      rejected(http.StatusNotFound, "resource not found"),
	CodeConflict:      rejected(http.StatusConflict, "conflict detected"),
	CodeStateConflict: rejected(http.StatusUnprocessableEntity, "state transition disallowed").withDetails(),
	CodeIdempotency:   rejected(http.StatusConflict, "idempotency key reused").withDetails(),
	CodeRateLimit:     rejected(http.StatusTooManyRequests, "too many requests").retryable(),

	// Checkout outcomes read the same to every shopper.
	CodeEmptyCart:         rejected(http.StatusUnprocessableEntity, "your cart is empty").fixedText().withDetails(),
	CodeAlreadyPaid:       rejected(http.StatusConflict, "order is already paid").fixedText(),
	CodePaymentMismatch:   rejected(http.StatusUnprocessableEntity, "payment could not be matched to this order").fixedText(),
	CodePaymentIncomplete: rejected(http.StatusUnprocessableEntity, "payment was not completed").fixedText(),

	CodePaymentProvider: failed(http.StatusBadGateway, "payment could not be processed, please try again"),
	CodeInternal:        failed(http.StatusInternalServerError, "internal server error"),
	CodeDependency:      failed(http.StatusServiceUnavailable, "dependency unavailable").withDetails(),
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a failure tagged with the code the API answers with.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

// Public returns the message and details a shopper may see for e.
func (e *Error) Public() (string, any) {
	meta := MetadataFor(e.Code())
	message := meta.PublicMessage
	if meta.OwnMessage && e.Message() != "" {
		message = e.Message()
	}
	if !meta.DetailsAllowed {
		return message, nil
	}
	return message, e.Details()
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause == nil:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	default:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}
