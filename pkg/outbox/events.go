package outbox

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/audiophile-backend/pkg/enums"
)

// OrderEvent is a change in an order's life that fulfilment and email
// consumers hear about. Each one is queued in the transaction that made the
// change.
type OrderEvent interface {
	Type() enums.OutboxEventType
	Order() uuid.UUID
	// At is when the change happened; zero means now.
	At() time.Time
	// Actor is the shopper behind the change, or nil for operator actions.
	Actor() *Actor
}

// OrderCreatedEvent is queued with the new order.
type OrderCreatedEvent struct {
	OrderID         uuid.UUID `json:"orderId"`
	UserID          uuid.UUID `json:"userId"`
	PaymentMethod   string    `json:"paymentMethod"`
	TotalPriceCents int64     `json:"totalPriceCents"`
	ItemCount       int       `json:"itemCount"`
}

func (e OrderCreatedEvent) Type() enums.OutboxEventType { return enums.EventOrderCreated }
func (e OrderCreatedEvent) Order() uuid.UUID            { return e.OrderID }
func (e OrderCreatedEvent) At() time.Time               { return time.Time{} }
func (e OrderCreatedEvent) Actor() *Actor               { return shopper(e.UserID) }

// OrderPaidEvent is queued by the single payment transition.
type OrderPaidEvent struct {
	OrderID         uuid.UUID `json:"orderId"`
	UserID          uuid.UUID `json:"userId"`
	PaymentMethod   string    `json:"paymentMethod"`
	Provider        string    `json:"provider"`
	TransactionID   string    `json:"transactionId"`
	TotalPriceCents int64     `json:"totalPriceCents"`
	PaidAt          time.Time `json:"paidAt"`
}

func (e OrderPaidEvent) Type() enums.OutboxEventType { return enums.EventOrderPaid }
func (e OrderPaidEvent) Order() uuid.UUID            { return e.OrderID }
func (e OrderPaidEvent) At() time.Time               { return e.PaidAt }
func (e OrderPaidEvent) Actor() *Actor               { return shopper(e.UserID) }

// OrderDeliveredEvent is queued once an operator marks the order delivered.
type OrderDeliveredEvent struct {
	OrderID     uuid.UUID `json:"orderId"`
	UserID      uuid.UUID `json:"userId"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

func (e OrderDeliveredEvent) Type() enums.OutboxEventType { return enums.EventOrderDelivered }
func (e OrderDeliveredEvent) Order() uuid.UUID            { return e.OrderID }
func (e OrderDeliveredEvent) At() time.Time               { return e.DeliveredAt }
func (e OrderDeliveredEvent) Actor() *Actor               { return nil }

func shopper(userID uuid.UUID) *Actor {
	if userID == uuid.Nil {
		return nil
	}
	return &Actor{UserID: userID, Role: enums.UserRoleUser}
}
