package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/audiophile-backend/pkg/enums"
	"github.com/angelmondragon/audiophile-backend/pkg/types"
)

// Order is the immutable checkout snapshot. Only the payment and delivery
// status columns change after creation.
type Order struct {
	ID                 uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	UserID             uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	ShippingAddress    types.ShippingAddress `gorm:"column:shipping_address;type:jsonb;not null"`
	PaymentMethod      enums.PaymentMethod   `gorm:"column:payment_method;not null"`
	ItemsPriceCents    int64                 `gorm:"column:items_price_cents;not null"`
	ShippingPriceCents int64                 `gorm:"column:shipping_price_cents;not null"`
	TaxPriceCents      int64                 `gorm:"column:tax_price_cents;not null"`
	TotalPriceCents    int64                 `gorm:"column:total_price_cents;not null"`
	PaymentState       enums.PaymentState    `gorm:"column:payment_state;not null;default:'created'"`
	IsPaid             bool                  `gorm:"column:is_paid;not null;default:false"`
	PaidAt             *time.Time            `gorm:"column:paid_at"`
	PaymentResult      *types.PaymentResult  `gorm:"column:payment_result;type:jsonb"`
	IsDelivered        bool                  `gorm:"column:is_delivered;not null;default:false"`
	DeliveredAt        *time.Time            `gorm:"column:delivered_at"`
	Items              []OrderItem           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderItem is an independent copy of a cart line at submission time.
type OrderItem struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID  int64     `gorm:"column:product_id;not null"`
	Qty        int       `gorm:"column:qty;not null"`
	PriceCents int64     `gorm:"column:price_cents;not null"`
	Name       string    `gorm:"column:name;not null"`
	Slug       string    `gorm:"column:slug;not null"`
	Image      string    `gorm:"column:image;not null"`
}

func (OrderItem) TableName() string { return "order_items" }

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
