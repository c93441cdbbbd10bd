package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/audiophile-backend/pkg/db/models"
	"github.com/angelmondragon/audiophile-backend/pkg/enums"
	"github.com/angelmondragon/audiophile-backend/pkg/types"
)

// PlaceholderImage is stored on order items whose product had no image.
const PlaceholderImage = "/images/placeholder.png"

// CreateOrderInput is a checkout submission for a signed-in user.
type CreateOrderInput struct {
	UserID          uuid.UUID             `json:"-"`
	ShippingAddress types.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   enums.PaymentMethod   `json:"paymentMethod" validate:"required"`
	SaveAddress     bool                  `json:"saveAddress"`
	EMoneyNumber    string                `json:"eMoneyNumber"`
	EMoneyPIN       string                `json:"eMoneyPin"`
}

type OrderItem struct {
	ProductID int64       `json:"productId"`
	Name      string      `json:"name"`
	Slug      string      `json:"slug"`
	Image     string      `json:"image"`
	Qty       int         `json:"qty"`
	Price     types.Money `json:"price"`
}

// Order is the read model returned to callers. Amounts are serialized as
// decimal currency units.
type Order struct {
	ID              uuid.UUID             `json:"id"`
	UserID          uuid.UUID             `json:"userId"`
	ShippingAddress types.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   enums.PaymentMethod   `json:"paymentMethod"`
	ItemsPrice      types.Money           `json:"itemsPrice"`
	ShippingPrice   types.Money           `json:"shippingPrice"`
	TaxPrice        types.Money           `json:"taxPrice"`
	TotalPrice      types.Money           `json:"totalPrice"`
	PaymentState    enums.PaymentState    `json:"paymentState"`
	IsPaid          bool                  `json:"isPaid"`
	PaidAt          *time.Time            `json:"paidAt"`
	PaymentResult   *types.PaymentResult  `json:"paymentResult"`
	IsDelivered     bool                  `json:"isDelivered"`
	DeliveredAt     *time.Time            `json:"deliveredAt"`
	CreatedAt       time.Time             `json:"createdAt"`
	Items           []OrderItem           `json:"orderItems"`
}

// OrderList is one page of a user's order history.
type OrderList struct {
	Orders     []Order `json:"orders"`
	NextCursor string  `json:"nextCursor,omitempty"`
}

func FromModel(o *models.Order) *Order {
	if o == nil {
		return nil
	}
	out := &Order{
		ID:              o.ID,
		UserID:          o.UserID,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		ItemsPrice:      types.Money(o.ItemsPriceCents),
		ShippingPrice:   types.Money(o.ShippingPriceCents),
		TaxPrice:        types.Money(o.TaxPriceCents),
		TotalPrice:      types.Money(o.TotalPriceCents),
		PaymentState:    o.PaymentState,
		IsPaid:          o.IsPaid,
		PaidAt:          o.PaidAt,
		PaymentResult:   o.PaymentResult,
		IsDelivered:     o.IsDelivered,
		DeliveredAt:     o.DeliveredAt,
		CreatedAt:       o.CreatedAt,
		Items:           make([]OrderItem, 0, len(o.Items)),
	}
	for _, item := range o.Items {
		out.Items = append(out.Items, OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Slug:      item.Slug,
			Image:     item.Image,
			Qty:       item.Qty,
			Price:     types.Money(item.PriceCents),
		})
	}
	return out
}

// snapshotItems copies cart lines into order items.
func snapshotItems(lines []models.CartItem) []models.OrderItem {
	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		image := PlaceholderImage
		if line.Image != nil && *line.Image != "" {
			image = *line.Image
		}
		items = append(items, models.OrderItem{
			ProductID:  line.ProductID,
			Qty:        line.Quantity,
			PriceCents: line.PriceCents,
			Name:       line.Name,
			Slug:       line.Slug,
			Image:      image,
		})
	}
	return items
}
