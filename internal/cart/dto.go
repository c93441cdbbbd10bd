package cart

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/audiophile-backend/pkg/db/models"
	"github.com/angelmondragon/audiophile-backend/pkg/types"
)

// MaxQuantity caps a single cart line.
const MaxQuantity = 99

// Owner identifies whose cart an operation targets. A signed-in user always
// wins over the anonymous session.
type Owner struct {
	UserID    *uuid.UUID
	SessionID string
}

// UserOwner scopes an operation to a signed-in user.
func UserOwner(id uuid.UUID) Owner {
	return Owner{UserID: &id}
}

// SessionOwner scopes an operation to an anonymous session.
func SessionOwner(sessionID string) Owner {
	return Owner{SessionID: sessionID}
}

// Valid reports whether the owner resolves to something.
func (o Owner) Valid() bool {
	if o.UserID != nil {
		return *o.UserID != uuid.Nil
	}
	return strings.TrimSpace(o.SessionID) != ""
}

// IsUser reports whether the owner resolves to a user.
func (o Owner) IsUser() bool {
	return o.UserID != nil && *o.UserID != uuid.Nil
}

// Key is a stable string form used for cache keys and logs.
func (o Owner) Key() string {
	if o.IsUser() {
		return fmt.Sprintf("user:%s", o.UserID.String())
	}
	return fmt.Sprintf("session:%s", strings.TrimSpace(o.SessionID))
}

// AddItemInput is the add-to-cart request. Product details are read from the
// catalog, never trusted from the client.
type AddItemInput struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,min=1,max=99"`
}

type Item struct {
	ProductID int64       `json:"productId"`
	Slug      string      `json:"slug"`
	Name      string      `json:"name"`
	Price     types.Money `json:"price"`
	Quantity  int         `json:"quantity"`
	Image     *string     `json:"image"`
}

type Cart struct {
	ID         uuid.UUID   `json:"id"`
	UserID     *uuid.UUID  `json:"userId,omitempty"`
	SessionID  *string     `json:"sessionCartId,omitempty"`
	Items      []Item      `json:"items"`
	ItemsPrice types.Money `json:"itemsPrice"`
	TotalPrice types.Money `json:"totalPrice"`
}

// ItemCount sums line quantities.
func (c *Cart) ItemCount() int {
	if c == nil {
		return 0
	}
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

func FromModel(m *models.Cart) *Cart {
	if m == nil {
		return nil
	}
	out := &Cart{
		ID:         m.ID,
		UserID:     m.UserID,
		SessionID:  m.SessionID,
		Items:      make([]Item, 0, len(m.Items)),
		ItemsPrice: types.Money(m.ItemsPriceCents),
		TotalPrice: types.Money(m.TotalPriceCents),
	}
	for _, item := range m.Items {
		out.Items = append(out.Items, Item{
			ProductID: item.ProductID,
			Slug:      item.Slug,
			Name:      item.Name,
			Price:     types.Money(item.PriceCents),
			Quantity:  item.Quantity,
			Image:     item.Image,
		})
	}
	return out
}

func clampQuantity(q int) int {
	if q > MaxQuantity {
		return MaxQuantity
	}
	if q < 1 {
		return 1
	}
	return q
}
