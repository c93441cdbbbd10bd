// Package pricing turns cart lines into itemized prices. Every amount is an
// int64 number of cents; callers convert to decimal only for display or for
// provider APIs.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/audiophile-backend/pkg/config"
)

const (
	DefaultShippingCents int64 = 5000
	defaultTaxRate             = "0.20"
)

// Line is the minimal view of a priced cart line.
type Line struct {
	PriceCents int64
	Quantity   int
}

// CartPrices is the cart-stage breakdown. Shipping and tax are only applied
// at checkout, so the total equals the items price.
type CartPrices struct {
	ItemsPrice int64
	TotalPrice int64
}

// OrderPrices is the checkout breakdown persisted on an order.
type OrderPrices struct {
	ItemsPrice    int64
	ShippingPrice int64
	TaxPrice      int64
	TotalPrice    int64
}

// Consistent reports whether the total equals the sum of its components.
func (p OrderPrices) Consistent() bool {
	return p.TotalPrice == p.ItemsPrice+p.ShippingPrice+p.TaxPrice
}

// CalculateCartPrices sums price*quantity over the lines.
func CalculateCartPrices(lines []Line) CartPrices {
	var items int64
	for _, line := range lines {
		items += line.PriceCents * int64(line.Quantity)
	}
	return CartPrices{ItemsPrice: items, TotalPrice: items}
}

// Engine applies the flat shipping fee and tax rate.
type Engine struct {
	shippingCents int64
	taxRate       decimal.Decimal
}

// NewEngine builds an engine from configuration.
func NewEngine(cfg config.PricingConfig) (*Engine, error) {
	rate, err := cfg.TaxRateDecimal()
	if err != nil {
		return nil, err
	}
	if cfg.ShippingCents < 0 {
		return nil, fmt.Errorf("shipping cents must not be negative")
	}
	return &Engine{shippingCents: cfg.ShippingCents, taxRate: rate}, nil
}

// DefaultEngine charges 50.00 shipping and 20% tax.
func DefaultEngine() *Engine {
	return &Engine{shippingCents: DefaultShippingCents, taxRate: decimal.RequireFromString(defaultTaxRate)}
}

// CalculateOrderPrices derives shipping, tax and total from the items price.
// Tax is rounded half away from zero to whole cents and the total is always
// recomputed from the rounded parts.
func (e *Engine) CalculateOrderPrices(itemsCents int64) OrderPrices {
	tax := decimal.NewFromInt(itemsCents).Mul(e.taxRate).Round(0).IntPart()
	return OrderPrices{
		ItemsPrice:    itemsCents,
		ShippingPrice: e.shippingCents,
		TaxPrice:      tax,
		TotalPrice:    itemsCents + e.shippingCents + tax,
	}
}
