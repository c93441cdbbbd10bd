package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// PaymentResult is the provider-agnostic receipt attached to an order. The
// named fields are always present; anything else a provider returns is kept
// in Extra and written back out at the top level.
type PaymentResult struct {
	ID           string         `json:"id"`
	Status       string         `json:"status"`
	EmailAddress string         `json:"email_address"`
	PricePaid    string         `json:"pricePaid"`
	Timestamp    string         `json:"timestamp,omitempty"`
	Extra        map[string]any `json:"-"`
}

var paymentResultCoreKeys = map[string]struct{}{
	"id":            {},
	"status":        {},
	"email_address": {},
	"pricePaid":     {},
	"timestamp":     {},
}

// IsPending reports whether the result only records a provider attempt.
func (p *PaymentResult) IsPending() bool {
	return p != nil && (p.Status == "" || p.Status == PaymentStatusPending)
}

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "COMPLETED"
)

func (p PaymentResult) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+5)
	for k, v := range p.Extra {
		if _, core := paymentResultCoreKeys[k]; core {
			continue
		}
		out[k] = v
	}
	out["id"] = p.ID
	out["status"] = p.Status
	out["email_address"] = p.EmailAddress
	out["pricePaid"] = p.PricePaid
	if p.Timestamp != "" {
		out["timestamp"] = p.Timestamp
	}
	return json.Marshal(out)
}

func (p *PaymentResult) UnmarshalJSON(data []byte) error {
	type core struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		EmailAddress string `json:"email_address"`
		PricePaid    string `json:"pricePaid"`
		Timestamp    string `json:"timestamp"`
	}
	var c core
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	extra := map[string]any{}
	for k, v := range all {
		if _, isCore := paymentResultCoreKeys[k]; !isCore {
			extra[k] = v
		}
	}
	*p = PaymentResult{
		ID:           c.ID,
		Status:       c.Status,
		EmailAddress: c.EmailAddress,
		PricePaid:    c.PricePaid,
		Timestamp:    c.Timestamp,
	}
	if len(extra) > 0 {
		p.Extra = extra
	}
	return nil
}

// Value stores the receipt as JSON.
func (p PaymentResult) Value() (driver.Value, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan decodes a JSON column.
func (p *PaymentResult) Scan(value any) error {
	if value == nil {
		*p = PaymentResult{}
		return nil
	}
	raw, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("payment result: %w", err)
	}
	return json.Unmarshal(raw, p)
}
