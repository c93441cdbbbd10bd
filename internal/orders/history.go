package orders

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/audiophile-backend/pkg/errors"
)

const (
	// DefaultHistoryPageSize is used when the account page asks for no size.
	DefaultHistoryPageSize = 20
	// MaxHistoryPageSize caps one page of order history.
	MaxHistoryPageSize = 50
)

// HistoryPage selects one page of a shopper's order history. Cursor is the
// NextCursor of the previous page, or empty for the newest orders.
type HistoryPage struct {
	Size   int
	Cursor string
}

func (p HistoryPage) size() int {
	switch {
	case p.Size <= 0:
		return DefaultHistoryPageSize
	case p.Size > MaxHistoryPageSize:
		return MaxHistoryPageSize
	default:
		return p.Size
	}
}

// HistoryPosition is the last order a page ended on. Orders are listed by
// placement time, then id, both descending.
type HistoryPosition struct {
	PlacedAt time.Time
	OrderID  uuid.UUID
}

// historyCursor is the wire form of a HistoryPosition. It names the shopper
// it was issued to so one account cannot page through another's history.
type historyCursor struct {
	Shopper  uuid.UUID `json:"s"`
	PlacedAt int64     `json:"t"`
	OrderID  uuid.UUID `json:"o"`
}

func encodeHistoryCursor(shopper uuid.UUID, last Order) string {
	raw, err := json.Marshal(historyCursor{
		Shopper:  shopper,
		PlacedAt: last.CreatedAt.UTC().UnixNano(),
		OrderID:  last.ID,
	})
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeHistoryCursor(shopper uuid.UUID, value string) (*HistoryPosition, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, invalidCursor(err)
	}
	var cursor historyCursor
	if err := json.Unmarshal(raw, &cursor); err != nil {
		return nil, invalidCursor(err)
	}
	if cursor.Shopper != shopper || cursor.OrderID == uuid.Nil || cursor.PlacedAt <= 0 {
		return nil, invalidCursor(nil)
	}
	return &HistoryPosition{
		PlacedAt: time.Unix(0, cursor.PlacedAt).UTC(),
		OrderID:  cursor.OrderID,
	}, nil
}

func invalidCursor(err error) error {
	if err == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid order history cursor")
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order history cursor")
}
