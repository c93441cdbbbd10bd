package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/audiophile-backend/pkg/db/models"
	"github.com/angelmondragon/audiophile-backend/pkg/enums"
)

// EnvelopeSchema is the payload layout this build writes. Consumers reject
// layouts newer than the one they were built against.
const EnvelopeSchema = 1

// Actor is the shopper or operator behind an order change.
type Actor struct {
	UserID uuid.UUID      `json:"userId"`
	Role   enums.UserRole `json:"role,omitempty"`
}

// Envelope is the JSON body stored in outbox_events.payload and published
// unchanged. It repeats the event type and order id so a consumer can route
// a message without reading broker attributes.
type Envelope struct {
	Schema     int                   `json:"schema"`
	EventID    uuid.UUID             `json:"eventId"`
	EventType  enums.OutboxEventType `json:"eventType"`
	OrderID    uuid.UUID             `json:"orderId"`
	OccurredAt time.Time             `json:"occurredAt"`
	Actor      *Actor                `json:"actor,omitempty"`
	Data       json.RawMessage       `json:"data"`
}

// seal wraps an encoded order event for storage.
func seal(event OrderEvent, data []byte, occurred time.Time) Envelope {
	return Envelope{
		Schema:     EnvelopeSchema,
		EventID:    uuid.New(),
		EventType:  event.Type(),
		OrderID:    event.Order(),
		OccurredAt: occurred.UTC(),
		Actor:      event.Actor(),
		Data:       data,
	}
}

// Decode parses a stored payload and rejects layouts this build cannot read.
func Decode(payload []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, err
	}
	switch {
	case env.Schema < 1 || env.Schema > EnvelopeSchema:
		return Envelope{}, fmt.Errorf("unsupported envelope schema %d", env.Schema)
	case env.EventID == uuid.Nil:
		return Envelope{}, errors.New("envelope missing event id")
	case len(env.Data) == 0:
		return Envelope{}, errors.New("envelope missing data")
	}
	return env, nil
}

// Describes reports an error when the envelope disagrees with the row it
// was stored in.
func (e Envelope) Describes(row models.OutboxEvent) error {
	if e.EventType != row.EventType {
		return fmt.Errorf("envelope type %q stored as %q", e.EventType, row.EventType)
	}
	if e.OrderID != row.AggregateID {
		return fmt.Errorf("envelope order %s stored under %s", e.OrderID, row.AggregateID)
	}
	return nil
}
