package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ledgerStore is the Redis surface the ledger needs.
type ledgerStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Delivery classifies one arrival of a Stripe event.
type Delivery int

const (
	// DeliveryNew is the first arrival; the caller now owns the event.
	DeliveryNew Delivery = iota
	// DeliveryInFlight means another request is settling the event right now.
	DeliveryInFlight
	// DeliveryDone means the event was already settled.
	DeliveryDone
)

const (
	ledgerScope    = "stripe-webhook"
	markProcessing = "processing"
	markSettled    = "settled"
	// claimTTL bounds how long a crashed request can hold an event.
	claimTTL = 5 * time.Minute
)

// EventLedger records which Stripe events have settled an order, so a
// redelivered payment_intent.succeeded never pays an order twice. A claim
// expires on its own if the request holding it dies; a settled mark stays for
// the retention window.
type EventLedger struct {
	store     ledgerStore
	retention time.Duration
}

// NewEventLedger builds a ledger. A zero retention keeps settled marks
// forever.
func NewEventLedger(store ledgerStore, retention time.Duration) (*EventLedger, error) {
	if store == nil {
		return nil, errors.New("ledger store is required")
	}
	if retention < 0 {
		return nil, errors.New("retention must be non-negative")
	}
	return &EventLedger{store: store, retention: retention}, nil
}

func (l *EventLedger) key(eventID string) (string, error) {
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	return l.store.IdempotencyKey(ledgerScope, eventID), nil
}

// Claim takes ownership of eventID unless another request has it or it has
// already settled.
func (l *EventLedger) Claim(ctx context.Context, eventID string) (Delivery, error) {
	key, err := l.key(eventID)
	if err != nil {
		return DeliveryNew, err
	}
	claimed, err := l.store.SetNX(ctx, key, markProcessing, claimTTL)
	if err != nil {
		return DeliveryNew, fmt.Errorf("claim stripe event: %w", err)
	}
	if claimed {
		return DeliveryNew, nil
	}
	mark, err := l.store.Get(ctx, key)
	switch {
	case errors.Is(err, goredis.Nil):
		// The other claim expired between our two calls; let Stripe retry.
		return DeliveryInFlight, nil
	case err != nil:
		return DeliveryNew, fmt.Errorf("read stripe event mark: %w", err)
	case mark == markSettled:
		return DeliveryDone, nil
	default:
		return DeliveryInFlight, nil
	}
}

// Settle records that eventID changed the order.
func (l *EventLedger) Settle(ctx context.Context, eventID string) error {
	key, err := l.key(eventID)
	if err != nil {
		return err
	}
	return l.store.Set(ctx, key, markSettled, l.retention)
}

// Release drops a claim after a failed attempt so Stripe's retry runs again.
func (l *EventLedger) Release(ctx context.Context, eventID string) error {
	key, err := l.key(eventID)
	if err != nil {
		return err
	}
	return l.store.Del(ctx, key)
}
