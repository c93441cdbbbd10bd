package orders

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/audiophile-backend/internal/cart"
	"github.com/angelmondragon/audiophile-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.OrderEvent) error
}

type countInvalidator interface {
	InvalidateCount(ctx context.Context, owners ...cart.Owner)
}
