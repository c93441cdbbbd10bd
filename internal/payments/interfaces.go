package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/audiophile-backend/internal/cart"
	"github.com/angelmondragon/audiophile-backend/internal/orders"
	"github.com/angelmondragon/audiophile-backend/pkg/db/models"
	"github.com/angelmondragon/audiophile-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ledger is the slice of the order ledger the orchestrator drives.
type ledger interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*orders.Order, error)
	GetOrderForUser(ctx context.Context, orderID, userID uuid.UUID) (*orders.Order, error)
	SetPendingPayment(ctx context.Context, orderID uuid.UUID, result types.PaymentResult) error
	MarkPaidTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, result types.PaymentResult) (*models.Order, error)
	FindStripeOrderByIntent(ctx context.Context, intentID string, userID *uuid.UUID) (*orders.Order, error)
}

type countInvalidator interface {
	InvalidateCount(ctx context.Context, owners ...cart.Owner)
}
