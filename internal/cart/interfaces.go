package cart

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/audiophile-backend/pkg/db/models"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productLoader interface {
	GetByID(ctx context.Context, id int64) (*models.Product, error)
}

// CountCache stores the display-only item count per owner.
type CountCache interface {
	Get(ctx context.Context, owner Owner) (int, bool, error)
	Set(ctx context.Context, owner Owner, count int) error
	Invalidate(ctx context.Context, owners ...Owner) error
}
