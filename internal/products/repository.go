package products

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/audiophile-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/audiophile-backend/pkg/errors"
)

// Repository reads catalog rows. Catalog writes happen elsewhere.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetByID returns the product or a NOT_FOUND error.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	if id <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id must be positive")
	}
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	return &product, nil
}
