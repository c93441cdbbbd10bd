package models

import "time"

// Product is the catalog row the cart snapshots from. Catalog management
// lives outside this service; rows are read-only here.
type Product struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement:false"`
	Slug       string    `gorm:"column:slug;not null;uniqueIndex"`
	Name       string    `gorm:"column:name;not null"`
	PriceCents int64     `gorm:"column:price_cents;not null"`
	Image      *string   `gorm:"column:image"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Product) TableName() string { return "products" }
