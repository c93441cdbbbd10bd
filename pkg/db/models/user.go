package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/audiophile-backend/pkg/enums"
	"github.com/angelmondragon/audiophile-backend/pkg/types"
)

// User represents a registered shopper.
type User struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	Name          string                 `gorm:"column:name;not null"`
	Email         string                 `gorm:"column:email;not null;uniqueIndex"`
	PasswordHash  string                 `gorm:"column:password_hash;not null"`
	Role          string                 `gorm:"column:role;not null;default:'user'"`
	Address       *types.ShippingAddress `gorm:"column:address;type:jsonb"`
	PaymentMethod *enums.PaymentMethod   `gorm:"column:payment_method"`
	LastLoginAt   *time.Time             `gorm:"column:last_login_at"`
	CreatedAt     time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time              `gorm:"column:updated_at;autoUpdateTime"`
	// DeletedAt marks a closed account. Its orders stay on the ledger.
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
