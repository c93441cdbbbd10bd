package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/audiophile-backend/pkg/db/models"
	"github.com/angelmondragon/audiophile-backend/pkg/enums"
	"github.com/angelmondragon/audiophile-backend/pkg/types"
)

// UserDTO is the transport shape that omits sensitive credentials.
type UserDTO struct {
	ID            uuid.UUID              `json:"id"`
	Name          string                 `json:"name"`
	Email         string                 `json:"email"`
	Role          string                 `json:"role"`
	Address       *types.ShippingAddress `json:"address,omitempty"`
	PaymentMethod *enums.PaymentMethod   `json:"paymentMethod,omitempty"`
	LastLoginAt   *time.Time             `json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Name         string
	Email        string
	PasswordHash string
	Role         string
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}

	return &UserDTO{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		Role:          u.Role,
		Address:       u.Address,
		PaymentMethod: u.PaymentMethod,
		LastLoginAt:   u.LastLoginAt,
		CreatedAt:     u.CreatedAt,
	}
}

func (c CreateUserDTO) ToModel() *models.User {
	role := c.Role
	if role == "" {
		role = RoleUser
	}
	return &models.User{
		Name:         c.Name,
		Email:        NormalizeEmail(c.Email),
		PasswordHash: c.PasswordHash,
		Role:         role,
	}
}

const (
	RoleUser  = string(enums.UserRoleUser)
	RoleAdmin = string(enums.UserRoleAdmin)
)
