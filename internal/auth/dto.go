package auth

import (
	"github.com/angelmondragon/audiophile-backend/internal/users"
)

// RegisterRequest is the sign-up form.
type RegisterRequest struct {
	Name            string `json:"name" validate:"required,min=3"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

// LoginRequest captures the credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest exchanges a refresh token for a new token pair. The
// access token may be expired.
type RefreshRequest struct {
	AccessToken  string `json:"access_token" validate:"required"`
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// LoginResponse carries the token pair and the signed-in user. CartAdopted
// tells the client the anonymous cart now belongs to the account.
type LoginResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	User         *users.UserDTO `json:"user"`
	CartAdopted  bool           `json:"cartAdopted"`
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// UpdateProfileRequest renames the account. Email is optional; when present
// the account moves to the new address.
type UpdateProfileRequest struct {
	Name  string  `json:"name" validate:"required,min=3"`
	Email *string `json:"email,omitempty" validate:"omitempty,email"`
}

// ChangePasswordRequest swaps the password after proving the current one.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}

// DeleteAccountRequest confirms account closure with the password.
type DeleteAccountRequest struct {
	Password string `json:"password" validate:"required"`
}

// EmailCheckRequest asks whether an email is already registered.
type EmailCheckRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// EmailCheckResponse reports whether an open account uses the email.
type EmailCheckResponse struct {
	Exists bool `json:"exists"`
}
