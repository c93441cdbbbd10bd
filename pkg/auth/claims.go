package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/audiophile-backend/pkg/enums"
)

// AccessTokenPayload is what the auth service knows when it signs a shopper
// in. JTI doubles as the Redis session key.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Email  string
	Role   enums.UserRole
	JTI    string
}

// AccessTokenClaims is the JWT body. The email rides along so guest and
// signed-in checkout can prefill the billing form without a lookup.
type AccessTokenClaims struct {
	UserID uuid.UUID      `json:"user_id"`
	Email  string         `json:"email"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claims pass. It is also called
// directly when expiry is being ignored.
func (c *AccessTokenClaims) Validate() error {
	if c.UserID == uuid.Nil {
		return errors.New("token carries no user")
	}
	if c.Subject != c.UserID.String() {
		return fmt.Errorf("subject %q does not match user", c.Subject)
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("unknown role %q", c.Role)
	}
	if c.ID == "" {
		return errors.New("token carries no session id")
	}
	return nil
}

// IsAdmin reports whether the token may call operator endpoints.
func (c *AccessTokenClaims) IsAdmin() bool {
	return c != nil && c.Role == enums.UserRoleAdmin
}
