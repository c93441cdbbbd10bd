package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/audiophile-backend/api/middleware"
	"github.com/angelmondragon/audiophile-backend/internal/cart"
	"github.com/angelmondragon/audiophile-backend/internal/checkout"
	pkgerrors "github.com/angelmondragon/audiophile-backend/pkg/errors"
)

// UserID returns the authenticated user id, or uuid.Nil for anonymous
// requests.
func UserID(r *http.Request) uuid.UUID {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// RequireUserID rejects anonymous requests.
func RequireUserID(r *http.Request) (uuid.UUID, error) {
	id := UserID(r)
	if id == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return id, nil
}

// CartOwner resolves whose cart the request targets. A signed-in user always
// wins over the session cookie.
func CartOwner(r *http.Request) cart.Owner {
	if id := UserID(r); id != uuid.Nil {
		return cart.UserOwner(id)
	}
	return cart.SessionOwner(middleware.SessionCartIDFromContext(r.Context()))
}

// CheckoutIdentity returns nil for anonymous callers.
func CheckoutIdentity(r *http.Request) *checkout.Identity {
	id := UserID(r)
	if id == uuid.Nil {
		return nil
	}
	return &checkout.Identity{UserID: id, Email: middleware.EmailFromContext(r.Context())}
}
