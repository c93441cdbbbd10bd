package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/audiophile-backend/api/middleware"
	"github.com/angelmondragon/audiophile-backend/internal/auth"
	"github.com/angelmondragon/audiophile-backend/pkg/logger"
)

// AccountProfile returns the signed-in user.
func AccountProfile(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return accountAction(svc, logg, http.StatusOK, true, func(r *http.Request, caller uuid.UUID, _ noBody) (any, error) {
		return svc.Profile(r.Context(), caller)
	})
}

// AccountUpdateProfile renames the account and optionally moves its email.
func AccountUpdateProfile(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return accountAction(svc, logg, http.StatusOK, true, func(r *http.Request, caller uuid.UUID, in auth.UpdateProfileRequest) (any, error) {
		return svc.UpdateProfile(r.Context(), caller, in)
	})
}

// AccountChangePassword swaps the password after checking the current one.
func AccountChangePassword(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return accountAction(svc, logg, http.StatusOK, true, func(r *http.Request, caller uuid.UUID, in auth.ChangePasswordRequest) (any, error) {
		if err := svc.ChangePassword(r.Context(), caller, in); err != nil {
			return nil, err
		}
		return done{Success: true}, nil
	})
}

// AccountDelete closes the account and ends the session behind the bearer
// token. Orders placed from it are kept.
func AccountDelete(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return accountAction(svc, logg, http.StatusOK, true, func(r *http.Request, caller uuid.UUID, in auth.DeleteAccountRequest) (any, error) {
		if err := svc.DeleteAccount(r.Context(), caller, middleware.AccessIDFromContext(r.Context()), in); err != nil {
			return nil, err
		}
		return done{Success: true}, nil
	})
}
