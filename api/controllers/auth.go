package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/audiophile-backend/api/middleware"
	"github.com/angelmondragon/audiophile-backend/api/responses"
	"github.com/angelmondragon/audiophile-backend/api/validators"
	"github.com/angelmondragon/audiophile-backend/internal/auth"
	pkgerrors "github.com/angelmondragon/audiophile-backend/pkg/errors"
	"github.com/angelmondragon/audiophile-backend/pkg/logger"
)

// noBody marks an account route that reads nothing from the request body.
type noBody struct{}

type done struct {
	Success bool `json:"success"`
}

// accountAction is the shape shared by every /auth and /users/me route:
// refuse anonymous callers when signedIn is set, decode In, run, answer.
func accountAction[In any](svc auth.Service, logg *logger.Logger, status int, signedIn bool, run func(r *http.Request, caller uuid.UUID, in In) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var caller uuid.UUID
		if signedIn {
			id, err := RequireUserID(r)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			caller = id
		}

		var in In
		if _, bodyless := any(in).(noBody); !bodyless {
			if err := validators.DecodeJSONBody(r, &in); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		out, err := run(r, caller, in)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, status, out)
	}
}

// AuthRegister creates an account and signs it in. The anonymous session
// cart, if any, moves onto the new account.
func AuthRegister(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return accountAction(svc, logg, http.StatusCreated, false, func(r *http.Request, _ uuid.UUID, in auth.RegisterRequest) (any, error) {
		return svc.Register(r.Context(), in, middleware.SessionCartIDFromContext(r.Context()))
	})
}

// AuthLogin signs a shopper in and adopts their session cart.
func AuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return accountAction(svc, logg, http.StatusOK, false, func(r *http.Request, _ uuid.UUID, in auth.LoginRequest) (any, error) {
		return svc.Login(r.Context(), in, middleware.SessionCartIDFromContext(r.Context()))
	})
}

func AuthRefresh(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return accountAction(svc, logg, http.StatusOK, false, func(r *http.Request, _ uuid.UUID, in auth.RefreshRequest) (any, error) {
		return svc.Refresh(r.Context(), in)
	})
}

// AuthLogout revokes the session behind the bearer token. It runs behind
// the Auth middleware.
func AuthLogout(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return accountAction(svc, logg, http.StatusOK, false, func(r *http.Request, _ uuid.UUID, _ noBody) (any, error) {
		if err := svc.Logout(r.Context(), middleware.AccessIDFromContext(r.Context())); err != nil {
			return nil, err
		}
		return done{Success: true}, nil
	})
}

// AuthEmailExists reports whether an open account already uses an email.
func AuthEmailExists(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return accountAction(svc, logg, http.StatusOK, false, func(r *http.Request, _ uuid.UUID, in auth.EmailCheckRequest) (any, error) {
		return svc.EmailExists(r.Context(), in)
	})
}
