package middleware

import (
	"errors"
	"net/http"

	"github.com/angelmondragon/audiophile-backend/api/responses"
	"github.com/angelmondragon/audiophile-backend/api/validators"
	pkgAuth "github.com/angelmondragon/audiophile-backend/pkg/auth"
	"github.com/angelmondragon/audiophile-backend/pkg/auth/session"
	"github.com/angelmondragon/audiophile-backend/pkg/config"
	"github.com/angelmondragon/audiophile-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/audiophile-backend/pkg/errors"
	"github.com/angelmondragon/audiophile-backend/pkg/logger"
)

// Auth admits only requests carrying a live access token.
func Auth(cfg config.JWTConfig, verifier session.Checker, logg *logger.Logger) func(http.Handler) http.Handler {
	return authenticate(cfg, verifier, logg, true)
}

// OptionalAuth lets anonymous shoppers through so cart and checkout pages work
// before sign-in. A token that is present but invalid is still rejected so
// clients know to refresh.
func OptionalAuth(cfg config.JWTConfig, verifier session.Checker, logg *logger.Logger) func(http.Handler) http.Handler {
	return authenticate(cfg, verifier, logg, false)
}

func authenticate(cfg config.JWTConfig, verifier session.Checker, logg *logger.Logger, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, err := validators.BearerToken(r)
			if errors.Is(err, validators.ErrMissingToken) && !required {
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			id, err := identify(r, cfg, verifier, token)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}

			ctx = WithIdentity(ctx, id)
			if logg != nil {
				ctx = logg.WithFields(logg.WithUserID(ctx, id.UserID), map[string]any{"actor_role": id.Role})
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// identify verifies the token's signature, then asks the session store whether
// the shopper has since signed out.
func identify(r *http.Request, cfg config.JWTConfig, verifier session.Checker, token string) (Identity, error) {
	claims, err := pkgAuth.ParseAccessToken(cfg, token)
	if err != nil {
		return Identity{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	if claims.ID == "" {
		return Identity{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}
	if verifier != nil {
		live, err := verifier.HasSession(r.Context(), claims.ID)
		if err != nil {
			return Identity{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session")
		}
		if !live {
			return Identity{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "session unavailable")
		}
	}
	return Identity{
		UserID:   claims.UserID.String(),
		Role:     string(claims.Role),
		Email:    claims.Email,
		AccessID: claims.ID,
	}, nil
}

// RequireRole guards admin routes. It runs after Auth.
func RequireRole(role enums.UserRole, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if RoleFromContext(r.Context()) != string(role) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
