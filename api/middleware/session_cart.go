package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/audiophile-backend/pkg/config"
	"github.com/angelmondragon/audiophile-backend/pkg/logger"
)

// SessionCart makes sure every request carries an anonymous cart session id.
// A new id is issued as an httpOnly cookie when the request has none.
func SessionCart(cfg config.SessionConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := ""
			if cookie, err := r.Cookie(cfg.CartCookieName); err == nil {
				sessionID = strings.TrimSpace(cookie.Value)
			}
			if _, err := uuid.Parse(sessionID); err != nil {
				sessionID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     cfg.CartCookieName,
					Value:    sessionID,
					Path:     "/",
					MaxAge:   int(cfg.CartCookieTTL.Seconds()),
					HttpOnly: true,
					Secure:   cfg.CartCookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := WithSessionCartID(r.Context(), sessionID)
			if logg != nil {
				ctx = logg.WithField(ctx, "session_cart_id", sessionID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
