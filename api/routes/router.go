package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/audiophile-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/audiophile-backend/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/audiophile-backend/api/controllers/orders"
	paymentcontrollers "github.com/angelmondragon/audiophile-backend/api/controllers/payments"
	webhookcontrollers "github.com/angelmondragon/audiophile-backend/api/controllers/webhooks"
	"github.com/angelmondragon/audiophile-backend/api/middleware"
	"github.com/angelmondragon/audiophile-backend/internal/auth"
	"github.com/angelmondragon/audiophile-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/audiophile-backend/internal/checkout"
	"github.com/angelmondragon/audiophile-backend/internal/orders"
	"github.com/angelmondragon/audiophile-backend/internal/payments"
	stripewebhook "github.com/angelmondragon/audiophile-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/audiophile-backend/pkg/auth/session"
	"github.com/angelmondragon/audiophile-backend/pkg/config"
	"github.com/angelmondragon/audiophile-backend/pkg/enums"
	"github.com/angelmondragon/audiophile-backend/pkg/logger"
	"github.com/angelmondragon/audiophile-backend/pkg/redis"
)

// signingSecretSource exposes the Stripe webhook secret.
type signingSecretSource interface {
	SigningSecret() string
}

// rateLimiter is the Redis surface used by the auth throttles.
type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Dependencies is everything the router mounts. Nil services answer with
// an internal error instead of panicking.
type Dependencies struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry *prometheus.Registry

	DB          controllers.Pinger
	Redis       controllers.Pinger
	RateLimits  rateLimiter
	Idempotency redis.IdempotencyStore
	Sessions    session.Checker

	Auth     auth.Service
	Carts    cart.Service
	Checkout checkoutsvc.Service
	Orders   orders.Service
	Payments payments.Service

	StripeWebhook       webhookcontrollers.StripeWebhookService
	StripeWebhookLedger *stripewebhook.EventLedger
	StripeSigning       signingSecretSource
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		chimw.RealIP,
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
	)

	loginPolicy := middleware.ThrottlePolicy{
		Name:       "login",
		Window:     cfg.RateLimit.LoginWindow,
		PerClient:  int64(cfg.RateLimit.LoginIPLimit),
		PerAccount: int64(cfg.RateLimit.LoginEmailLimit),
	}
	registerPolicy := middleware.ThrottlePolicy{
		Name:       "register",
		Window:     cfg.RateLimit.RegisterWindow,
		PerClient:  int64(cfg.RateLimit.RegisterIPLimit),
		PerAccount: int64(cfg.RateLimit.RegisterEmailLimit),
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})

	if deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{Registry: deps.Registry}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhook, deps.StripeSigning, deps.StripeWebhookLedger, logg))
	})

	requireAuth := middleware.Auth(cfg.JWT, deps.Sessions, logg)
	optionalAuth := middleware.OptionalAuth(cfg.JWT, deps.Sessions, logg)
	idempotent := middleware.Idempotency(deps.Idempotency, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SessionCart(cfg.Session, logg))

		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.Throttle(loginPolicy, deps.RateLimits, logg)).Post("/login", controllers.AuthLogin(deps.Auth, logg))
			r.With(middleware.Throttle(registerPolicy, deps.RateLimits, logg)).Post("/register", controllers.AuthRegister(deps.Auth, logg))
			r.With(middleware.Throttle(registerPolicy, deps.RateLimits, logg)).Post("/email-exists", controllers.AuthEmailExists(deps.Auth, logg))
			r.Post("/refresh", controllers.AuthRefresh(deps.Auth, logg))
			r.With(requireAuth).Post("/logout", controllers.AuthLogout(deps.Auth, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(optionalAuth)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartcontrollers.CartFetch(deps.Carts, logg))
				r.Get("/count", cartcontrollers.CartCount(deps.Carts, logg))
				r.Post("/items", cartcontrollers.CartAddItem(deps.Carts, logg))
				r.Patch("/items/{productId}", cartcontrollers.CartUpdateItem(deps.Carts, logg))
				r.Delete("/", cartcontrollers.CartClear(deps.Carts, logg))
			})

			r.Get("/checkout", controllers.CheckoutEntry(deps.Checkout, logg))
			r.Post("/checkout/finish", controllers.CheckoutFinish(deps.Checkout, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.With(idempotent).Post("/checkout", controllers.CheckoutSubmit(deps.Checkout, logg))
			r.Get("/checkout/confirmation/{orderId}", controllers.CheckoutConfirmation(deps.Checkout, logg))

			r.Route("/users/me", func(r chi.Router) {
				r.Get("/", controllers.AccountProfile(deps.Auth, logg))
				r.Patch("/", controllers.AccountUpdateProfile(deps.Auth, logg))
				r.Put("/password", controllers.AccountChangePassword(deps.Auth, logg))
				r.Delete("/", controllers.AccountDelete(deps.Auth, logg))
			})

			r.Get("/orders", ordercontrollers.List(deps.Orders, logg))
			r.Get("/orders/{orderId}", ordercontrollers.Detail(deps.Orders, logg))

			r.Route("/payments", func(r chi.Router) {
				r.With(idempotent).Post("/paypal/orders/{orderId}", paymentcontrollers.PayPalCreateOrder(deps.Payments, logg))
				r.With(idempotent).Post("/paypal/orders/{orderId}/capture", paymentcontrollers.PayPalCapture(deps.Payments, logg))
				// The response carries the client secret, so it is never stored for replay.
				// Repeating it only refreshes the pending intent.
				r.Post("/stripe/orders/{orderId}/intent", paymentcontrollers.StripeCreateIntent(deps.Payments, logg))
				r.With(idempotent).Post("/stripe/complete", paymentcontrollers.StripeComplete(deps.Payments, logg))
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(enums.UserRoleAdmin, logg))
				r.With(idempotent).Post("/orders/{orderId}/deliver", ordercontrollers.AdminDeliver(deps.Orders, logg))
			})
		})
	})

	return r
}
