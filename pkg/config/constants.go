package config

const (
	EnvPrefix = "AUDIOPHILE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	PayPalEnvSandbox = "sandbox"
	PayPalEnvLive    = "live"

	EnvAppEnv = "AUDIOPHILE_APP_ENV"
	EnvPort   = "AUDIOPHILE_APP_PORT"

	EnvDBDSN  = "AUDIOPHILE_DB_DSN"
	EnvDBHost = "AUDIOPHILE_DB_HOST"
	EnvDBUser = "AUDIOPHILE_DB_USER"
	EnvDBName = "AUDIOPHILE_DB_NAME"

	EnvRedisURL = "AUDIOPHILE_REDIS_URL"

	EnvJWTSecret              = "AUDIOPHILE_JWT_SECRET"
	EnvJWTIssuer              = "AUDIOPHILE_JWT_ISSUER"
	EnvJWTExpMins             = "AUDIOPHILE_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "AUDIOPHILE_REFRESH_TOKEN_TTL_MINUTES"

	EnvSessionCartCookieTTL = "AUDIOPHILE_SESSION_CART_COOKIE_TTL"

	EnvPricingShippingCents = "AUDIOPHILE_PRICING_SHIPPING_CENTS"
	EnvPricingTaxRate       = "AUDIOPHILE_PRICING_TAX_RATE"

	EnvPayPalEnv = "AUDIOPHILE_PAYPAL_ENV"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
