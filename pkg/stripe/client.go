package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/audiophile-backend/pkg/config"
	"github.com/angelmondragon/audiophile-backend/pkg/logger"
)

const defaultTimeout = 20 * time.Second

// keyPrefixes lists the secret and restricted key prefixes each Stripe mode
// accepts, so a live key can never run against the test storefront.
var keyPrefixes = map[string][]string{
	"test": {"sk_test_", "rk_test_"},
	"live": {"sk_live_", "rk_live_"},
}

// Client carries the PaymentIntents API used at checkout and the secret that
// verifies webhook deliveries.
type Client struct {
	api           *stripe.Client
	mode          string
	signingSecret string
}

// NewClient validates the Stripe settings and builds an API client whose
// HTTP calls are bounded by cfg.Timeout and retried cfg.MaxRetries times.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode := cfg.Environment()
	apiKey := strings.TrimSpace(cfg.APIKey)
	signingSecret := strings.TrimSpace(cfg.Secret)
	if err := checkCredentials(mode, apiKey, signingSecret); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(max(cfg.MaxRetries, 0)),
	}
	if logg != nil {
		backendCfg.LeveledLogger = &sdkLogger{logg: logg}
	}
	api := stripe.NewClient(apiKey, stripe.WithBackends(stripe.NewBackendsWithConfig(backendCfg)))

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"stripe_mode": mode, "stripe_timeout": timeout.String()}), "stripe client ready")
	}
	return &Client{api: api, mode: mode, signingSecret: signingSecret}, nil
}

func checkCredentials(mode, apiKey, signingSecret string) error {
	prefixes, ok := keyPrefixes[mode]
	if !ok {
		return fmt.Errorf("stripe mode must be test or live, got %q", mode)
	}
	if apiKey == "" {
		return errors.New("AUDIOPHILE_STRIPE_API_KEY is required")
	}
	if signingSecret == "" {
		return errors.New("AUDIOPHILE_STRIPE_SECRET is required to verify webhooks")
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(apiKey, prefix) {
			return nil
		}
	}
	return fmt.Errorf("stripe %s mode needs a key starting with %s", mode, strings.Join(prefixes, " or "))
}

// API returns the SDK client the payment gateways call.
func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

// Environment reports "test" or "live".
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.mode
}

// SigningSecret returns the webhook endpoint secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// sdkLogger routes stripe-go's own request logging into the service log.
type sdkLogger struct {
	logg *logger.Logger
}

func (s *sdkLogger) Debugf(format string, v ...any) {
	s.logg.Debug(context.Background(), "stripe: "+fmt.Sprintf(format, v...))
}

func (s *sdkLogger) Infof(format string, v ...any) {
	s.logg.Debug(context.Background(), "stripe: "+fmt.Sprintf(format, v...))
}

func (s *sdkLogger) Warnf(format string, v ...any) {
	s.logg.Warn(context.Background(), "stripe: "+fmt.Sprintf(format, v...))
}

func (s *sdkLogger) Errorf(format string, v ...any) {
	s.logg.Error(context.Background(), "stripe request failed", fmt.Errorf(format, v...))
}
