package paypal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/plutov/paypal/v4"

	"github.com/angelmondragon/audiophile-backend/pkg/config"
	"github.com/angelmondragon/audiophile-backend/pkg/logger"
)

var (
	errClientIDRequired     = errors.New("paypal client id is required")
	errClientSecretRequired = errors.New("paypal client secret is required")
	errInvalidPayPalEnv     = fmt.Errorf("paypal environment must be %q or %q", config.PayPalEnvSandbox, config.PayPalEnvLive)
)

// Client wraps the PayPal Orders API client plus env metadata.
type Client struct {
	api         *paypal.Client
	environment string
}

// NewClient builds the client and fetches the first OAuth token. Later
// tokens are refreshed by the SDK before they expire.
func NewClient(ctx context.Context, cfg config.PayPalConfig, logg *logger.Logger) (*Client, error) {
	env := cfg.Environment()
	base, err := baseURL(env)
	if err != nil {
		return nil, err
	}
	clientID := strings.TrimSpace(cfg.ClientID)
	if clientID == "" {
		return nil, errClientIDRequired
	}
	secret := strings.TrimSpace(cfg.ClientSecret)
	if secret == "" {
		return nil, errClientSecretRequired
	}

	api, err := paypal.NewClient(clientID, secret, base)
	if err != nil {
		return nil, fmt.Errorf("creating paypal client: %w", err)
	}
	if _, err := api.GetAccessToken(ctx); err != nil {
		return nil, fmt.Errorf("fetching paypal access token: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("paypal client initialized (%s)", env))
	}
	return &Client{api: api, environment: env}, nil
}

// API returns the underlying PayPal client.
func (c *Client) API() *paypal.Client {
	if c == nil {
		return nil
	}
	return c.api
}

// Environment reports sandbox or live.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

func baseURL(env string) (string, error) {
	switch env {
	case config.PayPalEnvSandbox:
		return paypal.APIBaseSandBox, nil
	case config.PayPalEnvLive:
		return paypal.APIBaseLive, nil
	default:
		return "", errInvalidPayPalEnv
	}
}
