package stripe

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/audiophile-backend/pkg/config"
	"github.com/angelmondragon/audiophile-backend/pkg/logger"
)

func TestNewClientMatchesKeyToMode(t *testing.T) {
	ctx := context.Background()

	client, err := NewClient(ctx, config.StripeConfig{APIKey: "sk_test_123", Secret: "whsec_1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "test", client.Environment())
	assert.Equal(t, "whsec_1", client.SigningSecret())
	require.NotNil(t, client.API())
	assert.NotNil(t, client.API().V1PaymentIntents)

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_live_123", Secret: "whsec_1", Env: "test"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sk_test_")

	client, err = NewClient(ctx, config.StripeConfig{APIKey: "rk_live_123", Secret: "whsec_1", Env: " LIVE "}, nil)
	require.NoError(t, err)
	assert.Equal(t, "live", client.Environment())
}

func TestNewClientRequiresCredentials(t *testing.T) {
	ctx := context.Background()
	for name, cfg := range map[string]config.StripeConfig{
		"missing key":    {Secret: "whsec_1"},
		"missing secret": {APIKey: "sk_test_1"},
		"unknown mode":   {APIKey: "sk_test_1", Secret: "whsec_1", Env: "staging"},
	} {
		_, err := NewClient(ctx, cfg, nil)
		assert.Error(t, err, name)
	}
}

func TestNewClientLogsMode(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "stripe-test", Output: buf})

	_, err := NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_1", Secret: "whsec_1", Timeout: 5 * time.Second}, logg)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"stripe_mode":"test"`)
	assert.Contains(t, buf.String(), `"stripe_timeout":"5s"`)
	assert.NotContains(t, buf.String(), "sk_test_1")
}

func TestSDKLoggerMapsLevels(t *testing.T) {
	buf := &bytes.Buffer{}
	sdk := &sdkLogger{logg: logger.New(logger.Options{ServiceName: "stripe-test", Output: buf})}

	sdk.Infof("Requesting %s", "/v1/payment_intents")
	assert.Empty(t, buf.String(), "sdk info is debug noise")

	sdk.Errorf("Request failed with error: %s", "card_declined")
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), "card_declined")
}

func TestNilClientAccessors(t *testing.T) {
	var c *Client
	assert.Nil(t, c.API())
	assert.Empty(t, c.Environment())
	assert.Empty(t, c.SigningSecret())
}
