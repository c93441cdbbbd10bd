package redis

import "strings"

// Every key lives under "aud:" so the storefront can share a Redis
// instance.
const keyNamespace = "aud"

const (
	idempotencySpace = "idempotency"
	throttleSpace    = "rate_limit"
	cartSpace        = "cart"
	sessionSpace     = "session"
	maintenanceSpace = "maintenance"
)

// IdempotencyKey names a stored action response or a processed webhook
// event.
func (c *Client) IdempotencyKey(scope, id string) string {
	return key(idempotencySpace, scope, id)
}

// RateLimitKey names a fixed-window auth throttle counter.
func (c *Client) RateLimitKey(scope string) string {
	return key(throttleSpace, scope)
}

// CartCountKey names the cached badge count of one cart owner.
func (c *Client) CartCountKey(ownerKey string) string {
	return key(cartSpace, "count", ownerKey)
}

// AccessSessionKey names the refresh record behind one access token.
func (c *Client) AccessSessionKey(accessID string) string {
	return key(sessionSpace, "access", accessID)
}

// MaintenanceLeaseKey names the lease cron workers of one environment
// compete for.
func (c *Client) MaintenanceLeaseKey(env string) string {
	if strings.TrimSpace(env) == "" {
		env = "local"
	}
	return key(maintenanceSpace, "lease", env)
}

func key(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
