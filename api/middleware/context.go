package middleware

import "context"

type contextKey int

const (
	identityKey contextKey = iota
	sessionCartKey
)

// Identity is the signed-in shopper or admin behind a request, taken from a
// verified access token.
type Identity struct {
	UserID   string
	Role     string
	Email    string
	AccessID string
}

// IdentityFromContext returns the caller set by Auth, or the zero Identity
// for anonymous requests.
func IdentityFromContext(ctx context.Context) Identity {
	if ctx == nil {
		return Identity{}
	}
	id, _ := ctx.Value(identityKey).(Identity)
	return id
}

// WithIdentity attaches the caller to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityKey, id)
}

func amendIdentity(ctx context.Context, change func(*Identity)) context.Context {
	id := IdentityFromContext(ctx)
	change(&id)
	return WithIdentity(ctx, id)
}

func UserIDFromContext(ctx context.Context) string { return IdentityFromContext(ctx).UserID }
func RoleFromContext(ctx context.Context) string   { return IdentityFromContext(ctx).Role }
func EmailFromContext(ctx context.Context) string  { return IdentityFromContext(ctx).Email }

// AccessIDFromContext returns the session id (jti) of the bearer token.
func AccessIDFromContext(ctx context.Context) string { return IdentityFromContext(ctx).AccessID }

func WithUserID(ctx context.Context, userID string) context.Context {
	return amendIdentity(ctx, func(id *Identity) { id.UserID = userID })
}

func WithRole(ctx context.Context, role string) context.Context {
	return amendIdentity(ctx, func(id *Identity) { id.Role = role })
}

func WithAccessID(ctx context.Context, accessID string) context.Context {
	return amendIdentity(ctx, func(id *Identity) { id.AccessID = accessID })
}

// SessionCartIDFromContext returns the anonymous cart session id set by
// SessionCart.
func SessionCartIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(sessionCartKey).(string)
	return v
}

func WithSessionCartID(ctx context.Context, sessionID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, sessionCartKey, sessionID)
}
