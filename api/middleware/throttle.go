package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/audiophile-backend/api/responses"
	pkgerrors "github.com/angelmondragon/audiophile-backend/pkg/errors"
	"github.com/angelmondragon/audiophile-backend/pkg/logger"
)

type rateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// ThrottlePolicy caps attempts against an account endpoint within a fixed
// window, counted per client address and per account email. A zero limit
// turns that count off.
type ThrottlePolicy struct {
	Name       string
	Window     time.Duration
	PerClient  int64
	PerAccount int64
}

func (p ThrottlePolicy) active() bool {
	return p.Window > 0 && (p.PerClient > 0 || p.PerAccount > 0)
}

// counter is one fixed-window count a request must stay under. logAs is what
// the block is logged with; emails only ever appear hashed.
type counter struct {
	dimension string
	scope     string
	limit     int64
	logAs     string
}

func (p ThrottlePolicy) counters(r *http.Request) ([]counter, error) {
	name := strings.ToLower(strings.TrimSpace(p.Name))
	if name == "" {
		name = "account"
	}
	var out []counter
	if ip := clientIP(r); p.PerClient > 0 && ip != "" {
		out = append(out, counter{dimension: "ip", scope: name + ":ip:" + ip, limit: p.PerClient, logAs: ip})
	}
	if p.PerAccount > 0 {
		email, err := peekEmail(r)
		if err != nil {
			return nil, err
		}
		if email != "" {
			hash := sha256Hex(email)
			out = append(out, counter{dimension: "email", scope: name + ":email:" + hash, limit: p.PerAccount, logAs: hash})
		}
	}
	return out, nil
}

// Throttle applies policy in front of sign-in, registration and email lookup
// so credentials cannot be guessed or enumerated at speed. Blocked callers
// get a 429 with Retry-After set to the window length.
func Throttle(policy ThrottlePolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.active() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			counters, err := policy.counters(r)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			for _, c := range counters {
				allowed, attempts, err := store.FixedWindowAllow(ctx, c.scope, c.limit, policy.Window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if !allowed {
					if logg != nil {
						logg.Warn(logg.WithFields(ctx, map[string]any{
							"policy":           policy.Name,
							"dimension":        c.dimension,
							"key":              c.logAs,
							"attempts":         attempts,
							"limit":            c.limit,
							"retry_after_secs": retryAfter(policy.Window),
						}), "auth.throttled")
					}
					w.Header().Set(retryAfterHeader, strconv.Itoa(retryAfter(policy.Window)))
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later"))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfter(window time.Duration) int {
	return int(math.Ceil(window.Seconds()))
}

// clientIP reads the peer address. Proxy headers are resolved earlier by
// chi's RealIP middleware.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

// peekEmail reads the email field of a JSON body and puts the body back for
// the handler.
func peekEmail(r *http.Request) (string, error) {
	if r.Body == nil {
		return "", nil
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return "", err
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))

	var body struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return "", nil
	}
	return strings.ToLower(strings.TrimSpace(body.Email)), nil
}

func sha256Hex(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
