package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/audiophile-backend/api/responses"
	pkgerrors "github.com/angelmondragon/audiophile-backend/pkg/errors"
	"github.com/angelmondragon/audiophile-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/audiophile-backend/pkg/redis"
)

const (
	// IdempotencyKeyHeader carries the client-chosen key.
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotentReplayHeader marks a response served from a stored record.
	IdempotentReplayHeader = "Idempotent-Replayed"

	orderActionTTL   = 24 * time.Hour
	paymentActionTTL = 7 * 24 * time.Hour
)

// idempotentRoutes lists the order and payment actions whose responses are
// stored and replayed, keyed by "METHOD pattern". Responses stored here sit
// in Redis for the whole TTL, so routes whose body carries a credential
// (Stripe client secrets, auth tokens) must never be listed.
var idempotentRoutes = map[string]time.Duration{
	http.MethodPost + " /api/v1/checkout":                                 paymentActionTTL,
	http.MethodPost + " /api/v1/payments/paypal/orders/{orderId}":         paymentActionTTL,
	http.MethodPost + " /api/v1/payments/paypal/orders/{orderId}/capture": paymentActionTTL,
	http.MethodPost + " /api/v1/payments/stripe/complete":                 paymentActionTTL,
	http.MethodPost + " /api/v1/admin/orders/{orderId}/deliver":           orderActionTTL,
}

// storedResponse is what a completed action leaves behind.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
	RequestHash string `json:"request_hash"`
}

// Idempotency replays the stored response of an order or payment action when
// the same caller retries it with the same key and body. It must be mounted
// per route (chi's With) so the full route pattern is known; unlisted routes
// pass through untouched.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ttl, ok := idempotentTTL(r)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, IdempotencyKeyHeader+" header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			requestHash := fingerprint(body)
			key := store.IdempotencyKey(callerScope(r), clientKey)

			previous, err := loadStoredResponse(ctx, store, key)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
				return
			}
			if previous != nil {
				if previous.RequestHash != requestHash {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
					return
				}
				previous.replay(w)
				return
			}

			var sent bytes.Buffer
			capture := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			capture.Tee(&sent)
			next.ServeHTTP(capture, r)

			status := capture.Status()
			if status == 0 {
				status = http.StatusOK
			}
			// Server failures stay retryable.
			if status >= http.StatusInternalServerError {
				return
			}

			record := storedResponse{
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        sent.Bytes(),
				RequestHash: requestHash,
			}
			payload, err := json.Marshal(record)
			if err != nil {
				logError(ctx, logg, "idempotency.encode_failed", err)
				return
			}
			if _, err := store.SetNX(ctx, key, string(payload), ttl); err != nil {
				logError(ctx, logg, "idempotency.store_failed", err)
			}
		})
	}
}

func idempotentTTL(r *http.Request) (time.Duration, bool) {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return 0, false
	}
	ttl, ok := idempotentRoutes[r.Method+" "+rctx.RoutePattern()]
	return ttl, ok
}

// callerScope keeps keys from different shoppers, or the same shopper on
// different orders, from colliding.
func callerScope(r *http.Request) string {
	caller := UserIDFromContext(r.Context())
	if caller == "" {
		caller = "session:" + SessionCartIDFromContext(r.Context())
	}
	return caller + "|" + r.Method + "|" + r.URL.Path
}

func loadStoredResponse(ctx context.Context, store pkgredis.IdempotencyStore, key string) (*storedResponse, error) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var record storedResponse
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *storedResponse) replay(w http.ResponseWriter) {
	if s.ContentType != "" {
		w.Header().Set("Content-Type", s.ContentType)
	}
	w.Header().Set(IdempotentReplayHeader, "true")
	w.WriteHeader(s.Status)
	_, _ = w.Write(s.Body)
}

func fingerprint(body []byte) string {
	sum := sha256.Sum256(bytes.TrimSpace(body))
	return hex.EncodeToString(sum[:])
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
