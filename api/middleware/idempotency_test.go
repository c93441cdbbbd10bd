package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/audiophile-backend/api/responses"
	pkgerrors "github.com/angelmondragon/audiophile-backend/pkg/errors"
)

type memoryIdempotencyStore map[string]string

func (m memoryIdempotencyStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := m[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m memoryIdempotencyStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m[key]; ok {
		return false, nil
	}
	m[key], _ = value.(string)
	return true, nil
}

func (m memoryIdempotencyStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m, key)
	}
	return nil
}

func (m memoryIdempotencyStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("test:%s:%s", scope, id)
}

// action builds a request as chi would see it after matching pattern.
func action(method, url, pattern, key, body string) *http.Request {
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func checkoutSubmit(key, body string) *http.Request {
	return action(http.MethodPost, "/api/v1/checkout", "/api/v1/checkout", key, body)
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIdempotentTTLSelection(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		pattern string
		want    time.Duration
		ok      bool
	}{
		{"checkout submit", http.MethodPost, "/api/v1/checkout", paymentActionTTL, true},
		{"paypal create", http.MethodPost, "/api/v1/payments/paypal/orders/{orderId}", paymentActionTTL, true},
		{"paypal capture", http.MethodPost, "/api/v1/payments/paypal/orders/{orderId}/capture", paymentActionTTL, true},
		{"stripe complete", http.MethodPost, "/api/v1/payments/stripe/complete", paymentActionTTL, true},
		{"admin deliver", http.MethodPost, "/api/v1/admin/orders/{orderId}/deliver", orderActionTTL, true},
		{"stripe intent carries a client secret", http.MethodPost, "/api/v1/payments/stripe/orders/{orderId}/intent", 0, false},
		{"register carries tokens", http.MethodPost, "/api/v1/auth/register", 0, false},
		{"checkout entry", http.MethodGet, "/api/v1/checkout", 0, false},
		{"login", http.MethodPost, "/api/v1/auth/login", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ttl, ok := idempotentTTL(action(tt.method, "/", tt.pattern, "", ""))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, ttl)
		})
	}
}

func TestIdempotencyNeverStoresClientSecrets(t *testing.T) {
	store := memoryIdempotencyStore{}
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"data":{"clientSecret":"pi_1_secret_x"}}`)
	}))

	rec := serve(handler, action(http.MethodPost, "/api/v1/payments/stripe/orders/1/intent", "/api/v1/payments/stripe/orders/{orderId}/intent", "abc", `{}`))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, store)
}

func TestIdempotencyRequiresKeyOnListedActions(t *testing.T) {
	called := false
	handler := Idempotency(memoryIdempotencyStore{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := serve(handler, checkoutSubmit("", `{"paymentMethod":"paypal"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	calls := 0
	handler := Idempotency(memoryIdempotencyStore{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))

	first := serve(handler, checkoutSubmit("abc", `{"paymentMethod":"paypal"}`))
	require.Equal(t, http.StatusAccepted, first.Code)
	assert.Empty(t, first.Header().Get(IdempotentReplayHeader))

	again := serve(handler, checkoutSubmit("abc", `{"paymentMethod":"paypal"}`+"\n"))
	assert.Equal(t, http.StatusAccepted, again.Code)
	assert.Equal(t, "application/json", again.Header().Get("Content-Type"))
	assert.Equal(t, `{"ok":true}`, again.Body.String())
	assert.Equal(t, "true", again.Header().Get(IdempotentReplayHeader))
	assert.Equal(t, 1, calls)
}

func TestIdempotencyRejectsKeyReuseWithNewBody(t *testing.T) {
	handler := Idempotency(memoryIdempotencyStore{}, nil)(okHandler())

	serve(handler, checkoutSubmit("xyz", `{"paymentMethod":"paypal"}`))
	rec := serve(handler, checkoutSubmit("xyz", `{"paymentMethod":"stripe"}`))

	require.Equal(t, http.StatusConflict, rec.Code)
	var body responses.Failure
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(pkgerrors.CodeIdempotency), body.Error.Code)
}

func TestIdempotencyKeysAreScopedPerShopper(t *testing.T) {
	calls := 0
	handler := Idempotency(memoryIdempotencyStore{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	for _, user := range []string{"user-1", "user-2"} {
		req := checkoutSubmit("same-key", `{}`)
		rec := serve(handler, req.WithContext(WithUserID(req.Context(), user)))
		assert.Empty(t, rec.Header().Get(IdempotentReplayHeader))
	}
	assert.Equal(t, 2, calls)
}

func TestIdempotencyLeavesServerErrorsRetryable(t *testing.T) {
	calls := 0
	handler := Idempotency(memoryIdempotencyStore{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	for range 2 {
		serve(handler, action(http.MethodPost, "/api/v1/payments/stripe/complete", "/api/v1/payments/stripe/complete", "retry", `{"paymentIntentId":"pi_1"}`))
	}
	assert.Equal(t, 2, calls)
}
