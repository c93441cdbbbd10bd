package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/audiophile-backend/api/responses"
	pkgerrors "github.com/angelmondragon/audiophile-backend/pkg/errors"
)

func signInRequest(email, addr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"`+email+`","password":"secret"}`))
	req.RemoteAddr = addr
	return req
}

func TestThrottleLeavesBodyForHandler(t *testing.T) {
	store := newFakeRateStore()
	policy := ThrottlePolicy{Name: "login", Window: time.Minute, PerClient: 2, PerAccount: 2}

	var body string
	handler := Throttle(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		body = string(raw)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signInRequest("Tester@Example.com ", "1.2.3.4:5678"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, `"email":"Tester@Example.com "`)
	assert.Equal(t, int64(1), store.counts["login:ip:1.2.3.4"])
	assert.Equal(t, int64(1), store.counts["login:email:"+sha256Hex("tester@example.com")])
}

func TestThrottleBlocksRepeatedEmailAcrossAddresses(t *testing.T) {
	policy := ThrottlePolicy{Name: "login", Window: 90 * time.Second, PerAccount: 2}
	handler := Throttle(policy, newFakeRateStore(), nil)(okHandler())

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i, addr := range []string{"1.1.1.1:1", "2.2.2.2:2", "3.3.3.3:3"} {
		last = httptest.NewRecorder()
		email := "blocked@example.com"
		if i == 1 {
			email = "BLOCKED@example.com"
		}
		handler.ServeHTTP(last, signInRequest(email, addr))
		codes = append(codes, last.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "90", last.Header().Get("Retry-After"))

	var body responses.Failure
	require.NoError(t, json.Unmarshal(last.Body.Bytes(), &body))
	assert.Equal(t, string(pkgerrors.CodeRateLimit), body.Error.Code)
}

func TestThrottleBlocksBusyAddress(t *testing.T) {
	policy := ThrottlePolicy{Name: "register", Window: time.Minute, PerClient: 1}
	handler := Throttle(policy, newFakeRateStore(), nil)(okHandler())

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, signInRequest("a@example.com", "5.6.7.8:1234"))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, signInRequest("b@example.com", "5.6.7.8:4321"))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestThrottleSurfacesStoreOutage(t *testing.T) {
	store := newFakeRateStore()
	store.err = errors.New("redis down")
	policy := ThrottlePolicy{Name: "login", Window: time.Minute, PerClient: 5}

	rec := httptest.NewRecorder()
	Throttle(policy, store, nil)(okHandler()).ServeHTTP(rec, signInRequest("a@example.com", "1.2.3.4:1"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestThrottleInactivePolicyPassesThrough(t *testing.T) {
	store := newFakeRateStore()
	rec := httptest.NewRecorder()
	Throttle(ThrottlePolicy{Name: "login", PerClient: 1}, store, nil)(okHandler()).ServeHTTP(rec, signInRequest("a@example.com", "1.2.3.4:1"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, store.counts)
}

type fakeRateStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeRateStore() *fakeRateStore {
	return &fakeRateStore{counts: map[string]int64{}}
}

func (f *fakeRateStore) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, 0, f.err
	}
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}
