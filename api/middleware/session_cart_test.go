package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/audiophile-backend/pkg/config"
)

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{CartCookieName: "sessionCartId", CartCookieTTL: 720 * time.Hour}
}

func TestSessionCartIssuesCookieWhenMissing(t *testing.T) {
	var seen string
	handler := SessionCart(testSessionConfig(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionCartIDFromContext(r.Context())
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))

	cookies := resp.Result().Cookies()
	require.Len(t, cookies, 1)
	cookie := cookies[0]
	assert.Equal(t, "sessionCartId", cookie.Name)
	assert.Equal(t, seen, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, 30*24*60*60, cookie.MaxAge)
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
}

func TestSessionCartReusesExistingCookie(t *testing.T) {
	existing := uuid.NewString()
	var seen string
	handler := SessionCart(testSessionConfig(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionCartIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.AddCookie(&http.Cookie{Name: "sessionCartId", Value: existing})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	assert.Equal(t, existing, seen)
	assert.Empty(t, resp.Result().Cookies())
}

func TestSessionCartReplacesMalformedCookie(t *testing.T) {
	var seen string
	handler := SessionCart(testSessionConfig(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionCartIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.AddCookie(&http.Cookie{Name: "sessionCartId", Value: "not-a-session"})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	assert.NotEqual(t, "not-a-session", seen)
	require.Len(t, resp.Result().Cookies(), 1)
}
