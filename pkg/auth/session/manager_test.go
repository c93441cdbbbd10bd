package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/audiophile-backend/pkg/config"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]string)}
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return val, nil
}

func (m *memoryStore) GetDel(ctx context.Context, key string) (string, error) {
	val, err := m.Get(ctx, key)
	if err == nil {
		_ = m.Del(ctx, key)
	}
	return val, err
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryStore) AccessSessionKey(accessID string) string {
	return "sess:" + accessID
}

func newTestManager(t *testing.T, store *memoryStore) *Manager {
	t.Helper()
	manager, err := NewManager(store, config.JWTConfig{ExpirationMinutes: 60, RefreshTokenTTLMinutes: 120})
	require.NoError(t, err)
	return manager
}

func TestNewManagerValidatesTTL(t *testing.T) {
	_, err := NewManager(newMemoryStore(), config.JWTConfig{ExpirationMinutes: 60, RefreshTokenTTLMinutes: 30})
	assert.Error(t, err)

	_, err = NewManager(nil, config.JWTConfig{ExpirationMinutes: 60, RefreshTokenTTLMinutes: 120})
	assert.Error(t, err)
}

func storedRecord(t *testing.T, store *memoryStore, accessID string) record {
	t.Helper()
	raw, ok := store.data["sess:"+accessID]
	require.True(t, ok, "no session for %s", accessID)
	var rec record
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	return rec
}

func TestGenerateStoresDigestNotToken(t *testing.T) {
	store := newMemoryStore()
	manager := newTestManager(t, store)
	shopper := uuid.New()

	token, err := manager.Generate(context.Background(), "access-1", shopper)
	require.NoError(t, err)
	assert.NotContains(t, store.data["sess:access-1"], token)

	rec := storedRecord(t, store, "access-1")
	assert.Equal(t, shopper, rec.UserID)
	assert.Equal(t, digest(token), rec.RefreshHash)
	assert.False(t, rec.SignedInAt.IsZero())

	_, err = manager.Generate(context.Background(), "access-2", uuid.Nil)
	assert.Error(t, err)
	_, err = manager.Generate(context.Background(), " ", shopper)
	assert.Error(t, err)
}

func TestRotateCarriesTheSessionForward(t *testing.T) {
	store := newMemoryStore()
	manager := newTestManager(t, store)
	ctx := context.Background()
	shopper := uuid.New()

	token, err := manager.Generate(ctx, "access-1", shopper)
	require.NoError(t, err)
	signedIn := storedRecord(t, store, "access-1").SignedInAt

	nextID, nextToken, err := manager.Rotate(ctx, "access-1", shopper, token)
	require.NoError(t, err)
	assert.NotContains(t, store.data, "sess:access-1")
	rec := storedRecord(t, store, nextID)
	assert.Equal(t, digest(nextToken), rec.RefreshHash)
	assert.Equal(t, signedIn, rec.SignedInAt)
	assert.Equal(t, 1, rec.Rotations)

	_, _, err = manager.Rotate(ctx, "access-1", shopper, token)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRotateRejectionEndsTheSession(t *testing.T) {
	ctx := context.Background()
	shopper := uuid.New()
	cases := map[string]func(token string) (uuid.UUID, string){
		"wrong token":   func(string) (uuid.UUID, string) { return shopper, "guess" },
		"other shopper": func(token string) (uuid.UUID, string) { return uuid.New(), token },
	}
	for name, attempt := range cases {
		t.Run(name, func(t *testing.T) {
			store := newMemoryStore()
			manager := newTestManager(t, store)
			token, err := manager.Generate(ctx, "access-1", shopper)
			require.NoError(t, err)

			userID, provided := attempt(token)
			_, _, err = manager.Rotate(ctx, "access-1", userID, provided)
			assert.ErrorIs(t, err, ErrInvalidRefreshToken)

			ok, err := manager.HasSession(ctx, "access-1")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}

	manager := newTestManager(t, newMemoryStore())
	_, _, err := manager.Rotate(ctx, "", shopper, "x")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	_, _, err = manager.Rotate(ctx, "missing", shopper, "x")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRevokeEndsSession(t *testing.T) {
	manager := newTestManager(t, newMemoryStore())
	ctx := context.Background()

	_, err := manager.Generate(ctx, "access-9", uuid.New())
	require.NoError(t, err)
	ok, err := manager.HasSession(ctx, "access-9")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, manager.Revoke(ctx, "access-9"))
	ok, err = manager.HasSession(ctx, "access-9")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, manager.Revoke(ctx, "access-9"))
	assert.Error(t, manager.Revoke(ctx, " "))
	_, err = manager.HasSession(ctx, "")
	assert.Error(t, err)
}
