package cron

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// Lease keeps two cron workers of one environment from sweeping at once.
type Lease interface {
	Claim(ctx context.Context) (bool, error)
	Yield(ctx context.Context) error
}

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, key, token string) (bool, error)
}

// RedisLease is a Lease held as a Redis key that expires on its own if the
// worker dies mid-cycle.
type RedisLease struct {
	store  leaseStore
	key    string
	ttl    time.Duration
	holder string
	token  string
}

// NewRedisLease builds a lease on key. ttl must outlast a full cycle.
func NewRedisLease(store leaseStore, key string, ttl time.Duration) (*RedisLease, error) {
	if store == nil {
		return nil, errors.New("redis store required for maintenance lease")
	}
	if key == "" {
		return nil, errors.New("lease key required")
	}
	if ttl <= 0 {
		return nil, errors.New("lease ttl must be positive")
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown-host"
	}
	return &RedisLease{
		store:  store,
		key:    key,
		ttl:    ttl,
		holder: fmt.Sprintf("%s/%d", host, os.Getpid()),
	}, nil
}

// Claim takes the lease when it is free. The stored token names this
// process so an operator can see who holds it.
func (l *RedisLease) Claim(ctx context.Context) (bool, error) {
	token := l.holder + "/" + uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", l.key, err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Yield hands the lease back if this worker still holds it.
func (l *RedisLease) Yield(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""
	if _, err := l.store.ReleaseLease(ctx, l.key, token); err != nil {
		return fmt.Errorf("yield %s: %w", l.key, err)
	}
	return nil
}
