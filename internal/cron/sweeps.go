package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/audiophile-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultParkedAttempts  = 10
	defaultStaleCartAge    = 30 * 24 * time.Hour
)

// sweep deletes rows older than maxAge in one transaction. Every
// maintenance job is a sweep over a different table.
type sweep struct {
	name   string
	logg   *logger.Logger
	db     txRunner
	maxAge time.Duration
	fields map[string]any
	remove func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
	now    func() time.Time
}

func (s *sweep) Name() string { return s.name }

func (s *sweep) Run(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.maxAge)
	var removed int64
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := s.remove(ctx, tx, cutoff)
		removed = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", s.name, err)
	}

	fields := map[string]any{"job": s.name, "cutoff": cutoff, "rows_removed": removed}
	for k, v := range s.fields {
		fields[k] = v
	}
	s.logg.Debug(s.logg.WithFields(ctx, fields), "cron.sweep_applied")
	return removed, nil
}

func requireSweepDeps(logg *logger.Logger, db txRunner, repo any) error {
	var err error
	if logg == nil {
		err = multierr.Append(err, errors.New("logger required"))
	}
	if db == nil {
		err = multierr.Append(err, errors.New("db runner required"))
	}
	if repo == nil {
		err = multierr.Append(err, errors.New("repository required"))
	}
	return err
}

type OutboxRetentionJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Repository    outboxRetentionRepo
	RetentionDays int
	// ParkedAttempts is the relay's max attempt count. Rows at or above it
	// will never be retried and are pruned alongside published ones.
	ParkedAttempts int
}

type outboxRetentionRepo interface {
	Prune(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

// NewOutboxRetentionJob prunes published and parked order events.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if err := requireSweepDeps(params.Logger, params.DB, params.Repository); err != nil {
		return nil, fmt.Errorf("outbox retention: %w", err)
	}
	retention := defaultOutboxRetention
	if params.RetentionDays > 0 {
		retention = time.Duration(params.RetentionDays) * 24 * time.Hour
	}
	parked := params.ParkedAttempts
	if parked <= 0 {
		parked = defaultParkedAttempts
	}
	return &sweep{
		name:   "outbox-retention",
		logg:   params.Logger,
		db:     params.DB,
		maxAge: retention,
		fields: map[string]any{"parked_attempts": parked},
		remove: func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
			return params.Repository.Prune(ctx, tx, cutoff, parked)
		},
		now: time.Now,
	}, nil
}

type StaleCartJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository staleCartRepo
	// MaxAge should match the session cart cookie lifetime; older carts
	// can no longer be reached by their browser.
	MaxAge time.Duration
}

type staleCartRepo interface {
	DeleteAnonymousBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// NewStaleCartJob drops anonymous carts whose cookie has expired.
func NewStaleCartJob(params StaleCartJobParams) (Job, error) {
	if err := requireSweepDeps(params.Logger, params.DB, params.Repository); err != nil {
		return nil, fmt.Errorf("stale carts: %w", err)
	}
	maxAge := params.MaxAge
	if maxAge <= 0 {
		maxAge = defaultStaleCartAge
	}
	return &sweep{
		name:   "stale-session-carts",
		logg:   params.Logger,
		db:     params.DB,
		maxAge: maxAge,
		remove: params.Repository.DeleteAnonymousBefore,
		now:    time.Now,
	}, nil
}
