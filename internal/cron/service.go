package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/audiophile-backend/pkg/logger"
	"github.com/angelmondragon/audiophile-backend/pkg/metrics"
)

const defaultInterval = 24 * time.Hour

// Job is one maintenance sweep. Run reports how many rows it removed.
type Job interface {
	Name() string
	Run(ctx context.Context) (int64, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Logger   *logger.Logger
	Jobs     []Job
	Lease    Lease
	Metrics  *metrics.MaintenanceMetrics
	Interval time.Duration
}

// Service sweeps published outbox rows and abandoned session carts. Only the
// worker holding the lease sweeps in a given cycle.
type Service struct {
	logg     *logger.Logger
	jobs     []Job
	lease    Lease
	metrics  *metrics.MaintenanceMetrics
	interval time.Duration
}

// CycleReport summarizes one cycle.
type CycleReport struct {
	// Skipped is set when another worker held the lease.
	Skipped bool
	Removed map[string]int64
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lease == nil {
		return nil, errors.New("maintenance lease required")
	}
	jobs := make([]Job, 0, len(params.Jobs))
	seen := map[string]bool{}
	for _, job := range params.Jobs {
		if job == nil {
			continue
		}
		if seen[job.Name()] {
			return nil, fmt.Errorf("duplicate maintenance job %q", job.Name())
		}
		seen[job.Name()] = true
		jobs = append(jobs, job)
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		jobs:     jobs,
		lease:    params.Lease,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

// Run sweeps immediately, then once per interval, until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logg.Error(ctx, "maintenance cycle failed", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce claims the lease and runs every job once. A failing job does not
// stop the ones after it; their errors come back combined.
func (s *Service) RunOnce(ctx context.Context) (*CycleReport, error) {
	report := &CycleReport{Removed: make(map[string]int64, len(s.jobs))}
	claimed, err := s.lease.Claim(ctx)
	if err != nil {
		return report, err
	}
	if !claimed {
		report.Skipped = true
		s.metrics.IncSkipped()
		s.logg.Info(ctx, "maintenance lease held by another worker, skipping cycle")
		return report, nil
	}
	defer func() {
		if err := s.lease.Yield(ctx); err != nil {
			s.logg.Error(ctx, "yield maintenance lease", err)
		}
	}()

	var errs error
	for _, job := range s.jobs {
		removed, err := s.sweep(ctx, job)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", job.Name(), err))
			continue
		}
		report.Removed[job.Name()] = removed
	}
	return report, errs
}

func (s *Service) sweep(ctx context.Context, job Job) (int64, error) {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	start := time.Now()
	removed, err := job.Run(jobCtx)
	took := time.Since(start)
	s.metrics.ObserveSweep(job.Name(), took, removed, err)

	jobCtx = s.logg.WithFields(jobCtx, map[string]any{
		"duration_ms":  took.Milliseconds(),
		"rows_removed": removed,
	})
	if err != nil {
		s.logg.Error(jobCtx, "maintenance sweep failed", err)
		return 0, err
	}
	s.logg.Info(jobCtx, "maintenance sweep complete")
	return removed, nil
}
