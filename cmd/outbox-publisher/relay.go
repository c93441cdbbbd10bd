package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/audiophile-backend/pkg/config"
	"github.com/angelmondragon/audiophile-backend/pkg/db/models"
	"github.com/angelmondragon/audiophile-backend/pkg/logger"
	"github.com/angelmondragon/audiophile-backend/pkg/outbox"
)

const (
	defaultBatchSize   = 50
	defaultPollMs      = 500
	defaultMaxAttempts = 10
	sendTimeout        = 15 * time.Second
	maxRest            = 10 * time.Second
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxStore interface {
	Claim(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	Published(tx *gorm.DB, id uuid.UUID) error
	Failed(tx *gorm.DB, id uuid.UUID, err error) error
	Park(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

// unpublishable marks a row that no retry can ever deliver.
type unpublishable struct{ err error }

func (e unpublishable) Error() string { return e.err.Error() }
func (e unpublishable) Unwrap() error { return e.err }

type RelayParams struct {
	Config *config.Config
	Logger *logger.Logger
	DB     txRunner
	Store  outboxStore
	Sink   eventSink
	// Ready is checked once before the first batch, alongside the database.
	Ready func(context.Context) error
}

// Relay moves order events from the outbox table onto the orders topic. Each
// order is its own ordering key: when one of its events fails, the order's
// later events in the same batch wait for the next pass.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	store       outboxStore
	sink        eventSink
	ready       func(context.Context) error
	topic       string
	batchSize   int
	maxAttempts int
	pace        *pacer
}

// batchReport counts what one pass over the outbox did.
type batchReport struct {
	Claimed   int
	Published int
	Retrying  int
	Deferred  int
	Parked    int
}

func NewRelay(params RelayParams) (*Relay, error) {
	var errs error
	if params.Config == nil {
		errs = multierr.Append(errs, errors.New("config is required"))
	}
	if params.Logger == nil {
		errs = multierr.Append(errs, errors.New("logger is required"))
	}
	if params.DB == nil {
		errs = multierr.Append(errs, errors.New("database client is required"))
	}
	if params.Store == nil {
		errs = multierr.Append(errs, errors.New("outbox store is required"))
	}
	if params.Sink == nil {
		errs = multierr.Append(errs, errors.New("event sink is required"))
	}
	if errs != nil {
		return nil, errs
	}
	topic := strings.TrimSpace(params.Config.PubSub.OrdersTopic)
	if topic == "" {
		return nil, errors.New("orders topic is required")
	}

	cfg := params.Config.Outbox
	poll := time.Duration(positiveOr(cfg.PollIntervalMS, defaultPollMs)) * time.Millisecond
	return &Relay{
		logg:        params.Logger,
		db:          params.DB,
		store:       params.Store,
		sink:        params.Sink,
		ready:       params.Ready,
		topic:       topic,
		batchSize:   positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts: positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		pace:        newPacer(poll, maxRest),
	}, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run relays batches until ctx is canceled.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if r.ready != nil {
		if err := r.ready(ctx); err != nil {
			return fmt.Errorf("pubsub ping failed: %w", err)
		}
	}
	ctx = r.logg.WithField(ctx, "topic", r.topic)

	for {
		report, err := r.relayBatch(ctx)
		if err != nil {
			r.logg.Error(ctx, "outbox.batch_failed", err)
		} else if report.Claimed > 0 {
			r.logg.Info(r.logg.WithFields(ctx, report.fields()), "outbox.batch_relayed")
		}

		rest := r.pace.next(report, err)
		if rest == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}
		timer := time.NewTimer(rest)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *Relay) relayBatch(ctx context.Context) (batchReport, error) {
	var report batchReport
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.store.Claim(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return err
		}
		report = batchReport{Claimed: len(events)}

		blocked := map[uuid.UUID]bool{}
		for _, event := range events {
			if blocked[event.AggregateID] {
				report.Deferred++
				continue
			}
			sendErr := r.send(ctx, event)
			switch {
			case sendErr == nil:
				if err := r.store.Published(tx, event.ID); err != nil {
					return fmt.Errorf("mark published %s: %w", event.ID, err)
				}
				report.Published++
			case errors.As(sendErr, new(unpublishable)):
				if err := r.park(ctx, tx, event, "unpublishable", sendErr); err != nil {
					return err
				}
				report.Parked++
			case event.AttemptCount+1 >= r.maxAttempts:
				blocked[event.AggregateID] = true
				if err := r.park(ctx, tx, event, "max_attempts", fmt.Errorf("max publish attempts reached: %w", sendErr)); err != nil {
					return err
				}
				report.Parked++
			default:
				blocked[event.AggregateID] = true
				fields := eventFields(event)
				fields["attempt_count"] = event.AttemptCount + 1
				fields["error"] = sendErr.Error()
				r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox.publish_retrying")
				if err := r.store.Failed(tx, event.ID, sendErr); err != nil {
					return fmt.Errorf("mark failure %s: %w", event.ID, err)
				}
				report.Retrying++
			}
		}
		return nil
	})
	return report, err
}

func (r *Relay) send(ctx context.Context, event models.OutboxEvent) error {
	msg, err := orderMessage(event)
	if err != nil {
		return err
	}
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if _, err := r.sink.Send(sendCtx, msg); err != nil {
		r.sink.Resume(msg.OrderingKey)
		return err
	}
	return nil
}

// park stops retrying a row and keeps it for inspection.
func (r *Relay) park(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason string, cause error) error {
	fields := eventFields(event)
	fields["parked_reason"] = reason
	fields["error"] = cause.Error()
	r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox.event_parked")
	if err := r.store.Park(tx, event.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

// orderMessage builds the broker message for a stored event. Rows it cannot
// read, or whose envelope disagrees with the row, are unpublishable.
func orderMessage(event models.OutboxEvent) (*gcppubsub.Message, error) {
	if !event.EventType.IsValid() {
		return nil, unpublishable{fmt.Errorf("unknown event type %q", event.EventType)}
	}
	if !event.AggregateType.IsValid() {
		return nil, unpublishable{fmt.Errorf("unknown aggregate type %q", event.AggregateType)}
	}
	envelope, err := outbox.Decode(event.Payload)
	if err != nil {
		return nil, unpublishable{fmt.Errorf("decode envelope: %w", err)}
	}
	if err := envelope.Describes(event); err != nil {
		return nil, unpublishable{err}
	}

	orderID := event.AggregateID.String()
	return &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: orderID,
		Attributes: map[string]string{
			"event_id":       envelope.EventID.String(),
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"order_id":       orderID,
			"schema":         strconv.Itoa(envelope.Schema),
			"occurred_at":    envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}, nil
}

func eventFields(event models.OutboxEvent) map[string]any {
	return map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"order_id":      event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
	}
}

func (b batchReport) fields() map[string]any {
	return map[string]any{
		"claimed":   b.Claimed,
		"published": b.Published,
		"retrying":  b.Retrying,
		"deferred":  b.Deferred,
		"parked":    b.Parked,
	}
}

// Drain relays batches until one claims nothing, or until a batch only
// produced retries and deferrals, and returns the combined counts.
func (r *Relay) Drain(ctx context.Context) (batchReport, error) {
	var total batchReport
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		report, err := r.relayBatch(ctx)
		total = total.add(report)
		if err != nil {
			return total, err
		}
		if report.Published == 0 && report.Parked == 0 {
			return total, nil
		}
	}
}

func (b batchReport) add(o batchReport) batchReport {
	return batchReport{
		Claimed:   b.Claimed + o.Claimed,
		Published: b.Published + o.Published,
		Retrying:  b.Retrying + o.Retrying,
		Deferred:  b.Deferred + o.Deferred,
		Parked:    b.Parked + o.Parked,
	}
}
