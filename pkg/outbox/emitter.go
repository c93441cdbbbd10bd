package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/audiophile-backend/pkg/db/models"
	"github.com/angelmondragon/audiophile-backend/pkg/enums"
	"github.com/angelmondragon/audiophile-backend/pkg/logger"
	"github.com/angelmondragon/audiophile-backend/pkg/types"
)

// Emitter queues order events in the outbox table.
type Emitter struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewEmitter(repo *Repository, logg *logger.Logger) *Emitter {
	return &Emitter{repo: repo, logg: logg, now: time.Now}
}

// Emit writes event on tx so it commits or rolls back with the order change
// it describes.
func (e *Emitter) Emit(ctx context.Context, tx *gorm.DB, event OrderEvent) error {
	switch {
	case tx == nil:
		return errors.New("transaction required")
	case event == nil:
		return errors.New("order event required")
	case !event.Type().IsValid():
		return fmt.Errorf("unknown order event type %q", event.Type())
	case event.Order() == uuid.Nil:
		return fmt.Errorf("%s event has no order id", event.Type())
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type(), err)
	}
	occurred := event.At()
	if occurred.IsZero() {
		occurred = e.now()
	}
	envelope := seal(event, data, occurred)
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	row := models.OutboxEvent{
		EventType:     event.Type(),
		AggregateType: enums.AggregateOrder,
		AggregateID:   event.Order(),
		Payload:       types.JSON(payload),
	}
	if err := e.repo.Insert(tx, row); err != nil {
		return err
	}
	if e.logg != nil {
		ctx = e.logg.WithOrderID(ctx, event.Order().String())
		e.logg.Debug(e.logg.WithFields(ctx, map[string]any{
			"event_id":   envelope.EventID.String(),
			"event_type": event.Type(),
		}), "outbox.event_queued")
	}
	return nil
}
