package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/audiophile-backend/api/responses"
	stripewebhook "github.com/angelmondragon/audiophile-backend/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/audiophile-backend/pkg/errors"
	"github.com/angelmondragon/audiophile-backend/pkg/logger"
)

// Stripe event payloads stay well under this.
const maxWebhookBodyBytes = 64 << 10

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type eventLedger interface {
	Claim(ctx context.Context, eventID string) (stripewebhook.Delivery, error)
	Settle(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

type signingSecret interface {
	SigningSecret() string
}

type received struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// StripeWebhook settles orders from signed Stripe events. An event that is
// still being handled elsewhere gets a 409 so Stripe redelivers it later; one
// that already settled is acknowledged without touching the order.
func StripeWebhook(svc StripeWebhookService, secret signingSecret, ledger eventLedger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || secret == nil || ledger == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhooks are not configured"))
			return
		}

		event, err := verifiedEvent(w, r, secret.SigningSecret())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				logger.FieldProvider: "stripe",
				"stripe_event_id":    event.ID,
				"stripe_event_type":  string(event.Type),
			})
		}

		delivery, err := ledger.Claim(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim stripe event"))
			return
		}
		switch delivery {
		case stripewebhook.DeliveryDone:
			logInfo(ctx, logg, "stripe.webhook.duplicate")
			responses.WriteSuccess(w, received{Received: true, Duplicate: true})
			return
		case stripewebhook.DeliveryInFlight:
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "event is still being processed"))
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			if relErr := ledger.Release(ctx, event.ID); relErr != nil && logg != nil {
				logg.Error(ctx, "stripe.webhook.release_failed", relErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := ledger.Settle(ctx, event.ID); err != nil && logg != nil {
			logg.Error(ctx, "stripe.webhook.settle_mark_failed", err)
		}
		logInfo(ctx, logg, "stripe.webhook.processed")
		responses.WriteSuccess(w, received{Received: true})
	}
}

// verifiedEvent reads the body under a size cap and checks the
// Stripe-Signature header against the endpoint secret.
func verifiedEvent(w http.ResponseWriter, r *http.Request, secret string) (stripe.Event, error) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return stripe.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload too large")
		}
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read webhook body")
	}
	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		return stripe.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing")
	}
	event, err := webhook.ConstructEvent(payload, signature, secret)
	if err != nil {
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "verify signature")
	}
	return event, nil
}

func logInfo(ctx context.Context, logg *logger.Logger, msg string) {
	if logg != nil {
		logg.Info(ctx, msg)
	}
}
