package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/rs/zerolog"

	pkgerrors "github.com/angelmondragon/audiophile-backend/pkg/errors"
	"github.com/angelmondragon/audiophile-backend/pkg/logger"
)

// RequestIDHeader carries the id support uses to find a request's log lines.
const RequestIDHeader = "X-Request-Id"

// Success is the body of every 2xx answer.
type Success struct {
	Data any `json:"data"`
}

// Failure is the body of every 4xx and 5xx answer.
type Failure struct {
	Error Problem `json:"error"`
}

// Problem describes what went wrong in terms a shopper may see. RequestID is
// echoed so a support ticket can quote it.
type Problem struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Success{Data: data})
}

// WriteError answers with err's public face. Untyped errors are treated as
// internal so their text never leaves the server.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())
	message, details := typed.Public()

	if logg != nil {
		logFailure(ctx, logg, typed, meta, err)
	}
	writeJSON(w, meta.HTTPStatus, Failure{Error: Problem{
		Code:      string(typed.Code()),
		Message:   message,
		Details:   details,
		RequestID: w.Header().Get(RequestIDHeader),
	}})
}

// logFailure records server faults at error level and shopper mistakes at
// warn level so alerting only fires on the former.
func logFailure(ctx context.Context, logg *logger.Logger, typed *pkgerrors.Error, meta pkgerrors.Metadata, err error) {
	fields := pkgerrors.TraceOf(err).Fields()
	fields["error_retryable"] = meta.Retryable
	fields["http_status"] = meta.HTTPStatus
	if d, ok := typed.Details().(map[string]any); ok {
		if step, ok := d["step"]; ok {
			fields["step"] = step
		}
	}

	ctx = logg.WithFields(ctx, fields)
	if meta.HTTPStatus >= http.StatusInternalServerError {
		logg.Error(ctx, "request.error", err)
		return
	}
	logg.Warn(logg.WithField(ctx, "error", typed.Message()), "request.rejected")
}

// encodeLog is used once the status line is already written and the request
// logger is out of reach.
var encodeLog = zerolog.New(os.Stderr).With().Timestamp().Str("component", "responses").Logger()

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		encodeLog.Error().Err(err).Int("status", status).Msg("response.encode_failed")
	}
}
