package audit

import (
	"context"

	"github.com/turtacn/invoicer/internal/domain/models"
	"github.com/turtacn/invoicer/pkg/constants"
	"github.com/turtacn/invoicer/pkg/logger"
)

// Recorder signs events and hands them to a publisher. Failures are logged and never
// surface to the request that produced the event. A nil Recorder discards events.
type Recorder struct {
	publisher Publisher
	key       []byte
	logger    logger.Logger
}

// NewRecorder creates a recorder signing with key.
func NewRecorder(p Publisher, key []byte, log logger.Logger) *Recorder {
	return &Recorder{publisher: p, key: key, logger: log}
}

// Record signs and publishes event, filling the request id from ctx when absent.
func (r *Recorder) Record(ctx context.Context, event *models.AuditEvent) {
	if r == nil || event == nil {
		return
	}
	if event.RequestID == "" {
		if id, ok := ctx.Value(constants.ContextKeyRequestID).(string); ok {
			event.RequestID = id
		}
	}

	sig, err := Sign(*event, r.key)
	if err != nil {
		r.logger.Error(ctx, "Failed to sign audit event", err, logger.String("event_type", string(event.Type)))
		return
	}
	event.Signature = sig

	if err := r.publisher.Publish(ctx, event); err != nil {
		r.logger.Warn(ctx, "Audit event dropped", logger.String("event_type", string(event.Type)))
	}
}

// Close closes the underlying publisher.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	return r.publisher.Close()
}
