// Package audit records user lifecycle events consumed from the user event
// stream as structured log lines.
package audit

import (
	"context"
	"log/slog"

	"github.com/receiptmaster/backend/shared/events"
)

type Recorder struct {
	logger *slog.Logger
}

func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{logger: logger.With("component", "audit")}
}

// HandleUserEvent is the stream subscriber handler. A payload that does not
// decode is returned as an error so the message stays pending.
func (r *Recorder) HandleUserEvent(ctx context.Context, event events.Event) error {
	switch event.Type {
	case events.UserCreated:
		var data events.UserCreatedEvent
		if err := events.DecodeData(event, &data); err != nil {
			return err
		}
		r.logger.InfoContext(ctx, "user created",
			"user_id", data.UserID, "username", data.Username, "at", event.Timestamp)
	case events.UserUpdated:
		var data events.UserUpdatedEvent
		if err := events.DecodeData(event, &data); err != nil {
			return err
		}
		r.logger.InfoContext(ctx, "user updated",
			"user_id", data.UserID, "username", data.Username, "at", event.Timestamp)
	case events.UserDeleted:
		var data events.UserDeletedEvent
		if err := events.DecodeData(event, &data); err != nil {
			return err
		}
		r.logger.InfoContext(ctx, "user deleted", "user_id", data.UserID, "at", event.Timestamp)
	default:
		r.logger.WarnContext(ctx, "ignoring unknown event", "type", event.Type)
	}
	return nil
}
