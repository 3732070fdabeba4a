package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	pkgkafka "github.com/utafrali/cartstore/pkg/kafka"
)

// Session event types consumed from the session topic.
const (
	EventSignedIn  = "user.signed_in"
	EventSignedOut = "user.signed_out"
)

// TopicSession carries sign-in and sign-out events for the UI session.
var TopicSession = pkgkafka.Topic("user", "session")

// SessionEventData is the payload of a session event.
type SessionEventData struct {
	UserID string `json:"user_id"`
}

// EventHandler returns a Kafka handler that applies session events to s.
// Unknown event types are ignored.
func EventHandler(s *Session, logger *slog.Logger) pkgkafka.Handler {
	return func(ctx context.Context, event *pkgkafka.Event) error {
		switch event.EventType {
		case EventSignedIn:
			var data SessionEventData
			if err := json.Unmarshal(event.Data, &data); err != nil {
				return fmt.Errorf("decode %s payload: %w", event.EventType, err)
			}
			if data.UserID == "" {
				// Nothing to retry: the event is malformed.
				logger.WarnContext(ctx, "sign-in event without user id",
					slog.String("event_id", event.EventID),
				)
				return nil
			}
			s.SignIn(data.UserID)
		case EventSignedOut:
			s.SignOut()
		default:
			logger.DebugContext(ctx, "ignoring session event",
				slog.String("event_type", event.EventType),
			)
			return nil
		}

		logger.InfoContext(ctx, "session identity updated from event",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
		)
		return nil
	}
}
