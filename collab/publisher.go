package collab

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/c360studio/semstreams/message"
)

// Publisher is the outbound event bus dependency. Notifications are
// fire-and-forget: the engine's correctness never depends on delivery, and a
// failed publish is logged, not rolled back. The signature matches
// natsclient.Client.Publish, so the NATS client satisfies this directly.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// NopPublisher discards all events. Useful for hosts that embed the library
// without an event bus, and for tests.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, string, []byte) error { return nil }

// publishEvent wraps a payload in a BaseMessage envelope and publishes it.
// Best-effort: marshal or publish failures are logged and swallowed.
func publishEvent(ctx context.Context, pub Publisher, logger *slog.Logger, subject string, payload message.Payload) {
	baseMsg := message.NewBaseMessage(payload.Schema(), payload, "semcollab")
	data, err := json.Marshal(baseMsg)
	if err != nil {
		logger.Error("Failed to marshal event", "subject", subject, "error", err)
		return
	}

	if err := pub.Publish(ctx, subject, data); err != nil {
		logger.Warn("Failed to publish event", "subject", subject, "error", err)
	}
}
