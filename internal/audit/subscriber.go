package audit

import (
	"context"
	"fmt"
	"sync"

	"github.com/pulsecare/platform/internal/shared/events"
	"go.uber.org/zap"
)

// maxEntries bounds the in-memory tail
const maxEntries = 256

// Trail consumes domain events from the bus and keeps a bounded tail of
// the most recent ones for the admin surface. EventStoreDB remains the
// durable audit log; the trail is a window into what just happened.
type Trail struct {
	logger *zap.Logger

	mu      sync.Mutex
	entries []events.Event
}

// NewTrail creates an empty audit trail
func NewTrail(logger *zap.Logger) *Trail {
	return &Trail{logger: logger}
}

// Start subscribes the trail to every event family the portal emits
func (t *Trail) Start(ctx context.Context, bus *events.Bus) error {
	for _, prefix := range []string{"vitals.", "notification.", "emergency."} {
		if err := bus.Subscribe(ctx, prefix, t.Handle); err != nil {
			return fmt.Errorf("failed to subscribe to %s events: %w", prefix, err)
		}
	}
	return nil
}

// Handle records one event. It is the bus handler and never errors;
// losing a tail entry is not worth dropping the subscription.
func (t *Trail) Handle(ctx context.Context, event events.Event) error {
	t.logger.Info("audit",
		zap.String("event_type", event.Type),
		zap.String("subject_id", event.SubjectID.String()))

	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = append(t.entries, event)
	if len(t.entries) > maxEntries {
		t.entries = t.entries[len(t.entries)-maxEntries:]
	}
	return nil
}

// Recent returns up to limit events, newest first
func (t *Trail) Recent(limit int) []events.Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	if limit <= 0 || limit > len(t.entries) {
		limit = len(t.entries)
	}

	out := make([]events.Event, limit)
	for i := 0; i < limit; i++ {
		out[i] = t.entries[len(t.entries)-1-i]
	}
	return out
}
