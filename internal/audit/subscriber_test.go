package audit

import (
	"context"
	"fmt"
	"testing"

	"github.com/pulsecare/platform/internal/shared/events"
	"github.com/pulsecare/platform/internal/shared/logger"
	"github.com/pulsecare/platform/internal/shared/types"
)

func TestHandleRecordsEvents(t *testing.T) {
	trail := NewTrail(logger.NewNop())
	subject := types.NewID()

	for i := 0; i < 3; i++ {
		event := events.NewEvent(events.TypeVitalsRecorded, "portal", subject,
			map[string]any{"n": i})
		if err := trail.Handle(context.Background(), event); err != nil {
			t.Fatalf("handle failed: %v", err)
		}
	}

	recent := trail.Recent(10)
	if len(recent) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(recent))
	}

	// Newest first.
	if recent[0].Data.(map[string]any)["n"] != 2 {
		t.Errorf("expected the latest event first, got %v", recent[0].Data)
	}
	if recent[2].Data.(map[string]any)["n"] != 0 {
		t.Errorf("expected the oldest event last, got %v", recent[2].Data)
	}
}

func TestRecentHonorsLimit(t *testing.T) {
	trail := NewTrail(logger.NewNop())
	for i := 0; i < 5; i++ {
		trail.Handle(context.Background(),
			events.NewEvent(events.TypeNotificationCreated, "portal", types.NewID(), nil))
	}

	if got := trail.Recent(2); len(got) != 2 {
		t.Errorf("expected 2 entries, got %d", len(got))
	}
	if got := trail.Recent(0); len(got) != 5 {
		t.Errorf("expected all entries for limit 0, got %d", len(got))
	}
}

func TestTrailStaysBounded(t *testing.T) {
	trail := NewTrail(logger.NewNop())
	subject := types.NewID()

	total := maxEntries + 50
	for i := 0; i < total; i++ {
		event := events.NewEvent(events.TypeEmergencyRaised, "monitor", subject,
			map[string]any{"seq": fmt.Sprintf("%d", i)})
		trail.Handle(context.Background(), event)
	}

	recent := trail.Recent(0)
	if len(recent) != maxEntries {
		t.Fatalf("expected trail capped at %d, got %d", maxEntries, len(recent))
	}

	// The newest event survived the trim, the oldest did not.
	newest := recent[0].Data.(map[string]any)["seq"]
	if newest != fmt.Sprintf("%d", total-1) {
		t.Errorf("expected newest event retained, got seq %v", newest)
	}
	oldest := recent[len(recent)-1].Data.(map[string]any)["seq"]
	if oldest != fmt.Sprintf("%d", total-maxEntries) {
		t.Errorf("expected oldest surviving seq %d, got %v", total-maxEntries, oldest)
	}
}
