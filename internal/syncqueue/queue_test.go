package syncqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/pulsecare/platform/internal/shared/logger"
)

type recordingSink struct {
	mu     sync.Mutex
	seen   []Entry
	failOn func(Entry) error
}

func (s *recordingSink) sink(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != nil {
		if err := s.failOn(entry); err != nil {
			return err
		}
	}
	s.seen = append(s.seen, entry)
	return nil
}

func (s *recordingSink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.seen))
	for i, e := range s.seen {
		out[i] = string(e.Action)
	}
	return out
}

func openTestQueue(t *testing.T, dir string, sink Sink) *Queue {
	t.Helper()
	q, err := Open(dir, sink, logger.NewNop())
	if err != nil {
		t.Fatalf("failed to open queue: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

type payload struct {
	N int `json:"n"`
}

func TestEnqueueAndFlushFIFO(t *testing.T) {
	sink := &recordingSink{}
	q := openTestQueue(t, t.TempDir(), sink.sink)

	for i := 0; i < 5; i++ {
		if _, err := q.Enqueue(ActionAddVitals, payload{N: i}); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}
	if q.Len() != 5 {
		t.Fatalf("expected depth 5, got %d", q.Len())
	}

	if err := q.Flush(context.Background()); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	if q.Len() != 0 {
		t.Errorf("expected empty queue after flush, got %d", q.Len())
	}
	for i, e := range sink.seen {
		var p payload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			t.Fatalf("failed to unmarshal payload: %v", err)
		}
		if p.N != i {
			t.Errorf("replay out of order: position %d has payload %d", i, p.N)
		}
	}
}

func TestFlushStopsOnFirstFailure(t *testing.T) {
	sink := &recordingSink{}
	sink.failOn = func(e Entry) error {
		var p payload
		json.Unmarshal(e.Payload, &p)
		if p.N == 1 {
			return fmt.Errorf("sink unavailable")
		}
		return nil
	}
	q := openTestQueue(t, t.TempDir(), sink.sink)

	for i := 0; i < 3; i++ {
		q.Enqueue(ActionAddVitals, payload{N: i})
	}

	if err := q.Flush(context.Background()); err != nil {
		t.Fatalf("flush returned error: %v", err)
	}

	// Entry 0 drained; entries 1 and 2 remain, with 1 still at the head.
	if q.Len() != 2 {
		t.Fatalf("expected 2 entries remaining, got %d", q.Len())
	}
	if len(sink.seen) != 1 {
		t.Fatalf("expected exactly one successful replay, got %d", len(sink.seen))
	}

	// A later flush resumes from the failed entry with attempts counted.
	sink.failOn = nil
	if err := q.Flush(context.Background()); err != nil {
		t.Fatalf("second flush failed: %v", err)
	}
	if q.Len() != 0 {
		t.Errorf("expected drained queue, got %d", q.Len())
	}

	var p payload
	json.Unmarshal(sink.seen[1].Payload, &p)
	if p.N != 1 {
		t.Errorf("expected failed entry replayed first, got payload %d", p.N)
	}
	if sink.seen[1].Attempts != 1 {
		t.Errorf("expected attempt count 1 on retried entry, got %d", sink.seen[1].Attempts)
	}
}

func TestQueueSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	q, err := Open(dir, func(ctx context.Context, e Entry) error { return nil }, logger.NewNop())
	if err != nil {
		t.Fatalf("failed to open queue: %v", err)
	}
	q.Enqueue(ActionAddVitals, payload{N: 1})
	q.Enqueue(ActionAckNotification, payload{N: 2})
	if err := q.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	sink := &recordingSink{}
	reopened := openTestQueue(t, dir, sink.sink)

	if reopened.Len() != 2 {
		t.Fatalf("expected 2 entries after reopen, got %d", reopened.Len())
	}
	if err := reopened.Flush(context.Background()); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	got := sink.actions()
	if len(got) != 2 || got[0] != string(ActionAddVitals) || got[1] != string(ActionAckNotification) {
		t.Errorf("unexpected replay order after reopen: %v", got)
	}
}

func TestSetOnlineTransitionTriggersFlush(t *testing.T) {
	sink := &recordingSink{}
	q := openTestQueue(t, t.TempDir(), sink.sink)

	q.SetOnline(context.Background(), false)
	q.Enqueue(ActionAddVitals, payload{N: 1})

	q.SetOnline(context.Background(), true)
	if q.Len() != 0 {
		t.Errorf("expected flush on offline->online transition, depth %d", q.Len())
	}

	// Already online: no transition, no extra work.
	q.Enqueue(ActionAddVitals, payload{N: 2})
	q.SetOnline(context.Background(), true)
	if q.Len() != 1 {
		t.Errorf("expected no flush without a transition, depth %d", q.Len())
	}
}

func TestFlushIsSingleFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var replays int

	sink := func(ctx context.Context, e Entry) error {
		replays++
		if replays == 1 {
			close(entered)
			<-release
		}
		return nil
	}
	q := openTestQueue(t, t.TempDir(), sink)

	q.Enqueue(ActionAddVitals, payload{N: 1})

	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Flush(context.Background())
	}()
	<-entered

	// The second flush returns immediately while the first is blocked in
	// the sink; it must not replay anything itself.
	if err := q.Flush(context.Background()); err != nil {
		t.Fatalf("concurrent flush errored: %v", err)
	}
	if replays != 1 {
		t.Errorf("second flush replayed entries while first was in flight: %d replays", replays)
	}

	close(release)
	<-done
}

func TestEnqueueDuringFlushIsPickedUp(t *testing.T) {
	sink := &recordingSink{}
	q := openTestQueue(t, t.TempDir(), sink.sink)

	q.Enqueue(ActionAddVitals, payload{N: 1})

	// The flush loop re-reads the head each pass, so an entry appended
	// mid-flush is drained by the same call.
	added := false
	sink.failOn = func(e Entry) error {
		if !added {
			added = true
			q.Enqueue(ActionAddVitals, payload{N: 2})
		}
		return nil
	}

	if err := q.Flush(context.Background()); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if q.Len() != 0 {
		t.Errorf("expected all entries drained, depth %d", q.Len())
	}
	if len(sink.seen) != 2 {
		t.Errorf("expected both entries replayed, got %d", len(sink.seen))
	}
}
