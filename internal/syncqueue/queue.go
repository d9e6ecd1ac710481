package syncqueue

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/pulsecare/platform/internal/shared/metrics"
	"go.uber.org/zap"
)

// Action tags what a queued write represents
type Action string

const (
	ActionAddVitals       Action = "ADD_VITALS"
	ActionAckNotification Action = "ACK_NOTIFICATION"
)

// Entry is one pending write. Entries replay in enqueue order and are
// removed only after the sink acknowledges the write.
type Entry struct {
	ID         string          `json:"id"`
	Action     Action          `json:"action"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Attempts   int             `json:"attempts"`
}

// Sink performs the external write for one entry. It must be idempotent:
// a crash mid-flush can replay an already-written entry.
type Sink func(ctx context.Context, entry Entry) error

var keyPrefix = []byte("q:")

// Queue is a durable FIFO of pending writes backed by BadgerDB. It
// survives process restarts, replays strictly in order, and never drops
// an entry on failure.
type Queue struct {
	db     *badger.DB
	sink   Sink
	logger *zap.Logger

	mu     sync.Mutex
	seq    uint64
	count  int
	online bool

	// flushing enforces single-flight: a Flush that finds one already
	// running returns immediately rather than interleaving replays.
	flushing bool
}

// Open opens (or creates) the queue at dir
func Open(dir string, sink Sink, logger *zap.Logger) (*Queue, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithNumVersionsToKeep(1).
		WithValueLogFileSize(16 << 20).
		WithMemTableSize(16 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue storage: %w", err)
	}

	q := &Queue{db: db, sink: sink, logger: logger}
	if err := q.recover(); err != nil {
		db.Close()
		return nil, err
	}

	metrics.RecordQueueDepth(q.Len())
	return q, nil
}

// recover rebuilds the sequence counter and depth from disk
func (q *Queue) recover() error {
	return q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = keyPrefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			seq := binary.BigEndian.Uint64(key[len(keyPrefix):])
			if seq >= q.seq {
				q.seq = seq + 1
			}
			q.count++
		}
		return nil
	})
}

// Close closes the underlying storage
func (q *Queue) Close() error {
	return q.db.Close()
}

// Enqueue appends a pending write. Appending during an in-progress flush
// is safe; the new entry is picked up by the next flush pass.
func (q *Queue) Enqueue(action Action, payload any) (*Entry, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	entry := Entry{
		ID:         uuid.New().String(),
		Action:     action,
		Payload:    data,
		EnqueuedAt: time.Now().UTC(),
	}

	value, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entry: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	key := seqKey(q.seq)
	err = q.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist entry: %w", err)
	}

	q.seq++
	q.count++
	metrics.RecordQueueDepth(q.count)

	return &entry, nil
}

// Len returns the number of pending entries
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Online reports the last observed connectivity state
func (q *Queue) Online() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.online
}

// SetOnline records the observed connectivity state. A transition to
// online triggers a flush of anything queued while disconnected.
func (q *Queue) SetOnline(ctx context.Context, online bool) {
	q.mu.Lock()
	wasOnline := q.online
	q.online = online
	q.mu.Unlock()

	if online && !wasOnline {
		if err := q.Flush(ctx); err != nil {
			q.logger.Warn("flush after reconnect failed", zap.Error(err))
		}
	}
}

// Flush replays pending entries strictly in FIFO order. A failed entry
// stops the pass: it keeps its place at the head with an incremented
// attempt count, and everything behind it stays queued. Flush is
// single-flight; a call that finds a flush already running returns nil
// immediately.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	if q.flushing {
		q.mu.Unlock()
		return nil
	}
	q.flushing = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.flushing = false
		q.mu.Unlock()
	}()

	for {
		key, entry, ok, err := q.head()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if err := q.sink(ctx, *entry); err != nil {
			metrics.RecordQueueReplay(false)
			q.logger.Warn("replay failed, entry stays queued",
				zap.String("entry_id", entry.ID),
				zap.String("action", string(entry.Action)),
				zap.Int("attempts", entry.Attempts+1),
				zap.Error(err))
			return q.recordFailure(key, entry)
		}

		metrics.RecordQueueReplay(true)
		if err := q.remove(key); err != nil {
			return err
		}
	}
}

// head returns the oldest pending entry without removing it
func (q *Queue) head() ([]byte, *Entry, bool, error) {
	var key []byte
	var entry Entry
	found := false

	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyPrefix

		it := txn.NewIterator(opts)
		defer it.Close()

		it.Rewind()
		if !it.Valid() {
			return nil
		}

		item := it.Item()
		key = item.KeyCopy(nil)
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to read queue head: %w", err)
	}
	if !found {
		return nil, nil, false, nil
	}
	return key, &entry, true, nil
}

func (q *Queue) recordFailure(key []byte, entry *Entry) error {
	entry.Attempts++
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	return q.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (q *Queue) remove(key []byte) error {
	err := q.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("failed to remove entry: %w", err)
	}

	q.mu.Lock()
	q.count--
	metrics.RecordQueueDepth(q.count)
	q.mu.Unlock()
	return nil
}

func seqKey(seq uint64) []byte {
	key := make([]byte, len(keyPrefix)+8)
	copy(key, keyPrefix)
	binary.BigEndian.PutUint64(key[len(keyPrefix):], seq)
	return key
}
