package scorestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	pebblestore "github.com/rzbill/labeld/internal/storage/pebble"
)

// Queue names the two priority queues labeld schedules from.
type Queue string

const (
	// QueueMCQ holds one entry per datapoint in the multiple-choice stage.
	// It is read highest-score-first.
	QueueMCQ Queue = "mcq"
	// QueueText holds one entry per flagged question awaiting free-text
	// review. It is read lowest-score-first.
	QueueText Queue = "txt"
)

// Order selects the read direction of a snapshot.
type Order int

const (
	// ScoreAsc yields entries from lowest score to highest.
	ScoreAsc Order = iota
	// ScoreDesc yields entries from highest score to lowest.
	ScoreDesc
)

// Entry is one assignable unit of work in a queue. SubIndex is -1 for MCQ
// entries (the whole datapoint) and the question index for text entries.
type Entry struct {
	TaskID   string  `json:"task_id"`
	SubIndex int     `json:"sub_index"`
	InFlight int     `json:"in_flight"`
	Score    float64 `json:"score"`
}

// SameItem reports whether two entries identify the same unit of work.
func (e Entry) SameItem(o Entry) bool {
	return e.TaskID == o.TaskID && e.SubIndex == o.SubIndex
}

// OpKind discriminates staged mutations.
type OpKind int

const (
	// OpInsert adds (or overwrites) an entry at its score.
	OpInsert OpKind = iota
	// OpRemove deletes the entry keyed by (score, taskID, subIndex).
	OpRemove
)

// Op is one staged queue mutation.
type Op struct {
	Kind  OpKind
	Entry Entry
}

// Store keeps the two priority queues in pebble, entries ordered by an
// order-preserving score encoding in the key.
//
// The store has no in-place field update: changing an entry's in-flight
// counter is a remove/insert pair. Each queue carries a mutex and every
// read-modify-write goes through Update, which holds the mutex across
// snapshot, decision, and batch commit. That makes the in-flight bound a
// hard invariant here rather than the best-effort cap a client-side
// optimistic scheme would give.
type Store struct {
	db *pebblestore.DB

	mu map[Queue]*sync.Mutex
}

// New creates a Store over db.
func New(db *pebblestore.DB) *Store {
	return &Store{
		db: db,
		mu: map[Queue]*sync.Mutex{
			QueueMCQ:  {},
			QueueText: {},
		},
	}
}

func (s *Store) lock(q Queue) *sync.Mutex {
	m, ok := s.mu[q]
	if !ok {
		panic(fmt.Sprintf("scorestore: unknown queue %q", q))
	}
	return m
}

// Snapshot returns a fully-materialized view of the queue in the given
// score order. Entries with equal scores come back in key order (stable,
// lexicographic by task identity).
func (s *Store) Snapshot(ctx context.Context, q Queue, order Order) ([]Entry, error) {
	m := s.lock(q)
	m.Lock()
	defer m.Unlock()
	return s.snapshotLocked(ctx, q, order)
}

func (s *Store) snapshotLocked(_ context.Context, q Queue, order Order) ([]Entry, error) {
	lo, hi := keyRange(q)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, fmt.Errorf("scorestore: iterate %s: %w", q, err)
	}
	defer iter.Close()

	var entries []Entry
	appendEntry := func() error {
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return fmt.Errorf("scorestore: decode entry in %s: %w", q, err)
		}
		entries = append(entries, e)
		return nil
	}

	if order == ScoreDesc {
		for ok := iter.Last(); ok; ok = iter.Prev() {
			if err := appendEntry(); err != nil {
				return nil, err
			}
		}
	} else {
		for ok := iter.First(); ok; ok = iter.Next() {
			if err := appendEntry(); err != nil {
				return nil, err
			}
		}
	}
	return entries, nil
}

// Update runs fn with a fresh snapshot of the queue in the given order and
// applies the ops fn returns as one committed batch, all under the queue's
// mutex. Ops execute in submission order; the first failed op aborts the
// batch before commit, so a returned error means nothing was applied.
func (s *Store) Update(ctx context.Context, q Queue, order Order, fn func(entries []Entry) ([]Op, error)) error {
	m := s.lock(q)
	m.Lock()
	defer m.Unlock()

	entries, err := s.snapshotLocked(ctx, q, order)
	if err != nil {
		return err
	}
	ops, err := fn(entries)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}
	return s.applyLocked(ctx, q, ops)
}

// Apply stages the ops into one batch and commits it under the queue's
// mutex. Use Update when the ops depend on current queue state.
func (s *Store) Apply(ctx context.Context, q Queue, ops []Op) error {
	m := s.lock(q)
	m.Lock()
	defer m.Unlock()
	return s.applyLocked(ctx, q, ops)
}

func (s *Store) applyLocked(ctx context.Context, q Queue, ops []Op) error {
	b := s.db.NewBatch()
	defer b.Close()
	for i, op := range ops {
		key := entryKey(q, op.Entry)
		switch op.Kind {
		case OpInsert:
			val, err := json.Marshal(op.Entry)
			if err != nil {
				return fmt.Errorf("scorestore: op %d encode: %w", i, err)
			}
			if err := b.Set(key, val, nil); err != nil {
				return fmt.Errorf("scorestore: op %d insert: %w", i, err)
			}
		case OpRemove:
			if err := b.Delete(key, nil); err != nil {
				return fmt.Errorf("scorestore: op %d remove: %w", i, err)
			}
		default:
			return fmt.Errorf("scorestore: op %d has unknown kind %d", i, op.Kind)
		}
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return fmt.Errorf("scorestore: commit %s batch: %w", q, err)
	}
	return nil
}

// Find returns the entry for (taskID, subIndex) if present.
func (s *Store) Find(ctx context.Context, q Queue, taskID string, subIndex int) (Entry, bool, error) {
	entries, err := s.Snapshot(ctx, q, ScoreAsc)
	if err != nil {
		return Entry{}, false, err
	}
	for _, e := range entries {
		if e.TaskID == taskID && e.SubIndex == subIndex {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

// Stats summarizes a queue for the admin surface.
type Stats struct {
	Depth    int `json:"depth"`
	Eligible int `json:"eligible"`
	InFlight int `json:"in_flight"`
}

// QueueStats counts depth, eligible entries (below the holder cap), and
// total in-flight holders.
func (s *Store) QueueStats(ctx context.Context, q Queue, maxHolders int) (Stats, error) {
	entries, err := s.Snapshot(ctx, q, ScoreAsc)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Depth: len(entries)}
	for _, e := range entries {
		if e.InFlight < maxHolders {
			st.Eligible++
		}
		st.InFlight += e.InFlight
	}
	return st, nil
}
