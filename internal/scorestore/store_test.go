package scorestore

import (
	"context"
	"math"
	"sync"
	"testing"

	pebblestore "github.com/rzbill/labeld/internal/storage/pebble"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func TestSnapshotOrdersByScore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, e := range []Entry{
		{TaskID: "a", SubIndex: -1, Score: 2},
		{TaskID: "b", SubIndex: -1, Score: 10},
		{TaskID: "c", SubIndex: -1, Score: -1.5},
	} {
		if err := s.Apply(ctx, QueueMCQ, []Op{{Kind: OpInsert, Entry: e}}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	asc, err := s.Snapshot(ctx, QueueMCQ, ScoreAsc)
	if err != nil {
		t.Fatalf("snapshot asc: %v", err)
	}
	if len(asc) != 3 || asc[0].TaskID != "c" || asc[1].TaskID != "a" || asc[2].TaskID != "b" {
		t.Fatalf("ascending order wrong: %+v", asc)
	}

	desc, err := s.Snapshot(ctx, QueueMCQ, ScoreDesc)
	if err != nil {
		t.Fatalf("snapshot desc: %v", err)
	}
	if desc[0].TaskID != "b" || desc[2].TaskID != "c" {
		t.Fatalf("descending order wrong: %+v", desc)
	}
}

func TestSnapshotIncludesExtremeScores(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, e := range []Entry{
		{TaskID: "a", SubIndex: -1, Score: 1},
		{TaskID: "big", SubIndex: -1, Score: math.MaxFloat64},
		{TaskID: "inf", SubIndex: -1, Score: math.Inf(1)},
	} {
		if err := s.Apply(ctx, QueueMCQ, []Op{{Kind: OpInsert, Entry: e}}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	asc, err := s.Snapshot(ctx, QueueMCQ, ScoreAsc)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(asc) != 3 || asc[1].TaskID != "big" || asc[2].TaskID != "inf" {
		t.Fatalf("extreme scores missing or misordered: %+v", asc)
	}
}

func TestInsertSameIdentityOverwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	e := Entry{TaskID: "a", SubIndex: 0, Score: 3}
	if err := s.Apply(ctx, QueueText, []Op{{Kind: OpInsert, Entry: e}}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	e.InFlight = 2
	if err := s.Apply(ctx, QueueText, []Op{{Kind: OpInsert, Entry: e}}); err != nil {
		t.Fatalf("reinsert: %v", err)
	}
	entries, err := s.Snapshot(ctx, QueueText, ScoreAsc)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(entries) != 1 || entries[0].InFlight != 2 {
		t.Fatalf("expected single overwritten entry, got %+v", entries)
	}
}

func TestUpdateRemoveInsertPair(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	e := Entry{TaskID: "a", SubIndex: -1, Score: 5}
	if err := s.Apply(ctx, QueueMCQ, []Op{{Kind: OpInsert, Entry: e}}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := s.Update(ctx, QueueMCQ, ScoreDesc, func(entries []Entry) ([]Op, error) {
		if len(entries) != 1 {
			t.Fatalf("snapshot inside update: %+v", entries)
		}
		old := entries[0]
		next := old
		next.InFlight++
		return []Op{{Kind: OpRemove, Entry: old}, {Kind: OpInsert, Entry: next}}, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got, ok, err := s.Find(ctx, QueueMCQ, "a", -1)
	if err != nil || !ok {
		t.Fatalf("find: %v ok=%v", err, ok)
	}
	if got.InFlight != 1 || got.Score != 5 {
		t.Fatalf("entry after update: %+v", got)
	}
}

func TestConcurrentUpdatesDoNotLoseIncrements(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Apply(ctx, QueueMCQ, []Op{{Kind: OpInsert, Entry: Entry{TaskID: "a", SubIndex: -1, Score: 1}}}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Update(ctx, QueueMCQ, ScoreDesc, func(entries []Entry) ([]Op, error) {
				old := entries[0]
				next := old
				next.InFlight++
				return []Op{{Kind: OpRemove, Entry: old}, {Kind: OpInsert, Entry: next}}, nil
			})
		}()
	}
	wg.Wait()

	got, ok, err := s.Find(ctx, QueueMCQ, "a", -1)
	if err != nil || !ok {
		t.Fatalf("find: %v", err)
	}
	if got.InFlight != n {
		t.Fatalf("lost updates: want %d increments, got %d", n, got.InFlight)
	}
}

func TestQueueStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, e := range []Entry{
		{TaskID: "a", SubIndex: -1, Score: 1, InFlight: 3},
		{TaskID: "b", SubIndex: -1, Score: 2, InFlight: 1},
	} {
		if err := s.Apply(ctx, QueueMCQ, []Op{{Kind: OpInsert, Entry: e}}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	st, err := s.QueueStats(ctx, QueueMCQ, 3)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Depth != 2 || st.Eligible != 1 || st.InFlight != 4 {
		t.Fatalf("stats wrong: %+v", st)
	}
}
