package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rzbill/labeld/internal/docstore"
	"github.com/rzbill/labeld/internal/scorestore"
	pebblestore "github.com/rzbill/labeld/internal/storage/pebble"
)

func newTestSeeder(t *testing.T) (*Seeder, *scorestore.Store, *docstore.Store) {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	queues := scorestore.New(db)
	docs := docstore.New(db)
	score := func(d *docstore.Datapoint) float64 { return d.Priority }
	return New(queues, docs, score, Options{}, nil), queues, docs
}

func put(t *testing.T, docs *docstore.Store, id string, priority float64, status docstore.Status) {
	t.Helper()
	d := &docstore.Datapoint{ID: id, Priority: priority, ProcessingStatus: status}
	d.PreLabel.Questions = []docstore.Question{{Text: "q"}}
	require.NoError(t, docs.Put(context.Background(), d))
}

func TestSeedInsertsMissingEntries(t *testing.T) {
	s, queues, docs := newTestSeeder(t)
	ctx := context.Background()
	put(t, docs, "a", 5, docstore.StatusLiveLabelMCQ)
	put(t, docs, "b", 2, docstore.StatusLiveLabelMCQ)
	put(t, docs, "done", 1, docstore.StatusConsensus)

	inserted, dropped, err := s.SeedOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, inserted)
	require.Equal(t, 0, dropped)

	e, ok, err := queues.Find(ctx, scorestore.QueueMCQ, "a", -1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 5.0, e.Score)
	require.Equal(t, 0, e.InFlight)

	_, ok, err = queues.Find(ctx, scorestore.QueueMCQ, "done", -1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSeedPreservesInFlightCounters(t *testing.T) {
	s, queues, docs := newTestSeeder(t)
	ctx := context.Background()
	put(t, docs, "a", 5, docstore.StatusLiveLabelMCQ)
	require.NoError(t, queues.Apply(ctx, scorestore.QueueMCQ, []scorestore.Op{
		{Kind: scorestore.OpInsert, Entry: scorestore.Entry{TaskID: "a", SubIndex: -1, InFlight: 2, Score: 5}},
	}))

	inserted, dropped, err := s.SeedOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, inserted)
	require.Equal(t, 0, dropped)

	e, _, err := queues.Find(ctx, scorestore.QueueMCQ, "a", -1)
	require.NoError(t, err)
	require.Equal(t, 2, e.InFlight, "reconciliation must not reset live counters")
}

func TestSeedDropsDepartedEntries(t *testing.T) {
	s, queues, docs := newTestSeeder(t)
	ctx := context.Background()
	put(t, docs, "moved", 1, docstore.StatusLiveLabelText)
	require.NoError(t, queues.Apply(ctx, scorestore.QueueMCQ, []scorestore.Op{
		{Kind: scorestore.OpInsert, Entry: scorestore.Entry{TaskID: "moved", SubIndex: -1, Score: 1}},
		{Kind: scorestore.OpInsert, Entry: scorestore.Entry{TaskID: "ghost", SubIndex: -1, Score: 2}},
	}))

	inserted, dropped, err := s.SeedOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, inserted)
	require.Equal(t, 2, dropped)

	entries, err := queues.Snapshot(ctx, scorestore.QueueMCQ, scorestore.ScoreAsc)
	require.NoError(t, err)
	require.Empty(t, entries)
}
