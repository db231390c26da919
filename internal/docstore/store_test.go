package docstore

import (
	"context"
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

func sample(id string, questions int) *Datapoint {
	d := &Datapoint{ID: id, MediaURL: "https://cdn/" + id, Priority: 1}
	for i := 0; i < questions; i++ {
		d.PreLabel.Questions = append(d.PreLabel.Questions, Question{Text: "q"})
	}
	return d
}

func TestPutFindDefaultsStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Put(ctx, sample("a", 2)); err != nil {
		t.Fatalf("put: %v", err)
	}
	d, err := s.FindByID(ctx, "a")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if d.ProcessingStatus != StatusLiveLabelMCQ {
		t.Fatalf("default status = %s", d.ProcessingStatus)
	}
	if _, err := s.FindByID(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestBulkApplyFiltersByExistingQuestion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Put(ctx, sample("a", 2)); err != nil {
		t.Fatalf("put: %v", err)
	}

	ans := Answer{Text: "Yes", WorkerID: "w1"}
	n, err := s.BulkApply(ctx, []Update{
		{Kind: UpdateAppendMCQ, TaskID: "a", SubIndex: 0, Answer: ans},
		{Kind: UpdateAppendMCQ, TaskID: "a", SubIndex: 1, Answer: ans},
		{Kind: UpdateAppendMCQ, TaskID: "a", SubIndex: 7, Answer: ans},  // no such question
		{Kind: UpdateAppendMCQ, TaskID: "zz", SubIndex: 0, Answer: ans}, // no such datapoint
	})
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if n != 2 {
		t.Fatalf("modified = %d, want 2", n)
	}

	d, err := s.FindByID(ctx, "a")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(d.PreLabel.Questions[0].MCQAnswers) != 1 || len(d.PreLabel.Questions[1].MCQAnswers) != 1 {
		t.Fatalf("answers not recorded: %+v", d.PreLabel.Questions)
	}
}

func TestBulkApplyFlagAndStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Put(ctx, sample("a", 2)); err != nil {
		t.Fatalf("put: %v", err)
	}
	_, err := s.BulkApply(ctx, []Update{
		{Kind: UpdateSetFlag, TaskID: "a", SubIndex: 1, Flagged: true, Status: StatusLiveLabelText},
	})
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	d, _ := s.FindByID(ctx, "a")
	if !d.PreLabel.Questions[1].IsFlagged || d.PreLabel.Questions[0].IsFlagged {
		t.Fatalf("flags wrong: %+v", d.PreLabel.Questions)
	}
	if d.ProcessingStatus != StatusLiveLabelText {
		t.Fatalf("status = %s", d.ProcessingStatus)
	}
}

func TestListReturnsAll(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := s.Put(ctx, sample(id, 1)); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	all, err := s.List(ctx)
	if err != nil || len(all) != 3 {
		t.Fatalf("list: %d %v", len(all), err)
	}
}
