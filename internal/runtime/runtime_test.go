package runtime

import (
	"context"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/labeld/internal/config"
	"github.com/rzbill/labeld/internal/docstore"
	"github.com/rzbill/labeld/internal/scorestore"
)

func testConfig(t *testing.T) cfgpkg.Config {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Storage.Fsync = "always"
	cfg.Labeling.ReseedInterval = cfgpkg.Duration(time.Hour)
	return cfg
}

func TestOpenCloseHealth(t *testing.T) {
	rt, err := Open(Options{Config: testConfig(t)})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer rt.Close()
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestStartSeedsQueueFromStore(t *testing.T) {
	rt, err := Open(Options{Config: testConfig(t)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	ctx := context.Background()

	d := &docstore.Datapoint{ID: "dp-1", Priority: 4}
	d.PreLabel.Questions = []docstore.Question{{Text: "q"}}
	if err := rt.Datapoints().Put(ctx, d); err != nil {
		t.Fatalf("put: %v", err)
	}

	rt.Start(ctx)
	deadline := time.Now().Add(2 * time.Second)
	for {
		st, err := rt.Engine().QueueStats(ctx, scorestore.QueueMCQ)
		if err != nil {
			t.Fatalf("stats: %v", err)
		}
		if st.Depth == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("seeder never populated the queue")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestOpenRejectsBadFsync(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Fsync = "sometimes"
	if _, err := Open(Options{Config: cfg}); err == nil {
		t.Fatalf("expected fsync parse error")
	}
}
