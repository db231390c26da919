package dispatch

import (
	"context"
	"sync"

	"github.com/rzbill/labeld/internal/scorestore"
	"github.com/rzbill/labeld/pkg/log"
)

// Reclaimer returns abandoned entries to circulation. It consumes the lease
// registry's expiration stream and resets the expired entry's in-flight
// counter to zero, on the assumption that an expired lease means every
// holder of that entry walked away. A worker that submits after expiry
// still has its answer recorded; only the counter is rewound.
type Reclaimer struct {
	engine *Engine
	logger log.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewReclaimer wires a Reclaimer around the engine's queues and leases.
func NewReclaimer(engine *Engine, logger log.Logger) *Reclaimer {
	if logger == nil {
		logger = log.NewLogger(log.WithLevel(log.InfoLevel))
	}
	return &Reclaimer{
		engine: engine,
		logger: logger.WithComponent("reclaim"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins draining the expiration stream until Stop is called or ctx
// is canceled.
func (r *Reclaimer) Start(ctx context.Context) {
	go r.run(ctx)
}

// Stop halts the loop and waits for it to drain.
func (r *Reclaimer) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
}

func (r *Reclaimer) run(ctx context.Context) {
	defer close(r.doneCh)
	expirations := r.engine.leases.Expirations()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case key, ok := <-expirations:
			if !ok {
				return
			}
			r.reclaim(ctx, key)
		}
	}
}

// reclaim resets one expired entry's in-flight counter to zero. A key that
// no longer maps to a queue entry is normal: the entry completed or was
// promoted away between expiry and delivery.
func (r *Reclaimer) reclaim(ctx context.Context, key string) {
	q, taskID, subIndex, ok := parseLeaseKey(key)
	if !ok {
		r.logger.Warn("unparseable lease key", log.F("key", key))
		return
	}

	order := scorestore.ScoreDesc
	if q == scorestore.QueueText {
		order = scorestore.ScoreAsc
	}

	reset := false
	err := r.engine.queues.Update(ctx, q, order, func(entries []scorestore.Entry) ([]scorestore.Op, error) {
		for _, entry := range entries {
			if entry.TaskID != taskID || entry.SubIndex != subIndex {
				continue
			}
			if entry.InFlight == 0 {
				return nil, nil
			}
			next := entry
			next.InFlight = 0
			reset = true
			return []scorestore.Op{
				{Kind: scorestore.OpRemove, Entry: entry},
				{Kind: scorestore.OpInsert, Entry: next},
			}, nil
		}
		return nil, nil
	})
	if err != nil {
		r.logger.Error("reclaim failed",
			log.F("queue", string(q)),
			log.F("task_id", taskID),
			log.F("error", err.Error()),
		)
		return
	}
	if reset {
		r.logger.Info("reclaimed abandoned entry",
			log.F("queue", string(q)),
			log.F("task_id", taskID),
			log.F("question_index", subIndex),
		)
	}
}
