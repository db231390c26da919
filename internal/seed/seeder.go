// Package seed periodically reconciles the multiple-choice priority queue
// against the canonical datapoint store.
package seed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rzbill/labeld/internal/docstore"
	"github.com/rzbill/labeld/internal/scorestore"
	"github.com/rzbill/labeld/pkg/log"
)

// Lister is the slice of the document store the seeder reads.
type Lister interface {
	List(ctx context.Context) ([]docstore.Datapoint, error)
}

// ScoreFunc derives a datapoint's queue priority.
type ScoreFunc func(d *docstore.Datapoint) float64

// Seeder keeps the MCQ queue consistent with the document store: datapoints
// in the multiple-choice stage that lack an entry are inserted at in-flight
// zero, entries whose datapoint moved on (or vanished) are dropped, and
// entries already present keep their counters untouched.
type Seeder struct {
	queues *scorestore.Store
	docs   Lister
	score  ScoreFunc
	logger log.Logger

	interval time.Duration
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Options tunes the Seeder.
type Options struct {
	Interval time.Duration // reconciliation period, default 10m
}

// New wires a Seeder.
func New(queues *scorestore.Store, docs Lister, score ScoreFunc, opts Options, logger log.Logger) *Seeder {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Minute
	}
	if logger == nil {
		logger = log.NewLogger(log.WithLevel(log.InfoLevel))
	}
	return &Seeder{
		queues:   queues,
		docs:     docs,
		score:    score,
		logger:   logger.WithComponent("seed"),
		interval: opts.Interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs an immediate reconciliation pass, then one per interval until
// Stop is called or ctx is canceled.
func (s *Seeder) Start(ctx context.Context) {
	go s.run(ctx)
}

// Stop halts the loop and waits for it to finish.
func (s *Seeder) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

func (s *Seeder) run(ctx context.Context) {
	defer close(s.doneCh)
	if _, _, err := s.SeedOnce(ctx); err != nil {
		s.logger.Error("initial seed failed", log.F("error", err.Error()))
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, _, err := s.SeedOnce(ctx); err != nil {
				s.logger.Error("seed pass failed", log.F("error", err.Error()))
			}
		}
	}
}

// SeedOnce runs a single reconciliation pass and reports how many entries
// were inserted and dropped.
func (s *Seeder) SeedOnce(ctx context.Context) (inserted, dropped int, err error) {
	all, err := s.docs.List(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("seed: list datapoints: %w", err)
	}
	want := make(map[string]*docstore.Datapoint, len(all))
	for i := range all {
		d := &all[i]
		if d.ProcessingStatus == docstore.StatusLiveLabelMCQ {
			want[d.ID] = d
		}
	}

	err = s.queues.Update(ctx, scorestore.QueueMCQ, scorestore.ScoreAsc, func(entries []scorestore.Entry) ([]scorestore.Op, error) {
		present := make(map[string]struct{}, len(entries))
		var ops []scorestore.Op
		for _, e := range entries {
			if _, ok := want[e.TaskID]; ok {
				present[e.TaskID] = struct{}{}
				continue
			}
			ops = append(ops, scorestore.Op{Kind: scorestore.OpRemove, Entry: e})
			dropped++
		}
		for id, d := range want {
			if _, ok := present[id]; ok {
				continue
			}
			ops = append(ops, scorestore.Op{Kind: scorestore.OpInsert, Entry: scorestore.Entry{
				TaskID:   id,
				SubIndex: -1,
				InFlight: 0,
				Score:    s.score(d),
			}})
			inserted++
		}
		return ops, nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("seed: reconcile queue: %w", err)
	}
	if inserted > 0 || dropped > 0 {
		s.logger.Info("queue reconciled",
			log.F("inserted", inserted),
			log.F("dropped", dropped),
		)
	}
	return inserted, dropped, nil
}
