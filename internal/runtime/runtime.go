package runtime

import (
	"context"
	"errors"
	"fmt"

	cfgpkg "github.com/rzbill/labeld/internal/config"
	"github.com/rzbill/labeld/internal/dispatch"
	"github.com/rzbill/labeld/internal/docstore"
	"github.com/rzbill/labeld/internal/lease"
	"github.com/rzbill/labeld/internal/scorestore"
	"github.com/rzbill/labeld/internal/seed"
	pebblestore "github.com/rzbill/labeld/internal/storage/pebble"
	"github.com/rzbill/labeld/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger log.Logger
}

// Runtime wires storage, the distribution engine, and the background loops
// for a single-node instance.
type Runtime struct {
	db     *pebblestore.DB
	config cfgpkg.Config
	logger log.Logger

	docs      *docstore.Store
	queues    *scorestore.Store
	leases    *lease.Registry
	engine    *dispatch.Engine
	outbox    *dispatch.Outbox
	reclaimer *dispatch.Reclaimer
	seeder    *seed.Seeder

	started bool
}

// Open initializes storage and wires every component. Background loops do
// not run until Start.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger(log.WithLevel(log.InfoLevel))
	}

	fsync, err := parseFsync(cfg.Storage.Fsync)
	if err != nil {
		return nil, err
	}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       cfg.DataDir,
		Fsync:         fsync,
		FsyncInterval: cfg.Storage.FsyncInterval.Std(),
	})
	if err != nil {
		return nil, fmt.Errorf("runtime: open storage: %w", err)
	}

	docs := docstore.New(db)
	queues := scorestore.New(db)
	leases := lease.New(db, lease.Options{
		TTL:          cfg.Labeling.LeaseTTL.Std(),
		ScanInterval: cfg.Labeling.LeaseScan.Std(),
	}, logger)
	outbox := dispatch.NewOutbox(dispatch.OutboxOptions{
		Endpoint:   cfg.Outbox.ConsensusURL,
		Buffer:     cfg.Outbox.Buffer,
		Timeout:    cfg.Outbox.Timeout.Std(),
		MaxElapsed: cfg.Outbox.MaxElapsed.Std(),
	}, logger)
	engine := dispatch.NewEngine(queues, leases, docs, outbox, dispatch.Options{
		MaxHolders:  cfg.Labeling.MaxHolders,
		Quorum:      cfg.Labeling.Quorum,
		Affirmative: cfg.Labeling.Affirmative,
	}, logger)

	rt := &Runtime{
		db:        db,
		config:    cfg,
		logger:    logger,
		docs:      docs,
		queues:    queues,
		leases:    leases,
		engine:    engine,
		outbox:    outbox,
		reclaimer: dispatch.NewReclaimer(engine, logger),
		seeder: seed.New(queues, docs, engine.Scores().MCQ, seed.Options{
			Interval: cfg.Labeling.ReseedInterval.Std(),
		}, logger),
	}
	return rt, nil
}

func parseFsync(mode string) (pebblestore.FsyncMode, error) {
	switch mode {
	case "", "interval":
		return pebblestore.FsyncModeInterval, nil
	case "always":
		return pebblestore.FsyncModeAlways, nil
	case "never":
		return pebblestore.FsyncModeNever, nil
	default:
		return 0, fmt.Errorf("runtime: unknown fsync mode %q", mode)
	}
}

// Start launches the lease scanner, reclaimer, outbox, and queue seeder.
func (r *Runtime) Start(ctx context.Context) {
	if r.started {
		return
	}
	r.started = true
	r.reclaimer.Start(ctx)
	r.leases.Start()
	r.outbox.Start(ctx)
	r.seeder.Start(ctx)
	r.logger.Info("runtime started", log.F("data_dir", r.config.DataDir))
}

// Close stops background loops and closes storage.
func (r *Runtime) Close() error {
	if r.started {
		r.seeder.Stop()
		r.reclaimer.Stop()
		r.leases.Stop()
		r.outbox.Stop()
		r.started = false
	}
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	it.Close()
	return nil
}

// Engine returns the distribution engine.
func (r *Runtime) Engine() *dispatch.Engine { return r.engine }

// Datapoints returns the canonical datapoint store.
func (r *Runtime) Datapoints() *docstore.Store { return r.docs }

// Queues returns the priority queue store.
func (r *Runtime) Queues() *scorestore.Store { return r.queues }

// Seeder returns the queue reconciler.
func (r *Runtime) Seeder() *seed.Seeder { return r.seeder }

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
