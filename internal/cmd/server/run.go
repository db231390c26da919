package serverrun

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	cfgpkg "github.com/rzbill/labeld/internal/config"
	"github.com/rzbill/labeld/internal/runtime"
	httpserver "github.com/rzbill/labeld/internal/server/http"
	logpkg "github.com/rzbill/labeld/pkg/log"
)

// Options carries everything Run needs beyond the loaded config.
type Options struct {
	Config cfgpkg.Config
}

// Run starts the runtime, background loops, and the HTTP server, and
// blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	// Be robust to callers that don't pass a signal-aware context.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config
	if cfg.DataDir == "" {
		cfg.DataDir = cfgpkg.DefaultDataDir()
	}
	cfg.DataDir = filepath.Join(cfg.DataDir, "store")

	procLogger, err := logpkg.ApplyConfig(&logpkg.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		// Fallback to a sane default
		lvl := logpkg.InfoLevel
		if l, e := logpkg.ParseLevel(cfg.Log.Level); e == nil {
			lvl = l
		}
		procLogger = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}

	// Redirect stdlib logs (e.g., Pebble) to our logger
	logpkg.RedirectStdLog(procLogger)

	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: procLogger})
	if err != nil {
		return err
	}
	defer rt.Close()
	rt.Start(sctx)

	procLogger.Info("Starting labeld server",
		logpkg.F("http", cfg.HTTPAddr),
		logpkg.F("data_dir", cfg.DataDir),
		logpkg.F("lease_ttl", cfg.Labeling.LeaseTTL.String()),
		logpkg.F("max_holders", cfg.Labeling.MaxHolders),
		logpkg.F("quorum", cfg.Labeling.Quorum),
	)

	hsrv := httpserver.New(rt, procLogger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, cfg.HTTPAddr); err != nil && sctx.Err() == nil {
			procLogger.Error("http server error", logpkg.F("error", err.Error()))
		}
	}()

	<-sctx.Done()
	// Shut down the server before closing the runtime/DB to avoid races.
	hsrv.Close()
	wg.Wait()
	return nil
}
