package lease

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	pebblestore "github.com/rzbill/labeld/internal/storage/pebble"
	"github.com/rzbill/labeld/pkg/log"
)

// Key layout:
//
//	lease/{key}             - marker record (JSON: key, expires_at_ms)
//	lease_idx/{exp8}/{key}  - expiry-ordered index for the notifier scan
const (
	prefixLease    = "lease/"
	prefixLeaseIdx = "lease_idx/"
)

func leaseKey(key string) []byte { return []byte(prefixLease + key) }

func leaseIdxKey(expiresMs int64, key string) []byte {
	k := make([]byte, 0, len(prefixLeaseIdx)+8+1+len(key))
	k = append(k, prefixLeaseIdx...)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(expiresMs))
	k = append(k, b[:]...)
	k = append(k, '/')
	k = append(k, key...)
	return k
}

// Marker is a time-bounded claim on a work item.
type Marker struct {
	Key         string `json:"key"`
	ExpiresAtMs int64  `json:"expires_at_ms"`
}

// Registry stores expiring markers and notifies a subscriber when they
// lapse. Notifications are at-least-once: a marker released concurrently
// with the expiry scan may still be reported, and consumers must treat a
// notification for an absent key as a no-op.
type Registry struct {
	db     *pebblestore.DB
	ttl    time.Duration
	logger log.Logger

	// NowMs is overridable in tests.
	NowMs func() int64

	expirations chan string

	scanInterval time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	startOnce    sync.Once
}

// Options configures a Registry.
type Options struct {
	TTL          time.Duration // default 60s
	ScanInterval time.Duration // default 1s
	Buffer       int           // expiration channel capacity, default 256
}

// New creates a Registry over db.
func New(db *pebblestore.DB, opts Options, logger log.Logger) *Registry {
	if opts.TTL <= 0 {
		opts.TTL = 60 * time.Second
	}
	if opts.ScanInterval <= 0 {
		opts.ScanInterval = time.Second
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if logger == nil {
		logger = log.NewLogger(log.WithLevel(log.InfoLevel))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		db:           db,
		ttl:          opts.TTL,
		logger:       logger.WithComponent("lease"),
		NowMs:        func() int64 { return time.Now().UnixMilli() },
		expirations:  make(chan string, opts.Buffer),
		scanInterval: opts.ScanInterval,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// TTL returns the configured marker time-to-live.
func (r *Registry) TTL() time.Duration { return r.ttl }

// Acquire creates the marker for key, or restarts its TTL if it already
// exists.
func (r *Registry) Acquire(ctx context.Context, key string) error {
	now := r.NowMs()
	expires := now + r.ttl.Milliseconds()

	b := r.db.NewBatch()
	defer b.Close()

	// Drop the stale expiry index entry on refresh.
	if existing, err := r.db.Get(leaseKey(key)); err == nil {
		var prev Marker
		if json.Unmarshal(existing, &prev) == nil {
			if err := b.Delete(leaseIdxKey(prev.ExpiresAtMs, key), nil); err != nil {
				return fmt.Errorf("lease: drop stale index for %s: %w", key, err)
			}
		}
	}

	m := Marker{Key: key, ExpiresAtMs: expires}
	val, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("lease: encode marker %s: %w", key, err)
	}
	if err := b.Set(leaseKey(key), val, nil); err != nil {
		return fmt.Errorf("lease: write marker %s: %w", key, err)
	}
	if err := b.Set(leaseIdxKey(expires, key), nil, nil); err != nil {
		return fmt.Errorf("lease: write index %s: %w", key, err)
	}
	if err := r.db.CommitBatch(ctx, b); err != nil {
		return fmt.Errorf("lease: commit acquire %s: %w", key, err)
	}
	return nil
}

// Release deletes the marker for key. Releasing an absent key is a no-op.
func (r *Registry) Release(ctx context.Context, key string) error {
	existing, err := r.db.Get(leaseKey(key))
	if err != nil {
		if pebblestore.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("lease: read marker %s: %w", key, err)
	}
	var m Marker
	if err := json.Unmarshal(existing, &m); err != nil {
		return fmt.Errorf("lease: decode marker %s: %w", key, err)
	}

	b := r.db.NewBatch()
	defer b.Close()
	if err := b.Delete(leaseKey(key), nil); err != nil {
		return fmt.Errorf("lease: delete marker %s: %w", key, err)
	}
	if err := b.Delete(leaseIdxKey(m.ExpiresAtMs, key), nil); err != nil {
		return fmt.Errorf("lease: delete index %s: %w", key, err)
	}
	if err := r.db.CommitBatch(ctx, b); err != nil {
		return fmt.Errorf("lease: commit release %s: %w", key, err)
	}
	return nil
}

// Held reports whether a live marker exists for key.
func (r *Registry) Held(ctx context.Context, key string) (bool, error) {
	existing, err := r.db.Get(leaseKey(key))
	if err != nil {
		if pebblestore.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("lease: read marker %s: %w", key, err)
	}
	var m Marker
	if err := json.Unmarshal(existing, &m); err != nil {
		return false, fmt.Errorf("lease: decode marker %s: %w", key, err)
	}
	return m.ExpiresAtMs > r.NowMs(), nil
}

// Expirations is the stream of expired marker keys. Closed on Stop.
func (r *Registry) Expirations() <-chan string { return r.expirations }

// Start launches the background expiry scanner.
func (r *Registry) Start() {
	r.startOnce.Do(func() {
		r.wg.Add(1)
		go r.run()
	})
}

// Stop terminates the scanner and closes the expiration stream.
func (r *Registry) Stop() {
	r.cancel()
	r.wg.Wait()
	close(r.expirations)
}

func (r *Registry) run() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.scanInterval)
	defer ticker.Stop()

	r.logger.Info("lease scanner started",
		log.F("ttl", r.ttl.String()),
		log.F("interval", r.scanInterval.String()),
	)
	for {
		select {
		case <-r.ctx.Done():
			r.logger.Info("lease scanner stopped")
			return
		case <-ticker.C:
			if err := r.sweepExpired(); err != nil {
				r.logger.Error("lease sweep failed", log.F("error", err.Error()))
			}
		}
	}
}

// sweepExpired walks the expiry index in order, emits each lapsed key, and
// deletes its records. A key whose notification cannot be buffered is left
// in place for the next tick, which is where the at-least-once (never
// silently dropped) property comes from.
func (r *Registry) sweepExpired() error {
	now := r.NowMs()
	lo := []byte(prefixLeaseIdx)
	hi := append([]byte(nil), lo...)
	hi[len(hi)-1]++ // prefix successor: '/' -> '0'
	iter, err := r.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return fmt.Errorf("lease: iterate index: %w", err)
	}
	defer iter.Close()

	for ok := iter.First(); ok; ok = iter.Next() {
		k := iter.Key()
		if len(k) < len(prefixLeaseIdx)+8+1 {
			continue
		}
		exp := int64(binary.BigEndian.Uint64(k[len(prefixLeaseIdx) : len(prefixLeaseIdx)+8]))
		if exp > now {
			break
		}
		key := string(k[len(prefixLeaseIdx)+8+1:])

		select {
		case r.expirations <- key:
		default:
			r.logger.Warn("expiration buffer full, retrying next sweep", log.F("key", key))
			return nil
		}

		b := r.db.NewBatch()
		_ = b.Delete(append([]byte(nil), k...), nil)
		_ = b.Delete(leaseKey(key), nil)
		if err := r.db.CommitBatch(r.ctx, b); err != nil {
			b.Close()
			return fmt.Errorf("lease: commit expiry of %s: %w", key, err)
		}
		b.Close()
	}
	return nil
}
