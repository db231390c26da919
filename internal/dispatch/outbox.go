package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"

	"github.com/rzbill/labeld/pkg/log"
)

// Outbox delivers consensus notifications to the downstream evaluation
// service. Enqueue is non-blocking: a full buffer drops the notification
// with a log line rather than stalling a submit request. Delivery is
// best-effort with capped exponential backoff per notification.
type Outbox struct {
	client   *resty.Client
	endpoint string
	logger   log.Logger

	maxElapsed time.Duration
	queue      chan string

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// OutboxOptions tunes the Outbox. Zero values take defaults.
type OutboxOptions struct {
	Endpoint   string        // consensus service URL, required
	Buffer     int           // pending notification capacity, default 256
	Timeout    time.Duration // per-request timeout, default 10s
	MaxElapsed time.Duration // total retry budget per notification, default 2m
}

// NewOutbox builds an Outbox. Start must be called before notifications
// are delivered.
func NewOutbox(opts OutboxOptions, logger log.Logger) *Outbox {
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = 2 * time.Minute
	}
	if logger == nil {
		logger = log.NewLogger(log.WithLevel(log.InfoLevel))
	}
	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json")
	return &Outbox{
		client:     client,
		endpoint:   opts.Endpoint,
		logger:     logger.WithComponent("outbox"),
		maxElapsed: opts.MaxElapsed,
		queue:      make(chan string, opts.Buffer),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Enqueue queues a datapoint ID for delivery. Never blocks.
func (o *Outbox) Enqueue(taskID string) {
	select {
	case o.queue <- taskID:
	default:
		o.logger.Warn("outbox full, notification dropped", log.F("task_id", taskID))
	}
}

// Pending reports the number of queued notifications.
func (o *Outbox) Pending() int { return len(o.queue) }

// Start launches the delivery loop.
func (o *Outbox) Start(ctx context.Context) {
	go o.run(ctx)
}

// Stop halts the loop after the in-flight delivery finishes. Queued but
// undelivered notifications are discarded.
func (o *Outbox) Stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
	<-o.doneCh
}

func (o *Outbox) run(ctx context.Context) {
	defer close(o.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case taskID := <-o.queue:
			if err := o.deliver(ctx, taskID); err != nil {
				o.logger.Error("consensus notification failed",
					log.F("task_id", taskID),
					log.F("error", err.Error()),
				)
			}
		}
	}
}

func (o *Outbox) deliver(ctx context.Context, taskID string) error {
	if o.endpoint == "" {
		return nil
	}
	op := func() error {
		resp, err := o.client.R().
			SetContext(ctx).
			SetBody(map[string]string{"datapoint_id": taskID}).
			Post(o.endpoint)
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("consensus service returned %s", resp.Status())
		}
		return nil
	}

	policy := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(o.maxElapsed),
	), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return err
	}
	o.logger.Debug("consensus notification delivered", log.F("task_id", taskID))
	return nil
}
