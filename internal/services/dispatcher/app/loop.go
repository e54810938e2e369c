// Package app runs the outbound delivery dispatcher: a polling loop that
// drains the federation delivery queue and posts signed activity bodies to
// remote inboxes, requeueing failures with backoff.
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/louisbranch/neso/internal/platform/timeouts"
	"github.com/louisbranch/neso/internal/services/federation/storage"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultMaxAttempts  = 8
)

// Queue is the delivery queue surface the loop drains. Dequeue transfers
// exclusive ownership of one due row; requeue returns a failed row for
// another attempt.
type Queue interface {
	DequeueDelivery(ctx context.Context) (*storage.DeliveryRecord, time.Time, error)
	RequeueDelivery(ctx context.Context, delivery storage.DeliveryRecord) error
}

// Sender performs one outbound delivery attempt. A non-nil error marks the
// attempt failed and eligible for requeue.
type Sender interface {
	Send(ctx context.Context, delivery storage.DeliveryRecord) error
}

// Config controls loop pacing and retry limits.
type Config struct {
	PollInterval time.Duration
	MaxAttempts  int
	SendTimeout  time.Duration
}

func (c Config) normalized() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = timeouts.DeliverySend
	}
	return c
}

// Loop drains the delivery queue until its context is canceled.
type Loop struct {
	queue  Queue
	sender Sender
	cfg    Config
	clock  func() time.Time
	logf   func(format string, args ...any)
}

// New constructs a dispatcher loop. logf may be nil, in which case the
// standard logger is used.
func New(queue Queue, sender Sender, cfg Config, logf func(format string, args ...any)) (*Loop, error) {
	if queue == nil {
		return nil, fmt.Errorf("delivery queue is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if logf == nil {
		logf = log.Printf
	}
	return &Loop{
		queue:  queue,
		sender: sender,
		cfg:    cfg.normalized(),
		clock:  time.Now,
		logf:   logf,
	}, nil
}

// Run drains the queue until ctx is canceled, then returns nil. Queue and
// send failures are logged and retried, never fatal.
func (l *Loop) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		if ctx.Err() != nil {
			return nil
		}

		delivery, waitUntil, err := l.queue.DequeueDelivery(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.logf("dequeue delivery: %v", err)
			if sleepErr := l.sleep(ctx, l.cfg.PollInterval); sleepErr != nil {
				return nil
			}
			continue
		}
		if delivery == nil {
			if sleepErr := l.sleep(ctx, l.idleWait(waitUntil)); sleepErr != nil {
				return nil
			}
			continue
		}

		l.process(ctx, *delivery)
	}
}

// process attempts one send and decides the row's fate: done, requeued, or
// dropped after the attempt limit.
func (l *Loop) process(ctx context.Context, delivery storage.DeliveryRecord) {
	sendCtx, cancel := context.WithTimeout(ctx, l.cfg.SendTimeout)
	err := l.sender.Send(sendCtx, delivery)
	cancel()
	if err == nil {
		return
	}

	if delivery.Attempt+1 >= l.cfg.MaxAttempts {
		l.logf("drop delivery to %s after %d attempts: %v", delivery.Address, delivery.Attempt+1, err)
		return
	}
	l.logf("delivery to %s failed on attempt %d, requeueing: %v", delivery.Address, delivery.Attempt+1, err)
	if requeueErr := l.queue.RequeueDelivery(ctx, delivery); requeueErr != nil {
		l.logf("requeue delivery to %s: %v", delivery.Address, requeueErr)
	}
}

// idleWait picks the pause before the next poll: up to the next due time
// when the queue holds only future work, one poll interval otherwise.
func (l *Loop) idleWait(waitUntil time.Time) time.Duration {
	wait := l.cfg.PollInterval
	if !waitUntil.IsZero() {
		if until := waitUntil.Sub(l.clock()); until < wait {
			wait = until
		}
	}
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait
}

// sleep pauses for d or until ctx cancellation, whichever comes first. A
// non-nil return means shutdown.
func (l *Loop) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
