package notification

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrClosed = errors.New("notification: dispatcher closed")

// Async hands notifications to the wrapped Dispatcher on a goroutine so the
// caller never waits for delivery. Failures are logged, not returned.
type Async struct {
	next    Dispatcher
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewAsync(next Dispatcher, timeout time.Duration, logger *slog.Logger) *Async {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Async{next: next, timeout: timeout, logger: logger}
}

func (a *Async) Dispatch(ctx context.Context, ns ...Notification) error {
	if len(ns) == 0 {
		return nil
	}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()
		if err := a.next.Dispatch(ctx, ns...); err != nil {
			a.logger.Error("notification dispatch failed",
				"event", "notification_dispatch_failed",
				"module", "notification",
				"layer", "async",
				"topic", ns[0].Topic,
				"count", len(ns),
				"error", err.Error(),
			)
		}
	}()
	return nil
}

// Close stops accepting work and waits for in-flight dispatches or ctx.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
