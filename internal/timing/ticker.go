package timing

import (
	"context"
	"sync"
	"time"
)

// Ticker calls a function on a fixed interval until stopped. It drives the on-screen
// clock between full log replays.
type Ticker struct {
	interval time.Duration
	fn       func(time.Time)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTicker returns a stopped ticker; interval defaults to one second.
func NewTicker(interval time.Duration, fn func(time.Time)) *Ticker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Ticker{interval: interval, fn: fn}
}

// Start launches the tick loop. Starting a running ticker is a no-op.
func (t *Ticker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		tk := time.NewTicker(t.interval)
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-tk.C:
				t.fn(now)
			}
		}
	}(t.done)
}

// Stop cancels the loop and waits for it to exit.
func (t *Ticker) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is active.
func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}
