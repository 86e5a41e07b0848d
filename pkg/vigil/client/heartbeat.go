package client

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// heartbeat owns the single liveness ticker for one session. start is
// idempotent (it stops any previous ticker first), so at most one
// ticker is ever active, and stop is safe to call when already
// stopped. The only state held is the ticker handle and the interval.
type heartbeat struct {
	send    func() error // enqueue one heartbeat frame
	alive   func() bool  // transport still open
	logger  *zap.Logger
	metrics *Metrics

	mu       sync.Mutex
	ticker   *time.Ticker
	done     chan struct{}
	interval time.Duration
}

func newHeartbeat(send func() error, alive func() bool, logger *zap.Logger, metrics *Metrics) *heartbeat {
	return &heartbeat{
		send:    send,
		alive:   alive,
		logger:  logger,
		metrics: metrics,
	}
}

// start begins ticking at the given interval. A missing, zero, or
// negative interval leaves the manager stopped with a warning; it
// never panics.
func (h *heartbeat) start(interval time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopLocked()

	if interval <= 0 {
		h.logger.Warn("Rejecting unusable heartbeat interval",
			zap.Duration("interval", interval))
		return
	}

	h.interval = interval
	h.ticker = time.NewTicker(interval)
	h.done = make(chan struct{})
	go h.run(h.ticker, h.done)

	h.logger.Debug("Heartbeat started", zap.Duration("interval", interval))
}

// stop halts the ticker. No-op when already stopped.
func (h *heartbeat) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()
}

func (h *heartbeat) stopLocked() {
	if h.ticker != nil {
		h.ticker.Stop()
		h.ticker = nil
	}
	if h.done != nil {
		close(h.done)
		h.done = nil
	}
	h.interval = 0
}

// stopOwned stops the manager only if done still belongs to the
// running ticker, so a stale goroutine cannot kill a restarted one.
func (h *heartbeat) stopOwned(done chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done == done {
		h.stopLocked()
	}
}

// active reports whether a ticker is currently running.
func (h *heartbeat) active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ticker != nil
}

// currentInterval returns the active interval, or zero when stopped.
func (h *heartbeat) currentInterval() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interval
}

func (h *heartbeat) run(ticker *time.Ticker, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !h.alive() {
				// Self-healing: a tick against a dead transport stops
				// the manager instead of erroring out of the tick.
				h.logger.Warn("Heartbeat ticking against a closed transport, stopping")
				h.stopOwned(done)
				return
			}
			if err := h.send(); err != nil {
				// Not retried here; a broken transport surfaces through
				// its own error path.
				h.logger.Warn("Failed to enqueue heartbeat", zap.Error(err))
				continue
			}
			h.metrics.RecordHeartbeatSent(context.Background())
		}
	}
}
