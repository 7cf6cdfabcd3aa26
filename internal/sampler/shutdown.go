package sampler

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// Shutdown cooperatively signals every worker to stop after its current
// round, on SIGINT/SIGTERM or context cancellation. It is grounded on
// the teacher's emergency.Controller, simplified from a callback list to
// a single polled flag since every worker already re-checks shared
// state once per round at the barrier.
type Shutdown struct {
	stop atomic.Bool
}

// NewShutdown returns an unsignalled Shutdown.
func NewShutdown() *Shutdown { return &Shutdown{} }

// Watch installs SIGINT/SIGTERM handlers and also trips the flag when
// ctx is cancelled.
func (s *Shutdown) Watch(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-ctx.Done():
		case <-sigCh:
		}
		s.stop.Store(true)
		signal.Stop(sigCh)
	}()
}

// Done reports whether a stop has been requested.
func (s *Shutdown) Done() bool { return s.stop.Load() }

// Request manually triggers a stop.
func (s *Shutdown) Request() { s.stop.Store(true) }
