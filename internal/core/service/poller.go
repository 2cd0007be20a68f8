package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Poller drives a reconcile func at a fixed interval. It is the
// authoritative backstop for the best-effort change feed: whatever state
// a push event failed to deliver, the next tick observes directly from
// the registry.
type Poller struct {
	interval  time.Duration
	reconcile func(ctx context.Context) error
}

func NewPoller(interval time.Duration, reconcile func(ctx context.Context) error) *Poller {
	return &Poller{
		interval:  interval,
		reconcile: reconcile,
	}
}

// Run blocks until ctx is cancelled. Reconcile errors are logged and the
// loop keeps going; a broken tick is corrected by the next one.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.reconcile(ctx); err != nil {
				log.Warn().Err(err).Msg("Reconcile tick failed")
			}
		}
	}
}
