package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollerRunsAtInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ticks atomic.Int64
	p := NewPoller(5*time.Millisecond, func(context.Context) error {
		ticks.Add(1)
		return nil
	})
	go p.Run(ctx)

	require.Eventually(t, func() bool {
		return ticks.Load() >= 3
	}, time.Second, time.Millisecond)
}

func TestPollerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var ticks atomic.Int64
	p := NewPoller(time.Millisecond, func(context.Context) error {
		ticks.Add(1)
		return nil
	})
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop on cancel")
	}
}

func TestPollerSurvivesReconcileErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ticks atomic.Int64
	p := NewPoller(time.Millisecond, func(context.Context) error {
		ticks.Add(1)
		return assert.AnError
	})
	go p.Run(ctx)

	require.Eventually(t, func() bool {
		return ticks.Load() >= 2
	}, time.Second, time.Millisecond, "loop stopped after a failed tick")
}
