// Package ws consumes the change feed over a websocket. The stream can
// silently die at any time; the client re-dials and re-subscribes, and the
// reconciliation poll covers whatever was missed in between.
package ws

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/clearwave/callsig/internal/core/port"
	"github.com/clearwave/callsig/internal/core/query"
)

const redialDelay = 2 * time.Second

type Feed struct {
	url string
}

func NewFeed(url string) *Feed {
	return &Feed{url: url}
}

type subscribeFrame struct {
	Table  string       `json:"table"`
	Filter query.Filter `json:"filter"`
}

// Subscribe opens the stream and keeps it open until ctx is cancelled,
// re-subscribing after every drop. The returned channel is closed on
// cancellation.
func (f *Feed) Subscribe(ctx context.Context, table string, filter query.Filter) (<-chan port.Event, error) {
	if f.url == "" {
		return nil, errors.New("change feed url not configured")
	}
	out := make(chan port.Event, 32)
	go f.run(ctx, table, filter, out)
	return out, nil
}

func (f *Feed) run(ctx context.Context, table string, filter query.Filter, out chan<- port.Event) {
	defer close(out)
	for {
		if err := f.stream(ctx, table, filter, out); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("table", table).Msg("Feed stream dropped, re-subscribing")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(redialDelay):
		}
	}
}

func (f *Feed) stream(ctx context.Context, table string, filter query.Filter, out chan<- port.Event) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return errors.Wrap(err, "dial change feed")
	}
	defer conn.Close()

	// Unblock ReadJSON when the context goes away.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := conn.WriteJSON(subscribeFrame{Table: table, Filter: filter}); err != nil {
		return errors.Wrap(err, "send subscribe frame")
	}
	log.Info().Str("table", table).Msg("Change feed subscribed")

	for {
		var ev port.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errors.Wrap(err, "read feed event")
			}
			return err
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
