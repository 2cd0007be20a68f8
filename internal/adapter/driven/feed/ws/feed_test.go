package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearwave/callsig/internal/core/domain"
	"github.com/clearwave/callsig/internal/core/port"
	"github.com/clearwave/callsig/internal/core/query"
)

var upgrader = websocket.Upgrader{}

// feedServer upgrades, reads the subscribe frame, and replays canned events.
func feedServer(t *testing.T, subscribes *atomic.Int64, events ...port.Event) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub subscribeFrame
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		if sub.Table == "" {
			t.Error("subscribe frame missing table")
			return
		}
		subscribes.Add(1)
		for _, ev := range events {
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
		// Hold the stream open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSubscribeDeliversEvents(t *testing.T) {
	intent := domain.NewCallIntent("alice", "bob", domain.NewChannelID())
	raw, err := json.Marshal(intent)
	require.NoError(t, err)

	var subscribes atomic.Int64
	srv := feedServer(t, &subscribes, port.Event{
		Type:  port.EventInsert,
		Table: domain.TableCallIntents,
		Row:   raw,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := NewFeed(wsURL(srv)).Subscribe(ctx, domain.TableCallIntents,
		query.Where(query.Eq("callee", "bob")))
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, port.EventInsert, ev.Type)
		got, err := domain.DecodeCallIntent(ev.Row)
		require.NoError(t, err)
		assert.Equal(t, intent.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-events:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond, "stream not closed on cancel")
}

func TestSubscribeRequiresURL(t *testing.T) {
	_, err := NewFeed("").Subscribe(context.Background(), domain.TableCallIntents, query.Filter{})
	assert.Error(t, err)
}
