package port

import (
	"context"
	"encoding/json"

	"github.com/clearwave/callsig/internal/core/query"
)

type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Event is one change-feed frame. Row stays raw until the subscriber
// decodes it; a frame that fails to decode is dropped, not propagated.
type Event struct {
	Type  EventType       `json:"type"`
	Table string          `json:"table"`
	Row   json.RawMessage `json:"row"`
}

// ChangeFeed pushes registry changes matching a subscription filter.
// Delivery is best-effort: events can be dropped or the stream can stall,
// so subscribers always keep a reconciliation poll as the backstop.
// The returned channel is closed when ctx is cancelled.
type ChangeFeed interface {
	Subscribe(ctx context.Context, table string, f query.Filter) (<-chan Event, error)
}
