package port

import (
	"context"
	"errors"
	"time"

	"github.com/clearwave/callsig/internal/core/domain"
	"github.com/clearwave/callsig/internal/core/query"
)

// ErrNotFound means the target row is already gone. Most call transitions
// treat this as "already resolved", not as a failure.
var ErrNotFound = errors.New("row not found")

// Patches carry absolute state, never deltas. A nil field is left untouched.

type IntentPatch struct {
	Status    *domain.CallStatus
	UpdatedAt *time.Time
}

type GroupCallPatch struct {
	IsActive *bool
	EndedAt  *time.Time
}

type ParticipantPatch struct {
	IsActive *bool
	JoinedAt *time.Time
	LeftAt   *time.Time
}

type CallIntentStore interface {
	Insert(ctx context.Context, intent domain.CallIntent) error
	// Update applies the patch to every row matching f and reports how many
	// rows matched. Matching zero rows is not an error.
	Update(ctx context.Context, f query.Filter, p IntentPatch) (int64, error)
	Delete(ctx context.Context, f query.Filter) (int64, error)
	Find(ctx context.Context, f query.Filter) ([]domain.CallIntent, error)
}

type GroupCallStore interface {
	Insert(ctx context.Context, call domain.GroupCall) error
	Update(ctx context.Context, f query.Filter, p GroupCallPatch) (int64, error)
	Find(ctx context.Context, f query.Filter) ([]domain.GroupCall, error)
}

type ParticipantStore interface {
	// Upsert inserts the participant or, when a row for the same
	// (call_id, user_address) exists, overwrites it. Rejoin never
	// produces a duplicate row.
	Upsert(ctx context.Context, p domain.GroupCallParticipant) error
	Update(ctx context.Context, f query.Filter, p ParticipantPatch) (int64, error)
	Find(ctx context.Context, f query.Filter) ([]domain.GroupCallParticipant, error)
}

// Registry is the strongly-consistent store of call state. It is the single
// source of truth; everything held in process is a derived view.
type Registry interface {
	CallIntents() CallIntentStore
	GroupCalls() GroupCallStore
	Participants() ParticipantStore
}
