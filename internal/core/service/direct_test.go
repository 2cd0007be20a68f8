package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearwave/callsig/internal/adapter/driven/registry/memory"
	"github.com/clearwave/callsig/internal/core/domain"
	"github.com/clearwave/callsig/internal/core/port"
	"github.com/clearwave/callsig/internal/core/query"
)

// two clients sharing one registry, the way two real processes would.
func newDirectPair(t *testing.T) (*memory.Registry, *DirectCallService, *DirectCallService) {
	t.Helper()
	reg := memory.NewRegistry()
	alice := NewDirectCallService("alice", reg, reg, nil)
	bob := NewDirectCallService("bob", reg, reg, nil)
	return reg, alice, bob
}

func liveRows(t *testing.T, reg *memory.Registry) []domain.CallIntent {
	t.Helper()
	rows, err := reg.CallIntents().Find(context.Background(),
		query.Where(query.In("status", domain.LiveStatusValues()...)))
	require.NoError(t, err)
	return rows
}

func TestDirectCallLifecycle(t *testing.T) {
	ctx := context.Background()
	reg, alice, bob := newDirectPair(t)

	intent, err := alice.StartCall(ctx, "bob", domain.NewChannelID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRinging, intent.Status)
	require.Len(t, liveRows(t, reg), 1)
	require.NotNil(t, alice.State().Outgoing)

	channel, err := bob.AcceptCall(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, intent.Channel, channel)
	assert.Equal(t, intent.ID, bob.State().ActiveCallID)

	// Caller learns about the accept on its next reconcile.
	require.NoError(t, alice.Reconcile(ctx))
	st := alice.State()
	assert.Nil(t, st.Outgoing)
	assert.Equal(t, intent.ID, st.ActiveCallID)

	require.NoError(t, alice.EndCall(ctx))
	rows, err := reg.CallIntents().Find(ctx, query.Where(query.Eq("id", intent.ID)))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.StatusEnded, rows[0].Status)
	assert.Empty(t, liveRows(t, reg))

	// The settled row does not interfere with a fresh call for the pair.
	next, err := alice.StartCall(ctx, "bob", domain.NewChannelID())
	require.NoError(t, err)
	assert.NotEqual(t, intent.ID, next.ID)
	assert.Len(t, liveRows(t, reg), 1)
}

func TestStartCallPurgesStaleRows(t *testing.T) {
	ctx := context.Background()
	reg, alice, _ := newDirectPair(t)

	// A crashed client left a live row behind.
	first, err := alice.StartCall(ctx, "bob", domain.NewChannelID())
	require.NoError(t, err)

	second, err := alice.StartCall(ctx, "bob", domain.NewChannelID())
	require.NoError(t, err)

	rows := liveRows(t, reg)
	require.Len(t, rows, 1)
	assert.Equal(t, second.ID, rows[0].ID)
	assert.NotEqual(t, first.ID, rows[0].ID)
}

func TestAcceptCall(t *testing.T) {
	ctx := context.Background()

	t.Run("idempotent accept returns the same channel", func(t *testing.T) {
		_, alice, bob := newDirectPair(t)
		intent, err := alice.StartCall(ctx, "bob", domain.NewChannelID())
		require.NoError(t, err)

		ch1, err := bob.AcceptCall(ctx, intent.ID)
		require.NoError(t, err)
		ch2, err := bob.AcceptCall(ctx, intent.ID)
		require.NoError(t, err)
		assert.Equal(t, ch1, ch2)
	})

	t.Run("accepting a missing intent fails", func(t *testing.T) {
		_, _, bob := newDirectPair(t)
		_, err := bob.AcceptCall(ctx, domain.NewCallID())
		assert.ErrorIs(t, err, port.ErrNotFound)
	})

	t.Run("accepting a rejected intent fails", func(t *testing.T) {
		_, alice, bob := newDirectPair(t)
		intent, err := alice.StartCall(ctx, "bob", domain.NewChannelID())
		require.NoError(t, err)
		require.NoError(t, bob.RejectCall(ctx, intent.ID))

		_, err = bob.AcceptCall(ctx, intent.ID)
		assert.Error(t, err)
	})
}

func TestRejectCallIdempotent(t *testing.T) {
	ctx := context.Background()
	reg, alice, bob := newDirectPair(t)

	intent, err := alice.StartCall(ctx, "bob", domain.NewChannelID())
	require.NoError(t, err)

	require.NoError(t, bob.RejectCall(ctx, intent.ID))
	rows, err := reg.CallIntents().Find(ctx, query.Where(query.Eq("id", intent.ID)))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	first := rows[0]
	assert.Equal(t, domain.StatusRejected, first.Status)

	// Second reject is a no-op, not an error, and changes nothing.
	require.NoError(t, bob.RejectCall(ctx, intent.ID))
	rows, err = reg.CallIntents().Find(ctx, query.Where(query.Eq("id", intent.ID)))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, first, rows[0])

	// As is rejecting a row that is already gone.
	require.NoError(t, bob.RejectCall(ctx, domain.NewCallID()))
}

func TestEndCallIsRoleAgnostic(t *testing.T) {
	ctx := context.Background()
	reg, alice, bob := newDirectPair(t)

	intent, err := alice.StartCall(ctx, "bob", domain.NewChannelID())
	require.NoError(t, err)
	_, err = bob.AcceptCall(ctx, intent.ID)
	require.NoError(t, err)

	// The callee hangs up without knowing which role it played.
	require.NoError(t, bob.EndCall(ctx))
	rows, err := reg.CallIntents().Find(ctx, query.Where(query.Eq("id", intent.ID)))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.StatusEnded, rows[0].Status)

	// Ending again with nothing live is a no-op.
	require.NoError(t, alice.EndCall(ctx))
}

func TestCancelCall(t *testing.T) {
	ctx := context.Background()
	reg, alice, _ := newDirectPair(t)

	intent, err := alice.StartCall(ctx, "bob", domain.NewChannelID())
	require.NoError(t, err)
	require.NoError(t, alice.CancelCall(ctx, intent.ID))

	rows, err := reg.CallIntents().Find(ctx, query.Where(query.Eq("id", intent.ID)))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.StatusEnded, rows[0].Status)
	assert.Nil(t, alice.State().Outgoing)
}

func TestDirectFeedFastPath(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, alice, bob := newDirectPair(t)

	go bob.Run(ctx)
	go alice.Run(ctx)
	time.Sleep(10 * time.Millisecond) // let subscriptions attach

	intent, err := alice.StartCall(ctx, "bob", domain.NewChannelID())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st := bob.State()
		return st.Incoming != nil && st.Incoming.ID == intent.ID
	}, time.Second, 5*time.Millisecond, "callee never saw the incoming call")

	_, err = bob.AcceptCall(ctx, intent.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st := alice.State()
		return st.Outgoing == nil && st.ActiveCallID == intent.ID
	}, time.Second, 5*time.Millisecond, "caller never saw the accept")

	require.NoError(t, bob.EndCall(ctx))
	require.Eventually(t, func() bool {
		st := alice.State()
		return st.ActiveCallID == "" && st.RemoteHangup
	}, time.Second, 5*time.Millisecond, "caller never saw the hangup")
}

func TestDirectReconcileCorrectsStaleState(t *testing.T) {
	ctx := context.Background()
	_, alice, bob := newDirectPair(t)

	intent, err := alice.StartCall(ctx, "bob", domain.NewChannelID())
	require.NoError(t, err)
	_, err = bob.AcceptCall(ctx, intent.ID)
	require.NoError(t, err)
	require.NoError(t, alice.Reconcile(ctx))
	require.Equal(t, intent.ID, alice.State().ActiveCallID)

	// The call ends while alice misses every push event.
	require.NoError(t, bob.EndCall(ctx))

	require.NoError(t, alice.Reconcile(ctx))
	st := alice.State()
	assert.Empty(t, st.ActiveCallID)
	assert.True(t, st.RemoteHangup)
	assert.Nil(t, st.Incoming)
	assert.Nil(t, st.Outgoing)
}

func TestDirectNotifierFailureDoesNotFailCall(t *testing.T) {
	ctx := context.Background()
	reg := memory.NewRegistry()
	alice := NewDirectCallService("alice", reg, reg, failingNotifier{})

	_, err := alice.StartCall(ctx, "bob", domain.NewChannelID())
	require.NoError(t, err)
	assert.Len(t, liveRows(t, reg), 1)
}

type failingNotifier struct{}

func (failingNotifier) Send(context.Context, string, port.CallAlert) error {
	return assert.AnError
}
