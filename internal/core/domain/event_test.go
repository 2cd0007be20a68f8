package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCallIntent(t *testing.T) {
	t.Run("valid row round-trips", func(t *testing.T) {
		want := NewCallIntent("alice", "bob", NewChannelID())
		raw, err := json.Marshal(want)
		require.NoError(t, err)

		got, err := DecodeCallIntent(raw)
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Channel, got.Channel)
		assert.Equal(t, StatusRinging, got.Status)
	})

	t.Run("malformed json is rejected", func(t *testing.T) {
		_, err := DecodeCallIntent([]byte(`{"id": 42}`))
		assert.Error(t, err)
	})

	t.Run("missing id is rejected", func(t *testing.T) {
		_, err := DecodeCallIntent([]byte(`{"caller":"alice","status":"ringing"}`))
		assert.Error(t, err)
	})

	t.Run("unknown status is rejected", func(t *testing.T) {
		_, err := DecodeCallIntent([]byte(`{"id":"x","status":"exploded"}`))
		assert.Error(t, err)
	})
}

func TestDecodeGroupCall(t *testing.T) {
	t.Run("valid row round-trips", func(t *testing.T) {
		want := NewGroupCall("g1", "Team", "alice", true)
		raw, err := json.Marshal(want)
		require.NoError(t, err)

		got, err := DecodeGroupCall(raw)
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.True(t, got.IsActive)
		assert.True(t, got.IsVideo)
	})

	t.Run("missing group id is rejected", func(t *testing.T) {
		_, err := DecodeGroupCall([]byte(`{"id":"x","is_active":true}`))
		assert.Error(t, err)
	})
}

func TestDecodeParticipant(t *testing.T) {
	_, err := DecodeParticipant([]byte(`{"call_id":"","user_address":"bob"}`))
	assert.Error(t, err)

	p, err := DecodeParticipant([]byte(`{"call_id":"c1","user_address":"bob","is_active":true}`))
	require.NoError(t, err)
	assert.Equal(t, CallID("c1"), p.CallID)
}
