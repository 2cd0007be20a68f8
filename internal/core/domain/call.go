package domain

import "time"

// Registry table names, shared with change-feed subscriptions.
const (
	TableCallIntents  = "call_intents"
	TableGroupCalls   = "group_calls"
	TableParticipants = "group_call_participants"
)

type CallStatus string

const (
	StatusRinging  CallStatus = "ringing"
	StatusAccepted CallStatus = "accepted"
	StatusRejected CallStatus = "rejected"
	StatusEnded    CallStatus = "ended"
	StatusMissed   CallStatus = "missed"
)

// Live reports whether the intent still binds both parties: an incoming
// prompt on the callee side, or an established call.
func (s CallStatus) Live() bool {
	return s == StatusRinging || s == StatusAccepted
}

func (s CallStatus) Terminal() bool {
	switch s {
	case StatusRejected, StatusEnded, StatusMissed:
		return true
	}
	return false
}

func (s CallStatus) Valid() bool {
	return s.Live() || s.Terminal()
}

// LiveStatusValues is the usual IN(...) argument for filters over rows
// that still bind both parties.
func LiveStatusValues() []any {
	return []any{StatusRinging, StatusAccepted}
}

// CallIntent is one proposed or established 1:1 call. A row is created in
// ringing, moves exactly once into a terminal status and is never reused;
// a fresh call always gets a fresh id.
type CallIntent struct {
	ID        CallID     `json:"id"`
	Caller    string     `json:"caller"`
	Callee    string     `json:"callee"`
	Channel   ChannelID  `json:"channel"`
	Status    CallStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func NewCallIntent(caller, callee string, channel ChannelID) CallIntent {
	now := time.Now().UTC()
	return CallIntent{
		ID:        NewCallID(),
		Caller:    caller,
		Callee:    callee,
		Channel:   channel,
		Status:    StatusRinging,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Involves reports whether user is either party of the intent.
func (c CallIntent) Involves(user string) bool {
	return c.Caller == user || c.Callee == user
}

// Other returns the opposite party from user's point of view.
func (c CallIntent) Other(user string) string {
	if c.Caller == user {
		return c.Callee
	}
	return c.Caller
}

// Field resolves a registry column name for filter evaluation.
func (c CallIntent) Field(name string) any {
	switch name {
	case "id":
		return c.ID
	case "caller":
		return c.Caller
	case "callee":
		return c.Callee
	case "channel":
		return c.Channel
	case "status":
		return c.Status
	default:
		return nil
	}
}
