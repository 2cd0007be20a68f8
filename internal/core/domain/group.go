package domain

import "time"

// GroupCall is a multi-party session tied to a group. At most one row per
// group has IsActive=true; once a call ends it is never reactivated and a
// restart for the same group creates a fresh id.
type GroupCall struct {
	ID        CallID     `json:"id"`
	GroupID   string     `json:"group_id"`
	GroupName string     `json:"group_name"`
	Channel   ChannelID  `json:"channel"`
	StartedBy string     `json:"started_by"`
	IsVideo   bool       `json:"is_video"`
	StartedAt time.Time  `json:"started_at"`
	IsActive  bool       `json:"is_active"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

func NewGroupCall(groupID, groupName, startedBy string, isVideo bool) GroupCall {
	return GroupCall{
		ID:        NewCallID(),
		GroupID:   groupID,
		GroupName: groupName,
		Channel:   NewChannelID(),
		StartedBy: startedBy,
		IsVideo:   isVideo,
		StartedAt: time.Now().UTC(),
		IsActive:  true,
	}
}

func (g GroupCall) Field(name string) any {
	switch name {
	case "id":
		return g.ID
	case "group_id":
		return g.GroupID
	case "started_by":
		return g.StartedBy
	case "is_active":
		return g.IsActive
	default:
		return nil
	}
}

// GroupCallParticipant is one user's membership in a group call, unique on
// (CallID, UserAddress). Rejoin flips the same row back to active.
type GroupCallParticipant struct {
	CallID      CallID     `json:"call_id"`
	UserAddress string     `json:"user_address"`
	JoinedAt    time.Time  `json:"joined_at"`
	LeftAt      *time.Time `json:"left_at,omitempty"`
	IsActive    bool       `json:"is_active"`
}

func NewGroupCallParticipant(callID CallID, user string) GroupCallParticipant {
	return GroupCallParticipant{
		CallID:      callID,
		UserAddress: user,
		JoinedAt:    time.Now().UTC(),
		IsActive:    true,
	}
}

func (p GroupCallParticipant) Field(name string) any {
	switch name {
	case "call_id":
		return p.CallID
	case "user_address":
		return p.UserAddress
	case "is_active":
		return p.IsActive
	default:
		return nil
	}
}
