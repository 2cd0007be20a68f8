package domain

import (
	"github.com/google/uuid"
)

type CallID string

func NewCallID() CallID {
	return CallID(uuid.New().String())
}

func (id CallID) String() string {
	return string(id)
}

// ChannelID is the opaque identifier handed to the media transport layer.
// Signaling never looks inside it.
type ChannelID string

func NewChannelID() ChannelID {
	return ChannelID(uuid.New().String())
}

func (id ChannelID) String() string {
	return string(id)
}
