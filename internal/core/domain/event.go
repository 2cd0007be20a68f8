package domain

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// The change feed hands rows over as raw JSON. These decoders are the only
// place feed payloads become typed values; anything malformed is rejected
// here so the state machines never see a half-decoded row.

func DecodeCallIntent(raw json.RawMessage) (CallIntent, error) {
	var c CallIntent
	if err := json.Unmarshal(raw, &c); err != nil {
		return CallIntent{}, errors.Wrap(err, "decode call intent")
	}
	if c.ID == "" {
		return CallIntent{}, errors.New("call intent event missing id")
	}
	if !c.Status.Valid() {
		return CallIntent{}, errors.Errorf("call intent %s has unknown status %q", c.ID, c.Status)
	}
	return c, nil
}

func DecodeGroupCall(raw json.RawMessage) (GroupCall, error) {
	var g GroupCall
	if err := json.Unmarshal(raw, &g); err != nil {
		return GroupCall{}, errors.Wrap(err, "decode group call")
	}
	if g.ID == "" {
		return GroupCall{}, errors.New("group call event missing id")
	}
	if g.GroupID == "" {
		return GroupCall{}, errors.Errorf("group call %s missing group id", g.ID)
	}
	return g, nil
}

func DecodeParticipant(raw json.RawMessage) (GroupCallParticipant, error) {
	var p GroupCallParticipant
	if err := json.Unmarshal(raw, &p); err != nil {
		return GroupCallParticipant{}, errors.Wrap(err, "decode participant")
	}
	if p.CallID == "" || p.UserAddress == "" {
		return GroupCallParticipant{}, errors.New("participant event missing key")
	}
	return p, nil
}
