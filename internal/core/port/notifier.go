package port

import "context"

// CallAlert is the out-of-band "you have a call" payload handed to the
// notification dispatcher alongside the target user.
type CallAlert struct {
	Type       string `json:"type"`
	CallerID   string `json:"caller_id"`
	CallerName string `json:"caller_name"`
	URL        string `json:"url"`
}

const AlertIncomingCall = "incoming_call"

// Notifier is fire-and-forget: a delivery failure is logged by the caller
// and never fails the operation that triggered it.
type Notifier interface {
	Send(ctx context.Context, target string, alert CallAlert) error
}
