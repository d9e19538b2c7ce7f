// This file defines the call-signaling state machine.
// A CallSession tracks one audio/video call attempt; the media itself never
// passes through this core, only the handshake payloads.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type CallKind string

const (
	CallAudio CallKind = "audio"
	CallVideo CallKind = "video"
)

func ParseCallKind(s string) (CallKind, bool) {
	switch CallKind(s) {
	case CallAudio, CallVideo:
		return CallKind(s), true
	default:
		return "", false
	}
}

type CallState string

const (
	CallIdle      CallState = "idle"
	CallRinging   CallState = "ringing"
	CallConnected CallState = "connected"
	CallEnded     CallState = "ended"
	CallRejected  CallState = "rejected"
	CallTimedOut  CallState = "timed_out"
	CallFailed    CallState = "failed"
)

// transitions encodes every legal edge of the state machine.
// Terminal states have no outgoing edges.
var transitions = map[CallState][]CallState{
	CallIdle:      {CallRinging},
	CallRinging:   {CallConnected, CallRejected, CallTimedOut, CallEnded, CallFailed},
	CallConnected: {CallEnded, CallFailed},
}

// CanTransition reports whether moving from s to next is legal.
func (s CallState) CanTransition(next CallState) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s CallState) Terminal() bool {
	return len(transitions[s]) == 0
}

// CallSession is the signaling-level bookkeeping for one call attempt.
type CallSession struct {
	CallID      uuid.UUID  `json:"call_id"`
	CallerID    string     `json:"caller_id"`
	CalleeID    string     `json:"callee_id"`
	Kind        CallKind   `json:"kind"`
	State       CallState  `json:"state"`
	StartedAt   time.Time  `json:"started_at"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

// Involves reports whether the user is one of the two call parties.
func (c CallSession) Involves(userID string) bool {
	return c.CallerID == userID || c.CalleeID == userID
}

// Other returns the opposite party of userID.
func (c CallSession) Other(userID string) string {
	if c.CallerID == userID {
		return c.CalleeID
	}
	return c.CallerID
}
