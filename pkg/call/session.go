package call

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

type MediaType string

const (
	MediaAudio MediaType = "audio"
	MediaVideo MediaType = "video"
)

// ParseMediaType validates a callType field from the wire.
func ParseMediaType(s string) (MediaType, bool) {
	switch MediaType(s) {
	case MediaAudio, MediaVideo:
		return MediaType(s), true
	}
	return "", false
}

type State string

const (
	StateRinging   State = "ringing"
	StateConnected State = "connected"

	// Terminal states. Sessions are deleted from the store on reaching one of
	// these; they only appear on session snapshots handed back to callers.
	StateEnded    State = "ended"
	StateRejected State = "rejected"
	StateFailed   State = "failed"
)

func (s State) Terminal() bool {
	return s == StateEnded || s == StateRejected || s == StateFailed
}

// Session is the control-plane record for one call.
type Session struct {
	ID         string     `json:"callId"`
	Caller     string     `json:"caller"`
	Receiver   string     `json:"receiver"`
	Type       MediaType  `json:"type"`
	Status     State      `json:"status"`
	StartedAt  time.Time  `json:"startTime"`
	AcceptedAt *time.Time `json:"acceptedAt,omitempty"`

	ringDeadline time.Time
}

// Peer returns the other participant, or "" if the identity is not part of
// the session.
func (s *Session) Peer(identity string) string {
	switch identity {
	case s.Caller:
		return s.Receiver
	case s.Receiver:
		return s.Caller
	}
	return ""
}

func (s *Session) isParticipant(identity string) bool {
	return identity == s.Caller || identity == s.Receiver
}

// newCallID returns an opaque call token. 20 bytes of entropy keeps collision
// probability negligible at any realistic call volume.
func newCallID() string {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the process cannot do anything useful.
		panic(err)
	}
	return hex.EncodeToString(b)
}
