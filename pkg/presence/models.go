package presence

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Conn is the transport handle the registry holds for a live connection.
// *transport.Connection satisfies it; tests substitute fakes.
type Conn interface {
	ID() uuid.UUID
	Send(message []byte)
	Close(err error)
}

// Record represents a single live connection and, once associated, the user
// it speaks for. There is at most one associated Record per identity.
type Record struct {
	ID          uuid.UUID
	IPAddress   string
	AuthSubject string          // validated identity from the auth layer
	Identity    string          // canonical identity, empty until associated
	User        json.RawMessage // profile object supplied on association
	Transport   Conn
	CreatedAt   time.Time
	LastSeenAt  time.Time
}

// Entry is one element of the presence broadcast payload.
type Entry struct {
	User     json.RawMessage `json:"user"`
	SocketID string          `json:"socketId"`
}
