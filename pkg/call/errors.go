package call

import "errors"

// Error taxonomy for the signaling core. All of these are local, recoverable
// conditions; the router surfaces them to the initiating connection as
// outbound events, never as connection teardown.
var (
	// ErrNotFound: unknown callId or an already-cleaned-up session. Expected
	// during end/disconnect races and never logged as an error.
	ErrNotFound = errors.New("call session not found")

	// ErrForbidden: the acting identity is not allowed to drive this
	// transition (e.g. a non-receiver accepting a call).
	ErrForbidden = errors.New("identity is not a participant in this transition")

	// ErrInvalidState: the transition is not legal from the session's
	// current state.
	ErrInvalidState = errors.New("invalid call state for this transition")

	// ErrAlreadyInProgress: a non-terminal session already exists for the
	// same ordered caller/receiver pair.
	ErrAlreadyInProgress = errors.New("call already in progress between these users")

	// ErrPeerUnreachable: the target has no live connection.
	ErrPeerUnreachable = errors.New("peer has no live connection")
)
