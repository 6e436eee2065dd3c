package call

import (
	"log/slog"
	"sync"
	"time"
)

// Store owns every in-flight call session and serializes all state-machine
// transitions behind one mutex. Methods return defensive copies; callers
// never see the live record, so no store lock is ever held while the router
// pushes outbound events.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	// pairs enforces at most one active session per ordered (caller,
	// receiver) pair.
	pairs map[pairKey]string

	ringTimeout time.Duration
	logger      *slog.Logger
}

type pairKey struct {
	caller   string
	receiver string
}

func NewStore(logger *slog.Logger, ringTimeout time.Duration) *Store {
	return &Store{
		sessions:    make(map[string]*Session),
		pairs:       make(map[pairKey]string),
		ringTimeout: ringTimeout,
		logger:      logger.With(slog.String("component", "call_store")),
	}
}

// Create stores a new session in ringing and returns its snapshot. The caller
// is responsible for the reachability precondition; the store only guards the
// one-active-session-per-pair invariant.
func (s *Store) Create(caller, receiver string, media MediaType) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{caller: caller, receiver: receiver}
	if _, exists := s.pairs[key]; exists {
		return Session{}, ErrAlreadyInProgress
	}

	sess := &Session{
		ID:        newCallID(),
		Caller:    caller,
		Receiver:  receiver,
		Type:      media,
		Status:    StateRinging,
		StartedAt: time.Now(),
	}
	if s.ringTimeout > 0 {
		sess.ringDeadline = sess.StartedAt.Add(s.ringTimeout)
	}
	s.sessions[sess.ID] = sess
	s.pairs[key] = sess.ID

	s.logger.Debug("Call session created",
		slog.String("callID", sess.ID),
		slog.String("caller", caller),
		slog.String("receiver", receiver),
		slog.String("type", string(media)),
	)
	return *sess, nil
}

// Accept transitions ringing -> connected. Only the session's receiver may
// accept, and only once.
func (s *Store) Accept(callID, identity string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[callID]
	if !ok {
		return Session{}, ErrNotFound
	}
	if identity != sess.Receiver {
		return Session{}, ErrForbidden
	}
	if sess.Status != StateRinging {
		return Session{}, ErrInvalidState
	}

	now := time.Now()
	sess.Status = StateConnected
	sess.AcceptedAt = &now

	s.logger.Debug("Call accepted", slog.String("callID", callID))
	return *sess, nil
}

// Reject terminates a ringing session. Only the receiver may reject.
func (s *Store) Reject(callID, identity string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[callID]
	if !ok {
		return Session{}, ErrNotFound
	}
	if identity != sess.Receiver {
		return Session{}, ErrForbidden
	}
	if sess.Status != StateRinging {
		return Session{}, ErrInvalidState
	}

	s.deleteLocked(sess)
	snapshot := *sess
	snapshot.Status = StateRejected

	s.logger.Debug("Call rejected", slog.String("callID", callID))
	return snapshot, nil
}

// End terminates a ringing or connected session. Either participant may end;
// ending an already-absent session reports ErrNotFound so racing enders can
// swallow it.
func (s *Store) End(callID, identity string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[callID]
	if !ok {
		return Session{}, ErrNotFound
	}
	if !sess.isParticipant(identity) {
		return Session{}, ErrForbidden
	}

	s.deleteLocked(sess)
	snapshot := *sess
	snapshot.Status = StateEnded

	s.logger.Debug("Call ended", slog.String("callID", callID), slog.String("by", identity))
	return snapshot, nil
}

// UpdateMediaState validates a mute/camera toggle relay: the session must be
// connected and the identity a participant. No state transition happens; the
// returned snapshot lets the router find the peer to forward to.
func (s *Store) UpdateMediaState(callID, identity string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[callID]
	if !ok {
		return Session{}, ErrNotFound
	}
	if !sess.isParticipant(identity) {
		return Session{}, ErrForbidden
	}
	if sess.Status != StateConnected {
		return Session{}, ErrInvalidState
	}
	return *sess, nil
}

// PurgeByIdentity force-ends every session the identity participates in,
// ringing or connected, and returns their snapshots so the router can notify
// each surviving peer. Safe to call for identities with no sessions.
func (s *Store) PurgeByIdentity(identity string) []Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ended []Session
	for _, sess := range s.sessions {
		if !sess.isParticipant(identity) {
			continue
		}
		s.deleteLocked(sess)
		snapshot := *sess
		snapshot.Status = StateEnded
		ended = append(ended, snapshot)
	}
	if len(ended) > 0 {
		s.logger.Debug("Purged call sessions for identity",
			slog.String("identity", identity),
			slog.Int("count", len(ended)),
		)
	}
	return ended
}

// ExpireRinging fails every ringing session whose deadline has passed and
// returns their snapshots. Notification is the caller's job, after this
// returns; no lock is held during sends.
func (s *Store) ExpireRinging(now time.Time) []Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []Session
	for _, sess := range s.sessions {
		if sess.Status != StateRinging || sess.ringDeadline.IsZero() || now.Before(sess.ringDeadline) {
			continue
		}
		s.deleteLocked(sess)
		snapshot := *sess
		snapshot.Status = StateFailed
		expired = append(expired, snapshot)
	}
	if len(expired) > 0 {
		s.logger.Debug("Expired ringing sessions", slog.Int("count", len(expired)))
	}
	return expired
}

// Get returns a snapshot of a session, if present.
func (s *Store) Get(callID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[callID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// Len reports how many sessions are currently stored.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// deleteLocked removes a session and its pair index entry. It never assumes
// the indexes agree; the purge paths are the safety net for any drift.
func (s *Store) deleteLocked(sess *Session) {
	delete(s.sessions, sess.ID)
	key := pairKey{caller: sess.Caller, receiver: sess.Receiver}
	if id, ok := s.pairs[key]; ok && id == sess.ID {
		delete(s.pairs, key)
	}
}
