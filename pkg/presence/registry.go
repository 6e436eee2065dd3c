package presence

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrUnknownConnection = errors.New("connection is not registered")

// CanonicalID normalizes an identity to its canonical string form. Identities
// arrive from JSON payloads as strings or numbers; every stored key and every
// lookup key must pass through here so the two compare equal.
func CanonicalID(id string) string {
	return strings.TrimSpace(id)
}

// Registry is the single source of truth for which user is reachable over
// which connection. Connections are registered at upgrade time and become
// addressable only after association with an identity.
type Registry struct {
	mu         sync.RWMutex
	byConn     map[uuid.UUID]*Record
	byIdentity map[string]*Record

	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		byConn:     make(map[uuid.UUID]*Record),
		byIdentity: make(map[string]*Record),
		logger:     logger.With(slog.String("component", "presence_registry")),
	}
}

// Register adds an unassociated record for a freshly accepted connection.
func (r *Registry) Register(conn Conn, authSubject, ipAddr string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	connID := conn.ID()
	if _, exists := r.byConn[connID]; exists {
		return nil, errors.New("connection is already registered")
	}
	now := time.Now()
	rec := &Record{
		ID:          connID,
		IPAddress:   ipAddr,
		AuthSubject: CanonicalID(authSubject),
		Transport:   conn,
		CreatedAt:   now,
		LastSeenAt:  now,
	}
	r.byConn[connID] = rec
	r.logger.Debug("Connection registered", slog.String("connID", connID.String()))
	return rec, nil
}

// Associate links a registered connection to an identity, replacing any
// previous connection for that identity. It returns the superseded transport
// (if any) so the caller can close it after the lock is released. Calling
// Associate twice for the same connection just refreshes the profile.
func (r *Registry) Associate(connID uuid.UUID, identity string, user json.RawMessage) (superseded Conn, err error) {
	identity = CanonicalID(identity)

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byConn[connID]
	if !ok {
		return nil, ErrUnknownConnection
	}

	if prev, online := r.byIdentity[identity]; online && prev.ID != connID {
		// Reconnect with the same identity: the new connection wins.
		delete(r.byConn, prev.ID)
		superseded = prev.Transport
		r.logger.Debug("Superseding previous connection",
			slog.String("identity", identity),
			slog.String("oldConnID", prev.ID.String()),
			slog.String("newConnID", connID.String()),
		)
	}

	rec.Identity = identity
	rec.User = user
	rec.LastSeenAt = time.Now()
	r.byIdentity[identity] = rec

	r.logger.Debug("Associated connection with identity",
		slog.String("connID", connID.String()),
		slog.String("identity", identity),
	)
	return superseded, nil
}

// Lookup returns the record currently associated with the identity. A miss
// means the user is offline; it is an expected condition, not an error.
func (r *Registry) Lookup(identity string) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byIdentity[CanonicalID(identity)]
	return rec, ok
}

// Get returns the record for a connection, associated or not.
func (r *Registry) Get(connID uuid.UUID) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byConn[connID]
	return rec, ok
}

// Remove drops the record for a connection. It returns the identity that was
// associated with it, if any, so the caller can run dependent cleanup.
// Removing an unknown connection is a no-op; disconnect races are expected.
func (r *Registry) Remove(connID uuid.UUID) (identity string, wasAssociated bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connID)
	if rec.Identity != "" {
		// Only unlink the identity if this connection still owns it; a
		// superseded connection must not evict its successor.
		if cur, ok := r.byIdentity[rec.Identity]; ok && cur.ID == connID {
			delete(r.byIdentity, rec.Identity)
			r.logger.Debug("Connection removed", slog.String("connID", connID.String()), slog.String("identity", rec.Identity))
			return rec.Identity, true
		}
	}
	r.logger.Debug("Connection removed", slog.String("connID", connID.String()))
	return "", false
}

// Touch refreshes the last-seen timestamp for a connection.
func (r *Registry) Touch(connID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.byConn[connID]; ok {
		rec.LastSeenAt = time.Now()
	}
}

// Count reports how many live connections the identity currently has (0 or 1).
func (r *Registry) Count(identity string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.byIdentity[CanonicalID(identity)]; ok {
		return 1
	}
	return 0
}

// Identities returns a snapshot of every associated identity.
func (r *Registry) Identities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byIdentity))
	for id := range r.byIdentity {
		ids = append(ids, id)
	}
	return ids
}

// Snapshot returns the presence set in broadcast form.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]Entry, 0, len(r.byIdentity))
	for _, rec := range r.byIdentity {
		entries = append(entries, Entry{User: rec.User, SocketID: rec.ID.String()})
	}
	return entries
}

// Connections returns every registered transport, associated or not, for
// broadcasting. The slice is a copy; sending on it happens without the lock.
func (r *Registry) Connections() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]Conn, 0, len(r.byConn))
	for _, rec := range r.byConn {
		conns = append(conns, rec.Transport)
	}
	return conns
}
