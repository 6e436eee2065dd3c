package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oscar-bek/Telegram-clone/pkg/call"
	"github.com/oscar-bek/Telegram-clone/pkg/presence"
)

type handlerFunc func(ctx context.Context, origin *presence.Record, payload []byte)

// Router translates inbound events into presence/call-store operations and
// pushes the resulting outbound events to the right connections. It never
// waits for a peer's reply; every exchange is fire-and-forget at the
// transport level and correctness comes from the call state machine.
type Router struct {
	logger   *slog.Logger
	registry *presence.Registry
	calls    *call.Store

	handlers map[string]handlerFunc
}

func New(logger *slog.Logger, registry *presence.Registry, calls *call.Store) *Router {
	r := &Router{
		logger:   logger.With(slog.String("component", "event_router")),
		registry: registry,
		calls:    calls,
	}
	r.handlers = map[string]handlerFunc{
		EventAddOnlineUser:    r.handleAddOnlineUser,
		EventCallRequest:      r.handleCallRequest,
		EventCallAccepted:     r.handleCallAccepted,
		EventCallRejected:     r.handleCallRejected,
		EventCallEnded:        r.handleCallEnded,
		EventOffer:            r.relayHandler("offer", EventOffer),
		EventAnswer:           r.relayHandler("answer", EventAnswer),
		EventIceCandidate:     r.relayHandler("candidate", EventIceCandidate),
		EventSendOffer:        r.relayHandler("offer", EventOffer),
		EventCallStateChanged: r.handleCallStateChanged,
		EventCreateContact:    r.handleCreateContact,
		EventSendMessage:      r.handleSendMessage,
		EventReadMessages:     r.handleReadMessages,
		EventUpdateMessage:    r.handleUpdateMessage,
		EventDeleteMessage:    r.handleDeleteMessage,
		EventTyping:           r.handleTyping,
	}
	return r
}

// HandleMessage is the transport's inbound callback. Malformed envelopes and
// events arriving before association are rejected here, before any store is
// touched.
func (r *Router) HandleMessage(ctx context.Context, connID uuid.UUID, msg []byte) {
	var clientMsg ClientMessage
	if err := json.Unmarshal(msg, &clientMsg); err != nil {
		r.logger.Warn("Failed to unmarshal client message", "connID", connID, "error", err)
		return
	}
	if clientMsg.Event == "" {
		r.logger.Warn("Client message missing event name", "connID", connID)
		return
	}

	origin, ok := r.registry.Get(connID)
	if !ok {
		r.logger.Error("Received message from unregistered connection", slog.String("connID", connID.String()))
		return
	}
	r.registry.Touch(connID)

	handler, ok := r.handlers[clientMsg.Event]
	if !ok {
		r.logger.Warn("Received unknown event", "event", clientMsg.Event, "connID", connID)
		return
	}

	// The connection is not addressable until it has associated an identity.
	if origin.Identity == "" && clientMsg.Event != EventAddOnlineUser {
		r.logger.Warn("Event before association, dropping",
			slog.String("event", clientMsg.Event),
			slog.String("connID", connID.String()),
		)
		return
	}

	r.logger.Debug("Dispatching event", slog.String("event", clientMsg.Event), slog.String("connID", connID.String()))
	handler(ctx, origin, clientMsg.Payload)
}

// HandleDisconnect runs the cleanup pipeline for a closed transport: registry
// removal, call purge with peer notification, presence rebroadcast. It is
// idempotent; racing an in-flight operation on the same identity is safe
// because the stores serialize access.
func (r *Router) HandleDisconnect(connID uuid.UUID, closeErr error) {
	identity, wasAssociated := r.registry.Remove(connID)
	if !wasAssociated {
		return
	}
	r.logger.Info("User disconnected", slog.String("identity", identity), slog.String("connID", connID.String()))

	for _, sess := range r.calls.PurgeByIdentity(identity) {
		peer, ok := r.registry.Lookup(sess.Peer(identity))
		if !ok {
			continue
		}
		r.emit(peer.Transport, EventCallEnded, callEndedPayload{
			CallID: sess.ID,
			UserID: identity,
			Reason: "User disconnected",
		})
	}

	r.broadcastPresence()
}

// ExpireRingingCalls fails every ringing session past its deadline and
// notifies both parties. The server's sweep loop calls this periodically.
func (r *Router) ExpireRingingCalls(now time.Time) {
	for _, sess := range r.calls.ExpireRinging(now) {
		if caller, ok := r.registry.Lookup(sess.Caller); ok {
			r.emit(caller.Transport, EventCallFailed, callFailedPayload{
				Message:  "Call timed out",
				CallID:   sess.ID,
				CallType: string(sess.Type),
			})
		}
		if receiver, ok := r.registry.Lookup(sess.Receiver); ok {
			r.emit(receiver.Transport, EventCallEnded, callEndedPayload{
				CallID: sess.ID,
				Reason: "Call timed out",
			})
		}
	}
}

// broadcastPresence pushes the current online set to every registered
// connection.
func (r *Router) broadcastPresence() {
	entries := r.registry.Snapshot()
	msg, err := json.Marshal(ClientMessage{Event: EventGetOnlineUsers, Payload: mustMarshal(entries)})
	if err != nil {
		r.logger.Error("Failed to marshal presence broadcast", slog.Any("error", err))
		return
	}
	for _, conn := range r.registry.Connections() {
		conn.Send(msg)
	}
}

// emit marshals an outbound event and queues it on one connection.
func (r *Router) emit(conn presence.Conn, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("Failed to marshal outbound payload", slog.String("event", event), slog.Any("error", err))
		return
	}
	msg, err := json.Marshal(ClientMessage{Event: event, Payload: raw})
	if err != nil {
		r.logger.Error("Failed to marshal outbound envelope", slog.String("event", event), slog.Any("error", err))
		return
	}
	conn.Send(msg)
}

func mustMarshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return raw
}
