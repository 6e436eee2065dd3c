package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/oscar-bek/Telegram-clone/pkg/call"
	"github.com/oscar-bek/Telegram-clone/pkg/presence"
)

// handleAddOnlineUser associates the connection with the user object in the
// payload and rebroadcasts the presence set. The payload identity must match
// the identity the auth layer validated for this connection.
func (r *Router) handleAddOnlineUser(ctx context.Context, origin *presence.Record, payload []byte) {
	id := gjson.GetBytes(payload, "_id")
	if !id.Exists() {
		r.logger.Warn("addOnlineUser payload missing _id", slog.String("connID", origin.ID.String()))
		return
	}
	identity := presence.CanonicalID(id.String())
	if identity == "" {
		r.logger.Warn("addOnlineUser payload has empty _id", slog.String("connID", origin.ID.String()))
		return
	}
	if origin.AuthSubject != "" && identity != origin.AuthSubject {
		r.logger.Warn("addOnlineUser identity does not match authenticated subject",
			slog.String("connID", origin.ID.String()),
			slog.String("claimed", identity),
		)
		return
	}

	superseded, err := r.registry.Associate(origin.ID, identity, json.RawMessage(payload))
	if err != nil {
		r.logger.Error("Failed to associate user", slog.Any("error", err))
		return
	}
	if superseded != nil {
		superseded.Close(errors.New("connection superseded by new association"))
	}
	r.logger.Info("User online", slog.String("identity", identity), slog.String("connID", origin.ID.String()))

	r.broadcastPresence()
}

// handleCallRequest creates a ringing session and notifies both sides. The
// receiver must be reachable; failures go back to the caller as callFailed.
func (r *Router) handleCallRequest(ctx context.Context, origin *presence.Record, payload []byte) {
	caller := gjson.GetBytes(payload, "caller")
	receiver := gjson.GetBytes(payload, "receiver")
	receiverID := gjson.GetBytes(payload, "receiver._id")
	callType := gjson.GetBytes(payload, "callType")
	if !caller.Exists() || !receiverID.Exists() {
		r.logger.Warn("callRequest payload malformed", slog.String("connID", origin.ID.String()))
		return
	}
	media, ok := call.ParseMediaType(callType.String())
	if !ok {
		r.logger.Warn("callRequest has invalid callType", slog.String("callType", callType.String()))
		return
	}

	target, online := r.registry.Lookup(receiverID.String())
	if !online {
		r.emit(origin.Transport, EventCallFailed, callFailedPayload{
			Message:  "User is offline",
			Receiver: json.RawMessage(receiver.Raw),
			CallType: string(media),
		})
		return
	}

	sess, err := r.calls.Create(origin.Identity, presence.CanonicalID(receiverID.String()), media)
	if err != nil {
		if errors.Is(err, call.ErrAlreadyInProgress) {
			r.emit(origin.Transport, EventCallFailed, callFailedPayload{
				Message:  "Call already in progress",
				Receiver: json.RawMessage(receiver.Raw),
				CallType: string(media),
			})
			return
		}
		r.logger.Error("Failed to create call session", slog.Any("error", err))
		return
	}

	r.emit(target.Transport, EventIncomingCall, incomingCallPayload{
		CallID:    sess.ID,
		Caller:    json.RawMessage(caller.Raw),
		CallType:  string(media),
		Timestamp: sess.StartedAt,
	})
	r.emit(origin.Transport, EventCallRequestSent, callRequestSentPayload{
		CallID:   sess.ID,
		Receiver: json.RawMessage(receiver.Raw),
	})
}

// handleCallAccepted drives ringing -> connected and tells both parties the
// call started.
func (r *Router) handleCallAccepted(ctx context.Context, origin *presence.Record, payload []byte) {
	callID := gjson.GetBytes(payload, "callId")
	if !callID.Exists() {
		r.logger.Warn("callAccepted payload missing callId", slog.String("connID", origin.ID.String()))
		return
	}

	sess, err := r.calls.Accept(callID.String(), origin.Identity)
	if err != nil {
		r.emitCallFailure(origin, callID.String(), err)
		return
	}

	callerRec, ok := r.registry.Lookup(sess.Caller)
	if !ok {
		// Caller vanished between ringing and accept; tear the session down.
		r.calls.End(sess.ID, origin.Identity)
		r.emit(origin.Transport, EventCallFailed, callFailedPayload{
			Message: "User is offline",
			CallID:  sess.ID,
		})
		return
	}

	r.emit(callerRec.Transport, EventCallAccepted, callAcceptedPayload{
		CallID:   sess.ID,
		Receiver: rawField(payload, "receiver"),
	})
	r.emit(callerRec.Transport, EventCallStarted, callStartedPayload{CallID: sess.ID, Call: sess})
	r.emit(origin.Transport, EventCallStarted, callStartedPayload{CallID: sess.ID, Call: sess})
}

// handleCallRejected terminates a ringing call and notifies the caller.
func (r *Router) handleCallRejected(ctx context.Context, origin *presence.Record, payload []byte) {
	callID := gjson.GetBytes(payload, "callId")
	reason := gjson.GetBytes(payload, "reason")
	if !callID.Exists() {
		r.logger.Warn("callRejected payload missing callId", slog.String("connID", origin.ID.String()))
		return
	}

	sess, err := r.calls.Reject(callID.String(), origin.Identity)
	if err != nil {
		r.emitCallFailure(origin, callID.String(), err)
		return
	}

	if callerRec, ok := r.registry.Lookup(sess.Caller); ok {
		r.emit(callerRec.Transport, EventCallRejected, callRejectedPayload{
			CallID:   sess.ID,
			Receiver: rawField(payload, "receiver"),
			Reason:   reason.String(),
		})
	}
}

// handleCallEnded ends every session the sender participates in. The inbound
// payload is empty; the sender is identified by its connection.
func (r *Router) handleCallEnded(ctx context.Context, origin *presence.Record, payload []byte) {
	for _, sess := range r.calls.PurgeByIdentity(origin.Identity) {
		peer, ok := r.registry.Lookup(sess.Peer(origin.Identity))
		if !ok {
			continue
		}
		r.emit(peer.Transport, EventCallEnded, callEndedPayload{
			CallID: sess.ID,
			Reason: "Call ended by other user",
		})
	}
}

// relayHandler builds a handler that forwards an opaque negotiation payload
// (offer/answer/ICE candidate) to the target identity, tagged with the
// sender's identity. The inner field is never interpreted, only routed.
// Deliberately no session-state guard: WebRTC negotiation may legitimately
// begin before both sides are connected.
func (r *Router) relayHandler(field, outEvent string) handlerFunc {
	return func(ctx context.Context, origin *presence.Record, payload []byte) {
		callID := gjson.GetBytes(payload, "callId")
		targetID := gjson.GetBytes(payload, "targetUserId")
		body := gjson.GetBytes(payload, field)
		if !targetID.Exists() || !body.Exists() {
			r.logger.Warn("Relay payload malformed",
				slog.String("event", outEvent),
				slog.String("connID", origin.ID.String()),
			)
			return
		}

		target, ok := r.registry.Lookup(targetID.String())
		if !ok {
			r.logger.Debug("Relay target offline, dropping",
				slog.String("event", outEvent),
				slog.String("target", targetID.String()),
			)
			return
		}

		r.emit(target.Transport, outEvent, map[string]any{
			"callId":     callID.String(),
			field:        json.RawMessage(body.Raw),
			"fromUserId": origin.Identity,
		})
	}
}

// handleCallStateChanged relays a mute/camera toggle to the peer. Valid only
// while the call is connected; anything else is dropped without forwarding.
func (r *Router) handleCallStateChanged(ctx context.Context, origin *presence.Record, payload []byte) {
	callID := gjson.GetBytes(payload, "callId")
	if !callID.Exists() {
		r.logger.Warn("callStateChanged payload missing callId", slog.String("connID", origin.ID.String()))
		return
	}

	sess, err := r.calls.UpdateMediaState(callID.String(), origin.Identity)
	if err != nil {
		r.logger.Debug("Dropping media state change",
			slog.String("callID", callID.String()),
			slog.Any("reason", err),
		)
		return
	}

	peer, ok := r.registry.Lookup(sess.Peer(origin.Identity))
	if !ok {
		return
	}
	r.forward(peer.Transport, EventCallStateChanged, payload)
}

// emitCallFailure maps a call-store error onto the callFailed event sent to
// the initiating connection. NotFound is an expected race outcome and is
// surfaced the same way, never treated as fatal.
func (r *Router) emitCallFailure(origin *presence.Record, callID string, err error) {
	var message string
	switch {
	case errors.Is(err, call.ErrNotFound):
		message = "Call not found"
	case errors.Is(err, call.ErrForbidden):
		message = "Not allowed for this call"
	case errors.Is(err, call.ErrInvalidState):
		message = "Call is no longer in a valid state"
	default:
		r.logger.Error("Unexpected call store error", slog.Any("error", err))
		message = "Call failed"
	}
	r.logger.Debug("Call transition refused",
		slog.String("callID", callID),
		slog.Any("reason", err),
	)
	r.emit(origin.Transport, EventCallFailed, callFailedPayload{Message: message, CallID: callID})
}

// forward re-wraps an inbound payload verbatim under the given event name.
func (r *Router) forward(conn presence.Conn, event string, payload []byte) {
	msg, err := json.Marshal(ClientMessage{Event: event, Payload: json.RawMessage(payload)})
	if err != nil {
		r.logger.Error("Failed to marshal forwarded event", slog.String("event", event), slog.Any("error", err))
		return
	}
	conn.Send(msg)
}
