package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/oscar-bek/Telegram-clone/pkg/presence"
)

// Chat event relay. Every event here has already been persisted by the REST
// layer before it reaches the gateway; the relay only fans the committed
// payload out to the receiver's live connection. Offline receivers are a
// normal condition: the event is dropped at the realtime layer and the client
// fetches missed history over REST on reconnect.

// lookupReceiver extracts and resolves the receiver identity from a chat
// payload. A missing field is a malformed payload; an offline receiver is not.
func (r *Router) lookupReceiver(origin *presence.Record, payload []byte, event string) (*presence.Record, bool) {
	receiverID := gjson.GetBytes(payload, "receiver._id")
	if !receiverID.Exists() {
		r.logger.Warn("Chat payload missing receiver._id",
			slog.String("event", event),
			slog.String("connID", origin.ID.String()),
		)
		return nil, false
	}
	target, ok := r.registry.Lookup(receiverID.String())
	if !ok {
		r.logger.Debug("Chat receiver offline, dropping",
			slog.String("event", event),
			slog.String("receiver", receiverID.String()),
		)
		return nil, false
	}
	return target, true
}

func (r *Router) handleCreateContact(ctx context.Context, origin *presence.Record, payload []byte) {
	currentUser := gjson.GetBytes(payload, "currentUser")
	if !currentUser.Exists() {
		r.logger.Warn("createContact payload missing currentUser", slog.String("connID", origin.ID.String()))
		return
	}
	target, ok := r.lookupReceiver(origin, payload, EventCreateContact)
	if !ok {
		return
	}
	r.forward(target.Transport, EventGetCreatedUser, []byte(currentUser.Raw))
}

func (r *Router) handleSendMessage(ctx context.Context, origin *presence.Record, payload []byte) {
	newMessage := gjson.GetBytes(payload, "newMessage")
	if !newMessage.Exists() {
		r.logger.Warn("sendMessage payload missing newMessage", slog.String("connID", origin.ID.String()))
		return
	}
	target, ok := r.lookupReceiver(origin, payload, EventSendMessage)
	if !ok {
		return
	}
	r.emit(target.Transport, EventGetNewMessage, newMessagePayload{
		NewMessage: json.RawMessage(newMessage.Raw),
		Sender:     rawField(payload, "sender"),
		Receiver:   rawField(payload, "receiver"),
	})
}

func (r *Router) handleReadMessages(ctx context.Context, origin *presence.Record, payload []byte) {
	messages := gjson.GetBytes(payload, "messages")
	if !messages.Exists() {
		r.logger.Warn("readMessages payload missing messages", slog.String("connID", origin.ID.String()))
		return
	}
	target, ok := r.lookupReceiver(origin, payload, EventReadMessages)
	if !ok {
		return
	}
	r.forward(target.Transport, EventGetReadMessages, []byte(messages.Raw))
}

func (r *Router) handleUpdateMessage(ctx context.Context, origin *presence.Record, payload []byte) {
	updatedMessage := gjson.GetBytes(payload, "updatedMessage")
	if !updatedMessage.Exists() {
		r.logger.Warn("updateMessage payload missing updatedMessage", slog.String("connID", origin.ID.String()))
		return
	}
	target, ok := r.lookupReceiver(origin, payload, EventUpdateMessage)
	if !ok {
		return
	}
	r.emit(target.Transport, EventGetUpdatedMessage, updatedMessagePayload{
		UpdatedMessage: json.RawMessage(updatedMessage.Raw),
		Sender:         rawField(payload, "sender"),
		Receiver:       rawField(payload, "receiver"),
	})
}

func (r *Router) handleDeleteMessage(ctx context.Context, origin *presence.Record, payload []byte) {
	deletedMessage := gjson.GetBytes(payload, "deletedMessage")
	if !deletedMessage.Exists() {
		r.logger.Warn("deleteMessage payload missing deletedMessage", slog.String("connID", origin.ID.String()))
		return
	}
	target, ok := r.lookupReceiver(origin, payload, EventDeleteMessage)
	if !ok {
		return
	}
	r.emit(target.Transport, EventGetDeletedMessage, deletedMessagePayload{
		DeletedMessage:   json.RawMessage(deletedMessage.Raw),
		Sender:           rawField(payload, "sender"),
		FilteredMessages: rawField(payload, "filteredMessages"),
	})
}

// Typing notifications are best-effort and never persisted; an offline
// receiver just means nothing happens.
func (r *Router) handleTyping(ctx context.Context, origin *presence.Record, payload []byte) {
	target, ok := r.lookupReceiver(origin, payload, EventTyping)
	if !ok {
		return
	}
	r.emit(target.Transport, EventGetTyping, typingPayload{
		Sender:  rawField(payload, "sender"),
		Message: rawField(payload, "message"),
	})
}

// rawField returns a payload field byte-for-byte, or JSON null if absent.
func rawField(payload []byte, path string) json.RawMessage {
	v := gjson.GetBytes(payload, path)
	if !v.Exists() {
		return json.RawMessage("null")
	}
	return json.RawMessage(v.Raw)
}
