package router_test

import (
	"testing"

	"github.com/oscar-bek/Telegram-clone/internal/router"
)

// --- Chat Event Relay ---

func TestSendMessageRelay(t *testing.T) {
	f := newFixture(t)
	alice := f.connect("alice")
	bob := f.connect("bob")

	f.send(alice, router.EventSendMessage,
		`{"newMessage":{"_id":"m1","text":"hey","status":"sent"},"receiver":{"_id":"bob"},"sender":{"_id":"alice"}}`)

	if got := bob.countEvent(t, router.EventGetNewMessage); got != 1 {
		t.Fatalf("bob received %d getNewMessage events, want 1", got)
	}
	payload := bob.lastPayload(t, router.EventGetNewMessage)
	if got := payload.Get("newMessage.text").String(); got != "hey" {
		t.Errorf("newMessage.text = %q, want hey", got)
	}
	if got := payload.Get("sender._id").String(); got != "alice" {
		t.Errorf("sender._id = %q, want alice", got)
	}
	if got := payload.Get("receiver._id").String(); got != "bob" {
		t.Errorf("receiver._id = %q, want bob", got)
	}
	// The sender hears nothing back on the realtime layer.
	if got := alice.countEvent(t, router.EventGetNewMessage); got != 0 {
		t.Errorf("Message echoed to its sender")
	}
}

func TestSendMessageOfflineReceiverDropped(t *testing.T) {
	f := newFixture(t)
	alice := f.connect("alice")

	// Durable delivery is the REST layer's job; the realtime relay just
	// drops and moves on.
	f.send(alice, router.EventSendMessage,
		`{"newMessage":{"_id":"m1","text":"hey"},"receiver":{"_id":"ghost"},"sender":{"_id":"alice"}}`)

	if got := alice.countEvent(t, router.EventCallFailed); got != 0 {
		t.Errorf("Offline chat receiver surfaced an error event")
	}
}

func TestCreateContactRelay(t *testing.T) {
	f := newFixture(t)
	alice := f.connect("alice")
	bob := f.connect("bob")

	f.send(alice, router.EventCreateContact,
		`{"currentUser":{"_id":"alice","email":"alice@example.com"},"receiver":{"_id":"bob"}}`)

	payload := bob.lastPayload(t, router.EventGetCreatedUser)
	if got := payload.Get("_id").String(); got != "alice" {
		t.Errorf("getCreatedUser payload = %s", payload.Raw)
	}
}

func TestReadMessagesForwardsArray(t *testing.T) {
	f := newFixture(t)
	alice := f.connect("alice")
	bob := f.connect("bob")

	f.send(bob, router.EventReadMessages,
		`{"receiver":{"_id":"alice"},"messages":[{"_id":"m1","status":"read"},{"_id":"m2","status":"read"}]}`)

	payload := alice.lastPayload(t, router.EventGetReadMessages)
	if got := len(payload.Array()); got != 2 {
		t.Fatalf("getReadMessages carried %d messages, want 2", got)
	}
	if got := payload.Array()[0].Get("status").String(); got != "read" {
		t.Errorf("message status = %q, want read", got)
	}
}

func TestUpdateMessageRelay(t *testing.T) {
	f := newFixture(t)
	alice := f.connect("alice")
	bob := f.connect("bob")

	f.send(alice, router.EventUpdateMessage,
		`{"updatedMessage":{"_id":"m1","text":"edited"},"receiver":{"_id":"bob"},"sender":{"_id":"alice"}}`)

	payload := bob.lastPayload(t, router.EventGetUpdatedMessage)
	if got := payload.Get("updatedMessage.text").String(); got != "edited" {
		t.Errorf("updatedMessage.text = %q, want edited", got)
	}
	if !payload.Get("sender").Exists() || !payload.Get("receiver").Exists() {
		t.Errorf("getUpdatedMessage payload incomplete: %s", payload.Raw)
	}
}

func TestDeleteMessageRelay(t *testing.T) {
	f := newFixture(t)
	alice := f.connect("alice")
	bob := f.connect("bob")

	f.send(alice, router.EventDeleteMessage,
		`{"deletedMessage":{"_id":"m1"},"filteredMessages":[{"_id":"m2"}],"receiver":{"_id":"bob"},"sender":{"_id":"alice"}}`)

	payload := bob.lastPayload(t, router.EventGetDeletedMessage)
	if got := payload.Get("deletedMessage._id").String(); got != "m1" {
		t.Errorf("deletedMessage._id = %q, want m1", got)
	}
	if got := len(payload.Get("filteredMessages").Array()); got != 1 {
		t.Errorf("filteredMessages carried %d entries, want 1", got)
	}
}

func TestTypingRelay(t *testing.T) {
	f := newFixture(t)
	alice := f.connect("alice")
	bob := f.connect("bob")

	f.send(alice, router.EventTyping,
		`{"receiver":{"_id":"bob"},"sender":{"_id":"alice"},"message":"h"}`)

	payload := bob.lastPayload(t, router.EventGetTyping)
	if got := payload.Get("sender._id").String(); got != "alice" {
		t.Errorf("getTyping sender = %q, want alice", got)
	}
	if got := payload.Get("message").String(); got != "h" {
		t.Errorf("getTyping message = %q, want h", got)
	}

	// Typing to an offline peer is best-effort and silently dropped.
	f.send(alice, router.EventTyping, `{"receiver":{"_id":"ghost"},"sender":{"_id":"alice"},"message":"h"}`)
}

func TestChatPayloadMissingRequiredField(t *testing.T) {
	f := newFixture(t)
	alice := f.connect("alice")
	bob := f.connect("bob")

	// No newMessage field: rejected at the boundary, nothing forwarded.
	f.send(alice, router.EventSendMessage, `{"receiver":{"_id":"bob"},"sender":{"_id":"alice"}}`)
	if got := bob.countEvent(t, router.EventGetNewMessage); got != 0 {
		t.Errorf("Malformed sendMessage was forwarded")
	}

	// No receiver: same.
	f.send(alice, router.EventSendMessage, `{"newMessage":{"text":"x"},"sender":{"_id":"alice"}}`)
	if got := bob.countEvent(t, router.EventGetNewMessage); got != 0 {
		t.Errorf("sendMessage without receiver was forwarded")
	}
}
