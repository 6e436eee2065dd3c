package router

import (
	"encoding/json"
	"time"

	"github.com/oscar-bek/Telegram-clone/pkg/call"
)

// ClientMessage is the wire envelope, both directions.
type ClientMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound event names.
const (
	EventAddOnlineUser    = "addOnlineUser"
	EventCallRequest      = "callRequest"
	EventCallAccepted     = "callAccepted"
	EventCallRejected     = "callRejected"
	EventCallEnded        = "callEnded"
	EventOffer            = "offer"
	EventAnswer           = "answer"
	EventIceCandidate     = "iceCandidate"
	EventSendOffer        = "sendOffer"
	EventCallStateChanged = "callStateChanged"
	EventCreateContact    = "createContact"
	EventSendMessage      = "sendMessage"
	EventReadMessages     = "readMessages"
	EventUpdateMessage    = "updateMessage"
	EventDeleteMessage    = "deleteMessage"
	EventTyping           = "typing"
)

// Outbound event names.
const (
	EventGetOnlineUsers    = "getOnlineUsers"
	EventIncomingCall      = "incomingCall"
	EventCallRequestSent   = "callRequestSent"
	EventCallFailed        = "callFailed"
	EventCallStarted       = "callStarted"
	EventGetCreatedUser    = "getCreatedUser"
	EventGetNewMessage     = "getNewMessage"
	EventGetReadMessages   = "getReadMessages"
	EventGetUpdatedMessage = "getUpdatedMessage"
	EventGetDeletedMessage = "getDeletedMessage"
	EventGetTyping         = "getTyping"
)

type incomingCallPayload struct {
	CallID    string          `json:"callId"`
	Caller    json.RawMessage `json:"caller"`
	CallType  string          `json:"callType"`
	Timestamp time.Time       `json:"timestamp"`
}

type callRequestSentPayload struct {
	CallID   string          `json:"callId"`
	Receiver json.RawMessage `json:"receiver"`
}

type callFailedPayload struct {
	Message  string          `json:"message"`
	CallID   string          `json:"callId,omitempty"`
	Receiver json.RawMessage `json:"receiver,omitempty"`
	CallType string          `json:"callType,omitempty"`
}

type callAcceptedPayload struct {
	CallID   string          `json:"callId"`
	Receiver json.RawMessage `json:"receiver"`
}

type callStartedPayload struct {
	CallID string       `json:"callId"`
	Call   call.Session `json:"call"`
}

type callRejectedPayload struct {
	CallID   string          `json:"callId"`
	Receiver json.RawMessage `json:"receiver"`
	Reason   string          `json:"reason"`
}

type callEndedPayload struct {
	CallID string `json:"callId"`
	UserID string `json:"userId,omitempty"`
	Reason string `json:"reason"`
}

type newMessagePayload struct {
	NewMessage json.RawMessage `json:"newMessage"`
	Sender     json.RawMessage `json:"sender"`
	Receiver   json.RawMessage `json:"receiver"`
}

type updatedMessagePayload struct {
	UpdatedMessage json.RawMessage `json:"updatedMessage"`
	Sender         json.RawMessage `json:"sender"`
	Receiver       json.RawMessage `json:"receiver"`
}

type deletedMessagePayload struct {
	DeletedMessage   json.RawMessage `json:"deletedMessage"`
	Sender           json.RawMessage `json:"sender"`
	FilteredMessages json.RawMessage `json:"filteredMessages"`
}

type typingPayload struct {
	Sender  json.RawMessage `json:"sender"`
	Message json.RawMessage `json:"message"`
}
