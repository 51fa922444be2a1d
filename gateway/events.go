package gateway

import (
	"encoding/json"
	"time"

	"deskchat/domain"
)

// Wire protocol of the messaging gateway. Client and server exchange JSON
// envelopes over one persistent WebSocket.
const (
	EventJoinConversation = "join_conversation"
	EventSendMessage      = "send_message"
	EventReceiveMessage   = "receive_message"
	EventError            = "error"
)

// Close reasons sent when the handshake is rejected.
const (
	closeReasonAuthRequired = "Auth required!"
	closeReasonInvalidToken = "Invalid token"
)

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinPayload struct {
	ConversationID string `json:"conversationId"`
}

type SendPayload struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

// MessagePayload mirrors the persisted record; the sender's UI renders
// this instead of its optimistic local copy.
type MessagePayload struct {
	ID           string `json:"_id"`
	Conversation string `json:"conversation"`
	Sender       string `json:"sender"`
	Content      string `json:"content"`
	CreatedAt    string `json:"createdAt"`
}

type ErrorPayload struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Message string `json:"message"`
}

func toMessagePayload(message domain.Message) MessagePayload {
	return MessagePayload{
		ID:           message.ID.String(),
		Conversation: string(message.ConversationID),
		Sender:       message.SenderID,
		Content:      message.Content,
		CreatedAt:    message.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func mustMarshalEvent(event string, data any) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		// All payload types above marshal unconditionally.
		panic(err)
	}
	bytes, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		panic(err)
	}
	return bytes
}
