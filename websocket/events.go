package websocket

import (
	"encoding/json"
	"time"

	"github.com/ridehub/ridehub/models"
)

// Event names carried in Envelope.Event.
const (
	EventJoin     = "join"
	EventSend     = "send"
	EventPresence = "presence"
	EventDeliver  = "deliver"
	EventError    = "error"
)

// Error codes carried in ErrorPayload.Code.
const (
	CodeValidation   = "validation_failed"
	CodePersistence  = "persistence_failed"
	CodeForbidden    = "forbidden"
	CodeNotJoined    = "not_joined"
	CodeNotFound     = "not_found"
	CodeUnknownEvent = "unknown_event"
)

// NewConversation is the conversationId sentinel asking the server to
// find or create the conversation between sender and receiver.
const NewConversation = "new"

// Envelope is the JSON frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinPayload struct {
	UserID string `json:"userId" validate:"required"`
}

type SendPayload struct {
	SenderID       string `json:"senderId" validate:"required"`
	ConversationID string `json:"conversationId" validate:"required"`
	ReceiverID     string `json:"receiverId" validate:"required_if=ConversationID new"`
	Body           string `json:"body" validate:"required"`
}

type PresencePayload struct {
	ActiveUsers []string `json:"activeUsers"`
}

type DeliverPayload struct {
	MessageID      string         `json:"messageId"`
	SenderID       string         `json:"senderId"`
	ConversationID string         `json:"conversationId"`
	Body           string         `json:"body"`
	CreatedAt      time.Time      `json:"createdAt"`
	SenderProfile  models.Profile `json:"senderProfile"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEnvelope encodes payload under the given event name.
func NewEnvelope(event string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: data}, nil
}

// ErrorEnvelope never fails: ErrorPayload always marshals.
func ErrorEnvelope(code, message string) Envelope {
	env, _ := NewEnvelope(EventError, ErrorPayload{Code: code, Message: message})
	return env
}

func deliverPayload(msg models.Message, profile models.Profile) DeliverPayload {
	return DeliverPayload{
		MessageID:      msg.ID,
		SenderID:       msg.SenderID,
		ConversationID: msg.ConversationID,
		Body:           msg.Body,
		CreatedAt:      msg.CreatedAt,
		SenderProfile:  profile,
	}
}
