package models

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
)

// Identity names a chat participant. It is supplied from outside
// (there is no authentication in this system) and never changes
// for the lifetime of a session.
type Identity string

// Message is a single chat line. Messages are never mutated once created.
type Message struct {
	Origin    Identity  `json:"origin"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationRecord is a conversation as returned by the transcript endpoint.
type ConversationRecord struct {
	ID           string          `json:"id"`
	Participants []Identity      `json:"participants"`
	Messages     []MessageRecord `json:"messages"`
}

// HasParticipant reports whether id takes part in the conversation.
func (c ConversationRecord) HasParticipant(id Identity) bool {
	for _, p := range c.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// MessageRecord is the transcript representation of a stored message.
type MessageRecord struct {
	Sender  Identity  `json:"sender"`
	Message string    `json:"message"`
	Date    time.Time `json:"date"`
}

// Envelope is the frame exchanged over the websocket in both directions.
type Envelope struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an envelope for event.
func NewEnvelope(event EventType, payload any) (Envelope, error) {
	if payload == nil {
		payload = struct{}{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: data}, nil
}

type EventType string

// Client -> server.
const (
	EventJoin   EventType = "join"
	EventSend   EventType = "send"
	EventTyping EventType = "typing"
)

// Server -> client.
const (
	EventMessage     EventType = "message"
	EventPeerOffline EventType = "peer-offline"
	EventPeerOnline  EventType = "peer-online"
	EventPeerTyping  EventType = "peer-typing"
)

type JoinPayload struct {
	ConversationID string   `json:"conversationId" validate:"required"`
	Username       Identity `json:"username" validate:"required"`
}

type SendPayload struct {
	ConversationID string   `json:"conversationId" validate:"required"`
	Sender         Identity `json:"sender" validate:"required"`
	Message        string   `json:"message" validate:"notblank"`
}

type TypingPayload struct {
	ConversationID string   `json:"conversationId" validate:"required"`
	Sender         Identity `json:"sender" validate:"required"`
}

// MessagePayload is delivered to the peer of the sender.
type MessagePayload struct {
	Message string    `json:"message" validate:"notblank"`
	Date    time.Time `json:"date" validate:"required"`
}
