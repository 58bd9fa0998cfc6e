package protocol

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"duet/internal/content"
	"duet/internal/models"
)

// Handlers receive inbound events. OnMessage gets a non-nil error
// (wrapping ErrMalformedEvent) and a zero payload when the event could not
// be decoded; the session is expected to log it and carry on.
type Handlers struct {
	OnMessage     func(msg models.MessagePayload, err error)
	OnPeerOffline func()
	OnPeerOnline  func()
	OnPeerTyping  func()
}

var inboundEvents = []models.EventType{
	models.EventMessage,
	models.EventPeerOffline,
	models.EventPeerOnline,
	models.EventPeerTyping,
}

type Subscriber struct {
	log *slog.Logger
}

func NewSubscriber(log *slog.Logger) *Subscriber {
	if log == nil {
		log = slog.Default()
	}
	return &Subscriber{log: log}
}

// Subscribe registers one listener per inbound event and starts delivery.
// Listeners run one at a time in the order events arrived on the connection.
func (s *Subscriber) Subscribe(src EventSource, hs Handlers) {
	src.On(models.EventMessage, func(data json.RawMessage) {
		msg, err := decodeMessage(data)
		if hs.OnMessage != nil {
			hs.OnMessage(msg, err)
		}
	})
	src.On(models.EventPeerOffline, s.signal(models.EventPeerOffline, hs.OnPeerOffline))
	src.On(models.EventPeerOnline, s.signal(models.EventPeerOnline, hs.OnPeerOnline))
	src.On(models.EventPeerTyping, s.signal(models.EventPeerTyping, hs.OnPeerTyping))
	src.Start()
}

// Unsubscribe detaches the message listener only. Presence and typing
// listeners stay attached; use Detach to remove everything.
func (s *Subscriber) Unsubscribe(src EventSource) {
	src.Off(models.EventMessage)
}

// Detach removes every listener Subscribe registered.
func (s *Subscriber) Detach(src EventSource) {
	for _, event := range inboundEvents {
		src.Off(event)
	}
}

func (s *Subscriber) signal(event models.EventType, fn func()) func(json.RawMessage) {
	return func(json.RawMessage) {
		s.log.Debug("peer event", "event", event)
		if fn != nil {
			fn()
		}
	}
}

func decodeMessage(data json.RawMessage) (models.MessagePayload, error) {
	msg, err := decode[models.MessagePayload](data)
	if err != nil {
		return models.MessagePayload{}, fmt.Errorf("%w: %s: %w", ErrMalformedEvent, models.EventMessage, err)
	}
	if err := content.ValidatePayload(msg); err != nil {
		return models.MessagePayload{}, fmt.Errorf("%w: %s: %w", ErrMalformedEvent, models.EventMessage, err)
	}
	return msg, nil
}
