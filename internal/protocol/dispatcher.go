package protocol

import (
	"log/slog"

	"duet/internal/models"
)

// Dispatcher sends user-originated events. Sends are fire-and-forget and
// are silently suppressed when the identity or conversation is unknown.
// It does not throttle; rate limiting belongs to the caller.
type Dispatcher struct {
	log *slog.Logger
}

func NewDispatcher(log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{log: log}
}

func (d *Dispatcher) SendMessage(h Emitter, conversationID string, identity models.Identity, body string) {
	if h == nil || identity == "" || conversationID == "" {
		return
	}
	d.emit(h, models.EventSend, models.SendPayload{
		ConversationID: conversationID,
		Sender:         identity,
		Message:        body,
	})
}

func (d *Dispatcher) SendTyping(h Emitter, conversationID string, identity models.Identity) {
	if h == nil || identity == "" || conversationID == "" {
		return
	}
	d.emit(h, models.EventTyping, models.TypingPayload{
		ConversationID: conversationID,
		Sender:         identity,
	})
}

func (d *Dispatcher) emit(h Emitter, event models.EventType, payload any) {
	if err := h.Emit(event, payload); err != nil {
		d.log.Debug("dropped outbound event", "event", event, "error", err)
	}
}
