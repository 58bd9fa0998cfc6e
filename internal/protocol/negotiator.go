package protocol

import (
	"log/slog"

	"duet/internal/models"
)

type Negotiator struct {
	log *slog.Logger
}

func NewNegotiator(log *slog.Logger) *Negotiator {
	if log == nil {
		log = slog.Default()
	}
	return &Negotiator{log: log}
}

// AnnounceJoin tells the relay which conversation this connection belongs
// to. Fire-and-forget: the protocol has no join acknowledgement.
func (n *Negotiator) AnnounceJoin(h Emitter, conversationID string, identity models.Identity) {
	if h == nil {
		return
	}
	err := h.Emit(models.EventJoin, models.JoinPayload{
		ConversationID: conversationID,
		Username:       identity,
	})
	if err != nil {
		n.log.Warn("join announcement failed", "conversation_id", conversationID, "identity", identity, "error", err)
		return
	}
	n.log.Debug("join announced", "conversation_id", conversationID, "identity", identity)
}
