package ws

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"duet/internal/chat"
	"duet/internal/content"
	"duet/internal/models"
	"duet/internal/storage"

	"github.com/c-pro/geche"
	"github.com/google/uuid"
)

var (
	ErrUnknownConversation = errors.New("unknown conversation")
	ErrNotParticipant      = errors.New("not a participant of the conversation")
	ErrInvalidParticipants = errors.New("a conversation needs two distinct participants")
	ErrEmptyMessage        = errors.New("empty message")
)

type conversationStore interface {
	UpsertConversation(id string, participants []models.Identity, createdAt time.Time) error
	ListConversations() ([]models.ConversationRecord, error)
	AppendMessage(conversationID string, message models.MessageRecord) (int64, error)
	ListMessages(conversationID string, limit int) ([]storage.StoredMessage, error)
}

type HubConfig struct {
	// Store persists conversations and messages. Nil keeps everything in memory.
	Store        conversationStore
	HistoryLimit int
	OutboxSize   int
	Now          func() time.Time
	Logger       *slog.Logger
}

// Hub relays events between the two participants of each conversation.
type Hub struct {
	// Map of conversationID -> room
	chats map[string]*chat.Chat
	// Conversation ids in creation order
	order []string

	// conversationID/identity -> outbox of the live connection
	outboxes geche.Geche[string, chan models.Envelope]

	store        conversationStore
	historyLimit int
	outboxSize   int
	now          func() time.Time
	log          *slog.Logger

	mu sync.RWMutex
}

func NewHub(cfg HubConfig) (*Hub, error) {
	h := &Hub{
		chats:        make(map[string]*chat.Chat),
		outboxes:     geche.NewMapCache[string, chan models.Envelope](),
		store:        cfg.Store,
		historyLimit: cfg.HistoryLimit,
		outboxSize:   cfg.OutboxSize,
		now:          cfg.Now,
		log:          cfg.Logger,
	}
	if h.historyLimit <= 0 {
		h.historyLimit = 100
	}
	if h.outboxSize <= 0 {
		h.outboxSize = 100
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.log == nil {
		h.log = slog.Default()
	}

	if err := h.restore(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Hub) restore() error {
	if h.store == nil {
		return nil
	}

	convs, err := h.store.ListConversations()
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}

	for _, conv := range convs {
		c := h.createChat(conv.ID, conv.Participants)
		msgs, err := h.store.ListMessages(conv.ID, h.historyLimit)
		if err != nil {
			return fmt.Errorf("failed to list messages of %s: %w", conv.ID, err)
		}
		for _, m := range msgs {
			c.AddRecord(chat.ChatRecord{
				Seq:       chat.Seq(m.Seq),
				Timestamp: m.Date,
				Sender:    m.Sender,
				Content:   m.Message,
			})
		}
	}
	h.log.Info("conversations restored", "count", len(convs))
	return nil
}

func (h *Hub) createChat(id string, participants []models.Identity) *chat.Chat {
	c := chat.New(chat.Config{
		ID:             id,
		Participants:   participants,
		MaxRecords:     h.historyLimit,
		RecordCallback: h.handleRecordCallback,
	})
	h.chats[id] = c
	h.order = append(h.order, id)
	return c
}

// CreateConversation registers a new conversation between two distinct
// participants and returns its id.
func (h *Hub) CreateConversation(participants []models.Identity) (string, error) {
	if len(participants) != 2 || participants[0] == participants[1] {
		return "", ErrInvalidParticipants
	}
	for _, p := range participants {
		if err := content.ValidateIdentity(string(p)); err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidParticipants, err)
		}
	}

	id := uuid.NewString()
	if h.store != nil {
		if err := h.store.UpsertConversation(id, participants, h.now()); err != nil {
			return "", fmt.Errorf("failed to store conversation: %w", err)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.createChat(id, append([]models.Identity(nil), participants...))
	h.log.Info("conversation created", "conversation_id", id, "participants", participants)
	return id, nil
}

// Transcript returns every conversation with its recent messages, in
// creation order.
func (h *Hub) Transcript() []models.ConversationRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]models.ConversationRecord, 0, len(h.order))
	for _, id := range h.order {
		c := h.chats[id]
		records := c.GetLastRecords(h.historyLimit)
		messages := make([]models.MessageRecord, len(records))
		for i, r := range records {
			messages[i] = models.MessageRecord{
				Sender:  r.Sender,
				Message: r.Content,
				Date:    r.Timestamp,
			}
		}
		result = append(result, models.ConversationRecord{
			ID:           c.ID,
			Participants: append([]models.Identity(nil), c.Participants...),
			Messages:     messages,
		})
	}
	return result
}

// Join registers the live connection of identity in the conversation and
// returns its outbox. A previous connection of the same identity is replaced:
// its outbox is closed. Both sides learn the other is online when the peer is
// already connected.
func (h *Hub) Join(identity models.Identity, conversationID string) (<-chan models.Envelope, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, err := h.participantChat(identity, conversationID)
	if err != nil {
		return nil, err
	}

	key := outboxKey(conversationID, identity)
	if old, err := h.outboxes.Get(key); err == nil {
		close(old)
		h.log.Info("connection replaced", "identity", identity, "conversation_id", conversationID)
	}

	ch := make(chan models.Envelope, h.outboxSize)
	h.outboxes.Set(key, ch)
	c.Join(identity)

	if peer, ok := c.Peer(identity); ok && c.IsOnline(peer) {
		h.deliver(conversationID, peer, models.EventPeerOnline, nil)
		h.deliver(conversationID, identity, models.EventPeerOnline, nil)
	}
	return ch, nil
}

// Leave unregisters outbox. It does nothing when outbox was already replaced
// by a newer connection.
func (h *Hub) Leave(identity models.Identity, conversationID string, outbox <-chan models.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := outboxKey(conversationID, identity)
	current, err := h.outboxes.Get(key)
	if err != nil || current != outbox {
		return
	}
	close(current)
	_ = h.outboxes.Del(key)

	c, ok := h.chats[conversationID]
	if !ok {
		return
	}
	c.Leave(identity)

	if peer, ok := c.Peer(identity); ok && c.IsOnline(peer) {
		h.deliver(conversationID, peer, models.EventPeerOffline, nil)
	}
}

// Send stores body as a message of identity and relays it to the peer.
// The sender does not get it back.
func (h *Hub) Send(identity models.Identity, conversationID string, body string) error {
	h.mu.RLock()
	c, err := h.participantChat(identity, conversationID)
	h.mu.RUnlock()
	if err != nil {
		return err
	}

	body = content.CleanBody(body)
	if body == "" {
		return ErrEmptyMessage
	}

	// Storage keeps milliseconds; deliver the same instant it will restore.
	record := models.MessageRecord{
		Sender:  identity,
		Message: body,
		Date:    h.now().UTC().Truncate(time.Millisecond),
	}

	var seq int64
	if h.store != nil {
		if seq, err = h.store.AppendMessage(conversationID, record); err != nil {
			return fmt.Errorf("failed to store message: %w", err)
		}
	}

	c.AddRecord(chat.ChatRecord{
		Seq:       chat.Seq(seq),
		Timestamp: record.Date,
		Sender:    record.Sender,
		Content:   record.Message,
	})
	return nil
}

// Typing tells the peer identity is typing.
func (h *Hub) Typing(identity models.Identity, conversationID string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, err := h.participantChat(identity, conversationID)
	if err != nil {
		return err
	}
	if peer, ok := c.Peer(identity); ok && c.IsOnline(peer) {
		h.deliver(conversationID, peer, models.EventPeerTyping, nil)
	}
	return nil
}

func (h *Hub) handleRecordCallback(receiverID models.Identity, chatID string, record chat.ChatRecord) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	h.deliver(chatID, receiverID, models.EventMessage, models.MessagePayload{
		Message: record.Content,
		Date:    record.Timestamp,
	})
}

// participantChat requires h.mu to be held.
func (h *Hub) participantChat(identity models.Identity, conversationID string) (*chat.Chat, error) {
	c, ok := h.chats[conversationID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConversation, conversationID)
	}
	if !c.IsParticipant(identity) {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotParticipant, identity, conversationID)
	}
	return c, nil
}

// deliver requires h.mu to be held. A full outbox drops the event.
func (h *Hub) deliver(conversationID string, to models.Identity, event models.EventType, payload any) {
	ch, err := h.outboxes.Get(outboxKey(conversationID, to))
	if err != nil {
		return
	}

	env, err := models.NewEnvelope(event, payload)
	if err != nil {
		h.log.Error("failed to encode event", "event", event, "error", err)
		return
	}

	select {
	case ch <- env:
	default:
		h.log.Warn("outbox full, dropping event", "event", event, "identity", to, "conversation_id", conversationID)
	}
}

func outboxKey(conversationID string, identity models.Identity) string {
	return conversationID + "/" + string(identity)
}
