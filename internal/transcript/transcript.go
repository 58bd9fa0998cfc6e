package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"duet/internal/models"

	"github.com/samber/lo"
)

var (
	ErrFetchFailed    = errors.New("transcript fetch failed")
	ErrNoConversation = errors.New("no conversation for identity")
)

const chatsPath = "/api/chats"

// Client fetches conversation transcripts from the chat API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for baseURL. A zero timeout means requests
// wait as long as the server takes.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Fetch returns every conversation record, in the order the server stores them.
func (c *Client) Fetch(ctx context.Context) ([]models.ConversationRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+chatsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrFetchFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var records []models.ConversationRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrFetchFailed, err)
	}
	return records, nil
}

// SelectConversation picks the first record, in list order, that identity takes part in.
func SelectConversation(records []models.ConversationRecord, identity models.Identity) (models.ConversationRecord, bool) {
	return lo.Find(records, func(r models.ConversationRecord) bool {
		return r.HasParticipant(identity)
	})
}

// ResolvePeer returns the first participant of rec other than identity.
func ResolvePeer(rec models.ConversationRecord, identity models.Identity) (models.Identity, bool) {
	return lo.Find(rec.Participants, func(p models.Identity) bool {
		return p != identity
	})
}

func ToMessages(rec models.ConversationRecord) []models.Message {
	return lo.Map(rec.Messages, func(m models.MessageRecord, _ int) models.Message {
		return models.Message{Origin: m.Sender, Body: m.Message, Timestamp: m.Date}
	})
}

// Participants lists every identity that takes part in some conversation,
// once each, in order of first appearance.
func Participants(records []models.ConversationRecord) []models.Identity {
	return lo.Uniq(lo.FlatMap(records, func(r models.ConversationRecord, _ int) []models.Identity {
		return r.Participants
	}))
}
