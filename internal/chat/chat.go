// Package chat holds one two-party conversation room in memory: its
// participants, who of them is online and a ring buffer of recent records.
package chat

import (
	"sync"
	"time"

	"duet/internal/models"
)

const defaultMaxRecords = 100

type Seq int64

type ChatRecord struct {
	Seq       Seq
	Timestamp time.Time
	Sender    models.Identity
	Content   string
}

type RecordCallback func(receiverID models.Identity, chatID string, record ChatRecord)

type Chat struct {
	ID           string
	Participants []models.Identity
	Records      []ChatRecord
	Members      map[models.Identity]bool
	FirstSeq     Seq
	LastSeq      Seq
	LastIndex    int
	MaxRecords   int

	RecordCallback RecordCallback

	mux sync.RWMutex
}

type Config struct {
	ID             string
	Participants   []models.Identity
	MaxRecords     int
	RecordCallback RecordCallback
}

func New(config Config) *Chat {
	maxRecords := config.MaxRecords
	if maxRecords <= 0 {
		maxRecords = defaultMaxRecords
	}
	return &Chat{
		ID:             config.ID,
		Participants:   config.Participants,
		MaxRecords:     maxRecords,
		LastIndex:      -1,
		FirstSeq:       -1,
		LastSeq:        -1,
		Members:        make(map[models.Identity]bool),
		RecordCallback: config.RecordCallback,
	}
}

// AddRecord adds a new chat record to the chat:
//   - Keeping a record sequence the caller already assigned (persisted
//     messages), otherwise assigning the next one
//   - Adding it into Records ring buffer
//   - Notifying every online member except the sender, after the lock is released
func (c *Chat) AddRecord(record ChatRecord) ChatRecord {
	c.mux.Lock()

	if record.Seq <= c.LastSeq {
		record.Seq = c.LastSeq + 1
	}
	c.LastSeq = record.Seq

	switch {
	case len(c.Records) < c.MaxRecords:
		if c.FirstSeq == -1 {
			c.FirstSeq = record.Seq
		}
		c.Records = append(c.Records, record)
		c.LastIndex++
	default:
		i := (c.LastIndex + 1) % c.MaxRecords
		c.Records[i] = record
		c.LastIndex = i
		c.FirstSeq = c.Records[(i+1)%c.MaxRecords].Seq
	}

	var receivers []models.Identity
	for receiverID, online := range c.Members {
		if online && receiverID != record.Sender {
			receivers = append(receivers, receiverID)
		}
	}
	callback := c.RecordCallback
	c.mux.Unlock()

	if callback != nil {
		for _, receiverID := range receivers {
			callback(receiverID, c.ID, record)
		}
	}
	return record
}

// GetLastRecords returns up to count most recent records, oldest first.
func (c *Chat) GetLastRecords(count int) []ChatRecord {
	c.mux.RLock()
	defer c.mux.RUnlock()

	if len(c.Records) == 0 || count <= 0 {
		return []ChatRecord{}
	}
	if count > len(c.Records) {
		count = len(c.Records)
	}

	// Oldest record sits right after the newest once the buffer wrapped.
	head := 0
	if len(c.Records) == c.MaxRecords {
		head = (c.LastIndex + 1) % c.MaxRecords
	}
	startIdx := (head + len(c.Records) - count) % len(c.Records)

	result := make([]ChatRecord, count)
	if startIdx+count <= len(c.Records) {
		copy(result, c.Records[startIdx:startIdx+count])
	} else {
		n1 := len(c.Records) - startIdx
		copy(result, c.Records[startIdx:])
		copy(result[n1:], c.Records[:count-n1])
	}
	return result
}

func (c *Chat) IsParticipant(id models.Identity) bool {
	for _, p := range c.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// Peer returns the other participant of id.
func (c *Chat) Peer(id models.Identity) (models.Identity, bool) {
	for _, p := range c.Participants {
		if p != id {
			return p, true
		}
	}
	return "", false
}

func (c *Chat) IsOnline(id models.Identity) bool {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return c.Members[id]
}

func (c *Chat) addMember(id models.Identity, online bool) {
	c.mux.Lock()
	defer c.mux.Unlock()

	c.Members[id] = online
}

func (c *Chat) Join(id models.Identity) {
	c.addMember(id, true)
}

func (c *Chat) Leave(id models.Identity) {
	c.addMember(id, false)
}
