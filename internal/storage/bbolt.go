package storage

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"time"

	"duet/internal/models"

	"go.etcd.io/bbolt"
)

var (
	bucketConversations = []byte("conversations")
	bucketMessages      = []byte("messages")
)

// StoredMessage is a persisted message with its per-conversation sequence number.
type StoredMessage struct {
	Seq int64
	models.MessageRecord
}

type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketConversations); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketMessages); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// UpsertConversation saves the conversation participants. The message
// sequence of an existing conversation is kept.
func (s *BboltStorage) UpsertConversation(id string, participants []models.Identity, createdAt time.Time) error {
	if id == "" {
		return errors.New("conversation missing id")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketConversations)

		dbConv := &DBConversation{ID: id}
		if data := b.Get(dbConv.Key()); data != nil {
			if err := dbConv.UnmarshalBinary(data); err != nil {
				return fmt.Errorf("failed to unmarshal conversation: %w", err)
			}
		} else {
			dbConv.CreatedAt = createdAt.UnixMilli()
		}

		dbConv.Participants = make([]string, len(participants))
		for i, p := range participants {
			dbConv.Participants[i] = string(p)
		}

		data, err := dbConv.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbConv.Key(), data)
	})
}

// ListConversations returns all conversations ordered by creation time.
// Messages are not loaded.
func (s *BboltStorage) ListConversations() ([]models.ConversationRecord, error) {
	var dbConvs []DBConversation
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketConversations)
		return b.ForEach(func(k, v []byte) error {
			var dbConv DBConversation
			if err := dbConv.UnmarshalBinary(v); err != nil {
				return err
			}
			dbConvs = append(dbConvs, dbConv)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(dbConvs, func(a, b DBConversation) int {
		return cmp.Compare(a.CreatedAt, b.CreatedAt)
	})

	records := make([]models.ConversationRecord, 0, len(dbConvs))
	for _, c := range dbConvs {
		participants := make([]models.Identity, len(c.Participants))
		for i, p := range c.Participants {
			participants[i] = models.Identity(p)
		}
		records = append(records, models.ConversationRecord{ID: c.ID, Participants: participants})
	}
	return records, nil
}

// AppendMessage stores message under the next sequence number of the
// conversation and returns that number.
func (s *BboltStorage) AppendMessage(conversationID string, message models.MessageRecord) (int64, error) {
	var seq int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		convBucket := tx.Bucket(bucketConversations)
		convKey := []byte(conversationID)
		convData := convBucket.Get(convKey)
		if convData == nil {
			return fmt.Errorf("conversation %s: %w", conversationID, models.ErrNotFound)
		}

		var dbConv DBConversation
		if err := dbConv.UnmarshalBinary(convData); err != nil {
			return fmt.Errorf("failed to unmarshal conversation: %w", err)
		}

		msgBucket, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists(convKey)
		if err != nil {
			return fmt.Errorf("failed to create conversation bucket: %w", err)
		}

		dbConv.LastSeq++
		seq = dbConv.LastSeq

		dbMessage := &DBMessage{
			Seq:            seq,
			Timestamp:      message.Date.UnixMilli(),
			ConversationID: conversationID,
			Sender:         string(message.Sender),
			Content:        message.Message,
		}
		data, err := dbMessage.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		if err := msgBucket.Put(dbMessage.Key(), data); err != nil {
			return fmt.Errorf("failed to put message: %w", err)
		}

		convData, err = dbConv.MarshalBinary()
		if err != nil {
			return err
		}
		return convBucket.Put(convKey, convData)
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// ListMessages returns up to limit most recent messages of the conversation
// in sequence order. A limit of zero or less returns all of them.
func (s *BboltStorage) ListMessages(conversationID string, limit int) ([]StoredMessage, error) {
	var messages []StoredMessage
	err := s.db.View(func(tx *bbolt.Tx) error {
		msgBucket := tx.Bucket(bucketMessages).Bucket([]byte(conversationID))
		if msgBucket == nil {
			return nil
		}

		c := msgBucket.Cursor()
		first, _ := c.Last()
		for n := 1; first != nil && (limit <= 0 || n < limit); n++ {
			prev, _ := c.Prev()
			if prev == nil {
				break
			}
			first = prev
		}
		if first == nil {
			return nil
		}

		for k, v := c.Seek(first); k != nil; k, v = c.Next() {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, StoredMessage{
				Seq: dbMsg.Seq,
				MessageRecord: models.MessageRecord{
					Sender:  models.Identity(dbMsg.Sender),
					Message: dbMsg.Content,
					Date:    time.UnixMilli(dbMsg.Timestamp).UTC(),
				},
			})
		}
		return nil
	})
	return messages, err
}
