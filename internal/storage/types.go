package storage

import (
	"encoding"
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

var (
	_ Storeable = (*DBConversation)(nil)
	_ Storeable = (*DBMessage)(nil)
)

type DBConversation struct {
	ID           string   `msgpack:"id"`
	Participants []string `msgpack:"participants"`
	CreatedAt    int64    `msgpack:"createdAt"`
	LastSeq      int64    `msgpack:"lastSeq"`
}

func (c *DBConversation) Key() []byte {
	return []byte(c.ID)
}

func (c *DBConversation) MarshalBinary() (data []byte, err error) {
	type alias DBConversation
	return msgpack.Marshal((*alias)(c))
}

func (c *DBConversation) UnmarshalBinary(data []byte) error {
	type alias DBConversation
	return msgpack.Unmarshal(data, (*alias)(c))
}

// DBMessage timestamps are unix milliseconds.
type DBMessage struct {
	Seq            int64  `msgpack:"seq"`
	Timestamp      int64  `msgpack:"timestamp"`
	ConversationID string `msgpack:"conversationId"`
	Sender         string `msgpack:"sender"`
	Content        string `msgpack:"content"`
}

func (m *DBMessage) Key() []byte {
	return seqKey(m.Seq)
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

func seqKey(seq int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(seq))
	return key
}
