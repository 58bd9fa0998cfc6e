// Package protocol speaks the chat event protocol over a transport handle:
// the join announcement, typed inbound subscriptions and guarded outbound
// sends.
package protocol

import (
	"encoding/json"
	"errors"

	"duet/internal/models"
	"duet/internal/transport"
)

var ErrMalformedEvent = errors.New("malformed event")

// Emitter is the write side of a transport handle.
type Emitter interface {
	Emit(event models.EventType, payload any) error
}

// EventSource is the listen side of a transport handle.
type EventSource interface {
	On(event models.EventType, fn transport.HandlerFunc)
	Off(event models.EventType)
	Start()
}

var (
	_ Emitter     = (*transport.Handle)(nil)
	_ EventSource = (*transport.Handle)(nil)
)

func decode[T any](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 {
		return v, errors.New("empty payload")
	}
	err := json.Unmarshal(data, &v)
	return v, err
}
