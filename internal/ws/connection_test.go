package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"duet/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockWS struct {
	readCh      chan models.Envelope
	writeCh     chan any
	closeCh     chan struct{}
	closeOnce   sync.Once
	errToReturn error
}

func newMockWS() *mockWS {
	return &mockWS{
		readCh:  make(chan models.Envelope, 10),
		writeCh: make(chan any, 10),
		closeCh: make(chan struct{}),
	}
}

func (m *mockWS) Close() error {
	m.closeOnce.Do(func() { close(m.closeCh) })
	return nil
}

func (m *mockWS) closed() bool {
	select {
	case <-m.closeCh:
		return true
	default:
		return false
	}
}

func (m *mockWS) WriteJSON(v any) error {
	if m.errToReturn != nil {
		return m.errToReturn
	}
	m.writeCh <- v
	return nil
}

func (m *mockWS) ReadJSON(v any) error {
	if m.errToReturn != nil {
		return m.errToReturn
	}
	select {
	case env, ok := <-m.readCh:
		if !ok {
			return errors.New("closed")
		}
		if ptr, ok := v.(*models.Envelope); ok {
			*ptr = env
		}
		return nil
	case <-m.closeCh:
		return errors.New("connection closed")
	}
}

func (m *mockWS) push(t *testing.T, event models.EventType, payload any) {
	t.Helper()
	env, err := models.NewEnvelope(event, payload)
	require.NoError(t, err)
	m.readCh <- env
}

type hubCall struct {
	identity       models.Identity
	conversationID string
	body           string
}

type mockHub struct {
	joinErr  error
	joinCh   chan hubCall
	leaveCh  chan hubCall
	sendCh   chan hubCall
	typingCh chan hubCall
	outbox   chan models.Envelope
}

func newMockHub() *mockHub {
	return &mockHub{
		joinCh:   make(chan hubCall, 10),
		leaveCh:  make(chan hubCall, 10),
		sendCh:   make(chan hubCall, 10),
		typingCh: make(chan hubCall, 10),
		outbox:   make(chan models.Envelope, 10),
	}
}

func (m *mockHub) Join(identity models.Identity, conversationID string) (<-chan models.Envelope, error) {
	m.joinCh <- hubCall{identity: identity, conversationID: conversationID}
	if m.joinErr != nil {
		return nil, m.joinErr
	}
	return m.outbox, nil
}

func (m *mockHub) Leave(identity models.Identity, conversationID string, outbox <-chan models.Envelope) {
	m.leaveCh <- hubCall{identity: identity, conversationID: conversationID}
}

func (m *mockHub) Send(identity models.Identity, conversationID string, body string) error {
	m.sendCh <- hubCall{identity, conversationID, body}
	return nil
}

func (m *mockHub) Typing(identity models.Identity, conversationID string) error {
	m.typingCh <- hubCall{identity: identity, conversationID: conversationID}
	return nil
}

func startHandle(ctx context.Context, conn *Connection) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- conn.Handle(ctx)
	}()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(time.Second):
		t.Fatal("Handle did not return")
	}
	return nil
}

func TestConnection_Lifecycle(t *testing.T) {
	hub := newMockHub()
	ws := newMockWS()
	conn := NewConnection(hub, ws, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := startHandle(ctx, conn)

	ws.push(t, models.EventJoin, models.JoinPayload{ConversationID: "c1", Username: "alice"})
	select {
	case call := <-hub.joinCh:
		assert.Equal(t, hubCall{identity: "alice", conversationID: "c1"}, call)
	case <-time.After(time.Second):
		t.Fatal("Join not called")
	}

	// Client -> hub.
	ws.push(t, models.EventSend, models.SendPayload{ConversationID: "c1", Sender: "alice", Message: "hello"})
	select {
	case call := <-hub.sendCh:
		assert.Equal(t, hubCall{"alice", "c1", "hello"}, call)
	case <-time.After(time.Second):
		t.Fatal("hub did not receive send")
	}

	ws.push(t, models.EventTyping, models.TypingPayload{ConversationID: "c1", Sender: "alice"})
	select {
	case <-hub.typingCh:
	case <-time.After(time.Second):
		t.Fatal("hub did not receive typing")
	}

	// Hub -> client.
	env, err := models.NewEnvelope(models.EventPeerOnline, nil)
	require.NoError(t, err)
	hub.outbox <- env
	select {
	case written := <-ws.writeCh:
		require.Equal(t, env, written)
	case <-time.After(time.Second):
		t.Fatal("client did not receive hub event")
	}

	cancel()
	require.NoError(t, waitDone(t, done))

	select {
	case call := <-hub.leaveCh:
		assert.Equal(t, models.Identity("alice"), call.identity)
	default:
		t.Error("Leave not called")
	}
	assert.True(t, ws.closed())
}

func TestConnection_DropsForeignAndMalformedEvents(t *testing.T) {
	hub := newMockHub()
	ws := newMockWS()
	conn := NewConnection(hub, ws, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := startHandle(ctx, conn)

	ws.push(t, models.EventJoin, models.JoinPayload{ConversationID: "c1", Username: "alice"})
	<-hub.joinCh

	ws.push(t, models.EventSend, models.SendPayload{ConversationID: "c1", Sender: "bob", Message: "spoof"})
	ws.push(t, models.EventSend, models.SendPayload{ConversationID: "c2", Sender: "alice", Message: "elsewhere"})
	ws.push(t, models.EventSend, models.SendPayload{ConversationID: "c1", Sender: "alice", Message: "   "})
	ws.readCh <- models.Envelope{Event: models.EventSend, Data: json.RawMessage(`{"message":1}`)}
	ws.push(t, models.EventTyping, models.TypingPayload{ConversationID: "c1", Sender: "bob"})
	ws.push(t, models.EventJoin, models.JoinPayload{ConversationID: "c2", Username: "alice"})
	ws.push(t, "unknown", nil)
	ws.push(t, models.EventSend, models.SendPayload{ConversationID: "c1", Sender: "alice", Message: "real"})

	select {
	case call := <-hub.sendCh:
		assert.Equal(t, "real", call.body)
	case <-time.After(time.Second):
		t.Fatal("hub did not receive send")
	}
	assert.Empty(t, hub.typingCh)
	assert.Empty(t, hub.joinCh)

	cancel()
	require.NoError(t, waitDone(t, done))
}

func TestConnection_RequiresJoinFirst(t *testing.T) {
	tests := []struct {
		name    string
		event   models.EventType
		payload any
		joinErr error
		wantErr error
	}{
		{
			name:    "send before join",
			event:   models.EventSend,
			payload: models.SendPayload{ConversationID: "c1", Sender: "alice", Message: "hi"},
			wantErr: ErrJoinRequired,
		},
		{
			name:    "missing conversation",
			event:   models.EventJoin,
			payload: models.JoinPayload{Username: "alice"},
		},
		{
			name:    "invalid identity",
			event:   models.EventJoin,
			payload: models.JoinPayload{ConversationID: "c1", Username: "a b"},
		},
		{
			name:    "hub refuses",
			event:   models.EventJoin,
			payload: models.JoinPayload{ConversationID: "c1", Username: "mallory"},
			joinErr: ErrNotParticipant,
			wantErr: ErrNotParticipant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := newMockHub()
			hub.joinErr = tt.joinErr
			ws := newMockWS()
			conn := NewConnection(hub, ws, nil)

			done := startHandle(context.Background(), conn)
			ws.push(t, tt.event, tt.payload)

			err := waitDone(t, done)
			require.Error(t, err)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
			assert.True(t, ws.closed())
			assert.Empty(t, hub.leaveCh)
		})
	}
}

func TestConnection_CancelWhileWaitingForJoin(t *testing.T) {
	hub := newMockHub()
	ws := newMockWS()
	conn := NewConnection(hub, ws, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := startHandle(ctx, conn)
	cancel()

	require.Error(t, waitDone(t, done))
	assert.Empty(t, hub.joinCh)
}

func TestConnection_Replaced(t *testing.T) {
	hub := newMockHub()
	ws := newMockWS()
	conn := NewConnection(hub, ws, nil)

	done := startHandle(context.Background(), conn)
	ws.push(t, models.EventJoin, models.JoinPayload{ConversationID: "c1", Username: "alice"})
	<-hub.joinCh

	close(hub.outbox)
	require.ErrorIs(t, waitDone(t, done), ErrReplaced)
	<-hub.leaveCh
}

func TestConnection_WSError(t *testing.T) {
	hub := newMockHub()
	ws := newMockWS()
	conn := NewConnection(hub, ws, nil)

	done := startHandle(context.Background(), conn)
	ws.push(t, models.EventJoin, models.JoinPayload{ConversationID: "c1", Username: "alice"})
	<-hub.joinCh

	close(ws.readCh)
	err := waitDone(t, done)
	require.Error(t, err)
	assert.Equal(t, "closed", err.Error())
	<-hub.leaveCh
}
