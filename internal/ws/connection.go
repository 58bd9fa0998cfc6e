package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"duet/internal/content"
	"duet/internal/models"
)

var (
	ErrJoinRequired = errors.New("first event must be join")
	ErrReplaced     = errors.New("connection replaced by a newer one")
)

type wsConnection interface {
	Close() error
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
}

type messageHub interface {
	Join(identity models.Identity, conversationID string) (<-chan models.Envelope, error)
	Leave(identity models.Identity, conversationID string, outbox <-chan models.Envelope)
	Send(identity models.Identity, conversationID string, body string) error
	Typing(identity models.Identity, conversationID string) error
}

// Connection serves one websocket: it waits for the join event, then relays
// client events to the hub and hub events to the client until either side
// goes away.
type Connection struct {
	ws             wsConnection
	hub            messageHub
	log            *slog.Logger
	identity       models.Identity
	conversationID string
	fromClient     chan models.Envelope
	fromServer     <-chan models.Envelope
	errorCh        chan error
}

func NewConnection(hub messageHub, ws wsConnection, log *slog.Logger) *Connection {
	if log == nil {
		log = slog.Default()
	}
	return &Connection{
		ws:         ws,
		hub:        hub,
		log:        log,
		fromClient: make(chan models.Envelope),
		errorCh:    make(chan error, 2),
	}
}

func (c *Connection) Handle(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = c.ws.Close() })
	err := c.join()
	stop()
	if err != nil {
		_ = c.ws.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		close(c.fromClient)
		close(c.errorCh)
		c.hub.Leave(c.identity, c.conversationID, c.fromServer)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpMessages(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	// The first goroutine to stop decides the outcome.
	err = <-c.errorCh
	c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (c *Connection) join() error {
	var env models.Envelope
	if err := c.ws.ReadJSON(&env); err != nil {
		return err
	}
	if env.Event != models.EventJoin {
		return fmt.Errorf("%w, got %q", ErrJoinRequired, env.Event)
	}

	var p models.JoinPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return fmt.Errorf("%w: %w", content.ErrInvalidPayload, err)
	}
	if err := content.ValidatePayload(p); err != nil {
		return err
	}
	if err := content.ValidateIdentity(string(p.Username)); err != nil {
		return err
	}

	outbox, err := c.hub.Join(p.Username, p.ConversationID)
	if err != nil {
		return err
	}

	c.identity = p.Username
	c.conversationID = p.ConversationID
	c.fromServer = outbox
	c.log = c.log.With("identity", c.identity, "conversation_id", c.conversationID)
	c.log.Info("joined")
	return nil
}

func (c *Connection) pumpMessages(ctx context.Context) error {
	for {
		var env models.Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			if isMalformed(err) {
				c.log.Warn("skipping malformed frame", "error", err)
				continue
			}
			return err
		}
		select {
		case c.fromClient <- env:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	for {
		select {
		case env := <-c.fromClient:
			c.processClientMessage(env)
		case env, ok := <-c.fromServer:
			if !ok {
				return ErrReplaced
			}
			if err := c.ws.WriteJSON(env); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// processClientMessage relays one client event. Events that are malformed or
// speak for another participant or conversation are logged and dropped.
func (c *Connection) processClientMessage(env models.Envelope) {
	switch env.Event {
	case models.EventSend:
		var p models.SendPayload
		if err := c.decode(env, &p); err != nil {
			c.log.Warn("dropping send", "error", err)
			return
		}
		if !c.owns(p.Sender, p.ConversationID) {
			c.log.Warn("dropping send for another session", "sender", p.Sender, "target", p.ConversationID)
			return
		}
		if err := c.hub.Send(c.identity, c.conversationID, p.Message); err != nil {
			c.log.Warn("send failed", "error", err)
		}
	case models.EventTyping:
		var p models.TypingPayload
		if err := c.decode(env, &p); err != nil {
			c.log.Warn("dropping typing", "error", err)
			return
		}
		if !c.owns(p.Sender, p.ConversationID) {
			return
		}
		if err := c.hub.Typing(c.identity, c.conversationID); err != nil {
			c.log.Warn("typing failed", "error", err)
		}
	case models.EventJoin:
		c.log.Debug("ignoring repeated join")
	default:
		c.log.Debug("ignoring unknown event", "event", env.Event)
	}
}

func (c *Connection) decode(env models.Envelope, v any) error {
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %w", content.ErrInvalidPayload, env.Event, err)
	}
	return content.ValidatePayload(v)
}

func (c *Connection) owns(sender models.Identity, conversationID string) bool {
	return sender == c.identity && conversationID == c.conversationID
}

func isMalformed(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
