// Package transport owns the single persistent websocket a chat session
// talks over. A Handle serializes writes and delivers inbound envelopes to
// named listeners from one read pump, in arrival order.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"duet/internal/models"

	"github.com/gorilla/websocket"
)

var (
	ErrTransportUnavailable = errors.New("transport unavailable")
	ErrUnsupportedMode      = errors.New("unsupported transport mode")
	ErrClosed               = errors.New("transport closed")
)

type Mode string

// ModeWebSocket is the only mode. There is no negotiation or fallback.
const ModeWebSocket Mode = "websocket"

const defaultHandshakeTimeout = 10 * time.Second

type wsConnection interface {
	Close() error
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
}

// HandlerFunc receives the raw data of one inbound envelope.
type HandlerFunc func(data json.RawMessage)

type Config struct {
	URL              string
	Mode             Mode
	HandshakeTimeout time.Duration
	// Dialer overrides the default gorilla dialer (tests, proxies).
	Dialer *websocket.Dialer
	Logger *slog.Logger
}

type Connector struct {
	cfg    Config
	dialer *websocket.Dialer
	log    *slog.Logger
}

func NewConnector(cfg Config) *Connector {
	dialer := cfg.Dialer
	if dialer == nil {
		timeout := cfg.HandshakeTimeout
		if timeout <= 0 {
			timeout = defaultHandshakeTimeout
		}
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
		}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Connector{cfg: cfg, dialer: dialer, log: log}
}

// Connect opens the transport for identity in conversationID. It returns only
// once the websocket handshake has completed, so callers can announce the
// join right away without racing a half-open socket.
func (c *Connector) Connect(ctx context.Context, identity models.Identity, conversationID string) (*Handle, error) {
	if c.cfg.Mode != ModeWebSocket {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, c.cfg.Mode)
	}

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrTransportUnavailable, c.cfg.URL, err)
	}

	c.log.Debug("transport open", "url", c.cfg.URL, "identity", identity, "conversation_id", conversationID)
	return newHandle(conn, c.log), nil
}

// Disconnect closes h. It is a no-op for nil or already closed handles.
func (c *Connector) Disconnect(h *Handle) {
	if err := h.Close(); err != nil {
		c.log.Debug("transport close", "error", err)
	}
}

type Handle struct {
	conn wsConnection
	log  *slog.Logger

	writeMu sync.Mutex

	mu        sync.RWMutex
	listeners map[models.EventType]HandlerFunc

	closed    atomic.Bool
	closeOnce sync.Once
	startOnce sync.Once
	done      chan struct{}
}

func newHandle(conn wsConnection, log *slog.Logger) *Handle {
	return &Handle{
		conn:      conn,
		log:       log,
		listeners: make(map[models.EventType]HandlerFunc),
		done:      make(chan struct{}),
	}
}

// Emit writes one envelope. After Close it returns ErrClosed and never
// touches the socket.
func (h *Handle) Emit(event models.EventType, payload any) error {
	if h == nil {
		return ErrClosed
	}

	env, err := models.NewEnvelope(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if h.closed.Load() {
		return ErrClosed
	}
	return h.conn.WriteJSON(env)
}

// On registers fn for event, replacing any previous listener.
func (h *Handle) On(event models.EventType, fn HandlerFunc) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners[event] = fn
}

func (h *Handle) Off(event models.EventType) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.listeners, event)
}

// Start launches the read pump. Subsequent calls do nothing. Frames that
// arrive before Start stay buffered in the socket, so listeners registered
// before Start never miss an event.
func (h *Handle) Start() {
	if h == nil {
		return
	}
	h.startOnce.Do(func() {
		go h.readPump()
	})
}

// Done is closed once the handle is closed, locally or by the read pump
// after the remote end went away.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	var err error
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		close(h.done)
		err = h.conn.Close()
	})
	return err
}

func (h *Handle) readPump() {
	for {
		var env models.Envelope
		if err := h.conn.ReadJSON(&env); err != nil {
			if isMalformed(err) {
				h.log.Warn("skipping malformed frame", "error", err)
				continue
			}
			if !h.closed.Load() {
				h.log.Info("transport closed by remote", "error", err)
			}
			_ = h.Close()
			return
		}

		if h.closed.Load() {
			return
		}

		h.mu.RLock()
		fn := h.listeners[env.Event]
		h.mu.RUnlock()

		if fn == nil {
			h.log.Debug("no listener for event", "event", env.Event)
			continue
		}
		fn(env.Data)
	}
}

func isMalformed(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) ||
		errors.As(err, &typeErr) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
