// Package session drives one participant's chat session:
// identity selection, transcript fetch, connect, subscribe and teardown.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"duet/internal/content"
	"duet/internal/models"
	"duet/internal/protocol"
	"duet/internal/reconcile"
	"duet/internal/transcript"
	"duet/internal/transport"
)

var (
	ErrIdentityImmutable = errors.New("identity already chosen for this session")
	ErrTerminated        = errors.New("session terminated")
)

type State int

const (
	Unidentified State = iota
	FetchingTranscript
	Connected
	Terminated
)

func (s State) String() string {
	switch s {
	case Unidentified:
		return "unidentified"
	case FetchingTranscript:
		return "fetching-transcript"
	case Connected:
		return "connected"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Conn is the live transport of a session.
type Conn interface {
	protocol.Emitter
	protocol.EventSource
	Done() <-chan struct{}
	Close() error
}

// DialFunc opens the transport. It must return only once the transport is open.
type DialFunc func(ctx context.Context, identity models.Identity, conversationID string) (Conn, error)

// TranscriptSource returns all conversation records.
type TranscriptSource interface {
	Fetch(ctx context.Context) ([]models.ConversationRecord, error)
}

// WebSocketDialer adapts a transport connector to a DialFunc.
func WebSocketDialer(c *transport.Connector) DialFunc {
	return func(ctx context.Context, identity models.Identity, conversationID string) (Conn, error) {
		h, err := c.Connect(ctx, identity, conversationID)
		if err != nil {
			return nil, err
		}
		return h, nil
	}
}

type Config struct {
	Transcripts TranscriptSource
	Dial        DialFunc
	// TypingThrottle is the minimum gap between two outbound typing
	// notices. Zero sends one per NotifyTyping call.
	TypingThrottle time.Duration
	// TranscriptTimeout bounds the transcript fetch. Zero waits forever.
	TranscriptTimeout time.Duration
	Reconciler        reconcile.Config
	Logger            *slog.Logger
	// OnState is called after every state transition.
	OnState func(State)
}

type Controller struct {
	transcripts       TranscriptSource
	dial              DialFunc
	typingThrottle    time.Duration
	transcriptTimeout time.Duration
	onState           func(State)
	log               *slog.Logger

	negotiator *protocol.Negotiator
	subscriber *protocol.Subscriber
	dispatcher *protocol.Dispatcher
	reconciler *reconcile.Reconciler

	mu             sync.Mutex
	state          State
	identity       models.Identity
	peer           models.Identity
	conversationID string
	conn           Conn
	lastTyping     time.Time
	ready          chan struct{}
	wg             sync.WaitGroup
}

func New(cfg Config) *Controller {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		transcripts:       cfg.Transcripts,
		dial:              cfg.Dial,
		typingThrottle:    cfg.TypingThrottle,
		transcriptTimeout: cfg.TranscriptTimeout,
		onState:           cfg.OnState,
		log:               log,
		negotiator:        protocol.NewNegotiator(log),
		subscriber:        protocol.NewSubscriber(log),
		dispatcher:        protocol.NewDispatcher(log),
		reconciler:        reconcile.New(cfg.Reconciler),
		ready:             make(chan struct{}),
	}
}

// Start binds identity to the session and begins the transcript fetch and
// connect sequence in the background. Failures along the way are logged and
// leave the session where it stopped; they are never returned here.
func (c *Controller) Start(ctx context.Context, identity models.Identity) error {
	if err := content.ValidateIdentity(string(identity)); err != nil {
		return err
	}

	c.mu.Lock()
	switch c.state {
	case Terminated:
		c.mu.Unlock()
		return ErrTerminated
	case Unidentified:
	default:
		c.mu.Unlock()
		return ErrIdentityImmutable
	}
	c.identity = identity
	c.state = FetchingTranscript
	c.mu.Unlock()
	c.notifyState(FetchingTranscript)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx, identity)
	}()
	return nil
}

func (c *Controller) run(ctx context.Context, identity models.Identity) {
	log := c.log.With("identity", identity)

	fetchCtx := ctx
	if c.transcriptTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, c.transcriptTimeout)
		defer cancel()
	}

	records, err := c.transcripts.Fetch(fetchCtx)
	if c.terminated() {
		log.Debug("discarding transcript fetched after teardown")
		return
	}
	if err != nil {
		log.Error("transcript fetch failed", "error", err)
		return
	}

	rec, ok := transcript.SelectConversation(records, identity)
	if !ok {
		log.Warn("no conversation to join", "error", transcript.ErrNoConversation)
		return
	}
	peer, _ := transcript.ResolvePeer(rec, identity)
	log = log.With("conversation_id", rec.ID, "peer", peer)

	c.mu.Lock()
	c.conversationID = rec.ID
	c.peer = peer
	c.mu.Unlock()
	c.reconciler.Load(identity, peer, transcript.ToMessages(rec))

	conn, err := c.dial(ctx, identity, rec.ID)
	if err != nil {
		log.Error("connect failed", "error", err)
		return
	}

	c.mu.Lock()
	if c.state == Terminated {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	c.negotiator.AnnounceJoin(conn, rec.ID, identity)
	c.subscriber.Subscribe(conn, protocol.Handlers{
		OnMessage: func(msg models.MessagePayload, err error) {
			if err != nil {
				log.Warn("skipping inbound message", "error", err)
				return
			}
			c.reconciler.AppendRemote(msg)
		},
		OnPeerOffline: func() { c.reconciler.SetPresence(false) },
		OnPeerOnline:  func() { c.reconciler.SetPresence(true) },
		OnPeerTyping:  c.reconciler.PeerTyping,
	})

	c.mu.Lock()
	if c.state == Terminated {
		c.mu.Unlock()
		return
	}
	c.state = Connected
	close(c.ready)
	c.mu.Unlock()
	c.notifyState(Connected)
	log.Info("session connected")

	// Presence is only as good as the transport carrying it.
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		<-conn.Done()
		c.reconciler.SetPresence(false)
	}()
}

// SendMessage appends body locally and sends it to the peer, cleaned the same
// way the relay cleans it. Bodies that clean to nothing and sends outside the
// Connected state are dropped.
func (c *Controller) SendMessage(body string) {
	body = content.CleanBody(body)
	if body == "" {
		return
	}

	c.mu.Lock()
	state, conn, conversationID, identity := c.state, c.conn, c.conversationID, c.identity
	c.mu.Unlock()

	if state != Connected {
		c.log.Debug("send suppressed", "state", state)
		return
	}

	c.reconciler.AppendLocal(body)
	c.dispatcher.SendMessage(conn, conversationID, identity, body)
}

// NotifyTyping tells the peer the local participant is typing.
func (c *Controller) NotifyTyping() {
	c.mu.Lock()
	if c.state != Connected {
		c.mu.Unlock()
		return
	}
	now := time.Now()
	if c.typingThrottle > 0 && now.Sub(c.lastTyping) < c.typingThrottle {
		c.mu.Unlock()
		return
	}
	c.lastTyping = now
	conn, conversationID, identity := c.conn, c.conversationID, c.identity
	c.mu.Unlock()

	c.dispatcher.SendTyping(conn, conversationID, identity)
}

// Close tears the session down: listeners are detached, the transport is
// closed and the typing timer stopped. A fetch still in flight is left to
// finish and its result discarded. Close is idempotent.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.state == Terminated {
		c.mu.Unlock()
		return nil
	}
	c.state = Terminated
	conn := c.conn
	c.mu.Unlock()

	var err error
	if conn != nil {
		c.subscriber.Detach(conn)
		err = conn.Close()
	}
	c.reconciler.Stop()
	c.notifyState(Terminated)
	return err
}

// Wait blocks until background work started by Start has returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Ready is closed when the session reaches Connected.
func (c *Controller) Ready() <-chan struct{} {
	return c.ready
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Identity() models.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *Controller) Peer() models.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

func (c *Controller) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

func (c *Controller) Snapshot() reconcile.Snapshot {
	return c.reconciler.Snapshot()
}

func (c *Controller) terminated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Terminated
}

func (c *Controller) notifyState(s State) {
	c.log.Debug("session state", "state", s)
	if c.onState != nil {
		c.onState(s)
	}
}
