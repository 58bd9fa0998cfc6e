// Package reconcile keeps the canonical state of one conversation: the
// ordered message sequence built from the fetched transcript plus live
// events, the peer presence flag and the peer typing flag.
package reconcile

import (
	"slices"
	"sync"
	"time"

	"duet/internal/models"
)

// DefaultTypingWindow is how long the peer stays "typing" without a renewed signal.
const DefaultTypingWindow = 3 * time.Second

// Timer is the part of *time.Timer the reconciler needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it through
// RealAfterFunc; tests substitute a manual clock.
type AfterFunc func(d time.Duration, f func()) Timer

func RealAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Entry is a message as displayed to the local participant.
type Entry struct {
	models.Message
	IsLocalOrigin bool
}

type Snapshot struct {
	Entries    []Entry
	PeerOnline bool
	PeerTyping bool
}

type Config struct {
	TypingWindow time.Duration
	AfterFunc    AfterFunc
	Now          func() time.Time
	// OnChange is called after every state change, outside the lock.
	OnChange func(Snapshot)
}

type Reconciler struct {
	mu       sync.Mutex
	identity models.Identity
	peer     models.Identity
	entries  []Entry
	online   bool
	typing   bool

	typingTimer Timer
	typingGen   uint64
	stopped     bool

	window    time.Duration
	afterFunc AfterFunc
	now       func() time.Time
	onChange  func(Snapshot)
}

func New(cfg Config) *Reconciler {
	r := &Reconciler{
		window:    cfg.TypingWindow,
		afterFunc: cfg.AfterFunc,
		now:       cfg.Now,
		onChange:  cfg.OnChange,
	}
	if r.window <= 0 {
		r.window = DefaultTypingWindow
	}
	if r.afterFunc == nil {
		r.afterFunc = RealAfterFunc
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Load seeds the sequence from the transcript, in transcript order. Each
// entry is local when its origin is identity. peer becomes the origin of
// messages appended by AppendRemote.
func (r *Reconciler) Load(identity, peer models.Identity, history []models.Message) {
	r.mu.Lock()
	r.identity = identity
	r.peer = peer
	r.entries = make([]Entry, 0, len(history))
	for _, m := range history {
		r.entries = append(r.entries, Entry{Message: m, IsLocalOrigin: m.Origin == identity})
	}
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.notify(snap)
}

// AppendRemote appends exactly one peer message. There is no de-duplication
// against what is already in the sequence.
func (r *Reconciler) AppendRemote(p models.MessagePayload) Entry {
	r.mu.Lock()
	e := Entry{
		Message: models.Message{Origin: r.peer, Body: p.Message, Timestamp: p.Date},
	}
	r.entries = append(r.entries, e)
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.notify(snap)
	return e
}

// AppendLocal appends a message the local participant is about to send.
func (r *Reconciler) AppendLocal(body string) Entry {
	r.mu.Lock()
	e := Entry{
		Message:       models.Message{Origin: r.identity, Body: body, Timestamp: r.now()},
		IsLocalOrigin: true,
	}
	r.entries = append(r.entries, e)
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.notify(snap)
	return e
}

// PeerTyping marks the peer as typing and restarts the quiet window.
// At most one expiry timer is pending at any time.
func (r *Reconciler) PeerTyping() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	if r.typingTimer != nil {
		r.typingTimer.Stop()
	}
	r.typingGen++
	gen := r.typingGen
	r.typingTimer = r.afterFunc(r.window, func() { r.expireTyping(gen) })

	changed := !r.typing
	r.typing = true
	snap := r.snapshotLocked()
	r.mu.Unlock()

	if changed {
		r.notify(snap)
	}
}

func (r *Reconciler) expireTyping(gen uint64) {
	r.mu.Lock()
	// A renewed signal or Stop superseded this timer.
	if gen != r.typingGen || r.stopped {
		r.mu.Unlock()
		return
	}
	r.typingTimer = nil
	r.typing = false
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.notify(snap)
}

// SetPresence records an explicit online/offline event.
func (r *Reconciler) SetPresence(online bool) {
	r.mu.Lock()
	if r.online == online {
		r.mu.Unlock()
		return
	}
	r.online = online
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.notify(snap)
}

// Stop cancels the pending typing timer and clears both flags. Messages
// are kept; further typing signals are ignored.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.typingGen++
	if r.typingTimer != nil {
		r.typingTimer.Stop()
		r.typingTimer = nil
	}
	r.online = false
	r.typing = false
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.notify(snap)
}

func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Reconciler) snapshotLocked() Snapshot {
	return Snapshot{
		Entries:    slices.Clone(r.entries),
		PeerOnline: r.online,
		PeerTyping: r.typing,
	}
}

func (r *Reconciler) notify(snap Snapshot) {
	if r.onChange != nil {
		r.onChange(snap)
	}
}
