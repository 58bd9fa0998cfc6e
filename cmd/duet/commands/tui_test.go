package commands

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duet/internal/models"
	"duet/internal/reconcile"
	"duet/internal/session"
)

type fakeSession struct {
	sent     []string
	typing   int
	state    session.State
	snap     reconcile.Snapshot
	identity models.Identity
	peer     models.Identity
}

func (f *fakeSession) SendMessage(body string)      { f.sent = append(f.sent, body) }
func (f *fakeSession) NotifyTyping()                { f.typing++ }
func (f *fakeSession) Identity() models.Identity    { return f.identity }
func (f *fakeSession) Peer() models.Identity        { return f.peer }
func (f *fakeSession) Snapshot() reconcile.Snapshot { return f.snap }
func (f *fakeSession) State() session.State         { return f.state }

func connectedSession() *fakeSession {
	return &fakeSession{state: session.Connected, identity: "alice", peer: "bob"}
}

func update(t *testing.T, m model, msg tea.Msg) model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(model)
	require.True(t, ok)
	return out
}

func typeText(t *testing.T, m model, text string) model {
	t.Helper()
	for _, r := range text {
		m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func TestModel_TypingAndSend(t *testing.T) {
	sess := connectedSession()
	m := newModel(sess, nil, nil)

	m = typeText(t, m, "hi")
	assert.Equal(t, "hi", m.input.Value())
	assert.Equal(t, 2, sess.typing)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, []string{"hi"}, sess.sent)
	assert.Empty(t, m.input.Value())
}

func TestModel_BlankInputIsNotSent(t *testing.T) {
	sess := connectedSession()
	m := newModel(sess, nil, nil)

	m = update(t, m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune(" ")})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Empty(t, sess.sent)
	assert.Equal(t, " ", m.input.Value())
}

func TestModel_DraftKeptUntilConnected(t *testing.T) {
	sess := &fakeSession{state: session.FetchingTranscript, identity: "alice"}
	m := newModel(sess, nil, nil)

	m = typeText(t, m, "early")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Empty(t, sess.sent)
	assert.Equal(t, "early", m.input.Value())

	sess.state = session.Connected
	m = update(t, m, changedMsg{})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, []string{"early"}, sess.sent)
	assert.Empty(t, m.input.Value())
}

func TestModel_Quit(t *testing.T) {
	m := newModel(connectedSession(), nil, nil)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModel_RendersSnapshot(t *testing.T) {
	sess := &fakeSession{state: session.FetchingTranscript, identity: "alice", peer: "bob"}
	m := newModel(sess, nil, nil)
	m = update(t, m, tea.WindowSizeMsg{Width: 60, Height: 20})
	assert.Contains(t, m.View(), "connecting...")

	ts := time.Date(2024, 1, 1, 9, 30, 0, 0, time.Local)
	sess.state = session.Connected
	sess.snap = reconcile.Snapshot{
		PeerOnline: true,
		PeerTyping: true,
		Entries: []reconcile.Entry{
			{Message: models.Message{Origin: "bob", Body: "hello alice", Timestamp: ts}},
			{Message: models.Message{Origin: "alice", Body: "hey bob", Timestamp: ts}, IsLocalOrigin: true},
		},
	}
	m = update(t, m, changedMsg{})

	out := m.View()
	assert.Contains(t, out, "Chat with bob")
	assert.Contains(t, out, "bob is typing...")
	assert.Contains(t, out, "hello alice")
	assert.Contains(t, out, "hey bob")
	assert.Contains(t, out, "09:30")
	assert.NotContains(t, out, "connecting...")
}

func TestModel_ChoosesIdentity(t *testing.T) {
	records := []models.ConversationRecord{
		{ID: "c1", Participants: []models.Identity{"alice", "bob"}},
	}
	choices := identityChoices(records)
	require.Len(t, choices, 2)
	assert.Equal(t, "chats with bob", choices[0].Description())

	sess := &fakeSession{}
	var started []models.Identity
	start := func(id models.Identity) error {
		started = append(started, id)
		sess.identity = id
		sess.peer = "alice"
		sess.state = session.FetchingTranscript
		return nil
	}

	m := newModel(sess, choices, start)
	m = update(t, m, tea.WindowSizeMsg{Width: 60, Height: 20})
	require.True(t, m.choosing)

	out := m.View()
	assert.Contains(t, out, "Please choose who you are")
	assert.Contains(t, out, "Who are you?")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "bob")

	// Typing goes to the list, not to the peer.
	m = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Zero(t, sess.typing)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, []models.Identity{"bob"}, started)
	assert.False(t, m.choosing)
	assert.Empty(t, sess.sent)

	out = m.View()
	assert.Contains(t, out, "Chat with alice")
	assert.Contains(t, out, "connecting...")
}

func TestModel_ChooserShowsStartError(t *testing.T) {
	choices := identityChoices([]models.ConversationRecord{
		{ID: "c1", Participants: []models.Identity{"alice", "bob"}},
	})
	start := func(models.Identity) error { return errors.New("session terminated") }

	m := newModel(&fakeSession{}, choices, start)
	m = update(t, m, tea.WindowSizeMsg{Width: 60, Height: 20})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.True(t, m.choosing)
	assert.Contains(t, m.View(), "session terminated")
}

func TestIdentityChoices(t *testing.T) {
	choices := identityChoices([]models.ConversationRecord{
		{ID: "c1", Participants: []models.Identity{"alice", "bob"}},
		{ID: "c2", Participants: []models.Identity{"carol", "alice"}},
	})
	require.Len(t, choices, 3)
	assert.Equal(t, models.Identity("alice"), choices[0].id)
	assert.Equal(t, []models.Identity{"bob", "carol"}, choices[0].peers)
	assert.Equal(t, "chats with bob, carol", choices[0].Description())
	assert.Equal(t, models.Identity("carol"), choices[2].id)

	assert.Empty(t, identityChoices(nil))
}
