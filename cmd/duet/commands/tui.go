package commands

import (
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"duet/internal/models"
	"duet/internal/reconcile"
	"duet/internal/session"
	"duet/internal/transcript"
	"duet/internal/view"
)

// chatSession is the part of the session controller the screen drives.
type chatSession interface {
	SendMessage(body string)
	NotifyTyping()
	Identity() models.Identity
	Peer() models.Identity
	Snapshot() reconcile.Snapshot
	State() session.State
}

var _ chatSession = (*session.Controller)(nil)

// StartFunc binds the chosen identity to the session.
type StartFunc func(models.Identity) error

// changedMsg tells the screen that the session state moved on.
type changedMsg struct{}

const (
	headerHeight = 2
	footerHeight = 2
)

var (
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")).Italic(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
)

// identityItem is one row of the "Who are you?" list.
type identityItem struct {
	id    models.Identity
	peers []models.Identity
}

func (i identityItem) Title() string       { return string(i.id) }
func (i identityItem) FilterValue() string { return string(i.id) }

func (i identityItem) Description() string {
	if len(i.peers) == 0 {
		return ""
	}
	names := make([]string, len(i.peers))
	for n, p := range i.peers {
		names[n] = string(p)
	}
	return "chats with " + strings.Join(names, ", ")
}

type model struct {
	sess  chatSession
	start StartFunc

	choosing bool
	chooser  list.Model
	err      error

	input    textinput.Model
	viewport viewport.Model

	snap  reconcile.Snapshot
	state session.State

	width  int
	height int
}

// newModel builds the chat screen. With choices the screen first asks who
// the user is and hands the pick to start; without, the session must
// already be started.
func newModel(sess chatSession, choices []identityItem, start StartFunc) model {
	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.Prompt = "> "
	input.CharLimit = 2000
	input.Focus()

	items := make([]list.Item, len(choices))
	for i, c := range choices {
		items[i] = c
	}
	chooser := list.New(items, list.NewDefaultDelegate(), 80, 20)
	chooser.Title = "Who are you?"
	chooser.SetFilteringEnabled(false)
	chooser.SetShowStatusBar(false)

	return model{
		sess:     sess,
		start:    start,
		choosing: len(choices) > 0 && sess.State() == session.Unidentified,
		chooser:  chooser,
		input:    input,
		viewport: viewport.New(80, 20),
		snap:     sess.Snapshot(),
		state:    sess.State(),
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		}
		if m.choosing {
			return m.updateChooser(msg)
		}

		if msg.Type == tea.KeyEnter {
			// Keep the draft until the session can take it.
			if m.state != session.Connected {
				return m, nil
			}
			if body := m.input.Value(); strings.TrimSpace(body) != "" {
				m.sess.SendMessage(body)
				m.input.Reset()
			}
			return m, nil
		}

		before := m.input.Value()
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		if m.input.Value() != before {
			m.sess.NotifyTyping()
		}
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chooser.SetSize(msg.Width, max(msg.Height-headerHeight-footerHeight, 1))
		m.viewport = viewport.New(msg.Width, max(msg.Height-headerHeight-footerHeight, 1))
		m.input.Width = max(msg.Width-4, 1)
		m.refresh()

	case changedMsg:
		m.snap = m.sess.Snapshot()
		m.state = m.sess.State()
		m.refresh()

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m model) updateChooser(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type != tea.KeyEnter {
		var cmd tea.Cmd
		m.chooser, cmd = m.chooser.Update(msg)
		return m, cmd
	}

	item, ok := m.chooser.SelectedItem().(identityItem)
	if !ok {
		return m, nil
	}
	if err := m.start(item.id); err != nil {
		m.err = err
		return m, nil
	}
	m.choosing = false
	m.err = nil
	m.state = m.sess.State()
	m.refresh()
	return m, nil
}

func (m *model) refresh() {
	m.viewport.SetContent(view.RenderMessages(m.snap, m.header(), m.viewport.Width))
	m.viewport.GotoBottom()
}

func (m model) header() view.Header {
	return view.Header{Self: m.sess.Identity(), Peer: m.sess.Peer()}
}

func (m model) status() string {
	if m.err != nil {
		return errorStyle.Render(m.err.Error())
	}
	switch m.state {
	case session.Unidentified, session.Connected:
		return ""
	case session.Terminated:
		return statusStyle.Render("disconnected")
	}
	return statusStyle.Render("connecting...")
}

func (m model) View() string {
	header := view.RenderHeader(m.snap, m.header(), m.width)
	if m.choosing {
		return lipgloss.JoinVertical(lipgloss.Left, header, m.chooser.View(), m.status())
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		m.status(),
		m.input.View(),
	)
}

// identityChoices turns the conversation list into chooser rows: every
// participant once, with the peers they have a conversation with.
func identityChoices(records []models.ConversationRecord) []identityItem {
	ids := transcript.Participants(records)
	items := make([]identityItem, 0, len(ids))
	for _, id := range ids {
		item := identityItem{id: id}
		for _, r := range records {
			if !r.HasParticipant(id) {
				continue
			}
			for _, p := range r.Participants {
				if p != id {
					item.peers = append(item.peers, p)
				}
			}
		}
		items = append(items, item)
	}
	return items
}
