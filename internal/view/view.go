// Package view projects a conversation snapshot into terminal text. Nothing
// here holds state: the same snapshot always renders the same output.
package view

import (
	"fmt"
	"strings"
	"time"

	"duet/internal/models"
	"duet/internal/reconcile"

	"github.com/charmbracelet/lipgloss"
)

var (
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#10B981")
	mutedColor     = lipgloss.Color("#9CA3AF")
	offlineColor   = lipgloss.Color("#EF4444")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	typingStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	onlineStyle  = lipgloss.NewStyle().Foreground(secondaryColor)
	offlineStyle = lipgloss.NewStyle().Foreground(offlineColor)

	headerStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(mutedColor).
			Padding(0, 1)

	ownMessageStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)
	otherMessageStyle = lipgloss.NewStyle().
				Foreground(primaryColor)
)

// Header names the two sides of the conversation.
type Header struct {
	Self models.Identity
	Peer models.Identity
	// Location renders timestamps. Nil means time.Local.
	Location *time.Location
}

// Render returns the header followed by the message list.
func Render(snap reconcile.Snapshot, h Header, width int) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		RenderHeader(snap, h, width),
		RenderMessages(snap, h, width),
	)
}

// RenderHeader shows who the chat is with, the presence dot and the typing
// indicator.
func RenderHeader(snap reconcile.Snapshot, h Header, width int) string {
	if h.Self == "" {
		return headerStyle.Render(titleStyle.Render("Please choose who you are"))
	}

	dot := offlineStyle.Render("○ offline")
	if snap.PeerOnline {
		dot = onlineStyle.Render("● online")
	}

	parts := []string{
		titleStyle.Render(fmt.Sprintf("Chat with %s", h.Peer)),
		dot,
	}
	if snap.PeerTyping {
		parts = append(parts, typingStyle.Render(fmt.Sprintf("%s is typing...", h.Peer)))
	}

	line := strings.Join(parts, "  ")
	self := mutedStyle.Render("as " + string(h.Self))
	gap := width - lipgloss.Width(line) - lipgloss.Width(self) - 2
	if gap > 0 {
		line += strings.Repeat(" ", gap) + self
	}
	return headerStyle.Render(line)
}

// RenderMessages lays local entries against the right edge and peer entries
// against the left, each followed by its HH:MM time.
func RenderMessages(snap reconcile.Snapshot, h Header, width int) string {
	loc := h.Location
	if loc == nil {
		loc = time.Local
	}

	var b strings.Builder
	for i, e := range snap.Entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(renderEntry(e, loc, width))
	}
	return b.String()
}

func renderEntry(e reconcile.Entry, loc *time.Location, width int) string {
	stamp := mutedStyle.Render(e.Timestamp.In(loc).Format("15:04"))

	if e.IsLocalOrigin {
		line := ownMessageStyle.Render(e.Body) + " " + stamp
		return lipgloss.PlaceHorizontal(width, lipgloss.Right, line)
	}
	line := stamp + " " + otherMessageStyle.Render(e.Body)
	return lipgloss.PlaceHorizontal(width, lipgloss.Left, line)
}
