package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"duet/internal/models"
	"duet/internal/reconcile"
	"duet/internal/session"
	"duet/internal/transcript"
	"duet/internal/transport"
)

// chat: open the interactive conversation screen for --as, or let the user
// pick who they are when --as is not given.
func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Join your conversation and chat with your peer",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			// Callbacks can fire from inside Update (SendMessage), so they only
			// post a wake-up and the model pulls the current state itself.
			// p is assigned before the session starts.
			var p *tea.Program
			changed := func() { go p.Send(changedMsg{}) }

			transcripts := transcript.NewClient(clientCfg.APIURL, clientCfg.TranscriptTimeout)
			connector := transport.NewConnector(transport.Config{
				URL:              clientCfg.WebSocketURL,
				Mode:             transport.Mode(clientCfg.Transport),
				HandshakeTimeout: clientCfg.HandshakeTimeout,
				Logger:           logger,
			})
			sess := session.New(session.Config{
				Transcripts:       transcripts,
				Dial:              session.WebSocketDialer(connector),
				TypingThrottle:    clientCfg.TypingThrottle,
				TranscriptTimeout: clientCfg.TranscriptTimeout,
				Reconciler: reconcile.Config{
					TypingWindow: clientCfg.TypingWindow,
					OnChange:     func(reconcile.Snapshot) { changed() },
				},
				Logger:  logger,
				OnState: func(session.State) { changed() },
			})
			defer func() { _ = sess.Close() }()

			start := func(id models.Identity) error { return sess.Start(ctx, id) }

			// Without --as the screen opens on the "Who are you?" list.
			var id models.Identity
			var choices []identityItem
			if identity == "" {
				records, err := transcripts.Fetch(ctx)
				if err != nil {
					return err
				}
				if choices = identityChoices(records); len(choices) == 0 {
					return fmt.Errorf("%w: create one with -add-conversation first", transcript.ErrNoConversation)
				}
			} else {
				var err error
				if id, err = requireIdentity(); err != nil {
					return err
				}
			}

			p = tea.NewProgram(newModel(sess, choices, start), tea.WithAltScreen(), tea.WithContext(ctx))
			if id != "" {
				if err := start(id); err != nil {
					return err
				}
			}

			if _, err := p.Run(); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}
