package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"duet/internal/reconcile"
	"duet/internal/transcript"
	"duet/internal/view"
)

// history: print the stored conversation for --as and exit.
func historyCmd() *cobra.Command {
	var width int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print your conversation transcript",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := requireIdentity()
			if err != nil {
				return err
			}

			records, err := transcript.NewClient(clientCfg.APIURL, clientCfg.TranscriptTimeout).Fetch(cmd.Context())
			if err != nil {
				return err
			}
			rec, ok := transcript.SelectConversation(records, id)
			if !ok {
				return fmt.Errorf("%w: %s", transcript.ErrNoConversation, id)
			}
			peer, _ := transcript.ResolvePeer(rec, id)

			r := reconcile.New(reconcile.Config{})
			defer r.Stop()
			r.Load(id, peer, transcript.ToMessages(rec))

			fmt.Fprintln(cmd.OutOrStdout(), view.Render(r.Snapshot(), view.Header{Self: id, Peer: peer}, width))
			return nil
		},
	}
	cmd.Flags().IntVar(&width, "width", 80, "line width used to align messages")
	return cmd
}
