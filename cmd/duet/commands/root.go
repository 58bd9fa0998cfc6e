package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"duet/internal/config"
	"duet/internal/content"
	"duet/internal/models"
)

var (
	identity string
	logFile  string

	clientCfg *config.Client
	logger    *slog.Logger
	logCloser io.Closer
)

func Execute() error {
	root := &cobra.Command{
		Use:          "duet",
		Short:        "Two-party terminal chat client",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient()
			if err != nil {
				return err
			}
			clientCfg = cfg

			level, err := config.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			logger, logCloser, err = openLogger(logFile, level)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if logCloser != nil {
				return logCloser.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&identity, "as", "", "who you are in the conversation (e.g. alice)")
	root.PersistentFlags().StringVar(&logFile, "log-file", "", "append logs to this file (default: discard)")

	root.AddCommand(chatCmd(), historyCmd())
	return root.Execute()
}

// The terminal belongs to the chat screen, so logs only go to a file.
func openLogger(path string, level slog.Level) (*slog.Logger, io.Closer, error) {
	if path == "" {
		return slog.New(slog.DiscardHandler), nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})), f, nil
}

func requireIdentity() (models.Identity, error) {
	if err := content.ValidateIdentity(identity); err != nil {
		return "", fmt.Errorf("--as: %w", err)
	}
	return models.Identity(identity), nil
}
