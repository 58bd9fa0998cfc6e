package config

import (
	"fmt"
	"log/slog"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// TransportWebSocket is the only transport mode the client speaks.
const TransportWebSocket = "websocket"

// Server configures the relay process.
type Server struct {
	DBFile       string `env:"DUET_DB,default=duet.db"`
	APIAddr      string `env:"API_ADDR,default=:8080"`
	AdminAddr    string `env:"ADMIN_ADDR,default=localhost:8081"`
	BaseURL      string `env:"BASE_URL,default=http://localhost:8080"`
	HistoryLimit int    `env:"HISTORY_LIMIT,default=100"`
	OutboxSize   int    `env:"OUTBOX_SIZE,default=100"`
	LogLevel     string `env:"LOG_LEVEL,default=info"`
}

// Client configures a chat session.
type Client struct {
	WebSocketURL      string        `env:"DUET_WS_URL,default=ws://localhost:8080/api/chat"`
	APIURL            string        `env:"DUET_API_URL,default=http://localhost:8080"`
	Transport         string        `env:"DUET_TRANSPORT,default=websocket"`
	TypingWindow      time.Duration `env:"TYPING_WINDOW,default=3s"`
	TypingThrottle    time.Duration `env:"TYPING_THROTTLE,default=0s"`
	TranscriptTimeout time.Duration `env:"TRANSCRIPT_TIMEOUT,default=0s"`
	HandshakeTimeout  time.Duration `env:"HANDSHAKE_TIMEOUT,default=10s"`
	LogLevel          string        `env:"LOG_LEVEL,default=info"`
}

// LoadServer reads the relay configuration from the environment.
// A .env file in the working directory is honored when present.
func LoadServer() (*Server, error) {
	_ = godotenv.Load()

	var cfg Server
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Server) Validate() error {
	if c.DBFile == "" {
		return fmt.Errorf("DUET_DB is required")
	}

	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be greater than 0")
	}

	if c.OutboxSize <= 0 {
		return fmt.Errorf("OUTBOX_SIZE must be greater than 0")
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

// LoadClient reads the client configuration from the environment.
func LoadClient() (*Client, error) {
	_ = godotenv.Load()

	var cfg Client
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Client) Validate() error {
	if c.WebSocketURL == "" {
		return fmt.Errorf("DUET_WS_URL is required")
	}

	if c.APIURL == "" {
		return fmt.Errorf("DUET_API_URL is required")
	}

	if c.Transport != TransportWebSocket {
		return fmt.Errorf("DUET_TRANSPORT %q is not supported (only %q)", c.Transport, TransportWebSocket)
	}

	if c.TypingWindow <= 0 {
		return fmt.Errorf("TYPING_WINDOW must be greater than 0")
	}

	if c.TypingThrottle < 0 || c.TranscriptTimeout < 0 || c.HandshakeTimeout < 0 {
		return fmt.Errorf("TYPING_THROTTLE, TRANSCRIPT_TIMEOUT and HANDSHAKE_TIMEOUT must not be negative")
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

// ParseLevel maps LOG_LEVEL values to slog levels. It accepts the names
// slog prints (DEBUG, INFO, WARN, ERROR, any case) with optional offsets
// such as "info+2". Empty means info.
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if level == "" {
		return l, nil
	}
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q is not supported: %w", level, err)
	}
	return l, nil
}
