package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const readHeaderTimeout = 10 * time.Second

// listener runs one http.Server until Shutdown.
type listener struct {
	name   string
	server *http.Server
	log    *slog.Logger
	wg     sync.WaitGroup
}

func newListener(name, addr string, handler http.Handler, logger *slog.Logger) *listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &listener{
		name: name,
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		log: logger.With("server", name),
	}
}

// Handler exposes the routes, mostly for tests.
func (l *listener) Handler() http.Handler {
	return l.server.Handler
}

func (l *listener) Addr() string {
	return l.server.Addr
}

// Start blocks until the server stops. A graceful Shutdown is not an error.
func (l *listener) Start() error {
	l.log.Info("listening", "addr", l.server.Addr)
	l.wg.Add(1)
	defer l.wg.Done()

	if err := l.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (l *listener) Shutdown(ctx context.Context) error {
	defer l.wg.Wait()
	l.log.Info("shutting down")
	return l.server.Shutdown(ctx)
}
