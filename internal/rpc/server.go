// Package rpc is the native-host surface of the privileged core: a local
// JSON-RPC 2.0 endpoint the UI shell and relay talk to when the core runs
// as a standalone daemon instead of inside the extension process.
package rpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lumen-wallet/go-core/internal/dispatch"
	"lumen-wallet/go-core/internal/events"
	"lumen-wallet/go-core/internal/vault"
)

type Server struct {
	addr       string
	dispatcher *dispatch.Dispatcher
	queue      *events.Queue
	vault      *vault.Vault
	relay      *Relay
	closers    []io.Closer
	log        *slog.Logger
}

func NewServer(addr string, dispatcher *dispatch.Dispatcher, queue *events.Queue, v *vault.Vault, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		addr:       addr,
		dispatcher: dispatcher,
		queue:      queue,
		vault:      v,
		log:        log,
	}
}

// AttachRelay enables the wallet_poll and wallet_window_closed methods
// for a shell that drives windows through this server.
func (s *Server) AttachRelay(relay *Relay) {
	s.relay = relay
}

// OnShutdown registers a resource to close after the listener drains.
func (s *Server) OnShutdown(c io.Closer) {
	s.closers = append(s.closers, c)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/rpc", s.handleRPC)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()
	s.log.Info("rpc server listening", "addr", listener.Addr().String())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		s.closeResources()
		return err
	case err := <-errCh:
		s.closeResources()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) closeResources() {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.log.Error("closing resource failed", "error", err)
		}
	}
}
