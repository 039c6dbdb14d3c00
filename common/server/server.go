package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lyzr/flowengine/common/logger"
)

// Server wraps an HTTP server with signal-driven graceful shutdown
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
	name       string
	drain      time.Duration
}

// New creates a server for the given handler. drain bounds how long
// outstanding requests get to finish on shutdown.
func New(name string, port int, handler http.Handler, log *logger.Logger, drain time.Duration) *Server {
	if drain <= 0 {
		drain = 30 * time.Second
	}
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log:   log,
		name:  name,
		drain: drain,
	}
}

// Start serves until a fatal error or an interrupt/SIGTERM, then drains
// in-flight requests. onShutdown, if set, runs after the listener stops
// accepting but before Start returns.
func (s *Server) Start(onShutdown func()) error {
	serverErrors := make(chan error, 1)

	go func() {
		s.log.Info(fmt.Sprintf("%s starting", s.name), "addr", s.httpServer.Addr)
		serverErrors <- s.httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		s.log.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), s.drain)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.Error("graceful shutdown failed", "error", err)
			if err := s.httpServer.Close(); err != nil {
				return fmt.Errorf("could not stop server: %w", err)
			}
		}

		if onShutdown != nil {
			onShutdown()
		}
		s.log.Info("shutdown complete")
	}

	return nil
}
