// Package server runs the HTTP/WS surface to completion, adapting
// driver.RunNode's errgroup-based graceful shutdown to a single
// http.Server instead of a grpc.Server plus debug listener.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// Server owns the process's single http.Server and its graceful
// shutdown lifecycle.
type Server struct {
	httpSrv         *http.Server
	log             *slog.Logger
	shutdownTimeout time.Duration
}

// New builds a Server listening on addr and serving handler.
func New(addr string, handler http.Handler, log *slog.Logger, shutdownTimeout time.Duration) *Server {
	if log == nil {
		log = slog.Default()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	return &Server{
		httpSrv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log:             log,
		shutdownTimeout: shutdownTimeout,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests up
// to the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	var eg errgroup.Group

	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		s.log.Info("shutting down http server", "timeout", s.shutdownTimeout)
		return s.httpSrv.Shutdown(shutdownCtx)
	})

	eg.Go(func() error {
		s.log.Info("starting http server", "addr", s.httpSrv.Addr)
		err := s.httpSrv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	return eg.Wait()
}
