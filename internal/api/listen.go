package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

const (
	readTimeout       = 15 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// Start binds addr and serves in a goroutine. It returns once the socket is
// bound; errSink receives the serve error, if any, after shutdown begins.
func (s *Server) Start(addr string, errSink chan<- error) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		// Simulations may run up to the request timeout.
		WriteTimeout: s.opts.RequestTimeout + 5*time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("http_listening")

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("http server stopped")
			if errSink != nil {
				errSink <- err
			}
		}
	}()
	return nil
}

// Shutdown gracefully stops the HTTP server. Sessions still in flight stay
// recorded as active in the store.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if n := s.live.count(); n > 0 {
		s.logger.Warn().Int("live_sessions", n).Msg("shutting down with sessions in progress")
	}
	return s.httpServer.Shutdown(ctx)
}
