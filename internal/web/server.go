// Package web runs the HTTP server in front of the API router.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server is the HTTP listener of the daemon.
type Server struct {
	http *http.Server
	log  *zap.Logger
}

// NewServer serves handler on port. Port 0 picks a free port at Start.
func NewServer(handler http.Handler, port int, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log.Named("web"),
	}
}

// Start listens and serves in the background. The returned channel yields
// the serve error, or nil after Shutdown, and is then closed. The bound
// address is returned so callers can report a picked port.
func (s *Server) Start() (<-chan error, net.Addr, error) {
	listener, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}
	s.log.Info("serving API", zap.String("addr", listener.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		err := s.http.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
		close(errCh)
	}()
	return errCh, listener.Addr(), nil
}

// Shutdown stops accepting connections and waits for active requests.
// Hijacked websocket connections are not waited for.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
