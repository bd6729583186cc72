package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zjrosen/register/internal/log"
)

// Server serves /metrics for a gatherer.
type Server struct {
	srv      *http.Server
	listener net.Listener
}

// NewRouter returns a router exposing gatherer at /metrics.
func NewRouter(gatherer prometheus.Gatherer) *mux.Router {
	r := mux.NewRouter()
	r.Path("/metrics").Methods(http.MethodGet).Handler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

// StartServer listens on address and serves metrics in the background.
// An empty address disables the server and returns nil.
func StartServer(address string, gatherer prometheus.Gatherer) (*Server, error) {
	if address == "" {
		return nil, nil
	}

	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	s := &Server{
		srv: &http.Server{
			Handler:           NewRouter(gatherer),
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ErrorErr(log.CatMetrics, "metrics server stopped", err, "address", address)
		}
	}()
	log.Info(log.CatMetrics, "metrics server listening", "address", ln.Addr().String())
	return s, nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server. Safe on a nil Server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
