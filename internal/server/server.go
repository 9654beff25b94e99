package server

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Server owns the HTTP listener the Hub is mounted on at the /smcp
// namespace (spec §6). Its Start/graceful-shutdown sequence mirrors the
// teacher's web.Server.Start: a signal-driven goroutine calls
// http.Server.Shutdown with a bounded grace period.
type Server struct {
	Addr string
	Hub  *Hub

	httpSrv *http.Server
}

// NewServer creates a Server listening on addr, mounting hub at /smcp.
func NewServer(addr string, hub *Hub) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/smcp", hub.ServeHTTP)

	return &Server{
		Addr: addr,
		Hub:  hub,
		httpSrv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// Start begins listening and blocks until the server shuts down, either via
// SIGINT/SIGTERM or Shutdown being called directly.
func (s *Server) Start() error {
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.Printf("[Server] received signal %v, shutting down gracefully...", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[Server] graceful shutdown error: %v", err)
		}
	}()

	log.Printf("[Server] listening on %s%s", s.Addr, "/smcp")
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		log.Printf("[Server] stopped gracefully")
		return nil
	}
	return err
}

// Shutdown stops the server immediately, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
