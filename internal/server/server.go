package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

type Server struct {
	http *http.Server
}

func New(addr string, h http.Handler) *Server {
	return &Server{http: &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		// Webhook handling includes the completion call and the reply send.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}}
}

// Start serves until Stop is called; a clean shutdown returns nil.
func (s *Server) Start() error {
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	err := s.http.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
