package http

import (
	"context"
	"net/http"
	"time"
)

// Server envuelve el http.Server estándar con shutdown con deadline.
type Server struct{ srv *http.Server }

func NewServer(addr string, handler http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start bloquea hasta que el listener cierre.
func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown drena conexiones en curso hasta el deadline del contexto.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
