package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

const requestTimeout = 15 * time.Second

type Server struct{ mux *chi.Mux }

func New() *Server {
	m := chi.NewRouter()

	// Timeout is applied per route group; long-lived streams must not get it.
	m.Use(chimw.RealIP)
	m.Use(chimw.RequestID)
	m.Use(chimw.Recoverer)
	m.Use(Metrics)
	m.Use(Logger(log.Logger))

	return &Server{mux: m}
}

func (s *Server) Mux() http.Handler { return s.mux }

// Mount attaches any extra handler (e.g., /metrics) to the router.
func (s *Server) Mount(path string, h http.Handler) {
	s.mux.Handle(path, h)
}

// MountStream attaches a long-lived handler (websocket) outside the request
// timeout.
func (s *Server) MountStream(path string, h http.Handler) {
	s.mux.Get(path, h.ServeHTTP)
}
