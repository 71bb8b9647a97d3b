// Package httpapi exposes the dispatcher's commands over a small JSON HTTP
// API. Bind it to localhost: start can use stored room credentials.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"roomcast/internal/transport"
	logx "roomcast/pkg/logx"
)

type Config struct {
	Enabled bool
	Addr    string
	Token   string
	Pprof   bool
}

// Server manages the listener lifecycle. Apply can be called repeatedly
// with new configs.
type Server struct {
	ctl transport.Controller
	log logx.Logger

	mu   sync.Mutex
	cfg  Config
	srv  *http.Server
	ln   net.Listener
	addr string
}

func New(ctl transport.Controller, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{ctl: ctl, log: log}
}

// Apply starts, restarts or stops the listener according to cfg.
func (s *Server) Apply(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !cfg.Enabled {
		s.stopLocked(ctx)
		s.cfg = cfg
		return nil
	}
	if s.srv != nil && s.cfg == cfg {
		return nil
	}
	s.stopLocked(ctx)
	s.cfg = cfg
	return s.startLocked()
}

func (s *Server) startLocked() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.log.Warn("http api listen failed", logx.String("addr", s.cfg.Addr), logx.Err(err))
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(s.cfg),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.srv, s.ln, s.addr = srv, ln, ln.Addr().String()

	addr := s.addr
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("http api server error", logx.String("addr", addr), logx.Err(err))
		}
	}()
	s.log.Info("http api enabled", logx.String("addr", addr), logx.Bool("auth", s.cfg.Token != ""), logx.Bool("pprof", s.cfg.Pprof))
	return nil
}

// Stop gracefully shuts the listener down.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
}

func (s *Server) stopLocked(ctx context.Context) {
	if s.srv == nil {
		return
	}
	srv, ln, addr := s.srv, s.ln, s.addr
	s.srv, s.ln, s.addr = nil, nil, ""

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Warn("http api shutdown error", logx.String("addr", addr), logx.Err(err))
	}
	_ = ln.Close()
	s.log.Info("http api disabled", logx.String("addr", addr))
}

// Addr reports the actual listen address if running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler builds the router for cfg.
func (s *Server) Handler(cfg Config) http.Handler {
	h := &handlers{ctl: s.ctl, log: s.log}
	r := chi.NewRouter()
	r.Use(recoverer(s.log))
	r.Get("/healthz", h.health)

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(cfg.Token))
		r.Get("/status", h.status)
		r.Get("/outcomes", h.outcomes)
		r.Post("/messages", h.notify)
		r.Route("/dispatch", func(r chi.Router) {
			r.Post("/start", h.start)
			r.Post("/stop", h.stop)
		})
		r.Post("/announcements/{name}/trigger", h.trigger)

		if cfg.Pprof {
			r.HandleFunc("/debug/pprof/*", pprof.Index)
			r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
			r.HandleFunc("/debug/pprof/profile", pprof.Profile)
			r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
			r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		}
	})
	return r
}
