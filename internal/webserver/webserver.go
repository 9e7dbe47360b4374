package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/zsprackett/devradar/internal/db"
	"github.com/zsprackett/devradar/internal/events"
	"github.com/zsprackett/devradar/internal/radar"
)

type Config struct {
	Enabled   bool
	Port      int
	Host      string
	JWTSecret string // empty disables auth
}

// StateSource exposes the live coordinator state.
type StateSource interface {
	Snapshot() radar.State
}

type Server struct {
	state   StateSource
	store   *db.DB
	cfg     Config
	logger  *slog.Logger
	mu      sync.Mutex
	clients map[chan events.Event]struct{}
	srv     *http.Server
}

func New(state StateSource, store *db.DB, cfg Config, logger *slog.Logger) *Server {
	return &Server{
		state:   state,
		store:   store,
		cfg:     cfg,
		logger:  logger,
		clients: make(map[chan events.Event]struct{}),
	}
}

// Broadcast implements events.Broadcaster.
func (s *Server) Broadcast(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- e:
		default:
		}
	}
}

func (s *Server) addClient(ch chan events.Event) {
	s.mu.Lock()
	s.clients[ch] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) removeClient(ch chan events.Event) {
	s.mu.Lock()
	delete(s.clients, ch)
	s.mu.Unlock()
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/developers", s.handleDevelopers)
	mux.HandleFunc("GET /api/searches", s.handleSearches)
	mux.HandleFunc("GET /events", s.handleSSE)
	mux.Handle("GET /", http.FileServer(dashboardFiles()))
	if s.cfg.JWTSecret == "" {
		return mux
	}
	return jwtMiddleware(s.cfg.JWTSecret, func(path string) bool {
		return path == "/" || path == "/index.html"
	}, mux)
}

// Start listens in the background. It returns once the listener is bound so
// port conflicts surface to the caller.
func (s *Server) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.srv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.logger.Info("dashboard listening", "addr", ln.Addr().String())
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("dashboard stopped", "err", err)
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func limitParam(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.state.Snapshot())
}

func (s *Server) handleDevelopers(w http.ResponseWriter, r *http.Request) {
	devs, err := s.store.LoadDevelopers(limitParam(r, 100))
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, map[string]any{"developers": devs})
}

func (s *Server) handleSearches(w http.ResponseWriter, r *http.Request) {
	searches, err := s.store.RecentSearches(limitParam(r, 20))
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, map[string]any{"searches": searches})
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", 500)
		return
	}

	ch := make(chan events.Event, 16)
	s.addClient(ch)
	defer s.removeClient(ch)

	snap := s.state.Snapshot()
	writeSSE(w, flusher, events.Event{
		Type:      events.TypeSnapshot,
		Count:     len(snap.Developers),
		Condition: string(snap.Condition),
		Detail:    snap.ChannelState,
	})

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-ch:
			writeSSE(w, flusher, e)
		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, f http.Flusher, e events.Event) {
	data, _ := json.Marshal(e)
	fmt.Fprintf(w, "data: %s\n\n", data)
	f.Flush()
}
