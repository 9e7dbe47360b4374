// Package mockserver is a stand-in for the developer search backend. It
// serves GET /search, accepts POST /devs registrations and pushes
// new-developer events to socket.io clients whose handshake filter matches.
package mockserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/schema"
	"github.com/gorilla/websocket"

	"github.com/zsprackett/devradar/internal/developer"
	"github.com/zsprackett/devradar/internal/geo"
	"github.com/zsprackett/devradar/internal/socketio"
)

// DefaultRadiusKm is the search and push radius around the client.
const DefaultRadiusKm = 10.0

// Filter is the location and tech filter of a search or a socket handshake.
type Filter struct {
	Latitude  float64 `schema:"latitude" json:"latitude"`
	Longitude float64 `schema:"longitude" json:"longitude"`
	Techs     string  `schema:"techs" json:"techs"`
}

func (f Filter) center() geo.Coordinates {
	return geo.Coordinates{Latitude: f.Latitude, Longitude: f.Longitude}
}

var decoder = newDecoder()

func newDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

type Config struct {
	RadiusKm     float64
	PingInterval time.Duration
	PingTimeout  time.Duration
}

type Server struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	devs    []developer.Developer
	clients map[*client]struct{}
}

type client struct {
	sid     string
	filter  Filter
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func New(seed []developer.Developer, cfg Config, logger *slog.Logger) *Server {
	if cfg.RadiusKm <= 0 {
		cfg.RadiusKm = DefaultRadiusKm
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 25 * time.Second
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 20 * time.Second
	}
	return &Server{
		cfg:      cfg,
		logger:   logger,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		devs:     append([]developer.Developer{}, seed...),
		clients:  make(map[*client]struct{}),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("POST /devs", s.handleRegister)
	mux.HandleFunc("GET /devs", s.handleList)
	mux.HandleFunc("GET "+socketio.Path, s.handleSocket)
	return mux
}

// matches applies the backend rule: within the radius and sharing at least
// one tech with the filter. An empty tech filter matches nobody.
func (s *Server) matches(f Filter, d developer.Developer) bool {
	pos, ok := d.Coordinates()
	if !ok {
		return false
	}
	if geo.DistanceKm(f.center(), pos) > s.cfg.RadiusKm {
		return false
	}
	return d.MatchesAny(developer.ParseTechs(f.Techs))
}

// Search returns the stored developers matching f, in registration order.
func (s *Server) Search(f Filter) []developer.Developer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []developer.Developer{}
	for _, d := range s.devs {
		if s.matches(f, d) {
			out = append(out, d)
		}
	}
	return out
}

// Register stores d and pushes it to every matching socket client. It
// returns the number of clients notified.
func (s *Server) Register(d developer.Developer) (developer.Developer, int) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.devs = append(s.devs, d)
	var targets []*client
	for c := range s.clients {
		if s.matches(c.filter, d) {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	frame, err := socketio.EncodeEvent("new-developer", d)
	if err != nil {
		s.logger.Warn("mockserver: encode event", "err", err)
		return d, 0
	}
	sent := 0
	for _, c := range targets {
		if err := c.write(frame); err != nil {
			s.logger.Debug("mockserver: push failed", "sid", c.sid, "err", err)
			continue
		}
		sent++
	}
	return d, sent
}

// Subscriptions returns the handshake filters of the connected clients.
func (s *Server) Subscriptions() []Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Filter, 0, len(s.clients))
	for c := range s.clients {
		out = append(out, c.filter)
	}
	return out
}

// DropAll closes every client connection without a socket.io goodbye,
// as a crashed server would.
func (s *Server) DropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.ws.Close()
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var f Filter
	if err := decoder.Decode(&f, r.URL.Query()); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Search(f))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	devs := append([]developer.Developer{}, s.devs...)
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(devs)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var d developer.Developer
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, ok := d.Coordinates(); !ok {
		http.Error(w, "location.coordinates must be [longitude, latitude]", http.StatusBadRequest)
		return
	}
	stored, sent := s.Register(d)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{"developer": stored, "notified": sent})
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("EIO") != socketio.ProtocolVersion || q.Get("transport") != "websocket" {
		http.Error(w, "unsupported transport", http.StatusBadRequest)
		return
	}
	var f Filter
	if err := decoder.Decode(&f, q); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	c := &client{sid: uuid.NewString(), filter: f, ws: ws}
	open, _ := json.Marshal(socketio.OpenInfo{
		SID:          c.sid,
		Upgrades:     []string{},
		PingInterval: int(s.cfg.PingInterval / time.Millisecond),
		PingTimeout:  int(s.cfg.PingTimeout / time.Millisecond),
	})
	if err := c.write(socketio.Encode(socketio.Packet{Engine: socketio.EngineOpen, Data: open})); err != nil {
		return
	}

	// Wait for the namespace connect before registering the client.
	_, frame, err := ws.ReadMessage()
	if err != nil {
		return
	}
	if p, err := socketio.Parse(frame); err != nil || p.Engine != socketio.EngineMessage || p.Socket != socketio.SocketConnect {
		return
	}
	// Registered before the ack so a push right after the client sees the
	// ack is not lost.
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
	}()

	ack := []byte(fmt.Sprintf(`40{"sid":%q}`, c.sid))
	if err := c.write(ack); err != nil {
		return
	}
	s.logger.Debug("mockserver: client connected", "sid", c.sid, "techs", f.Techs)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := c.write(socketio.PingFrame); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			return
		}
		p, err := socketio.Parse(frame)
		if err != nil {
			continue
		}
		if p.Engine == socketio.EngineClose ||
			(p.Engine == socketio.EngineMessage && p.Socket == socketio.SocketDisconnect) {
			return
		}
	}
}
