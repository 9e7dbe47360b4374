package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/schema"
	"github.com/gorilla/websocket"

	"github.com/zsprackett/devradar/internal/developer"
	"github.com/zsprackett/devradar/internal/socketio"
)

// EventNewDeveloper is pushed by the server when a developer matching the
// handshake filter registers nearby.
const EventNewDeveloper = "new-developer"

const handshakeTimeout = 10 * time.Second

var ErrConnect = errors.New("channel connect failed")

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Configuration is the filter carried in the connection handshake.
type Configuration struct {
	Latitude  float64 `schema:"latitude" json:"latitude"`
	Longitude float64 `schema:"longitude" json:"longitude"`
	Techs     string  `schema:"techs" json:"techs"`
}

type Handler func(developer.Developer)

var queryEncoder = newQueryEncoder()

func newQueryEncoder() *schema.Encoder {
	enc := schema.NewEncoder()
	enc.RegisterEncoder(float64(0), func(v reflect.Value) string {
		return strconv.FormatFloat(v.Float(), 'f', -1, 64)
	})
	return enc
}

// link is one websocket connection and its read loop.
type link struct {
	ws      *websocket.Conn
	cfg     Configuration
	info    socketio.OpenInfo
	writeMu sync.Mutex
	done    chan struct{}
}

func (l *link) write(frame []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	l.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return l.ws.WriteMessage(websocket.TextMessage, frame)
}

// Channel holds at most one live connection to the realtime server.
// Handlers run on the connection's read goroutine and must not call
// Configure or Teardown.
type Channel struct {
	serverURL string
	dialer    *websocket.Dialer
	logger    *slog.Logger

	opMu sync.Mutex // serializes Configure and Teardown

	mu        sync.Mutex
	state     State
	link      *link
	handlers  []Handler
	listeners []func(State)
}

func New(serverURL string, logger *slog.Logger) *Channel {
	return &Channel{
		serverURL: serverURL,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
		logger: logger,
	}
}

// OnNewDeveloper adds h to the handlers invoked for each pushed developer.
// Registrations accumulate.
func (c *Channel) OnNewDeveloper(h Handler) {
	c.mu.Lock()
	c.handlers = append(c.handlers, h)
	c.mu.Unlock()
}

// OnStateChange adds fn to the listeners called after every transition.
func (c *Channel) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Configuration returns the filter of the open connection.
func (c *Channel) Configuration() (Configuration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link == nil || c.state != Connected {
		return Configuration{}, false
	}
	return c.link.cfg, true
}

// Configure closes any open connection, then connects with cfg as the
// handshake filter. It returns once the server has acknowledged the
// namespace connection.
func (c *Channel) Configure(ctx context.Context, cfg Configuration) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.closeLink()

	target, err := c.handshakeURL(cfg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}

	c.setState(Connecting, nil)
	l, err := c.connect(ctx, target)
	if err != nil {
		c.setState(Disconnected, nil)
		c.logger.Warn("channel: connect failed", "url", target, "err", err)
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}
	l.cfg = cfg

	c.setState(Connected, l)
	c.logger.Info("channel: connected",
		"sid", l.info.SID,
		"latitude", cfg.Latitude,
		"longitude", cfg.Longitude,
		"techs", cfg.Techs,
	)
	go c.readLoop(l)
	return nil
}

// Teardown closes the open connection. Calling it when nothing is open is a
// no-op.
func (c *Channel) Teardown() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.closeLink()
	return nil
}

func (c *Channel) closeLink() {
	c.mu.Lock()
	l := c.link
	c.mu.Unlock()
	if l == nil || !c.detach(l) {
		return
	}

	l.write(socketio.DisconnectFrame)
	l.writeMu.Lock()
	l.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	l.writeMu.Unlock()
	l.ws.Close()
	<-l.done
	c.logger.Debug("channel: disconnected", "sid", l.info.SID)
}

// detach moves the channel to Disconnected if l is still the current link.
// Exactly one caller wins for a given link.
func (c *Channel) detach(l *link) bool {
	c.mu.Lock()
	if c.link != l {
		c.mu.Unlock()
		return false
	}
	c.link = nil
	c.state = Disconnected
	listeners := append([]func(State){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(Disconnected)
	}
	return true
}

// setState records the transition and the link that goes with it, then
// notifies listeners outside the lock.
func (c *Channel) setState(s State, l *link) {
	c.mu.Lock()
	c.state = s
	c.link = l
	listeners := append([]func(State){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(s)
	}
}

func (c *Channel) handshakeURL(cfg Configuration) (string, error) {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + socketio.Path

	q := url.Values{}
	if err := queryEncoder.Encode(cfg, q); err != nil {
		return "", fmt.Errorf("encode handshake: %w", err)
	}
	q.Set("EIO", socketio.ProtocolVersion)
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// connect dials target and completes the Engine.IO open and Socket.IO
// namespace connect exchange.
func (c *Channel) connect(ctx context.Context, target string) (*link, error) {
	ws, _, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	l := &link{ws: ws, done: make(chan struct{})}

	deadline := time.Now().Add(handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	ws.SetReadDeadline(deadline)

	if err := c.awaitOpen(l); err != nil {
		ws.Close()
		return nil, err
	}
	if err := l.write(socketio.ConnectFrame); err != nil {
		ws.Close()
		return nil, fmt.Errorf("send connect: %w", err)
	}
	if err := c.awaitConnectAck(l); err != nil {
		ws.Close()
		return nil, err
	}
	ws.SetReadDeadline(time.Time{})
	return l, nil
}

func (c *Channel) awaitOpen(l *link) error {
	_, frame, err := l.ws.ReadMessage()
	if err != nil {
		return fmt.Errorf("read open: %w", err)
	}
	p, err := socketio.Parse(frame)
	if err != nil {
		return err
	}
	if p.Engine != socketio.EngineOpen {
		return fmt.Errorf("expected open packet, got %q", frame)
	}
	if err := json.Unmarshal(p.Data, &l.info); err != nil {
		return fmt.Errorf("parse open: %w", err)
	}
	return nil
}

func (c *Channel) awaitConnectAck(l *link) error {
	for {
		_, frame, err := l.ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("read connect ack: %w", err)
		}
		p, err := socketio.Parse(frame)
		if err != nil {
			return err
		}
		switch {
		case p.Engine == socketio.EnginePing:
			if err := l.write(socketio.PongFrame); err != nil {
				return fmt.Errorf("send pong: %w", err)
			}
		case p.Engine == socketio.EngineMessage && p.Socket == socketio.SocketConnect:
			return nil
		case p.Engine == socketio.EngineMessage && p.Socket == socketio.SocketConnectError:
			var reason struct {
				Message string `json:"message"`
			}
			json.Unmarshal(p.Data, &reason)
			return fmt.Errorf("server refused connection: %s", reason.Message)
		case p.Engine == socketio.EngineClose:
			return errors.New("server closed during handshake")
		}
	}
}

// pingWindow is how long the read loop waits for any frame before treating
// the connection as dead.
func (l *link) pingWindow() time.Duration {
	if l.info.PingInterval <= 0 {
		return 0
	}
	return time.Duration(l.info.PingInterval+l.info.PingTimeout) * time.Millisecond
}

func (c *Channel) readLoop(l *link) {
	defer close(l.done)
	window := l.pingWindow()
	for {
		if window > 0 {
			l.ws.SetReadDeadline(time.Now().Add(window))
		}
		_, frame, err := l.ws.ReadMessage()
		if err != nil {
			c.dropped(l, err)
			return
		}
		p, err := socketio.Parse(frame)
		if err != nil {
			c.logger.Debug("channel: ignoring frame", "err", err)
			continue
		}
		switch p.Engine {
		case socketio.EnginePing:
			if err := l.write(socketio.PongFrame); err != nil {
				c.dropped(l, err)
				return
			}
		case socketio.EngineClose:
			c.dropped(l, errors.New("server closed transport"))
			return
		case socketio.EngineMessage:
			switch p.Socket {
			case socketio.SocketEvent:
				c.dispatch(p)
			case socketio.SocketDisconnect:
				c.dropped(l, errors.New("server disconnected socket"))
				return
			}
		}
	}
}

// dropped handles the loss of l. No reconnect is attempted; the channel
// stays Disconnected until the next Configure.
func (c *Channel) dropped(l *link, err error) {
	if !c.detach(l) {
		return
	}
	l.ws.Close()
	c.logger.Warn("channel: connection lost", "sid", l.info.SID, "err", err)
}

func (c *Channel) dispatch(p socketio.Packet) {
	name, args, err := p.Event()
	if err != nil {
		c.logger.Debug("channel: bad event", "err", err)
		return
	}
	if name != EventNewDeveloper {
		c.logger.Debug("channel: unhandled event", "event", name)
		return
	}
	if len(args) == 0 {
		c.logger.Debug("channel: new-developer without payload")
		return
	}
	var dev developer.Developer
	if err := json.Unmarshal(args[0], &dev); err != nil {
		c.logger.Warn("channel: decode developer", "err", err)
		return
	}

	c.mu.Lock()
	handlers := append([]Handler{}, c.handlers...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(dev)
	}
}
