package channel_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/zsprackett/devradar/internal/channel"
	"github.com/zsprackett/devradar/internal/developer"
	"github.com/zsprackett/devradar/internal/geo"
	"github.com/zsprackett/devradar/internal/mockserver"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBackend(t *testing.T, cfg mockserver.Config) (*mockserver.Server, string) {
	t.Helper()
	backend := mockserver.New(nil, cfg, discardLogger())
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)
	return backend, srv.URL
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type stateRecorder struct {
	mu     sync.Mutex
	states []channel.State
}

func (r *stateRecorder) record(s channel.State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *stateRecorder) reset() {
	r.mu.Lock()
	r.states = nil
	r.mu.Unlock()
}

func (r *stateRecorder) snapshot() []channel.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]channel.State{}, r.states...)
}

func devAt(id string, lat, lon float64, techs ...string) developer.Developer {
	return developer.Developer{
		ID:       id,
		Name:     id,
		Techs:    techs,
		Location: geo.NewPoint(geo.Coordinates{Latitude: lat, Longitude: lon}),
	}
}

func TestConfigureSendsHandshakeFilter(t *testing.T) {
	backend, url := newBackend(t, mockserver.Config{})
	ch := channel.New(url, discardLogger())
	defer ch.Teardown()

	cfg := channel.Configuration{Latitude: 10, Longitude: 20, Techs: "node"}
	if err := ch.Configure(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
	if ch.State() != channel.Connected {
		t.Fatalf("state: got %v want connected", ch.State())
	}
	got, ok := ch.Configuration()
	if !ok || got != cfg {
		t.Errorf("configuration: got %+v %v want %+v", got, ok, cfg)
	}

	subs := backend.Subscriptions()
	if len(subs) != 1 {
		t.Fatalf("expected 1 subscription, got %d", len(subs))
	}
	if subs[0].Latitude != 10 || subs[0].Longitude != 20 || subs[0].Techs != "node" {
		t.Errorf("server saw handshake %+v", subs[0])
	}
}

func TestReconfigureClosesBeforeOpening(t *testing.T) {
	backend, url := newBackend(t, mockserver.Config{})
	ch := channel.New(url, discardLogger())
	defer ch.Teardown()

	rec := &stateRecorder{}
	ch.OnStateChange(rec.record)

	if err := ch.Configure(context.Background(), channel.Configuration{Latitude: 1, Longitude: 1, Techs: "go"}); err != nil {
		t.Fatal(err)
	}
	rec.reset()

	next := channel.Configuration{Latitude: 2, Longitude: 2, Techs: "rust"}
	if err := ch.Configure(context.Background(), next); err != nil {
		t.Fatal(err)
	}

	want := []channel.State{channel.Disconnected, channel.Connecting, channel.Connected}
	got := rec.snapshot()
	if len(got) != len(want) {
		t.Fatalf("transitions: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transitions: got %v want %v", got, want)
		}
	}

	if cfg, _ := ch.Configuration(); cfg != next {
		t.Errorf("configuration: got %+v want %+v", cfg, next)
	}
	waitFor(t, "old subscription to close", func() bool {
		subs := backend.Subscriptions()
		return len(subs) == 1 && subs[0].Techs == "rust"
	})
}

func TestTeardownIsIdempotent(t *testing.T) {
	_, url := newBackend(t, mockserver.Config{})
	ch := channel.New(url, discardLogger())

	if err := ch.Teardown(); err != nil {
		t.Fatalf("teardown before configure: %v", err)
	}
	if err := ch.Configure(context.Background(), channel.Configuration{Techs: "go"}); err != nil {
		t.Fatal(err)
	}
	if err := ch.Teardown(); err != nil {
		t.Fatal(err)
	}
	if err := ch.Teardown(); err != nil {
		t.Fatalf("second teardown: %v", err)
	}
	if ch.State() != channel.Disconnected {
		t.Errorf("state: got %v want disconnected", ch.State())
	}
	if _, ok := ch.Configuration(); ok {
		t.Error("configuration should not exist after teardown")
	}
}

func TestNewDeveloperDeliveredToEveryHandler(t *testing.T) {
	backend, url := newBackend(t, mockserver.Config{})
	ch := channel.New(url, discardLogger())
	defer ch.Teardown()

	var mu sync.Mutex
	var first, second []string
	ch.OnNewDeveloper(func(d developer.Developer) {
		mu.Lock()
		first = append(first, d.ID)
		mu.Unlock()
	})
	ch.OnNewDeveloper(func(d developer.Developer) {
		mu.Lock()
		second = append(second, d.ID)
		mu.Unlock()
	})

	if err := ch.Configure(context.Background(), channel.Configuration{Latitude: 10, Longitude: 20, Techs: "node"}); err != nil {
		t.Fatal(err)
	}

	if _, sent := backend.Register(devAt("b", 10.001, 20.001, "Node")); sent != 1 {
		t.Fatalf("expected push to 1 client, got %d", sent)
	}
	// Out of range and wrong tech: neither is pushed.
	backend.Register(devAt("far", 11, 21, "node"))
	backend.Register(devAt("other", 10, 20, "php"))

	waitFor(t, "developer delivery", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(first) == 1 && len(second) == 1
	})
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(first) != 1 || first[0] != "b" || len(second) != 1 {
		t.Errorf("handlers got %v and %v, want [b] each", first, second)
	}
}

func TestUnexpectedDropLeavesDisconnected(t *testing.T) {
	backend, url := newBackend(t, mockserver.Config{})
	ch := channel.New(url, discardLogger())
	defer ch.Teardown()

	if err := ch.Configure(context.Background(), channel.Configuration{Techs: "go"}); err != nil {
		t.Fatal(err)
	}
	backend.DropAll()

	waitFor(t, "disconnect", func() bool { return ch.State() == channel.Disconnected })
	if _, ok := ch.Configuration(); ok {
		t.Error("configuration should be cleared after a drop")
	}
	// No automatic reconnect.
	time.Sleep(100 * time.Millisecond)
	if ch.State() != channel.Disconnected {
		t.Errorf("state: got %v want disconnected", ch.State())
	}
}

func TestConnectFailure(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	ch := channel.New(url, discardLogger())
	err := ch.Configure(context.Background(), channel.Configuration{Techs: "go"})
	if !errors.Is(err, channel.ErrConnect) {
		t.Fatalf("expected ErrConnect, got %v", err)
	}
	if ch.State() != channel.Disconnected {
		t.Errorf("state: got %v want disconnected", ch.State())
	}
}

func TestUnsupportedScheme(t *testing.T) {
	ch := channel.New("ftp://example.com", discardLogger())
	if err := ch.Configure(context.Background(), channel.Configuration{}); !errors.Is(err, channel.ErrConnect) {
		t.Errorf("expected ErrConnect, got %v", err)
	}
}

func TestPingsKeepConnectionAlive(t *testing.T) {
	_, url := newBackend(t, mockserver.Config{
		PingInterval: 30 * time.Millisecond,
		PingTimeout:  200 * time.Millisecond,
	})
	ch := channel.New(url, discardLogger())
	defer ch.Teardown()

	if err := ch.Configure(context.Background(), channel.Configuration{Techs: "go"}); err != nil {
		t.Fatal(err)
	}
	// Several ping windows pass; each ping must be answered for the read
	// deadline to keep advancing.
	time.Sleep(600 * time.Millisecond)
	if ch.State() != channel.Connected {
		t.Errorf("state: got %v want connected", ch.State())
	}
}

func TestStateString(t *testing.T) {
	if channel.Connecting.String() != "connecting" || channel.Disconnected.String() != "disconnected" {
		t.Error("unexpected state names")
	}
}
