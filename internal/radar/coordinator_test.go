package radar_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/zsprackett/devradar/internal/channel"
	"github.com/zsprackett/devradar/internal/developer"
	"github.com/zsprackett/devradar/internal/events"
	"github.com/zsprackett/devradar/internal/geo"
	"github.com/zsprackett/devradar/internal/location"
	"github.com/zsprackett/devradar/internal/radar"
	"github.com/zsprackett/devradar/internal/searchapi"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeChannel records every configure and teardown in call order.
type fakeChannel struct {
	mu       sync.Mutex
	handlers []channel.Handler
	calls    []string
	configs  []channel.Configuration
	current  *channel.Configuration
	failNext error
}

func (f *fakeChannel) Configure(ctx context.Context, cfg channel.Configuration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "configure")
	f.current = nil
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.configs = append(f.configs, cfg)
	f.current = &cfg
	return nil
}

func (f *fakeChannel) Teardown() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "teardown")
	f.current = nil
	return nil
}

func (f *fakeChannel) OnNewDeveloper(h channel.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, h)
}

func (f *fakeChannel) State() channel.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current != nil {
		return channel.Connected
	}
	return channel.Disconnected
}

func (f *fakeChannel) Configuration() (channel.Configuration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return channel.Configuration{}, false
	}
	return *f.current, true
}

func (f *fakeChannel) push(d developer.Developer) {
	f.mu.Lock()
	handlers := append([]channel.Handler{}, f.handlers...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(d)
	}
}

type searchFunc func(ctx context.Context, q searchapi.Query) ([]developer.Developer, error)

func (f searchFunc) Search(ctx context.Context, q searchapi.Query) ([]developer.Developer, error) {
	return f(ctx, q)
}

func staticResults(devs ...developer.Developer) searchFunc {
	return func(ctx context.Context, q searchapi.Query) ([]developer.Developer, error) {
		return devs, nil
	}
}

type failingLocator struct{}

func (failingLocator) RequestPermission(ctx context.Context) (bool, error) { return true, nil }
func (failingLocator) CurrentPosition(ctx context.Context) (geo.Coordinates, error) {
	return geo.Coordinates{}, errors.New("gps off")
}

func newCoordinator(t *testing.T, searcher radar.Searcher) (*radar.Coordinator, *fakeChannel) {
	t.Helper()
	ch := &fakeChannel{}
	c := radar.New(radar.Deps{
		Locator:  location.Static{Granted: true, Position: geo.Coordinates{Latitude: 10, Longitude: 20}},
		Searcher: searcher,
		Channel:  ch,
	}, discardLogger())
	return c, ch
}

func ids(devs []developer.Developer) []string {
	out := make([]string, len(devs))
	for i, d := range devs {
		out[i] = d.ID
	}
	return out
}

func equalIDs(got []developer.Developer, want ...string) bool {
	g := ids(got)
	if len(g) != len(want) {
		return false
	}
	for i := range want {
		if g[i] != want[i] {
			return false
		}
	}
	return true
}

func TestInitializeCentersOnPosition(t *testing.T) {
	c, _ := newCoordinator(t, staticResults())
	cond, err := c.Initialize(context.Background())
	if err != nil || cond != radar.ConditionOK {
		t.Fatalf("initialize: %v %v", cond, err)
	}
	s := c.Snapshot()
	if s.Region == nil {
		t.Fatal("expected region")
	}
	want := geo.Region{Latitude: 10, Longitude: 20, LatitudeDelta: 0.01, LongitudeDelta: 0.01}
	if *s.Region != want {
		t.Errorf("region: got %+v want %+v", *s.Region, want)
	}
}

func TestPermissionDeniedLeavesScreenInert(t *testing.T) {
	ch := &fakeChannel{}
	searched := false
	c := radar.New(radar.Deps{
		Locator: location.Static{Granted: false},
		Searcher: searchFunc(func(ctx context.Context, q searchapi.Query) ([]developer.Developer, error) {
			searched = true
			return nil, nil
		}),
		Channel: ch,
	}, discardLogger())

	cond, err := c.Initialize(context.Background())
	if err != nil {
		t.Fatalf("denial must not be an error, got %v", err)
	}
	if cond != radar.ConditionPermissionDenied {
		t.Errorf("condition: got %q", cond)
	}
	if c.Snapshot().Region != nil {
		t.Error("region must stay unset")
	}
	if err := c.Search(context.Background()); !errors.Is(err, radar.ErrNoLocation) {
		t.Errorf("expected ErrNoLocation, got %v", err)
	}
	if searched {
		t.Error("search endpoint must not be called")
	}
	if len(c.Developers()) != 0 {
		t.Error("expected no developers")
	}
	if len(ch.calls) != 0 {
		t.Errorf("channel must not be touched, got %v", ch.calls)
	}
}

func TestLocationFailureIsSurfaced(t *testing.T) {
	c := radar.New(radar.Deps{
		Locator:  failingLocator{},
		Searcher: staticResults(),
		Channel:  &fakeChannel{},
	}, discardLogger())
	cond, err := c.Initialize(context.Background())
	if err == nil || cond != radar.ConditionLocationUnavailable {
		t.Errorf("got %v %v", cond, err)
	}
	if c.Snapshot().Err == "" {
		t.Error("expected error in snapshot")
	}
}

func TestSearchReplacesDevelopersAndConfiguresChannel(t *testing.T) {
	var sent searchapi.Query
	c, ch := newCoordinator(t, searchFunc(func(ctx context.Context, q searchapi.Query) ([]developer.Developer, error) {
		sent = q
		return []developer.Developer{{ID: "a"}}, nil
	}))
	c.Initialize(context.Background())
	c.AddDeveloper(developer.Developer{ID: "old"})
	c.SetTechs("node")

	if err := c.Search(context.Background()); err != nil {
		t.Fatal(err)
	}
	if sent != (searchapi.Query{Latitude: 10, Longitude: 20, Techs: "node"}) {
		t.Errorf("query: got %+v", sent)
	}
	if !equalIDs(c.Developers(), "a") {
		t.Errorf("developers: got %v want [a]", ids(c.Developers()))
	}
	cfg, ok := ch.Configuration()
	if !ok || cfg != (channel.Configuration{Latitude: 10, Longitude: 20, Techs: "node"}) {
		t.Errorf("channel: got %+v %v", cfg, ok)
	}
}

func TestLastSearchOwnsChannel(t *testing.T) {
	c, ch := newCoordinator(t, staticResults(developer.Developer{ID: "x"}))
	c.Initialize(context.Background())

	c.SetTechs("go")
	if err := c.Search(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.OnViewportChanged(geo.Region{Latitude: -5, Longitude: 7, LatitudeDelta: 1, LongitudeDelta: 1})
	c.SetTechs("rust")
	if err := c.Search(context.Background()); err != nil {
		t.Fatal(err)
	}

	cfg, _ := ch.Configuration()
	if cfg != (channel.Configuration{Latitude: -5, Longitude: 7, Techs: "rust"}) {
		t.Errorf("final configuration: got %+v", cfg)
	}
}

func TestSearchUsesValuesCapturedAtIssue(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	c, ch := newCoordinator(t, searchFunc(func(ctx context.Context, q searchapi.Query) ([]developer.Developer, error) {
		close(started)
		<-release
		return nil, nil
	}))
	c.Initialize(context.Background())
	c.SetTechs("node")

	done := make(chan error, 1)
	go func() { done <- c.Search(context.Background()) }()
	<-started

	// Mutations after issue must not leak into the channel configuration.
	c.SetTechs("changed")
	c.OnViewportChanged(geo.Region{Latitude: 50, Longitude: 50})
	close(release)

	if err := <-done; err != nil {
		t.Fatal(err)
	}
	cfg, _ := ch.Configuration()
	if cfg != (channel.Configuration{Latitude: 10, Longitude: 20, Techs: "node"}) {
		t.Errorf("configuration: got %+v", cfg)
	}
}

func TestStaleSearchResponseDiscarded(t *testing.T) {
	slowRelease := make(chan struct{})
	slowStarted := make(chan struct{})
	c, ch := newCoordinator(t, searchFunc(func(ctx context.Context, q searchapi.Query) ([]developer.Developer, error) {
		if q.Techs == "slow" {
			close(slowStarted)
			<-slowRelease
			return []developer.Developer{{ID: "slow"}}, nil
		}
		return []developer.Developer{{ID: "fast"}}, nil
	}))
	c.Initialize(context.Background())

	c.SetTechs("slow")
	slowDone := make(chan error, 1)
	go func() { slowDone <- c.Search(context.Background()) }()
	<-slowStarted

	c.SetTechs("fast")
	if err := c.Search(context.Background()); err != nil {
		t.Fatal(err)
	}
	close(slowRelease)

	if err := <-slowDone; !errors.Is(err, radar.ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	if !equalIDs(c.Developers(), "fast") {
		t.Errorf("developers: got %v want [fast]", ids(c.Developers()))
	}
	cfg, _ := ch.Configuration()
	if cfg.Techs != "fast" {
		t.Errorf("channel techs: got %q want fast", cfg.Techs)
	}
	if len(ch.configs) != 1 {
		t.Errorf("expected exactly one configure, got %d", len(ch.configs))
	}
}

func TestSearchFailure(t *testing.T) {
	c, ch := newCoordinator(t, searchFunc(func(ctx context.Context, q searchapi.Query) ([]developer.Developer, error) {
		return nil, errors.New("network down")
	}))
	c.Initialize(context.Background())
	c.AddDeveloper(developer.Developer{ID: "keep"})

	if err := c.Search(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	s := c.Snapshot()
	if s.Condition != radar.ConditionSearchFailed {
		t.Errorf("condition: got %q", s.Condition)
	}
	if !equalIDs(s.Developers, "keep") {
		t.Errorf("developers must be untouched, got %v", ids(s.Developers))
	}
	if len(ch.calls) != 0 {
		t.Errorf("channel must not be reconfigured, got %v", ch.calls)
	}
}

func TestChannelFailure(t *testing.T) {
	c, ch := newCoordinator(t, staticResults(developer.Developer{ID: "a"}))
	c.Initialize(context.Background())
	ch.failNext = channel.ErrConnect

	err := c.Search(context.Background())
	if !errors.Is(err, channel.ErrConnect) {
		t.Fatalf("expected ErrConnect, got %v", err)
	}
	s := c.Snapshot()
	if s.Condition != radar.ConditionChannelFailed {
		t.Errorf("condition: got %q", s.Condition)
	}
	if !equalIDs(s.Developers, "a") {
		t.Errorf("search results should still be shown, got %v", ids(s.Developers))
	}
	if s.ChannelState != "disconnected" {
		t.Errorf("channel state: got %q", s.ChannelState)
	}
}

func TestPushedDevelopersAppend(t *testing.T) {
	c, ch := newCoordinator(t, staticResults(developer.Developer{ID: "a"}))
	c.Initialize(context.Background())
	c.Search(context.Background())

	ch.push(developer.Developer{ID: "b"})
	if !equalIDs(c.Developers(), "a", "b") {
		t.Fatalf("developers: got %v want [a b]", ids(c.Developers()))
	}

	const n = 5
	for i := 0; i < n; i++ {
		ch.push(developer.Developer{ID: "b"})
	}
	if got := len(c.Developers()); got != 2+n {
		t.Errorf("expected %d developers with duplicates kept, got %d", 2+n, got)
	}
}

func TestHandlerRegisteredOnce(t *testing.T) {
	c, ch := newCoordinator(t, staticResults(developer.Developer{ID: "a"}))
	c.Initialize(context.Background())
	for i := 0; i < 3; i++ {
		c.Search(context.Background())
	}
	if len(ch.handlers) != 1 {
		t.Errorf("expected one handler, got %d", len(ch.handlers))
	}
}

type recordingHistory struct {
	searches []searchapi.Query
	live     []string
}

func (h *recordingHistory) RecordSearch(q searchapi.Query, results []developer.Developer) error {
	h.searches = append(h.searches, q)
	return nil
}

func (h *recordingHistory) RecordLive(d developer.Developer) error {
	h.live = append(h.live, d.ID)
	return nil
}

type recordingNotifier struct{ ids []string }

func (n *recordingNotifier) NotifyDeveloper(d developer.Developer) { n.ids = append(n.ids, d.ID) }

type captureBroadcaster struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *captureBroadcaster) Broadcast(e events.Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func TestObserversSeeSearchesAndArrivals(t *testing.T) {
	ch := &fakeChannel{}
	hist := &recordingHistory{}
	notifier := &recordingNotifier{}
	bc := &captureBroadcaster{}
	updates := 0
	c := radar.New(radar.Deps{
		Locator:     location.Static{Granted: true},
		Searcher:    staticResults(developer.Developer{ID: "a"}),
		Channel:     ch,
		History:     hist,
		Notifier:    notifier,
		Broadcaster: bc,
		OnUpdate:    func() { updates++ },
	}, discardLogger())

	c.Initialize(context.Background())
	c.SetTechs("go")
	c.Search(context.Background())
	ch.push(developer.Developer{ID: "b", Name: "Bea"})

	if len(hist.searches) != 1 || hist.searches[0].Techs != "go" {
		t.Errorf("history searches: %+v", hist.searches)
	}
	if len(hist.live) != 1 || hist.live[0] != "b" {
		t.Errorf("history live: %v", hist.live)
	}
	if len(notifier.ids) != 1 || notifier.ids[0] != "b" {
		t.Errorf("notified: %v", notifier.ids)
	}
	if updates == 0 {
		t.Error("expected update callbacks")
	}
	var sawAdded bool
	for _, e := range bc.events {
		if e.Type == events.TypeDeveloperAdded && e.DeveloperID == "b" && e.Name == "Bea" {
			sawAdded = true
		}
	}
	if !sawAdded {
		t.Errorf("expected developer_added event, got %+v", bc.events)
	}
}

func TestCloseTearsDownChannel(t *testing.T) {
	c, ch := newCoordinator(t, staticResults())
	c.Initialize(context.Background())
	c.Search(context.Background())
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if _, ok := ch.Configuration(); ok {
		t.Error("expected channel torn down")
	}
}
