package radar_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zsprackett/devradar/internal/channel"
	"github.com/zsprackett/devradar/internal/developer"
	"github.com/zsprackett/devradar/internal/geo"
	"github.com/zsprackett/devradar/internal/location"
	"github.com/zsprackett/devradar/internal/mockserver"
	"github.com/zsprackett/devradar/internal/radar"
	"github.com/zsprackett/devradar/internal/searchapi"
)

func TestEndToEndAgainstMockBackend(t *testing.T) {
	here := geo.Coordinates{Latitude: -23.55, Longitude: -46.63}
	backend := mockserver.New(mockserver.SeedAround(here), mockserver.Config{}, discardLogger())
	srv := httptest.NewServer(backend.Handler())
	defer srv.Close()

	ch := channel.New(srv.URL, discardLogger())
	c := radar.New(radar.Deps{
		Locator:  location.Static{Granted: true, Position: here},
		Searcher: searchapi.New(srv.URL, 2*time.Second),
		Channel:  ch,
	}, discardLogger())
	defer c.Close()

	if _, err := c.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.SetTechs("ReactJS")
	if err := c.Search(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := ids(c.Developers()); len(got) != 2 {
		t.Fatalf("expected 2 ReactJS developers, got %v", got)
	}
	if ch.State() != channel.Connected {
		t.Fatalf("channel state: got %v", ch.State())
	}

	backend.Register(developer.Developer{
		ID:       "live-1",
		Techs:    []string{"reactjs"},
		Location: geo.NewPoint(geo.Coordinates{Latitude: here.Latitude + 0.001, Longitude: here.Longitude}),
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(c.Developers()) == 3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	devs := c.Developers()
	if len(devs) != 3 || devs[2].ID != "live-1" {
		t.Fatalf("expected live developer appended, got %v", ids(devs))
	}

	// A new search replaces the list and moves the subscription.
	c.SetTechs("Go")
	if err := c.Search(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !equalIDs(c.Developers(), "seed-3") {
		t.Errorf("developers: got %v want [seed-3]", ids(c.Developers()))
	}
	cfg, ok := ch.Configuration()
	if !ok || cfg.Techs != "Go" {
		t.Errorf("channel configuration: %+v %v", cfg, ok)
	}
}
