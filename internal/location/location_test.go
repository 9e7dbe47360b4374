package location_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zsprackett/devradar/internal/config"
	"github.com/zsprackett/devradar/internal/location"
)

func TestStaticDenied(t *testing.T) {
	p := location.Static{Granted: false}
	granted, err := p.RequestPermission(context.Background())
	if err != nil || granted {
		t.Fatalf("expected denied without error, got %v %v", granted, err)
	}
	if _, err := p.CurrentPosition(context.Background()); !errors.Is(err, location.ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestIPLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","lat":-23.55,"lon":-46.63}`))
	}))
	defer srv.Close()

	p := location.IPLookup{URL: srv.URL}
	c, err := p.CurrentPosition(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c.Latitude != -23.55 || c.Longitude != -46.63 {
		t.Errorf("got %v", c)
	}
}

func TestIPLookupFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"fail","message":"private range"}`))
	}))
	defer srv.Close()

	if _, err := (location.IPLookup{URL: srv.URL}).CurrentPosition(context.Background()); err == nil {
		t.Error("expected error for failed lookup")
	}
}

func TestIPLookupHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if _, err := (location.IPLookup{URL: srv.URL}).CurrentPosition(context.Background()); err == nil {
		t.Error("expected error for 429")
	}
}

func TestFromConfig(t *testing.T) {
	p := location.FromConfig(config.LocationConfig{Mode: "static", Latitude: 1, Longitude: 2})
	c, err := p.CurrentPosition(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c.Latitude != 1 || c.Longitude != 2 {
		t.Errorf("got %v", c)
	}

	off := location.FromConfig(config.LocationConfig{Mode: "off"})
	if granted, _ := off.RequestPermission(context.Background()); granted {
		t.Error("off mode should deny permission")
	}
}
