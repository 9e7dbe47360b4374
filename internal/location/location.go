package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zsprackett/devradar/internal/config"
	"github.com/zsprackett/devradar/internal/geo"
)

// ErrPermissionDenied is returned by CurrentPosition when location access
// has not been granted.
var ErrPermissionDenied = errors.New("location permission denied")

// Provider is the device location source.
type Provider interface {
	RequestPermission(ctx context.Context) (bool, error)
	CurrentPosition(ctx context.Context) (geo.Coordinates, error)
}

// Static reports a fixed position. Granted controls the permission answer.
type Static struct {
	Position geo.Coordinates
	Granted  bool
}

func (s Static) RequestPermission(ctx context.Context) (bool, error) {
	return s.Granted, nil
}

func (s Static) CurrentPosition(ctx context.Context) (geo.Coordinates, error) {
	if !s.Granted {
		return geo.Coordinates{}, ErrPermissionDenied
	}
	return s.Position, nil
}

// IPLookup resolves the position from a public IP geolocation service that
// answers with {"status":"success","lat":..,"lon":..}.
type IPLookup struct {
	URL    string
	Client *http.Client
}

type ipLookupResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// RequestPermission always grants: the lookup uses no device sensors.
func (l IPLookup) RequestPermission(ctx context.Context) (bool, error) {
	return true, nil
}

func (l IPLookup) CurrentPosition(ctx context.Context) (geo.Coordinates, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
	if err != nil {
		return geo.Coordinates{}, fmt.Errorf("build request: %w", err)
	}
	client := l.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return geo.Coordinates{}, fmt.Errorf("ip lookup: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return geo.Coordinates{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return geo.Coordinates{}, fmt.Errorf("ip lookup returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var r ipLookupResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return geo.Coordinates{}, fmt.Errorf("parse response: %w", err)
	}
	if r.Status != "" && r.Status != "success" {
		return geo.Coordinates{}, fmt.Errorf("ip lookup failed: %s", r.Message)
	}
	c := geo.Coordinates{Latitude: r.Lat, Longitude: r.Lon}
	if !c.Valid() {
		return geo.Coordinates{}, fmt.Errorf("ip lookup returned invalid position %s", c)
	}
	return c, nil
}

// FromConfig builds the provider selected by cfg.Mode. Unknown modes and
// "off" behave as a denied permission.
func FromConfig(cfg config.LocationConfig) Provider {
	switch cfg.Mode {
	case "static":
		return Static{
			Position: geo.Coordinates{Latitude: cfg.Latitude, Longitude: cfg.Longitude},
			Granted:  true,
		}
	case "ip":
		return IPLookup{URL: cfg.LookupURL}
	default:
		return Static{Granted: false}
	}
}
