package dialogs_test

import (
	"strings"
	"testing"
	"time"

	"github.com/zsprackett/devradar/internal/db"
	"github.com/zsprackett/devradar/internal/developer"
	"github.com/zsprackett/devradar/internal/geo"
	"github.com/zsprackett/devradar/internal/ui/dialogs"
)

func TestParseCoordinates(t *testing.T) {
	c, err := dialogs.ParseCoordinates("-23.55, -46.63")
	if err != nil {
		t.Fatal(err)
	}
	if c.Latitude != -23.55 || c.Longitude != -46.63 {
		t.Errorf("got %v", c)
	}
	if _, err := dialogs.ParseCoordinates("10 20"); err != nil {
		t.Errorf("space separated: %v", err)
	}
	for _, bad := range []string{"", "10", "a, b", "95, 0", "0, 200"} {
		if _, err := dialogs.ParseCoordinates(bad); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestHistoryLine(t *testing.T) {
	line := dialogs.HistoryLine(db.Search{Techs: "node", Latitude: 10, Longitude: 20, ResultCount: 1})
	if !strings.Contains(line, "node") || !strings.Contains(line, "1 result") || strings.Contains(line, "results") {
		t.Errorf("got %q", line)
	}
	if line := dialogs.HistoryLine(db.Search{}); !strings.Contains(line, "(no filter)") {
		t.Errorf("got %q", line)
	}
}

func TestProfileText(t *testing.T) {
	origin := geo.Coordinates{Latitude: 0, Longitude: 0}
	d := developer.Developer{
		GithubUsername: "ada",
		Name:           "Ada",
		Bio:            "Engines",
		Techs:          []string{"Go"},
		Location:       geo.NewPoint(geo.Coordinates{Latitude: 0, Longitude: 0.01}),
	}
	seen := &db.SeenDeveloper{Developer: d, Source: db.SourceLive, FirstSeen: time.Now().Add(-time.Hour)}

	text := dialogs.ProfileText(d, &origin, seen)
	for _, want := range []string{"Ada", "@ada", "Engines", "Go", "https://github.com/ada", "1.1 km away", "via live"} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}
}
