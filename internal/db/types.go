package db

import (
	"time"

	"github.com/zsprackett/devradar/internal/developer"
)

// Source records how a developer reached the client.
type Source string

const (
	SourceSearch Source = "search"
	SourceLive   Source = "live"
)

type Search struct {
	ID          string    `json:"id"`
	Ts          time.Time `json:"ts"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Techs       string    `json:"techs"`
	ResultCount int       `json:"resultCount"`
}

// SeenDeveloper is a developer row plus bookkeeping.
type SeenDeveloper struct {
	developer.Developer
	Source    Source    `json:"source"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
}
