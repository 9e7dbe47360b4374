package geo

import (
	"errors"
	"fmt"
	"math"
)

// DefaultDelta is the zoom span used when the viewport is first centered on
// the device position.
const DefaultDelta = 0.01

const earthRadiusKm = 6371.0

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinates fall inside the WGS84 ranges.
func (c Coordinates) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%.5f,%.5f", c.Latitude, c.Longitude)
}

// DistanceKm returns the great-circle distance between a and b.
func DistanceKm(a, b Coordinates) float64 {
	lat1 := toRad(a.Latitude)
	lat2 := toRad(b.Latitude)
	dLat := toRad(b.Latitude - a.Latitude)
	dLon := toRad(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// Region is the visible map area: a center plus the latitude and longitude
// spans around it.
type Region struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	LatitudeDelta  float64 `json:"latitudeDelta"`
	LongitudeDelta float64 `json:"longitudeDelta"`
}

// RegionAround centers a region with the default zoom on c.
func RegionAround(c Coordinates) Region {
	return Region{
		Latitude:       c.Latitude,
		Longitude:      c.Longitude,
		LatitudeDelta:  DefaultDelta,
		LongitudeDelta: DefaultDelta,
	}
}

func (r Region) Center() Coordinates {
	return Coordinates{Latitude: r.Latitude, Longitude: r.Longitude}
}

// Pan moves the center by a fraction of the current spans. Latitude is
// clamped to the poles and longitude wraps at the antimeridian.
func (r Region) Pan(latFrac, lonFrac float64) Region {
	r.Latitude = clamp(r.Latitude+latFrac*r.LatitudeDelta, -90, 90)
	r.Longitude = wrapLongitude(r.Longitude + lonFrac*r.LongitudeDelta)
	return r
}

// Zoom scales both spans. A factor below 1 zooms in.
func (r Region) Zoom(factor float64) Region {
	if factor <= 0 {
		return r
	}
	r.LatitudeDelta = clamp(r.LatitudeDelta*factor, 0.0005, 180)
	r.LongitudeDelta = clamp(r.LongitudeDelta*factor, 0.0005, 360)
	return r
}

// Contains reports whether c lies inside the region's bounding box.
func (r Region) Contains(c Coordinates) bool {
	return math.Abs(c.Latitude-r.Latitude) <= r.LatitudeDelta/2 &&
		math.Abs(c.Longitude-r.Longitude) <= r.LongitudeDelta/2
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func wrapLongitude(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}

var ErrBadPoint = errors.New("point must have [longitude, latitude] coordinates")

// Point is a GeoJSON point. Coordinates are ordered longitude first.
type Point struct {
	Type        string    `json:"type,omitempty"`
	Coordinates []float64 `json:"coordinates"`
}

func NewPoint(c Coordinates) Point {
	return Point{Type: "Point", Coordinates: []float64{c.Longitude, c.Latitude}}
}

// Coords unpacks the [longitude, latitude] pair.
func (p Point) Coords() (Coordinates, error) {
	if len(p.Coordinates) < 2 {
		return Coordinates{}, ErrBadPoint
	}
	return Coordinates{Longitude: p.Coordinates[0], Latitude: p.Coordinates[1]}, nil
}
