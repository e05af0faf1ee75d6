package raster

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Region is a circular buffer around a point. Every zonal query issued for a
// single request uses the same Region.
type Region struct {
	Lat     float64
	Lng     float64
	RadiusM float64
}

// NewRegion validates the center and radius.
func NewRegion(lat, lng, radiusM float64) (Region, error) {
	if lat < -90 || lat > 90 {
		return Region{}, eris.Errorf("raster: latitude %f out of range", lat)
	}
	if lng < -180 || lng > 180 {
		return Region{}, eris.Errorf("raster: longitude %f out of range", lng)
	}
	if radiusM <= 0 {
		return Region{}, eris.Errorf("raster: radius %f must be positive", radiusM)
	}
	return Region{Lat: lat, Lng: lng, RadiusM: radiusM}, nil
}

// Center returns the region center as a go-geom point (x=lng, y=lat).
func (r Region) Center() *geom.Point {
	return geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{r.Lng, r.Lat})
}

type regionJSON struct {
	Geometry *geojson.Geometry `json:"geometry"`
	BufferM  float64           `json:"buffer_m"`
}

// MarshalJSON encodes the region as a GeoJSON point plus buffer distance.
func (r Region) MarshalJSON() ([]byte, error) {
	g, err := geojson.Encode(r.Center())
	if err != nil {
		return nil, eris.Wrap(err, "raster: encode region center")
	}
	return json.Marshal(regionJSON{Geometry: g, BufferM: r.RadiusM})
}

// Window is a half-open [Start, End) time interval.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// TrailingDays returns the window of the given number of days ending at now.
func TrailingDays(now time.Time, days int) Window {
	return Window{Start: now.AddDate(0, 0, -days), End: now}
}

// TrailingMonths returns the window of the given number of months ending at now.
func TrailingMonths(now time.Time, months int) Window {
	return Window{Start: now.AddDate(0, -months, 0), End: now}
}

// MarshalJSON encodes the window bounds as RFC 3339 timestamps.
func (w Window) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}{
		Start: w.Start.UTC().Format(time.RFC3339),
		End:   w.End.UTC().Format(time.RFC3339),
	})
}
