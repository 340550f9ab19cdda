package uhi

import (
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
)

// Input errors. These surface to the caller immediately and are never
// retried. Insufficient-data conditions (too few stations, too few cells)
// are explicit result states instead, so callers can tell "nothing found"
// from "something broke".
var (
	ErrEmptyBoundary    = eris.New("uhi: boundary has zero area")
	ErrNoLandUseOverlap = eris.New("uhi: land-use data does not overlap the grid")
	ErrInvalidConfig    = eris.New("uhi: invalid analysis configuration")
)

// Boundary is a study-area polygon with its coordinate reference system.
// Immutable once loaded; owned by the orchestrator for one analysis run.
type Boundary struct {
	Geometry orb.MultiPolygon
	CRS      string
}

// NewBoundary wraps an orb geometry as a Boundary. Polygons are promoted to
// single-member multipolygons; other geometry types are rejected.
func NewBoundary(g orb.Geometry, crs string) (Boundary, error) {
	switch geom := g.(type) {
	case orb.Polygon:
		return Boundary{Geometry: orb.MultiPolygon{geom}, CRS: crs}, nil
	case orb.MultiPolygon:
		return Boundary{Geometry: geom, CRS: crs}, nil
	default:
		return Boundary{}, eris.Errorf("uhi: boundary must be polygon or multipolygon, got %s", g.GeoJSONType())
	}
}

// Sample is one temperature observation from the thermal surface.
type Sample struct {
	Point        orb.Point
	TemperatureC float64
}

// Station is one ground weather measurement.
type Station struct {
	ID           string
	Point        orb.Point
	TemperatureC float64
}

// LandUsePolygon is one classified land-cover polygon keyed by its CORINE
// code.
type LandUsePolygon struct {
	Geometry orb.Polygon
	Code     int
}

// geographicCRS reports whether the CRS tag names an unprojected
// longitude/latitude system, in which case cell sizes in meters must be
// converted to degrees.
func geographicCRS(crs string) bool {
	switch crs {
	case "", "EPSG:4326", "OGC:CRS84", "CRS84", "WGS84":
		return true
	}
	return false
}
