// Package geoio loads the analysis inputs supplied by upstream
// collaborators: boundary and land-use geometries from GeoJSON or
// shapefiles, temperature samples and station readings from CSV.
package geoio

import (
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/heatsense-cli/internal/uhi"
)

// Land-use feature property carrying the CORINE level-3 code. The numeric
// code may arrive as JSON number or string.
const landUseCodeProperty = "corine_code"

// LoadBoundaryGeoJSON reads a boundary polygon from a GeoJSON file. A
// feature collection contributes every polygonal feature to one
// multipolygon; a bare geometry is used directly. The CRS tag is supplied
// by the caller since GeoJSON is CRS84 by convention.
func LoadBoundaryGeoJSON(path, crs string) (uhi.Boundary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return uhi.Boundary{}, eris.Wrapf(err, "geoio: read boundary %s", path)
	}

	var mp orb.MultiPolygon
	if fc, err := geojson.UnmarshalFeatureCollection(raw); err == nil {
		for _, f := range fc.Features {
			mp = appendPolygonal(mp, f.Geometry)
		}
	} else if g, err := geojson.UnmarshalGeometry(raw); err == nil {
		mp = appendPolygonal(mp, g.Geometry())
	} else {
		return uhi.Boundary{}, eris.Wrapf(err, "geoio: parse boundary %s", path)
	}

	if len(mp) == 0 {
		return uhi.Boundary{}, eris.Errorf("geoio: no polygon features in %s", path)
	}
	zap.L().Info("boundary loaded", zap.String("path", path), zap.Int("polygons", len(mp)))
	return uhi.NewBoundary(mp, crs)
}

// LoadLandUseGeoJSON reads classified land-cover polygons from a GeoJSON
// feature collection. Features without a usable code property are skipped
// with a warning.
func LoadLandUseGeoJSON(path string) ([]uhi.LandUsePolygon, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geoio: read land use %s", path)
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, eris.Wrapf(err, "geoio: parse land use %s", path)
	}

	var polygons []uhi.LandUsePolygon
	skipped := 0
	for _, f := range fc.Features {
		code, ok := featureCode(f)
		if !ok {
			skipped++
			continue
		}
		for _, poly := range polygonal(f.Geometry) {
			polygons = append(polygons, uhi.LandUsePolygon{Geometry: poly, Code: code})
		}
	}
	if skipped > 0 {
		zap.L().Warn("land-use features without code skipped",
			zap.String("path", path), zap.Int("skipped", skipped))
	}
	zap.L().Info("land use loaded", zap.String("path", path), zap.Int("polygons", len(polygons)))
	return polygons, nil
}

// featureCode extracts the CORINE code property from a feature.
func featureCode(f *geojson.Feature) (int, bool) {
	v, ok := f.Properties[landUseCodeProperty]
	if !ok {
		return 0, false
	}
	switch code := v.(type) {
	case float64:
		return int(code), true
	case int:
		return code, true
	case string:
		n := 0
		for _, r := range code {
			if r < '0' || r > '9' {
				return 0, false
			}
			n = n*10 + int(r-'0')
		}
		return n, code != ""
	}
	return 0, false
}

// polygonal flattens a geometry into its component polygons.
func polygonal(g orb.Geometry) []orb.Polygon {
	switch geom := g.(type) {
	case orb.Polygon:
		return []orb.Polygon{geom}
	case orb.MultiPolygon:
		return geom
	}
	return nil
}

func appendPolygonal(mp orb.MultiPolygon, g orb.Geometry) orb.MultiPolygon {
	return append(mp, polygonal(g)...)
}
