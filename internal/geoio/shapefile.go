package geoio

import (
	"strconv"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/heatsense-cli/internal/uhi"
)

// LoadLandUseShapefile reads classified land-cover polygons from a
// shapefile, taking the CORINE code from the named attribute field
// (matched case-insensitively, e.g. "CODE_18"). Non-polygon shapes and
// rows with unparseable codes are skipped with a warning.
func LoadLandUseShapefile(path, codeField string) ([]uhi.LandUsePolygon, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geoio: open shapefile %s", path)
	}
	defer r.Close() //nolint:errcheck

	fieldIdx := -1
	for i, f := range r.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), codeField) {
			fieldIdx = i
			break
		}
	}
	if fieldIdx < 0 {
		return nil, eris.Errorf("geoio: shapefile %s has no field %q", path, codeField)
	}

	var polygons []uhi.LandUsePolygon
	skipped := 0
	for r.Next() {
		row, shape := r.Shape()

		poly, ok := shape.(*shp.Polygon)
		if !ok {
			skipped++
			continue
		}
		code, err := strconv.Atoi(strings.TrimSpace(r.ReadAttribute(row, fieldIdx)))
		if err != nil {
			skipped++
			continue
		}

		mp := shapePolygonToGeom(poly)
		if mp == nil {
			skipped++
			continue
		}
		for _, g := range geomToOrbPolygons(mp) {
			polygons = append(polygons, uhi.LandUsePolygon{Geometry: g, Code: code})
		}
	}
	if err := r.Err(); err != nil {
		return nil, eris.Wrapf(err, "geoio: read shapefile %s", path)
	}

	if skipped > 0 {
		zap.L().Warn("shapefile rows skipped", zap.String("path", path), zap.Int("skipped", skipped))
	}
	zap.L().Info("land use loaded from shapefile",
		zap.String("path", path), zap.Int("polygons", len(polygons)))
	return polygons, nil
}

// shapePolygonToGeom converts a shapefile polygon to a geom.MultiPolygon,
// one single-ring polygon per part. Malformed parts are skipped.
func shapePolygonToGeom(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		var end int32
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		} else {
			end = int32(len(p.Points))
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		ring := geom.NewLinearRingFlat(geom.XY, flat)
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("geoio: skipping malformed polygon ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("geoio: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// geomToOrbPolygons converts a geom.MultiPolygon into orb polygons for the
// analysis core.
func geomToOrbPolygons(mp *geom.MultiPolygon) []orb.Polygon {
	out := make([]orb.Polygon, 0, mp.NumPolygons())
	for i := 0; i < mp.NumPolygons(); i++ {
		gp := mp.Polygon(i)
		poly := make(orb.Polygon, 0, gp.NumLinearRings())
		for ri := 0; ri < gp.NumLinearRings(); ri++ {
			flat := gp.LinearRing(ri).FlatCoords()
			ring := make(orb.Ring, 0, len(flat)/2)
			for c := 0; c+1 < len(flat); c += 2 {
				ring = append(ring, orb.Point{flat[c], flat[c+1]})
			}
			poly = append(poly, ring)
		}
		out = append(out, poly)
	}
	return out
}
