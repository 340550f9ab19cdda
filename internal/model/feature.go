package model

import "github.com/paulmach/orb/geojson"

// Stable feature property names. Downstream serialization and export
// tooling depend on these; do not rename.
const (
	PropTemperature = "temperature"
	PropLandUse     = "landuse_type"
	PropImpervious  = "impervious_area"
	PropClusterID   = "cluster_id"
	PropCellIndex   = "cell_index"
)

// FeatureCollection renders the grid as a GeoJSON feature collection, one
// polygon feature per cell. Nil cell attributes are emitted as JSON null so
// the schema is identical across runs.
func (g *GridResult) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, cell := range g.Cells {
		f := geojson.NewFeature(cell.Bound.ToPolygon())
		f.Properties[PropCellIndex] = cell.Index
		f.Properties[PropTemperature] = nullableFloat(cell.Temperature)
		f.Properties[PropLandUse] = nullableString(cell.LandUse)
		f.Properties[PropImpervious] = nullableFloat(cell.Impervious)
		f.Properties[PropClusterID] = nullableInt(cell.ClusterID)
		fc.Append(f)
	}
	return fc
}

func nullableFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
