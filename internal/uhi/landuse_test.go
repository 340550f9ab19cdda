package uhi

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rectPolygon builds an axis-aligned land-use polygon.
func rectPolygon(minX, minY, maxX, maxY float64, code int) LandUsePolygon {
	return LandUsePolygon{
		Geometry: orb.Polygon{orb.Ring{
			{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
		}},
		Code: code,
	}
}

func TestJoinLandUse_DominantArea(t *testing.T) {
	grid, err := BuildGrid(squareBoundary(100), 100, nil)
	require.NoError(t, err)
	require.Len(t, grid.Cells, 1)

	// Forest covers 70% of the cell, continuous urban 30%.
	polygons := []LandUsePolygon{
		rectPolygon(0, 0, 70, 100, 311),
		rectPolygon(70, 0, 100, 100, 111),
	}
	scheme := NewLandUseScheme(false)

	joined, err := JoinLandUse(grid, polygons, scheme)
	require.NoError(t, err)

	cell := joined.Cells[0]
	require.NotNil(t, cell.LandUse)
	assert.Equal(t, "broad_leaved_forest", *cell.LandUse)
	require.NotNil(t, cell.Impervious)
	assert.InDelta(t, 0.01, *cell.Impervious, 1e-9)
}

func TestJoinLandUse_TieBreakLowestCode(t *testing.T) {
	grid, err := BuildGrid(squareBoundary(100), 100, nil)
	require.NoError(t, err)

	// Two polygons split the cell exactly in half.
	polygons := []LandUsePolygon{
		rectPolygon(0, 0, 50, 100, 312),
		rectPolygon(50, 0, 100, 100, 112),
	}
	scheme := NewLandUseScheme(false)

	joined, err := JoinLandUse(grid, polygons, scheme)
	require.NoError(t, err)

	require.NotNil(t, joined.Cells[0].LandUse)
	assert.Equal(t, "urban_discontinuous", *joined.Cells[0].LandUse)
}

func TestJoinLandUse_NoOverlap(t *testing.T) {
	grid, err := BuildGrid(squareBoundary(200), 100, nil)
	require.NoError(t, err)

	polygons := []LandUsePolygon{rectPolygon(5000, 5000, 6000, 6000, 111)}
	_, err = JoinLandUse(grid, polygons, NewLandUseScheme(false))
	assert.ErrorIs(t, err, ErrNoLandUseOverlap)
}

func TestJoinLandUse_PartialCoverage(t *testing.T) {
	grid, err := BuildGrid(squareBoundary(200), 100, nil)
	require.NoError(t, err)
	require.Len(t, grid.Cells, 4)

	// Only the lower-left cell is covered.
	polygons := []LandUsePolygon{rectPolygon(0, 0, 100, 100, 511)}
	joined, err := JoinLandUse(grid, polygons, NewLandUseScheme(false))
	require.NoError(t, err)

	assert.NotNil(t, joined.Cells[0].LandUse)
	for _, cell := range joined.Cells[1:] {
		assert.Nil(t, cell.LandUse)
		assert.Nil(t, cell.Impervious)
	}
}

func TestJoinLandUse_InputGridUntouched(t *testing.T) {
	samples := []Sample{{Point: orb.Point{50, 50}, TemperatureC: 28}}
	grid, err := BuildGrid(squareBoundary(100), 100, samples)
	require.NoError(t, err)

	polygons := []LandUsePolygon{rectPolygon(0, 0, 100, 100, 111)}
	joined, err := JoinLandUse(grid, polygons, NewLandUseScheme(true))
	require.NoError(t, err)

	// The source grid gains nothing; the copy carries both.
	assert.Nil(t, grid.Cells[0].LandUse)
	require.NotNil(t, joined.Cells[0].Temperature)
	assert.InDelta(t, 28.0, *joined.Cells[0].Temperature, 1e-9)
	require.NotNil(t, joined.Cells[0].LandUse)
	assert.Equal(t, "high_density_urban", *joined.Cells[0].LandUse)
}

func TestJoinLandUse_GroupedScheme(t *testing.T) {
	grid, err := BuildGrid(squareBoundary(100), 100, nil)
	require.NoError(t, err)

	polygons := []LandUsePolygon{rectPolygon(0, 0, 100, 100, 231)}
	joined, err := JoinLandUse(grid, polygons, NewLandUseScheme(true))
	require.NoError(t, err)

	require.NotNil(t, joined.Cells[0].LandUse)
	assert.Equal(t, "agricultural", *joined.Cells[0].LandUse)
	assert.InDelta(t, 0.04, *joined.Cells[0].Impervious, 1e-9)
}

func TestLandUseScheme_Resolve(t *testing.T) {
	detailed := NewLandUseScheme(false)
	name, coeff := detailed.Resolve(121)
	assert.Equal(t, "industrial_commercial", name)
	assert.InDelta(t, 0.90, coeff, 1e-9)

	grouped := NewLandUseScheme(true)
	name, coeff = grouped.Resolve(121)
	assert.Equal(t, "high_density_urban", name)
	assert.InDelta(t, 0.88, coeff, 1e-9)

	name, coeff = detailed.Resolve(999)
	assert.Equal(t, LandUseUnknown, name)
	assert.Zero(t, coeff)
}
