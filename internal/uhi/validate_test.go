package uhi

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/heatsense-cli/internal/model"
)

// gridWithBounds builds a grid whose cells carry real geometry; temp may be
// nil for a temperature-free grid.
func gridWithBounds(rows, cols int, cellSize float64, temp func(row, col int) float64) *model.GridResult {
	cells := make([]model.GridCell, 0, rows*cols)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			cell := model.GridCell{
				Index: len(cells),
				Row:   row,
				Col:   col,
				Bound: orb.Bound{
					Min: orb.Point{float64(col) * cellSize, float64(row) * cellSize},
					Max: orb.Point{float64(col+1) * cellSize, float64(row+1) * cellSize},
				},
			}
			if temp != nil {
				v := temp(row, col)
				cell.Temperature = &v
			}
			cells = append(cells, cell)
		}
	}
	return &model.GridResult{Rows: rows, Cols: cols, Cells: cells, CellSizeMeters: cellSize}
}

func TestValidateGround_NoStations(t *testing.T) {
	grid := fullGrid(3, 3, func(int, int) float64 { return 25 })

	result, err := ValidateGround(grid, nil)
	require.NoError(t, err)

	assert.True(t, result.Insufficient)
	assert.Zero(t, result.SampleCount)
	assert.Nil(t, result.RMSE)
	assert.Nil(t, result.MAE)
	assert.Nil(t, result.Bias)
}

func TestValidateGround_SinglePairInsufficient(t *testing.T) {
	grid := gridWithBounds(2, 2, 100, func(row, col int) float64 { return 25 })

	stations := []Station{
		{ID: "a", Point: orb.Point{50, 50}, TemperatureC: 24},
	}
	result, err := ValidateGround(grid, stations)
	require.NoError(t, err)

	assert.True(t, result.Insufficient)
	assert.Equal(t, 1, result.SampleCount)
	assert.Nil(t, result.RMSE)
}

func TestValidateGround_KnownMetrics(t *testing.T) {
	grid := gridWithBounds(1, 2, 100, func(_, col int) float64 {
		if col == 0 {
			return 30
		}
		return 20
	})

	// Stations at the two cell centroids: diffs +2 and -1.
	stations := []Station{
		{ID: "west", Point: orb.Point{50, 50}, TemperatureC: 28},
		{ID: "east", Point: orb.Point{150, 50}, TemperatureC: 21},
	}
	result, err := ValidateGround(grid, stations)
	require.NoError(t, err)

	assert.False(t, result.Insufficient)
	assert.Equal(t, 2, result.SampleCount)
	require.NotNil(t, result.RMSE)
	assert.InDelta(t, math.Sqrt(2.5), *result.RMSE, 1e-9)
	require.NotNil(t, result.MAE)
	assert.InDelta(t, 1.5, *result.MAE, 1e-9)
	require.NotNil(t, result.Bias)
	assert.InDelta(t, 0.5, *result.Bias, 1e-9)
	require.NotNil(t, result.Correlation)
	assert.InDelta(t, 1.0, *result.Correlation, 1e-9)
}

func TestValidateGround_StationOutsideExtentSkipped(t *testing.T) {
	grid := gridWithBounds(1, 2, 100, func(_, col int) float64 { return 25 })

	stations := []Station{
		{ID: "in-1", Point: orb.Point{50, 50}, TemperatureC: 24},
		{ID: "in-2", Point: orb.Point{150, 50}, TemperatureC: 26},
		{ID: "far", Point: orb.Point{10000, 10000}, TemperatureC: 99},
	}
	result, err := ValidateGround(grid, stations)
	require.NoError(t, err)

	assert.False(t, result.Insufficient)
	assert.Equal(t, 2, result.SampleCount)
}

func TestValidateGround_NoTemperatureCells(t *testing.T) {
	grid := gridWithBounds(2, 2, 100, nil)

	stations := []Station{
		{ID: "a", Point: orb.Point{50, 50}, TemperatureC: 24},
		{ID: "b", Point: orb.Point{150, 50}, TemperatureC: 25},
	}
	result, err := ValidateGround(grid, stations)
	require.NoError(t, err)
	assert.True(t, result.Insufficient)
}
