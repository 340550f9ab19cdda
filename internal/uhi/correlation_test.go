package uhi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/heatsense-cli/internal/model"
)

// testGrid wraps cells into a grid result for the statistics stages.
func testGrid(cells []model.GridCell) *model.GridResult {
	rows, cols := 0, 0
	for _, c := range cells {
		if c.Row >= rows {
			rows = c.Row + 1
		}
		if c.Col >= cols {
			cols = c.Col + 1
		}
	}
	return &model.GridResult{Rows: rows, Cols: cols, Cells: cells}
}

// categoryCell builds a temperature-bearing cell in one land-use category.
func categoryCell(index int, temp float64, category string, impervious float64) model.GridCell {
	return model.GridCell{
		Index:       index,
		Row:         index,
		Temperature: fptr(temp),
		LandUse:     sptr(category),
		Impervious:  fptr(impervious),
	}
}

func TestAnalyzeCorrelation_PositiveTrend(t *testing.T) {
	// Temperature rises exactly with imperviousness: r must be 1, p 0.
	cells := []model.GridCell{
		categoryCell(0, 20, "urban", 0.2),
		categoryCell(1, 25, "urban", 0.4),
		categoryCell(2, 30, "urban", 0.6),
		categoryCell(3, 35, "urban", 0.8),
	}

	result, err := AnalyzeCorrelation(testGrid(cells), 3)
	require.NoError(t, err)
	require.Len(t, result.Categories, 1)

	urban := result.Categories[0]
	assert.Equal(t, "urban", urban.Category)
	assert.Equal(t, 4, urban.SampleCount)
	assert.True(t, urban.Reliable)
	require.NotNil(t, urban.Correlation)
	assert.InDelta(t, 1.0, *urban.Correlation, 1e-9)
	require.NotNil(t, urban.PValue)
	assert.InDelta(t, 0.0, *urban.PValue, 1e-9)
}

func TestAnalyzeCorrelation_NegativeTrend(t *testing.T) {
	cells := []model.GridCell{
		categoryCell(0, 35, "green", 0.1),
		categoryCell(1, 30, "green", 0.3),
		categoryCell(2, 26, "green", 0.5),
		categoryCell(3, 21, "green", 0.7),
	}

	result, err := AnalyzeCorrelation(testGrid(cells), 3)
	require.NoError(t, err)

	green := result.Categories[0]
	require.NotNil(t, green.Correlation)
	assert.Negative(t, *green.Correlation)
	assert.Less(t, *green.Correlation, -0.99)
}

func TestAnalyzeCorrelation_SmallGroupUnreliable(t *testing.T) {
	cells := []model.GridCell{
		categoryCell(0, 20, "rare", 0.5),
		categoryCell(1, 21, "rare", 0.6),
	}

	result, err := AnalyzeCorrelation(testGrid(cells), 3)
	require.NoError(t, err)
	require.Len(t, result.Categories, 1)

	rare := result.Categories[0]
	assert.False(t, rare.Reliable)
	assert.Equal(t, 2, rare.SampleCount)
	// Too few pairs: correlation is undefined, not zero.
	assert.Nil(t, rare.Correlation)
	assert.Nil(t, rare.PValue)
}

func TestAnalyzeCorrelation_ZeroVarianceUndefined(t *testing.T) {
	cells := []model.GridCell{
		categoryCell(0, 25, "flat", 0.5),
		categoryCell(1, 25, "flat", 0.6),
		categoryCell(2, 25, "flat", 0.7),
		categoryCell(3, 25, "flat", 0.8),
	}

	result, err := AnalyzeCorrelation(testGrid(cells), 3)
	require.NoError(t, err)

	flat := result.Categories[0]
	assert.Nil(t, flat.Correlation)
	assert.InDelta(t, 25.0, flat.MeanTemp, 1e-9)
	assert.Zero(t, flat.StdDevTemp)
}

func TestAnalyzeCorrelation_CategoriesSorted(t *testing.T) {
	cells := []model.GridCell{
		categoryCell(0, 20, "zeta", 0.5),
		categoryCell(1, 21, "alpha", 0.5),
		categoryCell(2, 22, "midway", 0.5),
	}

	result, err := AnalyzeCorrelation(testGrid(cells), 1)
	require.NoError(t, err)
	require.Len(t, result.Categories, 3)
	assert.Equal(t, "alpha", result.Categories[0].Category)
	assert.Equal(t, "midway", result.Categories[1].Category)
	assert.Equal(t, "zeta", result.Categories[2].Category)
}

func TestAnalyzeCorrelation_OverallIncludesUncategorized(t *testing.T) {
	cells := []model.GridCell{
		categoryCell(0, 20, "urban", 0.5),
		{Index: 1, Row: 1, Temperature: fptr(30)}, // no land use
	}

	result, err := AnalyzeCorrelation(testGrid(cells), 1)
	require.NoError(t, err)

	assert.Equal(t, overallCategory, result.Overall.Category)
	assert.Equal(t, 2, result.Overall.SampleCount)
	assert.InDelta(t, 25.0, result.Overall.MeanTemp, 1e-9)
}

func TestAnalyzeCorrelation_InvalidMinSamples(t *testing.T) {
	_, err := AnalyzeCorrelation(testGrid(nil), 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPearson_Guards(t *testing.T) {
	_, _, ok := pearson([]float64{1, 2}, []float64{3, 4})
	assert.False(t, ok, "fewer than 3 pairs is undefined")

	_, _, ok = pearson([]float64{1, 2, 3}, []float64{5, 5, 5})
	assert.False(t, ok, "zero variance is undefined")

	r, p, ok := pearson([]float64{1, 2, 3, 4}, []float64{2, 4, 6, 8})
	require.True(t, ok)
	assert.InDelta(t, 1.0, r, 1e-9)
	assert.Zero(t, p)
}
