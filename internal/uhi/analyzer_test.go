package uhi

import (
	"context"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/heatsense-cli/internal/cache"
	"github.com/sells-group/heatsense-cli/internal/config"
	"github.com/sells-group/heatsense-cli/internal/model"
)

func testAnalysisConfig() config.AnalysisConfig {
	return config.AnalysisConfig{
		GridCellSizeM:        100,
		CloudCoverThreshold:  20,
		HotspotPercentile:    0.9,
		MinClusterSize:       2,
		MoranAlpha:           0.05,
		MinCategorySamples:   3,
		CorrelationThreshold: 0.5,
		IncludeWeather:       true,
	}
}

// testAnalysisInput builds a 10x10 projected grid input with a hot corner,
// full land-use coverage, and two stations.
func testAnalysisInput() AnalysisInput {
	boundary := squareBoundary(1000)

	var samples []Sample
	for row := 0; row < 10; row++ {
		for col := 0; col < 10; col++ {
			temp := 20.0
			if row < 2 && col < 6 {
				temp = 30
			}
			samples = append(samples, Sample{
				Point:        orb.Point{float64(col)*100 + 50, float64(row)*100 + 50},
				TemperatureC: temp,
			})
		}
	}

	landuse := []LandUsePolygon{
		rectPolygon(0, 0, 600, 200, 111), // hot corner is continuous urban
		rectPolygon(600, 0, 1000, 200, 112),
		rectPolygon(0, 200, 1000, 1000, 311),
	}

	stations := []Station{
		{ID: "s1", Point: orb.Point{50, 50}, TemperatureC: 29},
		{ID: "s2", Point: orb.Point{550, 550}, TemperatureC: 21},
	}

	return AnalysisInput{
		Boundary:  boundary,
		DateStart: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		DateEnd:   time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		Samples:   samples,
		LandUse:   landuse,
		Stations:  stations,
	}
}

func TestAnalyzer_FullPipeline(t *testing.T) {
	analyzer := NewAnalyzer(testAnalysisConfig(), NewLandUseScheme(true), nil)

	result, err := analyzer.Analyze(context.Background(), testAnalysisInput())
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	require.NotNil(t, result.Grid)
	assert.Len(t, result.Grid.Cells, 100)
	require.NotNil(t, result.Correlation)
	assert.NotEmpty(t, result.Correlation.Categories)
	require.NotNil(t, result.Hotspots)
	require.NotNil(t, result.Validation)
	assert.False(t, result.Validation.Insufficient)
	assert.Equal(t, model.RunStatusComplete, result.Status())
	assert.Nil(t, result.StageErrors)

	// The hot corner forms one cluster, annotated back onto the grid.
	require.NotEmpty(t, result.Hotspots.Clusters)
	annotated := 0
	for _, c := range result.Grid.Cells {
		if c.ClusterID != nil {
			annotated++
		}
	}
	assert.Equal(t, result.Hotspots.Clusters[0].Size, annotated)

	assert.NotEmpty(t, result.Recommendations)
	assert.NotEmpty(t, result.Timings)
}

func TestAnalyzer_Deterministic(t *testing.T) {
	analyzer := NewAnalyzer(testAnalysisConfig(), NewLandUseScheme(true), nil)
	in := testAnalysisInput()

	first, err := analyzer.Analyze(context.Background(), in)
	require.NoError(t, err)
	second, err := analyzer.Analyze(context.Background(), in)
	require.NoError(t, err)

	// Run ids differ; everything the pipeline derives does not.
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Correlation, second.Correlation)
	assert.Equal(t, first.Hotspots, second.Hotspots)
	assert.Equal(t, first.Recommendations, second.Recommendations)
}

func TestAnalyzer_StageFailureDegrades(t *testing.T) {
	cfg := testAnalysisConfig()
	cfg.MinCategorySamples = 0 // invalid: correlation stage fails
	analyzer := NewAnalyzer(cfg, NewLandUseScheme(true), nil)

	result, err := analyzer.Analyze(context.Background(), testAnalysisInput())
	require.NoError(t, err)

	assert.Nil(t, result.Correlation)
	require.Contains(t, result.StageErrors, model.StageCorrelation)
	// Recommendations need the correlation table.
	assert.Contains(t, result.StageErrors, model.StageRecommendation)
	assert.Empty(t, result.Recommendations)
	assert.Equal(t, model.RunStatusPartial, result.Status())
}

func TestAnalyzer_GridFailureAborts(t *testing.T) {
	analyzer := NewAnalyzer(testAnalysisConfig(), NewLandUseScheme(true), nil)

	in := testAnalysisInput()
	in.Boundary = Boundary{
		Geometry: orb.MultiPolygon{{orb.Ring{{0, 0}, {0, 0}, {0, 0}, {0, 0}}}},
		CRS:      projectedCRS,
	}
	_, err := analyzer.Analyze(context.Background(), in)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyBoundary)
}

func TestAnalyzer_NoStationsSkipsValidation(t *testing.T) {
	analyzer := NewAnalyzer(testAnalysisConfig(), NewLandUseScheme(true), nil)

	in := testAnalysisInput()
	in.Stations = nil
	result, err := analyzer.Analyze(context.Background(), in)
	require.NoError(t, err)

	assert.Nil(t, result.Validation)
	assert.Equal(t, model.RunStatusComplete, result.Status())
}

func TestAnalyzer_CacheRoundTrip(t *testing.T) {
	store, err := cache.New(t.TempDir(), 24*time.Hour, 1<<30)
	require.NoError(t, err)

	analyzer := NewAnalyzer(testAnalysisConfig(), NewLandUseScheme(true), store)
	in := testAnalysisInput()

	first, err := analyzer.Analyze(context.Background(), in)
	require.NoError(t, err)
	for _, timing := range first.Timings {
		assert.False(t, timing.CacheHit, "cold cache must miss for %s", timing.Stage)
	}

	second, err := analyzer.Analyze(context.Background(), in)
	require.NoError(t, err)

	hits := map[string]bool{}
	for _, timing := range second.Timings {
		hits[timing.Stage] = timing.CacheHit
	}
	assert.True(t, hits[model.StageGrid])
	assert.True(t, hits[model.StageLandUse])
	assert.True(t, hits[model.StageCorrelation])
	assert.True(t, hits[model.StageHotspots])

	// Cached artifacts reproduce the computed results exactly.
	assert.Equal(t, first.Correlation, second.Correlation)
	assert.Equal(t, first.Hotspots, second.Hotspots)
}

func TestAnalyzer_CacheKeyedByCategorySamples(t *testing.T) {
	store, err := cache.New(t.TempDir(), 24*time.Hour, 1<<30)
	require.NoError(t, err)
	in := testAnalysisInput()

	warm := NewAnalyzer(testAnalysisConfig(), NewLandUseScheme(true), store)
	first, err := warm.Analyze(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, first.Correlation)

	// A stricter reliability floor must not be served the warm artifact.
	strict := testAnalysisConfig()
	strict.MinCategorySamples = 1000
	second, err := NewAnalyzer(strict, NewLandUseScheme(true), store).Analyze(context.Background(), in)
	require.NoError(t, err)

	for _, timing := range second.Timings {
		if timing.Stage == model.StageCorrelation {
			assert.False(t, timing.CacheHit)
		}
	}
	require.NotNil(t, second.Correlation)
	for _, cat := range second.Correlation.Categories {
		assert.False(t, cat.Reliable, "category %s has fewer than 1000 samples", cat.Category)
	}
}

func TestAnalyzer_CacheKeyedByScheme(t *testing.T) {
	store, err := cache.New(t.TempDir(), 24*time.Hour, 1<<30)
	require.NoError(t, err)
	in := testAnalysisInput()

	_, err = NewAnalyzer(testAnalysisConfig(), NewLandUseScheme(true), store).Analyze(context.Background(), in)
	require.NoError(t, err)

	// Switching from grouped to detailed categories must miss the warm
	// landcover and correlation artifacts.
	second, err := NewAnalyzer(testAnalysisConfig(), NewLandUseScheme(false), store).Analyze(context.Background(), in)
	require.NoError(t, err)

	hits := map[string]bool{}
	for _, timing := range second.Timings {
		hits[timing.Stage] = timing.CacheHit
	}
	assert.False(t, hits[model.StageLandUse])
	assert.False(t, hits[model.StageCorrelation])

	require.NotNil(t, second.Correlation)
	categories := map[string]bool{}
	for _, cat := range second.Correlation.Categories {
		categories[cat.Category] = true
	}
	assert.True(t, categories["urban_continuous"], "detailed names expected, got %v", categories)
	assert.False(t, categories["high_density_urban"])
}

func TestAnalyzer_TimingsInStageOrder(t *testing.T) {
	analyzer := NewAnalyzer(testAnalysisConfig(), NewLandUseScheme(true), nil)

	result, err := analyzer.Analyze(context.Background(), testAnalysisInput())
	require.NoError(t, err)

	order := map[string]int{
		model.StageGrid:        0,
		model.StageLandUse:     1,
		model.StageCorrelation: 2,
		model.StageHotspots:    3,
		model.StageValidation:  4,
	}
	for i := 1; i < len(result.Timings); i++ {
		assert.Less(t, order[result.Timings[i-1].Stage], order[result.Timings[i].Stage])
	}
}
