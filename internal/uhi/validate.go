package uhi

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/heatsense-cli/internal/model"
)

// cellPoint indexes a temperature-bearing cell by its centroid for
// nearest-neighbor lookup.
type cellPoint struct {
	centroid    orb.Point
	temperature float64
}

func (c cellPoint) Point() orb.Point { return c.centroid }

// ValidateGround pairs each station with the nearest temperature-bearing
// grid cell by centroid distance and computes RMSE, MAE, bias
// (satellite - ground) and Pearson correlation over the pairs. Stations
// outside the grid extent (expanded by one cell) are skipped. With fewer
// than two valid pairs the result is explicitly marked insufficient; the
// metrics stay nil so a missing network never masquerades as perfect
// agreement.
func ValidateGround(grid *model.GridResult, stations []Station) (*model.ValidationResult, error) {
	log := zap.L().With(zap.String("stage", "validation"))
	result := &model.ValidationResult{Insufficient: true}

	var observed []model.GridCell
	for _, c := range grid.Cells {
		if c.Temperature != nil {
			observed = append(observed, c)
		}
	}
	if len(observed) == 0 || len(stations) == 0 {
		log.Info("ground validation skipped",
			zap.Int("cells_with_temperature", len(observed)),
			zap.Int("stations", len(stations)))
		return result, nil
	}

	// Extent for station filtering: grid bbox padded by one cell span.
	extent := observed[0].Bound
	for _, c := range observed[1:] {
		extent = extent.Union(c.Bound)
	}
	padX := observed[0].Bound.Max[0] - observed[0].Bound.Min[0]
	padY := observed[0].Bound.Max[1] - observed[0].Bound.Min[1]
	extent.Min[0] -= padX
	extent.Min[1] -= padY
	extent.Max[0] += padX
	extent.Max[1] += padY

	qt := quadtree.New(extent)
	for _, c := range observed {
		// Add only fails for points outside the tree bound, which cannot
		// happen for cell centroids inside the extent.
		_ = qt.Add(cellPoint{centroid: c.Centroid(), temperature: *c.Temperature})
	}

	var satellite, ground []float64
	for _, s := range stations {
		if !extent.Contains(s.Point) {
			continue
		}
		nearest := qt.Find(s.Point)
		if nearest == nil {
			continue
		}
		cp := nearest.(cellPoint)
		satellite = append(satellite, cp.temperature)
		ground = append(ground, s.TemperatureC)
	}

	result.SampleCount = len(satellite)
	if len(satellite) < 2 {
		log.Info("insufficient station pairs for validation",
			zap.Int("pairs", len(satellite)))
		return result, nil
	}

	var sqErr, absErr, diff float64
	for i := range satellite {
		d := satellite[i] - ground[i]
		sqErr += d * d
		absErr += math.Abs(d)
		diff += d
	}
	n := float64(len(satellite))
	rmse := math.Sqrt(sqErr / n)
	mae := absErr / n
	bias := diff / n

	result.Insufficient = false
	result.RMSE = &rmse
	result.MAE = &mae
	result.Bias = &bias
	if r := stat.Correlation(satellite, ground, nil); !math.IsNaN(r) {
		result.Correlation = &r
	}

	log.Info("ground validation complete",
		zap.Int("pairs", len(satellite)),
		zap.Float64("rmse", rmse),
		zap.Float64("mae", mae),
		zap.Float64("bias", bias),
	)
	return result, nil
}
