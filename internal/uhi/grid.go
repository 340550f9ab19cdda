package uhi

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/heatsense-cli/internal/model"
)

// metersPerDegreeLat is the approximate length of one degree of latitude.
// Longitude degrees shrink with cos(latitude).
const metersPerDegreeLat = 111320.0

// temperaturePercentiles are the summary quantiles attached to the grid.
var temperaturePercentiles = []int{10, 25, 50, 75, 90}

// BuildGrid tessellates the boundary's bounding extent into fixed-size
// square cells, keeps cells whose centroid falls inside the boundary, and
// attaches the mean of the temperature samples contained in each cell.
// Cells with no samples keep a nil temperature; they are retained for
// completeness but excluded from every downstream statistic.
func BuildGrid(boundary Boundary, cellSizeM float64, samples []Sample) (*model.GridResult, error) {
	if cellSizeM <= 0 {
		return nil, ErrInvalidConfig
	}
	if planar.Area(boundary.Geometry) == 0 {
		return nil, ErrEmptyBoundary
	}

	log := zap.L().With(zap.String("stage", "grid"), zap.Float64("cell_size_m", cellSizeM))

	bound := boundary.Geometry.Bound()
	cellW, cellH := cellSpan(boundary.CRS, cellSizeM, bound)

	cols := int(math.Ceil((bound.Max[0] - bound.Min[0]) / cellW))
	rows := int(math.Ceil((bound.Max[1] - bound.Min[1]) / cellH))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	// Bin samples by tessellation coordinates first so cell construction is
	// a single pass.
	type bin struct {
		sum   float64
		count int
	}
	bins := make(map[[2]int]*bin)
	for _, s := range samples {
		col := int(math.Floor((s.Point[0] - bound.Min[0]) / cellW))
		row := int(math.Floor((s.Point[1] - bound.Min[1]) / cellH))
		// Samples exactly on the extent's max edge belong to the last
		// row/column, not outside the grid.
		if col == cols && s.Point[0] <= bound.Max[0] {
			col = cols - 1
		}
		if row == rows && s.Point[1] <= bound.Max[1] {
			row = rows - 1
		}
		if col < 0 || col >= cols || row < 0 || row >= rows {
			continue
		}
		b := bins[[2]int{row, col}]
		if b == nil {
			b = &bin{}
			bins[[2]int{row, col}] = b
		}
		b.sum += s.TemperatureC
		b.count++
	}

	// Row-major sweep from the min corner. Index numbers only retained
	// cells, so indices are dense and stable.
	cells := make([]model.GridCell, 0, rows*cols)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			cellBound := orb.Bound{
				Min: orb.Point{bound.Min[0] + float64(col)*cellW, bound.Min[1] + float64(row)*cellH},
				Max: orb.Point{bound.Min[0] + float64(col+1)*cellW, bound.Min[1] + float64(row+1)*cellH},
			}
			if !planar.MultiPolygonContains(boundary.Geometry, cellBound.Center()) {
				continue
			}
			cell := model.GridCell{
				Index: len(cells),
				Row:   row,
				Col:   col,
				Bound: cellBound,
			}
			if b := bins[[2]int{row, col}]; b != nil {
				mean := b.sum / float64(b.count)
				cell.Temperature = &mean
				cell.SampleCount = b.count
			}
			cells = append(cells, cell)
		}
	}

	result := &model.GridResult{
		CRS:            boundary.CRS,
		CellSizeMeters: cellSizeM,
		Rows:           rows,
		Cols:           cols,
		Cells:          cells,
		Stats:          temperatureStats(cells),
	}

	log.Info("grid built",
		zap.Int("rows", rows),
		zap.Int("cols", cols),
		zap.Int("cells", len(cells)),
		zap.Int("cells_with_temperature", countWithTemperature(cells)),
	)
	return result, nil
}

// cellSpan converts the cell size in meters into CRS units per axis.
func cellSpan(crs string, cellSizeM float64, bound orb.Bound) (w, h float64) {
	if !geographicCRS(crs) {
		return cellSizeM, cellSizeM
	}
	midLat := bound.Center()[1] * math.Pi / 180
	h = cellSizeM / metersPerDegreeLat
	w = cellSizeM / (metersPerDegreeLat * math.Cos(midLat))
	return w, h
}

// temperatureStats summarizes the non-nil cell temperatures. Returns nil
// when no cell carries a temperature.
func temperatureStats(cells []model.GridCell) *model.TemperatureStats {
	temps := collectTemperatures(cells)
	if len(temps) == 0 {
		return nil
	}
	sort.Float64s(temps)

	stats := &model.TemperatureStats{
		Count:       len(temps),
		Mean:        stat.Mean(temps, nil),
		Percentiles: make(map[int]float64, len(temperaturePercentiles)),
	}
	if len(temps) > 1 {
		stats.StdDev = stat.StdDev(temps, nil)
	}
	for _, p := range temperaturePercentiles {
		stats.Percentiles[p] = quantile(temps, float64(p)/100)
	}
	return stats
}

// collectTemperatures returns the non-nil cell temperatures in cell order.
func collectTemperatures(cells []model.GridCell) []float64 {
	temps := make([]float64, 0, len(cells))
	for _, c := range cells {
		if c.Temperature != nil {
			temps = append(temps, *c.Temperature)
		}
	}
	return temps
}

// quantile linearly interpolates the q-quantile of sorted values.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func countWithTemperature(cells []model.GridCell) int {
	n := 0
	for _, c := range cells {
		if c.Temperature != nil {
			n++
		}
	}
	return n
}
