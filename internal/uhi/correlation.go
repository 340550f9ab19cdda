package uhi

import (
	"math"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sells-group/heatsense-cli/internal/model"
)

// overallCategory names the aggregate entry covering all cells.
const overallCategory = "overall"

// AnalyzeCorrelation groups cells by land-use category and computes, per
// group, temperature mean and standard deviation plus the Pearson
// correlation and two-sided p-value between temperature and imperviousness.
// Groups below minSamples are reported with Reliable false rather than
// dropped. Output ordering is sorted by category name so repeated runs are
// byte-for-bit identical.
func AnalyzeCorrelation(grid *model.GridResult, minSamples int) (*model.CorrelationResult, error) {
	if minSamples < 1 {
		return nil, ErrInvalidConfig
	}

	log := zap.L().With(zap.String("stage", "correlation"))

	groups := make(map[string][]model.GridCell)
	var all []model.GridCell
	for _, cell := range grid.Cells {
		if cell.Temperature == nil {
			continue
		}
		all = append(all, cell)
		if cell.LandUse != nil {
			groups[*cell.LandUse] = append(groups[*cell.LandUse], cell)
		}
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	result := &model.CorrelationResult{
		Categories: make([]model.CategoryStats, 0, len(names)),
		Overall:    categoryStats(overallCategory, all, minSamples),
	}
	for _, name := range names {
		result.Categories = append(result.Categories, categoryStats(name, groups[name], minSamples))
	}

	log.Info("correlation analysis complete",
		zap.Int("categories", len(result.Categories)),
		zap.Int("cells", len(all)),
	)
	return result, nil
}

// categoryStats computes the statistics for one cell group. Correlation and
// p-value stay nil when they are undefined (fewer than 3 paired values, or
// zero variance on either axis) — undefined is not an error.
func categoryStats(name string, cells []model.GridCell, minSamples int) model.CategoryStats {
	temps := make([]float64, 0, len(cells))
	var pairedTemps, pairedImperv []float64
	for _, c := range cells {
		temps = append(temps, *c.Temperature)
		if c.Impervious != nil {
			pairedTemps = append(pairedTemps, *c.Temperature)
			pairedImperv = append(pairedImperv, *c.Impervious)
		}
	}

	cs := model.CategoryStats{
		Category:    name,
		SampleCount: len(temps),
		Reliable:    len(temps) >= minSamples,
	}
	if len(temps) == 0 {
		return cs
	}
	cs.MeanTemp = stat.Mean(temps, nil)
	if len(temps) > 1 {
		cs.StdDevTemp = stat.StdDev(temps, nil)
	}

	if r, p, ok := pearson(pairedTemps, pairedImperv); ok {
		cs.Correlation = &r
		cs.PValue = &p
	}
	return cs
}

// pearson computes the Pearson correlation coefficient and its two-sided
// p-value from the t-distribution with n-2 degrees of freedom.
func pearson(x, y []float64) (r, p float64, ok bool) {
	n := len(x)
	if n < 3 || n != len(y) {
		return 0, 0, false
	}
	r = stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		// Zero variance on one axis.
		return 0, 0, false
	}
	// Guard the degenerate |r| == 1 case where the t statistic diverges.
	if r >= 1 {
		return 1, 0, true
	}
	if r <= -1 {
		return -1, 0, true
	}
	t := r * math.Sqrt(float64(n-2)/(1-r*r))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 2)}
	p = 2 * dist.CDF(-math.Abs(t))
	return r, p, true
}
