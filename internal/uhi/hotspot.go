package uhi

import (
	"math"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sells-group/heatsense-cli/internal/model"
)

// HotspotParams are the tunable thresholds of the detector.
type HotspotParams struct {
	// Percentile in (0,1); cells at or above this temperature quantile are
	// outlier candidates. The boundary is inclusive.
	Percentile float64
	// MinClusterSize discards contiguous components smaller than this.
	MinClusterSize int
	// Alpha is the significance level for the spatial autocorrelation test.
	Alpha float64
}

// DetectHotspots runs the hotspot state machine over the cell set:
//
//  1. Test the temperature field for significant spatial autocorrelation
//     (global Moran's I over queen contiguity). Not significant means zero
//     clusters — a valid terminal state, not a failure.
//  2. Select cells at or above the percentile threshold.
//  3. Group selected cells into contiguous components, discard components
//     below the minimum size, and renumber survivors sequentially from 0.
//
// Temperature and land-use fields are never mutated. Fewer than two
// temperature-bearing cells short-circuits to zero clusters.
func DetectHotspots(grid *model.GridResult, params HotspotParams) (*model.HotspotResult, error) {
	if params.Percentile <= 0 || params.Percentile >= 1 || params.MinClusterSize < 1 ||
		params.Alpha <= 0 || params.Alpha >= 1 {
		return nil, ErrInvalidConfig
	}

	log := zap.L().With(zap.String("stage", "hotspots"))
	result := &model.HotspotResult{Clusters: []model.HotspotCluster{}}

	// Cells that carry a temperature, in stable index order.
	var observed []model.GridCell
	for _, c := range grid.Cells {
		if c.Temperature != nil {
			observed = append(observed, c)
		}
	}
	if len(observed) < 2 {
		log.Info("too few temperature-bearing cells for spatial statistics",
			zap.Int("cells", len(observed)))
		return result, nil
	}

	graph := buildContiguity(observed)

	moranI, z, p, ok := moranTest(observed, graph)
	if !ok {
		// Zero variance or an edgeless graph: no spatial structure to test.
		log.Info("spatial autocorrelation statistic undefined, no clusters")
		return result, nil
	}
	result.MoranI = &moranI
	result.ZScore = &z
	result.PValue = &p
	result.Significant = p < params.Alpha

	log.Info("spatial autocorrelation test",
		zap.Float64("moran_i", moranI),
		zap.Float64("z_score", z),
		zap.Float64("p_value", p),
		zap.Bool("significant", result.Significant),
	)
	if !result.Significant {
		return result, nil
	}

	// Outlier selection: inclusive percentile boundary.
	temps := make([]float64, len(observed))
	for i, c := range observed {
		temps[i] = *c.Temperature
	}
	sorted := append([]float64(nil), temps...)
	sort.Float64s(sorted)
	threshold := quantile(sorted, params.Percentile)
	result.ThresholdTemp = &threshold

	selected := make([]bool, len(observed))
	for i, t := range temps {
		selected[i] = t >= threshold
	}

	result.Clusters = clusterSelected(observed, graph, selected, params.MinClusterSize)

	log.Info("hotspot detection complete",
		zap.Float64("threshold_temp", threshold),
		zap.Int("clusters", len(result.Clusters)),
	)
	return result, nil
}

// buildContiguity links observed cells under queen contiguity: two cells
// are neighbors when their row and column each differ by at most one. On a
// regular tessellation this is exactly edge-or-vertex sharing. The returned
// adjacency is indexed by position in the observed slice.
func buildContiguity(observed []model.GridCell) [][]int {
	byPos := make(map[[2]int]int, len(observed))
	for i, c := range observed {
		byPos[[2]int{c.Row, c.Col}] = i
	}

	adj := make([][]int, len(observed))
	for i, c := range observed {
		for dr := -1; dr <= 1; dr++ {
			for dc := -1; dc <= 1; dc++ {
				if dr == 0 && dc == 0 {
					continue
				}
				if j, ok := byPos[[2]int{c.Row + dr, c.Col + dc}]; ok {
					adj[i] = append(adj[i], j)
				}
			}
		}
	}
	return adj
}

// moranTest computes global Moran's I with binary weights and its two-sided
// p-value under the normality assumption. Returns ok false when the
// statistic is undefined: zero temperature variance or no neighbor pairs.
func moranTest(observed []model.GridCell, adj [][]int) (moranI, z, p float64, ok bool) {
	n := float64(len(observed))

	mean := 0.0
	for _, c := range observed {
		mean += *c.Temperature
	}
	mean /= n

	dev := make([]float64, len(observed))
	ssq := 0.0
	for i, c := range observed {
		dev[i] = *c.Temperature - mean
		ssq += dev[i] * dev[i]
	}
	if ssq == 0 {
		return 0, 0, 0, false
	}

	// S0: sum of all weights; cross: weighted cross-product of deviations.
	// Weights are symmetric binary, so S1 and S2 simplify.
	var s0, cross float64
	s2 := 0.0
	for i := range observed {
		deg := float64(len(adj[i]))
		s0 += deg
		s2 += (2 * deg) * (2 * deg)
		for _, j := range adj[i] {
			cross += dev[i] * dev[j]
		}
	}
	if s0 == 0 {
		return 0, 0, 0, false
	}
	s1 := 2 * s0 // each symmetric pair contributes (w_ij + w_ji)^2 = 4

	moranI = (n / s0) * (cross / ssq)

	expected := -1 / (n - 1)
	variance := (n*n*s1-n*s2+3*s0*s0)/((n*n-1)*s0*s0) - expected*expected
	if variance <= 0 {
		return 0, 0, 0, false
	}

	z = (moranI - expected) / math.Sqrt(variance)
	norm := distuv.Normal{Mu: 0, Sigma: 1}
	p = 2 * norm.CDF(-math.Abs(z))
	return moranI, z, p, true
}

// clusterSelected groups selected cells into connected components over the
// contiguity graph, drops components below minSize, and renumbers the
// survivors with sequential ids starting at 0, ordered by their smallest
// member cell index so numbering is independent of traversal order.
func clusterSelected(observed []model.GridCell, adj [][]int, selected []bool, minSize int) []model.HotspotCluster {
	visited := make([]bool, len(observed))
	var components [][]int

	for i := range observed {
		if !selected[i] || visited[i] {
			continue
		}
		// BFS over selected cells only.
		var comp []int
		queue := []int{i}
		visited[i] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			comp = append(comp, cur)
			for _, nb := range adj[cur] {
				if selected[nb] && !visited[nb] {
					visited[nb] = true
					queue = append(queue, nb)
				}
			}
		}
		if len(comp) >= minSize {
			components = append(components, comp)
		}
	}

	// Order components by their smallest member cell index.
	for _, comp := range components {
		sort.Ints(comp)
	}
	sort.Slice(components, func(a, b int) bool {
		return observed[components[a][0]].Index < observed[components[b][0]].Index
	})

	clusters := make([]model.HotspotCluster, 0, len(components))
	for id, comp := range components {
		cluster := model.HotspotCluster{ID: id, Size: len(comp)}
		sum := 0.0
		peak := math.Inf(-1)
		for _, pos := range comp {
			cell := observed[pos]
			cluster.CellIndexes = append(cluster.CellIndexes, cell.Index)
			sum += *cell.Temperature
			if *cell.Temperature > peak {
				peak = *cell.Temperature
			}
		}
		sort.Ints(cluster.CellIndexes)
		cluster.MeanTemp = sum / float64(len(comp))
		cluster.PeakTemp = peak
		clusters = append(clusters, cluster)
	}
	return clusters
}

// AnnotateClusters writes cluster ids onto a copy of the grid's cells. The
// input grid is unchanged.
func AnnotateClusters(grid *model.GridResult, hotspots *model.HotspotResult) *model.GridResult {
	annotated := *grid
	annotated.Cells = make([]model.GridCell, len(grid.Cells))
	copy(annotated.Cells, grid.Cells)

	byIndex := make(map[int]int)
	for _, cluster := range hotspots.Clusters {
		for _, idx := range cluster.CellIndexes {
			byIndex[idx] = cluster.ID
		}
	}
	for i := range annotated.Cells {
		if id, ok := byIndex[annotated.Cells[i].Index]; ok {
			cid := id
			annotated.Cells[i].ClusterID = &cid
		}
	}
	return &annotated
}
