package uhi

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/planar"
	"go.uber.org/zap"

	"github.com/sells-group/heatsense-cli/internal/model"
)

// JoinLandUse overlays land-use polygons on the grid and assigns each cell
// the category of the polygon with the largest intersection area, breaking
// ties on the lowest CORINE code. Cells without coverage keep nil land-use
// fields. The input grid's geometry and temperatures are never modified; an
// augmented copy is returned. Returns ErrNoLandUseOverlap when no polygon
// overlaps any cell.
func JoinLandUse(grid *model.GridResult, polygons []LandUsePolygon, scheme *LandUseScheme) (*model.GridResult, error) {
	log := zap.L().With(zap.String("stage", "landuse"))

	joined := *grid
	joined.Cells = make([]model.GridCell, len(grid.Cells))
	copy(joined.Cells, grid.Cells)

	if len(joined.Cells) == 0 {
		return &joined, nil
	}

	index := newBucketIndex(grid, polygons)

	covered := 0
	for i := range joined.Cells {
		cell := &joined.Cells[i]
		code, ok := dominantCode(cell.Bound, polygons, index.candidates(cell.Row, cell.Col))
		if !ok {
			continue
		}
		name, coeff := scheme.Resolve(code)
		cell.LandUse = &name
		cell.Impervious = &coeff
		covered++
	}

	if covered == 0 {
		return nil, ErrNoLandUseOverlap
	}

	log.Info("land-use join complete",
		zap.Int("polygons", len(polygons)),
		zap.Int("cells_covered", covered),
		zap.Int("cells_total", len(joined.Cells)),
	)
	return &joined, nil
}

// dominantCode returns the CORINE code of the candidate polygon with the
// largest intersection area with the cell. Equal areas resolve to the
// lowest code so the join is deterministic.
func dominantCode(cellBound orb.Bound, polygons []LandUsePolygon, candidates []int) (int, bool) {
	bestArea := 0.0
	bestCode := 0
	found := false
	for _, pi := range candidates {
		p := polygons[pi]
		clipped := clip.Polygon(cellBound, p.Geometry.Clone())
		if len(clipped) == 0 {
			continue
		}
		area := planar.Area(clipped)
		if area <= 0 {
			continue
		}
		if !found || area > bestArea || (area == bestArea && p.Code < bestCode) {
			bestArea = area
			bestCode = p.Code
			found = true
		}
	}
	return bestCode, found
}

// bucketIndex assigns each land-use polygon to the range of grid rows and
// columns its bounding box covers, so the per-cell overlay only examines
// polygons that can intersect the cell. Behaviorally equivalent to the
// exhaustive comparison.
type bucketIndex struct {
	cols    int
	buckets map[[2]int][]int
}

func newBucketIndex(grid *model.GridResult, polygons []LandUsePolygon) *bucketIndex {
	idx := &bucketIndex{cols: grid.Cols, buckets: make(map[[2]int][]int)}
	if len(grid.Cells) == 0 {
		return idx
	}

	// Recover the tessellation origin and spans from any retained cell.
	ref := grid.Cells[0]
	cellW := ref.Bound.Max[0] - ref.Bound.Min[0]
	cellH := ref.Bound.Max[1] - ref.Bound.Min[1]
	originX := ref.Bound.Min[0] - float64(ref.Col)*cellW
	originY := ref.Bound.Min[1] - float64(ref.Row)*cellH

	for pi, p := range polygons {
		b := p.Geometry.Bound()
		minCol := clampInt(int(math.Floor((b.Min[0]-originX)/cellW)), 0, grid.Cols-1)
		maxCol := clampInt(int(math.Floor((b.Max[0]-originX)/cellW)), 0, grid.Cols-1)
		minRow := clampInt(int(math.Floor((b.Min[1]-originY)/cellH)), 0, grid.Rows-1)
		maxRow := clampInt(int(math.Floor((b.Max[1]-originY)/cellH)), 0, grid.Rows-1)
		for row := minRow; row <= maxRow; row++ {
			for col := minCol; col <= maxCol; col++ {
				key := [2]int{row, col}
				idx.buckets[key] = append(idx.buckets[key], pi)
			}
		}
	}
	return idx
}

func (idx *bucketIndex) candidates(row, col int) []int {
	return idx.buckets[[2]int{row, col}]
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
