package model

import (
	"time"

	"github.com/paulmach/orb"
)

// RunStatus represents the terminal state of an analysis run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusPartial  RunStatus = "partial"
	RunStatusFailed   RunStatus = "failed"
)

// Stage names used for per-stage error markers and cache partitioning.
const (
	StageGrid           = "grid"
	StageLandUse        = "landuse"
	StageCorrelation    = "correlation"
	StageHotspots       = "hotspots"
	StageValidation     = "validation"
	StageRecommendation = "recommendations"
)

// GridCell is one cell of the analysis tessellation. Index is the stable
// position in the retained row-major ordering; Row and Col locate the cell
// within the full bounding-extent tessellation. Nullable fields stay nil
// until the owning stage has run.
type GridCell struct {
	Index       int      `json:"index"`
	Row         int      `json:"row"`
	Col         int      `json:"col"`
	Bound       orb.Bound `json:"bound"`
	Temperature *float64 `json:"temperature,omitempty"`
	SampleCount int      `json:"sample_count"`
	LandUse     *string  `json:"landuse_type,omitempty"`
	Impervious  *float64 `json:"impervious_area,omitempty"`
	ClusterID   *int     `json:"cluster_id,omitempty"`
}

// Centroid returns the center point of the cell.
func (c GridCell) Centroid() orb.Point {
	return c.Bound.Center()
}

// TemperatureStats summarizes the cell temperature field.
type TemperatureStats struct {
	Count       int             `json:"count"`
	Mean        float64         `json:"mean"`
	StdDev      float64         `json:"std_dev"`
	Percentiles map[int]float64 `json:"percentiles"`
}

// GridResult is the output of the grid builder.
type GridResult struct {
	CRS            string            `json:"crs"`
	CellSizeMeters float64           `json:"cell_size_m"`
	Rows           int               `json:"rows"`
	Cols           int               `json:"cols"`
	Cells          []GridCell        `json:"cells"`
	Stats          *TemperatureStats `json:"stats,omitempty"`
}

// CategoryStats holds per-land-use temperature statistics and the
// temperature-vs-imperviousness correlation for one category. Categories
// below the configured minimum sample count are reported with Reliable set
// to false rather than omitted.
type CategoryStats struct {
	Category    string   `json:"category"`
	SampleCount int      `json:"sample_count"`
	MeanTemp    float64  `json:"mean_temp"`
	StdDevTemp  float64  `json:"std_dev_temp"`
	Correlation *float64 `json:"correlation,omitempty"`
	PValue      *float64 `json:"p_value,omitempty"`
	Reliable    bool     `json:"reliable"`
}

// CorrelationResult is the output of the correlation analyzer. Categories
// are sorted by name for deterministic output.
type CorrelationResult struct {
	Categories []CategoryStats `json:"categories"`
	Overall    CategoryStats   `json:"overall"`
}

// HotspotCluster is a contiguous group of outlier cells. CellIndexes are
// sorted ascending.
type HotspotCluster struct {
	ID          int     `json:"id"`
	CellIndexes []int   `json:"cell_indexes"`
	Size        int     `json:"size"`
	MeanTemp    float64 `json:"mean_temp"`
	PeakTemp    float64 `json:"peak_temp"`
}

// HotspotResult is the output of the hotspot detector. A run with no
// significant spatial structure has Significant false and zero clusters;
// that is a valid terminal state, not an error. MoranI, ZScore and PValue
// are nil when the statistic could not be computed (fewer than two
// temperature-bearing cells, or zero variance).
type HotspotResult struct {
	MoranI        *float64         `json:"moran_i,omitempty"`
	ZScore        *float64         `json:"z_score,omitempty"`
	PValue        *float64         `json:"p_value,omitempty"`
	Significant   bool             `json:"significant"`
	ThresholdTemp *float64         `json:"threshold_temp,omitempty"`
	Clusters      []HotspotCluster `json:"clusters"`
}

// ValidationResult compares satellite-derived cell temperatures against
// ground station readings. When fewer than two valid station pairs exist,
// Insufficient is true and all metrics are nil — never numeric zero.
type ValidationResult struct {
	Insufficient bool     `json:"insufficient"`
	SampleCount  int      `json:"sample_count"`
	RMSE         *float64 `json:"rmse,omitempty"`
	MAE          *float64 `json:"mae,omitempty"`
	Bias         *float64 `json:"bias,omitempty"`
	Correlation  *float64 `json:"correlation,omitempty"`
}

// Recommendation is one ranked mitigation strategy.
type Recommendation struct {
	Strategy  string   `json:"strategy"`
	Rationale string   `json:"rationale"`
	Priority  Priority `json:"priority"`
	// Evidence references the originating cluster ("cluster:3") or
	// land-use category ("category:high_density_urban").
	Evidence string `json:"evidence"`
	// Magnitude is the evidence strength used for ordering: temperature
	// delta for clusters, |r| for categories.
	Magnitude float64 `json:"magnitude"`
}

// StageTiming records the wall-clock duration of one pipeline stage.
type StageTiming struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration"`
	CacheHit bool          `json:"cache_hit"`
}

// AnalysisResult is the assembled output of one full pipeline run. Stages
// that failed inside the concurrent fan-out leave their field nil and an
// entry in StageErrors; a grid failure aborts the whole run instead.
type AnalysisResult struct {
	RunID           string             `json:"run_id"`
	Grid            *GridResult        `json:"grid,omitempty"`
	Correlation     *CorrelationResult `json:"correlation,omitempty"`
	Hotspots        *HotspotResult     `json:"hotspots,omitempty"`
	Validation      *ValidationResult  `json:"validation,omitempty"`
	Recommendations []Recommendation   `json:"recommendations,omitempty"`
	StageErrors     map[string]string  `json:"stage_errors,omitempty"`
	Timings         []StageTiming      `json:"timings,omitempty"`
}

// Status derives the run status from per-stage errors.
func (r *AnalysisResult) Status() RunStatus {
	if r.Grid == nil {
		return RunStatusFailed
	}
	if len(r.StageErrors) > 0 {
		return RunStatusPartial
	}
	return RunStatusComplete
}
