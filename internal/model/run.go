package model

import "time"

// Run is the persisted history record for one analysis invocation. The
// full artifacts live in the filesystem cache; the store keeps only the
// summary needed to list and audit past runs.
type Run struct {
	ID                  string            `json:"id"`
	Fingerprint         string            `json:"fingerprint"`
	Status              RunStatus         `json:"status"`
	CellCount           int               `json:"cell_count"`
	HotspotCount        int               `json:"hotspot_count"`
	RecommendationCount int               `json:"recommendation_count"`
	Timings             []StageTiming     `json:"timings,omitempty"`
	StageErrors         map[string]string `json:"stage_errors,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
}

// RunSummary condenses an AnalysisResult into its history record.
func RunSummary(result *AnalysisResult, fingerprint string) Run {
	run := Run{
		ID:          result.RunID,
		Fingerprint: fingerprint,
		Status:      result.Status(),
		Timings:     result.Timings,
		StageErrors: result.StageErrors,
	}
	if result.Grid != nil {
		run.CellCount = len(result.Grid.Cells)
	}
	if result.Hotspots != nil {
		run.HotspotCount = len(result.Hotspots.Clusters)
	}
	run.RecommendationCount = len(result.Recommendations)
	return run
}
