package uhi

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/heatsense-cli/internal/model"
)

// RecommendParams control priority derivation and category selection.
type RecommendParams struct {
	// CorrelationThreshold is the minimum |r| for a category to generate a
	// strategy (with p < 0.05).
	CorrelationThreshold float64
	// MinClusterSize scales the size component of cluster priorities.
	MinClusterSize int
}

// categoryPValueCutoff gates category strategies on significance.
const categoryPValueCutoff = 0.05

// GenerateRecommendations derives ranked mitigation strategies from the
// hotspot clusters and the land-use correlation table. Pure function of its
// inputs: identical inputs yield an identical ordering.
func GenerateRecommendations(hotspots *model.HotspotResult, correlation *model.CorrelationResult, overallMean float64, params RecommendParams) []model.Recommendation {
	log := zap.L().With(zap.String("stage", "recommendations"))

	recs := make([]model.Recommendation, 0)
	for _, cluster := range hotspots.Clusters {
		recs = append(recs, clusterRecommendation(cluster, overallMean, params.MinClusterSize))
	}
	for _, cat := range correlation.Categories {
		if rec, ok := categoryRecommendation(cat, params.CorrelationThreshold); ok {
			recs = append(recs, rec)
		}
	}

	// Priority descending, evidence magnitude descending, evidence ref
	// ascending as the final tie-break for a total order.
	sort.Slice(recs, func(a, b int) bool {
		if recs[a].Priority.Rank() != recs[b].Priority.Rank() {
			return recs[a].Priority.Rank() > recs[b].Priority.Rank()
		}
		if recs[a].Magnitude != recs[b].Magnitude {
			return recs[a].Magnitude > recs[b].Magnitude
		}
		return recs[a].Evidence < recs[b].Evidence
	})

	log.Info("recommendations generated", zap.Int("count", len(recs)))
	return recs
}

// clusterRecommendation derives a hotspot mitigation strategy. Priority
// crosses cluster size with the cluster's mean temperature excess over the
// grid mean.
func clusterRecommendation(cluster model.HotspotCluster, overallMean float64, minClusterSize int) model.Recommendation {
	delta := cluster.MeanTemp - overallMean

	var priority model.Priority
	switch {
	case delta >= 3 && cluster.Size >= 4*minClusterSize:
		priority = model.PriorityCritical
	case delta >= 2 || cluster.Size >= 2*minClusterSize:
		priority = model.PriorityHigh
	case delta >= 1:
		priority = model.PriorityMedium
	default:
		priority = model.PriorityLow
	}

	return model.Recommendation{
		Strategy: "increase_green_coverage",
		Rationale: fmt.Sprintf(
			"cluster of %d cells runs %.1f°C above the area mean; add tree canopy and green roofs",
			cluster.Size, delta),
		Priority:  priority,
		Evidence:  fmt.Sprintf("cluster:%d", cluster.ID),
		Magnitude: delta,
	}
}

// categoryRecommendation derives a category-targeted strategy for strongly
// correlated land-use categories. Positive correlation with imperviousness
// calls for surface mitigation; negative correlation calls for preserving
// the cooling land use.
func categoryRecommendation(cat model.CategoryStats, threshold float64) (model.Recommendation, bool) {
	if cat.Correlation == nil || cat.PValue == nil {
		return model.Recommendation{}, false
	}
	r := *cat.Correlation
	if math.Abs(r) < threshold || *cat.PValue >= categoryPValueCutoff {
		return model.Recommendation{}, false
	}

	priority := model.PriorityMedium
	if !cat.Reliable {
		priority = model.PriorityLow
	}

	rec := model.Recommendation{
		Priority:  priority,
		Evidence:  "category:" + cat.Category,
		Magnitude: math.Abs(r),
	}
	if r > 0 {
		rec.Strategy = "reduce_impervious_cover"
		rec.Rationale = fmt.Sprintf(
			"temperature tracks imperviousness in %s (r=%.2f); deploy cool roofs and permeable pavements",
			cat.Category, r)
	} else {
		rec.Strategy = "preserve_cooling_landuse"
		rec.Rationale = fmt.Sprintf(
			"%s areas cool their surroundings (r=%.2f); protect them from conversion",
			cat.Category, r)
	}
	return rec, true
}
