package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// schemaVersion tags fingerprints with the artifact schema so a format
// change invalidates old entries instead of misreading them.
const schemaVersion = "v2"

// Kind partitions the cache by artifact type. Each kind gets its own
// subdirectory but all kinds share one eviction policy.
type Kind string

const (
	KindGrid        Kind = "grid"
	KindCorrelation Kind = "correlation"
	KindHotspots    Kind = "hotspots"
	KindLandCover   Kind = "landcover"
	KindBoundary    Kind = "boundary"
)

// Kinds lists every artifact kind, in directory order.
var Kinds = []Kind{KindGrid, KindCorrelation, KindHotspots, KindLandCover, KindBoundary}

// Params identify one analysis configuration for fingerprinting. Two
// logically equal parameter sets must fingerprint identically, so floats
// are rounded to six decimal places before hashing and dates reduce to
// their calendar day.
type Params struct {
	Bounds            [4]float64 `json:"bounds"` // minx, miny, maxx, maxy
	Start             time.Time  `json:"start"`
	End               time.Time  `json:"end"`
	CloudCover        float64    `json:"cloud_cover"`
	CellSizeM         float64    `json:"cell_size_m"`
	HotspotPercentile float64    `json:"hotspot_percentile"`
	MinClusterSize    int        `json:"min_cluster_size"`
	Alpha             float64    `json:"alpha"`
	// MinCategorySamples changes which categories are flagged reliable in
	// the correlation artifact.
	MinCategorySamples int `json:"min_category_samples"`
	// Scheme identifies the land-use scheme configuration (grouping mode
	// and coefficient overrides), which shapes the landcover and
	// correlation artifacts.
	Scheme string `json:"scheme"`
}

// Fingerprint builds the canonical cache key for an artifact kind. Field
// order is fixed; changing it is a breaking change to the cache layout.
func (p Params) Fingerprint(kind Kind) string {
	canonical := fmt.Sprintf(
		"%s|%s|bbox=%.6f,%.6f,%.6f,%.6f|start=%s|end=%s|cloud=%.6f|cell=%.6f|pct=%.6f|minclu=%d|alpha=%.6f|mincat=%d|scheme=%s",
		schemaVersion, kind,
		p.Bounds[0], p.Bounds[1], p.Bounds[2], p.Bounds[3],
		p.Start.Format("2006-01-02"), p.End.Format("2006-01-02"),
		p.CloudCover, p.CellSizeM, p.HotspotPercentile, p.MinClusterSize, p.Alpha,
		p.MinCategorySamples, p.Scheme,
	)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
