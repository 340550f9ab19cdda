package uhi

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/heatsense-cli/internal/cache"
	"github.com/sells-group/heatsense-cli/internal/config"
	"github.com/sells-group/heatsense-cli/internal/model"
)

// AnalysisInput carries the validated inputs for one analysis run. All
// acquisition (satellite compositing, boundary services, land-cover
// catalogues, weather interpolation) happens upstream; the core performs
// no network I/O.
type AnalysisInput struct {
	Boundary  Boundary
	DateStart time.Time
	DateEnd   time.Time
	Samples   []Sample
	LandUse   []LandUsePolygon
	Stations  []Station
}

// Analyzer sequences the pipeline stages and owns all entities for the
// lifetime of one Analyze call. The cache is the only state that outlives
// a run; it may be nil to disable caching.
type Analyzer struct {
	cfg    config.AnalysisConfig
	scheme *LandUseScheme
	cache  *cache.Store
}

// NewAnalyzer builds an analyzer. scheme must not be nil; store may be.
func NewAnalyzer(cfg config.AnalysisConfig, scheme *LandUseScheme, store *cache.Store) *Analyzer {
	return &Analyzer{cfg: cfg, scheme: scheme, cache: store}
}

// Analyze runs the full pipeline: grid build, land-use join, then the
// concurrent fan-out of correlation, hotspot detection, and ground
// validation, joined before recommendation generation. Failures inside the
// fan-out degrade to per-stage error markers; only grid or join failures
// abort the run. Cluster ids and category ordering are deterministic
// regardless of scheduling.
func (a *Analyzer) Analyze(ctx context.Context, in AnalysisInput) (*model.AnalysisResult, error) {
	runID := uuid.New().String()
	log := zap.L().With(zap.String("run_id", runID))
	log.Info("starting heat island analysis",
		zap.Time("date_start", in.DateStart),
		zap.Time("date_end", in.DateEnd),
		zap.Int("samples", len(in.Samples)),
		zap.Int("landuse_polygons", len(in.LandUse)),
		zap.Int("stations", len(in.Stations)),
	)

	result := &model.AnalysisResult{
		RunID:       runID,
		StageErrors: map[string]string{},
	}
	params := a.Params(in)

	// Grid build: fatal on failure, everything depends on it.
	gridStart := time.Now()
	grid, gridHit, err := a.buildGridCached(in, params)
	if err != nil {
		return nil, eris.Wrap(err, "analyze: grid build")
	}
	result.Timings = append(result.Timings, model.StageTiming{
		Stage: model.StageGrid, Duration: time.Since(gridStart), CacheHit: gridHit})

	// Land-use join: input errors surface immediately.
	joinStart := time.Now()
	joined, joinHit, err := a.joinLandUseCached(grid, in, params)
	if err != nil {
		return nil, eris.Wrap(err, "analyze: land-use join")
	}
	result.Timings = append(result.Timings, model.StageTiming{
		Stage: model.StageLandUse, Duration: time.Since(joinStart), CacheHit: joinHit})

	// Fan-out: the three remaining analyses only read the joined grid, so
	// they run concurrently. Each failure is collected independently.
	var (
		mu          sync.Mutex
		correlation *model.CorrelationResult
		hotspots    *model.HotspotResult
		validation  *model.ValidationResult
	)
	markStage := func(stage string, stageErr error) {
		mu.Lock()
		defer mu.Unlock()
		result.StageErrors[stage] = stageErr.Error()
		log.Warn("stage failed", zap.String("stage", stage), zap.Error(stageErr))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		cr, hit, stageErr := a.correlationCached(joined, params)
		if stageErr != nil {
			markStage(model.StageCorrelation, stageErr)
			return nil
		}
		mu.Lock()
		correlation = cr
		result.Timings = append(result.Timings, model.StageTiming{
			Stage: model.StageCorrelation, Duration: time.Since(start), CacheHit: hit})
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		hr, hit, stageErr := a.hotspotsCached(joined, params)
		if stageErr != nil {
			markStage(model.StageHotspots, stageErr)
			return nil
		}
		mu.Lock()
		hotspots = hr
		result.Timings = append(result.Timings, model.StageTiming{
			Stage: model.StageHotspots, Duration: time.Since(start), CacheHit: hit})
		mu.Unlock()
		return nil
	})
	if a.cfg.IncludeWeather && len(in.Stations) > 0 {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			vr, stageErr := ValidateGround(joined, in.Stations)
			if stageErr != nil {
				markStage(model.StageValidation, stageErr)
				return nil
			}
			mu.Lock()
			validation = vr
			result.Timings = append(result.Timings, model.StageTiming{
				Stage: model.StageValidation, Duration: time.Since(start)})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "analyze: canceled")
	}

	result.Correlation = correlation
	result.Validation = validation

	// Recommendations need both correlation and hotspot output.
	if correlation != nil && hotspots != nil {
		result.Hotspots = hotspots
		result.Grid = AnnotateClusters(joined, hotspots)
		result.Recommendations = GenerateRecommendations(hotspots, correlation,
			correlation.Overall.MeanTemp, RecommendParams{
				CorrelationThreshold: a.cfg.CorrelationThreshold,
				MinClusterSize:       a.cfg.MinClusterSize,
			})
	} else {
		result.Hotspots = hotspots
		result.Grid = joined
		result.StageErrors[model.StageRecommendation] = "skipped: requires correlation and hotspot results"
	}

	// Deterministic stage ordering in the report, not completion order.
	sortTimings(result.Timings)

	if len(result.StageErrors) == 0 {
		result.StageErrors = nil
	}
	log.Info("analysis complete",
		zap.Int("cells", len(result.Grid.Cells)),
		zap.Int("recommendations", len(result.Recommendations)),
		zap.String("status", string(result.Status())),
	)
	return result, nil
}

// Params assembles the fingerprint parameters for a run. Callers use the
// same parameters to key history records that the cache uses for artifacts.
func (a *Analyzer) Params(in AnalysisInput) cache.Params {
	b := in.Boundary.Geometry.Bound()
	return cache.Params{
		Bounds:            [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]},
		Start:             in.DateStart,
		End:               in.DateEnd,
		CloudCover:        a.cfg.CloudCoverThreshold,
		CellSizeM:         a.cfg.GridCellSizeM,
		HotspotPercentile: a.cfg.HotspotPercentile,
		MinClusterSize:    a.cfg.MinClusterSize,
		Alpha:             a.cfg.MoranAlpha,

		MinCategorySamples: a.cfg.MinCategorySamples,
		Scheme:             a.scheme.Digest(),
	}
}

func (a *Analyzer) buildGridCached(in AnalysisInput, params cache.Params) (*model.GridResult, bool, error) {
	if a.cache != nil {
		fp := params.Fingerprint(cache.KindGrid)
		if cached, ok := cache.GetJSON[model.GridResult](a.cache, cache.KindGrid, fp); ok {
			zap.L().Info("cache hit", zap.String("kind", string(cache.KindGrid)))
			return cached, true, nil
		}
	}
	grid, err := BuildGrid(in.Boundary, a.cfg.GridCellSizeM, in.Samples)
	if err != nil {
		return nil, false, err
	}
	a.storeArtifact(cache.KindGrid, params, grid)
	return grid, false, nil
}

func (a *Analyzer) joinLandUseCached(grid *model.GridResult, in AnalysisInput, params cache.Params) (*model.GridResult, bool, error) {
	if a.cache != nil {
		fp := params.Fingerprint(cache.KindLandCover)
		if cached, ok := cache.GetJSON[model.GridResult](a.cache, cache.KindLandCover, fp); ok {
			zap.L().Info("cache hit", zap.String("kind", string(cache.KindLandCover)))
			return cached, true, nil
		}
	}
	joined, err := JoinLandUse(grid, in.LandUse, a.scheme)
	if err != nil {
		return nil, false, err
	}
	a.storeArtifact(cache.KindLandCover, params, joined)
	return joined, false, nil
}

func (a *Analyzer) correlationCached(grid *model.GridResult, params cache.Params) (*model.CorrelationResult, bool, error) {
	if a.cache != nil {
		fp := params.Fingerprint(cache.KindCorrelation)
		if cached, ok := cache.GetJSON[model.CorrelationResult](a.cache, cache.KindCorrelation, fp); ok {
			zap.L().Info("cache hit", zap.String("kind", string(cache.KindCorrelation)))
			return cached, true, nil
		}
	}
	cr, err := AnalyzeCorrelation(grid, a.cfg.MinCategorySamples)
	if err != nil {
		return nil, false, err
	}
	a.storeArtifact(cache.KindCorrelation, params, cr)
	return cr, false, nil
}

func (a *Analyzer) hotspotsCached(grid *model.GridResult, params cache.Params) (*model.HotspotResult, bool, error) {
	if a.cache != nil {
		fp := params.Fingerprint(cache.KindHotspots)
		if cached, ok := cache.GetJSON[model.HotspotResult](a.cache, cache.KindHotspots, fp); ok {
			zap.L().Info("cache hit", zap.String("kind", string(cache.KindHotspots)))
			return cached, true, nil
		}
	}
	hr, err := DetectHotspots(grid, HotspotParams{
		Percentile:     a.cfg.HotspotPercentile,
		MinClusterSize: a.cfg.MinClusterSize,
		Alpha:          a.cfg.MoranAlpha,
	})
	if err != nil {
		return nil, false, err
	}
	a.storeArtifact(cache.KindHotspots, params, hr)
	return hr, false, nil
}

// storeArtifact writes a completed stage artifact to the cache. Write
// failures degrade the cache, not the analysis.
func (a *Analyzer) storeArtifact(kind cache.Kind, params cache.Params, v any) {
	if a.cache == nil {
		return
	}
	fp := params.Fingerprint(kind)
	if err := cache.PutJSON(a.cache, kind, fp, v, params); err != nil {
		zap.L().Warn("cache write failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

// stageOrder fixes report ordering of stage timings.
var stageOrder = map[string]int{
	model.StageGrid:        0,
	model.StageLandUse:     1,
	model.StageCorrelation: 2,
	model.StageHotspots:    3,
	model.StageValidation:  4,
}

func sortTimings(timings []model.StageTiming) {
	for i := 1; i < len(timings); i++ {
		for j := i; j > 0 && stageOrder[timings[j].Stage] < stageOrder[timings[j-1].Stage]; j-- {
			timings[j], timings[j-1] = timings[j-1], timings[j]
		}
	}
}
