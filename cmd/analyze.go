package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/heatsense-cli/internal/cache"
	"github.com/sells-group/heatsense-cli/internal/geoio"
	"github.com/sells-group/heatsense-cli/internal/model"
	"github.com/sells-group/heatsense-cli/internal/uhi"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the full heat island analysis pipeline",
	Long:  "Builds the analysis grid from a boundary and thermal samples, joins land cover, and runs correlation, hotspot detection, ground validation, and recommendation generation.",
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().String("boundary", "", "boundary GeoJSON file (required)")
	analyzeCmd.Flags().String("samples", "", "thermal samples CSV with lon,lat,temperature_c (required)")
	analyzeCmd.Flags().String("landuse", "", "land-cover GeoJSON file")
	analyzeCmd.Flags().String("landuse-shp", "", "land-cover shapefile (alternative to --landuse)")
	analyzeCmd.Flags().String("code-field", "CODE_18", "shapefile attribute holding the CORINE code")
	analyzeCmd.Flags().String("stations", "", "weather stations CSV with station_id,lon,lat,temperature_c")
	analyzeCmd.Flags().String("crs", "EPSG:4326", "coordinate reference system of the inputs")
	analyzeCmd.Flags().String("preset", "", "performance preset: preview, fast, standard, detailed")
	analyzeCmd.Flags().String("start", "", "analysis period start (YYYY-MM-DD, default 30 days before end)")
	analyzeCmd.Flags().String("end", "", "analysis period end (YYYY-MM-DD, default today)")
	analyzeCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
	analyzeCmd.Flags().String("format", "json", "output format: json or geojson")
	analyzeCmd.Flags().Bool("no-cache", false, "bypass the artifact cache")
	analyzeCmd.Flags().Bool("no-store", false, "skip recording the run in history")

	_ = analyzeCmd.MarkFlagRequired("boundary")
	_ = analyzeCmd.MarkFlagRequired("samples")

	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	if preset, _ := cmd.Flags().GetString("preset"); preset != "" {
		if err := cfg.ApplyPreset(preset); err != nil {
			return err
		}
	}
	if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
		cfg.Cache.Disabled = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	if format != "json" && format != "geojson" {
		return eris.Errorf("unsupported output format: %s", format)
	}

	start, end, err := analysisPeriod(cmd)
	if err != nil {
		return err
	}

	in, err := loadInputs(cmd)
	if err != nil {
		return err
	}
	in.DateStart = start
	in.DateEnd = end

	scheme := uhi.NewLandUseScheme(cfg.LandUse.Grouped)
	if cfg.LandUse.CoefficientsFile != "" {
		if err := scheme.LoadCoefficientOverrides(cfg.LandUse.CoefficientsFile); err != nil {
			return err
		}
	}

	cacheStore, err := initCache()
	if err != nil {
		return err
	}

	analyzer := uhi.NewAnalyzer(cfg.Analysis, scheme, cacheStore)

	ctx := cmd.Context()
	if cfg.Analysis.TimeoutSecs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Analysis.TimeoutSecs)*time.Second)
		defer cancel()
	}

	result, err := analyzer.Analyze(ctx, in)
	if err != nil {
		return err
	}

	if noStore, _ := cmd.Flags().GetBool("no-store"); !noStore {
		fingerprint := analyzer.Params(in).Fingerprint(cache.KindGrid)
		if err := recordRun(ctx, result, fingerprint); err != nil {
			// History is bookkeeping; a store failure never discards results.
			zap.L().Warn("run history write failed", zap.Error(err))
		}
	}

	out, closeFn, err := outputWriter(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	return writeResult(out, result, format)
}

// analysisPeriod parses the --start/--end flags with calendar-day defaults.
func analysisPeriod(cmd *cobra.Command) (time.Time, time.Time, error) {
	startStr, _ := cmd.Flags().GetString("start")
	endStr, _ := cmd.Flags().GetString("end")

	end := time.Now().UTC().Truncate(24 * time.Hour)
	if endStr != "" {
		var err error
		end, err = time.Parse("2006-01-02", endStr)
		if err != nil {
			return time.Time{}, time.Time{}, eris.Wrapf(err, "parse --end %q", endStr)
		}
	}
	start := end.AddDate(0, 0, -30)
	if startStr != "" {
		var err error
		start, err = time.Parse("2006-01-02", startStr)
		if err != nil {
			return time.Time{}, time.Time{}, eris.Wrapf(err, "parse --start %q", startStr)
		}
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, eris.Errorf("start %s is after end %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return start, end, nil
}

// loadInputs reads boundary, samples, land use, and stations from the flag
// paths.
func loadInputs(cmd *cobra.Command) (uhi.AnalysisInput, error) {
	var in uhi.AnalysisInput

	crs, _ := cmd.Flags().GetString("crs")
	boundaryPath, _ := cmd.Flags().GetString("boundary")
	boundary, err := geoio.LoadBoundaryGeoJSON(boundaryPath, crs)
	if err != nil {
		return in, err
	}
	in.Boundary = boundary

	samplesPath, _ := cmd.Flags().GetString("samples")
	in.Samples, err = geoio.LoadSamplesCSV(samplesPath)
	if err != nil {
		return in, err
	}

	landusePath, _ := cmd.Flags().GetString("landuse")
	shpPath, _ := cmd.Flags().GetString("landuse-shp")
	switch {
	case landusePath != "" && shpPath != "":
		return in, eris.New("--landuse and --landuse-shp are mutually exclusive")
	case landusePath != "":
		in.LandUse, err = geoio.LoadLandUseGeoJSON(landusePath)
	case shpPath != "":
		codeField, _ := cmd.Flags().GetString("code-field")
		in.LandUse, err = geoio.LoadLandUseShapefile(shpPath, codeField)
	default:
		return in, eris.New("one of --landuse or --landuse-shp is required")
	}
	if err != nil {
		return in, err
	}

	if stationsPath, _ := cmd.Flags().GetString("stations"); stationsPath != "" {
		in.Stations, err = geoio.LoadStationsCSV(stationsPath)
		if err != nil {
			return in, err
		}
	}
	return in, nil
}

func recordRun(ctx context.Context, result *model.AnalysisResult, fingerprint string) error {
	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	if err := st.Migrate(ctx); err != nil {
		return err
	}
	_, err = st.RecordRun(ctx, model.RunSummary(result, fingerprint))
	return err
}

func outputWriter(cmd *cobra.Command) (io.Writer, func(), error) {
	outPath, _ := cmd.Flags().GetString("output")
	if outPath == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(outPath)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "create output %s", outPath)
	}
	return f, func() { _ = f.Close() }, nil
}

func writeResult(out io.Writer, result *model.AnalysisResult, format string) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if format == "geojson" {
		if result.Grid == nil {
			return eris.New("no grid produced, nothing to export")
		}
		return eris.Wrap(enc.Encode(result.Grid.FeatureCollection()), "encode geojson")
	}
	return eris.Wrap(enc.Encode(result), "encode result")
}
