package geoio

import (
	"math"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/heatsense-cli/internal/uhi"
)

// sampleRow is the CSV layout for thermal surface samples.
type sampleRow struct {
	Lon          float64 `csv:"lon"`
	Lat          float64 `csv:"lat"`
	TemperatureC float64 `csv:"temperature_c"`
}

// stationRow is the CSV layout for ground weather station readings.
type stationRow struct {
	StationID    string  `csv:"station_id"`
	Lon          float64 `csv:"lon"`
	Lat          float64 `csv:"lat"`
	TemperatureC float64 `csv:"temperature_c"`
}

// LoadSamplesCSV reads thermal samples from a CSV with lon, lat and
// temperature_c columns. Rows with non-finite values are skipped with a
// warning.
func LoadSamplesCSV(path string) ([]uhi.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geoio: open samples %s", path)
	}
	defer f.Close() //nolint:errcheck

	var rows []sampleRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, eris.Wrapf(err, "geoio: parse samples %s", path)
	}

	samples := make([]uhi.Sample, 0, len(rows))
	skipped := 0
	for _, r := range rows {
		if !finite(r.Lon, r.Lat, r.TemperatureC) {
			skipped++
			continue
		}
		samples = append(samples, uhi.Sample{
			Point:        orb.Point{r.Lon, r.Lat},
			TemperatureC: r.TemperatureC,
		})
	}
	if skipped > 0 {
		zap.L().Warn("sample rows skipped", zap.String("path", path), zap.Int("skipped", skipped))
	}
	zap.L().Info("samples loaded", zap.String("path", path), zap.Int("samples", len(samples)))
	return samples, nil
}

// LoadStationsCSV reads station readings from a CSV with station_id, lon,
// lat and temperature_c columns. Rows with empty ids or non-finite values
// are skipped with a warning.
func LoadStationsCSV(path string) ([]uhi.Station, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geoio: open stations %s", path)
	}
	defer f.Close() //nolint:errcheck

	var rows []stationRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, eris.Wrapf(err, "geoio: parse stations %s", path)
	}

	stations := make([]uhi.Station, 0, len(rows))
	skipped := 0
	for _, r := range rows {
		if r.StationID == "" || !finite(r.Lon, r.Lat, r.TemperatureC) {
			skipped++
			continue
		}
		stations = append(stations, uhi.Station{
			ID:           r.StationID,
			Point:        orb.Point{r.Lon, r.Lat},
			TemperatureC: r.TemperatureC,
		})
	}
	if skipped > 0 {
		zap.L().Warn("station rows skipped", zap.String("path", path), zap.Int("skipped", skipped))
	}
	zap.L().Info("stations loaded", zap.String("path", path), zap.Int("stations", len(stations)))
	return stations, nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
