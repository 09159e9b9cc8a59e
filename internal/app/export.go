package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"vault-monitor/internal/alertlog"
)

// ExportOptions hold parameters for exporting alert history.
type ExportOptions struct {
	Window  time.Duration
	Bucket  time.Duration
	PNGPath string
	CSVPath string
}

type alertBucket struct {
	Start  time.Time
	Total  int
	High   int
	Medium int
	Low    int
}

// Export renders alert counts per bucket as CSV and/or PNG.
func (a *App) Export(_ context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Bucket <= 0 {
		opts.Bucket = a.Config.Export.Bucket
	}
	if opts.Window <= 0 {
		opts.Window = a.Config.AlertLog.Retention
	}
	if opts.Window < 2*opts.Bucket {
		return fmt.Errorf("window %s must cover at least two %s buckets", opts.Window, opts.Bucket)
	}

	store, err := a.openAlertLog()
	if err != nil {
		return err
	}

	to := time.Now().UTC()
	from := to.Add(-opts.Window)
	buckets := bucketAlerts(store.Recent(opts.Window), from, to, opts.Bucket)
	a.Logger.Info().Int("buckets", len(buckets)).Dur("window", opts.Window).Msg("exporting alert history")

	if opts.CSVPath != "" {
		if err := writeBucketsCSV(a.resolveOutput(opts.CSVPath), buckets); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeBucketsPNG(a.resolveOutput(opts.PNGPath), buckets); err != nil {
			return err
		}
	}

	return nil
}

func (a *App) resolveOutput(path string) string {
	if filepath.IsAbs(path) || a.Config.Export.OutputDir == "" {
		return path
	}
	return filepath.Join(a.Config.Export.OutputDir, path)
}

// bucketAlerts counts entries in [from, to) per bucket. Empty buckets are kept.
func bucketAlerts(entries []alertlog.Entry, from, to time.Time, bucket time.Duration) []alertBucket {
	start := from.Truncate(bucket)
	n := int(math.Ceil(float64(to.Sub(start)) / float64(bucket)))
	if n <= 0 {
		return nil
	}
	buckets := make([]alertBucket, n)
	for i := range buckets {
		buckets[i].Start = start.Add(time.Duration(i) * bucket)
	}
	for _, e := range entries {
		if e.Timestamp.Before(from) || !e.Timestamp.Before(to) {
			continue
		}
		idx := int(e.Timestamp.Sub(start) / bucket)
		if idx < 0 || idx >= n {
			continue
		}
		b := &buckets[idx]
		b.Total++
		switch e.Severity {
		case alertlog.SeverityHigh:
			b.High++
		case alertlog.SeverityMedium:
			b.Medium++
		case alertlog.SeverityLow:
			b.Low++
		}
	}
	return buckets
}

func writeBucketsCSV(path string, buckets []alertBucket) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"bucket_ts", "total", "high", "medium", "low"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, b := range buckets {
		record := []string{
			b.Start.Format(time.RFC3339),
			strconv.Itoa(b.Total),
			strconv.Itoa(b.High),
			strconv.Itoa(b.Medium),
			strconv.Itoa(b.Low),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeBucketsPNG(path string, buckets []alertBucket) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(buckets))
	total := make([]float64, len(buckets))
	high := make([]float64, len(buckets))
	medium := make([]float64, len(buckets))
	low := make([]float64, len(buckets))

	peak := 1.0
	for i, b := range buckets {
		x[i] = b.Start
		total[i] = float64(b.Total)
		high[i] = float64(b.High)
		medium[i] = float64(b.Medium)
		low[i] = float64(b.Low)
		peak = math.Max(peak, total[i])
	}

	countFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Alerts",
			ValueFormatter: countFormatter,
			Range:          &chart.ContinuousRange{Min: 0, Max: peak},
		},
		Series: []chart.Series{
			chart.TimeSeries{Name: "Total", XValues: x, YValues: total},
			chart.TimeSeries{Name: "High", XValues: x, YValues: high},
			chart.TimeSeries{Name: "Medium", XValues: x, YValues: medium},
			chart.TimeSeries{Name: "Low", XValues: x, YValues: low},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
