// Package alertlog keeps the append-only, line-delimited JSON alert and metrics logs.
package alertlog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	alertsFile  = "alerts.log"
	metricsFile = "metrics.log"

	// DefaultWindow is the query window used when none is given.
	DefaultWindow = 24 * time.Hour
	// DefaultRetention bounds how long pruned logs keep entries.
	DefaultRetention = 7 * 24 * time.Hour
)

// Store owns the alert and metrics log files. Writes are serialized; reads tolerate a torn last line.
type Store struct {
	dir         string
	alertsPath  string
	metricsPath string
	logger      zerolog.Logger
	now         func() time.Time

	mu sync.Mutex
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open prepares dir for the two log files.
func Open(dir string, logger zerolog.Logger, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("alert log directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create alert log dir: %w", err)
	}
	s := &Store{
		dir:         dir,
		alertsPath:  filepath.Join(dir, alertsFile),
		metricsPath: filepath.Join(dir, metricsFile),
		logger:      logger.With().Str("component", "alert_log").Logger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the log directory.
func (s *Store) Dir() string {
	return s.dir
}

// Append records one alert. An empty severity defaults to medium.
func (s *Store) Append(alertType string, data map[string]interface{}, severity Severity) Entry {
	entry := s.normalize(Entry{
		Type:     alertType,
		Severity: severity,
		Data:     data,
	})
	_ = s.Publish(context.Background(), entry)
	return entry
}

// Publish writes entry to the alert log and mirrors an "alert" line into the metrics log.
// Failures are logged, not returned, so that alerting never breaks an aggregation pass.
func (s *Store) Publish(_ context.Context, entry Entry) error {
	entry = s.normalize(entry)

	if err := s.appendLine(s.alertsPath, entry); err != nil {
		s.logger.Error().Err(err).Str("alert_type", entry.Type).Msg("failed to append alert")
		return nil
	}
	s.LogMetric("alert", map[string]interface{}{
		"alertType": entry.Type,
		"severity":  entry.Severity,
		"timestamp": entry.Timestamp,
	})
	return nil
}

// LogMetric appends a general metrics line.
func (s *Store) LogMetric(metricType string, data map[string]interface{}) {
	line := metricLine{Timestamp: s.now().UTC(), MetricType: metricType, Data: data}
	if err := s.appendLine(s.metricsPath, line); err != nil {
		s.logger.Error().Err(err).Str("metric_type", metricType).Msg("failed to append metric")
	}
}

func (s *Store) normalize(entry Entry) Entry {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	entry.Timestamp = entry.Timestamp.UTC()
	if entry.Severity == "" {
		entry.Severity = SeverityMedium
	}
	return entry
}

func (s *Store) appendLine(path string, v interface{}) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal log line: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	torn, err := endsTorn(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("inspect %s: %w", filepath.Base(path), err)
	}
	if torn {
		// Terminate the fragment left by an interrupted write so the new line stays parseable.
		line = append([]byte{'\n'}, line...)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// endsTorn reports whether f is non-empty and lacks a trailing newline.
func endsTorn(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}

// Recent returns alerts newer than now-window, newest first.
func (s *Store) Recent(window time.Duration) []Entry {
	if window <= 0 {
		window = DefaultWindow
	}
	cutoff := s.now().Add(-window)

	entries := make([]Entry, 0)
	for _, line := range s.readLines(s.alertsPath) {
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil || e.Timestamp.IsZero() {
			continue
		}
		if e.Timestamp.After(cutoff) {
			entries = append(entries, e)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries
}

// Stats summarises Recent(window).
func (s *Store) Stats(window time.Duration) Stats {
	return Summarize(s.Recent(window))
}

// Prune rewrites both logs keeping only lines newer than now-retention.
func (s *Store) Prune(retention time.Duration) {
	if retention < 0 {
		retention = DefaultRetention
	}
	cutoff := s.now().Add(-retention)

	for _, path := range []string{s.alertsPath, s.metricsPath} {
		kept, dropped, err := s.pruneFile(path, cutoff)
		if err != nil {
			s.logger.Error().Err(err).Str("file", filepath.Base(path)).Msg("failed to prune log")
			continue
		}
		s.logger.Info().Str("file", filepath.Base(path)).Int("kept", kept).Int("dropped", dropped).Msg("log pruned")
	}
}

func (s *Store) pruneFile(path string, cutoff time.Time) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return 0, 0, nil
	}

	lines := s.readLines(path)
	var buf bytes.Buffer
	kept := 0
	for _, line := range lines {
		var stamp struct {
			Timestamp time.Time `json:"timestamp"`
		}
		if err := json.Unmarshal(line, &stamp); err != nil || !stamp.Timestamp.After(cutoff) {
			continue
		}
		buf.Write(line)
		buf.WriteByte('\n')
		kept++
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return 0, 0, fmt.Errorf("write pruned log: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, 0, fmt.Errorf("replace log: %w", err)
	}
	return kept, len(lines) - kept, nil
}

func (s *Store) readLines(path string) [][]byte {
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error().Err(err).Str("file", filepath.Base(path)).Msg("failed to read log")
		}
		return nil
	}
	defer f.Close()

	lines := make([][]byte, 0)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		lines = append(lines, []byte(text))
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn().Err(err).Str("file", filepath.Base(path)).Msg("log read stopped early")
	}
	return lines
}
