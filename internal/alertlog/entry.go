package alertlog

import (
	"time"
)

// Severity ranks alerts for aggregation and display.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Entry is one immutable line of the alert log.
type Entry struct {
	ID        string                 `json:"id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Type      string                 `json:"type"`
	Severity  Severity               `json:"severity"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Stats aggregates entries of a time window.
type Stats struct {
	Total  int            `json:"total"`
	High   int            `json:"high"`
	Medium int            `json:"medium"`
	Low    int            `json:"low"`
	ByType map[string]int `json:"byType"`
}

// Summarize counts entries by severity and type.
func Summarize(entries []Entry) Stats {
	stats := Stats{Total: len(entries), ByType: make(map[string]int)}
	for _, e := range entries {
		switch e.Severity {
		case SeverityHigh:
			stats.High++
		case SeverityMedium:
			stats.Medium++
		case SeverityLow:
			stats.Low++
		}
		stats.ByType[e.Type]++
	}
	return stats
}

type metricLine struct {
	Timestamp  time.Time              `json:"timestamp"`
	MetricType string                 `json:"metricType"`
	Data       map[string]interface{} `json:"data,omitempty"`
}
