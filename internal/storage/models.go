package storage

import (
	"encoding/json"
	"time"
)

// AlertRecord is the relational mirror of one alert log entry.
type AlertRecord struct {
	ID         string
	Type       string
	Severity   string
	Data       json.RawMessage
	OccurredAt time.Time
	CreatedAt  time.Time
}

// DashboardSnapshot is the persisted summary of one scheduled dashboard.
type DashboardSnapshot struct {
	Network     string
	Bucket      time.Time
	BlockNumber *int64
	VaultCount  int
	ErrorCount  int
	AlertCount  int
	Payload     json.RawMessage
	CreatedAt   time.Time
}
