// Package keeper derives health metrics and alerts from Chainlink Automation upkeep state.
package keeper

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"vault-monitor/internal/alertlog"
)

// AlertType enumerates the alert kinds raised for keepers.
type AlertType string

const (
	AlertLowBalance      AlertType = "low_balance"
	AlertMissedExecution AlertType = "missed_execution"
	AlertLowSuccessRate  AlertType = "low_success_rate"
	AlertHighCost        AlertType = "high_cost"
	AlertPaused          AlertType = "paused"
	AlertKeeperError     AlertType = "KEEPER_ERROR"
)

// StatusPaused is the upkeep status reported for a paused keeper.
const StatusPaused = "paused"

var hundred = decimal.NewFromInt(100)

// Upkeep is the raw automation state for one keeper.
type Upkeep struct {
	Status         string          `json:"status"`
	LastRun        *time.Time      `json:"lastRun"`
	NextRun        *time.Time      `json:"nextRun"`
	Balance        string          `json:"balance"`
	TotalSpent     string          `json:"totalSpent"`
	GasLimit       string          `json:"gasLimit"`
	GasPrice       string          `json:"gasPrice"`
	TriggerType    string          `json:"triggerType"`
	ExecutionCount int64           `json:"executionCount"`
	SuccessCount   int64           `json:"successCount"`
	FailureCount   int64           `json:"failureCount"`
	Raw            json.RawMessage `json:"-"`
}

// Metrics are the derived keeper health figures, rendered as fixed-point strings.
type Metrics struct {
	UptimeMinutes  int64  `json:"uptime"`
	Performance    string `json:"performance"`
	CostEfficiency string `json:"costEfficiency"`
	SuccessRate    string `json:"successRate"`
	ExecutionCount int64  `json:"executionCount"`
}

// Alert is a triggered keeper condition.
type Alert struct {
	Type      AlertType         `json:"type"`
	Message   string            `json:"message"`
	Severity  alertlog.Severity `json:"severity"`
	Timestamp time.Time         `json:"timestamp"`
}

// Thresholds parameterise the alert predicates.
type Thresholds struct {
	MinBalance           decimal.Decimal
	MissedExecutionAfter time.Duration
	MinSuccessRate       decimal.Decimal
	MaxCostPerExecution  decimal.Decimal
}

// DefaultThresholds mirrors the production alerting limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinBalance:           decimal.RequireFromString("0.1"),
		MissedExecutionAfter: 2 * time.Hour,
		MinSuccessRate:       decimal.NewFromInt(90),
		MaxCostPerExecution:  decimal.RequireFromString("0.01"),
	}
}

type derived struct {
	successRate    decimal.Decimal
	performance    decimal.Decimal
	costEfficiency decimal.Decimal
}

// Evaluate computes metrics and alerts for u as of now. Identical inputs yield identical outputs.
func Evaluate(u Upkeep, now time.Time, th Thresholds) (Metrics, []Alert) {
	d := derive(u)

	metrics := Metrics{
		UptimeMinutes:  uptimeMinutes(u.LastRun, now),
		Performance:    d.performance.StringFixed(2),
		CostEfficiency: d.costEfficiency.StringFixed(6),
		SuccessRate:    d.successRate.StringFixed(2),
		ExecutionCount: u.ExecutionCount,
	}

	return metrics, checkAlerts(u, d, now, th)
}

func derive(u Upkeep) derived {
	successRate := hundred
	if u.ExecutionCount > 0 {
		successRate = decimal.NewFromInt(u.SuccessCount).
			Div(decimal.NewFromInt(u.ExecutionCount)).
			Mul(hundred)
	}
	successRate = successRate.Round(2)

	cost := decimal.Zero
	if u.SuccessCount > 0 {
		if spent, err := decimal.NewFromString(u.TotalSpent); err == nil {
			cost = spent.Div(decimal.NewFromInt(u.SuccessCount))
		}
	}

	// performance shares the success-rate formula; both fields are kept for API compatibility.
	return derived{
		successRate:    successRate,
		performance:    successRate,
		costEfficiency: cost.Round(6),
	}
}

func uptimeMinutes(lastRun *time.Time, now time.Time) int64 {
	if lastRun == nil || lastRun.IsZero() {
		return 0
	}
	elapsed := now.Sub(*lastRun)
	if elapsed < 0 {
		return 0
	}
	return int64(elapsed / time.Minute)
}

func checkAlerts(u Upkeep, d derived, now time.Time, th Thresholds) []Alert {
	alerts := make([]Alert, 0)
	raise := func(t AlertType, sev alertlog.Severity, msg string) {
		alerts = append(alerts, Alert{Type: t, Message: msg, Severity: sev, Timestamp: now})
	}

	// An unparsable balance is not evidence of a low one.
	if balance, err := decimal.NewFromString(u.Balance); err == nil && balance.LessThan(th.MinBalance) {
		raise(AlertLowBalance, alertlog.SeverityHigh, fmt.Sprintf("Low balance: %s ETH", u.Balance))
	}

	if u.LastRun != nil && !u.LastRun.IsZero() {
		since := now.Sub(*u.LastRun)
		if since > th.MissedExecutionAfter {
			raise(AlertMissedExecution, alertlog.SeverityMedium, fmt.Sprintf("No execution in %.1f hours", since.Hours()))
		}
	}

	if d.successRate.LessThan(th.MinSuccessRate) {
		raise(AlertLowSuccessRate, alertlog.SeverityMedium, fmt.Sprintf("Low success rate: %s%%", d.successRate.StringFixed(2)))
	}

	if d.costEfficiency.GreaterThan(th.MaxCostPerExecution) {
		raise(AlertHighCost, alertlog.SeverityLow, fmt.Sprintf("High cost per execution: %s ETH", d.costEfficiency.StringFixed(6)))
	}

	if u.Status == StatusPaused {
		raise(AlertPaused, alertlog.SeverityHigh, "Keeper is paused")
	}

	return alerts
}
