package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"vault-monitor/internal/alertlog"
)

// AlertsOptions configure the alerts command.
type AlertsOptions struct {
	Window time.Duration
	Limit  int
	// FromDatabase reads the PostgreSQL mirror instead of the alert log.
	FromDatabase bool
}

// Alerts prints the windowed statistics and the most recent alerts.
func (a *App) Alerts(ctx context.Context, opts AlertsOptions) error {
	if opts.Window <= 0 {
		opts.Window = a.Config.AlertLog.Window
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.FromDatabase {
		return a.alertsFromDatabase(ctx, opts.Limit)
	}

	store, err := a.openAlertLog()
	if err != nil {
		return err
	}

	entries := store.Recent(opts.Window)
	stats := alertlog.Summarize(entries)
	a.printf("window: %s  total: %d  high: %d  medium: %d  low: %d\n",
		opts.Window, stats.Total, stats.High, stats.Medium, stats.Low)
	for _, t := range sortedCounts(stats.ByType) {
		a.printf("  %s: %d\n", t, stats.ByType[t])
	}
	if len(entries) == 0 {
		a.printf("no alerts found\n")
		return nil
	}
	if len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSeverity\tType\tSubject\tMessage")
	for _, e := range entries {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.UTC().Format(time.RFC3339),
			e.Severity,
			e.Type,
			dataString(e.Data, "keeper", "vault", "provider", "subject"),
			sanitizeInline(dataString(e.Data, "message", "error")),
		)
	}
	return writer.Flush()
}

func (a *App) alertsFromDatabase(ctx context.Context, limit int) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot list mirrored alerts")
	}
	defer closeStore()

	records, err := store.ListRecentAlerts(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.printf("no alerts found\n")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSeverity\tType\tID\tData")
	for _, rec := range records {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			rec.OccurredAt.UTC().Format(time.RFC3339),
			rec.Severity,
			rec.Type,
			rec.ID,
			sanitizeInline(string(rec.Data)),
		)
	}
	return writer.Flush()
}

func dataString(data map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := data[k]; ok && v != nil {
			if s := fmt.Sprint(v); s != "" {
				return s
			}
		}
	}
	return "-"
}

func sortedCounts(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
