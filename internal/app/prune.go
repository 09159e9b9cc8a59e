package app

import (
	"context"
	"time"
)

// Prune trims the alert and metrics logs, and the PostgreSQL mirror when configured.
// A negative retention selects the configured default; zero keeps nothing.
func (a *App) Prune(ctx context.Context, retention time.Duration) error {
	if retention < 0 {
		retention = a.Config.AlertLog.Retention
	}

	store, err := a.openAlertLog()
	if err != nil {
		return err
	}
	store.Prune(retention)

	mirror, closeMirror, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if mirror == nil {
		return nil
	}
	defer closeMirror()

	cutoff := time.Now().UTC().Add(-retention)
	alerts, err := mirror.DeleteAlertsBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	snaps, err := mirror.DeleteSnapshotsBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	a.Logger.Info().Int64("alerts", alerts).Int64("snapshots", snaps).Time("cutoff", cutoff).Msg("database mirror pruned")
	return nil
}
