package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"vault-monitor/internal/monitor"
)

// ViewDashboard selects the combined dashboard in Snapshot.
const ViewDashboard = "dashboard"

// SnapshotOptions configure the snapshot command.
type SnapshotOptions struct {
	View string
}

// Snapshot runs one pass of the requested view on the active network and prints it as JSON.
func (a *App) Snapshot(ctx context.Context, opts SnapshotOptions) error {
	view := strings.ToLower(strings.TrimSpace(opts.View))
	if view == "" {
		view = ViewDashboard
	}

	d, err := a.open(ctx, []string{a.Config.Network})
	if err != nil {
		return err
	}
	defer d.close()

	nc := d.selector.Current()
	var out interface{}
	switch view {
	case ViewDashboard:
		out, err = d.engine.Dashboard(ctx, nc)
	case monitor.ViewVaults:
		out, err = d.engine.Vaults(ctx, nc)
	case monitor.ViewProviders:
		out, err = d.engine.Providers(ctx, nc)
	case monitor.ViewAPY:
		out, err = d.engine.APY(ctx, nc)
	case monitor.ViewKeepers:
		out, err = d.engine.Keepers(ctx, nc)
	case monitor.ViewNetwork:
		out = d.engine.NetworkInfo(ctx, nc)
	case monitor.ViewAlerts:
		out = d.engine.AlertSummary()
	default:
		return fmt.Errorf("unknown view %q", opts.View)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
