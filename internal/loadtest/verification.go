package loadtest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"github.com/neighbourhoods/nh-tray/internal/domain/model"
	"github.com/neighbourhoods/nh-tray/internal/domain/types"
	"github.com/neighbourhoods/nh-tray/pkg/logger"
)

// verify renders the tray of every planned resource and compares the
// output widget with the last planned value.
func verify(ctx context.Context, client *HTTPClient, cfg Config, h hashes, want map[string]int64, stats *Stats, log logger.Logger) error {
	names := make([]string, 0, len(want))
	for name := range want {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		q := url.Values{
			"name":            {cfg.Tray},
			"resource_eh":     {model.MustHashEntry(model.KindResource, name).String()},
			"resource_def_eh": {h.resourceDef.String()},
		}
		var view types.TrayView
		if err := client.do(ctx, http.MethodGet, "/tray?"+q.Encode(), nil, &view, http.StatusOK); err != nil {
			return fmt.Errorf("failed to render tray for %s: %w", name, err)
		}
		got := outputValue(view, h.output)
		stats.Verified++
		if got != fmt.Sprint(want[name]) {
			stats.Mismatched++
			if cfg.Verbose {
				log.Warn(ctx, "output mismatch",
					logger.String("resource", name),
					logger.String("got", got),
					logger.Int64("want", want[name]))
			}
		}
	}
	if stats.Mismatched > 0 {
		return fmt.Errorf("%w: %d of %d resources", ErrMismatch, stats.Mismatched, stats.Verified)
	}
	return nil
}

func outputValue(view types.TrayView, output model.EntryHash) string {
	for _, p := range view.Pairs {
		if p.Output.DimensionEh == output {
			return p.Output.Value()
		}
	}
	return ""
}
