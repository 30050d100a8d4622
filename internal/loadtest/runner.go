package loadtest

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neighbourhoods/nh-tray/internal/domain/model"
	"github.com/neighbourhoods/nh-tray/internal/domain/types"
	"github.com/neighbourhoods/nh-tray/pkg/logger"
)

// ErrMismatch is returned when a rendered output differs from the value
// the plan implies.
var ErrMismatch = errors.New("rendered output mismatch")

// Run executes a complete load test.
func Run(ctx context.Context, cfg Config) (*Stats, error) {
	return run(ctx, cfg, rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)))
}

func run(ctx context.Context, cfg Config, rng *rand.Rand) (*Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.OrGlobal(nil).Named("loadtest")
	stats := &Stats{StartTime: time.Now()}
	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting tray load test",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("resources", cfg.Resources),
		logger.Int("assessments", cfg.Assessments),
		logger.Int("workers", cfg.Workers))

	if err := client.do(ctx, http.MethodGet, "/healthz", nil, nil, http.StatusOK); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}
	h, err := resolveHashes(ctx, client, cfg)
	if err != nil {
		return stats, err
	}

	plan := generatePlan(cfg, rng)
	stats.Planned = len(plan)
	submit(ctx, client, h, shard(plan, cfg.Workers), stats)
	if stats.Failed > 0 {
		log.Warn(ctx, "some assessments failed", logger.Int("failed", stats.Failed))
	}

	err = verify(ctx, client, cfg, h, expected(plan), stats, log)

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	log.Info(ctx, "final statistics",
		logger.Int("planned", stats.Planned),
		logger.Int("submitted", stats.Submitted),
		logger.Int("successful", stats.Successful),
		logger.Int("failed", stats.Failed),
		logger.Int("verified", stats.Verified),
		logger.Int("mismatched", stats.Mismatched),
		logger.Duration("duration", stats.Duration))
	return stats, err
}

// resolveHashes reads the seeded names and picks the ones the run needs.
func resolveHashes(ctx context.Context, client *HTTPClient, cfg Config) (hashes, error) {
	var names types.Names
	if err := client.do(ctx, http.MethodGet, "/names", nil, &names, http.StatusOK); err != nil {
		return hashes{}, fmt.Errorf("failed to read names: %w", err)
	}
	h := hashes{
		resourceDef: names.ResourceDefs[cfg.ResourceDef],
		dimension:   names.Dimensions[cfg.Dimension],
		output:      names.Dimensions[cfg.Output],
	}
	if h.resourceDef.IsZero() || h.dimension.IsZero() || h.output.IsZero() {
		return hashes{}, fmt.Errorf("service does not know %q, %q or %q", cfg.ResourceDef, cfg.Dimension, cfg.Output)
	}
	return h, nil
}

// submit posts every shard on its own worker.
func submit(ctx context.Context, client *HTTPClient, h hashes, shards [][]Step, stats *Stats) {
	var submitted, successful, failed atomic.Int64
	var wg sync.WaitGroup
	for _, steps := range shards {
		wg.Add(1)
		go func(steps []Step) {
			defer wg.Done()
			for _, s := range steps {
				if ctx.Err() != nil {
					return
				}
				submitted.Add(1)
				in := model.CreateAssessmentInput{
					Value:         model.IntegerValue(s.Value),
					DimensionEh:   h.dimension,
					ResourceEh:    model.MustHashEntry(model.KindResource, s.Resource),
					ResourceDefEh: h.resourceDef,
				}
				if err := client.do(ctx, http.MethodPost, "/assessments", in, nil, http.StatusCreated); err != nil {
					failed.Add(1)
					continue
				}
				successful.Add(1)
			}
		}(steps)
	}
	wg.Wait()
	stats.Submitted = int(submitted.Load())
	stats.Successful = int(successful.Load())
	stats.Failed = int(failed.Load())
}
