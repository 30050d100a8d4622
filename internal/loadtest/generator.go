package loadtest

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
)

// generatePlan spreads n assessments over the resources of one run.
// Resource names carry a run id so earlier runs never affect verification.
func generatePlan(cfg Config, rng *rand.Rand) []Step {
	run := uuid.NewString()[:8]
	names := make([]string, cfg.Resources)
	for i := range names {
		names[i] = fmt.Sprintf("load-%s-%d", run, i)
	}
	span := cfg.Max - cfg.Min + 1
	plan := make([]Step, cfg.Assessments)
	for i := range plan {
		plan[i] = Step{
			Resource: names[rng.IntN(len(names))],
			Value:    cfg.Min + rng.Int64N(span),
		}
	}
	return plan
}

// shard splits the plan by resource so each resource is written by one
// worker in plan order. The last planned value per resource is then the
// one the store keeps.
func shard(plan []Step, workers int) [][]Step {
	index := make(map[string]int)
	shards := make([][]Step, workers)
	for _, s := range plan {
		w, ok := index[s.Resource]
		if !ok {
			w = len(index) % workers
			index[s.Resource] = w
		}
		shards[w] = append(shards[w], s)
	}
	return shards
}

// expected returns the last planned value per resource.
func expected(plan []Step) map[string]int64 {
	out := make(map[string]int64)
	for _, s := range plan {
		out[s.Resource] = s.Value
	}
	return out
}
