package rangehttp

import (
	"github.com/rs/zerolog/log"
	"github.com/tanq16/segfetch/internal/utils"
)

// PlanChunks splits contentLength bytes into workers contiguous ranges.
// The remainder of the division goes entirely to the first range.
func PlanChunks(contentLength int64, workers int) ([]utils.ChunkPlan, error) {
	if workers < 1 || contentLength < 0 {
		return nil, &InvalidPlanError{ContentLength: contentLength, Workers: workers}
	}
	quotient := contentLength / int64(workers)
	remainder := contentLength % int64(workers)

	plans := make([]utils.ChunkPlan, workers)
	plans[0] = utils.ChunkPlan{Index: 0, Offset: 0, Length: quotient + remainder}
	for i := 1; i < workers; i++ {
		prev := plans[i-1]
		plans[i] = utils.ChunkPlan{
			Index:  i,
			Offset: prev.Offset + prev.Length,
			Length: quotient,
		}
	}
	for _, p := range plans {
		log.Debug().Str("op", "http/planner").Int("index", p.Index).Int64("offset", p.Offset).Int64("length", p.Length).Msg("chunk planned")
	}
	return plans, nil
}
