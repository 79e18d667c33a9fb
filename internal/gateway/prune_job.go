package gateway

import (
	"time"

	"github.com/rs/zerolog"
)

// PruneJob drops idle rate limit records and expired edge cache entries.
type PruneJob struct {
	limiter *Limiter
	cache   *EdgeCache
	maxIdle time.Duration
	log     zerolog.Logger
}

// NewPruneJob creates the gateway maintenance job. maxIdle is how long a
// client may be silent before its rate limit record is dropped.
func NewPruneJob(limiter *Limiter, cache *EdgeCache, maxIdle time.Duration, log zerolog.Logger) *PruneJob {
	return &PruneJob{
		limiter: limiter,
		cache:   cache,
		maxIdle: maxIdle,
		log:     log.With().Str("job", "gateway_prune").Logger(),
	}
}

// Run prunes both in-memory structures.
func (j *PruneJob) Run() error {
	clients := j.limiter.Prune(j.maxIdle)
	entries := j.cache.PruneExpired()
	if clients > 0 || entries > 0 {
		j.log.Info().
			Int("clients", clients).
			Int("cache_entries", entries).
			Msg("Pruned gateway state")
	}
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *PruneJob) Name() string {
	return "gateway_prune"
}
