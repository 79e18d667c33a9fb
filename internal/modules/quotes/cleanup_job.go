package quotes

import (
	"github.com/rs/zerolog"
)

// CleanupJob removes expired rows from the sqlite quote cache. Scheduled to
// run periodically by the cron scheduler.
type CleanupJob struct {
	store *SQLiteStore
	log   zerolog.Logger
}

// NewCleanupJob creates a cleanup job over store.
func NewCleanupJob(store *SQLiteStore, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		store: store,
		log:   log.With().Str("job", "quote_cache_cleanup").Logger(),
	}
}

// Run deletes expired cache rows.
func (j *CleanupJob) Run() error {
	deleted, err := j.store.DeleteExpired()
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete expired quote cache entries")
		return err
	}
	if deleted > 0 {
		j.log.Info().
			Int64("deleted", deleted).
			Msg("Cleaned up expired quote cache entries")
	}
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "quote_cache_cleanup"
}
