package kline

import (
	"github.com/rs/zerolog"
)

// PurgeJob removes expired bars from every dataset. It should be scheduled
// to run daily.
type PurgeJob struct {
	manager *Manager
	log     zerolog.Logger
}

// NewPurgeJob creates the expired-bar purge job.
func NewPurgeJob(manager *Manager, log zerolog.Logger) *PurgeJob {
	return &PurgeJob{
		manager: manager,
		log:     log.With().Str("job", "kline_purge").Logger(),
	}
}

// Run executes the purge, removing stale bars that carry a fetch time.
func (j *PurgeJob) Run() error {
	removed, err := j.manager.PurgeExpired()
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to purge expired bars")
		return err
	}

	if removed > 0 {
		j.log.Info().Int64("total_removed", removed).Msg("Kline purge completed")
	}

	return nil
}

// Name returns the job name for scheduling and logging.
func (j *PurgeJob) Name() string {
	return "kline_purge"
}

// CheckpointJob forces WAL checkpoints on all dataset files so the WAL never
// grows unbounded on long-running instances.
type CheckpointJob struct {
	manager *Manager
	log     zerolog.Logger
}

// NewCheckpointJob creates the WAL checkpoint maintenance job.
func NewCheckpointJob(manager *Manager, log zerolog.Logger) *CheckpointJob {
	return &CheckpointJob{
		manager: manager,
		log:     log.With().Str("job", "kline_wal_checkpoint").Logger(),
	}
}

// Run executes the checkpoint across all datasets.
func (j *CheckpointJob) Run() error {
	if err := j.manager.CheckpointAll(); err != nil {
		j.log.Error().Err(err).Msg("WAL checkpoint failed")
		return err
	}
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CheckpointJob) Name() string {
	return "kline_wal_checkpoint"
}
