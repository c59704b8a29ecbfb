package artifacts

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const defaultSchedule = "@hourly"

// Pruner deletes recorded rows older than a cutoff.
type Pruner interface {
	DeleteBefore(cutoff time.Time) (int64, error)
}

// RetentionConfig holds configuration for the retention sweeper.
type RetentionConfig struct {
	RetentionDays int
	Schedule      string // cron spec, defaults to @hourly
}

// Sweeper periodically removes expired uploads, results and history rows.
type Sweeper struct {
	store    *Store
	history  Pruner
	days     int
	cron     *cron.Cron
	now      func() time.Time
	stopOnce sync.Once
}

// NewSweeper creates and starts a sweeper. It returns nil when retention is
// disabled (RetentionDays <= 0). history may be nil.
func NewSweeper(store *Store, history Pruner, cfg RetentionConfig) (*Sweeper, error) {
	if cfg.RetentionDays <= 0 {
		return nil, nil
	}
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = defaultSchedule
	}

	sw := &Sweeper{
		store:   store,
		history: history,
		days:    cfg.RetentionDays,
		cron:    cron.New(),
		now:     time.Now,
	}
	if _, err := sw.cron.AddFunc(schedule, sw.RunOnce); err != nil {
		return nil, err
	}

	// Startup sweep to catch up after downtime.
	sw.RunOnce()
	sw.cron.Start()
	log.Info().Str("schedule", schedule).Int("retention_days", sw.days).Msg("retention sweeper started")
	return sw, nil
}

// RunOnce performs one sweep.
func (sw *Sweeper) RunOnce() {
	cutoff := sw.now().Add(-time.Duration(sw.days) * 24 * time.Hour)

	if sw.store != nil {
		n, err := sw.store.RemoveOlderThan(cutoff)
		if err != nil {
			log.Error().Err(err).Msg("retention: artifact sweep failed")
		}
		if n > 0 {
			log.Info().Int("files", n).Int("retention_days", sw.days).Msg("retention: removed expired artifacts")
		}
	}

	if sw.history != nil {
		rows, err := sw.history.DeleteBefore(cutoff)
		if err != nil {
			log.Error().Err(err).Msg("retention: history sweep failed")
			return
		}
		if rows > 0 {
			log.Info().Int64("rows", rows).Int("retention_days", sw.days).Msg("retention: deleted expired history")
		}
	}
}

// Stop stops the schedule and waits for a running sweep to finish.
func (sw *Sweeper) Stop() {
	sw.stopOnce.Do(func() {
		<-sw.cron.Stop().Done()
	})
}
