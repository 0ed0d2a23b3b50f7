package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"github.com/ManuelReschke/SupplierHub/internal/pkg/entitlements"
	"github.com/ManuelReschke/SupplierHub/internal/pkg/env"
)

// PendingSweeper promotes pending grants for emails that now have accounts.
type PendingSweeper interface {
	SweepPending(ctx context.Context, limit int) (int, error)
}

// StatsFlusher moves buffered webhook counters into the database.
type StatsFlusher interface {
	Flush(ctx context.Context) error
}

type Config struct {
	SweepInterval time.Duration
	SweepBatch    int
	FlushInterval time.Duration
}

// ConfigFromEnv reads PENDING_SWEEP_INTERVAL and STATS_FLUSH_INTERVAL.
func ConfigFromEnv() (Config, error) {
	sweep, err := time.ParseDuration(env.GetEnv("PENDING_SWEEP_INTERVAL", "10m"))
	if err != nil {
		return Config{}, fmt.Errorf("PENDING_SWEEP_INTERVAL: %w", err)
	}
	flush, err := time.ParseDuration(env.GetEnv("STATS_FLUSH_INTERVAL", "1m"))
	if err != nil {
		return Config{}, fmt.Errorf("STATS_FLUSH_INTERVAL: %w", err)
	}
	return Config{SweepInterval: sweep, SweepBatch: entitlements.DefaultSweepBatch, FlushInterval: flush}, nil
}

// Scheduler runs the periodic maintenance jobs.
type Scheduler struct {
	sched gocron.Scheduler
}

// Start registers the jobs and starts the scheduler. A nil flusher skips
// the stats job.
func Start(cfg Config, sweeper PendingSweeper, flusher StatsFlusher) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	// Every SweepInterval: promote pending grants
	if _, err := sched.NewJob(
		gocron.DurationJob(cfg.SweepInterval),
		gocron.NewTask(func() {
			n, err := sweeper.SweepPending(context.Background(), cfg.SweepBatch)
			if err != nil {
				log.Error().Err(err).Int("promoted", n).Msg("[Scheduler] pending sweep failed")
				return
			}
			if n > 0 {
				log.Info().Int("promoted", n).Msg("[Scheduler] pending grants promoted")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("pending-entitlement-sweep"),
	); err != nil {
		return nil, err
	}

	if flusher != nil {
		if _, err := sched.NewJob(
			gocron.DurationJob(cfg.FlushInterval),
			gocron.NewTask(func() {
				if err := flusher.Flush(context.Background()); err != nil {
					log.Error().Err(err).Msg("[Scheduler] webhook stats flush failed")
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithName("webhook-stats-flush"),
		); err != nil {
			return nil, err
		}
	}

	sched.Start()
	return &Scheduler{sched: sched}, nil
}

// Shutdown stops the scheduler and waits for running jobs.
func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}
