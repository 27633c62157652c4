package reclaim

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const DefaultSchedule = "@every 5m"

// Scheduler runs Reclaim on a cron schedule. A run that is still going
// when the next one is due causes that tick to be skipped.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	baseCtx context.Context
}

type SchedulerConfig struct {
	Schedule     string
	GraceMinutes int
	// RunTimeout bounds a single run.
	RunTimeout time.Duration
}

func NewScheduler(r *Reclaimer, logger *slog.Logger, cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = time.Minute
	}
	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		baseCtx: context.Background(),
	}
	_, err := s.cron.AddFunc(cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(s.baseCtx, cfg.RunTimeout)
		defer cancel()
		if _, err := r.Reclaim(ctx, cfg.GraceMinutes); err != nil {
			logger.Error("scheduled reclaim failed", "err", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("reclaim schedule %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

// Run blocks until ctx is done, then waits for an in-flight run to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.baseCtx = ctx
	s.cron.Start()
	s.logger.Info("reclaim scheduler started")
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("reclaim scheduler stopped")
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
