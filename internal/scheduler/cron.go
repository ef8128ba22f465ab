package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// CronRunner runs named jobs on standard five-field cron specs in UTC.
type CronRunner struct {
	cron    *cron.Cron
	logger  zerolog.Logger
	baseCtx context.Context
}

// NewCronRunner builds a runner whose jobs receive baseCtx.
func NewCronRunner(baseCtx context.Context, logger zerolog.Logger) *CronRunner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	l := logger.With().Str("component", "cron").Logger()
	return &CronRunner{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{l})),
		),
		logger:  l,
		baseCtx: baseCtx,
	}
}

// Add registers job under spec. An empty spec leaves the job unscheduled.
func (r *CronRunner) Add(name, spec string, job func(context.Context)) error {
	if spec == "" {
		r.logger.Info().Str("job", name).Msg("job disabled")
		return nil
	}
	if _, err := r.cron.AddFunc(spec, func() { job(r.baseCtx) }); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	r.logger.Info().Str("job", name).Str("spec", spec).Msg("job scheduled")
	return nil
}

// Entries reports how many jobs are scheduled.
func (r *CronRunner) Entries() int {
	return len(r.cron.Entries())
}

func (r *CronRunner) Start() {
	r.logger.Info().Msg("cron started")
	r.cron.Start()
}

// Stop waits for running jobs to finish.
func (r *CronRunner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info().Msg("cron stopped")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
