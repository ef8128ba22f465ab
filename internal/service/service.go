// Package service runs the engine's background work: the notification drain loop and the
// cron-scheduled batch jobs, each guarded by a postgres advisory lock.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"flight-deals/internal/config"
	"flight-deals/internal/deals"
	"flight-deals/internal/fetcher"
	"flight-deals/internal/ingest"
	"flight-deals/internal/metrics"
	"flight-deals/internal/scheduler"
	"flight-deals/internal/storage"
)

// Job names.
const (
	JobDrain      = "drain"
	JobIngest     = "ingest"
	JobSweep      = "sweep"
	JobAnalyze    = "analyze"
	JobReevaluate = "reevaluate"
	JobDigest     = "digest"
)

// lockOffsets spread jobs over distinct advisory lock keys so they do not block each other.
var lockOffsets = map[string]int64{
	JobDrain:      0,
	JobIngest:     1,
	JobSweep:      2,
	JobAnalyze:    3,
	JobReevaluate: 4,
	JobDigest:     5,
}

// ErrUnknownJob is returned by RunJob for names outside the job table.
var ErrUnknownJob = errors.New("unknown job")

// Detector is the detection work the service schedules.
type Detector interface {
	AnalyzeRecentFlights(ctx context.Context) (deals.BatchSummary, error)
	ReevaluateExistingDeals(ctx context.Context) (deals.BatchSummary, error)
	PurgeExpiredDeals(ctx context.Context) (int64, error)
}

// Dispatcher is the delivery work the service schedules.
type Dispatcher interface {
	DrainPending(ctx context.Context, batchSize int) (int, error)
	SendWeeklyDigest(ctx context.Context) (int, error)
}

// Ingester records scraped fares.
type Ingester interface {
	ScrapeRoutes(ctx context.Context, src fetcher.Source, routes []string, horizonDays int) (ingest.Summary, error)
}

// Deps are the collaborators a Service drives. Source may be nil to disable scraping.
type Deps struct {
	Scheduler  *scheduler.Scheduler
	Cron       *scheduler.CronRunner
	Detector   Detector
	Dispatcher Dispatcher
	Ingester   Ingester
	Source     fetcher.Source
	Locker     storage.AdvisoryLocker
	Metrics    *metrics.Metrics
}

// Service orchestrates scheduled detection, delivery and ingestion.
type Service struct {
	deps    Deps
	cfg     *config.Config
	logger  zerolog.Logger
	lockKey int64
	jobs    map[string]func(ctx context.Context) error
}

// New constructs the service.
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) *Service {
	s := &Service{
		deps:    deps,
		cfg:     cfg,
		logger:  logger.With().Str("component", "service").Logger(),
		lockKey: cfg.Scheduler.AdvisoryLockKey,
	}
	s.jobs = map[string]func(ctx context.Context) error{
		JobDrain:      s.drain,
		JobIngest:     s.ingest,
		JobSweep:      s.sweep,
		JobAnalyze:    s.analyze,
		JobReevaluate: s.reevaluate,
		JobDigest:     s.digest,
	}
	return s
}

// Jobs lists the job names RunJob accepts.
func Jobs() []string {
	names := make([]string, 0, len(lockOffsets))
	for name := range lockOffsets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run schedules the cron jobs and blocks in the drain loop until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.deps.Scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}

	if s.deps.Cron != nil {
		specs := []struct{ name, spec string }{
			{JobIngest, s.cfg.Jobs.Ingest},
			{JobSweep, s.cfg.Jobs.Sweep},
			{JobAnalyze, s.cfg.Jobs.Analyze},
			{JobReevaluate, s.cfg.Jobs.Reevaluate},
			{JobDigest, s.cfg.Jobs.Digest},
		}
		for _, j := range specs {
			name := j.name
			if err := s.deps.Cron.Add(name, j.spec, func(ctx context.Context) { s.runLogged(ctx, name) }); err != nil {
				return err
			}
		}
		s.deps.Cron.Start()
		defer s.deps.Cron.Stop()
	}

	return s.deps.Scheduler.Run(ctx, func(ctx context.Context, _ time.Time) error {
		return s.RunJob(ctx, JobDrain)
	})
}

func (s *Service) runLogged(ctx context.Context, name string) {
	if err := s.RunJob(ctx, name); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error().Err(err).Str("job", name).Msg("scheduled job failed")
	}
}

// RunJob executes one job under its advisory lock. A job whose lock is held elsewhere is
// skipped without error.
func (s *Service) RunJob(ctx context.Context, name string) error {
	job, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}

	start := time.Now()
	unlock, proceed, err := s.acquireLock(ctx, name)
	if err != nil {
		s.deps.Metrics.JobFinished(name, "error", time.Since(start))
		return err
	}
	if !proceed {
		s.logger.Debug().Str("job", name).Msg("skip job because advisory lock held elsewhere")
		s.deps.Metrics.JobFinished(name, "skipped", time.Since(start))
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	if err := job(ctx); err != nil {
		s.deps.Metrics.JobFinished(name, "error", time.Since(start))
		return fmt.Errorf("%s: %w", name, err)
	}
	s.deps.Metrics.JobFinished(name, "ok", time.Since(start))
	return nil
}

func (s *Service) drain(ctx context.Context) error {
	if s.deps.Dispatcher == nil {
		return nil
	}
	_, err := s.deps.Dispatcher.DrainPending(ctx, s.cfg.Dispatch.BatchSize)
	return err
}

func (s *Service) ingest(ctx context.Context) error {
	if s.deps.Ingester == nil || s.deps.Source == nil || len(s.cfg.Scraper.Routes) == 0 {
		s.logger.Debug().Msg("ingest skipped: no fare source or routes configured")
		return nil
	}
	_, err := s.deps.Ingester.ScrapeRoutes(ctx, s.deps.Source, s.cfg.Scraper.Routes, s.cfg.Scraper.HorizonDays)
	return err
}

func (s *Service) sweep(ctx context.Context) error {
	_, err := s.deps.Detector.PurgeExpiredDeals(ctx)
	return err
}

func (s *Service) analyze(ctx context.Context) error {
	_, err := s.deps.Detector.AnalyzeRecentFlights(ctx)
	return err
}

func (s *Service) reevaluate(ctx context.Context) error {
	_, err := s.deps.Detector.ReevaluateExistingDeals(ctx)
	return err
}

func (s *Service) digest(ctx context.Context) error {
	if s.deps.Dispatcher == nil {
		return nil
	}
	_, err := s.deps.Dispatcher.SendWeeklyDigest(ctx)
	return err
}

func (s *Service) acquireLock(ctx context.Context, name string) (func(), bool, error) {
	if s.lockKey == 0 || s.deps.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.deps.Locker.TryAdvisoryLock(ctx, s.lockKey+lockOffsets[name])
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
