// Package app wires configuration, storage and engine components for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"flight-deals/internal/alerting"
	"flight-deals/internal/config"
	"flight-deals/internal/deals"
	"flight-deals/internal/dispatch"
	"flight-deals/internal/domain"
	"flight-deals/internal/fetcher"
	"flight-deals/internal/httpapi"
	"flight-deals/internal/ingest"
	"flight-deals/internal/logging"
	"flight-deals/internal/matcher"
	"flight-deals/internal/metrics"
	"flight-deals/internal/scheduler"
	"flight-deals/internal/service"
	"flight-deals/internal/storage"
	"flight-deals/internal/storage/memory"
	"flight-deals/internal/version"
)

// Stores is every persistence interface the engine needs. Both the postgres and the
// in-memory store satisfy it.
type Stores interface {
	storage.ObservationStore
	storage.FlightStore
	storage.DealStore
	storage.SubscriberStore
	storage.NotificationStore
	storage.AdvisoryLocker
}

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer

	// stores overrides the configured database; used by tests.
	stores Stores
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logging.Component(logger, "app"), Out: os.Stdout}
}

// engine is the wired component graph for one command.
type engine struct {
	stores     Stores
	metrics    *metrics.Metrics
	detector   *deals.Detector
	dispatcher *dispatch.Dispatcher
	ingestor   *ingest.Ingestor
	source     fetcher.Source
	close      func()
}

func (a *App) openStores(ctx context.Context) (Stores, func(), error) {
	if a.stores != nil {
		return a.stores, func() {}, nil
	}
	if a.Config.Database.DSN == "" {
		a.Logger.Warn().Msg("database.dsn not configured; using in-memory store, nothing will persist")
		return memory.NewStore(), func() {}, nil
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func (a *App) build(ctx context.Context) (*engine, error) {
	stores, closeStores, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	renderer, err := dispatch.NewRenderer(a.Config.Dispatch.FrontendURL, a.Config.Dispatch.TrackingURL)
	if err != nil {
		closeStores()
		return nil, err
	}

	fanout := matcher.New(stores, stores, m, a.Logger)
	detector := deals.NewDetector(stores, stores, stores, fanout, a.newAnnouncer(), m, deals.Options{
		HistoryWindow: a.Config.Detection.HistoryWindow,
		RecentWindow:  a.Config.Detection.RecentWindow,
		DealTTL:       a.Config.Detection.DealTTL,
	}, a.Logger)
	dispatcher := dispatch.New(stores, stores, stores, a.newMailer(), renderer, a.Logger,
		dispatch.WithMetrics(m),
		dispatch.WithDigestSize(a.Config.Dispatch.DigestSize),
	)

	return &engine{
		stores:     stores,
		metrics:    m,
		detector:   detector,
		dispatcher: dispatcher,
		ingestor:   ingest.New(stores, stores, m, a.Logger),
		source:     a.newSource(),
		close:      closeStores,
	}, nil
}

func (a *App) newMailer() alerting.Mailer {
	if a.Config.SMTP.Enabled() {
		return alerting.NewSMTPMailer(a.Config.SMTP, a.Logger)
	}
	a.Logger.Warn().Msg("smtp not configured; emails will be logged instead of sent")
	return alerting.NewLogMailer(a.Logger)
}

func (a *App) newAnnouncer() deals.Announcer {
	cfg := a.Config.Telegram
	if !cfg.Enabled {
		return nil
	}
	return alerting.NewTelegramAnnouncer(cfg.BotToken, cfg.ChatID, cfg.APIBase, a.Config.Dispatch.FrontendURL, 10*time.Second, a.Logger)
}

func (a *App) newSource() fetcher.Source {
	if a.Config.Scraper.BaseURL == "" {
		return nil
	}
	userAgent := a.Config.Scraper.UserAgent
	if userAgent == "" {
		userAgent = version.UserAgent()
	}
	return fetcher.NewFeed(fetcher.FeedOptions{
		BaseURL:      a.Config.Scraper.BaseURL,
		Timeout:      a.Config.Scraper.Timeout,
		UserAgent:    userAgent,
		MaxBodyBytes: a.Config.Scraper.MaxBodyBytes,
	}, a.Logger)
}

func (a *App) newService(ctx context.Context, e *engine) (*service.Service, error) {
	sched, err := scheduler.New(schedulerOptions(a.Config.Scheduler), a.Logger)
	if err != nil {
		return nil, err
	}
	return service.New(a.Config, service.Deps{
		Scheduler:  sched,
		Cron:       scheduler.NewCronRunner(ctx, a.Logger),
		Detector:   e.detector,
		Dispatcher: e.dispatcher,
		Ingester:   e.ingestor,
		Source:     e.source,
		Locker:     e.stores,
		Metrics:    e.metrics,
	}, a.Logger), nil
}

func schedulerOptions(cfg config.SchedulerConfig) scheduler.Options {
	return scheduler.Options{
		Interval:        cfg.Interval,
		AlignToInterval: cfg.AlignToInterval,
		StartupDelay:    cfg.StartupDelay,
		RunOnStart:      cfg.RunOnStart,
	}
}

// Run executes the long-running engine: the drain loop, cron jobs and, when enabled, the HTTP API.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	e, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	svc, err := a.newService(ctx, e)
	if err != nil {
		return err
	}

	if a.Config.HTTP.Enabled {
		srv, err := httpapi.NewServer(httpapi.Options{
			Addr:        a.Config.HTTP.Addr,
			FrontendURL: a.Config.Dispatch.FrontendURL,
		}, e.detector, e.dispatcher, svc, e.stores, e.metrics, a.Logger)
		if err != nil {
			return err
		}
		go func() {
			if err := srv.Start(); err != nil {
				a.Logger.Error().Err(err).Msg("http server stopped")
				cancel()
			}
		}()
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), a.Config.HTTP.ShutdownTimeout)
			defer stop()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.Logger.Error().Err(err).Msg("http shutdown failed")
			}
		}()
	}

	a.Logger.Info().Msg("starting deal engine")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("deal engine stopped")
	return nil
}

// RunJob runs one batch job once, under the same advisory lock the scheduler uses.
func (a *App) RunJob(ctx context.Context, name string) error {
	e, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	svc, err := a.newService(ctx, e)
	if err != nil {
		return err
	}
	return svc.RunJob(ctx, name)
}

// Migrate applies the embedded schema.
func (a *App) Migrate(ctx context.Context) error {
	if a.Config.Database.DSN == "" {
		return errors.New("database.dsn is required to migrate")
	}
	cfg := a.Config.Database
	cfg.RunMigrations = true
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	a.Logger.Info().Msg("migrations applied")
	return nil
}

// ExportOptions hold parameters for exporting a route's price history.
type ExportOptions struct {
	Route     domain.Route
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit        int
	Origin       string
	Destination  string
	MinDiscount  int
	FeaturedOnly bool
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.Out, format, args...)
}
