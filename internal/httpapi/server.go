// Package httpapi exposes the deal engine's HTTP surface.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"flight-deals/internal/deals"
	"flight-deals/internal/domain"
	"flight-deals/internal/metrics"
	"flight-deals/internal/storage"
)

// Evaluator evaluates a single flight on demand.
type Evaluator interface {
	EvaluateFlight(ctx context.Context, flightID int64) (*deals.Result, error)
}

// JobRunner runs a named batch job under the same lock the scheduler takes.
type JobRunner interface {
	RunJob(ctx context.Context, name string) error
}

// Dispatcher is the notification tracking and read surface.
type Dispatcher interface {
	RecordOpened(ctx context.Context, id int64) bool
	RecordClicked(ctx context.Context, id int64) bool
	MarkRead(ctx context.Context, userID, id int64) error
	ListForUser(ctx context.Context, filter storage.NotificationFilter) ([]domain.Notification, int64, error)
}

// Options configure the server.
type Options struct {
	Addr        string
	FrontendURL string
	// JobTimeout bounds each asynchronous job started by a trigger endpoint.
	JobTimeout time.Duration
}

// Server wires the echo router to the engine.
type Server struct {
	echo       *echo.Echo
	opts       Options
	evaluator  Evaluator
	dispatcher Dispatcher
	jobs       JobRunner
	deals      storage.DealStore
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	now        func() time.Time

	running sync.WaitGroup
}

// NewServer builds the router and registers every route.
func NewServer(opts Options, evaluator Evaluator, dispatcher Dispatcher, jobs JobRunner, dealStore storage.DealStore, m *metrics.Metrics, logger zerolog.Logger) (*Server, error) {
	if evaluator == nil || dispatcher == nil || jobs == nil || dealStore == nil {
		return nil, errors.New("httpapi: evaluator, dispatcher, job runner and deal store are required")
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 30 * time.Minute
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:       e,
		opts:       opts,
		evaluator:  evaluator,
		dispatcher: dispatcher,
		jobs:       jobs,
		deals:      dealStore,
		metrics:    m,
		logger:     logger.With().Str("component", "http").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}

	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger)

	s.registerRoutes()
	return s, nil
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		duration := time.Since(start)

		status := c.Response().Status
		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveHTTP(c.Request().Method, route, status, duration)

		evt := s.logger.Debug()
		if status >= http.StatusInternalServerError {
			evt = s.logger.Error()
		}
		evt.Str("method", c.Request().Method).
			Str("uri", c.Request().RequestURI).
			Int("status", status).
			Dur("duration", duration).
			Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
			Msg("http request")
		return nil
	}
}

// handleError maps engine errors onto status codes.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		he *echo.HTTPError
		ve *domain.ValidationError
	)
	switch {
	case errors.As(err, &he):
	case errors.As(err, &ve):
		he = echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	case errors.Is(err, storage.ErrNotFound):
		he = echo.NewHTTPError(http.StatusNotFound, "not found")
	default:
		s.logger.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("request failed")
		he = echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	msg := he.Message
	if m, ok := msg.(string); ok {
		msg = errorResponse{Error: m}
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(he.Code)
		return
	}
	_ = c.JSON(he.Code, msg)
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown is called. http.ErrServerClosed is not reported.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.opts.Addr).Msg("starting http server")
	if err := s.echo.Start(s.opts.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight jobs until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down http server")
	err := s.echo.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn().Msg("background jobs still running at shutdown")
	}
	return err
}

// Wait blocks until every background job started by a trigger endpoint finishes.
func (s *Server) Wait() {
	s.running.Wait()
}

// runAsync runs job detached from the request so the caller gets 202 immediately.
func (s *Server) runAsync(name string, job func(ctx context.Context) error) {
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.JobTimeout)
		defer cancel()

		start := time.Now()
		if err := job(ctx); err != nil {
			s.logger.Error().Err(err).Str("job", name).Msg("background job failed")
			return
		}
		s.logger.Info().Str("job", name).Dur("duration", time.Since(start)).Msg("background job finished")
	}()
}
