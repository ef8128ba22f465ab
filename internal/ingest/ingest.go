// Package ingest records scraped fares as flights and price history.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"flight-deals/internal/domain"
	"flight-deals/internal/fetcher"
	"flight-deals/internal/metrics"
	"flight-deals/internal/storage"
)

const maxLineBytes = 1 << 20

// Summary counts the outcome of an ingest batch.
type Summary struct {
	Recorded int
	Rejected int
	Failed   int
}

func (s *Summary) add(o Summary) {
	s.Recorded += o.Recorded
	s.Rejected += o.Rejected
	s.Failed += o.Failed
}

// Ingestor writes fares through the flight and observation stores.
type Ingestor struct {
	flights storage.FlightStore
	history storage.ObservationStore
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// New constructs an Ingestor.
func New(flights storage.FlightStore, history storage.ObservationStore, m *metrics.Metrics, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		flights: flights,
		history: history,
		metrics: m,
		logger:  logger.With().Str("component", "ingest").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Record upserts the fare's flight and appends the observation to its route history.
func (i *Ingestor) Record(ctx context.Context, fare fetcher.Fare) (domain.Flight, error) {
	fare, err := fare.Normalize()
	if err != nil {
		i.metrics.Ingested("rejected")
		return domain.Flight{}, err
	}
	if fare.ObservedAt.IsZero() {
		fare.ObservedAt = i.now()
	}

	flight, err := i.flights.UpsertFlight(ctx, fare.Flight())
	if err != nil {
		i.metrics.Ingested("failed")
		return domain.Flight{}, fmt.Errorf("record flight: %w", err)
	}
	if _, err := i.history.AppendObservation(ctx, fare.Observation()); err != nil {
		i.metrics.Ingested("failed")
		return domain.Flight{}, fmt.Errorf("record observation: %w", err)
	}
	i.metrics.Ingested("recorded")
	return flight, nil
}

// RecordAll records each fare, logging and counting failures without stopping.
func (i *Ingestor) RecordAll(ctx context.Context, fares []fetcher.Fare) Summary {
	var sum Summary
	for _, fare := range fares {
		if ctx.Err() != nil {
			break
		}
		sum.add(i.recordOne(ctx, fare))
	}
	return sum
}

func (i *Ingestor) recordOne(ctx context.Context, fare fetcher.Fare) Summary {
	if _, err := i.Record(ctx, fare); err != nil {
		if domain.IsValidation(err) {
			i.logger.Warn().Err(err).Str("origin", fare.Origin).Str("destination", fare.Destination).Msg("fare rejected")
			return Summary{Rejected: 1}
		}
		i.logger.Error().Err(err).Str("origin", fare.Origin).Str("destination", fare.Destination).Msg("fare ingest failed")
		return Summary{Failed: 1}
	}
	return Summary{Recorded: 1}
}

// ScrapeRoutes pulls fares for each "ORG-DST" route over the next horizonDays departure dates.
// A route whose scrape fails is logged and counted as failed.
func (i *Ingestor) ScrapeRoutes(ctx context.Context, src fetcher.Source, routes []string, horizonDays int) (Summary, error) {
	if src == nil {
		return Summary{}, errors.New("no fare source configured")
	}
	dates := DepartureDates(i.now(), horizonDays)

	var sum Summary
	for _, raw := range routes {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		origin, destination, err := ParseRoute(raw)
		if err != nil {
			i.logger.Warn().Err(err).Str("route", raw).Msg("skipping malformed route")
			sum.Rejected++
			continue
		}

		fares, err := src.Scrape(ctx, origin, destination, dates)
		if err != nil {
			i.logger.Error().Err(err).Str("route", raw).Bool("transient", errors.Is(err, domain.ErrTransient)).Msg("scrape failed")
			sum.Failed++
			continue
		}
		sum.add(i.RecordAll(ctx, fares))
	}

	i.logger.Info().Int("routes", len(routes)).Int("recorded", sum.Recorded).Int("rejected", sum.Rejected).Int("failed", sum.Failed).Msg("scrape complete")
	return sum, nil
}

// LoadJSONL records one fare per line. Blank lines and lines starting with '#' are skipped.
func (i *Ingestor) LoadJSONL(ctx context.Context, r io.Reader) (Summary, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var (
		sum  Summary
		line int
	)
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var fare fetcher.Fare
		if err := json.Unmarshal([]byte(text), &fare); err != nil {
			i.logger.Warn().Err(err).Int("line", line).Msg("invalid fare line")
			sum.Rejected++
			continue
		}
		sum.add(i.recordOne(ctx, fare))
	}
	if err := scanner.Err(); err != nil {
		return sum, fmt.Errorf("read fares at line %d: %w", line, err)
	}

	i.logger.Info().Int("lines", line).Int("recorded", sum.Recorded).Int("rejected", sum.Rejected).Int("failed", sum.Failed).Msg("file ingest complete")
	return sum, nil
}

// ParseRoute splits "JFK-LAX" into its airport codes.
func ParseRoute(raw string) (string, string, error) {
	origin, destination, ok := strings.Cut(strings.ToUpper(strings.TrimSpace(raw)), "-")
	origin, destination = strings.TrimSpace(origin), strings.TrimSpace(destination)
	if !ok || len(origin) != 3 || len(destination) != 3 || origin == destination {
		return "", "", &domain.ValidationError{Field: "route", Reason: fmt.Sprintf("%q is not ORIGIN-DESTINATION", raw)}
	}
	return origin, destination, nil
}

// DepartureDates lists the UTC midnights of the next days, starting tomorrow.
func DepartureDates(from time.Time, days int) []time.Time {
	if days <= 0 {
		days = 1
	}
	start := from.UTC().Truncate(24 * time.Hour)
	dates := make([]time.Time, 0, days)
	for d := 1; d <= days; d++ {
		dates = append(dates, start.AddDate(0, 0, d))
	}
	return dates
}
