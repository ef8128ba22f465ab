package deals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"flight-deals/internal/domain"
	"flight-deals/internal/metrics"
	"flight-deals/internal/stats"
	"flight-deals/internal/storage"
)

const (
	DefaultDealTTL      = 7 * 24 * time.Hour
	DefaultRecentWindow = 24 * time.Hour
)

// Fanout enqueues notifications for a newly created deal.
type Fanout interface {
	NotifyDeal(ctx context.Context, deal domain.DealWithFlight) (int, error)
}

// Announcer publishes featured deals to a broadcast channel.
type Announcer interface {
	AnnounceDeal(ctx context.Context, deal domain.DealWithFlight) error
}

// Options tune detection windows. Zero values fall back to defaults.
type Options struct {
	HistoryWindow time.Duration
	RecentWindow  time.Duration
	DealTTL       time.Duration
	Now           func() time.Time
}

// Detector orchestrates statistics, evaluation, the deal upsert and fan-out.
type Detector struct {
	flights   storage.FlightStore
	history   storage.ObservationStore
	deals     storage.DealStore
	fanout    Fanout
	announcer Announcer
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	opts      Options
}

// Result describes one flight evaluation. Deal is nil when the price did not qualify.
type Result struct {
	Flight     domain.Flight
	Statistics stats.Statistics
	Evaluation Evaluation
	Deal       *domain.Deal
	Created    bool
}

// BatchSummary counts the outcomes of a batch run.
type BatchSummary struct {
	Evaluated int
	Deals     int
	Created   int
	Skipped   int
	Failed    int
}

// NewDetector wires the detector. fanout, announcer and m may be nil.
func NewDetector(flights storage.FlightStore, history storage.ObservationStore, deals storage.DealStore, fanout Fanout, announcer Announcer, m *metrics.Metrics, opts Options, logger zerolog.Logger) *Detector {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = stats.DefaultWindow
	}
	if opts.RecentWindow <= 0 {
		opts.RecentWindow = DefaultRecentWindow
	}
	if opts.DealTTL <= 0 {
		opts.DealTTL = DefaultDealTTL
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Detector{
		flights:   flights,
		history:   history,
		deals:     deals,
		fanout:    fanout,
		announcer: announcer,
		metrics:   m,
		logger:    logger.With().Str("component", "detector").Logger(),
		opts:      opts,
	}
}

// EvaluateFlight evaluates the flight's current price and creates or refreshes its deal.
// A missing flight is logged and yields (nil, nil). Fan-out runs only when the deal is created.
func (d *Detector) EvaluateFlight(ctx context.Context, flightID int64) (*Result, error) {
	start := time.Now()
	res, outcome, err := d.evaluate(ctx, flightID)
	d.metrics.ObserveEvaluation(outcome, time.Since(start))
	return res, err
}

func (d *Detector) evaluate(ctx context.Context, flightID int64) (*Result, string, error) {
	flight, err := d.flights.GetFlight(ctx, flightID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			d.logger.Warn().Int64("flight_id", flightID).Msg("flight not found, skipping evaluation")
			return nil, "not_found", nil
		}
		return nil, "error", fmt.Errorf("load flight %d: %w", flightID, err)
	}

	now := d.opts.Now()
	statistics, err := d.Statistics(ctx, flight.Route())
	if err != nil {
		return nil, "error", err
	}

	eval := Evaluate(flight.Price.InexactFloat64(), statistics)
	res := &Result{Flight: flight, Statistics: statistics, Evaluation: eval}
	if !eval.IsDeal {
		d.logger.Debug().Int64("flight_id", flightID).
			Int("discount_pct", eval.DiscountPercentage).
			Int("history", statistics.Count).
			Msg("price does not qualify")
		return res, "no_deal", nil
	}

	deal, created, err := d.deals.UpsertDeal(ctx, domain.Deal{
		FlightID:           flight.ID,
		RegularPrice:       decimal.NewFromFloat(statistics.Average).Round(2),
		DiscountPercentage: eval.DiscountPercentage,
		Quality:            eval.Quality,
		Featured:           eval.Featured,
		ExpiresAt:          now.Add(d.opts.DealTTL),
		UpdatedAt:          now,
	})
	if err != nil {
		return nil, "error", fmt.Errorf("upsert deal for flight %d: %w", flightID, err)
	}
	res.Deal = &deal
	res.Created = created
	d.metrics.DealWritten(created, string(deal.Quality))

	event := d.logger.Info().Int64("flight_id", flightID).Int64("deal_id", deal.ID).
		Int("discount_pct", deal.DiscountPercentage).
		Str("quality", string(deal.Quality)).
		Bool("featured", deal.Featured)
	if !created {
		event.Msg("deal updated")
		return res, "deal", nil
	}
	event.Msg("deal created")

	d.announceNew(ctx, domain.DealWithFlight{Deal: deal, Flight: flight})
	return res, "deal", nil
}

func (d *Detector) announceNew(ctx context.Context, deal domain.DealWithFlight) {
	if d.fanout != nil {
		queued, err := d.fanout.NotifyDeal(ctx, deal)
		if err != nil {
			d.logger.Error().Err(err).Int64("deal_id", deal.ID).Msg("fan-out failed")
		} else {
			d.logger.Info().Int64("deal_id", deal.ID).Int("queued", queued).Msg("fan-out complete")
		}
	}
	if d.announcer != nil && deal.Featured {
		if err := d.announcer.AnnounceDeal(ctx, deal); err != nil {
			d.logger.Error().Err(err).Int64("deal_id", deal.ID).Msg("featured announcement failed")
		}
	}
}

// Statistics computes the baseline for a route over the configured history window.
func (d *Detector) Statistics(ctx context.Context, route domain.Route) (stats.Statistics, error) {
	since := d.opts.Now().Add(-d.opts.HistoryWindow)
	history, err := d.history.ListObservations(ctx, route, since)
	if err != nil {
		return stats.Statistics{}, fmt.Errorf("load price history: %w", err)
	}
	return stats.Compute(history), nil
}

// Simulate evaluates a hypothetical price against a route's stored history without writing anything.
func (d *Detector) Simulate(ctx context.Context, route domain.Route, price decimal.Decimal) (stats.Statistics, Evaluation, error) {
	statistics, err := d.Statistics(ctx, route)
	if err != nil {
		return stats.Statistics{}, Evaluation{}, err
	}
	return statistics, Evaluate(price.InexactFloat64(), statistics), nil
}

// AnalyzeRecentFlights evaluates every flight created within the recent window.
func (d *Detector) AnalyzeRecentFlights(ctx context.Context) (BatchSummary, error) {
	since := d.opts.Now().Add(-d.opts.RecentWindow)
	flights, err := d.flights.ListFlightsCreatedSince(ctx, since)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("list recent flights: %w", err)
	}

	ids := make([]int64, 0, len(flights))
	for _, f := range flights {
		ids = append(ids, f.ID)
	}
	summary := d.evaluateAll(ctx, ids)
	d.logger.Info().Int("flights", len(ids)).Int("deals", summary.Deals).Int("created", summary.Created).
		Int("failed", summary.Failed).Msg("recent flights analyzed")
	return summary, nil
}

// ReevaluateExistingDeals re-runs evaluation for every unexpired deal. Deals that no longer
// qualify are left untouched until they expire.
func (d *Detector) ReevaluateExistingDeals(ctx context.Context) (BatchSummary, error) {
	active, err := d.deals.ListDeals(ctx, storage.DealFilter{ActiveAt: d.opts.Now()})
	if err != nil {
		return BatchSummary{}, fmt.Errorf("list active deals: %w", err)
	}

	ids := make([]int64, 0, len(active))
	for _, deal := range active {
		ids = append(ids, deal.FlightID)
	}
	summary := d.evaluateAll(ctx, ids)
	d.logger.Info().Int("deals", len(ids)).Int("still_qualifying", summary.Deals).
		Int("failed", summary.Failed).Msg("existing deals re-evaluated")
	return summary, nil
}

// PurgeExpiredDeals deletes deals whose expiry has passed.
func (d *Detector) PurgeExpiredDeals(ctx context.Context) (int64, error) {
	removed, err := d.deals.DeleteExpiredDeals(ctx, d.opts.Now())
	if err != nil {
		return 0, fmt.Errorf("purge expired deals: %w", err)
	}
	d.logger.Info().Int64("removed", removed).Msg("expired deals purged")
	return removed, nil
}

func (d *Detector) evaluateAll(ctx context.Context, flightIDs []int64) BatchSummary {
	var summary BatchSummary
	for _, id := range flightIDs {
		res, err := d.EvaluateFlight(ctx, id)
		switch {
		case err != nil:
			summary.Failed++
			d.logger.Error().Err(err).Int64("flight_id", id).Msg("flight evaluation failed")
		case res == nil:
			summary.Skipped++
		default:
			summary.Evaluated++
			if res.Deal != nil {
				summary.Deals++
			}
			if res.Created {
				summary.Created++
			}
		}
	}
	return summary
}
