package app

import (
	"context"
	"fmt"
	"os"

	"flight-deals/internal/deals"
)

// EvaluateFlight evaluates one flight and prints the verdict.
func (a *App) EvaluateFlight(ctx context.Context, flightID int64) error {
	e, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	res, err := e.detector.EvaluateFlight(ctx, flightID)
	if err != nil {
		return err
	}
	if res == nil {
		a.printf("flight %d not found\n", flightID)
		return nil
	}

	f := res.Flight
	a.printf("flight %d  %s-%s %s %s  price %s %s\n", f.ID, f.Origin, f.Destination, f.Airline, f.CabinClass.Label(), f.Currency, f.Price.StringFixed(2))
	a.printf("history   n=%d avg=%.2f median=%.2f min=%.2f max=%.2f volatility=%s trend=%s\n",
		res.Statistics.Count, res.Statistics.Average, res.Statistics.Median, res.Statistics.Min, res.Statistics.Max,
		res.Statistics.Volatility, res.Statistics.Trend)
	if res.Deal == nil {
		a.printf("verdict   no deal (%d%% below average)\n", res.Evaluation.DiscountPercentage)
		return nil
	}
	action := "updated"
	if res.Created {
		action = "created"
	}
	a.printf("verdict   %s deal %d: %d%% off, %s, featured=%t, expires %s\n",
		action, res.Deal.ID, res.Deal.DiscountPercentage, res.Deal.Quality, res.Deal.Featured, res.Deal.ExpiresAt.Format("2006-01-02 15:04 MST"))
	return nil
}

// AnalyzeRecent evaluates every flight scraped within the recent window.
func (a *App) AnalyzeRecent(ctx context.Context) error {
	return a.runBatch(ctx, "analyze-recent", func(ctx context.Context, d *deals.Detector) (deals.BatchSummary, error) {
		return d.AnalyzeRecentFlights(ctx)
	})
}

// Reevaluate re-checks every active deal against fresh statistics.
func (a *App) Reevaluate(ctx context.Context) error {
	return a.runBatch(ctx, "reevaluate", func(ctx context.Context, d *deals.Detector) (deals.BatchSummary, error) {
		return d.ReevaluateExistingDeals(ctx)
	})
}

func (a *App) runBatch(ctx context.Context, name string, run func(context.Context, *deals.Detector) (deals.BatchSummary, error)) error {
	e, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	sum, err := run(ctx, e.detector)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	a.printf("%s: evaluated=%d deals=%d created=%d skipped=%d failed=%d\n", name, sum.Evaluated, sum.Deals, sum.Created, sum.Skipped, sum.Failed)
	return nil
}

// IngestFile loads scraped fares from a JSONL file, or stdin when path is "-".
func (a *App) IngestFile(ctx context.Context, path string) error {
	in := os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	e, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	sum, err := e.ingestor.LoadJSONL(ctx, in)
	if err != nil {
		return err
	}
	a.printf("ingest: recorded=%d rejected=%d failed=%d\n", sum.Recorded, sum.Rejected, sum.Failed)
	return nil
}
