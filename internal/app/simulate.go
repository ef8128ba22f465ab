package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"flight-deals/internal/domain"
)

// Simulate evaluates a hypothetical price against a route's stored history without writing.
func (a *App) Simulate(ctx context.Context, route domain.Route, price decimal.Decimal) error {
	if !route.CabinClass.Valid() {
		return &domain.ValidationError{Field: "cabin", Reason: fmt.Sprintf("unknown value %q", route.CabinClass)}
	}
	if !price.IsPositive() {
		return &domain.ValidationError{Field: "price", Reason: "must be positive"}
	}

	e, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	statistics, eval, err := e.detector.Simulate(ctx, route, price)
	if err != nil {
		return err
	}

	a.printf("route     %s-%s %s %s\n", route.Origin, route.Destination, route.Airline, route.CabinClass.Label())
	a.printf("history   n=%d avg=%.2f median=%.2f stddev=%.2f volatility=%s trend=%s\n",
		statistics.Count, statistics.Average, statistics.Median, statistics.StandardDeviation, statistics.Volatility, statistics.Trend)
	if statistics.Average == 0 {
		a.printf("verdict   no baseline; cannot evaluate\n")
		return nil
	}
	if !eval.IsDeal {
		a.printf("verdict   not a deal (%d%% below average)\n", eval.DiscountPercentage)
		return nil
	}
	a.printf("verdict   %s deal, %d%% off, featured=%t (%.2f vs avg, %.2f vs median)\n",
		eval.Quality, eval.DiscountPercentage, eval.Featured, eval.ComparedToAverage, eval.ComparedToMedian)
	return nil
}
