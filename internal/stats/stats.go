// Package stats derives price baselines from a route's observation window.
package stats

import (
	"math"
	"sort"
	"time"

	"flight-deals/internal/domain"
)

const (
	// DefaultWindow is the trailing history considered for a baseline.
	DefaultWindow = 90 * 24 * time.Hour

	// MinTrendObservations is the minimum history size for trend detection.
	MinTrendObservations = 30

	highVolatilityRatio   = 0.20
	mediumVolatilityRatio = 0.10
	trendThresholdPct     = 10.0
)

// Statistics summarises a price history. The zero value (Average == 0) means
// the route cannot be evaluated.
type Statistics struct {
	Count             int
	Average           float64
	Median            float64
	Min               float64
	Max               float64
	StandardDeviation float64
	Volatility        domain.Volatility
	Trend             domain.Trend
}

// Empty returns the neutral statistics value used when no history exists.
func Empty() Statistics {
	return Statistics{Volatility: domain.VolatilityUnknown, Trend: domain.TrendInsufficientData}
}

// Compute derives statistics from observations of a single route. Input order
// does not matter; the result is identical for any permutation of the same set.
func Compute(history []domain.PriceObservation) Statistics {
	n := len(history)
	if n == 0 {
		return Empty()
	}

	sorted := make([]domain.PriceObservation, n)
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].ObservedAt.Equal(sorted[j].ObservedAt) {
			return sorted[i].ObservedAt.Before(sorted[j].ObservedAt)
		}
		return sorted[i].Price.LessThan(sorted[j].Price)
	})

	prices := make([]float64, n)
	for i, obs := range sorted {
		prices[i] = obs.Price.InexactFloat64()
	}

	mean := computeMean(prices)
	stddev := computeStddev(prices, mean)

	byPrice := make([]float64, n)
	copy(byPrice, prices)
	sort.Float64s(byPrice)

	return Statistics{
		Count:             n,
		Average:           mean,
		Median:            computeMedian(byPrice),
		Min:               byPrice[0],
		Max:               byPrice[n-1],
		StandardDeviation: stddev,
		Volatility:        classifyVolatility(stddev, mean),
		Trend:             detectTrend(sorted),
	}
}

func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computeStddev returns the population standard deviation.
func computeStddev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

// computeMedian expects values sorted ascending.
func computeMedian(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	mid := n / 2
	if n%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func classifyVolatility(stddev, mean float64) domain.Volatility {
	if mean == 0 {
		return domain.VolatilityUnknown
	}
	ratio := stddev / mean
	switch {
	case ratio > highVolatilityRatio:
		return domain.VolatilityHigh
	case ratio > mediumVolatilityRatio:
		return domain.VolatilityMedium
	default:
		return domain.VolatilityLow
	}
}

type monthKey struct {
	year  int
	month time.Month
}

func (k monthKey) before(o monthKey) bool {
	if k.year != o.year {
		return k.year < o.year
	}
	return k.month < o.month
}

// detectTrend compares the mean price of the first and last calendar month (UTC).
func detectTrend(history []domain.PriceObservation) domain.Trend {
	if len(history) < MinTrendObservations {
		return domain.TrendInsufficientData
	}

	sums := make(map[monthKey]float64)
	counts := make(map[monthKey]int)
	for _, obs := range history {
		at := obs.ObservedAt.UTC()
		key := monthKey{year: at.Year(), month: at.Month()}
		sums[key] += obs.Price.InexactFloat64()
		counts[key]++
	}
	if len(sums) < 2 {
		return domain.TrendInsufficientData
	}

	keys := make([]monthKey, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].before(keys[j]) })

	first, last := keys[0], keys[len(keys)-1]
	firstAvg := sums[first] / float64(counts[first])
	lastAvg := sums[last] / float64(counts[last])
	if firstAvg == 0 {
		return domain.TrendInsufficientData
	}

	change := (lastAvg - firstAvg) / firstAvg * 100
	switch {
	case change > trendThresholdPct:
		return domain.TrendIncreasing
	case change < -trendThresholdPct:
		return domain.TrendDecreasing
	default:
		return domain.TrendStable
	}
}
