// Package deals decides whether a fare is a deal and keeps one deal record per flight.
package deals

import (
	"math"

	"flight-deals/internal/domain"
	"flight-deals/internal/stats"
)

const (
	amazingThreshold  = 40
	greatThreshold    = 30
	goodThreshold     = 20
	featuredGreatFrom = 35
)

// Evaluation is the verdict for one price against a route baseline.
type Evaluation struct {
	IsDeal             bool
	DiscountPercentage int
	Quality            domain.DealQuality
	Featured           bool
	ComparedToAverage  float64
	ComparedToMedian   float64
	Volatility         domain.Volatility
	Trend              domain.Trend
}

// Evaluate is pure: the same price and statistics always produce the same verdict.
// A zero average means there is no baseline and the result carries only IsDeal=false.
func Evaluate(current float64, s stats.Statistics) Evaluation {
	if s.Average == 0 {
		return Evaluation{}
	}

	discount := Discount(current, s.Average)
	eval := Evaluation{
		DiscountPercentage: discount,
		ComparedToAverage:  s.Average,
		ComparedToMedian:   s.Median,
		Volatility:         s.Volatility,
		Trend:              s.Trend,
	}

	quality, ok := tier(discount)
	if !ok {
		return eval
	}
	if s.Volatility == domain.VolatilityHigh {
		quality = quality.Downgrade()
	}
	if s.Trend == domain.TrendDecreasing {
		quality = quality.Downgrade()
	}

	eval.IsDeal = true
	eval.Quality = quality
	eval.Featured = IsFeatured(quality, discount)
	return eval
}

// Discount is the percentage below average, rounded half up. Prices above average give negative values.
func Discount(current, average float64) int {
	if average == 0 {
		return 0
	}
	return int(math.Floor((average-current)/average*100 + 0.5))
}

// IsFeatured flags amazing deals and great deals of at least 35% off.
func IsFeatured(q domain.DealQuality, discount int) bool {
	return q == domain.QualityAmazing || (q == domain.QualityGreat && discount >= featuredGreatFrom)
}

func tier(discount int) (domain.DealQuality, bool) {
	switch {
	case discount >= amazingThreshold:
		return domain.QualityAmazing, true
	case discount >= greatThreshold:
		return domain.QualityGreat, true
	case discount >= goodThreshold:
		return domain.QualityGood, true
	default:
		return "", false
	}
}
