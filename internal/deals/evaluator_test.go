package deals

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"flight-deals/internal/domain"
	"flight-deals/internal/stats"
)

func baseline(avg float64, vol domain.Volatility, trend domain.Trend) stats.Statistics {
	return stats.Statistics{Count: 40, Average: avg, Median: avg, Volatility: vol, Trend: trend}
}

func TestEvaluateNoHistoryIsNeverADeal(t *testing.T) {
	for _, price := range []float64{0, 1, 100, 10000} {
		got := Evaluate(price, stats.Empty())
		assert.Equal(t, Evaluation{}, got)
	}
}

func TestEvaluateAmazingScenario(t *testing.T) {
	got := Evaluate(300, baseline(500, domain.VolatilityLow, domain.TrendStable))

	assert.True(t, got.IsDeal)
	assert.Equal(t, 40, got.DiscountPercentage)
	assert.Equal(t, domain.QualityAmazing, got.Quality)
	assert.True(t, got.Featured)
	assert.Equal(t, 500.0, got.ComparedToAverage)
	assert.Equal(t, 500.0, got.ComparedToMedian)
	assert.Equal(t, domain.VolatilityLow, got.Volatility)
}

func TestEvaluateThresholdBoundaries(t *testing.T) {
	s := baseline(100, domain.VolatilityLow, domain.TrendStable)

	cases := []struct {
		price   float64
		deal    bool
		quality domain.DealQuality
	}{
		{price: 81, deal: false},
		{price: 80, deal: true, quality: domain.QualityGood},
		{price: 71, deal: true, quality: domain.QualityGood},
		{price: 70, deal: true, quality: domain.QualityGreat},
		{price: 61, deal: true, quality: domain.QualityGreat},
		{price: 60, deal: true, quality: domain.QualityAmazing},
		{price: 100, deal: false},
		{price: 150, deal: false},
	}
	for _, tc := range cases {
		got := Evaluate(tc.price, s)
		assert.Equal(t, tc.deal, got.IsDeal, "price %v", tc.price)
		assert.Equal(t, tc.quality, got.Quality, "price %v", tc.price)
	}
}

func TestEvaluateNegativeDiscountReported(t *testing.T) {
	got := Evaluate(150, baseline(100, domain.VolatilityLow, domain.TrendStable))
	assert.False(t, got.IsDeal)
	assert.Equal(t, -50, got.DiscountPercentage)
}

func TestEvaluateDowngradesCompose(t *testing.T) {
	cases := []struct {
		name    string
		price   float64
		vol     domain.Volatility
		trend   domain.Trend
		quality domain.DealQuality
	}{
		{"amazing high volatility", 55, domain.VolatilityHigh, domain.TrendStable, domain.QualityGreat},
		{"amazing decreasing", 55, domain.VolatilityLow, domain.TrendDecreasing, domain.QualityGreat},
		{"amazing both", 55, domain.VolatilityHigh, domain.TrendDecreasing, domain.QualityGood},
		{"great both floors at good", 65, domain.VolatilityHigh, domain.TrendDecreasing, domain.QualityGood},
		{"good both stays good", 75, domain.VolatilityHigh, domain.TrendDecreasing, domain.QualityGood},
		{"increasing is ignored", 55, domain.VolatilityMedium, domain.TrendIncreasing, domain.QualityAmazing},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(tc.price, baseline(100, tc.vol, tc.trend))
			assert.True(t, got.IsDeal)
			assert.Equal(t, tc.quality, got.Quality)
		})
	}
}

func TestEvaluateFeatured(t *testing.T) {
	s := baseline(100, domain.VolatilityLow, domain.TrendStable)
	assert.True(t, Evaluate(65, s).Featured, "great at 35%")
	assert.False(t, Evaluate(66, s).Featured, "great at 34%")
	assert.False(t, Evaluate(75, s).Featured, "good")

	// downgraded from amazing to great but still at least 35% off
	assert.True(t, Evaluate(55, baseline(100, domain.VolatilityHigh, domain.TrendStable)).Featured)
	// downgraded to good
	assert.False(t, Evaluate(55, baseline(100, domain.VolatilityHigh, domain.TrendDecreasing)).Featured)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	s := baseline(437.25, domain.VolatilityMedium, domain.TrendDecreasing)
	first := Evaluate(301.1, s)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Evaluate(301.1, s))
	}
}

func TestDiscountRoundsHalfUp(t *testing.T) {
	assert.Equal(t, 20, Discount(80.5, 100.5))
	assert.Equal(t, 25, Discount(75.5, 100))
	assert.Equal(t, -25, Discount(125.5, 100))
	assert.Equal(t, 0, Discount(10, 0))
}
