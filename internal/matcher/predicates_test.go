package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"flight-deals/internal/domain"
)

func defaultPref() domain.UserPreference {
	return domain.UserPreference{
		DestinationPreference: domain.DestinationsAll,
		AirlinePreference:     domain.AirlinesAll,
		TravelClass:           domain.TravelEconomy,
		MinDiscount:           20,
		NotificationFrequency: domain.FrequencyDaily,
	}
}

func dealOn(origin, dest, airline string, cabin domain.CabinClass, discount int) domain.DealWithFlight {
	return domain.DealWithFlight{
		Deal:   domain.Deal{ID: 1, DiscountPercentage: discount},
		Flight: domain.Flight{Origin: origin, Destination: dest, Airline: airline, CabinClass: cabin},
	}
}

func TestDefaultPreferenceMatchesAnyEconomyDeal(t *testing.T) {
	p := defaultPref()
	for _, d := range []domain.DealWithFlight{
		dealOn("JFK", "LAX", "AA", domain.CabinEconomy, 20),
		dealOn("SFO", "NRT", "UA", domain.CabinEconomy, 55),
		dealOn("ORD", "CDG", "AF", domain.CabinEconomy, 31),
	} {
		assert.True(t, Matches(p, d), "%s-%s", d.Flight.Origin, d.Flight.Destination)
	}
	assert.False(t, Matches(p, dealOn("JFK", "LAX", "AA", domain.CabinEconomy, 19)))
	assert.False(t, Matches(p, dealOn("JFK", "LAX", "AA", domain.CabinBusiness, 50)))
}

func TestPremiumBusinessOnly(t *testing.T) {
	p := defaultPref()
	p.TravelClass = domain.TravelPremium
	p.Business = true

	assert.True(t, Matches(p, dealOn("JFK", "LHR", "BA", domain.CabinBusiness, 30)))
	assert.False(t, Matches(p, dealOn("JFK", "LHR", "BA", domain.CabinPremiumEconomy, 30)))
	assert.False(t, Matches(p, dealOn("JFK", "LHR", "BA", domain.CabinFirst, 30)))
	assert.False(t, Matches(p, dealOn("JFK", "LHR", "BA", domain.CabinEconomy, 30)))
}

func TestPremiumWithoutFlagsMatchesNothing(t *testing.T) {
	p := defaultPref()
	p.TravelClass = domain.TravelPremium
	for _, cabin := range []domain.CabinClass{domain.CabinEconomy, domain.CabinPremiumEconomy, domain.CabinBusiness, domain.CabinFirst} {
		assert.False(t, Matches(p, dealOn("JFK", "LHR", "BA", cabin, 60)))
	}
}

func TestRules(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.UserPreference)
		deal   domain.DealWithFlight
		rule   string
	}{
		{
			name: "specific destination hit",
			mutate: func(p *domain.UserPreference) {
				p.DestinationPreference = domain.DestinationsSpecific
				p.SpecificDestinations = []string{"LAX", "SFO"}
			},
			deal: dealOn("JFK", "LAX", "AA", domain.CabinEconomy, 25),
		},
		{
			name: "specific destination miss",
			mutate: func(p *domain.UserPreference) {
				p.DestinationPreference = domain.DestinationsSpecific
				p.SpecificDestinations = []string{"SFO"}
			},
			deal: dealOn("JFK", "LAX", "AA", domain.CabinEconomy, 25),
			rule: "destination",
		},
		{
			name:   "origin listed",
			mutate: func(p *domain.UserPreference) { p.OriginAirports = []string{"EWR", "JFK"} },
			deal:   dealOn("JFK", "LAX", "AA", domain.CabinEconomy, 25),
		},
		{
			name:   "origin not listed",
			mutate: func(p *domain.UserPreference) { p.OriginAirports = []string{"EWR"} },
			deal:   dealOn("JFK", "LAX", "AA", domain.CabinEconomy, 25),
			rule:   "origin",
		},
		{
			name: "specific airline",
			mutate: func(p *domain.UserPreference) {
				p.AirlinePreference = domain.AirlinesSpecific
				p.Airlines = []string{"DL"}
			},
			deal: dealOn("JFK", "LAX", "AA", domain.CabinEconomy, 25),
			rule: "airline",
		},
		{
			name: "excluded airline",
			mutate: func(p *domain.UserPreference) {
				p.AirlinePreference = domain.AirlinesExclude
				p.Airlines = []string{"AA"}
			},
			deal: dealOn("JFK", "LAX", "AA", domain.CabinEconomy, 25),
			rule: "airline",
		},
		{
			name: "exclude other airline",
			mutate: func(p *domain.UserPreference) {
				p.AirlinePreference = domain.AirlinesExclude
				p.Airlines = []string{"DL"}
			},
			deal: dealOn("JFK", "LAX", "AA", domain.CabinEconomy, 25),
		},
		{
			name:   "unknown destination preference",
			mutate: func(p *domain.UserPreference) { p.DestinationPreference = "nearby" },
			deal:   dealOn("JFK", "LAX", "AA", domain.CabinEconomy, 25),
			rule:   "destination",
		},
		{
			name:   "min discount",
			mutate: func(p *domain.UserPreference) { p.MinDiscount = 30 },
			deal:   dealOn("JFK", "LAX", "AA", domain.CabinEconomy, 29),
			rule:   "discount",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := defaultPref()
			tc.mutate(&p)
			rule, ok := Mismatch(p, tc.deal)
			assert.Equal(t, tc.rule == "", ok)
			assert.Equal(t, tc.rule, rule)
		})
	}
}
