// Package matcher selects the subscribers a deal should be sent to and queues their notifications.
package matcher

import (
	"slices"

	"flight-deals/internal/domain"
)

// predicate is one preference rule. A deal is eligible only if every predicate holds.
type predicate struct {
	name  string
	match func(p domain.UserPreference, d domain.DealWithFlight) bool
}

var predicates = []predicate{
	{name: "destination", match: matchDestination},
	{name: "origin", match: matchOrigin},
	{name: "airline", match: matchAirline},
	{name: "cabin", match: matchCabin},
	{name: "discount", match: matchDiscount},
}

// Matches reports whether the deal satisfies every rule of the preference.
func Matches(p domain.UserPreference, d domain.DealWithFlight) bool {
	_, ok := Mismatch(p, d)
	return ok
}

// Mismatch returns the name of the first rule the deal fails, or ok=true when all hold.
func Mismatch(p domain.UserPreference, d domain.DealWithFlight) (string, bool) {
	for _, pr := range predicates {
		if !pr.match(p, d) {
			return pr.name, false
		}
	}
	return "", true
}

func matchDestination(p domain.UserPreference, d domain.DealWithFlight) bool {
	switch p.DestinationPreference {
	case domain.DestinationsAll:
		return true
	case domain.DestinationsSpecific:
		return slices.Contains(p.SpecificDestinations, d.Flight.Destination)
	default:
		return false
	}
}

// An empty origin list means any origin.
func matchOrigin(p domain.UserPreference, d domain.DealWithFlight) bool {
	return len(p.OriginAirports) == 0 || slices.Contains(p.OriginAirports, d.Flight.Origin)
}

func matchAirline(p domain.UserPreference, d domain.DealWithFlight) bool {
	switch p.AirlinePreference {
	case domain.AirlinesAll:
		return true
	case domain.AirlinesSpecific:
		return slices.Contains(p.Airlines, d.Flight.Airline)
	case domain.AirlinesExclude:
		return !slices.Contains(p.Airlines, d.Flight.Airline)
	default:
		return false
	}
}

func matchCabin(p domain.UserPreference, d domain.DealWithFlight) bool {
	cabin := d.Flight.CabinClass
	switch p.TravelClass {
	case domain.TravelEconomy:
		return cabin == domain.CabinEconomy
	case domain.TravelPremium:
		switch cabin {
		case domain.CabinPremiumEconomy:
			return p.PremiumEconomy
		case domain.CabinBusiness:
			return p.Business
		case domain.CabinFirst:
			return p.First
		}
		return false
	default:
		return false
	}
}

func matchDiscount(p domain.UserPreference, d domain.DealWithFlight) bool {
	return d.DiscountPercentage >= p.MinDiscount
}
