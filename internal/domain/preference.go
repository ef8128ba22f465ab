package domain

import (
	"fmt"
	"strings"
	"time"
)

// UserPreference is a user's deal filter. One row per user.
type UserPreference struct {
	UserID                int64
	OriginAirports        []string
	DestinationPreference DestinationPreference
	SpecificDestinations  []string
	AirlinePreference     AirlinePreference
	Airlines              []string
	TravelClass           TravelClass
	PremiumEconomy        bool
	Business              bool
	First                 bool
	MinDiscount           int
	NotificationFrequency NotificationFrequency
	UpdatedAt             time.Time
}

// Validate rejects preferences the matcher cannot interpret.
func (p UserPreference) Validate() error {
	switch p.DestinationPreference {
	case DestinationsAll:
	case DestinationsSpecific:
		if len(p.SpecificDestinations) == 0 {
			return &ValidationError{Field: "specificDestinations", Reason: "required when destinationPreference is specific"}
		}
	default:
		return &ValidationError{Field: "destinationPreference", Reason: fmt.Sprintf("unknown value %q", p.DestinationPreference)}
	}

	switch p.AirlinePreference {
	case AirlinesAll:
	case AirlinesSpecific, AirlinesExclude:
		if len(p.Airlines) == 0 {
			return &ValidationError{Field: "airlines", Reason: fmt.Sprintf("required when airlinePreference is %s", p.AirlinePreference)}
		}
	default:
		return &ValidationError{Field: "airlinePreference", Reason: fmt.Sprintf("unknown value %q", p.AirlinePreference)}
	}

	switch p.TravelClass {
	case TravelEconomy:
	case TravelPremium:
		if !p.PremiumEconomy && !p.Business && !p.First {
			return &ValidationError{Field: "travelClass", Reason: "premium requires at least one of premiumEconomy, business, first"}
		}
	default:
		return &ValidationError{Field: "travelClass", Reason: fmt.Sprintf("unknown value %q", p.TravelClass)}
	}

	if p.MinDiscount < 0 || p.MinDiscount > 100 {
		return &ValidationError{Field: "minDiscount", Reason: "must be between 0 and 100"}
	}

	switch p.NotificationFrequency {
	case FrequencyDaily, FrequencyWeekly:
	default:
		return &ValidationError{Field: "notificationFrequency", Reason: fmt.Sprintf("unknown value %q", p.NotificationFrequency)}
	}

	for _, code := range p.OriginAirports {
		if !validAirportCode(code) {
			return &ValidationError{Field: "originAirports", Reason: fmt.Sprintf("invalid airport code %q", code)}
		}
	}
	for _, code := range p.SpecificDestinations {
		if !validAirportCode(code) {
			return &ValidationError{Field: "specificDestinations", Reason: fmt.Sprintf("invalid airport code %q", code)}
		}
	}
	return nil
}

func validAirportCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	return strings.ToUpper(code) == code
}
