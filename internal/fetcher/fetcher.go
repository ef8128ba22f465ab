// Package fetcher retrieves scraped fares from upstream feeds.
package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"flight-deals/internal/domain"
)

// Fare is one normalized scraped fare for a concrete departure.
type Fare struct {
	Origin          string            `json:"origin"`
	Destination     string            `json:"destination"`
	Airline         string            `json:"airline"`
	CabinClass      domain.CabinClass `json:"cabin_class"`
	Price           decimal.Decimal   `json:"price"`
	Currency        string            `json:"currency"`
	DepartureTime   time.Time         `json:"departure_time"`
	ArrivalTime     time.Time         `json:"arrival_time"`
	DurationMinutes int               `json:"duration_minutes"`
	ObservedAt      time.Time         `json:"observed_at"`
}

// Normalize upper-cases codes, fills defaults and rejects fares the engine cannot store.
func (f Fare) Normalize() (Fare, error) {
	f.Origin = strings.ToUpper(strings.TrimSpace(f.Origin))
	f.Destination = strings.ToUpper(strings.TrimSpace(f.Destination))
	f.Airline = strings.ToUpper(strings.TrimSpace(f.Airline))
	f.Currency = strings.ToUpper(strings.TrimSpace(f.Currency))
	if f.Currency == "" {
		f.Currency = "USD"
	}
	if f.CabinClass == "" {
		f.CabinClass = domain.CabinEconomy
	}

	switch {
	case len(f.Origin) != 3:
		return Fare{}, &domain.ValidationError{Field: "origin", Reason: fmt.Sprintf("%q is not an airport code", f.Origin)}
	case len(f.Destination) != 3:
		return Fare{}, &domain.ValidationError{Field: "destination", Reason: fmt.Sprintf("%q is not an airport code", f.Destination)}
	case f.Origin == f.Destination:
		return Fare{}, &domain.ValidationError{Field: "destination", Reason: "same as origin"}
	case f.Airline == "":
		return Fare{}, &domain.ValidationError{Field: "airline", Reason: "required"}
	case !f.CabinClass.Valid():
		return Fare{}, &domain.ValidationError{Field: "cabin_class", Reason: fmt.Sprintf("unknown value %q", f.CabinClass)}
	case !f.Price.IsPositive():
		return Fare{}, &domain.ValidationError{Field: "price", Reason: "must be positive"}
	case f.DepartureTime.IsZero():
		return Fare{}, &domain.ValidationError{Field: "departure_time", Reason: "required"}
	}

	if f.DurationMinutes == 0 && f.ArrivalTime.After(f.DepartureTime) {
		f.DurationMinutes = int(f.ArrivalTime.Sub(f.DepartureTime) / time.Minute)
	}
	return f, nil
}

// Flight converts the fare into the flight record it refreshes.
func (f Fare) Flight() domain.Flight {
	return domain.Flight{
		Origin:          f.Origin,
		Destination:     f.Destination,
		Airline:         f.Airline,
		CabinClass:      f.CabinClass,
		Price:           f.Price,
		Currency:        f.Currency,
		DepartureTime:   f.DepartureTime,
		ArrivalTime:     f.ArrivalTime,
		DurationMinutes: f.DurationMinutes,
	}
}

// Observation converts the fare into a price history entry.
func (f Fare) Observation() domain.PriceObservation {
	return domain.PriceObservation{
		Origin:      f.Origin,
		Destination: f.Destination,
		Airline:     f.Airline,
		CabinClass:  f.CabinClass,
		Price:       f.Price,
		Currency:    f.Currency,
		ObservedAt:  f.ObservedAt,
	}
}

// Source retrieves fares for an airport pair on the given departure dates.
type Source interface {
	Scrape(ctx context.Context, origin, destination string, dates []time.Time) ([]Fare, error)
}
