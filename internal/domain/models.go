package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Route identifies a price series: the same flight leg flown by one airline in one cabin.
type Route struct {
	Origin      string
	Destination string
	Airline     string
	CabinClass  CabinClass
}

// PriceObservation is a single scraped fare. Rows are append-only.
type PriceObservation struct {
	ID          int64
	Origin      string
	Destination string
	Airline     string
	CabinClass  CabinClass
	Price       decimal.Decimal
	Currency    string
	ObservedAt  time.Time
}

// Route returns the series key of the observation.
func (o PriceObservation) Route() Route {
	return Route{Origin: o.Origin, Destination: o.Destination, Airline: o.Airline, CabinClass: o.CabinClass}
}

// Flight is a concrete departure whose Price tracks the latest scraped fare.
type Flight struct {
	ID              int64
	Origin          string
	Destination     string
	OriginCity      string
	DestinationCity string
	Airline         string
	AirlineName     string
	CabinClass      CabinClass
	Price           decimal.Decimal
	Currency        string
	DepartureTime   time.Time
	ArrivalTime     time.Time
	DurationMinutes int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Route returns the series key used to look up price history.
func (f Flight) Route() Route {
	return Route{Origin: f.Origin, Destination: f.Destination, Airline: f.Airline, CabinClass: f.CabinClass}
}

// Deal is the single active deal record for a flight.
type Deal struct {
	ID                 int64
	FlightID           int64
	RegularPrice       decimal.Decimal
	DiscountPercentage int
	Quality            DealQuality
	Featured           bool
	ExpiresAt          time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Expired reports whether the deal is stale at now.
func (d Deal) Expired(now time.Time) bool {
	return !d.ExpiresAt.After(now)
}

// DealWithFlight joins a deal with the flight it advertises.
type DealWithFlight struct {
	Deal
	Flight Flight
}

// User is the subset of account data the engine needs to address a notification.
type User struct {
	ID            int64
	Email         string
	FirstName     string
	EmailVerified bool
}

// DisplayName falls back to a generic greeting when no first name is known.
func (u User) DisplayName() string {
	if u.FirstName == "" {
		return "Traveler"
	}
	return u.FirstName
}

// Subscription is read-only billing input.
type Subscription struct {
	UserID   int64
	PlanType PlanType
	Status   SubscriptionStatus
}

// Active reports whether the subscription entitles the user to deal alerts.
func (s Subscription) Active() bool {
	return s.Status == SubscriptionActive || s.Status == SubscriptionTrialing
}

// Subscriber bundles everything the matcher needs about one user.
type Subscriber struct {
	User         User
	Subscription Subscription
	Preference   UserPreference
}

// Notification is one queued deal alert for one user.
type Notification struct {
	ID        int64
	UserID    int64
	DealID    int64
	Status    NotificationStatus
	CreatedAt time.Time
	SentAt    *time.Time
	OpenedAt  *time.Time
	ClickedAt *time.Time
	ReadAt    *time.Time
}

// PendingNotification is a notification with everything needed to render it.
type PendingNotification struct {
	Notification
	User User
	Deal DealWithFlight
}
