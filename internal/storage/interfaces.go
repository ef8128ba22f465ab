package storage

import (
	"context"
	"time"

	"flight-deals/internal/domain"
)

// ObservationStore is the append-only price history.
type ObservationStore interface {
	// AppendObservation stores a new observation and returns it with its ID.
	AppendObservation(ctx context.Context, obs domain.PriceObservation) (domain.PriceObservation, error)

	// ListObservations returns the route's observations with ObservedAt >= since, ordered by ObservedAt ASC.
	ListObservations(ctx context.Context, route domain.Route, since time.Time) ([]domain.PriceObservation, error)
}

// FlightStore provides access to scraped flights.
type FlightStore interface {
	// UpsertFlight inserts a flight or refreshes the price of the flight with the same
	// route and departure time.
	UpsertFlight(ctx context.Context, f domain.Flight) (domain.Flight, error)

	// GetFlight returns ErrNotFound when the flight does not exist.
	GetFlight(ctx context.Context, id int64) (domain.Flight, error)

	// ListFlightsCreatedSince returns flights with CreatedAt >= since, ordered by ID.
	ListFlightsCreatedSince(ctx context.Context, since time.Time) ([]domain.Flight, error)
}

// DealFilter narrows deal listings. Zero values disable a filter.
type DealFilter struct {
	ActiveAt     time.Time
	Origin       string
	Destination  string
	Airline      string
	MinDiscount  int
	FeaturedOnly bool
	Limit        int
	Offset       int
}

// DealStore persists deals. At most one deal exists per flight.
type DealStore interface {
	// UpsertDeal creates the flight's deal or updates it in place. created reports
	// whether this call inserted the row.
	UpsertDeal(ctx context.Context, d domain.Deal) (deal domain.Deal, created bool, err error)

	// GetDeal returns ErrNotFound when the deal does not exist.
	GetDeal(ctx context.Context, id int64) (domain.DealWithFlight, error)

	// ListDeals returns deals matching the filter ordered by discount DESC, ID ASC.
	ListDeals(ctx context.Context, filter DealFilter) ([]domain.DealWithFlight, error)

	// CountDeals counts deals matching the filter, ignoring Limit and Offset.
	CountDeals(ctx context.Context, filter DealFilter) (int64, error)

	// DeleteExpiredDeals removes deals with ExpiresAt < now.
	DeleteExpiredDeals(ctx context.Context, now time.Time) (int64, error)
}

// SubscriberStore reads user, billing and preference data owned by collaborators.
type SubscriberStore interface {
	// ListSubscribers returns every user that has a stored preference.
	ListSubscribers(ctx context.Context) ([]domain.Subscriber, error)
}

// NotificationFilter narrows a user's notification listing.
type NotificationFilter struct {
	UserID int64
	Status domain.NotificationStatus
	Limit  int
	Offset int
}

// NotificationStore persists queued notifications. At most one exists per (user, deal).
type NotificationStore interface {
	// CreateNotification inserts a pending notification unless one already exists for the
	// pair, in which case the existing row is returned with created=false.
	CreateNotification(ctx context.Context, userID, dealID int64, at time.Time) (n domain.Notification, created bool, err error)

	// ListPending returns up to limit pending notifications, oldest first.
	ListPending(ctx context.Context, limit int) ([]domain.PendingNotification, error)

	MarkSent(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64) error

	// MarkOpened and MarkClicked report false for unknown IDs.
	MarkOpened(ctx context.Context, id int64, at time.Time) (bool, error)
	MarkClicked(ctx context.Context, id int64, at time.Time) (bool, error)

	// MarkRead returns ErrNotFound unless the notification belongs to userID.
	MarkRead(ctx context.Context, userID, id int64, at time.Time) error

	// ListUserNotifications returns a page of notifications and the total matching count.
	ListUserNotifications(ctx context.Context, filter NotificationFilter) ([]domain.Notification, int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}
