// Package memory provides in-memory implementations of the storage interfaces for tests,
// simulations and single-process runs without PostgreSQL.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"flight-deals/internal/domain"
	"flight-deals/internal/storage"
)

type flightKey struct {
	route     domain.Route
	departure int64
}

type pairKey struct {
	userID int64
	dealID int64
}

// Store keeps every table in maps guarded by one mutex. Uniqueness rules match the SQL schema.
type Store struct {
	mu sync.RWMutex

	now func() time.Time

	airports map[string]string
	airlines map[string]string

	observations []domain.PriceObservation
	nextObsID    int64

	flights      map[int64]domain.Flight
	flightByKey  map[flightKey]int64
	nextFlightID int64

	deals        map[int64]domain.Deal
	dealByFlight map[int64]int64
	nextDealID   int64

	subscribers map[int64]domain.Subscriber

	notifications map[int64]domain.Notification
	notifByPair   map[pairKey]int64
	nextNotifID   int64

	locks map[int64]bool
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		now:           func() time.Time { return time.Now().UTC() },
		airports:      make(map[string]string),
		airlines:      make(map[string]string),
		flights:       make(map[int64]domain.Flight),
		flightByKey:   make(map[flightKey]int64),
		deals:         make(map[int64]domain.Deal),
		dealByFlight:  make(map[int64]int64),
		subscribers:   make(map[int64]domain.Subscriber),
		notifications: make(map[int64]domain.Notification),
		notifByPair:   make(map[pairKey]int64),
		locks:         make(map[int64]bool),
	}
}

// SetClock overrides the clock used for default timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// PutAirport registers the city shown for an airport code.
func (s *Store) PutAirport(code, city string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.airports[code] = city
}

// PutAirline registers an airline display name.
func (s *Store) PutAirline(code, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.airlines[code] = name
}

// PutSubscriber creates or replaces a user with their subscription and preference.
func (s *Store) PutSubscriber(sub domain.Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.Subscription.UserID = sub.User.ID
	sub.Preference.UserID = sub.User.ID
	s.subscribers[sub.User.ID] = cloneSubscriber(sub)
}

// AppendObservation implements storage.ObservationStore.
func (s *Store) AppendObservation(_ context.Context, obs domain.PriceObservation) (domain.PriceObservation, error) {
	if obs.Price.IsNegative() {
		return domain.PriceObservation{}, fmt.Errorf("append observation: %w: negative price", storage.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = s.now()
	}
	s.nextObsID++
	obs.ID = s.nextObsID
	s.observations = append(s.observations, obs)
	return obs, nil
}

// ListObservations implements storage.ObservationStore.
func (s *Store) ListObservations(_ context.Context, route domain.Route, since time.Time) ([]domain.PriceObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PriceObservation, 0)
	for _, obs := range s.observations {
		if obs.Route() == route && !obs.ObservedAt.Before(since) {
			result = append(result, obs)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].ObservedAt.Equal(result[j].ObservedAt) {
			return result[i].ObservedAt.Before(result[j].ObservedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// UpsertFlight implements storage.FlightStore.
func (s *Store) UpsertFlight(_ context.Context, f domain.Flight) (domain.Flight, error) {
	if f.Price.IsNegative() {
		return domain.Flight{}, fmt.Errorf("upsert flight: %w: negative price", storage.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	key := flightKey{route: f.Route(), departure: f.DepartureTime.UnixNano()}
	if id, ok := s.flightByKey[key]; ok {
		existing := s.flights[id]
		existing.Price = f.Price
		existing.Currency = f.Currency
		existing.ArrivalTime = f.ArrivalTime
		existing.DurationMinutes = f.DurationMinutes
		existing.UpdatedAt = now
		s.flights[id] = existing
		return s.decorateFlight(existing), nil
	}

	s.nextFlightID++
	f.ID = s.nextFlightID
	f.CreatedAt = now
	f.UpdatedAt = now
	s.flights[f.ID] = f
	s.flightByKey[key] = f.ID
	return s.decorateFlight(f), nil
}

// GetFlight implements storage.FlightStore.
func (s *Store) GetFlight(_ context.Context, id int64) (domain.Flight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.flights[id]
	if !ok {
		return domain.Flight{}, storage.ErrNotFound
	}
	return s.decorateFlight(f), nil
}

// ListFlightsCreatedSince implements storage.FlightStore.
func (s *Store) ListFlightsCreatedSince(_ context.Context, since time.Time) ([]domain.Flight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Flight, 0)
	for _, f := range s.flights {
		if !f.CreatedAt.Before(since) {
			result = append(result, s.decorateFlight(f))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ListSubscribers implements storage.SubscriberStore.
func (s *Store) ListSubscribers(_ context.Context) ([]domain.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		result = append(result, cloneSubscriber(sub))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].User.ID < result[j].User.ID })
	return result, nil
}

// TryAdvisoryLock implements storage.AdvisoryLocker within one process.
func (s *Store) TryAdvisoryLock(_ context.Context, key int64) (func(), bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locks[key] {
		return nil, false, nil
	}
	s.locks[key] = true
	var once sync.Once
	unlock := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.locks, key)
			s.mu.Unlock()
		})
	}
	return unlock, true, nil
}

// decorateFlight fills display names the way the SQL joins do. Callers hold the lock.
func (s *Store) decorateFlight(f domain.Flight) domain.Flight {
	f.OriginCity = lookup(s.airports, f.Origin)
	f.DestinationCity = lookup(s.airports, f.Destination)
	f.AirlineName = lookup(s.airlines, f.Airline)
	return f
}

func lookup(m map[string]string, code string) string {
	if v, ok := m[code]; ok && v != "" {
		return v
	}
	return code
}

func cloneSubscriber(sub domain.Subscriber) domain.Subscriber {
	p := sub.Preference
	p.OriginAirports = append([]string(nil), p.OriginAirports...)
	p.SpecificDestinations = append([]string(nil), p.SpecificDestinations...)
	p.Airlines = append([]string(nil), p.Airlines...)
	sub.Preference = p
	return sub
}

var (
	_ storage.ObservationStore  = (*Store)(nil)
	_ storage.FlightStore       = (*Store)(nil)
	_ storage.DealStore         = (*Store)(nil)
	_ storage.SubscriberStore   = (*Store)(nil)
	_ storage.NotificationStore = (*Store)(nil)
	_ storage.AdvisoryLocker    = (*Store)(nil)
)
