package memory

import (
	"context"
	"sort"
	"time"

	"flight-deals/internal/domain"
	"flight-deals/internal/storage"
)

// UpsertDeal implements storage.DealStore.
func (s *Store) UpsertDeal(_ context.Context, d domain.Deal) (domain.Deal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.flights[d.FlightID]; !ok {
		return domain.Deal{}, false, storage.ErrNotFound
	}

	now := d.UpdatedAt
	if now.IsZero() {
		now = s.now()
	}

	if id, ok := s.dealByFlight[d.FlightID]; ok {
		existing := s.deals[id]
		existing.RegularPrice = d.RegularPrice
		existing.DiscountPercentage = d.DiscountPercentage
		existing.Quality = d.Quality
		existing.Featured = d.Featured
		existing.ExpiresAt = d.ExpiresAt
		existing.UpdatedAt = now
		s.deals[id] = existing
		return existing, false, nil
	}

	s.nextDealID++
	d.ID = s.nextDealID
	d.CreatedAt = now
	d.UpdatedAt = now
	s.deals[d.ID] = d
	s.dealByFlight[d.FlightID] = d.ID
	return d, true, nil
}

// GetDeal implements storage.DealStore.
func (s *Store) GetDeal(_ context.Context, id int64) (domain.DealWithFlight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deals[id]
	if !ok {
		return domain.DealWithFlight{}, storage.ErrNotFound
	}
	return s.withFlight(d), nil
}

// ListDeals implements storage.DealStore.
func (s *Store) ListDeals(_ context.Context, filter storage.DealFilter) ([]domain.DealWithFlight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.filterDeals(filter)
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []domain.DealWithFlight{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// CountDeals implements storage.DealStore.
func (s *Store) CountDeals(_ context.Context, filter storage.DealFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.filterDeals(filter))), nil
}

// DeleteExpiredDeals implements storage.DealStore. Notifications of removed deals go with them.
func (s *Store) DeleteExpiredDeals(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, d := range s.deals {
		if !d.ExpiresAt.Before(now) {
			continue
		}
		delete(s.deals, id)
		delete(s.dealByFlight, d.FlightID)
		removed++

		for nid, n := range s.notifications {
			if n.DealID == id {
				delete(s.notifications, nid)
				delete(s.notifByPair, pairKey{userID: n.UserID, dealID: n.DealID})
			}
		}
	}
	return removed, nil
}

// filterDeals applies every filter but paging. Callers hold the lock.
func (s *Store) filterDeals(filter storage.DealFilter) []domain.DealWithFlight {
	result := make([]domain.DealWithFlight, 0)
	for _, d := range s.deals {
		if !filter.ActiveAt.IsZero() && !d.ExpiresAt.After(filter.ActiveAt) {
			continue
		}
		if filter.MinDiscount > 0 && d.DiscountPercentage < filter.MinDiscount {
			continue
		}
		if filter.FeaturedOnly && !d.Featured {
			continue
		}
		dw := s.withFlight(d)
		if filter.Origin != "" && dw.Flight.Origin != filter.Origin {
			continue
		}
		if filter.Destination != "" && dw.Flight.Destination != filter.Destination {
			continue
		}
		if filter.Airline != "" && dw.Flight.Airline != filter.Airline {
			continue
		}
		result = append(result, dw)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].DiscountPercentage != result[j].DiscountPercentage {
			return result[i].DiscountPercentage > result[j].DiscountPercentage
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (s *Store) withFlight(d domain.Deal) domain.DealWithFlight {
	return domain.DealWithFlight{Deal: d, Flight: s.decorateFlight(s.flights[d.FlightID])}
}
