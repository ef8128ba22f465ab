package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"flight-deals/internal/domain"
	"flight-deals/internal/storage"
)

// CreateNotification implements storage.NotificationStore.
func (s *Store) CreateNotification(_ context.Context, userID, dealID int64, at time.Time) (domain.Notification, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscribers[userID]; !ok {
		return domain.Notification{}, false, fmt.Errorf("create notification: user %d: %w", userID, storage.ErrNotFound)
	}
	if _, ok := s.deals[dealID]; !ok {
		return domain.Notification{}, false, fmt.Errorf("create notification: deal %d: %w", dealID, storage.ErrNotFound)
	}

	key := pairKey{userID: userID, dealID: dealID}
	if id, ok := s.notifByPair[key]; ok {
		return s.notifications[id], false, nil
	}

	if at.IsZero() {
		at = s.now()
	}
	s.nextNotifID++
	n := domain.Notification{
		ID:        s.nextNotifID,
		UserID:    userID,
		DealID:    dealID,
		Status:    domain.NotificationPending,
		CreatedAt: at,
	}
	s.notifications[n.ID] = n
	s.notifByPair[key] = n.ID
	return n, true, nil
}

// ListPending implements storage.NotificationStore.
func (s *Store) ListPending(_ context.Context, limit int) ([]domain.PendingNotification, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("list pending: %w: limit must be positive", storage.ErrInvalidInput)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := make([]domain.Notification, 0)
	for _, n := range s.notifications {
		if n.Status == domain.NotificationPending {
			pending = append(pending, n)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		}
		return pending[i].ID < pending[j].ID
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}

	result := make([]domain.PendingNotification, 0, len(pending))
	for _, n := range pending {
		result = append(result, domain.PendingNotification{
			Notification: n,
			User:         s.subscribers[n.UserID].User,
			Deal:         s.withFlight(s.deals[n.DealID]),
		})
	}
	return result, nil
}

// MarkSent implements storage.NotificationStore.
func (s *Store) MarkSent(_ context.Context, id int64, at time.Time) error {
	return s.update(id, func(n *domain.Notification) {
		n.Status = domain.NotificationSent
		n.SentAt = stamp(at)
	})
}

// MarkFailed implements storage.NotificationStore.
func (s *Store) MarkFailed(_ context.Context, id int64) error {
	return s.update(id, func(n *domain.Notification) {
		n.Status = domain.NotificationFailed
	})
}

// MarkOpened implements storage.NotificationStore.
func (s *Store) MarkOpened(_ context.Context, id int64, at time.Time) (bool, error) {
	err := s.update(id, func(n *domain.Notification) {
		if n.OpenedAt == nil {
			n.OpenedAt = stamp(at)
		}
	})
	return err == nil, nil
}

// MarkClicked implements storage.NotificationStore.
func (s *Store) MarkClicked(_ context.Context, id int64, at time.Time) (bool, error) {
	err := s.update(id, func(n *domain.Notification) {
		if n.ClickedAt == nil {
			n.ClickedAt = stamp(at)
		}
	})
	return err == nil, nil
}

// MarkRead implements storage.NotificationStore.
func (s *Store) MarkRead(_ context.Context, userID, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok || n.UserID != userID {
		return storage.ErrNotFound
	}
	if n.ReadAt == nil {
		n.ReadAt = stamp(at)
	}
	s.notifications[id] = n
	return nil
}

// ListUserNotifications implements storage.NotificationStore.
func (s *Store) ListUserNotifications(_ context.Context, filter storage.NotificationFilter) ([]domain.Notification, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Notification, 0)
	for _, n := range s.notifications {
		if n.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && n.Status != filter.Status {
			continue
		}
		matched = append(matched, n)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []domain.Notification{}, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

// Notification returns a stored notification by ID.
func (s *Store) Notification(id int64) (domain.Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[id]
	return n, ok
}

func (s *Store) update(id int64, mutate func(*domain.Notification)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return storage.ErrNotFound
	}
	mutate(&n)
	s.notifications[id] = n
	return nil
}

func stamp(t time.Time) *time.Time {
	return &t
}
