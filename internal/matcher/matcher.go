package matcher

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"flight-deals/internal/domain"
	"flight-deals/internal/metrics"
	"flight-deals/internal/storage"
)

// Matcher fans a new deal out to matching subscribers.
type Matcher struct {
	subscribers   storage.SubscriberStore
	notifications storage.NotificationStore
	metrics       *metrics.Metrics
	logger        zerolog.Logger
	now           func() time.Time
}

// New constructs a Matcher. m may be nil.
func New(subscribers storage.SubscriberStore, notifications storage.NotificationStore, m *metrics.Metrics, logger zerolog.Logger) *Matcher {
	return &Matcher{
		subscribers:   subscribers,
		notifications: notifications,
		metrics:       m,
		logger:        logger.With().Str("component", "matcher").Logger(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the timestamp source for created notifications.
func (m *Matcher) WithClock(now func() time.Time) *Matcher {
	m.now = now
	return m
}

// Eligible returns subscribers with an active or trialing subscription whose preference matches the deal.
func (m *Matcher) Eligible(ctx context.Context, deal domain.DealWithFlight) ([]domain.Subscriber, error) {
	subs, err := m.subscribers.ListSubscribers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}

	eligible := make([]domain.Subscriber, 0)
	for _, sub := range subs {
		if !sub.Subscription.Active() {
			continue
		}
		if rule, ok := Mismatch(sub.Preference, deal); !ok {
			m.logger.Debug().Int64("user_id", sub.User.ID).Int64("deal_id", deal.ID).Str("rule", rule).Msg("preference rejected deal")
			continue
		}
		eligible = append(eligible, sub)
	}
	return eligible, nil
}

// NotifyDeal queues one pending notification per eligible subscriber and returns how many were
// newly created. Running it again for the same deal creates nothing new. A failure for one user
// is logged and the remaining users are still processed.
func (m *Matcher) NotifyDeal(ctx context.Context, deal domain.DealWithFlight) (int, error) {
	eligible, err := m.Eligible(ctx, deal)
	if err != nil {
		return 0, err
	}

	created := 0
	at := m.now()
	for _, sub := range eligible {
		n, isNew, err := m.notifications.CreateNotification(ctx, sub.User.ID, deal.ID, at)
		if err != nil {
			m.metrics.FanoutFailed()
			m.logger.Error().Err(err).Int64("user_id", sub.User.ID).Int64("deal_id", deal.ID).Msg("failed to queue notification")
			continue
		}
		if !isNew {
			m.logger.Debug().Int64("user_id", sub.User.ID).Int64("notification_id", n.ID).Msg("notification already exists")
			continue
		}
		created++
		m.metrics.NotificationQueued()
	}

	m.logger.Info().Int64("deal_id", deal.ID).Int("eligible", len(eligible)).Int("queued", created).Msg("deal fanned out")
	return created, nil
}
