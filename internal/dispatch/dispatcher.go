package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"flight-deals/internal/alerting"
	"flight-deals/internal/domain"
	"flight-deals/internal/matcher"
	"flight-deals/internal/metrics"
	"flight-deals/internal/storage"
)

const (
	// DefaultBatchSize is used when a caller passes a non-positive batch size.
	DefaultBatchSize  = 50
	DefaultDigestSize = 5
)

// Dispatcher delivers pending notifications and weekly digests.
type Dispatcher struct {
	notifications storage.NotificationStore
	deals         storage.DealStore
	subscribers   storage.SubscriberStore
	mailer        alerting.Mailer
	renderer      *Renderer
	metrics       *metrics.Metrics
	logger        zerolog.Logger
	now           func() time.Time
	digestSize    int

	// drainMu keeps two drains in this process from selecting the same pending rows.
	// Drains in other processes are kept apart by the job's advisory lock.
	drainMu sync.Mutex
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the clock used for sentAt and tracking timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithDigestSize caps the deals included in a weekly digest.
func WithDigestSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.digestSize = n
		}
	}
}

// WithMetrics attaches instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// New constructs a Dispatcher.
func New(notifications storage.NotificationStore, deals storage.DealStore, subscribers storage.SubscriberStore, mailer alerting.Mailer, renderer *Renderer, logger zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		notifications: notifications,
		deals:         deals,
		subscribers:   subscribers,
		mailer:        mailer,
		renderer:      renderer,
		logger:        logger.With().Str("component", "dispatch").Logger(),
		now:           func() time.Time { return time.Now().UTC() },
		digestSize:    DefaultDigestSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DrainPending sends up to batchSize pending notifications and returns how many were sent.
// A notification that cannot be rendered or delivered is marked failed and is not retried.
func (d *Dispatcher) DrainPending(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	d.drainMu.Lock()
	defer d.drainMu.Unlock()

	pending, err := d.notifications.ListPending(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending notifications: %w", err)
	}

	sent, failed := 0, 0
	for _, p := range pending {
		if err := d.deliver(ctx, p); err != nil {
			failed++
			d.metrics.Dispatched(string(domain.NotificationFailed))
			d.logger.Error().Err(err).Int64("notification_id", p.ID).Int64("user_id", p.UserID).
				Bool("transient", errors.Is(err, domain.ErrTransient)).Msg("notification delivery failed")
			if markErr := d.notifications.MarkFailed(ctx, p.ID); markErr != nil {
				d.logger.Error().Err(markErr).Int64("notification_id", p.ID).Msg("failed to mark notification failed")
			}
			continue
		}

		if err := d.notifications.MarkSent(ctx, p.ID, d.now()); err != nil {
			// the mail is already out; leave the row for inspection rather than resend
			d.logger.Error().Err(err).Int64("notification_id", p.ID).Msg("failed to mark notification sent")
			continue
		}
		sent++
		d.metrics.Dispatched(string(domain.NotificationSent))
	}

	d.logger.Info().Int("batch", len(pending)).Int("sent", sent).Int("failed", failed).Msg("pending notifications processed")
	return sent, nil
}

func (d *Dispatcher) deliver(ctx context.Context, p domain.PendingNotification) error {
	msg, err := d.renderer.RenderDeal(p)
	if err != nil {
		return err
	}
	return d.mailer.Send(ctx, msg)
}

// RecordOpened stamps the first open. Unknown IDs are ignored.
func (d *Dispatcher) RecordOpened(ctx context.Context, id int64) bool {
	known, err := d.notifications.MarkOpened(ctx, id, d.now())
	if err != nil {
		d.logger.Warn().Err(err).Int64("notification_id", id).Msg("failed to record open")
		return false
	}
	d.metrics.Tracked("open", known)
	return known
}

// RecordClicked stamps the first click-through. Unknown IDs are ignored.
func (d *Dispatcher) RecordClicked(ctx context.Context, id int64) bool {
	known, err := d.notifications.MarkClicked(ctx, id, d.now())
	if err != nil {
		d.logger.Warn().Err(err).Int64("notification_id", id).Msg("failed to record click")
		return false
	}
	d.metrics.Tracked("click", known)
	return known
}

// MarkRead marks a user's notification as read.
func (d *Dispatcher) MarkRead(ctx context.Context, userID, id int64) error {
	return d.notifications.MarkRead(ctx, userID, id, d.now())
}

// ListForUser pages through a user's notifications.
func (d *Dispatcher) ListForUser(ctx context.Context, filter storage.NotificationFilter) ([]domain.Notification, int64, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, &domain.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown value %q", filter.Status)}
	}
	return d.notifications.ListUserNotifications(ctx, filter)
}

// SendWeeklyDigest mails each weekly subscriber their best active deals and returns the number
// of users mailed. Users with no matching deals are skipped.
func (d *Dispatcher) SendWeeklyDigest(ctx context.Context) (int, error) {
	subs, err := d.subscribers.ListSubscribers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list subscribers: %w", err)
	}
	active, err := d.deals.ListDeals(ctx, storage.DealFilter{ActiveAt: d.now()})
	if err != nil {
		return 0, fmt.Errorf("list active deals: %w", err)
	}

	sent := 0
	for _, sub := range subs {
		if !digestRecipient(sub) {
			continue
		}
		top := topMatches(sub.Preference, active, d.digestSize)
		if len(top) == 0 {
			d.logger.Debug().Int64("user_id", sub.User.ID).Msg("no matching deals for digest")
			continue
		}

		msg, err := d.renderer.RenderDigest(sub.User, top)
		if err == nil {
			err = d.mailer.Send(ctx, msg)
		}
		if err != nil {
			d.logger.Error().Err(err).Int64("user_id", sub.User.ID).Msg("weekly digest failed")
			continue
		}
		sent++
	}

	d.logger.Info().Int("sent", sent).Int("deals", len(active)).Msg("weekly digest complete")
	return sent, nil
}

func digestRecipient(sub domain.Subscriber) bool {
	return sub.User.EmailVerified &&
		sub.Subscription.Active() &&
		sub.Preference.NotificationFrequency == domain.FrequencyWeekly
}

// topMatches keeps the input order, which is best discount first.
func topMatches(pref domain.UserPreference, deals []domain.DealWithFlight, limit int) []domain.DealWithFlight {
	out := make([]domain.DealWithFlight, 0, limit)
	for _, deal := range deals {
		if len(out) == limit {
			break
		}
		if matcher.Matches(pref, deal) {
			out = append(out, deal)
		}
	}
	return out
}
