package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flight-deals/internal/alerting"
	"flight-deals/internal/domain"
	"flight-deals/internal/storage"
	"flight-deals/internal/storage/memory"
)

var now = time.Date(2025, 6, 15, 3, 0, 0, 0, time.UTC)

type fakeMailer struct {
	mu     sync.Mutex
	sent   []alerting.Message
	failTo map[string]bool
}

func (f *fakeMailer) Send(_ context.Context, msg alerting.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[msg.To] {
		return domain.Transient(errors.New("relay refused"))
	}
	f.sent = append(f.sent, msg)
	return nil
}

func pref(freq domain.NotificationFrequency) domain.UserPreference {
	return domain.UserPreference{
		DestinationPreference: domain.DestinationsAll,
		AirlinePreference:     domain.AirlinesAll,
		TravelClass:           domain.TravelEconomy,
		MinDiscount:           20,
		NotificationFrequency: freq,
	}
}

func putUser(store *memory.Store, id int64, email string, status domain.SubscriptionStatus, p domain.UserPreference) {
	store.PutSubscriber(domain.Subscriber{
		User:         domain.User{ID: id, Email: email, EmailVerified: true},
		Subscription: domain.Subscription{UserID: id, Status: status, PlanType: domain.PlanPremium},
		Preference:   p,
	})
}

func seedDeal(t *testing.T, store *memory.Store, dest string, discount int) domain.DealWithFlight {
	t.Helper()
	ctx := context.Background()
	f, err := store.UpsertFlight(ctx, domain.Flight{
		Origin: "JFK", Destination: dest, Airline: "AA", CabinClass: domain.CabinEconomy,
		Price: decimal.NewFromInt(300), Currency: "USD", DepartureTime: now.Add(72 * time.Hour),
		ArrivalTime: now.Add(78 * time.Hour), DurationMinutes: 360,
	})
	require.NoError(t, err)
	d, _, err := store.UpsertDeal(ctx, domain.Deal{
		FlightID: f.ID, RegularPrice: decimal.NewFromInt(500), DiscountPercentage: discount,
		Quality: domain.QualityGood, ExpiresAt: now.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	dw, err := store.GetDeal(ctx, d.ID)
	require.NoError(t, err)
	return dw
}

func newDispatcher(t *testing.T, store *memory.Store, mailer alerting.Mailer) *Dispatcher {
	t.Helper()
	r, err := NewRenderer("https://deals.example.com", "https://api.example.com")
	require.NoError(t, err)
	return New(store, store, store, mailer, r, zerolog.Nop(), WithClock(func() time.Time { return now }), WithDigestSize(2))
}

func TestDrainPendingMarksSentAndFailed(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	putUser(store, 1, "ok@example.com", domain.SubscriptionActive, pref(domain.FrequencyDaily))
	putUser(store, 2, "bad@example.com", domain.SubscriptionActive, pref(domain.FrequencyDaily))
	deal := seedDeal(t, store, "LAX", 40)

	okN, _, err := store.CreateNotification(ctx, 1, deal.ID, now)
	require.NoError(t, err)
	badN, _, err := store.CreateNotification(ctx, 2, deal.ID, now)
	require.NoError(t, err)

	mailer := &fakeMailer{failTo: map[string]bool{"bad@example.com": true}}
	d := newDispatcher(t, store, mailer)

	sent, err := d.DrainPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "ok@example.com", mailer.sent[0].To)

	got, ok := store.Notification(okN.ID)
	require.True(t, ok)
	assert.Equal(t, domain.NotificationSent, got.Status)
	require.NotNil(t, got.SentAt)
	assert.Equal(t, now, *got.SentAt)

	got, ok = store.Notification(badN.ID)
	require.True(t, ok)
	assert.Equal(t, domain.NotificationFailed, got.Status)
	assert.Nil(t, got.SentAt)

	// nothing left to drain; failed items are not retried
	sent, err = d.DrainPending(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Len(t, mailer.sent, 1)
}

func TestDrainPendingRespectsBatchSize(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	deal := seedDeal(t, store, "LAX", 40)
	for id := int64(1); id <= 3; id++ {
		putUser(store, id, "u@example.com", domain.SubscriptionActive, pref(domain.FrequencyDaily))
		_, _, err := store.CreateNotification(ctx, id, deal.ID, now.Add(time.Duration(id)*time.Second))
		require.NoError(t, err)
	}

	d := newDispatcher(t, store, &fakeMailer{})
	sent, err := d.DrainPending(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	pending, err := store.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(3), pending[0].UserID)
}

// slowMailer holds each send long enough for a concurrent drain to overlap it.
type slowMailer struct {
	fakeMailer
	delay time.Duration
}

func (s *slowMailer) Send(ctx context.Context, msg alerting.Message) error {
	time.Sleep(s.delay)
	return s.fakeMailer.Send(ctx, msg)
}

func TestConcurrentDrainsSendOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	putUser(store, 1, "ok@example.com", domain.SubscriptionActive, pref(domain.FrequencyDaily))
	deal := seedDeal(t, store, "LAX", 40)
	_, _, err := store.CreateNotification(ctx, 1, deal.ID, now)
	require.NoError(t, err)

	mailer := &slowMailer{delay: 20 * time.Millisecond}
	d := newDispatcher(t, store, mailer)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sent, err := d.DrainPending(ctx, 10)
			assert.NoError(t, err)
			mu.Lock()
			total += sent
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, total)
	assert.Len(t, mailer.sent, 1)
}

func TestTrackingIsFirstWinsAndToleratesUnknownIDs(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	putUser(store, 1, "ok@example.com", domain.SubscriptionActive, pref(domain.FrequencyDaily))
	deal := seedDeal(t, store, "LAX", 40)
	n, _, err := store.CreateNotification(ctx, 1, deal.ID, now)
	require.NoError(t, err)

	clock := now
	r, err := NewRenderer("", "")
	require.NoError(t, err)
	d := New(store, store, store, &fakeMailer{}, r, zerolog.Nop(), WithClock(func() time.Time { return clock }))

	assert.True(t, d.RecordOpened(ctx, n.ID))
	assert.True(t, d.RecordClicked(ctx, n.ID))
	clock = now.Add(time.Hour)
	assert.True(t, d.RecordOpened(ctx, n.ID))

	got, _ := store.Notification(n.ID)
	require.NotNil(t, got.OpenedAt)
	assert.Equal(t, now, *got.OpenedAt)
	require.NotNil(t, got.ClickedAt)
	assert.Equal(t, now, *got.ClickedAt)

	assert.False(t, d.RecordOpened(ctx, 999))
	assert.False(t, d.RecordClicked(ctx, 999))
}

func TestMarkReadAndListForUser(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	putUser(store, 1, "a@example.com", domain.SubscriptionActive, pref(domain.FrequencyDaily))
	putUser(store, 2, "b@example.com", domain.SubscriptionActive, pref(domain.FrequencyDaily))
	deal := seedDeal(t, store, "LAX", 40)
	n, _, err := store.CreateNotification(ctx, 1, deal.ID, now)
	require.NoError(t, err)

	d := newDispatcher(t, store, &fakeMailer{})

	require.ErrorIs(t, d.MarkRead(ctx, 2, n.ID), storage.ErrNotFound)
	require.NoError(t, d.MarkRead(ctx, 1, n.ID))

	items, total, err := d.ListForUser(ctx, storage.NotificationFilter{UserID: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].ReadAt)

	_, _, err = d.ListForUser(ctx, storage.NotificationFilter{UserID: 1, Status: "bogus"})
	assert.True(t, domain.IsValidation(err))
}

func TestSendWeeklyDigest(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	picky := pref(domain.FrequencyWeekly)
	picky.MinDiscount = 90

	putUser(store, 1, "weekly@example.com", domain.SubscriptionActive, pref(domain.FrequencyWeekly))
	putUser(store, 2, "daily@example.com", domain.SubscriptionActive, pref(domain.FrequencyDaily))
	putUser(store, 3, "canceled@example.com", domain.SubscriptionCanceled, pref(domain.FrequencyWeekly))
	putUser(store, 4, "picky@example.com", domain.SubscriptionTrialing, picky)
	store.PutSubscriber(domain.Subscriber{
		User:         domain.User{ID: 5, Email: "unverified@example.com"},
		Subscription: domain.Subscription{UserID: 5, Status: domain.SubscriptionActive},
		Preference:   pref(domain.FrequencyWeekly),
	})

	seedDeal(t, store, "LAX", 30)
	seedDeal(t, store, "MIA", 50)
	seedDeal(t, store, "SFO", 40)

	mailer := &fakeMailer{}
	d := newDispatcher(t, store, mailer)

	sent, err := d.SendWeeklyDigest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, mailer.sent, 1)

	msg := mailer.sent[0]
	assert.Equal(t, "weekly@example.com", msg.To)
	assert.Equal(t, "Your Weekly Flight Deals: 2 deals up to 50% off", msg.Subject)
	assert.Contains(t, msg.Text, "MIA")
	assert.Contains(t, msg.Text, "SFO")
	assert.NotContains(t, msg.Text, "(LAX)")
}
