package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flight-deals/internal/config"
	"flight-deals/internal/deals"
	"flight-deals/internal/domain"
	"flight-deals/internal/metrics"
	"flight-deals/internal/service"
	"flight-deals/internal/storage"
	"flight-deals/internal/storage/memory"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type fakeEvaluator struct {
	mu        sync.Mutex
	evaluated []int64
}

func (f *fakeEvaluator) EvaluateFlight(_ context.Context, id int64) (*deals.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evaluated = append(f.evaluated, id)
	return nil, nil
}

type fakeRunner struct {
	mu  sync.Mutex
	ran []string
}

func (f *fakeRunner) RunJob(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ran = append(f.ran, name)
	return nil
}

type fakeDispatcher struct {
	opened  []int64
	clicked []int64
	read    map[int64]int64
	items   []domain.Notification
	filter  storage.NotificationFilter
}

func (f *fakeDispatcher) RecordOpened(_ context.Context, id int64) bool {
	f.opened = append(f.opened, id)
	return id == 1
}

func (f *fakeDispatcher) RecordClicked(_ context.Context, id int64) bool {
	f.clicked = append(f.clicked, id)
	return id == 1
}

func (f *fakeDispatcher) MarkRead(_ context.Context, userID, id int64) error {
	if f.read[id] != userID {
		return storage.ErrNotFound
	}
	return nil
}

func (f *fakeDispatcher) ListForUser(_ context.Context, filter storage.NotificationFilter) ([]domain.Notification, int64, error) {
	f.filter = filter
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, &domain.ValidationError{Field: "status", Reason: "unknown"}
	}
	return f.items, int64(len(f.items)), nil
}

type fixture struct {
	server     *Server
	evaluator  *fakeEvaluator
	dispatcher *fakeDispatcher
	runner     *fakeRunner
	store      *memory.Store
	metrics    *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		evaluator:  &fakeEvaluator{},
		dispatcher: &fakeDispatcher{read: map[int64]int64{5: 7}},
		runner:     &fakeRunner{},
		store:      memory.NewStore(),
		metrics:    metrics.New(),
	}
	srv, err := NewServer(Options{FrontendURL: "https://deals.example.com"}, f.evaluator, f.dispatcher, f.runner, f.store, f.metrics, zerolog.Nop())
	require.NoError(t, err)
	srv.now = func() time.Time { return now }
	f.server = srv
	return f
}

func (f *fixture) do(t *testing.T, method, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) seedDeal(t *testing.T, dest string, discount int, featured bool, expires time.Time) domain.Deal {
	t.Helper()
	ctx := context.Background()
	fl, err := f.store.UpsertFlight(ctx, domain.Flight{
		Origin: "JFK", Destination: dest, Airline: "AA", CabinClass: domain.CabinEconomy,
		Price: decimal.NewFromInt(300), Currency: "USD", DepartureTime: now.Add(72 * time.Hour),
	})
	require.NoError(t, err)
	d, _, err := f.store.UpsertDeal(ctx, domain.Deal{
		FlightID: fl.ID, RegularPrice: decimal.NewFromInt(500), DiscountPercentage: discount,
		Quality: domain.QualityGreat, Featured: featured, ExpiresAt: expires,
	})
	require.NoError(t, err)
	return d
}

func TestNewServerRequiresDependencies(t *testing.T) {
	_, err := NewServer(Options{}, nil, &fakeDispatcher{}, &fakeRunner{}, memory.NewStore(), nil, zerolog.Nop())
	assert.Error(t, err)
	_, err = NewServer(Options{}, &fakeEvaluator{}, &fakeDispatcher{}, nil, memory.NewStore(), nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "flightdeals_http_requests_total")
}

func TestTriggerEndpointsReturnAccepted(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{
		"/api/deals/analyze/42",
		"/api/deals/analyze-recent",
		"/api/deals/reevaluate",
		"/api/notifications/process",
		"/api/notifications/weekly-digest",
	} {
		rec := f.do(t, http.MethodPost, path, nil)
		assert.Equal(t, http.StatusAccepted, rec.Code, path)
	}
	f.server.Wait()

	assert.Equal(t, []int64{42}, f.evaluator.evaluated)
	assert.ElementsMatch(t, []string{service.JobAnalyze, service.JobReevaluate, service.JobDrain, service.JobDigest}, f.runner.ran)

	rec := f.do(t, http.MethodPost, "/api/deals/analyze/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type countingDispatcher struct {
	mu      sync.Mutex
	drains  int
	digests int
}

func (d *countingDispatcher) DrainPending(context.Context, int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drains++
	return 0, nil
}

func (d *countingDispatcher) SendWeeklyDigest(context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.digests++
	return 0, nil
}

func TestTriggersShareSchedulerJobLock(t *testing.T) {
	store := memory.NewStore()
	cfg := &config.Config{}
	cfg.Scheduler.AdvisoryLockKey = 500
	cfg.Dispatch.BatchSize = 10
	work := &countingDispatcher{}
	svc := service.New(cfg, service.Deps{Dispatcher: work, Locker: store}, zerolog.Nop())

	srv, err := NewServer(Options{}, &fakeEvaluator{}, &fakeDispatcher{}, svc, store, nil, zerolog.Nop())
	require.NoError(t, err)
	post := func(path string) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	// a scheduled drain is in flight
	unlock, ok, err := store.TryAdvisoryLock(context.Background(), 500)
	require.NoError(t, err)
	require.True(t, ok)

	post("/api/notifications/process")
	srv.Wait()
	assert.Zero(t, work.drains)

	// the digest uses its own key and is not blocked by the drain
	post("/api/notifications/weekly-digest")
	srv.Wait()
	assert.Equal(t, 1, work.digests)

	unlock()
	post("/api/notifications/process")
	srv.Wait()
	assert.Equal(t, 1, work.drains)
}

func TestTrackOpenAlwaysServesPixel(t *testing.T) {
	f := newFixture(t)

	for _, id := range []string{"1", "999", "junk"} {
		rec := f.do(t, http.MethodGet, "/api/notifications/track/open/"+id, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
		assert.Equal(t, transparentGIF, rec.Body.Bytes())
	}
	assert.Equal(t, []int64{1, 999}, f.dispatcher.opened)
}

func TestTrackClickAlwaysRedirects(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/notifications/track/click/1?redirect=https%3A%2F%2Fdeals.example.com%2Fdeals%2F3", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://deals.example.com/deals/3", rec.Header().Get("Location"))

	rec = f.do(t, http.MethodGet, "/api/notifications/track/click/999", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://deals.example.com", rec.Header().Get("Location"))

	rec = f.do(t, http.MethodGet, "/api/notifications/track/click/1?redirect=https%3A%2F%2Fevil.example.net%2F", nil)
	assert.Equal(t, "https://deals.example.com", rec.Header().Get("Location"))

	assert.Equal(t, []int64{1, 999, 1}, f.dispatcher.clicked)
}

func TestListDeals(t *testing.T) {
	f := newFixture(t)
	f.seedDeal(t, "LAX", 30, false, now.Add(time.Hour))
	best := f.seedDeal(t, "MIA", 55, true, now.Add(time.Hour))
	f.seedDeal(t, "SFO", 60, true, now.Add(-time.Hour))

	rec := f.do(t, http.MethodGet, "/api/deals?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list dealListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, int64(2), list.Total)
	require.Len(t, list.Deals, 2)
	assert.Equal(t, best.ID, list.Deals[0].ID)
	assert.Equal(t, "300.00", list.Deals[0].Price)
	assert.Equal(t, "500.00", list.Deals[0].RegularPrice)

	rec = f.do(t, http.MethodGet, "/api/deals?destination=lax", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Deals, 1)
	assert.Equal(t, "LAX", list.Deals[0].Destination)

	rec = f.do(t, http.MethodGet, "/api/deals/featured", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Deals, 1)
	assert.Equal(t, best.ID, list.Deals[0].ID)

	for _, q := range []string{"limit=0", "limit=500", "offset=-1", "min_discount=101", "limit=x"} {
		rec = f.do(t, http.MethodGet, "/api/deals?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestGetDeal(t *testing.T) {
	f := newFixture(t)
	d := f.seedDeal(t, "LAX", 30, false, now.Add(time.Hour))

	rec := f.do(t, http.MethodGet, "/api/deals/"+strconv.FormatInt(d.ID, 10), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got dealResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, d.ID, got.ID)
	assert.Equal(t, "great", got.Quality)

	rec = f.do(t, http.MethodGet, "/api/deals/9999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotificationsRequireUser(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/notifications", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/notifications/5/read", map[string]string{userIDHeader: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListNotifications(t *testing.T) {
	f := newFixture(t)
	sent := now.Add(-time.Minute)
	f.dispatcher.items = []domain.Notification{{ID: 5, UserID: 7, DealID: 3, Status: domain.NotificationSent, CreatedAt: now.Add(-time.Hour), SentAt: &sent}}

	rec := f.do(t, http.MethodGet, "/api/notifications?status=sent&limit=5&offset=0", map[string]string{userIDHeader: "7"})
	require.Equal(t, http.StatusOK, rec.Code)
	var list notificationListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Notifications, 1)
	assert.Equal(t, int64(3), list.Notifications[0].DealID)
	assert.Nil(t, list.Notifications[0].ReadAt)
	assert.Equal(t, storage.NotificationFilter{UserID: 7, Status: domain.NotificationSent, Limit: 5}, f.dispatcher.filter)

	rec = f.do(t, http.MethodGet, "/api/notifications?status=bogus", map[string]string{userIDHeader: "7"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/api/notifications/5/read", map[string]string{userIDHeader: "7"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/notifications/5/read", map[string]string{userIDHeader: "8"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
