package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flight-deals/internal/config"
	"flight-deals/internal/domain"
	"flight-deals/internal/service"
	"flight-deals/internal/storage"
	"flight-deals/internal/storage/memory"
)

var route = domain.Route{Origin: "JFK", Destination: "LAX", Airline: "AA", CabinClass: domain.CabinEconomy}

func newTestApp(t *testing.T) (*App, *memory.Store, *bytes.Buffer) {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := config.Load("")
	require.NoError(t, err)

	store := memory.NewStore()
	store.PutAirport("JFK", "New York")
	store.PutAirport("LAX", "Los Angeles")

	out := &bytes.Buffer{}
	a := NewApp(cfg, zerolog.Nop())
	a.Out = out
	a.stores = store
	return a, store, out
}

// seedHistory writes a flat 500.00 history over the last few weeks.
func seedHistory(t *testing.T, store *memory.Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Now().UTC().Add(-30 * 24 * time.Hour)
	for i := 0; i < 10; i++ {
		_, err := store.AppendObservation(ctx, domain.PriceObservation{
			Origin: route.Origin, Destination: route.Destination, Airline: route.Airline, CabinClass: route.CabinClass,
			Price: decimal.NewFromInt(500), Currency: "USD", ObservedAt: base.Add(time.Duration(i) * 48 * time.Hour),
		})
		require.NoError(t, err)
	}
}

func TestEvaluateFlightCreatesDealAndShowListsIt(t *testing.T) {
	a, store, out := newTestApp(t)
	seedHistory(t, store)
	ctx := context.Background()

	f, err := store.UpsertFlight(ctx, domain.Flight{
		Origin: "JFK", Destination: "LAX", Airline: "AA", CabinClass: domain.CabinEconomy,
		Price: decimal.NewFromInt(300), Currency: "USD", DepartureTime: time.Now().UTC().Add(96 * time.Hour), DurationMinutes: 330,
	})
	require.NoError(t, err)

	require.NoError(t, a.EvaluateFlight(ctx, f.ID))
	assert.Contains(t, out.String(), "created deal")
	assert.Contains(t, out.String(), "40% off")

	out.Reset()
	require.NoError(t, a.Show(ctx, ShowOptions{}))
	assert.Contains(t, out.String(), "JFK-LAX")
	assert.Contains(t, out.String(), "5h 30m")
	assert.Contains(t, out.String(), "40%")

	out.Reset()
	require.NoError(t, a.EvaluateFlight(ctx, 9999))
	assert.Contains(t, out.String(), "not found")
}

func TestSimulateDoesNotPersist(t *testing.T) {
	a, store, out := newTestApp(t)
	seedHistory(t, store)
	ctx := context.Background()

	require.NoError(t, a.Simulate(ctx, route, decimal.NewFromInt(250)))
	assert.Contains(t, out.String(), "amazing deal, 50% off")

	n, err := store.CountDeals(ctx, storage.DealFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)

	out.Reset()
	require.NoError(t, a.Simulate(ctx, route, decimal.NewFromInt(495)))
	assert.Contains(t, out.String(), "not a deal")

	assert.True(t, domain.IsValidation(a.Simulate(ctx, route, decimal.Zero)))
}

func TestIngestFile(t *testing.T) {
	a, store, out := newTestApp(t)
	path := filepath.Join(t.TempDir(), "fares.jsonl")
	body := `{"origin":"JFK","destination":"LAX","airline":"AA","price":"320","departure_time":"2030-01-01T08:00:00Z"}
{"origin":"JFK","destination":"JFK","airline":"AA","price":"320","departure_time":"2030-01-01T08:00:00Z"}
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	require.NoError(t, a.IngestFile(context.Background(), path))
	assert.Contains(t, out.String(), "recorded=1 rejected=1")

	flights, err := store.ListFlightsCreatedSince(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Len(t, flights, 1)

	assert.Error(t, a.IngestFile(context.Background(), filepath.Join(t.TempDir(), "missing.jsonl")))
}

func TestExportCSV(t *testing.T) {
	a, store, _ := newTestApp(t)
	seedHistory(t, store)
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "history.csv")

	require.NoError(t, a.Export(context.Background(), ExportOptions{Route: route, CSVPath: csvPath, MaxPoints: 4}))

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, "observed_at", records[0][0])
	assert.Equal(t, "500.00", records[1][5])

	assert.Error(t, a.Export(context.Background(), ExportOptions{Route: route}))
}

func TestDownsampleKeepsEnds(t *testing.T) {
	history := make([]domain.PriceObservation, 10)
	for i := range history {
		history[i].ID = int64(i)
	}
	got := downsample(history, 3)
	require.Len(t, got, 3)
	assert.Equal(t, int64(0), got[0].ID)
	assert.Equal(t, int64(9), got[2].ID)
	assert.Len(t, downsample(history, 20), 10)
}

func TestRunJob(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()
	for _, name := range []string{service.JobSweep, service.JobDrain, service.JobDigest, service.JobAnalyze, service.JobReevaluate, service.JobIngest} {
		require.NoError(t, a.RunJob(ctx, name), name)
	}
	err := a.RunJob(ctx, "bogus")
	assert.ErrorIs(t, err, service.ErrUnknownJob)
	assert.True(t, strings.Contains(err.Error(), "bogus"))
}

func TestMigrateRequiresDSN(t *testing.T) {
	a, _, _ := newTestApp(t)
	assert.Error(t, a.Migrate(context.Background()))
}

func TestSchedulerOptionsFollowConfig(t *testing.T) {
	opts := schedulerOptions(config.SchedulerConfig{
		Interval:        5 * time.Minute,
		AlignToInterval: true,
		StartupDelay:    time.Second,
		RunOnStart:      true,
	})
	assert.Equal(t, 5*time.Minute, opts.Interval)
	assert.True(t, opts.AlignToInterval)
	assert.Equal(t, time.Second, opts.StartupDelay)
	assert.True(t, opts.RunOnStart)
}
