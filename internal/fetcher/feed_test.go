package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"flight-deals/internal/domain"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

var day = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

func TestFeedScrapeSuccess(t *testing.T) {
	var dates []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fares" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("User-Agent") != "test" {
			t.Errorf("user agent not forwarded")
		}
		dates = append(dates, r.URL.Query().Get("date"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"fares": []map[string]any{{
				"airline":          "AA",
				"cabin_class":      "economy",
				"price":            "199.99",
				"currency":         "USD",
				"departure_time":   r.URL.Query().Get("date") + "T08:00:00Z",
				"arrival_time":     r.URL.Query().Get("date") + "T13:30:00Z",
				"duration_minutes": 330,
			}},
		})
	}))
	defer srv.Close()

	feed := NewFeed(FeedOptions{BaseURL: srv.URL + "/", Timeout: time.Second, UserAgent: "test"}, noopLogger())
	feed.now = func() time.Time { return day }

	fares, err := feed.Scrape(context.Background(), "JFK", "LAX", []time.Time{day, day.AddDate(0, 0, 1)})
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	if len(fares) != 2 {
		t.Fatalf("expected 2 fares, got %d", len(fares))
	}
	if dates[0] != "2025-07-01" || dates[1] != "2025-07-02" {
		t.Fatalf("unexpected requested dates %v", dates)
	}
	got := fares[0]
	if got.Origin != "JFK" || got.Destination != "LAX" {
		t.Fatalf("route not filled from request: %+v", got)
	}
	if !got.Price.Equal(decimal.RequireFromString("199.99")) {
		t.Fatalf("expected price 199.99, got %s", got.Price)
	}
	if !got.ObservedAt.Equal(day) {
		t.Fatalf("observed_at should default to scrape time")
	}
}

func TestFeedScrapeClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "unknown airport"})
	}))
	defer srv.Close()

	feed := NewFeed(FeedOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	_, err := feed.Scrape(context.Background(), "JFK", "XXX", []time.Time{day})
	if err == nil {
		t.Fatal("HTTP 400 should fail")
	}
	if errors.Is(err, domain.ErrTransient) {
		t.Fatal("HTTP 400 should not be transient")
	}
}

func TestFeedScrapeServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	feed := NewFeed(FeedOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	_, err := feed.Scrape(context.Background(), "JFK", "LAX", []time.Time{day})
	if !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestFeedRejectsOversizedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"fares":[` + strings.Repeat(" ", 512) + `]}`))
	}))
	defer srv.Close()

	feed := NewFeed(FeedOptions{BaseURL: srv.URL, Timeout: time.Second, MaxBodyBytes: 64}, noopLogger())
	_, err := feed.Scrape(context.Background(), "JFK", "LAX", []time.Time{day})
	if err == nil {
		t.Fatal("oversized response should fail")
	}
	if !strings.Contains(err.Error(), "exceeds 64 bytes") {
		t.Fatalf("unexpected error: %v", err)
	}
	if errors.Is(err, domain.ErrTransient) {
		t.Fatal("oversized response should not be transient")
	}

	roomy := NewFeed(FeedOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	fares, err := roomy.Scrape(context.Background(), "JFK", "LAX", []time.Time{day})
	if err != nil {
		t.Fatalf("default cap should accept the response: %v", err)
	}
	if len(fares) != 0 {
		t.Fatalf("expected no fares, got %d", len(fares))
	}
}

func TestFeedRequiresBaseURL(t *testing.T) {
	feed := NewFeed(FeedOptions{}, noopLogger())
	if _, err := feed.Scrape(context.Background(), "JFK", "LAX", []time.Time{day}); err == nil {
		t.Fatal("missing base url should fail")
	}
}

func TestFareNormalize(t *testing.T) {
	fare := Fare{
		Origin:        " jfk",
		Destination:   "lax ",
		Airline:       "aa",
		Price:         decimal.NewFromInt(250),
		DepartureTime: day.Add(8 * time.Hour),
		ArrivalTime:   day.Add(13*time.Hour + 30*time.Minute),
	}
	got, err := fare.Normalize()
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if got.Origin != "JFK" || got.Destination != "LAX" || got.Airline != "AA" {
		t.Fatalf("codes not upper-cased: %+v", got)
	}
	if got.CabinClass != domain.CabinEconomy || got.Currency != "USD" {
		t.Fatalf("defaults not applied: %+v", got)
	}
	if got.DurationMinutes != 330 {
		t.Fatalf("expected derived duration 330, got %d", got.DurationMinutes)
	}

	bad := []Fare{
		{Origin: "JF", Destination: "LAX", Airline: "AA", Price: decimal.NewFromInt(1), DepartureTime: day},
		{Origin: "JFK", Destination: "JFK", Airline: "AA", Price: decimal.NewFromInt(1), DepartureTime: day},
		{Origin: "JFK", Destination: "LAX", Price: decimal.NewFromInt(1), DepartureTime: day},
		{Origin: "JFK", Destination: "LAX", Airline: "AA", Price: decimal.Zero, DepartureTime: day},
		{Origin: "JFK", Destination: "LAX", Airline: "AA", Price: decimal.NewFromInt(1)},
		{Origin: "JFK", Destination: "LAX", Airline: "AA", CabinClass: "steerage", Price: decimal.NewFromInt(1), DepartureTime: day},
	}
	for i, f := range bad {
		if _, err := f.Normalize(); !domain.IsValidation(err) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}
