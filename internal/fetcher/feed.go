package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"flight-deals/internal/domain"
)

const (
	faresPath = "/fares"

	// DefaultMaxBodyBytes caps a single fare response.
	DefaultMaxBodyBytes int64 = 4 << 20
)

// FeedOptions parameterise the HTTP fare feed.
type FeedOptions struct {
	BaseURL      string
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
}

// Feed queries a JSON fare feed, one request per departure date.
type Feed struct {
	opts    FeedOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	now     func() time.Time
}

// NewFeed constructs a feed source.
func NewFeed(opts FeedOptions, logger zerolog.Logger) *Feed {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	return &Feed{
		opts:    opts,
		logger:  logger.With().Str("component", "fare_feed").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Scrape fetches fares for every date. A failing date aborts the scrape; upstream failures are transient.
func (f *Feed) Scrape(ctx context.Context, origin, destination string, dates []time.Time) ([]Fare, error) {
	if f.baseURL == "" {
		return nil, fmt.Errorf("fare feed base url is not configured")
	}

	var fares []Fare
	for _, date := range dates {
		batch, err := f.fetchDate(ctx, origin, destination, date)
		if err != nil {
			return nil, fmt.Errorf("scrape %s-%s on %s: %w", origin, destination, date.Format(time.DateOnly), err)
		}
		fares = append(fares, batch...)
	}
	f.logger.Debug().Str("origin", origin).Str("destination", destination).Int("dates", len(dates)).Int("fares", len(fares)).Msg("scraped fares")
	return fares, nil
}

func (f *Feed) fetchDate(ctx context.Context, origin, destination string, date time.Time) ([]Fare, error) {
	query := url.Values{}
	query.Set("origin", origin)
	query.Set("destination", destination)
	query.Set("date", date.UTC().Format(time.DateOnly))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+faresPath+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(f.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "flightdeals/1.0")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, domain.Transient(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes+1))
	if err != nil {
		return nil, domain.Transient(err)
	}
	if int64(len(payload)) > f.opts.MaxBodyBytes {
		return nil, fmt.Errorf("fare response exceeds %d bytes", f.opts.MaxBodyBytes)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := parseHTTPError(resp.StatusCode, payload)
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return nil, domain.Transient(apiErr)
		}
		return nil, apiErr
	}

	var res faresResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("decode fares: %w", err)
	}

	observedAt := f.now()
	fares := make([]Fare, 0, len(res.Fares))
	for _, fare := range res.Fares {
		if fare.Origin == "" {
			fare.Origin = origin
		}
		if fare.Destination == "" {
			fare.Destination = destination
		}
		if fare.ObservedAt.IsZero() {
			fare.ObservedAt = observedAt
		}
		fares = append(fares, fare)
	}
	return fares, nil
}

type faresResponse struct {
	Fares []Fare `json:"fares"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Message != "" {
			return fmt.Errorf("fare feed error (%d): %s", status, apiErr.Message)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("fare feed error (%d): %s", status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("fare feed error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("fare feed error (%d)", status)
}

var _ Source = (*Feed)(nil)
