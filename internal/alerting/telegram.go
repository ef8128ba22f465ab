package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"flight-deals/internal/domain"
)

// TelegramAnnouncer posts featured deals to a Telegram channel through the Bot API.
type TelegramAnnouncer struct {
	botToken    string
	chatID      string
	baseURL     string
	frontendURL string
	client      *http.Client
	logger      zerolog.Logger
}

// NewTelegramAnnouncer constructs the announcer.
func NewTelegramAnnouncer(botToken, chatID, baseURL, frontendURL string, timeout time.Duration, logger zerolog.Logger) *TelegramAnnouncer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramAnnouncer{
		botToken:    botToken,
		chatID:      chatID,
		baseURL:     strings.TrimRight(baseURL, "/"),
		frontendURL: strings.TrimRight(frontendURL, "/"),
		client:      &http.Client{Timeout: timeout},
		logger:      logger.With().Str("component", "announce_telegram").Logger(),
	}
}

// AnnounceDeal calls sendMessage with a short summary of the deal.
func (n *TelegramAnnouncer) AnnounceDeal(ctx context.Context, deal domain.DealWithFlight) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderAnnouncement(deal, n.frontendURL),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return domain.Transient(fmt.Errorf("send telegram request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Transient(fmt.Errorf("telegram status %d", resp.StatusCode))
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false: %s", result.Description)
	}

	n.logger.Info().Int64("deal_id", deal.ID).
		Str("route", deal.Flight.Origin+"-"+deal.Flight.Destination).
		Msg("featured deal announced")
	return nil
}

func renderAnnouncement(deal domain.DealWithFlight, frontendURL string) string {
	f := deal.Flight
	var b strings.Builder
	fmt.Fprintf(&b, "✈️ %s deal: %s (%s) to %s (%s)\n", deal.Quality.Title(), cityOr(f.OriginCity, f.Origin), f.Origin, cityOr(f.DestinationCity, f.Destination), f.Destination)
	fmt.Fprintf(&b, "%s %s, was %s (%d%% off)\n", f.Currency, f.Price.StringFixed(2), deal.RegularPrice.StringFixed(2), deal.DiscountPercentage)
	fmt.Fprintf(&b, "%s, %s, departs %s\n", cityOr(f.AirlineName, f.Airline), f.CabinClass.Label(), f.DepartureTime.UTC().Format("Mon Jan 2 2006"))
	if frontendURL != "" {
		fmt.Fprintf(&b, "%s/deals/%d", frontendURL, deal.ID)
	}
	return b.String()
}

func cityOr(name, code string) string {
	if name == "" {
		return code
	}
	return name
}
