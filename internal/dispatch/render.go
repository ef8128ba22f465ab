// Package dispatch drains queued notifications into the mail transport and records engagement.
package dispatch

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"
	"time"

	"flight-deals/internal/alerting"
	"flight-deals/internal/domain"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Renderer turns deals into email content.
type Renderer struct {
	frontendURL string
	trackingURL string
	html        *htmltemplate.Template
	text        *texttemplate.Template
}

// DealView is the template model for one deal.
type DealView struct {
	UserName           string
	DealID             int64
	OriginCity         string
	OriginCode         string
	DestinationCity    string
	DestinationCode    string
	Airline            string
	CabinClass         string
	Currency           string
	RegularPrice       string
	CurrentPrice       string
	DiscountPercentage int
	Quality            string
	DepartureDate      string
	DepartureTime      string
	ArrivalTime        string
	Duration           string
	ExpiresAt          string
	ViewDealURL        string
	ClickURL           string
	PixelURL           string
	PreferencesURL     string
	UnsubscribeURL     string
}

type digestView struct {
	UserName       string
	Deals          []DealView
	PreferencesURL string
	UnsubscribeURL string
}

// NewRenderer parses the embedded templates. trackingURL may be empty to omit open/click tracking.
func NewRenderer(frontendURL, trackingURL string) (*Renderer, error) {
	funcs := map[string]any{"inc": func(i int) int { return i + 1 }}

	html, err := htmltemplate.New("").Funcs(funcs).ParseFS(templatesFS, "templates/*.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse html templates: %w", err)
	}
	text, err := texttemplate.New("").Funcs(funcs).ParseFS(templatesFS, "templates/*.txt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse text templates: %w", err)
	}
	return &Renderer{
		frontendURL: strings.TrimRight(frontendURL, "/"),
		trackingURL: strings.TrimRight(trackingURL, "/"),
		html:        html,
		text:        text,
	}, nil
}

// DealSubject is the subject line of a single-deal alert.
func DealSubject(d domain.DealWithFlight) string {
	return fmt.Sprintf("Flight Deal Alert: %s to %s - %d%% Off!",
		orCode(d.Flight.OriginCity, d.Flight.Origin), orCode(d.Flight.DestinationCity, d.Flight.Destination), d.DiscountPercentage)
}

// RenderDeal builds the alert email for a pending notification.
func (r *Renderer) RenderDeal(p domain.PendingNotification) (alerting.Message, error) {
	view := r.dealView(p.User, p.Deal)
	if r.trackingURL != "" {
		view.PixelURL = fmt.Sprintf("%s/api/notifications/track/open/%d", r.trackingURL, p.ID)
		view.ClickURL = fmt.Sprintf("%s/api/notifications/track/click/%d?redirect=%s", r.trackingURL, p.ID, url.QueryEscape(view.ViewDealURL))
	}

	html, text, err := r.execute("deal", view)
	if err != nil {
		return alerting.Message{}, err
	}
	return alerting.Message{To: p.User.Email, Subject: DealSubject(p.Deal), HTML: html, Text: text}, nil
}

// RenderDigest builds the weekly digest for one user.
func (r *Renderer) RenderDigest(user domain.User, deals []domain.DealWithFlight) (alerting.Message, error) {
	view := digestView{
		UserName:       user.DisplayName(),
		PreferencesURL: r.frontendURL + "/preferences",
		UnsubscribeURL: r.unsubscribeURL(user),
	}
	for _, d := range deals {
		view.Deals = append(view.Deals, r.dealView(user, d))
	}

	html, text, err := r.execute("digest", view)
	if err != nil {
		return alerting.Message{}, err
	}
	subject := fmt.Sprintf("Your Weekly Flight Deals: %d deals up to %d%% off", len(deals), maxDiscount(deals))
	return alerting.Message{To: user.Email, Subject: subject, HTML: html, Text: text}, nil
}

func (r *Renderer) execute(name string, data any) (string, string, error) {
	var html, text bytes.Buffer
	if err := r.html.ExecuteTemplate(&html, name+".html.tmpl", data); err != nil {
		return "", "", fmt.Errorf("render %s html: %w", name, err)
	}
	if err := r.text.ExecuteTemplate(&text, name+".txt.tmpl", data); err != nil {
		return "", "", fmt.Errorf("render %s text: %w", name, err)
	}
	return html.String(), text.String(), nil
}

func (r *Renderer) dealView(user domain.User, d domain.DealWithFlight) DealView {
	f := d.Flight
	view := DealView{
		UserName:           user.DisplayName(),
		DealID:             d.ID,
		OriginCity:         orCode(f.OriginCity, f.Origin),
		OriginCode:         f.Origin,
		DestinationCity:    orCode(f.DestinationCity, f.Destination),
		DestinationCode:    f.Destination,
		Airline:            orCode(f.AirlineName, f.Airline),
		CabinClass:         f.CabinClass.Label(),
		Currency:           orCode(f.Currency, "USD"),
		RegularPrice:       d.RegularPrice.StringFixed(2),
		CurrentPrice:       f.Price.StringFixed(2),
		DiscountPercentage: d.DiscountPercentage,
		Quality:            d.Quality.Title(),
		DepartureDate:      f.DepartureTime.UTC().Format("Mon, Jan 2"),
		DepartureTime:      f.DepartureTime.UTC().Format("03:04 PM"),
		ArrivalTime:        f.ArrivalTime.UTC().Format("03:04 PM"),
		Duration:           FormatDuration(f.DurationMinutes),
		ExpiresAt:          formatExpiry(d.ExpiresAt),
		ViewDealURL:        fmt.Sprintf("%s/deals/%d", r.frontendURL, d.ID),
		PreferencesURL:     r.frontendURL + "/preferences",
		UnsubscribeURL:     r.unsubscribeURL(user),
	}
	view.ClickURL = view.ViewDealURL
	return view
}

func (r *Renderer) unsubscribeURL(user domain.User) string {
	return r.frontendURL + "/unsubscribe?email=" + url.QueryEscape(user.Email)
}

// FormatDuration renders minutes as "Xh Ym".
func FormatDuration(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return "Unknown"
	}
	return t.UTC().Format("Mon, Jan 2 03:04 PM MST")
}

func orCode(name, code string) string {
	if name == "" {
		return code
	}
	return name
}

func maxDiscount(deals []domain.DealWithFlight) int {
	best := 0
	for _, d := range deals {
		if d.DiscountPercentage > best {
			best = d.DiscountPercentage
		}
	}
	return best
}
