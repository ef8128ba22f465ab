package httpapi

import (
	"time"

	"flight-deals/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

type acceptedResponse struct {
	Message string `json:"message"`
}

type dealResponse struct {
	ID                 int64     `json:"id"`
	FlightID           int64     `json:"flight_id"`
	Origin             string    `json:"origin"`
	OriginCity         string    `json:"origin_city"`
	Destination        string    `json:"destination"`
	DestinationCity    string    `json:"destination_city"`
	Airline            string    `json:"airline"`
	AirlineName        string    `json:"airline_name"`
	CabinClass         string    `json:"cabin_class"`
	Price              string    `json:"price"`
	RegularPrice       string    `json:"regular_price"`
	Currency           string    `json:"currency"`
	DiscountPercentage int       `json:"discount_percentage"`
	Quality            string    `json:"deal_quality"`
	Featured           bool      `json:"featured"`
	DepartureTime      time.Time `json:"departure_time"`
	ArrivalTime        time.Time `json:"arrival_time"`
	DurationMinutes    int       `json:"duration_minutes"`
	ExpiresAt          time.Time `json:"expires_at"`
	CreatedAt          time.Time `json:"created_at"`
}

func newDealResponse(d domain.DealWithFlight) dealResponse {
	return dealResponse{
		ID:                 d.ID,
		FlightID:           d.FlightID,
		Origin:             d.Flight.Origin,
		OriginCity:         d.Flight.OriginCity,
		Destination:        d.Flight.Destination,
		DestinationCity:    d.Flight.DestinationCity,
		Airline:            d.Flight.Airline,
		AirlineName:        d.Flight.AirlineName,
		CabinClass:         string(d.Flight.CabinClass),
		Price:              d.Flight.Price.StringFixed(2),
		RegularPrice:       d.RegularPrice.StringFixed(2),
		Currency:           d.Flight.Currency,
		DiscountPercentage: d.DiscountPercentage,
		Quality:            string(d.Quality),
		Featured:           d.Featured,
		DepartureTime:      d.Flight.DepartureTime,
		ArrivalTime:        d.Flight.ArrivalTime,
		DurationMinutes:    d.Flight.DurationMinutes,
		ExpiresAt:          d.ExpiresAt,
		CreatedAt:          d.CreatedAt,
	}
}

type dealListResponse struct {
	Deals  []dealResponse `json:"deals"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

type notificationResponse struct {
	ID        int64      `json:"id"`
	DealID    int64      `json:"deal_id"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	OpenedAt  *time.Time `json:"opened_at,omitempty"`
	ClickedAt *time.Time `json:"clicked_at,omitempty"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

func newNotificationResponse(n domain.Notification) notificationResponse {
	return notificationResponse{
		ID:        n.ID,
		DealID:    n.DealID,
		Status:    string(n.Status),
		CreatedAt: n.CreatedAt,
		SentAt:    n.SentAt,
		OpenedAt:  n.OpenedAt,
		ClickedAt: n.ClickedAt,
		ReadAt:    n.ReadAt,
	}
}

type notificationListResponse struct {
	Notifications []notificationResponse `json:"notifications"`
	Total         int64                  `json:"total"`
	Limit         int                    `json:"limit"`
	Offset        int                    `json:"offset"`
}
