package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"flight-deals/internal/domain"
)

// flightColumns selects a flight joined with its airport and airline display names.
const flightColumns = `
        f.id,
        f.origin,
        f.destination,
        COALESCE(ao.city, f.origin),
        COALESCE(ad.city, f.destination),
        f.airline,
        COALESCE(al.name, f.airline),
        f.cabin_class,
        f.price::text,
        f.currency,
        f.departure_time,
        f.arrival_time,
        f.duration_minutes,
        f.created_at,
        f.updated_at`

const flightJoins = `
    LEFT JOIN airports ao ON ao.code = f.origin
    LEFT JOIN airports ad ON ad.code = f.destination
    LEFT JOIN airlines al ON al.code = f.airline`

const (
	upsertFlightSQL = `INSERT INTO flights (
        origin,
        destination,
        airline,
        cabin_class,
        price,
        currency,
        departure_time,
        arrival_time,
        duration_minutes,
        created_at,
        updated_at
    ) VALUES (
        $1,$2,$3,$4,$5::numeric,$6,$7,$8,$9,$10,$10
    )
    ON CONFLICT (origin, destination, airline, cabin_class, departure_time) DO UPDATE
    SET
        price            = EXCLUDED.price,
        currency         = EXCLUDED.currency,
        arrival_time     = EXCLUDED.arrival_time,
        duration_minutes = EXCLUDED.duration_minutes,
        updated_at       = EXCLUDED.updated_at
    RETURNING id;`

	getFlightSQL = `SELECT` + flightColumns + `
    FROM flights f` + flightJoins + `
    WHERE f.id = $1;`

	listFlightsCreatedSinceSQL = `SELECT` + flightColumns + `
    FROM flights f` + flightJoins + `
    WHERE f.created_at >= $1
    ORDER BY f.id;`
)

// UpsertFlight records a scraped flight, refreshing its price when it already exists.
func (s *Store) UpsertFlight(ctx context.Context, f domain.Flight) (domain.Flight, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.Flight{}, err
	}
	if f.Price.IsNegative() {
		return domain.Flight{}, fmt.Errorf("upsert flight: %w: negative price", ErrInvalidInput)
	}

	var id int64
	if scanErr := pool.QueryRow(ctx, upsertFlightSQL,
		f.Origin,
		f.Destination,
		f.Airline,
		string(f.CabinClass),
		f.Price.String(),
		f.Currency,
		f.DepartureTime,
		f.ArrivalTime,
		f.DurationMinutes,
		s.now(),
	).Scan(&id); scanErr != nil {
		return domain.Flight{}, fmt.Errorf("upsert flight: %w", scanErr)
	}
	return s.GetFlight(ctx, id)
}

// GetFlight loads a flight by ID.
func (s *Store) GetFlight(ctx context.Context, id int64) (domain.Flight, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.Flight{}, err
	}
	flight, scanErr := scanFlight(pool.QueryRow(ctx, getFlightSQL, id))
	if scanErr != nil {
		return domain.Flight{}, fmt.Errorf("get flight %d: %w", id, translate(scanErr))
	}
	return flight, nil
}

// ListFlightsCreatedSince lists flights first seen at or after since.
func (s *Store) ListFlightsCreatedSince(ctx context.Context, since time.Time) ([]domain.Flight, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listFlightsCreatedSinceSQL, since)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent flights: %w", queryErr)
	}
	defer rows.Close()

	flights := make([]domain.Flight, 0)
	for rows.Next() {
		flight, scanErr := scanFlight(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		flights = append(flights, flight)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return flights, nil
}

func scanFlight(row rowScanner) (domain.Flight, error) {
	var (
		f        domain.Flight
		cabin    string
		priceStr string
	)
	if err := row.Scan(
		&f.ID,
		&f.Origin,
		&f.Destination,
		&f.OriginCity,
		&f.DestinationCity,
		&f.Airline,
		&f.AirlineName,
		&cabin,
		&priceStr,
		&f.Currency,
		&f.DepartureTime,
		&f.ArrivalTime,
		&f.DurationMinutes,
		&f.CreatedAt,
		&f.UpdatedAt,
	); err != nil {
		return domain.Flight{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return domain.Flight{}, fmt.Errorf("parse flight price: %w", err)
	}
	f.Price = price
	f.CabinClass = domain.CabinClass(cabin)
	return f, nil
}
