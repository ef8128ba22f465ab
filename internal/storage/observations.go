package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"flight-deals/internal/domain"
)

const (
	appendObservationSQL = `INSERT INTO price_history (
        origin,
        destination,
        airline,
        cabin_class,
        price,
        currency,
        observed_at
    ) VALUES (
        $1,$2,$3,$4,$5::numeric,$6,$7
    )
    RETURNING id;`

	listObservationsSQL = `SELECT
        id,
        origin,
        destination,
        airline,
        cabin_class,
        price::text,
        currency,
        observed_at
    FROM price_history
    WHERE origin = $1
      AND destination = $2
      AND airline = $3
      AND cabin_class = $4
      AND observed_at >= $5
    ORDER BY observed_at, id;`
)

// AppendObservation stores a scraped fare.
func (s *Store) AppendObservation(ctx context.Context, obs domain.PriceObservation) (domain.PriceObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.PriceObservation{}, err
	}
	if obs.Price.IsNegative() {
		return domain.PriceObservation{}, fmt.Errorf("append observation: %w: negative price", ErrInvalidInput)
	}
	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = s.now()
	}

	if scanErr := pool.QueryRow(ctx, appendObservationSQL,
		obs.Origin,
		obs.Destination,
		obs.Airline,
		string(obs.CabinClass),
		obs.Price.String(),
		obs.Currency,
		obs.ObservedAt,
	).Scan(&obs.ID); scanErr != nil {
		return domain.PriceObservation{}, fmt.Errorf("append observation: %w", scanErr)
	}
	return obs, nil
}

// ListObservations returns a route's history since the given instant.
func (s *Store) ListObservations(ctx context.Context, route domain.Route, since time.Time) ([]domain.PriceObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listObservationsSQL,
		route.Origin,
		route.Destination,
		route.Airline,
		string(route.CabinClass),
		since,
	)
	if queryErr != nil {
		return nil, fmt.Errorf("list observations: %w", queryErr)
	}
	defer rows.Close()

	history := make([]domain.PriceObservation, 0)
	for rows.Next() {
		var (
			obs      domain.PriceObservation
			cabin    string
			priceStr string
		)
		if err := rows.Scan(
			&obs.ID,
			&obs.Origin,
			&obs.Destination,
			&obs.Airline,
			&cabin,
			&priceStr,
			&obs.Currency,
			&obs.ObservedAt,
		); err != nil {
			return nil, err
		}
		obs.CabinClass = domain.CabinClass(cabin)
		obs.Price, err = decimal.NewFromString(priceStr)
		if err != nil {
			return nil, fmt.Errorf("parse observation price: %w", err)
		}
		history = append(history, obs)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return history, nil
}
