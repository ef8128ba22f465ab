package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"flight-deals/internal/domain"
)

const dealColumns = `
        d.id,
        d.flight_id,
        d.regular_price::text,
        d.discount_percentage,
        d.deal_quality,
        d.featured,
        d.expires_at,
        d.created_at,
        d.updated_at`

const (
	// xmax is zero only for the row version created by this statement's INSERT branch.
	upsertDealSQL = `INSERT INTO deals AS d (
        flight_id,
        regular_price,
        discount_percentage,
        deal_quality,
        featured,
        expires_at,
        created_at,
        updated_at
    ) VALUES (
        $1,$2::numeric,$3,$4,$5,$6,$7,$7
    )
    ON CONFLICT (flight_id) DO UPDATE
    SET
        regular_price       = EXCLUDED.regular_price,
        discount_percentage = EXCLUDED.discount_percentage,
        deal_quality        = EXCLUDED.deal_quality,
        featured            = EXCLUDED.featured,
        expires_at          = EXCLUDED.expires_at,
        updated_at          = EXCLUDED.updated_at
    RETURNING` + dealColumns + `,
        (d.xmax = 0) AS inserted;`

	getDealSQL = `SELECT` + dealColumns + `,` + flightColumns + `
    FROM deals d
    JOIN flights f ON f.id = d.flight_id` + flightJoins + `
    WHERE d.id = $1;`

	deleteExpiredDealsSQL = `DELETE FROM deals WHERE expires_at < $1;`
)

// UpsertDeal creates or refreshes the deal for a flight in a single statement so concurrent
// evaluations of one flight converge on one row.
func (s *Store) UpsertDeal(ctx context.Context, d domain.Deal) (domain.Deal, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.Deal{}, false, err
	}

	now := d.UpdatedAt
	if now.IsZero() {
		now = s.now()
	}

	var inserted bool
	row := pool.QueryRow(ctx, upsertDealSQL,
		d.FlightID,
		d.RegularPrice.String(),
		d.DiscountPercentage,
		string(d.Quality),
		d.Featured,
		d.ExpiresAt,
		now,
	)
	deal, scanErr := scanDeal(row, &inserted)
	if scanErr != nil {
		return domain.Deal{}, false, fmt.Errorf("upsert deal for flight %d: %w", d.FlightID, translate(scanErr))
	}
	return deal, inserted, nil
}

// GetDeal loads a deal with its flight.
func (s *Store) GetDeal(ctx context.Context, id int64) (domain.DealWithFlight, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.DealWithFlight{}, err
	}
	deal, scanErr := scanDealWithFlight(pool.QueryRow(ctx, getDealSQL, id))
	if scanErr != nil {
		return domain.DealWithFlight{}, fmt.Errorf("get deal %d: %w", id, translate(scanErr))
	}
	return deal, nil
}

// ListDeals lists deals with their flights, best discount first.
func (s *Store) ListDeals(ctx context.Context, filter DealFilter) ([]domain.DealWithFlight, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	where, args := dealWhere(filter)
	query := `SELECT` + dealColumns + `,` + flightColumns + `
    FROM deals d
    JOIN flights f ON f.id = d.flight_id` + flightJoins + where + `
    ORDER BY d.discount_percentage DESC, d.id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, queryErr := pool.Query(ctx, query, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("list deals: %w", queryErr)
	}
	defer rows.Close()

	deals := make([]domain.DealWithFlight, 0)
	for rows.Next() {
		deal, scanErr := scanDealWithFlight(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		deals = append(deals, deal)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return deals, nil
}

// CountDeals counts deals matching the filter.
func (s *Store) CountDeals(ctx context.Context, filter DealFilter) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	where, args := dealWhere(filter)
	query := `SELECT COUNT(*) FROM deals d JOIN flights f ON f.id = d.flight_id` + where

	var count int64
	if scanErr := pool.QueryRow(ctx, query, args...).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count deals: %w", scanErr)
	}
	return count, nil
}

// DeleteExpiredDeals purges stale deals. Their notifications cascade.
func (s *Store) DeleteExpiredDeals(ctx context.Context, now time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteExpiredDealsSQL, now)
	if execErr != nil {
		return 0, fmt.Errorf("delete expired deals: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

func dealWhere(filter DealFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if !filter.ActiveAt.IsZero() {
		add("d.expires_at > $%d", filter.ActiveAt)
	}
	if filter.Origin != "" {
		add("f.origin = $%d", filter.Origin)
	}
	if filter.Destination != "" {
		add("f.destination = $%d", filter.Destination)
	}
	if filter.Airline != "" {
		add("f.airline = $%d", filter.Airline)
	}
	if filter.MinDiscount > 0 {
		add("d.discount_percentage >= $%d", filter.MinDiscount)
	}
	if filter.FeaturedOnly {
		conds = append(conds, "d.featured")
	}

	if len(conds) == 0 {
		return "", args
	}
	return "\n    WHERE " + strings.Join(conds, " AND "), args
}

func scanDeal(row rowScanner, extra ...any) (domain.Deal, error) {
	var (
		d        domain.Deal
		priceStr string
		quality  string
	)
	dest := []any{
		&d.ID,
		&d.FlightID,
		&priceStr,
		&d.DiscountPercentage,
		&quality,
		&d.Featured,
		&d.ExpiresAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return domain.Deal{}, err
	}
	return finishDeal(d, priceStr, quality)
}

func scanDealWithFlight(row rowScanner) (domain.DealWithFlight, error) {
	var (
		d           domain.Deal
		f           domain.Flight
		dealPrice   string
		quality     string
		cabin       string
		flightPrice string
	)
	if err := row.Scan(
		&d.ID,
		&d.FlightID,
		&dealPrice,
		&d.DiscountPercentage,
		&quality,
		&d.Featured,
		&d.ExpiresAt,
		&d.CreatedAt,
		&d.UpdatedAt,
		&f.ID,
		&f.Origin,
		&f.Destination,
		&f.OriginCity,
		&f.DestinationCity,
		&f.Airline,
		&f.AirlineName,
		&cabin,
		&flightPrice,
		&f.Currency,
		&f.DepartureTime,
		&f.ArrivalTime,
		&f.DurationMinutes,
		&f.CreatedAt,
		&f.UpdatedAt,
	); err != nil {
		return domain.DealWithFlight{}, err
	}

	deal, err := finishDeal(d, dealPrice, quality)
	if err != nil {
		return domain.DealWithFlight{}, err
	}
	f.CabinClass = domain.CabinClass(cabin)
	f.Price, err = decimal.NewFromString(flightPrice)
	if err != nil {
		return domain.DealWithFlight{}, fmt.Errorf("parse flight price: %w", err)
	}
	return domain.DealWithFlight{Deal: deal, Flight: f}, nil
}

func finishDeal(d domain.Deal, priceStr, quality string) (domain.Deal, error) {
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return domain.Deal{}, fmt.Errorf("parse regular price: %w", err)
	}
	d.RegularPrice = price
	d.Quality = domain.DealQuality(quality)
	return d, nil
}
