package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"flight-deals/internal/domain"
)

const notificationColumns = `
        n.id,
        n.user_id,
        n.deal_id,
        n.status,
        n.created_at,
        n.sent_at,
        n.opened_at,
        n.clicked_at,
        n.read_at`

const (
	insertNotificationSQL = `INSERT INTO notifications AS n (user_id, deal_id, status, created_at)
    VALUES ($1, $2, 'pending', $3)
    ON CONFLICT (user_id, deal_id) DO NOTHING
    RETURNING` + notificationColumns + `;`

	getNotificationByPairSQL = `SELECT` + notificationColumns + `
    FROM notifications n
    WHERE n.user_id = $1 AND n.deal_id = $2;`

	listPendingSQL = `SELECT` + notificationColumns + `,
        u.email,
        u.first_name,
        u.email_verified,` + dealColumns + `,` + flightColumns + `
    FROM notifications n
    JOIN users u ON u.id = n.user_id
    JOIN deals d ON d.id = n.deal_id
    JOIN flights f ON f.id = d.flight_id` + flightJoins + `
    WHERE n.status = 'pending'
    ORDER BY n.created_at, n.id
    LIMIT $1;`

	markSentSQL   = `UPDATE notifications SET status = 'sent', sent_at = $2 WHERE id = $1;`
	markFailedSQL = `UPDATE notifications SET status = 'failed' WHERE id = $1;`

	markOpenedSQL  = `UPDATE notifications SET opened_at = COALESCE(opened_at, $2) WHERE id = $1;`
	markClickedSQL = `UPDATE notifications SET clicked_at = COALESCE(clicked_at, $2) WHERE id = $1;`

	markReadSQL = `UPDATE notifications SET read_at = COALESCE(read_at, $3) WHERE id = $1 AND user_id = $2;`
)

// CreateNotification queues a pending alert. A second call for the same pair returns the
// existing row.
func (s *Store) CreateNotification(ctx context.Context, userID, dealID int64, at time.Time) (domain.Notification, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.Notification{}, false, err
	}
	if at.IsZero() {
		at = s.now()
	}

	n, scanErr := scanNotification(pool.QueryRow(ctx, insertNotificationSQL, userID, dealID, at))
	if scanErr == nil {
		return n, true, nil
	}
	if !errors.Is(scanErr, pgx.ErrNoRows) {
		return domain.Notification{}, false, fmt.Errorf("create notification user=%d deal=%d: %w", userID, dealID, translate(scanErr))
	}

	existing, scanErr := scanNotification(pool.QueryRow(ctx, getNotificationByPairSQL, userID, dealID))
	if scanErr != nil {
		return domain.Notification{}, false, fmt.Errorf("load notification user=%d deal=%d: %w", userID, dealID, translate(scanErr))
	}
	return existing, false, nil
}

// ListPending returns the oldest pending notifications with their recipients and deals.
func (s *Store) ListPending(ctx context.Context, limit int) ([]domain.PendingNotification, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("list pending: %w: limit must be positive", ErrInvalidInput)
	}

	rows, queryErr := pool.Query(ctx, listPendingSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list pending notifications: %w", queryErr)
	}
	defer rows.Close()

	pending := make([]domain.PendingNotification, 0)
	for rows.Next() {
		p, scanErr := scanPending(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		pending = append(pending, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return pending, nil
}

// MarkSent records a successful delivery.
func (s *Store) MarkSent(ctx context.Context, id int64, at time.Time) error {
	return s.execByID(ctx, "mark sent", markSentSQL, id, at)
}

// MarkFailed records a failed delivery. Failed notifications are not retried.
func (s *Store) MarkFailed(ctx context.Context, id int64) error {
	return s.execByID(ctx, "mark failed", markFailedSQL, id)
}

// MarkOpened stamps the first open of a notification email.
func (s *Store) MarkOpened(ctx context.Context, id int64, at time.Time) (bool, error) {
	err := s.execByID(ctx, "mark opened", markOpenedSQL, id, at)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// MarkClicked stamps the first click-through of a notification email.
func (s *Store) MarkClicked(ctx context.Context, id int64, at time.Time) (bool, error) {
	err := s.execByID(ctx, "mark clicked", markClickedSQL, id, at)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// MarkRead stamps readAt on a notification owned by userID.
func (s *Store) MarkRead(ctx context.Context, userID, id int64, at time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, execErr := pool.Exec(ctx, markReadSQL, id, userID, at)
	if execErr != nil {
		return fmt.Errorf("mark read %d: %w", id, execErr)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUserNotifications pages through a user's notifications, newest first.
func (s *Store) ListUserNotifications(ctx context.Context, filter NotificationFilter) ([]domain.Notification, int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, 0, err
	}

	conds := []string{"n.user_id = $1"}
	args := []any{filter.UserID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("n.status = $%d", len(args)))
	}
	where := "\n    WHERE " + strings.Join(conds, " AND ")

	var total int64
	if scanErr := pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications n`+where, args...).Scan(&total); scanErr != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", scanErr)
	}

	query := `SELECT` + notificationColumns + `
    FROM notifications n` + where + `
    ORDER BY n.created_at DESC, n.id DESC`
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
		return nil, 0, fmt.Errorf("list notifications: %w", queryErr)
	}
	defer rows.Close()

	out := make([]domain.Notification, 0)
	for rows.Next() {
		n, scanErr := scanNotification(rows)
		if scanErr != nil {
			return nil, 0, scanErr
		}
		out = append(out, n)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}
	return out, total, nil
}

func (s *Store) execByID(ctx context.Context, op, sql string, id int64, args ...any) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, execErr := pool.Exec(ctx, sql, append([]any{id}, args...)...)
	if execErr != nil {
		return fmt.Errorf("%s %d: %w", op, id, execErr)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func notificationDest(n *domain.Notification, status *string) []any {
	return []any{
		&n.ID,
		&n.UserID,
		&n.DealID,
		status,
		&n.CreatedAt,
		&n.SentAt,
		&n.OpenedAt,
		&n.ClickedAt,
		&n.ReadAt,
	}
}

func scanNotification(row rowScanner) (domain.Notification, error) {
	var (
		n      domain.Notification
		status string
	)
	if err := row.Scan(notificationDest(&n, &status)...); err != nil {
		return domain.Notification{}, err
	}
	n.Status = domain.NotificationStatus(status)
	return n, nil
}

func scanPending(row rowScanner) (domain.PendingNotification, error) {
	var (
		p                  domain.PendingNotification
		status             string
		dealPrice, quality string
		cabin, flightPrice string
	)
	dest := notificationDest(&p.Notification, &status)
	dest = append(dest,
		&p.User.Email,
		&p.User.FirstName,
		&p.User.EmailVerified,
		&p.Deal.ID,
		&p.Deal.FlightID,
		&dealPrice,
		&p.Deal.DiscountPercentage,
		&quality,
		&p.Deal.Featured,
		&p.Deal.ExpiresAt,
		&p.Deal.CreatedAt,
		&p.Deal.UpdatedAt,
		&p.Deal.Flight.ID,
		&p.Deal.Flight.Origin,
		&p.Deal.Flight.Destination,
		&p.Deal.Flight.OriginCity,
		&p.Deal.Flight.DestinationCity,
		&p.Deal.Flight.Airline,
		&p.Deal.Flight.AirlineName,
		&cabin,
		&flightPrice,
		&p.Deal.Flight.Currency,
		&p.Deal.Flight.DepartureTime,
		&p.Deal.Flight.ArrivalTime,
		&p.Deal.Flight.DurationMinutes,
		&p.Deal.Flight.CreatedAt,
		&p.Deal.Flight.UpdatedAt,
	)
	if err := row.Scan(dest...); err != nil {
		return domain.PendingNotification{}, err
	}

	p.Status = domain.NotificationStatus(status)
	p.User.ID = p.UserID
	deal, err := finishDeal(p.Deal.Deal, dealPrice, quality)
	if err != nil {
		return domain.PendingNotification{}, err
	}
	p.Deal.Deal = deal
	p.Deal.Flight.CabinClass = domain.CabinClass(cabin)
	p.Deal.Flight.Price, err = decimal.NewFromString(flightPrice)
	if err != nil {
		return domain.PendingNotification{}, fmt.Errorf("parse flight price: %w", err)
	}
	return p, nil
}
