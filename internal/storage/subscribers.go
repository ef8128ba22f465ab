package storage

import (
	"context"
	"fmt"

	"flight-deals/internal/domain"
)

// Users without a subscription row are treated as canceled so the matcher skips them.
const listSubscribersSQL = `SELECT
        u.id,
        u.email,
        u.first_name,
        u.email_verified,
        COALESCE(s.plan_type, 'free'),
        COALESCE(s.status, 'canceled'),
        p.origin_airports,
        p.destination_preference,
        p.specific_destinations,
        p.airline_preference,
        p.airlines,
        p.travel_class,
        p.premium_economy,
        p.business,
        p.first,
        p.min_discount,
        p.notification_frequency,
        p.updated_at
    FROM user_preferences p
    JOIN users u ON u.id = p.user_id
    LEFT JOIN subscriptions s ON s.user_id = u.id
    ORDER BY u.id;`

// ListSubscribers loads every user with a stored preference along with billing status.
func (s *Store) ListSubscribers(ctx context.Context) ([]domain.Subscriber, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSubscribersSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list subscribers: %w", queryErr)
	}
	defer rows.Close()

	subscribers := make([]domain.Subscriber, 0)
	for rows.Next() {
		var (
			sub                                      domain.Subscriber
			plan, status                             string
			destPref, airlinePref, travel, frequency string
		)
		if err := rows.Scan(
			&sub.User.ID,
			&sub.User.Email,
			&sub.User.FirstName,
			&sub.User.EmailVerified,
			&plan,
			&status,
			&sub.Preference.OriginAirports,
			&destPref,
			&sub.Preference.SpecificDestinations,
			&airlinePref,
			&sub.Preference.Airlines,
			&travel,
			&sub.Preference.PremiumEconomy,
			&sub.Preference.Business,
			&sub.Preference.First,
			&sub.Preference.MinDiscount,
			&frequency,
			&sub.Preference.UpdatedAt,
		); err != nil {
			return nil, err
		}
		sub.Subscription = domain.Subscription{
			UserID:   sub.User.ID,
			PlanType: domain.PlanType(plan),
			Status:   domain.SubscriptionStatus(status),
		}
		sub.Preference.UserID = sub.User.ID
		sub.Preference.DestinationPreference = domain.DestinationPreference(destPref)
		sub.Preference.AirlinePreference = domain.AirlinePreference(airlinePref)
		sub.Preference.TravelClass = domain.TravelClass(travel)
		sub.Preference.NotificationFrequency = domain.NotificationFrequency(frequency)
		subscribers = append(subscribers, sub)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return subscribers, nil
}
