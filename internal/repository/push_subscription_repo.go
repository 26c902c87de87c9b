package repository

import (
	"context"
	"fmt"

	"github.com/syuchan1005/CardNotifier/contracts/db"
)

type PushSubscriptionRepository struct {
	db DBTX
}

func NewPushSubscriptionRepository(db DBTX) *PushSubscriptionRepository {
	return &PushSubscriptionRepository{db: db}
}

func (r *PushSubscriptionRepository) ListByUser(ctx context.Context, userID int64) ([]db.PushSubscription, error) {
	query := `
        SELECT id, user_id, endpoint, key_p256dh, key_auth, expiration_time
        FROM push_subscriptions
        WHERE user_id = $1
        ORDER BY id
    `
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []db.PushSubscription
	for rows.Next() {
		var s db.PushSubscription
		if err := rows.Scan(&s.ID, &s.UserID, &s.Endpoint, &s.KeyP256dh, &s.KeyAuth, &s.ExpirationTime); err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// DeleteByEndpoint removes the (user, endpoint) registration. Zero rows is not an error.
func (r *PushSubscriptionRepository) DeleteByEndpoint(ctx context.Context, userID int64, endpoint string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM push_subscriptions WHERE user_id = $1 AND endpoint = $2`, userID, endpoint)
	if err != nil {
		return 0, fmt.Errorf("delete push subscription: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Upsert registers or refreshes a subscription.
func (r *PushSubscriptionRepository) Upsert(ctx context.Context, s *db.PushSubscription) error {
	query := `
        INSERT INTO push_subscriptions (user_id, endpoint, key_p256dh, key_auth, expiration_time)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (user_id, endpoint)
        DO UPDATE SET key_p256dh = EXCLUDED.key_p256dh, key_auth = EXCLUDED.key_auth, expiration_time = EXCLUDED.expiration_time
        RETURNING id
    `
	return r.db.QueryRow(ctx, query, s.UserID, s.Endpoint, s.KeyP256dh, s.KeyAuth, s.ExpirationTime).Scan(&s.ID)
}
