package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/podushkina/meetscribe/internal/quota"
)

type SubscriptionRepository struct {
	db *DB
}

func NewSubscriptionRepository(db *DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// GetSubscription returns nil, nil when the owner has none.
func (r *SubscriptionRepository) GetSubscription(ctx context.Context, owner string) (*quota.Subscription, error) {
	var s quota.Subscription
	err := r.db.QueryRowContext(ctx, `
		SELECT owner_id, plan, quota_minutes, used_minutes
		FROM subscriptions WHERE owner_id = ?`, owner).
		Scan(&s.OwnerID, &s.Plan, &s.QuotaMinutes, &s.UsedMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return &s, nil
}

// Upsert sets plan and quota, keeping the minutes already used.
func (r *SubscriptionRepository) Upsert(ctx context.Context, owner, plan string, quotaMinutes int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscriptions (owner_id, plan, quota_minutes, used_minutes, updated_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
			plan = excluded.plan,
			quota_minutes = excluded.quota_minutes,
			updated_at = excluded.updated_at`,
		owner, plan, quotaMinutes, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// ResetUsage zeroes used minutes, e.g. at the start of a billing period.
func (r *SubscriptionRepository) ResetUsage(ctx context.Context, owner string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions SET used_minutes = 0, updated_at = ? WHERE owner_id = ?`,
		time.Now().UTC(), owner)
	if err != nil {
		return fmt.Errorf("reset usage: %w", err)
	}
	return nil
}
