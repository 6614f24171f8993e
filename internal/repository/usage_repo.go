package repository

import (
	"context"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrUsageNotFound is returned when no usage record exists for the user.
	ErrUsageNotFound = errors.New("usage_record_not_found")
	// ErrMessageLimitExceeded is returned when a guarded increment would push a
	// free-tier user past their monthly chat ceiling.
	ErrMessageLimitExceeded = errors.New("message_limit_exceeded")
)

// UsageRepository is the source of truth for per-user consumption counters.
// All counter mutations are single server-side statements; nothing here does
// read-modify-write from Go, so concurrent operations against the same user
// cannot under- or over-count.
type UsageRepository interface {
	// Initialize creates a zeroed free-tier record if none exists. Idempotent:
	// an existing record's counters and tier are never touched.
	Initialize(ctx context.Context, userID, month string) error
	// Get returns the usage record without triggering rollover.
	Get(ctx context.Context, userID string) (*model.UserUsage, error)
	// ResetMonthlyCounters performs the lazy monthly rollover as one
	// conditional update: the two monthly counters go to zero and the reset
	// marker advances, but only if the stored marker differs from month.
	// Storage is intentionally left alone. Returns whether a reset happened.
	ResetMonthlyCounters(ctx context.Context, userID, month string) (bool, error)
	// IncrementMessageCount adds one chat message, guarded by the free-tier
	// ceiling so the counter can never exceed the limit under concurrency.
	IncrementMessageCount(ctx context.Context, userID string) error
}

// Report-side ledger mutations (count increment on upload, storage release on
// delete) are not exposed here: they must ride in the same transaction as the
// report row, so ReportRepository owns them. See CreateWithUsage and
// DeleteWithUsage.

type usageRepo struct {
	pool *pgxpool.Pool
}

// NewUsageRepo creates a new UsageRepository.
func NewUsageRepo(pool *pgxpool.Pool) UsageRepository {
	return &usageRepo{pool: pool}
}

const usageColumns = `user_id, reports_uploaded, reports_limit, total_storage_mb, storage_limit_mb,
       chat_messages_this_month, chat_message_limit, tier, last_reset_date, account_created_at, trial_ends_at`

func scanUsage(row pgx.Row) (*model.UserUsage, error) {
	var u model.UserUsage
	err := row.Scan(
		&u.UserID,
		&u.ReportsUploaded,
		&u.ReportsLimit,
		&u.TotalStorageMB,
		&u.StorageLimitMB,
		&u.ChatMessagesThisMonth,
		&u.ChatMessageLimit,
		&u.Tier,
		&u.LastResetDate,
		&u.AccountCreatedAt,
		&u.TrialEndsAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUsageNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *usageRepo) Initialize(ctx context.Context, userID, month string) error {
	const q = `
        INSERT INTO user_usage (user_id, reports_uploaded, reports_limit, total_storage_mb, storage_limit_mb,
                                chat_messages_this_month, chat_message_limit, tier, last_reset_date, account_created_at)
        VALUES ($1, 0, $2, 0, $3, 0, $4, $5, $6, NOW())
        ON CONFLICT (user_id) DO NOTHING
    `
	_, err := r.pool.Exec(ctx, q, userID,
		model.DefaultReportsLimit,
		float64(model.DefaultStorageLimitMB),
		model.DefaultChatMessageLimit,
		model.TierFree,
		month,
	)
	if err != nil {
		return fmt.Errorf("initializing usage for user %s: %w", userID, err)
	}
	return nil
}

func (r *usageRepo) Get(ctx context.Context, userID string) (*model.UserUsage, error) {
	q := fmt.Sprintf(`SELECT %s FROM user_usage WHERE user_id = $1`, usageColumns)
	u, err := scanUsage(r.pool.QueryRow(ctx, q, userID))
	if err != nil {
		if errors.Is(err, ErrUsageNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("fetching usage for user %s: %w", userID, err)
	}
	return u, nil
}

func (r *usageRepo) ResetMonthlyCounters(ctx context.Context, userID, month string) (bool, error) {
	// A single conditional update makes the rollover atomic: of two concurrent
	// readers observing a stale month, exactly one performs the reset.
	const q = `
        UPDATE user_usage
        SET reports_uploaded = 0,
            chat_messages_this_month = 0,
            last_reset_date = $2
        WHERE user_id = $1
          AND last_reset_date <> $2
    `
	tag, err := r.pool.Exec(ctx, q, userID, month)
	if err != nil {
		return false, fmt.Errorf("rolling over usage for user %s: %w", userID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *usageRepo) IncrementMessageCount(ctx context.Context, userID string) error {
	const q = `
        UPDATE user_usage
        SET chat_messages_this_month = chat_messages_this_month + 1
        WHERE user_id = $1
          AND (tier IN ('premium', 'trial') OR chat_messages_this_month < chat_message_limit)
    `
	tag, err := r.pool.Exec(ctx, q, userID)
	if err != nil {
		return fmt.Errorf("incrementing message count for user %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return r.classifyNoRows(ctx, userID, ErrMessageLimitExceeded)
	}
	return nil
}

// classifyNoRows distinguishes a missing record from a ceiling hit after a
// guarded update matched nothing.
func (r *usageRepo) classifyNoRows(ctx context.Context, userID string, ceilingErr error) error {
	var exists bool
	const q = `SELECT EXISTS (SELECT 1 FROM user_usage WHERE user_id = $1)`
	if err := r.pool.QueryRow(ctx, q, userID).Scan(&exists); err != nil {
		return fmt.Errorf("checking usage existence for user %s: %w", userID, err)
	}
	if !exists {
		return ErrUsageNotFound
	}
	return ceilingErr
}
