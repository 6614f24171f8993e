package model

import "time"

// Subscription tiers. Free tier is metered; premium and trial are not.
const (
	TierFree    = "free"
	TierPremium = "premium"
	TierTrial   = "trial"
)

// Free-tier defaults applied when a usage record is first created.
const (
	DefaultReportsLimit     = 10
	DefaultStorageLimitMB   = 50
	DefaultChatMessageLimit = 100
)

// UserUsage is the per-user ledger of consumption counters and limits.
// The two monthly counters reset when LastResetDate falls behind the current
// year-month; TotalStorageMB accumulates across months and never resets.
type UserUsage struct {
	UserID                string     `db:"user_id" json:"user_id"`
	ReportsUploaded       int        `db:"reports_uploaded" json:"reports_uploaded"`
	ReportsLimit          int        `db:"reports_limit" json:"reports_limit"`
	TotalStorageMB        float64    `db:"total_storage_mb" json:"total_storage_mb"`
	StorageLimitMB        float64    `db:"storage_limit_mb" json:"storage_limit_mb"`
	ChatMessagesThisMonth int        `db:"chat_messages_this_month" json:"chat_messages_this_month"`
	ChatMessageLimit      int        `db:"chat_message_limit" json:"chat_message_limit"`
	Tier                  string     `db:"tier" json:"tier"`
	LastResetDate         string     `db:"last_reset_date" json:"last_reset_date"`
	AccountCreatedAt      time.Time  `db:"account_created_at" json:"account_created_at"`
	TrialEndsAt           *time.Time `db:"trial_ends_at" json:"trial_ends_at,omitempty"`
}

// Unmetered reports whether the tier bypasses all quota checks.
func (u *UserUsage) Unmetered() bool {
	return u.Tier == TierPremium || u.Tier == TierTrial
}
