package dto

import "time"

type UsageResponseDTO struct {
	UserID                string     `json:"user_id"`
	ReportsUploaded       int        `json:"reports_uploaded"`
	ReportsLimit          int        `json:"reports_limit"`
	TotalStorageMB        float64    `json:"total_storage_mb"`
	StorageLimitMB        float64    `json:"storage_limit_mb"`
	ChatMessagesThisMonth int        `json:"chat_messages_this_month"`
	ChatMessageLimit      int        `json:"chat_message_limit"`
	Tier                  string     `json:"tier"`
	LastResetDate         string     `json:"last_reset_date"`
	AccountCreatedAt      time.Time  `json:"account_created_at"`
	TrialEndsAt           *time.Time `json:"trial_ends_at,omitempty"`
}
