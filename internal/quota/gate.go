// Package quota holds the pure allow/deny decision logic consulted before a
// metered operation. Predicates consume a usage snapshot and have no side
// effects; callers are responsible for initializing the ledger first.
package quota

import (
	"fmt"

	"app/internal/model"
)

// Decision is the outcome of a quota check. Reason is a human-readable
// explanation set only when the operation is denied.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// CanUploadReport decides whether a report of fileSizeMB may be uploaded.
// Premium and trial tiers are always allowed. For the free tier the report
// count is checked before storage; the first failing check wins.
func CanUploadReport(usage *model.UserUsage, fileSizeMB float64) Decision {
	if usage == nil {
		return deny("User not found")
	}
	if usage.Unmetered() {
		return allow()
	}
	if usage.ReportsUploaded >= usage.ReportsLimit {
		return deny(fmt.Sprintf("Monthly limit reached (%d reports/month)", usage.ReportsLimit))
	}
	if usage.TotalStorageMB+fileSizeMB > usage.StorageLimitMB {
		return deny(fmt.Sprintf("Storage full (%.0fMB limit)", usage.StorageLimitMB))
	}
	return allow()
}

// CanSendMessage decides whether another chat message may be sent this month.
func CanSendMessage(usage *model.UserUsage) Decision {
	if usage == nil {
		return deny("User not found")
	}
	if usage.Unmetered() {
		return allow()
	}
	if usage.ChatMessagesThisMonth >= usage.ChatMessageLimit {
		return deny(fmt.Sprintf("Monthly chat limit reached (%d messages/month)", usage.ChatMessageLimit))
	}
	return allow()
}
