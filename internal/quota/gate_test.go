package quota

import (
	"strings"
	"testing"

	"app/internal/model"
)

func freeUsage() *model.UserUsage {
	return &model.UserUsage{
		UserID:           "user-1",
		ReportsLimit:     10,
		StorageLimitMB:   50,
		ChatMessageLimit: 100,
		Tier:             model.TierFree,
	}
}

func TestCanUploadReportNilUsage(t *testing.T) {
	d := CanUploadReport(nil, 1)
	if d.Allowed {
		t.Fatal("expected deny for missing usage record")
	}
	if d.Reason != "User not found" {
		t.Fatalf("unexpected reason: %q", d.Reason)
	}
}

func TestCanUploadReportFreeTier(t *testing.T) {
	u := freeUsage()
	if d := CanUploadReport(u, 2); !d.Allowed {
		t.Fatalf("expected allow, got reason %q", d.Reason)
	}
}

func TestCanUploadReportCountCeiling(t *testing.T) {
	u := freeUsage()
	u.ReportsUploaded = 10

	// Denied regardless of requested size, and the count reason wins over
	// any storage consideration.
	d := CanUploadReport(u, 0.001)
	if d.Allowed {
		t.Fatal("expected deny at report-count ceiling")
	}
	if !strings.Contains(d.Reason, "10 reports/month") {
		t.Fatalf("reason should mention the report limit, got %q", d.Reason)
	}
}

func TestCanUploadReportStorageCeiling(t *testing.T) {
	u := freeUsage()
	u.ReportsUploaded = 3
	u.TotalStorageMB = 49.5

	d := CanUploadReport(u, 1)
	if d.Allowed {
		t.Fatal("expected deny when upload would overflow storage")
	}
	if !strings.Contains(d.Reason, "Storage full") {
		t.Fatalf("unexpected reason: %q", d.Reason)
	}

	// Exactly filling the limit is still allowed.
	if d := CanUploadReport(u, 0.5); !d.Allowed {
		t.Fatalf("expected allow when upload exactly fills storage, got %q", d.Reason)
	}
}

func TestCanUploadReportCountCheckedBeforeStorage(t *testing.T) {
	u := freeUsage()
	u.ReportsUploaded = 10
	u.TotalStorageMB = 50

	d := CanUploadReport(u, 5)
	if d.Allowed {
		t.Fatal("expected deny")
	}
	if !strings.Contains(d.Reason, "reports/month") {
		t.Fatalf("count reason should win when both ceilings are hit, got %q", d.Reason)
	}
}

func TestCanSendMessageFreeTier(t *testing.T) {
	u := freeUsage()
	u.ChatMessagesThisMonth = 99
	if d := CanSendMessage(u); !d.Allowed {
		t.Fatalf("expected allow below the limit, got %q", d.Reason)
	}

	u.ChatMessagesThisMonth = 100
	d := CanSendMessage(u)
	if d.Allowed {
		t.Fatal("expected deny at the chat ceiling")
	}
	if !strings.Contains(d.Reason, "100 messages/month") {
		t.Fatalf("unexpected reason: %q", d.Reason)
	}
}

func TestCanSendMessageNilUsage(t *testing.T) {
	if d := CanSendMessage(nil); d.Allowed || d.Reason != "User not found" {
		t.Fatalf("expected User not found denial, got %+v", d)
	}
}

func TestUnmeteredTiersAlwaysAllowed(t *testing.T) {
	for _, tier := range []string{model.TierPremium, model.TierTrial} {
		u := freeUsage()
		u.Tier = tier
		u.ReportsUploaded = 1000
		u.TotalStorageMB = 1000
		u.ChatMessagesThisMonth = 1000

		if d := CanUploadReport(u, 500); !d.Allowed {
			t.Fatalf("tier %s: expected upload allow, got %q", tier, d.Reason)
		}
		if d := CanSendMessage(u); !d.Allowed {
			t.Fatalf("tier %s: expected message allow, got %q", tier, d.Reason)
		}
	}
}
