package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Report lifecycle event types.
const (
	EventReportAnalyzed = "report.analyzed"
	EventReportFailed   = "report.failed"
)

// ReportEvent is the payload published when a report finishes (or fails)
// analysis. Downstream consumers use it to trigger notifications.
type ReportEvent struct {
	Type       string    `json:"type"`
	ReportID   string    `json:"report_id"`
	UserID     string    `json:"user_id"`
	FileName   string    `json:"file_name"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ReportEvents publishes report lifecycle events to a single topic. A nil
// ReportEvents is valid and drops events, so callers don't branch on whether
// Pub/Sub is configured.
type ReportEvents struct {
	publisher Publisher
	topic     string
}

// NewReportEvents wraps a publisher with the report events topic. Returns nil
// when the publisher is nil, keeping the no-op contract.
func NewReportEvents(publisher Publisher, topic string) *ReportEvents {
	if publisher == nil {
		return nil
	}
	return &ReportEvents{publisher: publisher, topic: topic}
}

// Publish sends the event, stamping OccurredAt if unset.
func (e *ReportEvents) Publish(ctx context.Context, event ReportEvent) (string, error) {
	if e == nil {
		return "", nil
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report event: %w", err)
	}
	return e.publisher.Publish(ctx, e.topic, data)
}
