package pubsub

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"app/internal/config"

	ps "cloud.google.com/go/pubsub"
)

func TestNewPublisherInvalidProject(t *testing.T) {
	cfg := &config.Config{GCPProjectID: ""}
	if _, err := NewPublisher(context.Background(), cfg); err == nil {
		t.Fatal("expected error when project ID is empty")
	}
}

type capturingPublisher struct {
	topic   string
	payload []byte
}

func (c *capturingPublisher) Publish(ctx context.Context, topic string, payload []byte) (string, error) {
	c.topic = topic
	c.payload = payload
	return "msg-1", nil
}

func TestReportEventsPublishesToConfiguredTopic(t *testing.T) {
	pub := &capturingPublisher{}
	events := NewReportEvents(pub, "report-events")

	id, err := events.Publish(context.Background(), ReportEvent{
		Type:     EventReportAnalyzed,
		ReportID: "r1",
		UserID:   "u1",
		FileName: "cbc.pdf",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if id != "msg-1" {
		t.Fatalf("unexpected message id %q", id)
	}
	if pub.topic != "report-events" {
		t.Fatalf("published to wrong topic %q", pub.topic)
	}

	var got ReportEvent
	if err := json.Unmarshal(pub.payload, &got); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if got.Type != EventReportAnalyzed || got.ReportID != "r1" {
		t.Fatalf("unexpected event %+v", got)
	}
	if got.OccurredAt.IsZero() {
		t.Fatal("OccurredAt should be stamped")
	}
}

func TestReportEventsNilIsNoOp(t *testing.T) {
	var events *ReportEvents
	if _, err := events.Publish(context.Background(), ReportEvent{Type: EventReportFailed}); err != nil {
		t.Fatalf("nil events should drop silently, got %v", err)
	}
	if NewReportEvents(nil, "topic") != nil {
		t.Fatal("nil publisher should yield nil events")
	}
}

func TestPublishWithEmulator(t *testing.T) {
	emulator := os.Getenv("PUBSUB_EMULATOR_HOST")
	if emulator == "" {
		t.Skip("PUBSUB_EMULATOR_HOST is not set, skip emulator integration test")
	}

	ctx := context.Background()
	cfg := &config.Config{GCPProjectID: "test-project"}
	pub, err := NewPublisher(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to create PubSubPublisher: %v", err)
	}

	topicName := "test-topic"
	topic, err := pub.client.CreateTopic(ctx, topicName)
	if err != nil {
		t.Fatalf("failed to create topic: %v", err)
	}
	subName := "test-sub"
	sub, err := pub.client.CreateSubscription(ctx, subName, ps.SubscriptionConfig{Topic: topic})
	if err != nil {
		t.Fatalf("failed to create subscription: %v", err)
	}

	msgID, err := pub.Publish(ctx, topicName, []byte("hello-emulator"))
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if msgID == "" {
		t.Fatal("expected non-empty message ID")
	}

	recvCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	c := make(chan []byte, 1)
	go func() {
		sub.Receive(recvCtx, func(ctx context.Context, m *ps.Message) {
			c <- m.Data
			m.Ack()
			cancel()
		})
	}()

	select {
	case data := <-c:
		if string(data) != "hello-emulator" {
			t.Fatalf("expected message data 'hello-emulator', got '%s'", string(data))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message from emulator subscription")
	}
}
