package service

import (
	"context"
	"testing"
	"time"

	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

type fakeUsageRepo struct {
	usage *model.UserUsage

	initMonth    string
	resetMonth   string
	resetHappens bool
	incrMsgErr   error
	incrMsgCalls int
}

func (f *fakeUsageRepo) Initialize(ctx context.Context, userID, month string) error {
	f.initMonth = month
	return nil
}

func (f *fakeUsageRepo) Get(ctx context.Context, userID string) (*model.UserUsage, error) {
	if f.usage == nil {
		return nil, repository.ErrUsageNotFound
	}
	return f.usage, nil
}

func (f *fakeUsageRepo) ResetMonthlyCounters(ctx context.Context, userID, month string) (bool, error) {
	f.resetMonth = month
	if f.resetHappens && f.usage != nil {
		f.usage.ReportsUploaded = 0
		f.usage.ChatMessagesThisMonth = 0
		f.usage.LastResetDate = month
	}
	return f.resetHappens, nil
}

func (f *fakeUsageRepo) IncrementMessageCount(ctx context.Context, userID string) error {
	f.incrMsgCalls++
	return f.incrMsgErr
}

func freeUsage() *model.UserUsage {
	return &model.UserUsage{
		UserID:           "u1",
		ReportsLimit:     model.DefaultReportsLimit,
		StorageLimitMB:   model.DefaultStorageLimitMB,
		ChatMessageLimit: model.DefaultChatMessageLimit,
		Tier:             model.TierFree,
		LastResetDate:    monthKey(time.Now()),
	}
}

func TestGetUsageAppliesRolloverBeforeRead(t *testing.T) {
	repo := &fakeUsageRepo{usage: freeUsage(), resetHappens: true}
	repo.usage.ReportsUploaded = 7
	repo.usage.ChatMessagesThisMonth = 42
	repo.usage.LastResetDate = "2026-08"

	svc := NewUsageService(repo, zerolog.Nop())
	usage, err := svc.GetUsage(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get usage: %v", err)
	}
	if repo.resetMonth != monthKey(time.Now()) {
		t.Fatalf("rollover used month %q", repo.resetMonth)
	}
	if usage.ReportsUploaded != 0 || usage.ChatMessagesThisMonth != 0 {
		t.Fatalf("counters should be reset, got %+v", usage)
	}
}

func TestGetUsageUnknownUserReturnsNil(t *testing.T) {
	svc := NewUsageService(&fakeUsageRepo{}, zerolog.Nop())
	usage, err := svc.GetUsage(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("missing ledger must not be an error, got %v", err)
	}
	if usage != nil {
		t.Fatalf("expected nil usage, got %+v", usage)
	}
}

func TestRecordChatMessageSwallowsMissingLedger(t *testing.T) {
	repo := &fakeUsageRepo{incrMsgErr: repository.ErrUsageNotFound}
	svc := NewUsageService(repo, zerolog.Nop())
	svc.RecordChatMessage(context.Background(), "nobody")
	if repo.incrMsgCalls != 1 {
		t.Fatalf("expected one increment attempt, got %d", repo.incrMsgCalls)
	}
}

func TestRecordChatMessageSwallowsCeilingRace(t *testing.T) {
	repo := &fakeUsageRepo{incrMsgErr: repository.ErrMessageLimitExceeded}
	svc := NewUsageService(repo, zerolog.Nop())
	// Must not panic or surface the race; the reply was already delivered.
	svc.RecordChatMessage(context.Background(), "u1")
}

func TestInitializeUsesCurrentMonth(t *testing.T) {
	repo := &fakeUsageRepo{}
	svc := NewUsageService(repo, zerolog.Nop())
	if err := svc.Initialize(context.Background(), "u1"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if repo.initMonth != monthKey(time.Now()) {
		t.Fatalf("initialized with month %q", repo.initMonth)
	}
}
