package service

import (
	"context"
	"errors"
	"time"

	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// QuotaError carries the user-facing denial reason when an operation is
// blocked by the usage ledger.
type QuotaError struct {
	Reason string
}

func (e *QuotaError) Error() string { return e.Reason }

// UsageService maintains the per-user consumption ledger. Reads perform the
// lazy monthly rollover; counter writes are delegated to the repository's
// atomic statements.
type UsageService interface {
	// Initialize provisions a zeroed free-tier ledger for a new user. Calling
	// it again is a no-op.
	Initialize(ctx context.Context, userID string) error
	// GetUsage returns the user's current ledger after applying the monthly
	// rollover if a new calendar month has started. Returns nil (without
	// error) when no ledger exists for the user.
	GetUsage(ctx context.Context, userID string) (*model.UserUsage, error)
	// RecordChatMessage counts one delivered assistant reply. A missing ledger
	// or a concurrent race past the ceiling is logged and swallowed: the reply
	// has already been delivered, so the turn must not fail here.
	RecordChatMessage(ctx context.Context, userID string)
}

type usageService struct {
	repo        repository.UsageRepository
	usageLogger zerolog.Logger
}

// NewUsageService creates a new UsageService.
func NewUsageService(repo repository.UsageRepository, logger zerolog.Logger) UsageService {
	return &usageService{
		repo:        repo,
		usageLogger: logger.With().Str("service", "UsageService").Logger(),
	}
}

// monthKey identifies a calendar month for rollover comparison.
func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

func (s *usageService) Initialize(ctx context.Context, userID string) error {
	if err := s.repo.Initialize(ctx, userID, monthKey(time.Now())); err != nil {
		s.usageLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to initialize usage ledger")
		return err
	}
	return nil
}

func (s *usageService) GetUsage(ctx context.Context, userID string) (*model.UserUsage, error) {
	month := monthKey(time.Now())
	reset, err := s.repo.ResetMonthlyCounters(ctx, userID, month)
	if err != nil {
		s.usageLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to roll over monthly counters")
		return nil, err
	}
	if reset {
		s.usageLogger.Info().Str("user_id", userID).Str("month", month).Msg("Monthly usage counters reset")
	}

	usage, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUsageNotFound) {
			return nil, nil
		}
		s.usageLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to get usage ledger")
		return nil, err
	}
	return usage, nil
}

func (s *usageService) RecordChatMessage(ctx context.Context, userID string) {
	err := s.repo.IncrementMessageCount(ctx, userID)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrUsageNotFound):
		s.usageLogger.Warn().Str("user_id", userID).Msg("Chat message delivered without a usage ledger; not counted")
	case errors.Is(err, repository.ErrMessageLimitExceeded):
		// A concurrent turn consumed the last slot after this one passed the
		// gate. The counter stays clamped at the limit.
		s.usageLogger.Warn().Str("user_id", userID).Msg("Chat counter already at limit; increment clamped")
	default:
		s.usageLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to count chat message")
	}
}
