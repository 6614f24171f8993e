package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"app/internal/calendar"
	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/oauth2"
)

// ErrCalendarNotConfigured is returned when a calendar operation is requested
// but the server runs without calendar sync (no GCP project or OAuth app).
var ErrCalendarNotConfigured = errors.New("calendar_not_configured")

// AppointmentService manages bookings. Google Calendar sync is best-effort:
// the appointment always lands regardless of calendar state.
type AppointmentService interface {
	Create(ctx context.Context, userID, doctor, date, timeOfDay, reason string) (*model.Appointment, error)
	List(ctx context.Context, userID string) ([]model.Appointment, error)
	// Upcoming returns future, non-cancelled appointments, soonest first.
	Upcoming(ctx context.Context, userID string) ([]model.Appointment, error)
	UpdateStatus(ctx context.Context, userID, appointmentID, status string) (*model.Appointment, error)
	// ConnectCalendar stores the user's Google OAuth token; subsequent
	// appointments sync to their calendar.
	ConnectCalendar(ctx context.Context, userID string, token *oauth2.Token) error
	// DisconnectCalendar removes the stored token. Existing calendar events
	// are left in place.
	DisconnectCalendar(ctx context.Context, userID string) error
}

type appointmentService struct {
	repo       repository.AppointmentRepository
	events     calendar.EventWriter
	tokens     TokenStore
	apptLogger zerolog.Logger
}

// NewAppointmentService creates a new AppointmentService. events and tokens
// may be nil, which disables calendar sync.
func NewAppointmentService(
	repo repository.AppointmentRepository,
	events calendar.EventWriter,
	tokens TokenStore,
	logger zerolog.Logger,
) AppointmentService {
	return &appointmentService{
		repo:       repo,
		events:     events,
		tokens:     tokens,
		apptLogger: logger.With().Str("service", "AppointmentService").Logger(),
	}
}

func (s *appointmentService) Create(ctx context.Context, userID, doctor, date, timeOfDay, reason string) (*model.Appointment, error) {
	appt := &model.Appointment{
		UserID: userID,
		Doctor: doctor,
		Date:   date,
		Time:   timeOfDay,
		Reason: reason,
	}
	if _, err := appt.StartsAt(); err != nil {
		return nil, fmt.Errorf("invalid appointment date/time: %w", err)
	}

	created, err := s.repo.Create(ctx, appt)
	if err != nil {
		s.apptLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to create appointment")
		return nil, err
	}

	s.syncToCalendar(ctx, created)
	return created, nil
}

// syncToCalendar pushes the appointment to the user's Google Calendar when
// sync is configured and the user has connected their account.
func (s *appointmentService) syncToCalendar(ctx context.Context, appt *model.Appointment) {
	if s.events == nil || s.tokens == nil {
		return
	}

	token, err := s.tokens.GetToken(ctx, appt.UserID)
	if err != nil {
		// Most users never connect a calendar; a missing token is routine.
		s.apptLogger.Debug().Err(err).Str("user_id", appt.UserID).Msg("No calendar token; skipping sync")
		return
	}

	eventID, err := s.events.CreateEvent(ctx, token, appt)
	if err != nil {
		s.apptLogger.Warn().Err(err).Str("appointment_id", appt.ID).Msg("Failed to create calendar event")
		return
	}
	if err := s.repo.SetGoogleEventID(ctx, appt.ID, appt.UserID, eventID); err != nil {
		s.apptLogger.Warn().Err(err).Str("appointment_id", appt.ID).Msg("Failed to record calendar event ID")
		return
	}
	appt.GoogleEventID = &eventID
}

func (s *appointmentService) List(ctx context.Context, userID string) ([]model.Appointment, error) {
	appointments, err := s.repo.List(ctx, userID)
	if err != nil {
		s.apptLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to list appointments")
		return nil, err
	}
	return appointments, nil
}

func (s *appointmentService) Upcoming(ctx context.Context, userID string) ([]model.Appointment, error) {
	appointments, err := s.repo.List(ctx, userID)
	if err != nil {
		s.apptLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to list appointments")
		return nil, err
	}

	now := time.Now()
	upcoming := lo.Filter(appointments, func(a model.Appointment, _ int) bool {
		if a.Status == model.AppointmentCancelled {
			return false
		}
		starts, err := a.StartsAt()
		if err != nil {
			return false
		}
		return starts.After(now)
	})
	sort.Slice(upcoming, func(i, j int) bool {
		a, _ := upcoming[i].StartsAt()
		b, _ := upcoming[j].StartsAt()
		return a.Before(b)
	})
	return upcoming, nil
}

func (s *appointmentService) UpdateStatus(ctx context.Context, userID, appointmentID, status string) (*model.Appointment, error) {
	switch status {
	case model.AppointmentPending, model.AppointmentConfirmed, model.AppointmentCancelled:
	default:
		return nil, fmt.Errorf("invalid appointment status %q", status)
	}

	updated, err := s.repo.UpdateStatus(ctx, appointmentID, userID, status)
	if err != nil {
		if !errors.Is(err, repository.ErrAppointmentNotFound) {
			s.apptLogger.Error().Err(err).Str("appointment_id", appointmentID).Msg("Failed to update appointment status")
		}
		return nil, err
	}

	if status == model.AppointmentCancelled && updated.GoogleEventID != nil {
		s.removeCalendarEvent(ctx, updated)
	}
	return updated, nil
}

func (s *appointmentService) ConnectCalendar(ctx context.Context, userID string, token *oauth2.Token) error {
	if s.tokens == nil {
		return ErrCalendarNotConfigured
	}
	if err := s.tokens.SaveToken(ctx, userID, token); err != nil {
		s.apptLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to save calendar token")
		return err
	}
	s.apptLogger.Info().Str("user_id", userID).Msg("Calendar connected")
	return nil
}

func (s *appointmentService) DisconnectCalendar(ctx context.Context, userID string) error {
	if s.tokens == nil {
		return ErrCalendarNotConfigured
	}
	if err := s.tokens.DeleteToken(ctx, userID); err != nil {
		s.apptLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to delete calendar token")
		return err
	}
	s.apptLogger.Info().Str("user_id", userID).Msg("Calendar disconnected")
	return nil
}

func (s *appointmentService) removeCalendarEvent(ctx context.Context, appt *model.Appointment) {
	if s.events == nil || s.tokens == nil {
		return
	}
	token, err := s.tokens.GetToken(ctx, appt.UserID)
	if err != nil {
		s.apptLogger.Debug().Err(err).Str("user_id", appt.UserID).Msg("No calendar token; leaving event in place")
		return
	}
	if err := s.events.DeleteEvent(ctx, token, *appt.GoogleEventID); err != nil {
		s.apptLogger.Warn().Err(err).Str("appointment_id", appt.ID).Msg("Failed to remove calendar event")
	}
}
