// Package calendar syncs confirmed appointments to the user's Google
// Calendar. Sync is best-effort: a failure here never blocks the appointment
// itself.
package calendar

import (
	"context"
	"fmt"
	"time"

	"app/internal/config"
	"app/internal/model"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const defaultAppointmentDuration = 30 * time.Minute

// EventWriter creates and cancels calendar events on behalf of a user.
type EventWriter interface {
	CreateEvent(ctx context.Context, token *oauth2.Token, appt *model.Appointment) (string, error)
	DeleteEvent(ctx context.Context, token *oauth2.Token, eventID string) error
}

// GoogleCalendar writes events to the user's primary Google Calendar using
// their stored OAuth token. The oauth2 config refreshes expired tokens
// transparently.
type GoogleCalendar struct {
	oauthConfig *oauth2.Config
}

// NewGoogleCalendar creates a calendar writer. Returns nil when no OAuth
// client is configured, which disables sync.
func NewGoogleCalendar(cfg *config.Config) *GoogleCalendar {
	if cfg.GoogleClientID == "" {
		return nil
	}
	return &GoogleCalendar{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{calendar.CalendarEventsScope},
		},
	}
}

func (g *GoogleCalendar) service(ctx context.Context, token *oauth2.Token) (*calendar.Service, error) {
	source := g.oauthConfig.TokenSource(ctx, token)
	svc, err := calendar.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar client: %w", err)
	}
	return svc, nil
}

// CreateEvent inserts the appointment into the user's primary calendar and
// returns the created event ID.
func (g *GoogleCalendar) CreateEvent(ctx context.Context, token *oauth2.Token, appt *model.Appointment) (string, error) {
	svc, err := g.service(ctx, token)
	if err != nil {
		return "", err
	}

	start, err := appt.StartsAt()
	if err != nil {
		return "", fmt.Errorf("invalid appointment time: %w", err)
	}
	end := start.Add(defaultAppointmentDuration)

	event := &calendar.Event{
		Summary:     fmt.Sprintf("Appointment with %s", appt.Doctor),
		Description: appt.Reason,
		Start:       &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: end.Format(time.RFC3339)},
		Reminders: &calendar.EventReminders{
			UseDefault:      false,
			ForceSendFields: []string{"UseDefault"},
			Overrides: []*calendar.EventReminder{
				{Method: "popup", Minutes: 60},
			},
		},
	}

	created, err := svc.Events.Insert("primary", event).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create calendar event: %w", err)
	}
	return created.Id, nil
}

// DeleteEvent removes a previously created event from the user's calendar.
func (g *GoogleCalendar) DeleteEvent(ctx context.Context, token *oauth2.Token, eventID string) error {
	svc, err := g.service(ctx, token)
	if err != nil {
		return err
	}
	if err := svc.Events.Delete("primary", eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete calendar event: %w", err)
	}
	return nil
}
