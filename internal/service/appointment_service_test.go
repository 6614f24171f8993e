package service

import (
	"context"
	"errors"
	"testing"

	"app/internal/model"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

type fakeAppointmentRepo struct {
	appointments []model.Appointment
	eventIDs     map[string]string
}

func (f *fakeAppointmentRepo) Create(ctx context.Context, a *model.Appointment) (*model.Appointment, error) {
	created := *a
	created.ID = "a1"
	created.Status = model.AppointmentPending
	f.appointments = append(f.appointments, created)
	return &created, nil
}

func (f *fakeAppointmentRepo) List(ctx context.Context, userID string) ([]model.Appointment, error) {
	return f.appointments, nil
}

func (f *fakeAppointmentRepo) UpdateStatus(ctx context.Context, appointmentID, userID, status string) (*model.Appointment, error) {
	for i := range f.appointments {
		if f.appointments[i].ID == appointmentID {
			f.appointments[i].Status = status
			return &f.appointments[i], nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeAppointmentRepo) SetGoogleEventID(ctx context.Context, appointmentID, userID, eventID string) error {
	if f.eventIDs == nil {
		f.eventIDs = map[string]string{}
	}
	f.eventIDs[appointmentID] = eventID
	return nil
}

type fakeEventWriter struct {
	createErr error
	created   int
	deleted   []string
}

func (f *fakeEventWriter) CreateEvent(ctx context.Context, token *oauth2.Token, appt *model.Appointment) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created++
	return "evt-1", nil
}

func (f *fakeEventWriter) DeleteEvent(ctx context.Context, token *oauth2.Token, eventID string) error {
	f.deleted = append(f.deleted, eventID)
	return nil
}

type fakeTokenStore struct {
	token *oauth2.Token
}

func (f *fakeTokenStore) SaveToken(ctx context.Context, userID string, token *oauth2.Token) error {
	f.token = token
	return nil
}

func (f *fakeTokenStore) GetToken(ctx context.Context, userID string) (*oauth2.Token, error) {
	if f.token == nil {
		return nil, errors.New("no token")
	}
	return f.token, nil
}

func (f *fakeTokenStore) DeleteToken(ctx context.Context, userID string) error {
	f.token = nil
	return nil
}

func TestCreateAppointmentSyncsToCalendar(t *testing.T) {
	repo := &fakeAppointmentRepo{}
	events := &fakeEventWriter{}
	tokens := &fakeTokenStore{token: &oauth2.Token{AccessToken: "tok"}}
	svc := NewAppointmentService(repo, events, tokens, zerolog.Nop())

	appt, err := svc.Create(context.Background(), "u1", "Dr. Osei", "2027-03-14", "10:30", "Annual checkup")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if appt.Status != model.AppointmentPending {
		t.Fatalf("new appointment should be pending, got %q", appt.Status)
	}
	if events.created != 1 {
		t.Fatal("calendar event should be created")
	}
	if repo.eventIDs["a1"] != "evt-1" {
		t.Fatalf("event ID should be recorded, got %v", repo.eventIDs)
	}
}

func TestCreateAppointmentCalendarFailureIsNotFatal(t *testing.T) {
	repo := &fakeAppointmentRepo{}
	events := &fakeEventWriter{createErr: errors.New("calendar unavailable")}
	tokens := &fakeTokenStore{token: &oauth2.Token{AccessToken: "tok"}}
	svc := NewAppointmentService(repo, events, tokens, zerolog.Nop())

	appt, err := svc.Create(context.Background(), "u1", "Dr. Osei", "2027-03-14", "10:30", "Checkup")
	if err != nil {
		t.Fatalf("calendar failure must not block the appointment, got %v", err)
	}
	if appt.GoogleEventID != nil {
		t.Fatal("failed sync should leave no event ID")
	}
}

func TestCreateAppointmentWithoutCalendarConfigured(t *testing.T) {
	repo := &fakeAppointmentRepo{}
	svc := NewAppointmentService(repo, nil, nil, zerolog.Nop())

	if _, err := svc.Create(context.Background(), "u1", "Dr. Osei", "2027-03-14", "10:30", "Checkup"); err != nil {
		t.Fatalf("create without calendar: %v", err)
	}
}

func TestCreateAppointmentRejectsBadTimestamp(t *testing.T) {
	svc := NewAppointmentService(&fakeAppointmentRepo{}, nil, nil, zerolog.Nop())
	if _, err := svc.Create(context.Background(), "u1", "Dr. Osei", "tomorrow", "noonish", "Checkup"); err == nil {
		t.Fatal("expected error for unparseable date/time")
	}
}

func TestUpcomingFiltersAndSorts(t *testing.T) {
	repo := &fakeAppointmentRepo{appointments: []model.Appointment{
		{ID: "past", Date: "2020-01-01", Time: "09:00", Status: model.AppointmentConfirmed},
		{ID: "later", Date: "2099-06-01", Time: "09:00", Status: model.AppointmentPending},
		{ID: "cancelled", Date: "2099-01-01", Time: "09:00", Status: model.AppointmentCancelled},
		{ID: "sooner", Date: "2099-01-02", Time: "09:00", Status: model.AppointmentConfirmed},
	}}
	svc := NewAppointmentService(repo, nil, nil, zerolog.Nop())

	upcoming, err := svc.Upcoming(context.Background(), "u1")
	if err != nil {
		t.Fatalf("upcoming: %v", err)
	}
	if len(upcoming) != 2 {
		t.Fatalf("expected 2 upcoming appointments, got %d", len(upcoming))
	}
	if upcoming[0].ID != "sooner" || upcoming[1].ID != "later" {
		t.Fatalf("expected soonest first, got %s then %s", upcoming[0].ID, upcoming[1].ID)
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	svc := NewAppointmentService(&fakeAppointmentRepo{}, nil, nil, zerolog.Nop())
	if _, err := svc.UpdateStatus(context.Background(), "u1", "a1", "rescheduled"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestConnectCalendarStoresTokenForSync(t *testing.T) {
	repo := &fakeAppointmentRepo{}
	events := &fakeEventWriter{}
	tokens := &fakeTokenStore{}
	svc := NewAppointmentService(repo, events, tokens, zerolog.Nop())

	if err := svc.ConnectCalendar(context.Background(), "u1", &oauth2.Token{AccessToken: "tok"}); err != nil {
		t.Fatalf("connect calendar: %v", err)
	}
	if tokens.token == nil || tokens.token.AccessToken != "tok" {
		t.Fatalf("token should be stored, got %+v", tokens.token)
	}

	// Appointments created after connecting sync to the calendar.
	if _, err := svc.Create(context.Background(), "u1", "Dr. Osei", "2027-03-14", "10:30", "Checkup"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if events.created != 1 {
		t.Fatal("calendar event should be created after connecting")
	}
}

func TestDisconnectCalendarRemovesToken(t *testing.T) {
	tokens := &fakeTokenStore{token: &oauth2.Token{AccessToken: "tok"}}
	svc := NewAppointmentService(&fakeAppointmentRepo{}, &fakeEventWriter{}, tokens, zerolog.Nop())

	if err := svc.DisconnectCalendar(context.Background(), "u1"); err != nil {
		t.Fatalf("disconnect calendar: %v", err)
	}
	if tokens.token != nil {
		t.Fatal("token should be removed")
	}
}

func TestCalendarTokenOpsWithoutCalendarConfigured(t *testing.T) {
	svc := NewAppointmentService(&fakeAppointmentRepo{}, nil, nil, zerolog.Nop())

	if err := svc.ConnectCalendar(context.Background(), "u1", &oauth2.Token{AccessToken: "tok"}); !errors.Is(err, ErrCalendarNotConfigured) {
		t.Fatalf("expected ErrCalendarNotConfigured, got %v", err)
	}
	if err := svc.DisconnectCalendar(context.Background(), "u1"); !errors.Is(err, ErrCalendarNotConfigured) {
		t.Fatalf("expected ErrCalendarNotConfigured, got %v", err)
	}
}

func TestCancelRemovesCalendarEvent(t *testing.T) {
	eventID := "evt-1"
	repo := &fakeAppointmentRepo{appointments: []model.Appointment{
		{ID: "a1", UserID: "u1", Date: "2099-01-01", Time: "09:00", Status: model.AppointmentConfirmed, GoogleEventID: &eventID},
	}}
	events := &fakeEventWriter{}
	tokens := &fakeTokenStore{token: &oauth2.Token{AccessToken: "tok"}}
	svc := NewAppointmentService(repo, events, tokens, zerolog.Nop())

	updated, err := svc.UpdateStatus(context.Background(), "u1", "a1", model.AppointmentCancelled)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if updated.Status != model.AppointmentCancelled {
		t.Fatalf("unexpected status %q", updated.Status)
	}
	if len(events.deleted) != 1 || events.deleted[0] != "evt-1" {
		t.Fatalf("calendar event should be removed, got %v", events.deleted)
	}
}
