package repository

import (
	"context"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAppointmentNotFound covers both a missing appointment and one owned by a
// different user.
var ErrAppointmentNotFound = errors.New("appointment_not_found")

// AppointmentRepository stores bookings. Appointments are never hard-deleted;
// cancellation is a status transition.
type AppointmentRepository interface {
	Create(ctx context.Context, a *model.Appointment) (*model.Appointment, error)
	List(ctx context.Context, userID string) ([]model.Appointment, error)
	UpdateStatus(ctx context.Context, appointmentID, userID, status string) (*model.Appointment, error)
	SetGoogleEventID(ctx context.Context, appointmentID, userID, eventID string) error
}

type appointmentRepo struct {
	pool *pgxpool.Pool
}

// NewAppointmentRepo creates a new AppointmentRepository.
func NewAppointmentRepo(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepo{pool: pool}
}

const appointmentColumns = `id, user_id, doctor, date, time, reason, status, google_event_id, created_at`

func scanAppointment(row pgx.Row) (*model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.Doctor,
		&a.Date,
		&a.Time,
		&a.Reason,
		&a.Status,
		&a.GoogleEventID,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *appointmentRepo) Create(ctx context.Context, a *model.Appointment) (*model.Appointment, error) {
	q := fmt.Sprintf(`
		INSERT INTO appointments (user_id, doctor, date, time, reason, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING %s
	`, appointmentColumns)
	created, err := scanAppointment(r.pool.QueryRow(ctx, q, a.UserID, a.Doctor, a.Date, a.Time, a.Reason, model.AppointmentPending))
	if err != nil {
		return nil, fmt.Errorf("creating appointment: %w", err)
	}
	return created, nil
}

func (r *appointmentRepo) List(ctx context.Context, userID string) ([]model.Appointment, error) {
	q := fmt.Sprintf(`
		SELECT %s
		FROM appointments
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, appointmentColumns)

	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("querying appointments for user %s: %w", userID, err)
	}
	defer rows.Close()

	var appointments []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning appointment row: %w", err)
		}
		appointments = append(appointments, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating appointment rows: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepo) UpdateStatus(ctx context.Context, appointmentID, userID, status string) (*model.Appointment, error) {
	q := fmt.Sprintf(`
		UPDATE appointments
		SET status = $3
		WHERE id = $1 AND user_id = $2
		RETURNING %s
	`, appointmentColumns)
	updated, err := scanAppointment(r.pool.QueryRow(ctx, q, appointmentID, userID, status))
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("updating appointment %s status: %w", appointmentID, err)
	}
	return updated, nil
}

func (r *appointmentRepo) SetGoogleEventID(ctx context.Context, appointmentID, userID, eventID string) error {
	const q = `
		UPDATE appointments
		SET google_event_id = $3
		WHERE id = $1 AND user_id = $2
	`
	tag, err := r.pool.Exec(ctx, q, appointmentID, userID, eventID)
	if err != nil {
		return fmt.Errorf("setting calendar event for appointment %s: %w", appointmentID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}
