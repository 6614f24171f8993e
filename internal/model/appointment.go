package model

import "time"

// Appointment statuses. Created pending; moved to confirmed or cancelled via
// explicit status updates. Appointments are never hard-deleted.
const (
	AppointmentPending   = "pending"
	AppointmentConfirmed = "confirmed"
	AppointmentCancelled = "cancelled"
)

type Appointment struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	Doctor        string    `db:"doctor" json:"doctor"`
	Date          string    `db:"date" json:"date"`
	Time          string    `db:"time" json:"time"`
	Reason        string    `db:"reason" json:"reason"`
	Status        string    `db:"status" json:"status"`
	GoogleEventID *string   `db:"google_event_id" json:"google_event_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// StartsAt combines the stored date and time strings into a timestamp.
func (a *Appointment) StartsAt() (time.Time, error) {
	return time.Parse("2006-01-02T15:04", a.Date+"T"+a.Time)
}
