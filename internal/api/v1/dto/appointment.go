package dto

import "time"

type AppointmentCreateDTO struct {
	Doctor string `json:"doctor" validate:"required,max=200"`
	Date   string `json:"date" validate:"required,datetime=2006-01-02"`
	Time   string `json:"time" validate:"required,datetime=15:04"`
	Reason string `json:"reason" validate:"required,max=500"`
}

type AppointmentStatusUpdateDTO struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed cancelled"`
}

// CalendarTokenDTO carries the Google OAuth token the client obtained for the
// user; expiry is optional for tokens that refresh.
type CalendarTokenDTO struct {
	AccessToken  string    `json:"access_token" validate:"required"`
	TokenType    string    `json:"token_type"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
}

type AppointmentResponseDTO struct {
	ID            string    `json:"id"`
	Doctor        string    `json:"doctor"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	Reason        string    `json:"reason"`
	Status        string    `json:"status"`
	GoogleEventID *string   `json:"google_event_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
