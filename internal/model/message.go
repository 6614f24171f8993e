package model

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Attachment types.
const (
	AttachmentImage = "image"
	AttachmentFile  = "file"
)

// Attachment references a file or image carried with a chat turn.
type Attachment struct {
	Name string `json:"name"`
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Message is one turn of a conversation. Append-only; ordered by CreatedAt
// ascending for display.
type Message struct {
	ID          string       `db:"id" json:"id"`
	UserID      string       `db:"user_id" json:"user_id"`
	ChatID      string       `db:"chat_id" json:"chat_id,omitempty"`
	Role        string       `db:"role" json:"role"`
	Text        string       `db:"text" json:"text"`
	Attachments []Attachment `db:"attachments" json:"attachments,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}
