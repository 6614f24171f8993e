package dto

import "time"

type AttachmentDTO struct {
	Name string `json:"name" validate:"required"`
	Type string `json:"type" validate:"required,oneof=image file"`
	URL  string `json:"url" validate:"required"`
}

type SendMessageDTO struct {
	ChatID      string          `json:"chat_id,omitempty"`
	Message     string          `json:"message" validate:"required"`
	Attachments []AttachmentDTO `json:"attachments,omitempty" validate:"omitempty,dive"`
}

type MessageResponseDTO struct {
	ID          string          `json:"id"`
	ChatID      string          `json:"chat_id,omitempty"`
	Role        string          `json:"role"`
	Text        string          `json:"text"`
	Attachments []AttachmentDTO `json:"attachments,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
