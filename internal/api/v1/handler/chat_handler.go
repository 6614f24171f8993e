package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

type ChatHandler struct {
	chatService service.ChatService
	validate    *validator.Validate
	logger      zerolog.Logger
}

func NewChatHandler(chatService service.ChatService, validate *validator.Validate, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		validate:    validate,
		logger:      logger,
	}
}

func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/chat/messages", authMw(http.HandlerFunc(h.handleMessages)))
}

func (h *ChatHandler) handleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.sendMessage(w, r)
	case http.MethodGet:
		h.listMessages(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// sendMessage runs one conversation turn and returns the assistant's reply.
// A turn blocked by the monthly quota returns 403 with the denial reason.
func (h *ChatHandler) sendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return
	}

	var req dto.SendMessageDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	attachments := lo.Map(req.Attachments, func(a dto.AttachmentDTO, _ int) model.Attachment {
		return model.Attachment{Name: a.Name, Type: a.Type, URL: a.URL}
	})

	reply, err := h.chatService.SendMessage(r.Context(), userID, req.ChatID, req.Message, attachments)
	if err != nil {
		var qe *service.QuotaError
		switch {
		case errors.As(err, &qe):
			http.Error(w, qe.Reason, http.StatusForbidden)
		case errors.Is(err, service.ErrEmptyMessage):
			http.Error(w, "Message is required", http.StatusBadRequest)
		default:
			http.Error(w, "Failed to send message: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(toMessageDTO(reply)); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

// listMessages returns the caller's conversation history, oldest first.
func (h *ChatHandler) listMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return
	}

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}
	chatID := r.URL.Query().Get("chat_id")

	messages, err := h.chatService.History(r.Context(), userID, chatID, limit)
	if err != nil {
		http.Error(w, "Failed to list messages: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := lo.Map(messages, func(m model.Message, _ int) dto.MessageResponseDTO {
		return *toMessageDTO(&m)
	})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func toMessageDTO(m *model.Message) *dto.MessageResponseDTO {
	return &dto.MessageResponseDTO{
		ID:     m.ID,
		ChatID: m.ChatID,
		Role:   m.Role,
		Text:   m.Text,
		Attachments: lo.Map(m.Attachments, func(a model.Attachment, _ int) dto.AttachmentDTO {
			return dto.AttachmentDTO{Name: a.Name, Type: a.Type, URL: a.URL}
		}),
		CreatedAt: m.CreatedAt,
	}
}
