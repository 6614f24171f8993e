package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"app/internal/ai"
	"app/internal/extract"
	"app/internal/model"
	"app/internal/quota"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// ErrEmptyMessage is returned when a chat turn has no text.
var ErrEmptyMessage = errors.New("empty_message")

// FallbackMessage is persisted as the assistant turn when the AI call fails.
// A fallback turn never consumes quota.
const FallbackMessage = "I'm having trouble connecting right now. Please try again."

// chatPrompt is the assistant persona for conversation turns.
const chatPrompt = `You are Pulse, an intelligent medical AI assistant specialized in:
- Analyzing medical reports, lab results, and medical images
- Explaining medical terminology in simple, patient-friendly language
- Identifying key findings and abnormal values
- Providing health guidance while emphasizing the importance of professional medical consultation

When analyzing medical images or PDFs:
1. Carefully examine all visible information
2. Identify and explain any abnormal findings or values
3. For lab reports: highlight values outside normal ranges
4. Explain medical terms in plain language
5. Provide context about what the findings might mean
6. Always recommend consulting a healthcare provider for diagnosis and treatment

For extracted PDF text:
- Parse through the medical information systematically
- Identify key sections (patient info, test results, diagnoses, recommendations)
- Highlight abnormal values and concerning findings
- Explain medical abbreviations and terminology

Be empathetic, clear, and professional. Never provide definitive diagnoses.`

// ChatService orchestrates one conversation turn: gate, persist the user
// message, resolve attachments, ask the model, persist the reply, count it.
type ChatService interface {
	SendMessage(ctx context.Context, userID, chatID, text string, attachments []model.Attachment) (*model.Message, error)
	History(ctx context.Context, userID, chatID string, limit int) ([]model.Message, error)
}

type chatService struct {
	repo         repository.MessageRepository
	usageService UsageService
	extractor    extract.Extractor
	completer    ai.Completer

	chatModel    string
	visionModel  string
	historyLimit int
	chatLogger   zerolog.Logger
}

// NewChatService creates a new ChatService.
func NewChatService(
	repo repository.MessageRepository,
	usageService UsageService,
	extractor extract.Extractor,
	completer ai.Completer,
	chatModel, visionModel string,
	historyLimit int,
	logger zerolog.Logger,
) ChatService {
	if historyLimit <= 0 {
		historyLimit = 20
	}
	return &chatService{
		repo:         repo,
		usageService: usageService,
		extractor:    extractor,
		completer:    completer,
		chatModel:    chatModel,
		visionModel:  visionModel,
		historyLimit: historyLimit,
		chatLogger:   logger.With().Str("service", "ChatService").Logger(),
	}
}

// SendMessage runs one turn and returns the assistant's reply. An AI failure
// is not an error for the caller: the fallback turn is persisted and returned,
// and the user's quota is left untouched.
func (s *chatService) SendMessage(ctx context.Context, userID, chatID, text string, attachments []model.Attachment) (*model.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	usage, err := s.usageService.GetUsage(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("checking usage before chat turn: %w", err)
	}
	if d := quota.CanSendMessage(usage); !d.Allowed {
		return nil, &QuotaError{Reason: d.Reason}
	}

	// History is captured before the new turn is stored so it holds only
	// prior conversation.
	history, err := s.repo.ListRecent(ctx, userID, chatID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("loading chat history: %w", err)
	}

	if _, err := s.repo.CreateMessage(ctx, &model.Message{
		UserID:      userID,
		ChatID:      chatID,
		Role:        model.RoleUser,
		Text:        text,
		Attachments: attachments,
	}); err != nil {
		return nil, fmt.Errorf("persisting user turn: %w", err)
	}

	parts, m := s.resolveAttachments(ctx, text, attachments)

	reply, err := s.completer.Complete(ctx, ai.CompletionRequest{
		Model:       m,
		System:      chatPrompt,
		History:     toHistory(history),
		Parts:       parts,
		Temperature: 0.7,
		MaxTokens:   2000,
	})
	if err != nil {
		s.chatLogger.Error().Err(err).Str("user_id", userID).Msg("AI completion failed; replying with fallback")
		fallback, persistErr := s.repo.CreateMessage(ctx, &model.Message{
			UserID: userID,
			ChatID: chatID,
			Role:   model.RoleAssistant,
			Text:   FallbackMessage,
		})
		if persistErr != nil {
			return nil, fmt.Errorf("persisting fallback turn: %w", persistErr)
		}
		return fallback, nil
	}

	assistant, err := s.repo.CreateMessage(ctx, &model.Message{
		UserID: userID,
		ChatID: chatID,
		Role:   model.RoleAssistant,
		Text:   reply,
	})
	if err != nil {
		return nil, fmt.Errorf("persisting assistant turn: %w", err)
	}

	s.usageService.RecordChatMessage(ctx, userID)
	return assistant, nil
}

// resolveAttachments builds the user content parts and picks the model.
// Images become inline vision parts and switch the turn to the vision model;
// documents are extracted and appended to the text part. Attachment order is
// preserved within each kind. An unreadable attachment of either kind is
// noted inline rather than failing the turn.
func (s *chatService) resolveAttachments(ctx context.Context, text string, attachments []model.Attachment) ([]ai.Part, string) {
	m := s.chatModel
	textPart := text
	var imageParts []ai.Part

	for _, att := range attachments {
		switch att.Type {
		case model.AttachmentImage:
			if !strings.HasPrefix(att.URL, "data:image") {
				s.chatLogger.Warn().Str("attachment", att.Name).Msg("Image attachment has an invalid data URL")
				textPart += fmt.Sprintf("\n\nImage: %s\n\n(the image could not be read)", att.Name)
				continue
			}
			m = s.visionModel
			imageParts = append(imageParts, ai.ImagePart(att.URL))
		case model.AttachmentFile:
			extracted, err := s.extractDocument(ctx, att)
			if err != nil {
				s.chatLogger.Warn().Err(err).Str("attachment", att.Name).Msg("Failed to extract document attachment")
				extracted = "(the file could not be read)"
			}
			textPart += fmt.Sprintf("\n\nFile: %s\n\nExtracted Content:\n%s", att.Name, extracted)
		default:
			s.chatLogger.Warn().Str("attachment", att.Name).Str("type", att.Type).Msg("Ignoring attachment of unknown type")
		}
	}

	parts := []ai.Part{ai.TextPart(textPart)}
	parts = append(parts, imageParts...)
	return parts, m
}

func (s *chatService) extractDocument(ctx context.Context, att model.Attachment) (string, error) {
	contentType, data, err := decodeDataURL(att.URL)
	if err != nil {
		return "", err
	}
	return s.extractor.Extract(ctx, att.Name, contentType, data)
}

// decodeDataURL splits a "data:<mime>;base64,<payload>" URL into its content
// type and raw bytes.
func decodeDataURL(url string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return "", nil, errors.New("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("malformed data URL")
	}
	contentType, _, _ := strings.Cut(meta, ";")
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decoding data URL payload: %w", err)
	}
	return contentType, data, nil
}

func toHistory(messages []model.Message) []ai.Message {
	history := make([]ai.Message, 0, len(messages))
	for _, m := range messages {
		history = append(history, ai.Message{Role: m.Role, Content: m.Text})
	}
	return history
}

func (s *chatService) History(ctx context.Context, userID, chatID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	messages, err := s.repo.ListMessages(ctx, userID, chatID, limit)
	if err != nil {
		s.chatLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to list messages")
		return nil, err
	}
	return messages, nil
}
