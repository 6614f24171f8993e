package service

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"app/internal/ai"
	"app/internal/model"

	"github.com/rs/zerolog"
)

type fakeMessageRepo struct {
	history []model.Message
	created []model.Message
}

func (f *fakeMessageRepo) CreateMessage(ctx context.Context, msg *model.Message) (*model.Message, error) {
	stored := *msg
	stored.ID = "m1"
	f.created = append(f.created, stored)
	return &stored, nil
}

func (f *fakeMessageRepo) ListMessages(ctx context.Context, userID, chatID string, limit int) ([]model.Message, error) {
	return f.history, nil
}

func (f *fakeMessageRepo) ListRecent(ctx context.Context, userID, chatID string, limit int) ([]model.Message, error) {
	return f.history, nil
}

type fakeUsageService struct {
	usage    *model.UserUsage
	recorded int
}

func (f *fakeUsageService) Initialize(ctx context.Context, userID string) error { return nil }

func (f *fakeUsageService) GetUsage(ctx context.Context, userID string) (*model.UserUsage, error) {
	return f.usage, nil
}

func (f *fakeUsageService) RecordChatMessage(ctx context.Context, userID string) { f.recorded++ }

type fakeCompleter struct {
	got   ai.CompletionRequest
	reply string
	err   error
}

func (f *fakeCompleter) Complete(ctx context.Context, req ai.CompletionRequest) (string, error) {
	f.got = req
	return f.reply, f.err
}

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract(ctx context.Context, fileName, contentType string, data []byte) (string, error) {
	return f.text, f.err
}

func newChatFixture(usage *model.UserUsage) (*fakeMessageRepo, *fakeUsageService, *fakeCompleter, ChatService) {
	repo := &fakeMessageRepo{}
	usageSvc := &fakeUsageService{usage: usage}
	completer := &fakeCompleter{reply: "drink plenty of water"}
	svc := NewChatService(repo, usageSvc, &fakeExtractor{text: "Hemoglobin: 9.2 (Low)"}, completer, "gpt-4o-mini", "gpt-4o", 20, zerolog.Nop())
	return repo, usageSvc, completer, svc
}

func TestSendMessageHappyPath(t *testing.T) {
	repo, usageSvc, completer, svc := newChatFixture(freeUsage())
	repo.history = []model.Message{
		{Role: model.RoleUser, Text: "hi"},
		{Role: model.RoleAssistant, Text: "hello"},
	}

	reply, err := svc.SendMessage(context.Background(), "u1", "c1", "I have a headache", nil)
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if reply.Role != model.RoleAssistant || reply.Text != "drink plenty of water" {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if len(repo.created) != 2 {
		t.Fatalf("expected user + assistant turns persisted, got %d", len(repo.created))
	}
	if repo.created[0].Role != model.RoleUser || repo.created[1].Role != model.RoleAssistant {
		t.Fatalf("turns persisted in wrong order: %v, %v", repo.created[0].Role, repo.created[1].Role)
	}
	if usageSvc.recorded != 1 {
		t.Fatalf("expected one counted message, got %d", usageSvc.recorded)
	}
	if len(completer.got.History) != 2 {
		t.Fatalf("history should hold only prior turns, got %d", len(completer.got.History))
	}
	if completer.got.Model != "gpt-4o-mini" {
		t.Fatalf("text-only turn should use the chat model, got %q", completer.got.Model)
	}
}

func TestSendMessageRejectsEmptyText(t *testing.T) {
	_, _, _, svc := newChatFixture(freeUsage())
	if _, err := svc.SendMessage(context.Background(), "u1", "c1", "   ", nil); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestSendMessageDeniedAtLimitPersistsNothing(t *testing.T) {
	usage := freeUsage()
	usage.ChatMessagesThisMonth = usage.ChatMessageLimit
	repo, usageSvc, _, svc := newChatFixture(usage)

	_, err := svc.SendMessage(context.Background(), "u1", "c1", "hello", nil)
	var qe *QuotaError
	if !errors.As(err, &qe) {
		t.Fatalf("expected QuotaError, got %v", err)
	}
	if len(repo.created) != 0 {
		t.Fatal("denied turn must not persist any messages")
	}
	if usageSvc.recorded != 0 {
		t.Fatal("denied turn must not consume quota")
	}
}

func TestSendMessageAIFailurePersistsFallbackWithoutCounting(t *testing.T) {
	repo, usageSvc, completer, svc := newChatFixture(freeUsage())
	completer.err = errors.New("upstream timeout")

	reply, err := svc.SendMessage(context.Background(), "u1", "c1", "hello", nil)
	if err != nil {
		t.Fatalf("fallback turn should not surface an error, got %v", err)
	}
	if reply.Text != FallbackMessage {
		t.Fatalf("expected fallback text, got %q", reply.Text)
	}
	if len(repo.created) != 2 {
		t.Fatalf("user turn and fallback turn should both persist, got %d", len(repo.created))
	}
	if usageSvc.recorded != 0 {
		t.Fatal("fallback turn must not consume quota")
	}
}

func TestSendMessageImageAttachmentSwitchesToVisionModel(t *testing.T) {
	_, _, completer, svc := newChatFixture(freeUsage())

	_, err := svc.SendMessage(context.Background(), "u1", "c1", "what does this show?", []model.Attachment{
		{Name: "xray.png", Type: model.AttachmentImage, URL: "data:image/png;base64,AAAA"},
	})
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if completer.got.Model != "gpt-4o" {
		t.Fatalf("image turn should use the vision model, got %q", completer.got.Model)
	}
	if len(completer.got.Parts) != 2 || completer.got.Parts[1].ImageURL == "" {
		t.Fatalf("expected text + image parts, got %+v", completer.got.Parts)
	}
}

func TestSendMessageFileAttachmentInlinesExtractedText(t *testing.T) {
	_, _, completer, svc := newChatFixture(freeUsage())

	payload := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4"))
	_, err := svc.SendMessage(context.Background(), "u1", "c1", "explain this report", []model.Attachment{
		{Name: "cbc.pdf", Type: model.AttachmentFile, URL: "data:application/pdf;base64," + payload},
	})
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	text := completer.got.Parts[0].Text
	if !strings.Contains(text, "File: cbc.pdf") {
		t.Fatalf("extracted content should name the file, got %q", text)
	}
	if !strings.Contains(text, "Hemoglobin: 9.2 (Low)") {
		t.Fatalf("extracted content should be inlined, got %q", text)
	}
	if completer.got.Model != "gpt-4o-mini" {
		t.Fatalf("document-only turn should keep the chat model, got %q", completer.got.Model)
	}
}

func TestSendMessageUnreadableFileIsNotedInline(t *testing.T) {
	repo := &fakeMessageRepo{}
	completer := &fakeCompleter{reply: "noted"}
	svc := NewChatService(repo, &fakeUsageService{usage: freeUsage()}, &fakeExtractor{err: errors.New("corrupt pdf")}, completer, "gpt-4o-mini", "gpt-4o", 20, zerolog.Nop())

	payload := base64.StdEncoding.EncodeToString([]byte("junk"))
	_, err := svc.SendMessage(context.Background(), "u1", "c1", "explain this", []model.Attachment{
		{Name: "bad.pdf", Type: model.AttachmentFile, URL: "data:application/pdf;base64," + payload},
	})
	if err != nil {
		t.Fatalf("unreadable attachment must not fail the turn, got %v", err)
	}
	if !strings.Contains(completer.got.Parts[0].Text, "could not be read") {
		t.Fatalf("failure should be noted inline, got %q", completer.got.Parts[0].Text)
	}
}

func TestSendMessageInvalidImageURLIsNotedInline(t *testing.T) {
	_, _, completer, svc := newChatFixture(freeUsage())

	_, err := svc.SendMessage(context.Background(), "u1", "c1", "what does this show?", []model.Attachment{
		{Name: "xray.png", Type: model.AttachmentImage, URL: "https://elsewhere.test/xray.png"},
	})
	if err != nil {
		t.Fatalf("unusable image must not fail the turn, got %v", err)
	}
	text := completer.got.Parts[0].Text
	if !strings.Contains(text, "Image: xray.png") || !strings.Contains(text, "could not be read") {
		t.Fatalf("failure should be noted inline, got %q", text)
	}
	if len(completer.got.Parts) != 1 {
		t.Fatalf("no image part should be sent, got %d parts", len(completer.got.Parts))
	}
	if completer.got.Model != "gpt-4o-mini" {
		t.Fatalf("turn without a usable image should keep the chat model, got %q", completer.got.Model)
	}
}

func TestDecodeDataURL(t *testing.T) {
	contentType, data, err := decodeDataURL("data:application/pdf;base64," + base64.StdEncoding.EncodeToString([]byte("hello")))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if contentType != "application/pdf" || string(data) != "hello" {
		t.Fatalf("unexpected decode result %q %q", contentType, data)
	}
	if _, _, err := decodeDataURL("https://example.com/a.pdf"); err == nil {
		t.Fatal("non-data URL should be rejected")
	}
}
