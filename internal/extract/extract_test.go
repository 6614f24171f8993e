package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

type fakeOCR struct {
	text string
	err  error
}

func (f *fakeOCR) Recognize(ctx context.Context, image []byte) (string, error) {
	return f.text, f.err
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 4000); got != "short" {
		t.Fatalf("short text should pass through, got %q", got)
	}

	long := strings.Repeat("a", 5000)
	got := Truncate(long, 4000)
	if !strings.HasSuffix(got, TruncationMarker) {
		t.Fatal("truncated text should carry the marker")
	}
	if len(got) != 4000+len(TruncationMarker) {
		t.Fatalf("unexpected truncated length %d", len(got))
	}
}

func TestTruncateKeepsValidUTF8(t *testing.T) {
	// "Hämoglobin" repeated: the cap can land mid-rune on the umlaut.
	long := strings.Repeat("Hämoglobin niedrig ", 30)
	for maxChars := 100; maxChars < 110; maxChars++ {
		got := Truncate(long, maxChars)
		if !utf8.ValidString(got) {
			t.Fatalf("truncation at %d produced invalid UTF-8: %q", maxChars, got)
		}
		if !strings.HasSuffix(got, TruncationMarker) {
			t.Fatalf("truncation at %d lost the marker", maxChars)
		}
		if len(got) > maxChars+len(TruncationMarker) {
			t.Fatalf("truncation at %d exceeded the cap: %d bytes", maxChars, len(got))
		}
	}
}

func TestExtractImageUsesOCR(t *testing.T) {
	svc := NewService(&fakeOCR{text: "  Hemoglobin: 9.2 g/dL (Low)\n"}, 4000)
	text, err := svc.Extract(context.Background(), "scan.png", "image/png", []byte("img"))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if text != "Hemoglobin: 9.2 g/dL (Low)" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestExtractEmptyOCRResultIsNotAnError(t *testing.T) {
	svc := NewService(&fakeOCR{text: ""}, 4000)
	text, err := svc.Extract(context.Background(), "scan.jpg", "image/jpeg", []byte("img"))
	if err != nil {
		t.Fatalf("empty result must be valid, got error %v", err)
	}
	if text != "" {
		t.Fatalf("expected empty text, got %q", text)
	}
}

func TestExtractPropagatesOCRError(t *testing.T) {
	svc := NewService(&fakeOCR{err: errors.New("decode error")}, 4000)
	if _, err := svc.Extract(context.Background(), "scan.png", "image/png", nil); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestExtractRejectsUnsupportedType(t *testing.T) {
	svc := NewService(&fakeOCR{}, 4000)
	if _, err := svc.Extract(context.Background(), "notes.docx", "application/msword", nil); err == nil {
		t.Fatal("expected unsupported type error")
	}
}

func TestExtractHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewService(&fakeOCR{text: "partial"}, 4000)
	_, err := svc.Extract(ctx, "scan.png", "image/png", []byte("img"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
