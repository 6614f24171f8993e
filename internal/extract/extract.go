// Package extract turns uploaded report files into plain text. OCR and PDF
// parsing are external collaborators: bytes in, text out. An empty result is
// valid (image-only scans with no recoverable text), not an error.
package extract

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// TruncationMarker is appended when extracted text exceeds the char budget.
const TruncationMarker = "\n\n[...text truncated for length...]"

// Extractor is the boundary interface consumed by the ingestion pipeline.
type Extractor interface {
	Extract(ctx context.Context, fileName, contentType string, data []byte) (string, error)
}

// OCR recognizes text in a raster image.
type OCR interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// Service routes a file to the right extractor by content type and caps the
// result at maxChars.
type Service struct {
	ocr      OCR
	maxChars int
}

// NewService creates an extraction service. maxChars bounds the returned text.
func NewService(ocr OCR, maxChars int) *Service {
	if maxChars <= 0 {
		maxChars = 4000
	}
	return &Service{ocr: ocr, maxChars: maxChars}
}

func (s *Service) Extract(ctx context.Context, fileName, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var text string
	var err error
	switch {
	case contentType == "application/pdf" || strings.HasSuffix(strings.ToLower(fileName), ".pdf"):
		text, err = pdfText(ctx, data)
	case strings.HasPrefix(contentType, "image/"):
		text, err = s.ocr.Recognize(ctx, data)
	default:
		return "", fmt.Errorf("unsupported file type %q", contentType)
	}
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		// A cancelled extraction discards any partial text.
		return "", err
	}

	return Truncate(strings.TrimSpace(text), s.maxChars), nil
}

// Truncate caps text at maxChars bytes, appending the truncation marker when
// the original was longer. The cut backs up to a rune boundary so the result
// is always valid UTF-8.
func Truncate(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + TruncationMarker
}
