package scanning

import (
	"context"
	"errors"
)

var (
	// ErrNoEngine is returned when OCR is needed but no engine is configured
	ErrNoEngine = errors.New("no OCR engine configured")
	// ErrNoText is returned when every engine ran but none produced text
	ErrNoText = errors.New("no text recognized")
)

// Method describes how the text of a document was obtained
type Method string

const (
	MethodPDFText  Method = "pdf-text"
	MethodPDFOCR   Method = "pdf-ocr"
	MethodImageOCR Method = "image-ocr"
)

// Text is the raw text extracted from a document
type Text struct {
	Content string `json:"content"`
	Method  Method `json:"method"`
	// Engine names the OCR engine that served the first page, or "pdf" for native text
	Engine string `json:"engine"`
	Pages  int    `json:"pages"`
}

// Scanner defines the interface for document text extraction
type Scanner interface {
	// ScanDocument extracts the text of an image or PDF
	ScanDocument(ctx context.Context, data []byte, contentType string) (*Text, error)
	// Close closes the scanner and releases resources
	Close() error
}

// Engine recognizes text in a single PNG page image
type Engine interface {
	Name() string
	Recognize(ctx context.Context, png []byte) (string, error)
	Close() error
}

// transcribePrompt is shared by the vision model engines
const transcribePrompt = `You are reading a scanned business document such as an invoice or a purchase order.
Transcribe every piece of text in the image exactly as printed, preserving the reading order and line breaks.

Important:
- Do not summarize, translate or correct the text
- Keep labels and their values on the same line, e.g. "Invoice Number: INV-20251030"
- Keep currency symbols, codes and separators as printed
- Return plain text only, without markdown code blocks or commentary`
