package scanning

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/zombor/invoice-match/internal/metrics"
)

// Options tunes text extraction
type Options struct {
	// DPI used to render PDF pages for OCR
	DPI float64
	// MaxPages caps the number of PDF pages sent to OCR, 0 means no limit
	MaxPages int
	// Upscale enlarges page images before OCR
	Upscale float64
}

// DefaultOptions returns the extraction settings used when none are given
func DefaultOptions() Options {
	return Options{DPI: 300, MaxPages: 5, Upscale: 1.3}
}

// Extractor implements Scanner. PDFs are read natively first; scanned PDFs
// and images are sent through the configured OCR engines in order until one
// of them returns text.
type Extractor struct {
	engines []Engine
	opts    Options
}

// NewExtractor creates an Extractor trying the engines in the given order
func NewExtractor(opts Options, engines ...Engine) *Extractor {
	def := DefaultOptions()
	if opts.DPI <= 0 {
		opts.DPI = def.DPI
	}
	if opts.MaxPages < 0 {
		opts.MaxPages = 0
	}
	if opts.Upscale <= 0 {
		opts.Upscale = def.Upscale
	}
	return &Extractor{engines: engines, opts: opts}
}

// Engines returns the names of the configured engines in order
func (e *Extractor) Engines() []string {
	names := make([]string, 0, len(e.engines))
	for _, eng := range e.engines {
		names = append(names, eng.Name())
	}
	return names
}

// ScanDocument extracts the text of a PDF or image document
func (e *Extractor) ScanDocument(ctx context.Context, data []byte, contentType string) (*Text, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document")
	}

	mimeType := normalizeMimeType(contentType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = DetectContentType(data, "")
	}

	var (
		text *Text
		err  error
	)
	if mimeType == "application/pdf" {
		text, err = e.scanPDF(ctx, data)
	} else {
		text, err = e.scanImage(ctx, data, mimeType)
	}
	if err != nil {
		return nil, err
	}

	metrics.DocumentsScanned.WithLabelValues(string(text.Method), text.Engine).Inc()
	return text, nil
}

func (e *Extractor) scanPDF(ctx context.Context, data []byte) (*Text, error) {
	native, pages, err := pdfNativeText(data)
	if err != nil {
		slog.Warn("Failed to read PDF text layer, falling back to OCR", "error", err)
	}
	if content := NormalizeText(native); content != "" {
		return &Text{Content: content, Method: MethodPDFText, Engine: "pdf", Pages: pages}, nil
	}

	images, err := pdfToImages(data, e.opts.DPI, e.opts.MaxPages)
	if err != nil {
		return nil, fmt.Errorf("converting PDF to images: %w", err)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("PDF has no pages: %w", ErrNoText)
	}

	contents := make([]string, 0, len(images))
	var engine string
	for i, img := range images {
		content, name, err := e.recognize(ctx, img)
		if errors.Is(err, ErrNoText) {
			slog.Debug("No text on PDF page", "page", i+1)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("recognizing page %d: %w", i+1, err)
		}
		if engine == "" {
			engine = name
		}
		contents = append(contents, content)
	}
	if len(contents) == 0 {
		return nil, ErrNoText
	}

	return &Text{
		Content: NormalizeText(strings.Join(contents, "\n\n")),
		Method:  MethodPDFOCR,
		Engine:  engine,
		Pages:   len(images),
	}, nil
}

func (e *Extractor) scanImage(ctx context.Context, data []byte, mimeType string) (*Text, error) {
	img, err := decodeImage(data, mimeType)
	if err != nil {
		return nil, err
	}
	content, engine, err := e.recognize(ctx, img)
	if err != nil {
		return nil, err
	}
	return &Text{Content: NormalizeText(content), Method: MethodImageOCR, Engine: engine, Pages: 1}, nil
}

// recognize runs the engines in order and returns the first non-empty text
// together with the name of the engine that produced it
func (e *Extractor) recognize(ctx context.Context, img image.Image) (string, string, error) {
	if len(e.engines) == 0 {
		return "", "", ErrNoEngine
	}

	pngData, err := encodePNG(preprocess(img, e.opts.Upscale))
	if err != nil {
		return "", "", err
	}

	var errs []error
	for _, eng := range e.engines {
		if err := ctx.Err(); err != nil {
			return "", "", err
		}

		start := time.Now()
		text, err := eng.Recognize(ctx, pngData)
		metrics.RecognizeDuration.WithLabelValues(eng.Name()).Observe(time.Since(start).Seconds())
		if err != nil {
			slog.Warn("OCR engine failed, trying next", "engine", eng.Name(), "error", err)
			metrics.EngineFailures.WithLabelValues(eng.Name()).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", eng.Name(), err))
			continue
		}
		if strings.TrimSpace(text) == "" {
			slog.Debug("OCR engine returned no text", "engine", eng.Name())
			continue
		}
		return text, eng.Name(), nil
	}

	if len(errs) == len(e.engines) {
		return "", "", fmt.Errorf("all OCR engines failed: %w", errors.Join(errs...))
	}
	return "", "", ErrNoText
}

// Close closes every engine
func (e *Extractor) Close() error {
	var errs []error
	for _, eng := range e.engines {
		if err := eng.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", eng.Name(), err))
		}
	}
	return errors.Join(errs...)
}
