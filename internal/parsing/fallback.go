package parsing

import (
	"context"
	"log/slog"

	"github.com/zombor/invoice-match/internal/matching"
	"github.com/zombor/invoice-match/internal/metrics"
)

// FallbackParser runs a primary parser and consults an assistant only when
// required fields are still absent. Suggestions fill absent fields and never
// replace values the primary parser found.
type FallbackParser struct {
	primary   Parser
	assistant Assistant
	required  []matching.FieldName
}

// NewFallbackParser creates a FallbackParser. When required is empty every
// field is required.
func NewFallbackParser(primary Parser, assistant Assistant, required ...matching.FieldName) *FallbackParser {
	if len(required) == 0 {
		required = matching.Fields()
	}
	return &FallbackParser{primary: primary, assistant: assistant, required: required}
}

// Parse runs the primary parser, then the assistant if needed. A failing
// assistant is logged and the primary record is returned.
func (p *FallbackParser) Parse(ctx context.Context, text string) (matching.Record, error) {
	record, err := p.primary.Parse(ctx, text)
	if err != nil {
		return matching.Record{}, err
	}
	if p.assistant == nil || !p.needsAssistant(record) {
		return record, nil
	}

	suggested, err := p.assistant.Suggest(ctx, text)
	if err != nil {
		slog.Warn("Assistant failed, keeping pattern results", "assistant", p.assistant.Name(), "error", err)
		metrics.AssistantCalls.WithLabelValues(p.assistant.Name(), "error").Inc()
		return record, nil
	}

	var filled []matching.FieldValue
	for _, name := range record.Missing() {
		if raw, ok := suggested[name]; ok && raw != "" {
			filled = append(filled, matching.Found(name, raw))
		}
	}
	metrics.AssistantCalls.WithLabelValues(p.assistant.Name(), "ok").Inc()
	slog.Debug("Assistant filled fields", "assistant", p.assistant.Name(), "count", len(filled))

	if len(filled) == 0 {
		return record, nil
	}
	return record.With(filled...), nil
}

func (p *FallbackParser) needsAssistant(record matching.Record) bool {
	missing := make(map[matching.FieldName]bool)
	for _, name := range record.Missing() {
		missing[name] = true
	}
	for _, name := range p.required {
		if missing[name] {
			return true
		}
	}
	return false
}
