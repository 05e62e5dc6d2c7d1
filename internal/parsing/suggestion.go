package parsing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/zombor/invoice-match/internal/matching"
)

// maxPromptText caps the document text sent to a language model
const maxPromptText = 6000

// extractPrompt is the shared prompt used by all language model assistants
const extractPrompt = `You are reading the text of an invoice or a purchase order. Extract the following fields:

1. **vendor**: the company issuing the document (seller, supplier). Not the buyer.
2. **date**: the document date, copied as printed.
3. **total**: the final total or amount due, copied as printed including any currency symbol.
4. **currency**: the ISO 4217 currency code (e.g. USD, EUR, INR).
5. **order_id**: the invoice number or purchase order number, copied as printed.

Return ONLY valid JSON in this exact format:
{
  "vendor": "Acme Pvt. Ltd.",
  "date": "30/10/2025",
  "total": "$1,250.00",
  "currency": "USD",
  "order_id": "INV-20251030"
}

Important:
- If you cannot find a field, use null for that field
- Do not invent values that are not in the text
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// suggestionSchema describes an acceptable assistant response
var suggestionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"vendor":   map[string]any{"type": []string{"string", "null"}},
		"date":     map[string]any{"type": []string{"string", "null"}},
		"total":    map[string]any{"type": []string{"string", "number", "null"}},
		"currency": map[string]any{"type": []string{"string", "null"}},
		"order_id": map[string]any{"type": []string{"string", "number", "null"}},
	},
}

var compiledSchema = mustCompileSchema(suggestionSchema)

func mustCompileSchema(schemaMap map[string]any) *jsonschema.Schema {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		panic(fmt.Sprintf("marshal schema: %v", err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("suggestion.json", bytes.NewReader(b)); err != nil {
		panic(fmt.Sprintf("add schema: %v", err))
	}
	return compiler.MustCompile("suggestion.json")
}

// promptText truncates document text for a prompt
func promptText(text string) string {
	if r := []rune(text); len(r) > maxPromptText {
		return string(r[:maxPromptText])
	}
	return text
}

// extractJSONObject strips markdown fences and surrounding prose from a model
// response and returns the outermost JSON object
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return "", fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return "", fmt.Errorf("invalid JSON object in response")
	}
	return text[startIdx : endIdx+1], nil
}

// decodeSuggestion validates a model response and maps it to field values.
// Null, blank and unrecognized keys are dropped.
func decodeSuggestion(response string) (map[matching.FieldName]string, error) {
	text, err := extractJSONObject(response)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	// jsonschema validates decoded values; json.Number is accepted as a number
	if err := compiledSchema.Validate(raw); err != nil {
		return nil, fmt.Errorf("json does not match schema: %w", err)
	}

	out := make(map[matching.FieldName]string, len(raw))
	for key, value := range raw {
		name, ok := matching.ParseFieldName(key)
		if !ok {
			continue
		}
		var s string
		switch v := value.(type) {
		case string:
			s = strings.TrimSpace(v)
		case json.Number:
			s = v.String()
		}
		if s == "" || strings.EqualFold(s, "null") {
			continue
		}
		out[name] = s
	}
	return out, nil
}
