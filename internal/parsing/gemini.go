package parsing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/zombor/invoice-match/internal/matching"
)

// GeminiAssistant implements Assistant using Google Gemini
type GeminiAssistant struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiAssistant creates a new Gemini assistant
func NewGeminiAssistant(apiKey string, modelName string) (*GeminiAssistant, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)

	return &GeminiAssistant{
		client: client,
		model:  model,
	}, nil
}

// Name returns the assistant name
func (g *GeminiAssistant) Name() string {
	return "gemini"
}

// Suggest asks the model for the document fields
func (g *GeminiAssistant) Suggest(ctx context.Context, text string) (map[matching.FieldName]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	resp, err := g.model.GenerateContent(ctx, genai.Text(extractPrompt), genai.Text(promptText(text)))
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			responseText.WriteString(string(t))
		}
	}

	fields, err := decodeSuggestion(responseText.String())
	if err != nil {
		return nil, fmt.Errorf("parsing suggestion: %w", err)
	}
	return fields, nil
}

// Close closes the Gemini client
func (g *GeminiAssistant) Close() error {
	return g.client.Close()
}
