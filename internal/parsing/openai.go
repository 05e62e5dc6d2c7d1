package parsing

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/zombor/invoice-match/internal/matching"
)

// OpenAIAssistant implements Assistant using an OpenAI-compatible chat API
type OpenAIAssistant struct {
	client *openai.Client
	model  string
}

// NewOpenAIAssistant creates an assistant; baseURL may point at any
// OpenAI-compatible endpoint and defaults to the public API
func NewOpenAIAssistant(apiKey, modelName, baseURL string) (*OpenAIAssistant, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if modelName == "" {
		modelName = openai.GPT4oMini
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &OpenAIAssistant{
		client: openai.NewClientWithConfig(config),
		model:  modelName,
	}, nil
}

// Name returns the assistant name
func (a *OpenAIAssistant) Name() string {
	return "openai"
}

// Suggest asks the model for the document fields
func (a *OpenAIAssistant) Suggest(ctx context.Context, text string) (map[matching.FieldName]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: extractPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: promptText(text),
			},
		},
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from openai")
	}

	fields, err := decodeSuggestion(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("parsing suggestion: %w", err)
	}
	return fields, nil
}
