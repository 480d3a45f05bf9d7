package summary

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiCompleter backs the summarizer with the Gemini API.
type GeminiCompleter struct {
	client *genai.Client
	model  string
}

func NewGeminiCompleter(ctx context.Context, apiKey, model string) (*GeminiCompleter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiCompleter{client: client, model: model}, nil
}

func (c *GeminiCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}},
	}
	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: userPrompt}}},
	}
	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini completion: %w", err)
	}
	return result.Text(), nil
}
