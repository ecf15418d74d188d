// Package llm provides the Ollama-backed model collaborator used by the CLI.
package llm

import (
	"context"
	"fmt"
	"strings"

	ollama "github.com/ollama/ollama/api"
)

// systemPrompt frames every collaborator call.
const systemPrompt = "You are a software construction collaborator. " +
	"Respond with a single JSON object conforming to the requested schema. " +
	"Do not wrap the JSON in prose or code fences."

// OllamaClient implements stage.LLMClient against a local or remote Ollama
// server.
type OllamaClient struct {
	client      *ollama.Client
	Model       string
	Temperature float64
	MaxTokens   int
}

// NewOllamaClient creates a client from the OLLAMA_HOST environment, as the
// ollama CLI does.
func NewOllamaClient(model string, temperature float64, maxTokens int) (*OllamaClient, error) {
	client, err := ollama.ClientFromEnvironment()
	if err != nil {
		return nil, fmt.Errorf("could not create ollama client: %w", err)
	}
	return &OllamaClient{
		client:      client,
		Model:       model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, nil
}

// Ping verifies the server is reachable before a run spends any budget.
func (c *OllamaClient) Ping(ctx context.Context) error {
	if err := c.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama server unreachable: %w", err)
	}
	return nil
}

// Generate implements stage.LLMClient. The schema hint is appended to the
// prompt so the model knows the exact shape to return.
func (c *OllamaClient) Generate(ctx context.Context, prompt string, schemaHint string) (string, error) {
	full := prompt
	if schemaHint != "" {
		full += "\n\nRespond with a JSON object of this shape:\n" + schemaHint
	}

	stream := false
	req := &ollama.ChatRequest{
		Model: strings.TrimPrefix(c.Model, "ollama:"),
		Messages: []ollama.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: full},
		},
		Stream: &stream,
		Options: map[string]any{
			"temperature": c.Temperature,
			"num_predict": c.MaxTokens,
		},
	}

	var out strings.Builder
	err := c.client.Chat(ctx, req, func(res ollama.ChatResponse) error {
		out.WriteString(res.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat failed: %w", err)
	}
	return out.String(), nil
}
