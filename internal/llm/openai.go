package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// DefaultOpenAIURL is Ollama's OpenAI-compatible API.
const DefaultOpenAIURL = "http://localhost:11434/v1/"

type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	System     string
	HTTPClient *http.Client
}

// OpenAI streams chat completions from any OpenAI-compatible server.
type OpenAI struct {
	client openai.Client
	model  string
	system string
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.APIKey == "" {
		// local servers ignore it, the SDK insists on one
		cfg.APIKey = "ollama"
	}

	opts := []option.RequestOption{
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		system: cfg.System,
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	var msgs []openai.ChatCompletionMessageParamUnion
	if o.system != "" {
		msgs = append(msgs, openai.SystemMessage(o.system))
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	stream := o.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    o.model,
	})
	defer stream.Close()

	var sb strings.Builder
	for stream.Next() {
		for _, choice := range stream.Current().Choices {
			sb.WriteString(choice.Delta.Content)
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	return sb.String(), nil
}
