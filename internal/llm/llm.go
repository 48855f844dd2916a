// Package llm turns a transcribed utterance into the text the bot speaks.
package llm

import (
	"context"
	"errors"
	"strings"

	log "log/slog"
)

const (
	// NoResponse is spoken when the model produced no usable text.
	NoResponse = "No response."
	// ErrorReply is spoken when the endpoint could not be reached.
	ErrorReply = "Error connecting to Ollama."
)

// ErrStatus marks a non-200 answer from the generation endpoint.
var ErrStatus = errors.New("unexpected status")

// Backend performs one generation request and returns the raw text.
type Backend interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

type Client struct {
	backend Backend
}

func NewClient(b Backend) *Client {
	return &Client{backend: b}
}

// Reply never fails: transport errors become ErrorReply and an empty
// generation becomes NoResponse.
func (c *Client) Reply(ctx context.Context, prompt string) string {
	text, err := c.backend.Generate(ctx, prompt)
	if err != nil {
		log.Error("Failed to reach generation endpoint", "backend", c.backend.Name(), "err", err)
		return ErrorReply
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return NoResponse
	}
	return text
}
