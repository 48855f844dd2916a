package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	log "log/slog"
)

const (
	DefaultOllamaURL   = "http://localhost:11434/api/generate"
	DefaultOllamaModel = "llama3.2"
)

type OllamaConfig struct {
	URL        string
	Model      string
	System     string         // optional system prompt
	Options    map[string]any // optional model options, e.g. temperature
	HTTPClient *http.Client
}

// Ollama talks to the /api/generate endpoint and folds its NDJSON stream.
type Ollama struct {
	url     string
	model   string
	system  string
	options map[string]any
	http    *http.Client
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.URL == "" {
		cfg.URL = DefaultOllamaURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Ollama{
		url:     cfg.URL,
		model:   cfg.Model,
		system:  cfg.System,
		options: cfg.Options,
		http:    cfg.HTTPClient,
	}
}

func (o *Ollama) Name() string { return "ollama" }

func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Model:   o.model,
		Prompt:  prompt,
		System:  o.system,
		Options: o.options,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("post %s: %w", o.url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w %s: %s", ErrStatus, resp.Status, strings.TrimSpace(string(body)))
	}

	return collectStream(resp.Body)
}

// collectStream reads one JSON object per line, keeps every "response"
// fragment up to and including the first line with done=true, and joins
// them with spaces. Lines that are not JSON are skipped.
func collectStream(r io.Reader) (string, error) {
	reader := bufio.NewReader(r)
	var parts []string

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read stream: %w", err)
		}

		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			var chunk generateChunk
			if jerr := json.Unmarshal(trimmed, &chunk); jerr != nil {
				log.Warn("Skipping malformed stream line", "line", string(trimmed), "err", jerr)
			} else {
				parts = append(parts, chunk.Response)
				if chunk.Done {
					break
				}
			}
		}

		if err != nil {
			break
		}
	}

	return strings.TrimSpace(strings.Join(parts, " ")), nil
}

// Ping checks that the server answers on /api/tags.
func (o *Ollama) Ping(ctx context.Context) error {
	u, err := url.Parse(o.url)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	u.Path = "/api/tags"
	u.RawQuery = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := o.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w %s", ErrStatus, resp.Status)
	}
	return nil
}
