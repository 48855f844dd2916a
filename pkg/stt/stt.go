package stt

import (
	"context"
	"fmt"
	"strings"

	log "log/slog"

	"voxchat/pkg/pcm"
)

// Engine is a recognition model loaded once and shared by every
// Recognize call for the life of the process. Each call runs its own
// recognition session.
type Engine interface {
	Recognize(ctx context.Context, buf pcm.Buffer) (string, error)
	Name() string
	Close() error
}

type Kind string

const (
	KindVosk    Kind = "vosk"
	KindWhisper Kind = "whisper"
)

type Config struct {
	Engine    Kind
	ModelPath string // vosk: model directory, whisper: ggml file
	Options   Options
}

// Open loads the configured model.
func Open(cfg Config) (Engine, error) {
	switch cfg.Engine {
	case KindVosk, "":
		return NewVosk(cfg.ModelPath)
	case KindWhisper:
		return NewWhisper(cfg.ModelPath, cfg.Options)
	default:
		return nil, fmt.Errorf("unknown stt engine %q", cfg.Engine)
	}
}

// Transcriber turns one captured buffer into the best-guess utterance.
type Transcriber struct {
	engine Engine
}

func NewTranscriber(engine Engine) *Transcriber {
	return &Transcriber{engine: engine}
}

func (t *Transcriber) Transcribe(ctx context.Context, buf pcm.Buffer) (string, error) {
	if len(buf.Samples) == 0 {
		return "", nil
	}

	text, err := t.engine.Recognize(ctx, buf)
	if err != nil {
		return "", fmt.Errorf("%s: %w", t.engine.Name(), err)
	}

	text = strings.TrimSpace(text)
	log.Debug("Recognized", "engine", t.engine.Name(), "audio", buf.Duration(), "chars", len(text))

	return text, nil
}
