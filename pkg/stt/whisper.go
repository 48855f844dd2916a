package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"voxchat/pkg/pcm"
)

type Options struct {
	Language      string  // e.g. "auto", "en", "ru"
	TranslateToEn bool    // if true, translate non-EN -> EN
	Threads       int     // <=0 => NumCPU()
	InitialPrompt string  // optional prefix prompt
	BeamSize      int     // 0 = greedy
	Temperature   float32 // 0 = default
}

type Whisper struct {
	model whisper.Model // interface, not pointer
	opt   Options
}

func NewWhisper(modelPath string, opt Options) (*Whisper, error) {
	if modelPath == "" {
		return nil, errors.New("empty model path")
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return &Whisper{model: m, opt: opt}, nil
}

func (w *Whisper) Name() string { return string(KindWhisper) }

func (w *Whisper) Close() error {
	if w.model == nil {
		return nil
	}
	return w.model.Close()
}

// Recognize needs mono audio at 16 kHz.
func (w *Whisper) Recognize(ctx context.Context, buf pcm.Buffer) (string, error) {
	if w.model == nil {
		return "", errors.New("nil model")
	}
	if buf.SampleRate != whisper.SampleRate {
		return "", fmt.Errorf("sample rate %d not supported, want %d", buf.SampleRate, whisper.SampleRate)
	}

	wctx, err := w.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("new context: %w", err)
	}
	if err := w.configure(wctx); err != nil {
		return "", err
	}

	if err := wctx.Process(buf.Float32(), nil, nil, nil); err != nil {
		return "", fmt.Errorf("process: %w", err)
	}

	var parts []string
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		s, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("next segment: %w", err)
		}
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}

	return strings.Join(parts, " "), nil
}

func (w *Whisper) configure(wctx whisper.Context) error {
	lang := w.opt.Language
	if lang == "" {
		lang = "auto"
	}
	if err := wctx.SetLanguage(lang); err != nil {
		return fmt.Errorf("set language: %w", err)
	}
	wctx.SetTranslate(w.opt.TranslateToEn)

	threads := w.opt.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))

	if w.opt.BeamSize > 0 {
		wctx.SetBeamSize(w.opt.BeamSize)
	}
	if w.opt.InitialPrompt != "" {
		wctx.SetInitialPrompt(w.opt.InitialPrompt)
	}
	if w.opt.Temperature != 0 {
		wctx.SetTemperature(w.opt.Temperature)
	}
	return nil
}
