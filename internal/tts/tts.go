// Package tts turns reply text into audio with an external synthesizer
// and plays the result.
package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	log "log/slog"

	"voxchat/pkg/pcm"
)

var (
	ErrSynthNotFound    = errors.New("synthesizer executable not found")
	ErrSynthFailed      = errors.New("synthesizer failed")
	ErrNoOutput         = errors.New("synthesizer produced no output")
	ErrUnsupportedWidth = errors.New("unsupported sample width")
	ErrPlayback         = errors.New("playback failed")
)

type Preset string

const (
	PresetPiper  Preset = "piper"
	PresetEspeak Preset = "espeak"
)

const (
	DefaultPiperModel = "model/en_GB-jenny_dioco-medium.onnx"
	DefaultOutput     = "tts_output.wav"
)

type Config struct {
	Preset     Preset
	Executable string // defaults to the preset's binary name
	Model      string // piper voice model
	Voice      string // espeak voice, optional
	CUDA       bool
	Output     string // temp WAV path
}

// Player plays one decoded clip to completion.
type Player interface {
	Play(ctx context.Context, clip pcm.Clip) error
}

// Ducker lowers other audio while a reply plays.
type Ducker interface {
	Duck(ctx context.Context) error
	Restore(ctx context.Context) error
}

type Speaker struct {
	exe    string
	args   []string
	output string
	player Player
	ducker Ducker
}

func NewSpeaker(cfg Config, player Player) (*Speaker, error) {
	if cfg.Output == "" {
		cfg.Output = DefaultOutput
	}

	s := &Speaker{output: cfg.Output, player: player}

	switch cfg.Preset {
	case PresetPiper, "":
		if cfg.Model == "" {
			cfg.Model = DefaultPiperModel
		}
		s.exe = or(cfg.Executable, "piper")
		s.args = []string{"--model", cfg.Model, "-f", cfg.Output}
		if cfg.CUDA {
			s.args = append(s.args, "--cuda")
		}
	case PresetEspeak:
		s.exe = or(cfg.Executable, "espeak-ng")
		s.args = []string{"--stdin", "-w", cfg.Output}
		if cfg.Voice != "" {
			s.args = append(s.args, "-v", cfg.Voice)
		}
	default:
		return nil, fmt.Errorf("unknown synthesizer preset %q", cfg.Preset)
	}

	return s, nil
}

// WithDucker makes Speak lower other streams around playback.
func (s *Speaker) WithDucker(d Ducker) *Speaker {
	s.ducker = d
	return s
}

// Speak synthesizes text and blocks until it has been played. Only
// errors wrapping ErrPlayback concern the output device; the rest mean
// this one reply was dropped.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	cmd := exec.CommandContext(ctx, s.exe, s.args...)
	cmd.Stdin = strings.NewReader(text)

	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrSynthNotFound, s.exe)
		}
		return fmt.Errorf("%w: start %s: %v", ErrSynthFailed, s.exe, err)
	}
	defer s.cleanup()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %v: %s", ErrSynthFailed, s.exe, err, strings.TrimSpace(stderr.String()))
	}

	f, err := os.Open(s.output)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNoOutput, s.output)
		}
		return err
	}
	clip, err := DecodeWAV(f)
	_ = f.Close()
	if err != nil {
		return err
	}

	if s.ducker != nil {
		if err := s.ducker.Duck(ctx); err != nil {
			log.Warn("Failed to duck other streams", "err", err)
		}
		defer func() {
			// restore even when ctx is already done
			if err := s.ducker.Restore(context.WithoutCancel(ctx)); err != nil {
				log.Warn("Failed to restore other streams", "err", err)
			}
		}()
	}

	log.Debug("Playing reply", "duration", clip.Duration(), "channels", clip.Channels, "rate", clip.SampleRate)
	if err := s.player.Play(ctx, clip); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrPlayback, err)
	}

	return nil
}

func (s *Speaker) cleanup() {
	if err := os.Remove(s.output); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to remove synthesized file", "path", s.output, "err", err)
	}
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
