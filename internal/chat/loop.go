// Package chat runs the listen, transcribe, reply and speak cycle.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	log "log/slog"

	"github.com/google/uuid"

	"voxchat/internal/llm"
	"voxchat/internal/metrics"
	"voxchat/internal/tts"
	"voxchat/pkg/pcm"
)

const (
	DefaultDuration   = 5 * time.Second
	DefaultSampleRate = 16000
)

type Capturer interface {
	Record(ctx context.Context, dur time.Duration, sampleRate int) (pcm.Buffer, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, buf pcm.Buffer) (string, error)
}

// Replier never fails; problems come back as a speakable reply.
type Replier interface {
	Reply(ctx context.Context, prompt string) string
}

type Speaker interface {
	Speak(ctx context.Context, text string) error
}

type Cue interface {
	Listening()
}

type Publisher interface {
	Publish(ctx context.Context, turn Turn) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, turn Turn) error

func (f PublisherFunc) Publish(ctx context.Context, turn Turn) error { return f(ctx, turn) }

// Turn is one completed exchange.
type Turn struct {
	ID      string
	Heard   string
	Reply   string
	Started time.Time

	Recorded   time.Duration // audio length
	Transcribe time.Duration
	Generate   time.Duration
	Speak      time.Duration
}

type Options struct {
	Duration   time.Duration
	SampleRate int
	MaxTurns   int // recordings to make; 0 = until cancelled
}

type Loop struct {
	capture    Capturer
	transcribe Transcriber
	reply      Replier
	speak      Speaker

	cue     Cue
	pub     Publisher
	metrics *metrics.Metrics

	opts Options
}

func NewLoop(c Capturer, t Transcriber, r Replier, s Speaker, opts Options) *Loop {
	if opts.Duration <= 0 {
		opts.Duration = DefaultDuration
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	return &Loop{
		capture:    c,
		transcribe: t,
		reply:      r,
		speak:      s,
		opts:       opts,
	}
}

func (l *Loop) WithCue(c Cue) *Loop                  { l.cue = c; return l }
func (l *Loop) WithPublisher(p Publisher) *Loop      { l.pub = p; return l }
func (l *Loop) WithMetrics(m *metrics.Metrics) *Loop { l.metrics = m; return l }

// Run repeats Step until ctx is cancelled, the capture source is
// exhausted or MaxTurns recordings have been made. Only capture and
// playback device failures are returned.
func (l *Loop) Run(ctx context.Context) error {
	log.Info("Conversation started", "listen", l.opts.Duration, "rate", l.opts.SampleRate)

	for n := 0; l.opts.MaxTurns == 0 || n < l.opts.MaxTurns; n++ {
		if ctx.Err() != nil {
			break
		}

		if _, err := l.Step(ctx); err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				break
			}
			return err
		}
	}

	log.Info("Conversation ended")
	return nil
}

// Step runs a single iteration. It returns a nil Turn when nothing was
// heard. Errors are either fatal (capture, playback) or ctx/io.EOF.
func (l *Loop) Step(ctx context.Context) (*Turn, error) {
	turn := Turn{ID: uuid.NewString(), Started: time.Now()}

	if l.cue != nil {
		l.cue.Listening()
	}
	log.Info("Speak now...")

	start := time.Now()
	buf, err := l.capture.Record(ctx, l.opts.Duration, l.opts.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("record: %w", err)
	}
	turn.Recorded = buf.Duration()
	l.observe(metrics.StageRecord, time.Since(start))
	if l.metrics != nil {
		l.metrics.RecordAudio(turn.Recorded)
	}

	start = time.Now()
	heard, err := l.transcribe.Transcribe(ctx, buf)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Error("Failed to transcribe", "err", err)
		heard = ""
	}
	turn.Transcribe = time.Since(start)
	l.observe(metrics.StageTranscribe, turn.Transcribe)

	if heard == "" {
		log.Debug("Nothing heard")
		if l.metrics != nil {
			l.metrics.RecordSilent()
		}
		return nil, nil
	}
	turn.Heard = heard
	log.Info("You: " + heard)

	start = time.Now()
	turn.Reply = l.reply.Reply(ctx, heard)
	turn.Generate = time.Since(start)
	l.observe(metrics.StageGenerate, turn.Generate)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	log.Info("Bot: " + turn.Reply)

	start = time.Now()
	err = l.speak.Speak(ctx, turn.Reply)
	turn.Speak = time.Since(start)
	l.observe(metrics.StageSpeak, turn.Speak)
	if err != nil {
		// a dropped reply is neither counted nor published
		if ferr := l.speakFailed(ctx, err); ferr != nil {
			return nil, ferr
		}
		return &turn, nil
	}

	if l.metrics != nil {
		l.metrics.RecordTurn()
		if turn.Reply == llm.ErrorReply {
			l.metrics.RecordErrorReply()
		}
	}

	if l.pub != nil {
		if err := l.pub.Publish(ctx, turn); err != nil {
			log.Warn("Failed to publish turn", "id", turn.ID, "err", err)
		}
	}

	log.Debug("Turn done", "id", turn.ID, "transcribe", turn.Transcribe, "generate", turn.Generate, "speak", turn.Speak)
	return &turn, nil
}

// speakFailed logs a dropped reply and returns only what must stop the loop.
func (l *Loop) speakFailed(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	reason := "other"
	switch {
	case errors.Is(err, tts.ErrPlayback):
		return err
	case errors.Is(err, tts.ErrUnsupportedWidth):
		reason = "unsupported"
		log.Error("Synthesized audio is unsupported", "err", err)
	case errors.Is(err, tts.ErrSynthNotFound):
		reason = "not_found"
		log.Error("Synthesizer is not installed", "err", err)
	case errors.Is(err, tts.ErrSynthFailed):
		reason = "failed"
		log.Error("Synthesizer failed", "err", err)
	case errors.Is(err, tts.ErrNoOutput):
		reason = "no_output"
		log.Error("Synthesizer wrote no audio", "err", err)
	default:
		log.Error("Failed to speak reply", "err", err)
	}

	if l.metrics != nil {
		l.metrics.RecordSpeakFailure(reason)
	}
	return nil
}

func (l *Loop) observe(stage string, d time.Duration) {
	if l.metrics != nil {
		l.metrics.ObserveStage(stage, d)
	}
}
