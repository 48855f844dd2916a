package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	log "log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stage names used as the "stage" label.
const (
	StageRecord     = "record"
	StageTranscribe = "transcribe"
	StageGenerate   = "generate"
	StageSpeak      = "speak"
)

// Metrics contains the Prometheus metrics for the conversation loop
type Metrics struct {
	Turns         prometheus.Counter
	SilentTurns   prometheus.Counter
	ErrorReplies  prometheus.Counter
	SpeakFailures *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	RecordedAudio prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics creates the metrics on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Turns: f.NewCounter(prometheus.CounterOpts{
			Name: "voxchat_turns_total",
			Help: "Total number of turns that produced a reply",
		}),
		SilentTurns: f.NewCounter(prometheus.CounterOpts{
			Name: "voxchat_silent_turns_total",
			Help: "Total number of recordings with an empty transcription",
		}),
		ErrorReplies: f.NewCounter(prometheus.CounterOpts{
			Name: "voxchat_error_replies_total",
			Help: "Total number of turns where the generation backend was unreachable",
		}),
		SpeakFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxchat_speak_failures_total",
			Help: "Total number of replies that could not be spoken",
		}, []string{"reason"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voxchat_stage_duration_seconds",
			Help:    "Duration of each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"stage"}),
		RecordedAudio: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxchat_recorded_audio_seconds",
			Help:    "Length of captured audio per turn",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
		registry: reg,
	}
}

// ObserveStage records how long one stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) RecordTurn()       { m.Turns.Inc() }
func (m *Metrics) RecordSilent()     { m.SilentTurns.Inc() }
func (m *Metrics) RecordErrorReply() { m.ErrorReplies.Inc() }

// RecordSpeakFailure counts a dropped reply under reason.
func (m *Metrics) RecordSpeakFailure(reason string) {
	m.SpeakFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordAudio(d time.Duration) {
	m.RecordedAudio.Observe(d.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
