package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := NewMetrics()

	m.RecordTurn()
	m.RecordTurn()
	m.RecordSilent()
	m.RecordErrorReply()
	m.RecordSpeakFailure("not_found")
	m.RecordSpeakFailure("not_found")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Turns))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SilentTurns))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorReplies))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SpeakFailures.WithLabelValues("not_found")))
}

func TestHandlerExposesStages(t *testing.T) {
	m := NewMetrics()
	m.ObserveStage(StageGenerate, 300*time.Millisecond)
	m.RecordAudio(5 * time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `voxchat_stage_duration_seconds_count{stage="generate"} 1`)
	assert.Contains(t, string(body), "voxchat_recorded_audio_seconds_sum 5")
}

func TestInstancesDoNotCollide(t *testing.T) {
	// each instance owns its registry, so a second one must not panic
	assert.NotPanics(t, func() {
		NewMetrics()
		NewMetrics()
	})
}
