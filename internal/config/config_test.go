package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	cli "github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())

	assert.Equal(t, 5*time.Second, c.Audio.Duration)
	assert.Equal(t, 16000, c.Audio.SampleRate)
	assert.Equal(t, "model/vosk-model-en-us-0.22", c.STT.ModelPath())
	assert.Equal(t, "http://localhost:11434/api/generate", c.LLM.Endpoint())
	assert.Equal(t, "llama3.2", c.LLM.Model)
	assert.Equal(t, "model/en_GB-jenny_dioco-medium.onnx", c.TTS.Model)
	assert.True(t, c.TTS.CUDA)
	assert.Equal(t, "tts_output.wav", c.TTS.Output)
	assert.Zero(t, c.LLM.Timeout)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log config"},
		{"unknown source", func(c *Config) { c.Audio.Source = "line-in" }, "source must be"},
		{"files without paths", func(c *Config) { c.Audio.Source = "files" }, "files cannot be empty"},
		{"zero duration", func(c *Config) { c.Audio.Duration = 0 }, "duration must be positive"},
		{"sample rate too low", func(c *Config) { c.Audio.SampleRate = 4000 }, "sample_rate"},
		{"duck factor", func(c *Config) { c.Audio.Duck = true; c.Audio.DuckFactor = 2 }, "duck_factor"},
		{"unknown engine", func(c *Config) { c.STT.Engine = "sphinx" }, "engine must be"},
		{"negative threads", func(c *Config) { c.STT.Threads = -1 }, "stt config: threads"},
		{"negative beam size", func(c *Config) { c.STT.BeamSize = -2 }, "beam_size"},
		{"temperature too high", func(c *Config) { c.STT.Temperature = 1.5 }, "temperature"},
		{"unknown backend", func(c *Config) { c.LLM.Backend = "claude" }, "backend must be"},
		{"unknown preset", func(c *Config) { c.TTS.Preset = "festival" }, "preset must be"},
		{"empty socket", func(c *Config) { c.Control.Socket = "" }, "socket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
audio:
  duration: 3s
llm:
  backend: openai
  url: http://gpu-box:11434/v1/
  timeout: 1m
tts:
  preset: espeak
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, 3*time.Second, c.Audio.Duration)
	assert.Equal(t, 16000, c.Audio.SampleRate)
	assert.Equal(t, "openai", c.LLM.Backend)
	assert.Equal(t, time.Minute, c.LLM.Timeout)
	assert.Equal(t, "llama3.2", c.LLM.Model)
	assert.Equal(t, "espeak", c.TTS.Preset)
}

func TestLoadWhisperOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
stt:
  engine: whisper
  language: ru
  translate: true
  initial_prompt: "Names: Ollama, Piper."
  beam_size: 5
  temperature: 0.2
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, "model/ggml-base.en.bin", c.STT.ModelPath())
	assert.Equal(t, "ru", c.STT.Language)
	assert.True(t, c.STT.Translate)
	assert.Equal(t, "Names: Ollama, Piper.", c.STT.InitialPrompt)
	assert.Equal(t, 5, c.STT.BeamSize)
	assert.InDelta(t, 0.2, c.STT.Temperature, 1e-6)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("audio: [oops"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "failed to parse")
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("VOXCHAT_LLM_MODEL", "mistral")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("VOXCHAT_AUDIO_FILES", "a.wav, b.mp3,,")
	t.Setenv("VOXCHAT_LISTEN", "2s")
	t.Setenv("VOXCHAT_TTS_CUDA", "false")

	c := Default()
	require.NoError(t, c.ApplyEnv())

	assert.Equal(t, "mistral", c.LLM.Model)
	assert.Equal(t, "sk-test", c.LLM.APIKey)
	assert.Equal(t, []string{"a.wav", "b.mp3"}, c.Audio.Files)
	assert.Equal(t, 2*time.Second, c.Audio.Duration)
	assert.False(t, c.TTS.CUDA)
}

func TestApplyEnvBadValue(t *testing.T) {
	t.Setenv("VOXCHAT_LISTEN", "five seconds")

	c := Default()
	assert.ErrorContains(t, c.ApplyEnv(), "VOXCHAT_LISTEN")
}

func TestFlagsOverrideOnlyWhenSet(t *testing.T) {
	fs := cli.NewFlagSet("voxchat", cli.ContinueOnError)
	flags := BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--model", "phi3", "-n", "3", "--file", "q1.wav", "--file", "q2.wav"}))

	c := Default()
	c.LLM.URL = "http://from-yaml/api/generate"
	flags.Apply(&c)

	assert.Equal(t, "phi3", c.LLM.Model)
	assert.Equal(t, 3, c.Audio.MaxTurns)
	assert.Equal(t, []string{"q1.wav", "q2.wav"}, c.Audio.Files)
	assert.Equal(t, "files", c.Audio.Source)
	assert.Equal(t, "http://from-yaml/api/generate", c.LLM.URL, "unset flag must not clobber")
}

func TestBackendDefaultsFollowFlags(t *testing.T) {
	fs := cli.NewFlagSet("voxchat", cli.ContinueOnError)
	flags := BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--backend", "openai", "--stt", "whisper", "--beam", "4", "--translate"}))

	c := Default()
	flags.Apply(&c)
	require.NoError(t, c.Validate())

	assert.Equal(t, "openai", c.LLM.Backend)
	assert.Equal(t, "http://localhost:11434/v1/", c.LLM.Endpoint())
	assert.Equal(t, "model/ggml-base.en.bin", c.STT.ModelPath())
	assert.Equal(t, 4, c.STT.BeamSize)
	assert.True(t, c.STT.Translate)

	c.LLM.URL = "https://api.openai.com/v1/"
	c.STT.Model = "model/ggml-large-v3.bin"
	assert.Equal(t, "https://api.openai.com/v1/", c.LLM.Endpoint())
	assert.Equal(t, "model/ggml-large-v3.bin", c.STT.ModelPath())
}
