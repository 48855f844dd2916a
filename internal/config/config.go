// Package config loads the daemon settings. Values are layered as
// defaults, YAML file, environment, then command-line flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"voxchat/internal/llm"
)

// Config represents the complete daemon configuration
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Audio   AudioConfig   `yaml:"audio"`
	STT     STTConfig     `yaml:"stt"`
	LLM     LLMConfig     `yaml:"llm"`
	TTS     TTSConfig     `yaml:"tts"`
	Control ControlConfig `yaml:"control"`
	Bus     BusConfig     `yaml:"bus"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// AudioConfig covers capture, the listening cue and ducking.
type AudioConfig struct {
	Source     string        `yaml:"source"` // mic | files
	Files      []string      `yaml:"files"`
	Duration   time.Duration `yaml:"duration"`
	SampleRate int           `yaml:"sample_rate"`
	MaxTurns   int           `yaml:"max_turns"`
	CueSound   string        `yaml:"cue_sound"`
	Notify     bool          `yaml:"notify"`
	Duck       bool          `yaml:"duck"`
	DuckFactor float64       `yaml:"duck_factor"`
}

type STTConfig struct {
	Engine   string `yaml:"engine"` // vosk | whisper
	Model    string `yaml:"model"`  // empty = engine default
	Language string `yaml:"language"`
	Threads  int    `yaml:"threads"`

	// whisper only
	Translate     bool    `yaml:"translate"`
	InitialPrompt string  `yaml:"initial_prompt"`
	BeamSize      int     `yaml:"beam_size"`
	Temperature   float32 `yaml:"temperature"`
}

const (
	DefaultVoskModel    = "model/vosk-model-en-us-0.22"
	DefaultWhisperModel = "model/ggml-base.en.bin"
)

// ModelPath returns Model, or the default model of the selected engine.
func (s *STTConfig) ModelPath() string {
	if s.Model != "" {
		return s.Model
	}
	if s.Engine == "whisper" {
		return DefaultWhisperModel
	}
	return DefaultVoskModel
}

type LLMConfig struct {
	Backend string        `yaml:"backend"` // ollama | openai
	URL     string        `yaml:"url"`     // empty = backend default
	Model   string        `yaml:"model"`
	System  string        `yaml:"system"`
	APIKey  string        `yaml:"api_key"`
	Proxy   string        `yaml:"proxy"`   // socks5 host:port
	Timeout time.Duration `yaml:"timeout"` // 0 = none
}

// Endpoint returns URL, or the default endpoint of the selected backend.
func (l *LLMConfig) Endpoint() string {
	if l.URL != "" {
		return l.URL
	}
	if l.Backend == "openai" {
		return llm.DefaultOpenAIURL
	}
	return llm.DefaultOllamaURL
}

type TTSConfig struct {
	Preset     string `yaml:"preset"`     // piper | espeak
	Executable string `yaml:"executable"` // empty = preset default
	Model      string `yaml:"model"`
	Voice      string `yaml:"voice"`
	CUDA       bool   `yaml:"cuda"`
	Output     string `yaml:"output"`
}

type ControlConfig struct {
	Socket string `yaml:"socket"`
}

type BusConfig struct {
	URL   string `yaml:"url"` // empty disables publishing
	Shard string `yaml:"shard"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}

func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Audio: AudioConfig{
			Source:     "mic",
			Duration:   5 * time.Second,
			SampleRate: 16000,
			DuckFactor: 0.2,
		},
		STT: STTConfig{Engine: "vosk"},
		LLM: LLMConfig{
			Backend: "ollama",
			Model:   "llama3.2",
		},
		TTS: TTSConfig{
			Preset: "piper",
			Model:  "model/en_GB-jenny_dioco-medium.onnx",
			CUDA:   true,
			Output: "tts_output.wav",
		},
		Control: ControlConfig{Socket: "/tmp/voxchat.sock"},
		Bus:     BusConfig{Shard: "voxchat"},
	}
}

// Load reads path over the defaults. Keys missing from the file keep
// their default value.
func Load(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &config, nil
}

// ApplyEnv overrides fields from VOXCHAT_* variables and OPENAI_API_KEY.
func (c *Config) ApplyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	str("VOXCHAT_LOG_LEVEL", &c.Log.Level)
	str("VOXCHAT_AUDIO_SOURCE", &c.Audio.Source)
	str("VOXCHAT_CUE_SOUND", &c.Audio.CueSound)
	str("VOXCHAT_STT_ENGINE", &c.STT.Engine)
	str("VOXCHAT_STT_MODEL", &c.STT.Model)
	str("VOXCHAT_STT_LANGUAGE", &c.STT.Language)
	str("VOXCHAT_STT_PROMPT", &c.STT.InitialPrompt)
	str("VOXCHAT_LLM_BACKEND", &c.LLM.Backend)
	str("VOXCHAT_LLM_URL", &c.LLM.URL)
	str("VOXCHAT_LLM_MODEL", &c.LLM.Model)
	str("VOXCHAT_LLM_SYSTEM", &c.LLM.System)
	str("OPENAI_API_KEY", &c.LLM.APIKey)
	str("VOXCHAT_PROXY", &c.LLM.Proxy)
	str("VOXCHAT_TTS_PRESET", &c.TTS.Preset)
	str("VOXCHAT_TTS_EXECUTABLE", &c.TTS.Executable)
	str("VOXCHAT_TTS_MODEL", &c.TTS.Model)
	str("VOXCHAT_SOCKET", &c.Control.Socket)
	str("VOXCHAT_BUS_URL", &c.Bus.URL)
	str("VOXCHAT_METRICS_ADDR", &c.Metrics.Addr)

	if v, ok := os.LookupEnv("VOXCHAT_AUDIO_FILES"); ok {
		c.Audio.Files = splitList(v)
	}
	if v, ok := os.LookupEnv("VOXCHAT_LISTEN"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("VOXCHAT_LISTEN: %w", err)
		}
		c.Audio.Duration = d
	}
	if v, ok := os.LookupEnv("VOXCHAT_TTS_CUDA"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("VOXCHAT_TTS_CUDA: %w", err)
		}
		c.TTS.CUDA = b
	}

	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate performs validation of every section
func (c *Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.STT.Validate(); err != nil {
		return fmt.Errorf("stt config: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm config: %w", err)
	}
	if err := c.TTS.Validate(); err != nil {
		return fmt.Errorf("tts config: %w", err)
	}
	if c.Control.Socket == "" {
		return fmt.Errorf("control config: socket cannot be empty")
	}
	return nil
}

func (l *LogConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("level must be one of debug, info, warn, error, got %q", l.Level)
}

func (a *AudioConfig) Validate() error {
	switch a.Source {
	case "mic":
	case "files":
		if len(a.Files) == 0 {
			return fmt.Errorf("files cannot be empty when source is files")
		}
	default:
		return fmt.Errorf("source must be mic or files, got %q", a.Source)
	}

	if a.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %s", a.Duration)
	}
	if a.SampleRate < 8000 || a.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", a.SampleRate)
	}
	if a.MaxTurns < 0 {
		return fmt.Errorf("max_turns cannot be negative, got %d", a.MaxTurns)
	}
	if a.Duck && (a.DuckFactor < 0 || a.DuckFactor > 1) {
		return fmt.Errorf("duck_factor must be between 0 and 1, got %f", a.DuckFactor)
	}
	return nil
}

func (s *STTConfig) Validate() error {
	if s.Engine != "vosk" && s.Engine != "whisper" {
		return fmt.Errorf("engine must be vosk or whisper, got %q", s.Engine)
	}
	if s.Threads < 0 {
		return fmt.Errorf("threads cannot be negative, got %d", s.Threads)
	}
	if s.BeamSize < 0 {
		return fmt.Errorf("beam_size cannot be negative, got %d", s.BeamSize)
	}
	if s.Temperature < 0 || s.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", s.Temperature)
	}
	return nil
}

func (l *LLMConfig) Validate() error {
	if l.Backend != "ollama" && l.Backend != "openai" {
		return fmt.Errorf("backend must be ollama or openai, got %q", l.Backend)
	}
	if l.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if l.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got %s", l.Timeout)
	}
	return nil
}

func (t *TTSConfig) Validate() error {
	if t.Preset != "piper" && t.Preset != "espeak" {
		return fmt.Errorf("preset must be piper or espeak, got %q", t.Preset)
	}
	if t.Preset == "piper" && t.Model == "" {
		return fmt.Errorf("model cannot be empty for piper")
	}
	if t.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}
	return nil
}
