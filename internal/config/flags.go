package config

import (
	cli "github.com/spf13/pflag"
)

// Flags holds command-line overrides. Only flags the user actually set
// are copied onto a Config.
type Flags struct {
	fs *cli.FlagSet
	v  Config
}

func BindFlags(fs *cli.FlagSet) *Flags {
	f := &Flags{fs: fs, v: Default()}
	v := &f.v

	fs.StringVarP(&v.Log.Level, "log", "l", v.Log.Level, "Log level (debug|info|warn|error)")

	fs.StringVar(&v.Audio.Source, "source", v.Audio.Source, "Audio source (mic|files)")
	fs.StringSliceVar(&v.Audio.Files, "file", nil, "Audio file to use instead of the microphone, repeatable")
	fs.DurationVarP(&v.Audio.Duration, "listen", "d", v.Audio.Duration, "Recording length per turn")
	fs.IntVar(&v.Audio.SampleRate, "rate", v.Audio.SampleRate, "Capture sample rate")
	fs.IntVarP(&v.Audio.MaxTurns, "turns", "n", v.Audio.MaxTurns, "Stop after this many recordings (0 = never)")
	fs.StringVar(&v.Audio.CueSound, "cue", v.Audio.CueSound, "MP3 played before each recording")
	fs.BoolVar(&v.Audio.Notify, "notify", v.Audio.Notify, "Desktop notification before each recording")
	fs.BoolVar(&v.Audio.Duck, "duck", v.Audio.Duck, "Lower other audio while speaking")

	fs.StringVar(&v.STT.Engine, "stt", v.STT.Engine, "Speech recognizer (vosk|whisper)")
	fs.StringVarP(&v.STT.Model, "stt-model", "m", v.STT.Model, "Recognition model path (default depends on --stt)")
	fs.StringVar(&v.STT.Language, "lang", v.STT.Language, "Whisper language, e.g. en, ru, auto")
	fs.BoolVar(&v.STT.Translate, "translate", v.STT.Translate, "Whisper: translate speech to English")
	fs.IntVar(&v.STT.BeamSize, "beam", v.STT.BeamSize, "Whisper beam size (0 = greedy)")

	fs.StringVar(&v.LLM.Backend, "backend", v.LLM.Backend, "Generation backend (ollama|openai)")
	fs.StringVarP(&v.LLM.URL, "url", "u", v.LLM.URL, "Generation endpoint (default depends on --backend)")
	fs.StringVar(&v.LLM.Model, "model", v.LLM.Model, "Generation model")
	fs.StringVarP(&v.LLM.Proxy, "proxy", "p", v.LLM.Proxy, "Socks Proxy Address")

	fs.StringVar(&v.TTS.Preset, "tts", v.TTS.Preset, "Synthesizer preset (piper|espeak)")
	fs.StringVar(&v.TTS.Executable, "tts-exe", v.TTS.Executable, "Synthesizer executable")
	fs.StringVar(&v.TTS.Model, "tts-model", v.TTS.Model, "Synthesizer voice model")
	fs.BoolVar(&v.TTS.CUDA, "cuda", v.TTS.CUDA, "Pass --cuda to piper")

	fs.StringVarP(&v.Control.Socket, "socket", "s", v.Control.Socket, "Control socket path")
	fs.StringVar(&v.Bus.URL, "bus", v.Bus.URL, "Url of hub")
	fs.StringVar(&v.Metrics.Addr, "metrics-addr", v.Metrics.Addr, "Serve Prometheus metrics on this address")

	return f
}

// Apply copies the flags that were set on the command line onto c.
func (f *Flags) Apply(c *Config) {
	f.fs.Visit(func(fl *cli.Flag) {
		switch fl.Name {
		case "log":
			c.Log.Level = f.v.Log.Level
		case "source":
			c.Audio.Source = f.v.Audio.Source
		case "file":
			c.Audio.Files = f.v.Audio.Files
			if !f.fs.Changed("source") {
				c.Audio.Source = "files"
			}
		case "listen":
			c.Audio.Duration = f.v.Audio.Duration
		case "rate":
			c.Audio.SampleRate = f.v.Audio.SampleRate
		case "turns":
			c.Audio.MaxTurns = f.v.Audio.MaxTurns
		case "cue":
			c.Audio.CueSound = f.v.Audio.CueSound
		case "notify":
			c.Audio.Notify = f.v.Audio.Notify
		case "duck":
			c.Audio.Duck = f.v.Audio.Duck
		case "stt":
			c.STT.Engine = f.v.STT.Engine
		case "stt-model":
			c.STT.Model = f.v.STT.Model
		case "lang":
			c.STT.Language = f.v.STT.Language
		case "translate":
			c.STT.Translate = f.v.STT.Translate
		case "beam":
			c.STT.BeamSize = f.v.STT.BeamSize
		case "backend":
			c.LLM.Backend = f.v.LLM.Backend
		case "url":
			c.LLM.URL = f.v.LLM.URL
		case "model":
			c.LLM.Model = f.v.LLM.Model
		case "proxy":
			c.LLM.Proxy = f.v.LLM.Proxy
		case "tts":
			c.TTS.Preset = f.v.TTS.Preset
		case "tts-exe":
			c.TTS.Executable = f.v.TTS.Executable
		case "tts-model":
			c.TTS.Model = f.v.TTS.Model
		case "cuda":
			c.TTS.CUDA = f.v.TTS.CUDA
		case "socket":
			c.Control.Socket = f.v.Control.Socket
		case "bus":
			c.Bus.URL = f.v.Bus.URL
		case "metrics-addr":
			c.Metrics.Addr = f.v.Metrics.Addr
		}
	})
}
