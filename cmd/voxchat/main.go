package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"voxchat/internal/audio"
	"voxchat/internal/bus"
	"voxchat/internal/chat"
	"voxchat/internal/config"
	"voxchat/internal/ipc"
	"voxchat/internal/llm"
	"voxchat/internal/metrics"
	"voxchat/internal/notify"
	"voxchat/internal/proxy"
	"voxchat/internal/tts"
	"voxchat/pkg/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	configFile := cli.StringP("config", "c", "", "YAML config file")
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	flags := config.BindFlags(cli.CommandLine)
	cli.Parse()

	cfg, err := loadConfig(*configFile, *envFile, flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, "voxchat:", err)
		os.Exit(2)
	}

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevelMap[cfg.Log.Level],
		TimeFormat: time.TimeOnly,
	})))

	if err := run(cfg); err != nil {
		log.Error("Stopped", "err", err)
		os.Exit(1)
	}
}

func loadConfig(path, envFile string, flags *config.Flags) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("env file %s: %w", envFile, err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	flags.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func run(cfg *config.Config) error {
	log.Info("Booting up")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpClient, err := proxy.NewHTTPClient(cfg.LLM.Proxy, cfg.LLM.Timeout)
	if err != nil {
		return fmt.Errorf("socks proxy %s: %w", cfg.LLM.Proxy, err)
	}

	var backend llm.Backend
	switch cfg.LLM.Backend {
	case "openai":
		backend = llm.NewOpenAI(llm.OpenAIConfig{
			BaseURL:    cfg.LLM.Endpoint(),
			APIKey:     cfg.LLM.APIKey,
			Model:      cfg.LLM.Model,
			System:     cfg.LLM.System,
			HTTPClient: httpClient,
		})
	default:
		ollama := llm.NewOllama(llm.OllamaConfig{
			URL:        cfg.LLM.Endpoint(),
			Model:      cfg.LLM.Model,
			System:     cfg.LLM.System,
			HTTPClient: httpClient,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := ollama.Ping(pingCtx); err != nil {
			log.Warn("Ollama is not answering yet", "url", cfg.LLM.Endpoint(), "err", err)
		}
		pingCancel()
		backend = ollama
	}
	log.Debug("Loaded generation backend", "backend", backend.Name(), "url", cfg.LLM.Endpoint(), "model", cfg.LLM.Model)

	engine, err := stt.Open(stt.Config{
		Engine:    stt.Kind(cfg.STT.Engine),
		ModelPath: cfg.STT.ModelPath(),
		Options: stt.Options{
			Language:      cfg.STT.Language,
			TranslateToEn: cfg.STT.Translate,
			Threads:       cfg.STT.Threads,
			InitialPrompt: cfg.STT.InitialPrompt,
			BeamSize:      cfg.STT.BeamSize,
			Temperature:   cfg.STT.Temperature,
		},
	})
	if err != nil {
		return fmt.Errorf("load %s model: %w", cfg.STT.Engine, err)
	}
	defer engine.Close()

	log.Debug("Loaded recognizer", "engine", engine.Name(), "model", cfg.STT.ModelPath())

	var capture chat.Capturer
	if cfg.Audio.Source == "files" {
		capture = audio.NewFileSource(cfg.Audio.Files)
	} else {
		rec := audio.NewRecorder()
		if err := rec.Init(); err != nil {
			return fmt.Errorf("init audio input: %w", err)
		}
		defer rec.Close()
		capture = rec
	}

	player := audio.NewPlayer()
	if err := player.Init(); err != nil {
		return fmt.Errorf("init audio output: %w", err)
	}
	defer player.Close()

	speaker, err := tts.NewSpeaker(tts.Config{
		Preset:     tts.Preset(cfg.TTS.Preset),
		Executable: cfg.TTS.Executable,
		Model:      cfg.TTS.Model,
		Voice:      cfg.TTS.Voice,
		CUDA:       cfg.TTS.CUDA,
		Output:     cfg.TTS.Output,
	}, player)
	if err != nil {
		return err
	}
	if cfg.Audio.Duck {
		speaker.WithDucker(audio.NewDucker([]string{"voxchat", "PortAudio", "ALSA plug-in"}, cfg.Audio.DuckFactor, 150*time.Millisecond))
	}

	loop := chat.NewLoop(capture, stt.NewTranscriber(engine), llm.NewClient(backend), speaker, chat.Options{
		Duration:   cfg.Audio.Duration,
		SampleRate: cfg.Audio.SampleRate,
		MaxTurns:   cfg.Audio.MaxTurns,
	})

	if cfg.Audio.CueSound != "" || cfg.Audio.Notify {
		loop.WithCue(notify.NewCue(cfg.Audio.CueSound, cfg.Audio.Notify))
	}

	if cfg.Metrics.Addr != "" {
		m := metrics.NewMetrics()
		loop.WithMetrics(m)
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Addr); err != nil {
				log.Error("Metrics server failed", "addr", cfg.Metrics.Addr, "err", err)
			}
		}()
	}

	if cfg.Bus.URL != "" {
		b, err := bus.Dial(ctx, bus.Config{URL: cfg.Bus.URL, Shard: cfg.Bus.Shard})
		if err != nil {
			log.Warn("Bus unavailable, turns will not be published", "url", cfg.Bus.URL, "err", err)
		} else {
			defer b.Close()
			loop.WithPublisher(chat.PublisherFunc(func(ctx context.Context, t chat.Turn) error {
				return b.Publish(ctx, t.ID, t.Heard, t.Reply)
			}))
		}
	}

	srv, err := ipc.StartServer(cfg.Control.Socket, func(msg ipc.ControlMessage) error {
		switch msg.Cmd {
		case ipc.CmdStop:
			log.Info("Stop requested")
			cancel()
			return nil
		case ipc.CmdStatus:
			return nil
		default:
			log.Warn("Unknown command", "cmd", msg.Cmd)
			return fmt.Errorf("unknown command %q", msg.Cmd)
		}
	})
	if err != nil {
		return fmt.Errorf("control socket: %w", err)
	}
	defer srv.Close()

	log.Info("Boot up - successful")

	return loop.Run(ctx)
}
