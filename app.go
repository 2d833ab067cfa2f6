package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/carlos-ai/carlos/internal/audio"
	"github.com/carlos-ai/carlos/internal/cache"
	"github.com/carlos-ai/carlos/internal/config"
	"github.com/carlos-ai/carlos/internal/conversation"
	"github.com/carlos-ai/carlos/internal/llm"
	"github.com/carlos-ai/carlos/internal/sentence"
	"github.com/carlos-ai/carlos/internal/service"
	"github.com/carlos-ai/carlos/internal/session"
	"github.com/carlos-ai/carlos/internal/speech"
	"github.com/carlos-ai/carlos/internal/tts"
	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
)

// app holds the wired components of one carlos run.
type app struct {
	cfg      config.Config
	monitor  *service.Monitor
	pipeline *speech.Pipeline
	session  *session.Session
}

// liveGate re-probes a service every time a caller asks whether it is
// reachable, so a server that went away (or came back) is noticed on the
// next turn.
type liveGate struct {
	ctx      context.Context
	monitor  *service.Monitor
	services map[string]service.Service
}

func (g liveGate) Reachable(name string) bool {
	svc, ok := g.services[name]
	if !ok {
		return false
	}
	return g.monitor.Check(g.ctx, svc).Reachable
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	logger := log.Default()

	serviceLogger := logger.WithPrefix("service")
	monitor := service.NewMonitor(
		service.WithLauncher(service.NewProcessLauncher(serviceLogger)),
		service.WithLogger(serviceLogger),
	)
	services := map[string]service.Service{
		service.NameLLM: service.FromLLMConfig(cfg.LLM),
	}
	monitor.EnsureRunning(ctx, services[service.NameLLM])
	if cfg.TTS.Enabled {
		services[service.NameTTS] = service.FromTTSConfig(cfg.TTS)
		monitor.EnsureRunning(ctx, services[service.NameTTS])
	}
	gate := liveGate{ctx: ctx, monitor: monitor, services: services}

	client, err := llm.New(cfg.LLM, service.NameLLM)
	if err != nil {
		return nil, err
	}
	conv := conversation.New(client, conversation.OptionsFromConfig(cfg.LLM),
		conversation.WithGate(gate),
		conversation.WithLogger(logger.WithPrefix("llm")),
	)

	pipeline, err := newPipeline(cfg, gate, logger)
	if err != nil {
		return nil, err
	}

	renderer := session.PlainRenderer()
	if cfg.Session.Markdown {
		r, err := session.NewMarkdownRenderer(cfg.Session.Style, cfg.Session.Width)
		if err != nil {
			return nil, fmt.Errorf("unable to create renderer: %w", err)
		}
		renderer = r
	}

	sess := session.New(conv, pipeline, monitor, os.Stdout, session.Options{
		Name:         cfg.Session.Name,
		Prompt:       cfg.Session.Prompt,
		Width:        cfg.Session.Width,
		UnloadOnExit: cfg.LLM.UnloadOnExit,
		Renderer:     renderer,
		Logger:       logger,
	})

	return &app{cfg: cfg, monitor: monitor, pipeline: pipeline, session: sess}, nil
}

func newPipeline(cfg config.Config, gate liveGate, logger *log.Logger) (*speech.Pipeline, error) {
	opts := speech.Options{
		Parser: sentence.New(
			sentence.WithMaxChars(cfg.Speech.MaxChars),
			sentence.WithChunkChars(cfg.Speech.ChunkChars),
		),
		Settings:  settingsFromConfig(cfg.TTS),
		Lookahead: cfg.Speech.Lookahead,
		Muted:     cfg.Speech.Muted || !cfg.TTS.Enabled,
		Logger:    logger.WithPrefix("speech"),
	}
	if !cfg.TTS.Enabled {
		return speech.New(opts), nil
	}

	opts.Synthesizer = tts.NewClient(cfg.TTS, tts.WithLogger(logger.WithPrefix("tts")))
	opts.Available = func(context.Context) bool { return gate.Reachable(service.NameTTS) }

	player, err := audio.NewPlayer(audio.PlayerConfig{
		SampleRate: cfg.Speech.SampleRate,
		Channels:   cfg.Speech.Channels,
		BufferSize: audio.DefaultPlayerConfig().BufferSize,
	})
	if err != nil {
		logger.Warn("No audio output, speech is disabled", "err", err)
	} else {
		opts.Player = player
	}

	if cfg.TTS.Cache.Enabled {
		cacheCfg := cfg.TTS.Cache
		dir, err := cacheDir(cacheCfg.Dir)
		if err != nil {
			return nil, err
		}
		cacheCfg.Dir = dir
		c, err := cache.Open(cacheCfg, logger.WithPrefix("cache"))
		if err != nil {
			logger.Warn("Audio cache is disabled", "err", err)
		} else {
			opts.Cache = c
		}
	}
	return speech.New(opts), nil
}

// cacheDir resolves the audio cache directory, defaulting to the user's
// cache directory.
func cacheDir(dir string) (string, error) {
	if dir != "" {
		return homedir.Expand(dir)
	}
	base, err := gap.NewScope(gap.User, "carlos").CacheDir()
	if err != nil {
		return "", fmt.Errorf("unable to find cache directory: %w", err)
	}
	return filepath.Join(base, "audio"), nil
}

func settingsFromConfig(cfg config.TTSConfig) speech.Settings {
	return speech.Settings{
		Voice:    cfg.Voice,
		Language: cfg.Language,
		Speed:    cfg.Speed,
		Pitch:    cfg.Pitch,
		Volume:   cfg.Volume,
	}
}
