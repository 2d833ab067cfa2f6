// Package config holds carlos' configuration: the LLM and TTS backends,
// speech output, and the interactive session.
package config

import (
	"time"
)

// Backend names accepted by LLMConfig.Backend.
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
)

// TTS wire formats accepted by TTSConfig.API.
const (
	APIAllTalk = "alltalk"
	APISimple  = "simple"
)

// DefaultSystemPrompt is the assistant persona sent with every request.
const DefaultSystemPrompt = "You are Carlos, a helpful and friendly AI assistant. " +
	"You provide clear, concise responses while maintaining a warm personality. " +
	"You are knowledgeable but humble, and always try to be helpful."

// Config contains all carlos configuration options.
type Config struct {
	Debug bool `yaml:"debug" mapstructure:"debug" env:"DEBUG"`

	LLM     LLMConfig     `yaml:"llm" mapstructure:"llm" envPrefix:"LLM_"`
	TTS     TTSConfig     `yaml:"tts" mapstructure:"tts" envPrefix:"TTS_"`
	Speech  SpeechConfig  `yaml:"speech" mapstructure:"speech" envPrefix:"SPEECH_"`
	Session SessionConfig `yaml:"session" mapstructure:"session" envPrefix:"SESSION_"`
}

// LaunchConfig describes how to start an external service that isn't
// running yet.
type LaunchConfig struct {
	AutoStart   bool          `yaml:"auto_start" mapstructure:"auto_start" env:"AUTO_START"`
	Command     []string      `yaml:"command" mapstructure:"command" env:"COMMAND" envSeparator:" "`
	Dir         string        `yaml:"dir" mapstructure:"dir" env:"DIR"`
	StartupWait time.Duration `yaml:"startup_wait" mapstructure:"startup_wait" env:"STARTUP_WAIT"`
	StopOnExit  bool          `yaml:"stop_on_exit" mapstructure:"stop_on_exit" env:"STOP_ON_EXIT"`
}

// LLMConfig configures the language model backend and the conversation
// context sent to it.
type LLMConfig struct {
	Backend     string        `yaml:"backend" mapstructure:"backend" env:"BACKEND"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url" env:"BASE_URL"`
	HealthPath  string        `yaml:"health_path" mapstructure:"health_path" env:"HEALTH_PATH"`
	APIKey      string        `yaml:"api_key" mapstructure:"api_key" env:"API_KEY"`
	Model       string        `yaml:"model" mapstructure:"model" env:"MODEL"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature" env:"TEMPERATURE"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens" env:"MAX_TOKENS"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout" env:"TIMEOUT"`

	// ProbeTimeout bounds one health check.
	ProbeTimeout time.Duration `yaml:"probe_timeout" mapstructure:"probe_timeout" env:"PROBE_TIMEOUT"`

	SystemPrompt  string `yaml:"system_prompt" mapstructure:"system_prompt" env:"SYSTEM_PROMPT"`
	ContextBudget int    `yaml:"context_budget" mapstructure:"context_budget" env:"CONTEXT_BUDGET"`
	MaxTurns      int    `yaml:"max_turns" mapstructure:"max_turns" env:"MAX_TURNS"`

	UnloadOnExit  bool          `yaml:"unload_on_exit" mapstructure:"unload_on_exit" env:"UNLOAD_ON_EXIT"`
	UnloadTimeout time.Duration `yaml:"unload_timeout" mapstructure:"unload_timeout" env:"UNLOAD_TIMEOUT"`

	Launch LaunchConfig `yaml:"launch" mapstructure:"launch" envPrefix:"LAUNCH_"`
}

// TTSConfig configures the speech synthesis server.
type TTSConfig struct {
	Enabled           bool          `yaml:"enabled" mapstructure:"enabled" env:"ENABLED"`
	API               string        `yaml:"api" mapstructure:"api" env:"API"`
	BaseURL           string        `yaml:"base_url" mapstructure:"base_url" env:"BASE_URL"`
	HealthPath        string        `yaml:"health_path" mapstructure:"health_path" env:"HEALTH_PATH"`
	SynthesizePath    string        `yaml:"synthesize_path" mapstructure:"synthesize_path" env:"SYNTHESIZE_PATH"`
	VoicesPath        string        `yaml:"voices_path" mapstructure:"voices_path" env:"VOICES_PATH"`
	Voice             string        `yaml:"voice" mapstructure:"voice" env:"VOICE"`
	Language          string        `yaml:"language" mapstructure:"language" env:"LANGUAGE"`
	Speed             float64       `yaml:"speed" mapstructure:"speed" env:"SPEED"`
	Pitch             float64       `yaml:"pitch" mapstructure:"pitch" env:"PITCH"`
	Volume            float64       `yaml:"volume" mapstructure:"volume" env:"VOLUME"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout" env:"TIMEOUT"`
	ProbeTimeout      time.Duration `yaml:"probe_timeout" mapstructure:"probe_timeout" env:"PROBE_TIMEOUT"`
	RequestsPerMinute int           `yaml:"requests_per_minute" mapstructure:"requests_per_minute" env:"REQUESTS_PER_MINUTE"`

	Cache  CacheConfig  `yaml:"cache" mapstructure:"cache" envPrefix:"CACHE_"`
	Launch LaunchConfig `yaml:"launch" mapstructure:"launch" envPrefix:"LAUNCH_"`
}

// CacheConfig configures the synthesized audio cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled" env:"ENABLED"`
	Dir     string        `yaml:"dir" mapstructure:"dir" env:"DIR"`
	Memory  int64         `yaml:"memory_bytes" mapstructure:"memory_bytes" env:"MEMORY_BYTES"`
	Disk    int64         `yaml:"disk_bytes" mapstructure:"disk_bytes" env:"DISK_BYTES"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl" env:"TTL"`
}

// SpeechConfig configures how replies are turned into audio.
type SpeechConfig struct {
	Muted      bool `yaml:"muted" mapstructure:"muted" env:"MUTED"`
	MaxChars   int  `yaml:"max_chars" mapstructure:"max_chars" env:"MAX_CHARS"`
	ChunkChars int  `yaml:"chunk_chars" mapstructure:"chunk_chars" env:"CHUNK_CHARS"`
	Lookahead  int  `yaml:"lookahead" mapstructure:"lookahead" env:"LOOKAHEAD"`
	SampleRate int  `yaml:"sample_rate" mapstructure:"sample_rate" env:"SAMPLE_RATE"`
	Channels   int  `yaml:"channels" mapstructure:"channels" env:"CHANNELS"`
}

// SessionConfig configures the interactive loop.
type SessionConfig struct {
	Name     string `yaml:"name" mapstructure:"name" env:"NAME"`
	Prompt   string `yaml:"prompt" mapstructure:"prompt" env:"PROMPT"`
	Markdown bool   `yaml:"markdown" mapstructure:"markdown" env:"MARKDOWN"`
	Style    string `yaml:"style" mapstructure:"style" env:"STYLE"`
	Width    int    `yaml:"width" mapstructure:"width" env:"WIDTH"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		LLM:     DefaultLLM(),
		TTS:     DefaultTTS(),
		Speech:  DefaultSpeech(),
		Session: DefaultSession(),
	}
}

// DefaultLLM returns the default Ollama configuration.
func DefaultLLM() LLMConfig {
	return LLMConfig{
		Backend:       BackendOllama,
		BaseURL:       "http://localhost:11434",
		HealthPath:    "/api/tags",
		Model:         "gpt-oss:20b",
		Temperature:   0.7,
		MaxTokens:     500,
		Timeout:       30 * time.Second,
		ProbeTimeout:  3 * time.Second,
		SystemPrompt:  DefaultSystemPrompt,
		ContextBudget: 12000,
		MaxTurns:      40, // 20 exchanges
		UnloadOnExit:  true,
		UnloadTimeout: 10 * time.Second,
		Launch: LaunchConfig{
			AutoStart:   true,
			Command:     []string{"ollama", "serve"},
			StartupWait: 5 * time.Second,
		},
	}
}

// DefaultTTS returns the default AllTalk configuration.
func DefaultTTS() TTSConfig {
	return TTSConfig{
		Enabled:           true,
		API:               APIAllTalk,
		BaseURL:           "http://localhost:7851",
		HealthPath:        "/api/ready",
		SynthesizePath:    "/api/tts-generate",
		VoicesPath:        "/api/voices",
		Voice:             "default",
		Language:          "en",
		Speed:             1.0,
		Pitch:             1.0,
		Volume:            0.8,
		Timeout:           10 * time.Second,
		ProbeTimeout:      2 * time.Second,
		RequestsPerMinute: 120,
		Cache: CacheConfig{
			Enabled: true,
			Memory:  32 << 20,
			Disk:    256 << 20,
			TTL:     7 * 24 * time.Hour,
		},
		Launch: LaunchConfig{
			StartupWait: 10 * time.Second,
		},
	}
}

// DefaultSpeech returns default speech output settings.
func DefaultSpeech() SpeechConfig {
	return SpeechConfig{
		MaxChars:   1000,
		ChunkChars: 250,
		Lookahead:  2,
		SampleRate: 44100,
		Channels:   2,
	}
}

// DefaultSession returns default session settings.
func DefaultSession() SessionConfig {
	return SessionConfig{
		Name:     "Carlos",
		Prompt:   "You: ",
		Markdown: true,
		Style:    "auto",
	}
}
