package config

import (
	"errors"
	"fmt"
	"net/url"
	"unicode/utf8"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// CARLOS_LLM_MODEL or CARLOS_TTS_VOICE.
const EnvPrefix = "CARLOS_"

// minUserBudget is the context space that must remain for the user's
// message after the system prompt is accounted for.
const minUserBudget = 64

// Load builds the effective configuration: defaults, then whatever the
// viper instance read from the config file, then environment overrides.
// The result is validated.
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()
	if v != nil {
		if err := v.Unmarshal(&cfg); err != nil {
			return Config{}, fmt.Errorf("unable to decode configuration: %w", err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("unable to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid value in the configuration.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.LLM.Backend {
	case BackendOllama, BackendOpenAI:
	default:
		add("llm.backend must be %q or %q, got %q", BackendOllama, BackendOpenAI, c.LLM.Backend)
	}
	if err := validateURL(c.LLM.BaseURL); err != nil {
		add("llm.base_url: %w", err)
	}
	if c.LLM.Model == "" {
		add("llm.model must not be empty")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		add("llm.temperature must be between 0 and 2, got %.2f", c.LLM.Temperature)
	}
	if c.LLM.MaxTokens <= 0 {
		add("llm.max_tokens must be positive, got %d", c.LLM.MaxTokens)
	}
	if c.LLM.Timeout <= 0 {
		add("llm.timeout must be positive, got %s", c.LLM.Timeout)
	}
	if c.LLM.ProbeTimeout <= 0 {
		add("llm.probe_timeout must be positive, got %s", c.LLM.ProbeTimeout)
	}
	if c.LLM.MaxTurns < 0 {
		add("llm.max_turns must not be negative, got %d", c.LLM.MaxTurns)
	}
	if need := utf8.RuneCountInString(c.LLM.SystemPrompt) + minUserBudget; c.LLM.ContextBudget < need {
		add("llm.context_budget must be at least %d to fit the system prompt, got %d", need, c.LLM.ContextBudget)
	}
	if c.LLM.Launch.AutoStart && len(c.LLM.Launch.Command) == 0 {
		add("llm.launch.command is required when auto_start is set")
	}

	if c.TTS.Enabled {
		switch c.TTS.API {
		case APIAllTalk, APISimple:
		default:
			add("tts.api must be %q or %q, got %q", APIAllTalk, APISimple, c.TTS.API)
		}
		if err := validateURL(c.TTS.BaseURL); err != nil {
			add("tts.base_url: %w", err)
		}
		if c.TTS.Timeout <= 0 {
			add("tts.timeout must be positive, got %s", c.TTS.Timeout)
		}
		if c.TTS.ProbeTimeout <= 0 {
			add("tts.probe_timeout must be positive, got %s", c.TTS.ProbeTimeout)
		}
		if c.TTS.Launch.AutoStart && len(c.TTS.Launch.Command) == 0 {
			add("tts.launch.command is required when auto_start is set")
		}
	}
	if c.TTS.Speed < 0.1 || c.TTS.Speed > 3.0 {
		add("tts.speed must be between 0.1 and 3.0, got %.2f", c.TTS.Speed)
	}
	if c.TTS.Pitch < 0.1 || c.TTS.Pitch > 3.0 {
		add("tts.pitch must be between 0.1 and 3.0, got %.2f", c.TTS.Pitch)
	}
	if c.TTS.Volume < 0 || c.TTS.Volume > 1 {
		add("tts.volume must be between 0.0 and 1.0, got %.2f", c.TTS.Volume)
	}
	if c.TTS.RequestsPerMinute < 0 {
		add("tts.requests_per_minute must not be negative, got %d", c.TTS.RequestsPerMinute)
	}

	if c.Speech.MaxChars <= 0 {
		add("speech.max_chars must be positive, got %d", c.Speech.MaxChars)
	}
	if c.Speech.ChunkChars <= 0 {
		add("speech.chunk_chars must be positive, got %d", c.Speech.ChunkChars)
	}
	if c.Speech.Lookahead < 0 {
		add("speech.lookahead must not be negative, got %d", c.Speech.Lookahead)
	}
	if c.Speech.SampleRate != 44100 && c.Speech.SampleRate != 48000 {
		add("speech.sample_rate must be 44100 or 48000 Hz, got %d", c.Speech.SampleRate)
	}
	if c.Speech.Channels != 1 && c.Speech.Channels != 2 {
		add("speech.channels must be 1 (mono) or 2 (stereo), got %d", c.Speech.Channels)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q is not an http(s) URL", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}
