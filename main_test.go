package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/carlos-ai/carlos/internal/config"
	"github.com/carlos-ai/carlos/internal/service"
	"github.com/carlos-ai/carlos/internal/speech"
	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func TestWriteConfigRedactsSecrets(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.APIKey = "sk-secret"

	var buf bytes.Buffer
	if err := writeConfig(&buf, cfg); err != nil {
		t.Fatalf("writeConfig failed: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "sk-secret") {
		t.Errorf("output leaks the API key:\n%s", out)
	}
	if !strings.Contains(out, "api_key: <redacted>") {
		t.Errorf("output should show a redacted key:\n%s", out)
	}
	if cfg.LLM.APIKey != "sk-secret" {
		t.Error("writeConfig should not modify the caller's config")
	}
}

func TestDefaultConfigLoads(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(defaultConfig)); err != nil {
		t.Fatalf("default config does not parse: %v", err)
	}
	cfg, err := config.Load(v)
	if err != nil {
		t.Fatalf("default config is invalid: %v", err)
	}

	// the template documents the built-in defaults
	want := config.Default()
	if cfg.LLM.Model != want.LLM.Model || cfg.TTS.BaseURL != want.TTS.BaseURL {
		t.Errorf("template disagrees with defaults: %+v", cfg)
	}
	if cfg.TTS.Cache.TTL != 7*24*time.Hour {
		t.Errorf("cache ttl = %v, want 168h", cfg.TTS.Cache.TTL)
	}
	if len(cfg.LLM.Launch.Command) != 2 || cfg.LLM.Launch.Command[0] != "ollama" {
		t.Errorf("launch command = %q", cfg.LLM.Launch.Command)
	}

	// and survives a round trip through config show
	var buf bytes.Buffer
	if err := writeConfig(&buf, cfg); err != nil {
		t.Fatalf("writeConfig failed: %v", err)
	}
	var decoded map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("config show output is not YAML: %v", err)
	}
	for _, section := range []string{"llm", "tts", "speech", "session"} {
		if _, ok := decoded[section]; !ok {
			t.Errorf("config show output lacks %q", section)
		}
	}
}

func TestValidateStyle(t *testing.T) {
	for _, style := range []string{"auto", "dark", "light", "notty"} {
		if err := validateStyle(style); err != nil {
			t.Errorf("validateStyle(%q) = %v", style, err)
		}
	}
	if err := validateStyle(t.TempDir() + "/missing.json"); err == nil {
		t.Error("a missing style file should be rejected")
	}
}

func TestLiveGateReprobes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	gate := liveGate{
		ctx:     context.Background(),
		monitor: service.NewMonitor(service.WithLogger(log.New(&bytes.Buffer{}))),
		services: map[string]service.Service{
			service.NameTTS: {Name: service.NameTTS, BaseURL: srv.URL, HealthPath: "/"},
		},
	}

	if !gate.Reachable(service.NameTTS) {
		t.Fatal("running server should be reachable")
	}
	srv.Close()
	if gate.Reachable(service.NameTTS) {
		t.Error("stopped server should be unreachable on the next check")
	}
	if gate.Reachable(service.NameLLM) {
		t.Error("unknown services are unreachable")
	}
}

func TestPrintHealth(t *testing.T) {
	now := time.Now()
	var buf bytes.Buffer
	printHealth(&buf, []service.Health{
		{Name: "llm", URL: "http://localhost:11434", Reachable: true, LastChecked: now},
		{Name: "tts", URL: "http://localhost:7851", LastChecked: now, Err: errors.New("connection refused")},
	}, now)

	out := buf.String()
	for _, want := range []string{"http://localhost:11434", "down", "connection refused", "now"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}

func TestReloadSettings(t *testing.T) {
	cfg := config.Default()
	a := &app{
		cfg:      cfg,
		pipeline: speech.New(speech.Options{Settings: settingsFromConfig(cfg.TTS), Logger: log.New(&bytes.Buffer{})}),
	}

	v := viper.New()
	v.Set("tts.speed", 1.5)
	v.Set("tts.volume", 0.3)
	reloadSettings(a, v)

	got := a.pipeline.Settings()
	if got.Speed != 1.5 || got.Volume != 0.3 || got.Pitch != cfg.TTS.Pitch {
		t.Errorf("settings = %+v, want speed 1.5 and volume 0.3", got)
	}
	if got.Voice != cfg.TTS.Voice {
		t.Errorf("voice changed to %q", got.Voice)
	}

	// invalid values are ignored
	v.Set("tts.volume", 5.0)
	reloadSettings(a, v)
	if a.pipeline.Settings().Volume != 0.3 {
		t.Error("an invalid config should not change the settings")
	}
}
