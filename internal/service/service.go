// Package service tracks the health of the external HTTP services carlos
// depends on and starts them when they aren't running.
package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/carlos-ai/carlos/internal/config"
)

// Service describes an external HTTP service.
type Service struct {
	Name         string
	BaseURL      string
	HealthPath   string
	Launch       *LaunchSpec
	StartupWait  time.Duration
	ProbeTimeout time.Duration
}

// HealthURL returns the URL probed to decide whether the service is up.
func (s Service) HealthURL() string {
	return strings.TrimRight(s.BaseURL, "/") + s.HealthPath
}

// LaunchSpec is the command used to start a service.
type LaunchSpec struct {
	Command    string
	Args       []string
	Dir        string
	StopOnExit bool
}

func (l LaunchSpec) String() string {
	return strings.TrimSpace(l.Command + " " + strings.Join(l.Args, " "))
}

// Health is the last observed state of a service.
type Health struct {
	Name        string
	URL         string
	Reachable   bool
	LastChecked time.Time
	Err         error
	Launched    bool
}

// Prober checks whether a service answers on its health URL.
type Prober interface {
	Probe(ctx context.Context, url string) error
}

// Launcher starts a service process.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (Process, error)
}

// Process is a service started by a Launcher.
type Process interface {
	Pid() int
	Stop(ctx context.Context) error
}

// HTTPProber probes a health URL with a GET request; any 2xx answer means
// the service is up.
type HTTPProber struct {
	Client *http.Client
}

// Probe implements Prober.
func (p HTTPProber) Probe(ctx context.Context, url string) error {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

// Names used for the two services carlos talks to.
const (
	NameLLM = "llm"
	NameTTS = "tts"
)

// FromLLMConfig describes the language model server.
func FromLLMConfig(cfg config.LLMConfig) Service {
	return Service{
		Name:         NameLLM,
		BaseURL:      cfg.BaseURL,
		HealthPath:   cfg.HealthPath,
		Launch:       launchSpec(cfg.Launch),
		StartupWait:  cfg.Launch.StartupWait,
		ProbeTimeout: cfg.ProbeTimeout,
	}
}

// FromTTSConfig describes the speech synthesis server.
func FromTTSConfig(cfg config.TTSConfig) Service {
	return Service{
		Name:         NameTTS,
		BaseURL:      cfg.BaseURL,
		HealthPath:   cfg.HealthPath,
		Launch:       launchSpec(cfg.Launch),
		StartupWait:  cfg.Launch.StartupWait,
		ProbeTimeout: cfg.ProbeTimeout,
	}
}

func launchSpec(cfg config.LaunchConfig) *LaunchSpec {
	if !cfg.AutoStart || len(cfg.Command) == 0 {
		return nil
	}
	return &LaunchSpec{
		Command:    cfg.Command[0],
		Args:       cfg.Command[1:],
		Dir:        cfg.Dir,
		StopOnExit: cfg.StopOnExit,
	}
}
