// Package tts is a client for an AllTalk-style speech synthesis server.
package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/carlos-ai/carlos/internal/config"
	"github.com/carlos-ai/carlos/internal/service"
	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	"golang.org/x/time/rate"
)

// maxAudioSize bounds a single synthesized clip.
const maxAudioSize = 64 << 20

// fullScale is the volume sent to the server. Playback applies the
// configured volume.
const fullScale = 1.0

// Request is the text and voice settings for one synthesis call.
type Request struct {
	Text     string
	Voice    string
	Language string
	Speed    float64
	Pitch    float64
}

// Client talks to the TTS server. It is safe for concurrent use.
type Client struct {
	api            string
	baseURL        string
	synthesizePath string
	voicesPath     string
	name           string
	http           *http.Client
	timeout        time.Duration
	limiter        *rate.Limiter
	logger         *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// NewClient creates a client from the TTS configuration.
func NewClient(cfg config.TTSConfig, opts ...Option) *Client {
	c := &Client{
		api:            cfg.API,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		synthesizePath: cfg.SynthesizePath,
		voicesPath:     cfg.VoicesPath,
		name:           service.NameTTS,
		http:           &http.Client{},
		timeout:        cfg.Timeout,
		logger:         log.Default(),
	}
	if c.synthesizePath == "" {
		c.synthesizePath = defaultSynthesizePath(cfg.API)
	}
	if c.voicesPath == "" {
		c.voicesPath = "/api/voices"
	}
	// Rate limit to stay under what a local server can keep up with.
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// withTimeout bounds one call to the server, including any follow-up
// download, by the configured timeout.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func defaultSynthesizePath(api string) string {
	if api == config.APISimple {
		return "/api/tts"
	}
	return "/api/tts-generate"
}

type allTalkRequest struct {
	TextInput           string  `json:"text_input"`
	TextFiltering       string  `json:"text_filtering"`
	CharacterVoiceGen   string  `json:"character_voice_gen"`
	NarratorEnabled     bool    `json:"narrator_enabled"`
	NarratorVoiceGen    string  `json:"narrator_voice_gen"`
	TextNotInside       string  `json:"text_not_inside"`
	Language            string  `json:"language"`
	OutputFileName      string  `json:"output_file_name"`
	OutputFileTimestamp bool    `json:"output_file_timestamp"`
	Autoplay            bool    `json:"autoplay"`
	AutoplayVolume      float64 `json:"autoplay_volume"`
	Speed               float64 `json:"speed"`
	Pitch               float64 `json:"pitch"`
}

type simpleRequest struct {
	Text     string  `json:"text"`
	Voice    string  `json:"voice"`
	Language string  `json:"language,omitempty"`
	Speed    float64 `json:"speed"`
	Pitch    float64 `json:"pitch"`
	Volume   float64 `json:"volume"`
}

type generateResponse struct {
	Status         string `json:"status"`
	OutputFilePath string `json:"output_file_path"`
	OutputFileURL  string `json:"output_file_url"`
	Message        string `json:"message"`
}

func (c *Client) body(req Request) any {
	if c.api == config.APISimple {
		return simpleRequest{
			Text:     req.Text,
			Voice:    req.Voice,
			Language: req.Language,
			Speed:    req.Speed,
			Pitch:    req.Pitch,
			Volume:   fullScale,
		}
	}
	return allTalkRequest{
		TextInput:           req.Text,
		TextFiltering:       "standard",
		CharacterVoiceGen:   req.Voice,
		Language:            req.Language,
		OutputFileName:      "carlos_tts_output",
		OutputFileTimestamp: true,
		AutoplayVolume:      fullScale,
		Speed:               req.Speed,
		Pitch:               req.Pitch,
	}
}

// Synthesize returns the encoded audio (WAV or MP3) for req. The server may
// answer with the audio itself or with JSON naming a URL or local file
// holding it.
func (c *Client) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, service.Classify(c.name, err)
		}
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	payload, err := sonic.Marshal(c.body(req))
	if err != nil {
		return nil, fmt.Errorf("unable to encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.synthesizePath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("unable to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, service.Classify(c.name, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, service.StatusError(c.name, resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioSize))
	if err != nil {
		return nil, service.Classify(c.name, err)
	}

	if !isJSON(resp.Header.Get("Content-Type"), data) {
		c.logger.Debug("Synthesized audio", "bytes", len(data), "took", time.Since(start))
		return data, nil
	}

	var gen generateResponse
	if err := sonic.Unmarshal(data, &gen); err != nil {
		return nil, service.Unavailable(c.name, "malformed response", err)
	}
	if gen.Status != "" && !strings.EqualFold(gen.Status, "success") && !strings.EqualFold(gen.Status, "generate-success") {
		return nil, service.Unavailable(c.name, "generation failed: "+strings.TrimSpace(gen.Status+" "+gen.Message), nil)
	}

	switch {
	case gen.OutputFileURL != "":
		return c.fetch(ctx, gen.OutputFileURL)
	case gen.OutputFilePath != "":
		path, err := homedir.Expand(gen.OutputFilePath)
		if err != nil {
			return nil, fmt.Errorf("unable to expand path: %w", err)
		}
		audio, err := os.ReadFile(path)
		if err != nil {
			return nil, service.Unavailable(c.name, "generated file is not readable", err)
		}
		c.logger.Debug("Synthesized audio", "path", path, "bytes", len(audio), "took", time.Since(start))
		return audio, nil
	default:
		return nil, service.Unavailable(c.name, "response named no audio output", nil)
	}
}

// fetch downloads audio the server saved and published under ref, which
// may be relative to the server's base URL.
func (c *Client) fetch(ctx context.Context, ref string) ([]byte, error) {
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	u, err := base.Parse(ref)
	if err != nil {
		return nil, service.Unavailable(c.name, "invalid output url", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, service.Classify(c.name, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, service.StatusError(c.name, resp)
	}
	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioSize))
	if err != nil {
		return nil, service.Classify(c.name, err)
	}
	return audio, nil
}

// Voices lists the voices the server offers. Both {"voices": [...]} and a
// bare array are accepted, with entries either strings or {"name": ...}.
func (c *Client) Voices(ctx context.Context) ([]string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.voicesPath, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, service.Classify(c.name, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, service.StatusError(c.name, resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, service.Classify(c.name, err)
	}
	voices, err := parseVoices(data)
	if err != nil {
		return nil, service.Unavailable(c.name, "malformed voice list", err)
	}
	return voices, nil
}

func parseVoices(data []byte) ([]string, error) {
	var raw any
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if obj, ok := raw.(map[string]any); ok {
		raw = obj["voices"]
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list of voices, got %T", raw)
	}

	voices := make([]string, 0, len(list))
	for _, v := range list {
		switch v := v.(type) {
		case string:
			voices = append(voices, v)
		case map[string]any:
			if name, ok := v["name"].(string); ok {
				voices = append(voices, name)
			}
		}
	}
	return voices, nil
}

func isJSON(contentType string, data []byte) bool {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		if mt == "application/json" {
			return true
		}
		if strings.HasPrefix(mt, "audio/") || mt == "application/octet-stream" {
			return false
		}
	}
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
