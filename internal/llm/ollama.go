package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/carlos-ai/carlos/internal/service"
)

// Ollama speaks Ollama's native HTTP API.
type Ollama struct {
	baseURL string
	name    string
	http    *http.Client
}

var _ Admin = (*Ollama)(nil)

// NewOllama creates a client for the Ollama server at baseURL. name is the
// service name used in errors.
func NewOllama(baseURL, name string, httpClient *http.Client) *Ollama {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		name:    name,
		http:    httpClient,
	}
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []Message     `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

type ollamaChatResponse struct {
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
	Error           string  `json:"error"`
}

// Complete implements Client using /api/chat with streaming disabled.
func (o *Ollama) Complete(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	var out ollamaChatResponse
	err := o.do(ctx, http.MethodPost, "/api/chat", ollamaChatRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   false,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}, &out)
	if err != nil {
		return Response{}, err
	}
	if out.Error != "" {
		return Response{}, service.Unavailable(o.name, out.Error, nil)
	}
	return Response{
		Text:             strings.TrimSpace(out.Message.Content),
		PromptTokens:     out.PromptEvalCount,
		CompletionTokens: out.EvalCount,
		Duration:         time.Since(start),
	}, nil
}

// Unload asks the server to drop the model from memory immediately.
func (o *Ollama) Unload(ctx context.Context, model string) error {
	return o.do(ctx, http.MethodPost, "/api/generate", map[string]any{
		"model":      model,
		"keep_alive": 0,
	}, nil)
}

type ollamaPSResponse struct {
	Models []struct {
		Name      string    `json:"name"`
		Size      int64     `json:"size"`
		SizeVRAM  int64     `json:"size_vram"`
		ExpiresAt time.Time `json:"expires_at"`
	} `json:"models"`
}

// Loaded lists the models the server currently holds in memory.
func (o *Ollama) Loaded(ctx context.Context) ([]LoadedModel, error) {
	var out ollamaPSResponse
	if err := o.do(ctx, http.MethodGet, "/api/ps", nil, &out); err != nil {
		return nil, err
	}
	models := make([]LoadedModel, 0, len(out.Models))
	for _, m := range out.Models {
		models = append(models, LoadedModel{
			Name:      m.Name,
			Size:      m.Size,
			VRAM:      m.SizeVRAM,
			ExpiresAt: m.ExpiresAt,
		})
	}
	return models, nil
}

func (o *Ollama) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := sonic.Marshal(in)
		if err != nil {
			return fmt.Errorf("unable to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, o.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("unable to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := o.http.Do(req)
	if err != nil {
		return service.Classify(o.name, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return service.StatusError(o.name, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return service.Classify(o.name, err)
	}
	if err := sonic.Unmarshal(b, out); err != nil {
		return service.Unavailable(o.name, "malformed response", err)
	}
	return nil
}
