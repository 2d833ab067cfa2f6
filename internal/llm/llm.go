// Package llm talks to the language model server.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/carlos-ai/carlos/internal/config"
)

// ErrUnsupported is returned by admin operations the backend doesn't offer.
var ErrUnsupported = errors.New("operation not supported by this backend")

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat message sent to the model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a single non-streaming completion request.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Response is the model's reply.
type Response struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	Duration         time.Duration
}

// LoadedModel is a model currently held in the server's memory.
type LoadedModel struct {
	Name      string
	Size      int64
	VRAM      int64
	ExpiresAt time.Time
}

// Client completes chat requests.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Admin is implemented by backends that can manage loaded models.
type Admin interface {
	Unload(ctx context.Context, model string) error
	Loaded(ctx context.Context) ([]LoadedModel, error)
}

// New returns the client for the configured backend. Timeouts are applied
// per call by the caller's context.
func New(cfg config.LLMConfig, name string) (Client, error) {
	httpClient := &http.Client{}
	switch cfg.Backend {
	case config.BackendOllama:
		return NewOllama(cfg.BaseURL, name, httpClient), nil
	case config.BackendOpenAI:
		return NewOpenAI(cfg.BaseURL, cfg.APIKey, name, httpClient), nil
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.Backend)
	}
}
