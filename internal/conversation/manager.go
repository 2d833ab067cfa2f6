// Package conversation keeps the dialogue history and turns each user
// message into a bounded request for the language model.
package conversation

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carlos-ai/carlos/internal/config"
	"github.com/carlos-ai/carlos/internal/llm"
	"github.com/carlos-ai/carlos/internal/service"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Turn is one message in the dialogue history.
type Turn struct {
	ID        uuid.UUID
	Role      llm.Role
	Text      string
	Timestamp time.Time
}

func (t Turn) message() llm.Message {
	return llm.Message{Role: t.Role, Content: t.Text}
}

// Usage is the token accounting reported for the latest reply.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	Duration         time.Duration
}

// Options configures a Manager.
type Options struct {
	Service       string
	Model         string
	SystemPrompt  string
	Budget        int
	MaxTurns      int
	MaxTokens     int
	Temperature   float64
	Timeout       time.Duration
	UnloadTimeout time.Duration
}

// OptionsFromConfig maps the LLM configuration onto manager options.
func OptionsFromConfig(cfg config.LLMConfig) Options {
	return Options{
		Service:       service.NameLLM,
		Model:         cfg.Model,
		SystemPrompt:  cfg.SystemPrompt,
		Budget:        cfg.ContextBudget,
		MaxTurns:      cfg.MaxTurns,
		MaxTokens:     cfg.MaxTokens,
		Temperature:   cfg.Temperature,
		Timeout:       cfg.Timeout,
		UnloadTimeout: cfg.UnloadTimeout,
	}
}

// Gate reports whether a named service was last seen reachable.
type Gate interface {
	Reachable(name string) bool
}

// Manager owns the history of one conversation. Ask must not be called
// concurrently; a second caller gets ErrAskInFlight.
type Manager struct {
	client llm.Client
	opts   Options
	gate   Gate
	logger *log.Logger
	now    func() time.Time

	inFlight atomic.Bool

	mu        sync.Mutex
	history   []Turn
	lastUsage Usage
}

// Option configures a Manager.
type Option func(*Manager)

// WithGate makes Ask fail fast with service.ErrUnavailable while the gate
// reports the model server unreachable.
func WithGate(g Gate) Option {
	return func(m *Manager) { m.gate = g }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// New creates a manager with an empty history.
func New(client llm.Client, opts Options, options ...Option) *Manager {
	if opts.Service == "" {
		opts.Service = service.NameLLM
	}
	m := &Manager{
		client: client,
		opts:   opts,
		logger: log.Default(),
		now:    time.Now,
	}
	for _, o := range options {
		o(m)
	}
	return m
}

// Ask sends userText to the model and returns its reply. The user turn is
// recorded before the call and stays in the history even if the call
// fails; the assistant turn is recorded only on success. Service failures
// are reported as service.ErrUnavailable or service.ErrTimeout and are not
// retried.
func (m *Manager) Ask(ctx context.Context, userText string) (string, error) {
	text := strings.TrimSpace(userText)
	if text == "" {
		return "", &ValidationError{Reason: "message is empty"}
	}
	if !m.inFlight.CompareAndSwap(false, true) {
		return "", ErrAskInFlight
	}
	defer m.inFlight.Store(false)

	m.mu.Lock()
	msgs := buildContext(m.opts.SystemPrompt, m.history, text, m.opts.Budget, m.opts.MaxTurns)
	m.history = append(m.history, m.newTurn(llm.RoleUser, text))
	m.mu.Unlock()

	if m.gate != nil && !m.gate.Reachable(m.opts.Service) {
		return "", service.Unavailable(m.opts.Service, "model server is not reachable", nil)
	}

	if m.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.Timeout)
		defer cancel()
	}

	m.logger.Debug("Sending request", "model", m.opts.Model, "messages", len(msgs))
	resp, err := m.client.Complete(ctx, llm.Request{
		Model:       m.opts.Model,
		Messages:    msgs,
		MaxTokens:   m.opts.MaxTokens,
		Temperature: m.opts.Temperature,
	})
	if err != nil {
		err = service.Classify(m.opts.Service, err)
		m.logger.Warn("Model request failed", "err", err)
		return "", err
	}

	m.mu.Lock()
	m.history = append(m.history, m.newTurn(llm.RoleAssistant, resp.Text))
	m.lastUsage = Usage{
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		Duration:         resp.Duration,
	}
	m.mu.Unlock()

	m.logger.Debug("Received reply", "chars", len(resp.Text), "prompt_tokens", resp.PromptTokens, "completion_tokens", resp.CompletionTokens)
	return resp.Text, nil
}

func (m *Manager) newTurn(role llm.Role, text string) Turn {
	return Turn{
		ID:        uuid.New(),
		Role:      role,
		Text:      text,
		Timestamp: m.now(),
	}
}

// Clear empties the history. The system prompt is unaffected.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = nil
}

// History returns a copy of the history, oldest first.
func (m *Manager) History() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Turn, len(m.history))
	copy(out, m.history)
	return out
}

// LastUsage returns the token counts of the latest successful reply.
func (m *Manager) LastUsage() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastUsage
}

// Model returns the model name requests are sent to.
func (m *Manager) Model() string {
	return m.opts.Model
}

// UnloadModel asks the server to free the model's memory. It returns
// llm.ErrUnsupported if the backend can't.
func (m *Manager) UnloadModel(ctx context.Context) error {
	admin, ok := m.client.(llm.Admin)
	if !ok {
		return llm.ErrUnsupported
	}
	ctx, cancel := m.adminContext(ctx)
	defer cancel()
	if err := admin.Unload(ctx, m.opts.Model); err != nil {
		return service.Classify(m.opts.Service, err)
	}
	m.logger.Info("Unloaded model", "model", m.opts.Model)
	return nil
}

// MemoryUsage lists the models loaded on the server. It returns
// llm.ErrUnsupported if the backend can't report them.
func (m *Manager) MemoryUsage(ctx context.Context) ([]llm.LoadedModel, error) {
	admin, ok := m.client.(llm.Admin)
	if !ok {
		return nil, llm.ErrUnsupported
	}
	ctx, cancel := m.adminContext(ctx)
	defer cancel()
	models, err := admin.Loaded(ctx)
	if err != nil {
		return nil, service.Classify(m.opts.Service, err)
	}
	return models, nil
}

func (m *Manager) adminContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := m.opts.UnloadTimeout
	if timeout <= 0 {
		timeout = m.opts.Timeout
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
