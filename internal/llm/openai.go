package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/carlos-ai/carlos/internal/service"
	"github.com/sashabaranov/go-openai"
)

// OpenAI speaks the OpenAI chat completions API, which Ollama, llama.cpp,
// vLLM and LM Studio also serve under /v1.
type OpenAI struct {
	client *openai.Client
	name   string
}

// NewOpenAI creates a client for an OpenAI-compatible server.
func NewOpenAI(baseURL, apiKey, name string, httpClient *http.Client) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		name:   name,
	}
}

// Complete implements Client.
func (o *OpenAI) Complete(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    convertMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return Response{}, o.classify(err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, service.Unavailable(o.name, "response contained no choices", nil)
	}
	return Response{
		Text:             strings.TrimSpace(resp.Choices[0].Message.Content),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		Duration:         time.Since(start),
	}, nil
}

func (o *OpenAI) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return service.Unavailable(o.name, fmt.Sprintf("unexpected status %d", apiErr.HTTPStatusCode), err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return service.Unavailable(o.name, fmt.Sprintf("unexpected status %d", reqErr.HTTPStatusCode), err)
	}
	return service.Classify(o.name, err)
}

func convertMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, openai.ChatCompletionMessage{
			Role:    convertRole(m.Role),
			Content: m.Content,
		})
	}
	return out
}

func convertRole(r Role) string {
	switch r {
	case RoleSystem:
		return openai.ChatMessageRoleSystem
	case RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
