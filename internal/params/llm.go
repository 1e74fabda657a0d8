package params

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hyphalabs/evm-agent/internal/httpx"
)

const (
	defaultLLMBaseURL = "https://api.openai.com/v1"
	defaultLLMModel   = "gpt-4o-mini"
)

// LLMConfig describes the chat-completions endpoint used for extraction.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Retries int
}

// LLM extracts parameters by asking a chat model to answer with a single
// JSON object matching the action's schema.
type LLM struct {
	http    *httpx.Client
	apiKey  string
	baseURL string
	model   string
}

func NewLLM(cfg LLMConfig) (*LLM, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("llm extractor requires an api key")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultLLMBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultLLMModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &LLM{
		http:    httpx.New(timeout, cfg.Retries),
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const extractionSystemPrompt = "You extract structured parameters from a conversation. " +
	"Respond with exactly one JSON object matching the requested schema. " +
	"Use null for values the conversation does not provide. Never invent addresses or amounts."

func (l *LLM) Extract(ctx context.Context, conversation, instructions string, out any) error {
	payload, err := json.Marshal(chatRequest{
		Model: l.model,
		Messages: []chatMessage{
			{Role: "system", Content: extractionSystemPrompt},
			{Role: "system", Content: instructions},
			{Role: "user", Content: conversation},
		},
		Temperature:    0,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return fmt.Errorf("encode extraction request: %w", err)
	}

	headers := map[string]string{"Authorization": "Bearer " + l.apiKey}
	var resp chatResponse
	if _, err := httpx.DoBodyJSON(ctx, l.http, http.MethodPost, l.baseURL+"/chat/completions", payload, headers, &resp); err != nil {
		return err
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("extraction response has no choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return fmt.Errorf("extraction response is empty")
	}
	content = stripCodeFence(content)
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("decode extracted parameters: %w", err)
	}
	return nil
}

// Models occasionally wrap JSON in a markdown fence despite instructions.
func stripCodeFence(s string) string {
	clean := strings.TrimSpace(s)
	if !strings.HasPrefix(clean, "```") {
		return clean
	}
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	return strings.TrimSpace(clean)
}
