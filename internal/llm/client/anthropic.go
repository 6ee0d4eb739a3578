package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"resty.dev/v3"

	"f2b/internal/httpclient"
	"f2b/internal/llm"
)

// AnthropicClient calls the Messages API. Streaming separates text_delta
// from thinking_delta content blocks.
type AnthropicClient struct {
	http           *resty.Client
	apiKey         string
	model          string
	baseURL        string
	version        string
	maxTokens      int
	thinkingBudget int
}

type AnthropicConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Version        string
	MaxTokens      int
	ThinkingBudget int
	Timeout        time.Duration
}

func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("anthropic: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.Version == "" {
		cfg.Version = "2023-06-01"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 17000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	return &AnthropicClient{
		http:           httpclient.NewClient("anthropic", cfg.Timeout),
		apiKey:         cfg.APIKey,
		model:          cfg.Model,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		version:        cfg.Version,
		maxTokens:      cfg.MaxTokens,
		thinkingBudget: cfg.ThinkingBudget,
	}, nil
}

func (c *AnthropicClient) Name() string     { return "anthropic:" + c.model }
func (c *AnthropicClient) Provider() string { return "anthropic" }
func (c *AnthropicClient) Model() string    { return c.model }
func (c *AnthropicClient) Close() error     { return nil }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Stream      bool               `json:"stream,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	Thinking    *anthropicThinking `json:"thinking,omitempty"`
}

type anthropicContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`
}

type anthropicResponse struct {
	Model   string                  `json:"model"`
	Content []anthropicContentBlock `json:"content"`
	Usage   json.RawMessage         `json:"usage"`
}

// The API rejects thinking budgets below 1024 tokens.
const minThinkingBudget = 1024

func (c *AnthropicClient) buildRequest(req llm.Request, stream bool) anthropicRequest {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	out := anthropicRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages:  []anthropicMessage{{Role: "user", Content: req.Prompt}},
		Stream:    stream,
	}
	budget := req.ThinkingBudget
	if budget == 0 {
		budget = c.thinkingBudget
	}
	if budget > minThinkingBudget && budget < maxTokens {
		out.Thinking = &anthropicThinking{Type: "enabled", BudgetTokens: budget}
	} else {
		t := req.Temperature
		out.Temperature = &t
	}
	return out
}

func (c *AnthropicClient) prepare(ctx context.Context) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-api-key", c.apiKey).
		SetHeader("anthropic-version", c.version)
}

func (c *AnthropicClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	var out anthropicResponse
	resp, err := c.prepare(ctx).
		SetBody(c.buildRequest(req, false)).
		SetResult(&out).
		Post(c.baseURL + "/v1/messages")
	if err != nil {
		return nil, fmt.Errorf("anthropic: request: %w", err)
	}
	if resp.IsError() {
		return nil, anthropicStatusError(resp.StatusCode(), resp.String())
	}
	var text, thinking strings.Builder
	for _, b := range out.Content {
		switch b.Type {
		case "text":
			text.WriteString(b.Text)
		case "thinking":
			thinking.WriteString(b.Thinking)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("anthropic: %w", llm.ErrEmptyCompletion)
	}
	return &llm.Response{
		Text:     text.String(),
		Thinking: thinking.String(),
		Provider: "anthropic",
		Model:    firstNonEmpty(out.Model, c.model),
		RawUsage: out.Usage,
	}, nil
}

type anthropicEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Model string         `json:"model"`
		Usage map[string]int `json:"usage"`
	} `json:"message"`
	Delta *struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		Thinking string `json:"thinking"`
	} `json:"delta"`
	Usage map[string]int `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *AnthropicClient) CompleteStream(ctx context.Context, req llm.Request, onChunk func(llm.StreamChunk)) (*llm.Response, error) {
	resp, err := c.prepare(ctx).
		SetHeader("Accept", "text/event-stream").
		SetBody(c.buildRequest(req, true)).
		SetDoNotParseResponse(true).
		Post(c.baseURL + "/v1/messages")
	if err != nil {
		return nil, fmt.Errorf("anthropic: stream request: %w", err)
	}
	if resp.RawResponse == nil || resp.RawResponse.Body == nil {
		return nil, fmt.Errorf("anthropic: stream: empty response body")
	}
	body := resp.RawResponse.Body
	defer body.Close()
	if resp.IsError() {
		b, _ := io.ReadAll(io.LimitReader(body, 2048))
		return nil, anthropicStatusError(resp.StatusCode(), string(b))
	}

	var text, thinking strings.Builder
	usage := map[string]int{}
	out := &llm.Response{Provider: "anthropic", Model: c.model}
	err = readSSE(body, func(_, data string) error {
		var ev anthropicEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil
		}
		switch ev.Type {
		case "message_start":
			if ev.Message != nil {
				if ev.Message.Model != "" {
					out.Model = ev.Message.Model
				}
				for k, v := range ev.Message.Usage {
					usage[k] = v
				}
			}
		case "content_block_delta":
			if ev.Delta == nil {
				return nil
			}
			switch ev.Delta.Type {
			case "text_delta":
				text.WriteString(ev.Delta.Text)
				emit(onChunk, llm.StreamAnswer, ev.Delta.Text)
			case "thinking_delta":
				thinking.WriteString(ev.Delta.Thinking)
				emit(onChunk, llm.StreamReasoning, ev.Delta.Thinking)
			}
		case "message_delta":
			for k, v := range ev.Usage {
				usage[k] = v
			}
		case "error":
			msg := "stream error"
			if ev.Error != nil {
				msg = ev.Error.Type + ": " + ev.Error.Message
			}
			return fmt.Errorf("anthropic: %s", msg)
		case "message_stop":
			return errStopStream
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("anthropic: %w", llm.ErrEmptyCompletion)
	}
	out.Text = text.String()
	out.Thinking = thinking.String()
	out.RawUsage, _ = json.Marshal(usage)
	return out, nil
}

func anthropicStatusError(code int, body string) error {
	err := fmt.Errorf("anthropic: unexpected status %d %s: %s", code, http.StatusText(code), truncate(body, 2048))
	if code == http.StatusBadRequest || code == http.StatusUnauthorized || code == http.StatusForbidden {
		return llm.NewPermanentError(err)
	}
	return err
}
