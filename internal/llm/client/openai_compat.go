package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"resty.dev/v3"

	"f2b/internal/httpclient"
	"f2b/internal/llm"
)

// OpenAICompatClient speaks the OpenAI Chat Completions protocol. It serves
// both OpenAI and Groq, which exposes the same API under another base URL.
type OpenAICompatClient struct {
	http     *resty.Client
	provider string
	apiKey   string
	model    string
	baseURL  string
}

// NewOpenAICompatClient creates a client for provider ("openai", "groq").
func NewOpenAICompatClient(provider, baseURL, apiKey, model string, timeout time.Duration) (*OpenAICompatClient, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%s: api key is required", provider)
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("%s: model is required", provider)
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAICompatClient{
		http:     httpclient.NewClient(provider, timeout),
		provider: provider,
		apiKey:   apiKey,
		model:    model,
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}, nil
}

func (c *OpenAICompatClient) Name() string     { return c.provider + ":" + c.model }
func (c *OpenAICompatClient) Provider() string { return c.provider }
func (c *OpenAICompatClient) Model() string    { return c.model }
func (c *OpenAICompatClient) Close() error     { return nil }

func (c *OpenAICompatClient) buildRequest(req llm.Request, stream bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})
	out := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
	if req.JSON {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	if stream {
		out.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return out
}

func (c *OpenAICompatClient) prepare(ctx context.Context) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+c.apiKey)
}

func (c *OpenAICompatClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	var out openai.ChatCompletionResponse
	resp, err := c.prepare(ctx).
		SetBody(c.buildRequest(req, false)).
		SetResult(&out).
		Post(c.baseURL + "/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("%s: request: %w", c.provider, err)
	}
	if resp.IsError() {
		return nil, c.statusError(resp.StatusCode(), resp.String())
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return nil, fmt.Errorf("%s: %w", c.provider, llm.ErrEmptyCompletion)
	}
	usage, _ := json.Marshal(out.Usage)
	return &llm.Response{
		Text:     out.Choices[0].Message.Content,
		Thinking: out.Choices[0].Message.ReasoningContent,
		Provider: c.provider,
		Model:    firstNonEmpty(out.Model, c.model),
		RawUsage: usage,
	}, nil
}

type openAIStreamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
			Reasoning        string `json:"reasoning"`
		} `json:"delta"`
	} `json:"choices"`
	Usage json.RawMessage `json:"usage"`
	// Groq reports usage of streamed requests under x_groq.
	XGroq *struct {
		Usage json.RawMessage `json:"usage"`
	} `json:"x_groq"`
}

func (c *OpenAICompatClient) CompleteStream(ctx context.Context, req llm.Request, onChunk func(llm.StreamChunk)) (*llm.Response, error) {
	resp, err := c.prepare(ctx).
		SetHeader("Accept", "text/event-stream").
		SetBody(c.buildRequest(req, true)).
		SetDoNotParseResponse(true).
		Post(c.baseURL + "/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("%s: stream request: %w", c.provider, err)
	}
	if resp.RawResponse == nil || resp.RawResponse.Body == nil {
		return nil, fmt.Errorf("%s: stream: empty response body", c.provider)
	}
	body := resp.RawResponse.Body
	defer body.Close()
	if resp.IsError() {
		b, _ := io.ReadAll(io.LimitReader(body, 2048))
		return nil, c.statusError(resp.StatusCode(), string(b))
	}

	var text, thinking strings.Builder
	out := &llm.Response{Provider: c.provider, Model: c.model}
	err = readSSE(body, func(_, data string) error {
		if data == "[DONE]" {
			return errStopStream
		}
		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil
		}
		if chunk.Model != "" {
			out.Model = chunk.Model
		}
		if len(chunk.Usage) > 0 && string(chunk.Usage) != "null" {
			out.RawUsage = chunk.Usage
		} else if chunk.XGroq != nil && len(chunk.XGroq.Usage) > 0 {
			out.RawUsage = chunk.XGroq.Usage
		}
		for _, ch := range chunk.Choices {
			if r := firstNonEmpty(ch.Delta.ReasoningContent, ch.Delta.Reasoning); r != "" {
				thinking.WriteString(r)
				emit(onChunk, llm.StreamReasoning, r)
			}
			if ch.Delta.Content != "" {
				text.WriteString(ch.Delta.Content)
				emit(onChunk, llm.StreamAnswer, ch.Delta.Content)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: read stream: %w", c.provider, err)
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("%s: %w", c.provider, llm.ErrEmptyCompletion)
	}
	out.Text = text.String()
	out.Thinking = thinking.String()
	return out, nil
}

func (c *OpenAICompatClient) statusError(code int, body string) error {
	body = truncate(body, 2048)
	err := fmt.Errorf("%s: unexpected status %d %s: %s", c.provider, code, http.StatusText(code), body)
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return llm.NewPermanentError(err)
	case code == http.StatusBadRequest && strings.Contains(body, "context_length_exceeded"):
		return llm.NewPermanentError(err)
	}
	return err
}

func emit(onChunk func(llm.StreamChunk), kind llm.StreamKind, text string) {
	if onChunk != nil {
		onChunk(llm.StreamChunk{Kind: kind, Text: text})
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
