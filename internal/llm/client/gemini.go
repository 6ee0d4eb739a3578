package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	genai "google.golang.org/genai"

	"f2b/internal/llm"
)

// GeminiClient is a thin wrapper around the official genai client.
type GeminiClient struct {
	cli   *genai.Client
	model string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	if model == "" {
		model = "gemini-2.5-pro"
	}
	return &GeminiClient{cli: cli, model: model}, nil
}

func (g *GeminiClient) Name() string     { return "gemini:" + g.model }
func (g *GeminiClient) Provider() string { return "gemini" }
func (g *GeminiClient) Model() string    { return g.model }
func (g *GeminiClient) Close() error     { return nil }

func (g *GeminiClient) config(req llm.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if strings.TrimSpace(req.System) != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	temp := float32(req.Temperature)
	cfg.Temperature = &temp
	if req.ThinkingBudget > 0 {
		budget := int32(req.ThinkingBudget)
		cfg.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true, ThinkingBudget: &budget}
	}
	return cfg
}

func (g *GeminiClient) contents(req llm.Request) []*genai.Content {
	return []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: req.Prompt}}}}
}

// split separates answer parts from thought parts of one response.
func split(resp *genai.GenerateContentResponse) (text, thinking string) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ""
	}
	var t, th strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil {
			continue
		}
		if p.Thought {
			th.WriteString(p.Text)
			continue
		}
		t.WriteString(p.Text)
	}
	return t.String(), th.String()
}

func (g *GeminiClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	resp, err := g.cli.Models.GenerateContent(ctx, g.model, g.contents(req), g.config(req))
	if err != nil {
		return nil, fmt.Errorf("gemini: generate: %w", err)
	}
	text, thinking := split(resp)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("gemini: %w", llm.ErrEmptyCompletion)
	}
	out := &llm.Response{Text: text, Thinking: thinking, Provider: "gemini", Model: g.model}
	if resp.UsageMetadata != nil {
		out.RawUsage, _ = json.Marshal(resp.UsageMetadata)
	}
	return out, nil
}

func (g *GeminiClient) CompleteStream(ctx context.Context, req llm.Request, onChunk func(llm.StreamChunk)) (*llm.Response, error) {
	var text, thinking strings.Builder
	out := &llm.Response{Provider: "gemini", Model: g.model}
	for resp, err := range g.cli.Models.GenerateContentStream(ctx, g.model, g.contents(req), g.config(req)) {
		if err != nil {
			return nil, fmt.Errorf("gemini: stream: %w", err)
		}
		t, th := split(resp)
		if th != "" {
			thinking.WriteString(th)
			emit(onChunk, llm.StreamReasoning, th)
		}
		if t != "" {
			text.WriteString(t)
			emit(onChunk, llm.StreamAnswer, t)
		}
		if resp != nil && resp.UsageMetadata != nil {
			out.RawUsage, _ = json.Marshal(resp.UsageMetadata)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("gemini: %w", llm.ErrEmptyCompletion)
	}
	out.Text = text.String()
	out.Thinking = thinking.String()
	return out, nil
}
