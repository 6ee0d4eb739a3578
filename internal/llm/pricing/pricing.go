// Package pricing turns provider usage payloads into token counts and cost.
package pricing

import (
	"encoding/json"
	"sort"
	"strings"
)

// Tokens is the provider-neutral token breakdown of one completion.
type Tokens struct {
	Input      int `json:"input_tokens"`
	Output     int `json:"output_tokens"`
	CacheWrite int `json:"cache_write_tokens,omitempty"`
	CacheRead  int `json:"cache_read_tokens,omitempty"`
}

func (t Tokens) Total() int { return t.Input + t.Output + t.CacheWrite + t.CacheRead }

// Parser extracts Tokens from a provider's raw usage payload.
type Parser func(raw json.RawMessage) Tokens

// Rate is USD per one million tokens.
type Rate struct {
	Input      float64
	Output     float64
	CacheWrite float64
	CacheRead  float64
}

// Pricer computes USD cost for a model. ok is false for unknown models.
type Pricer func(model string, t Tokens) (usd float64, ok bool)

// Table bundles per-provider parsers and pricers.
type Table struct {
	Parsers map[string]Parser
	Pricers map[string]Pricer
}

// Parse returns the token counts for provider, or zero when unknown.
func (tb Table) Parse(provider string, raw json.RawMessage) Tokens {
	if p, ok := tb.Parsers[strings.ToLower(provider)]; ok && len(raw) > 0 {
		return p(raw)
	}
	return Tokens{}
}

// Cost returns the USD cost for provider/model.
func (tb Table) Cost(provider, model string, t Tokens) (float64, bool) {
	if p, ok := tb.Pricers[strings.ToLower(provider)]; ok {
		return p(model, t)
	}
	return 0, false
}

// Default is the built-in table.
func Default() Table {
	return Table{
		Parsers: map[string]Parser{
			"openai":    parseOpenAI,
			"groq":      parseOpenAI,
			"anthropic": parseAnthropic,
			"gemini":    parseGemini,
		},
		Pricers: map[string]Pricer{
			"openai":    cachedInputPricer(openAIRates),
			"groq":      cachedInputPricer(groqRates),
			"anthropic": additivePricer(anthropicRates),
			"gemini":    cachedInputPricer(geminiRates),
		},
	}
}

var openAIRates = map[string]Rate{
	"gpt-4o":       {Input: 2.5, CacheRead: 1.25, Output: 10},
	"gpt-4o-mini":  {Input: 0.15, CacheRead: 0.075, Output: 0.6},
	"gpt-4.1":      {Input: 2, CacheRead: 0.5, Output: 8},
	"gpt-4.1-mini": {Input: 0.4, CacheRead: 0.1, Output: 1.6},
}

var anthropicRates = map[string]Rate{
	"claude-3-7-sonnet": {Input: 3, Output: 15, CacheWrite: 3.75, CacheRead: 0.3},
	"claude-3-5-haiku":  {Input: 0.8, Output: 4, CacheWrite: 1, CacheRead: 0.08},
}

var groqRates = map[string]Rate{
	"meta-llama/llama-4-maverick-17b-128e-instruct": {Input: 0.20, Output: 0.60},
	"llama-3.3-70b-versatile":                       {Input: 0.59, Output: 0.79},
}

var geminiRates = map[string]Rate{
	"gemini-2.5-pro":   {Input: 1.25, CacheRead: 0.31, Output: 10},
	"gemini-2.5-flash": {Input: 0.3, CacheRead: 0.075, Output: 2.5},
}

// lookup matches the longest rate key that prefixes model, so dated
// snapshots ("claude-3-7-sonnet-20250219") resolve to their family.
func lookup(rates map[string]Rate, model string) (Rate, bool) {
	model = strings.ToLower(strings.TrimSpace(model))
	if r, ok := rates[model]; ok {
		return r, true
	}
	keys := make([]string, 0, len(rates))
	for k := range rates {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	for _, k := range keys {
		if strings.HasPrefix(model, k) {
			return rates[k], true
		}
	}
	return Rate{}, false
}

// cachedInputPricer: cached tokens are a subset of input tokens.
func cachedInputPricer(rates map[string]Rate) Pricer {
	return func(model string, t Tokens) (float64, bool) {
		r, ok := lookup(rates, model)
		if !ok {
			return 0, false
		}
		cached := t.CacheRead
		if cached > t.Input {
			cached = t.Input
		}
		cacheRate := r.CacheRead
		if cacheRate == 0 {
			cacheRate = r.Input
		}
		usd := float64(t.Input-cached)*r.Input + float64(cached)*cacheRate + float64(t.Output)*r.Output
		return usd / 1_000_000, true
	}
}

// additivePricer: cache tokens are reported separately from input tokens.
func additivePricer(rates map[string]Rate) Pricer {
	return func(model string, t Tokens) (float64, bool) {
		r, ok := lookup(rates, model)
		if !ok {
			return 0, false
		}
		usd := float64(t.Input)*r.Input +
			float64(t.Output)*r.Output +
			float64(t.CacheWrite)*r.CacheWrite +
			float64(t.CacheRead)*r.CacheRead
		return usd / 1_000_000, true
	}
}

func parseOpenAI(raw json.RawMessage) Tokens {
	var u struct {
		PromptTokens        int `json:"prompt_tokens"`
		CompletionTokens    int `json:"completion_tokens"`
		PromptTokensDetails *struct {
			CachedTokens int `json:"cached_tokens"`
		} `json:"prompt_tokens_details"`
	}
	if json.Unmarshal(raw, &u) != nil {
		return Tokens{}
	}
	t := Tokens{Input: u.PromptTokens, Output: u.CompletionTokens}
	if u.PromptTokensDetails != nil {
		t.CacheRead = u.PromptTokensDetails.CachedTokens
	}
	return t
}

func parseAnthropic(raw json.RawMessage) Tokens {
	var u struct {
		InputTokens              int `json:"input_tokens"`
		OutputTokens             int `json:"output_tokens"`
		CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
		CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	}
	if json.Unmarshal(raw, &u) != nil {
		return Tokens{}
	}
	return Tokens{
		Input:      u.InputTokens,
		Output:     u.OutputTokens,
		CacheWrite: u.CacheCreationInputTokens,
		CacheRead:  u.CacheReadInputTokens,
	}
}

func parseGemini(raw json.RawMessage) Tokens {
	var u struct {
		PromptTokenCount        int `json:"promptTokenCount"`
		CandidatesTokenCount    int `json:"candidatesTokenCount"`
		ThoughtsTokenCount      int `json:"thoughtsTokenCount"`
		CachedContentTokenCount int `json:"cachedContentTokenCount"`
	}
	if json.Unmarshal(raw, &u) != nil {
		return Tokens{}
	}
	return Tokens{
		Input:     u.PromptTokenCount,
		Output:    u.CandidatesTokenCount + u.ThoughtsTokenCount,
		CacheRead: u.CachedContentTokenCount,
	}
}
