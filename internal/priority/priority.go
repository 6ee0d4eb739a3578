// Package priority orders endpoints so that ones without data dependencies
// are implemented first.
package priority

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"f2b/internal/apperr"
	"f2b/internal/llm"
	"f2b/internal/reqctx"
	"f2b/internal/types"
	"f2b/internal/util/jsonutil"
)

const (
	FileRaw    = "priority_end_points.json"
	FileSorted = "sorted_endpoints.json"
)

const systemPrompt = `You plan the implementation order of a REST backend.
Given a JSON list of endpoints, order them so that endpoints with no dependency
on data created by other endpoints come first, followed by those that build on
earlier ones. Do not write any code.

Answer only with JSON:
{"end_points": [{"endpoint_name": "<endpointName as given>", "method": "<METHOD>"}]}`

const userPromptTmpl = `Order these endpoints for implementation:

%s`

type Orderer struct {
	llm llm.CompletionProvider
	log zerolog.Logger
}

func New(p llm.CompletionProvider, log zerolog.Logger) *Orderer {
	return &Orderer{llm: p, log: log}
}

// Order asks the model for an implementation order and re-sorts the input
// by it. A failed call is fatal; a malformed answer keeps the input order.
func (o *Orderer) Order(ctx context.Context, project *types.Project, endpoints []types.Endpoint) ([]types.Endpoint, error) {
	ctx = reqctx.WithStage(ctx, "priority")

	list := make([]types.Endpoint, len(endpoints))
	for i, e := range endpoints {
		list[i] = e.WithoutSamples()
	}
	body, err := jsonutil.MarshalNoEscapeIndent(types.EndpointList{Endpoints: list}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("priority: encode endpoints: %w", err)
	}
	resp, err := o.llm.Complete(ctx, llm.Request{
		System: systemPrompt,
		Prompt: fmt.Sprintf(userPromptTmpl, body),
		JSON:   true,
	})
	if err != nil {
		return nil, apperr.LLMCall("priority ordering failed", err)
	}

	raw := parseAnswer(resp.Text)
	if err := jsonutil.WriteFile(filepath.Join(project.Dir, FileRaw), raw); err != nil {
		return nil, apperr.Persistence("write "+FileRaw, err)
	}
	sorted := SortByPriority(endpoints, raw)
	if err := jsonutil.WriteFile(filepath.Join(project.Dir, FileSorted), types.EndpointList{Endpoints: sorted}); err != nil {
		return nil, apperr.Persistence("write "+FileSorted, err)
	}
	o.log.Info().Str("project_id", project.ID).Int("ranked", len(Index(raw))).Int("endpoints", len(sorted)).Msg("priority: ordered")
	return sorted, nil
}

// parseAnswer returns the answer's JSON document, or the answer as a JSON
// string when it holds none.
func parseAnswer(text string) json.RawMessage {
	s := jsonutil.StripCodeFence(text)
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	if raw, err := jsonutil.ExtractFirstObject(s); err == nil {
		return raw
	}
	if raw, err := jsonutil.ExtractFirstArray(s); err == nil {
		return raw
	}
	b, _ := json.Marshal(text)
	return b
}

// Key is the priority key of an endpoint: "<endpointName>_<METHOD>".
func Key(name, method string) string {
	return types.NewEndpointKey(name, method).String()
}

// Index maps priority keys to their position in raw. raw may be a list or
// {"end_points": [...]}; entries are {endpoint_name, method} objects or
// plain strings. Anything else is skipped. The first position of a key wins.
func Index(raw json.RawMessage) map[string]int {
	idx := make(map[string]int)
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		var env struct {
			EndPoints []json.RawMessage `json:"end_points"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			return idx
		}
		entries = env.EndPoints
	}
	for i, e := range entries {
		var obj struct {
			EndpointName *string `json:"endpoint_name"`
			Method       string  `json:"method"`
		}
		var key string
		if err := json.Unmarshal(e, &obj); err == nil && obj.EndpointName != nil {
			key = Key(*obj.EndpointName, obj.Method)
		} else {
			var s string
			if err := json.Unmarshal(e, &s); err != nil {
				continue
			}
			key = strings.TrimSpace(s)
		}
		if _, seen := idx[key]; !seen {
			idx[key] = i
		}
	}
	return idx
}

// SortByPriority returns a stable re-ordering of endpoints by their position
// in raw. Endpoints raw does not mention sort last in their original order;
// none are ever dropped.
func SortByPriority(endpoints []types.Endpoint, raw json.RawMessage) []types.Endpoint {
	idx := Index(raw)
	rank := func(e types.Endpoint) float64 {
		if p, ok := idx[e.Key().String()]; ok {
			return float64(p)
		}
		return math.Inf(1)
	}
	out := types.CloneEndpoints(endpoints)
	sort.SliceStable(out, func(i, j int) bool { return rank(out[i]) < rank(out[j]) })
	return out
}
