package collection

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"f2b/internal/apperr"
	"f2b/internal/llm"
	"f2b/internal/reqctx"
	"f2b/internal/types"
	"f2b/internal/util/jsonutil"
)

// Generator writes postman_collection.json for a project and returns its
// path. files is nil when the generator runs before code generation.
type Generator interface {
	Generate(ctx context.Context, project *types.Project, endpoints []types.Endpoint, files []types.GeneratedFile) (string, error)
}

// NeedsCode reports whether g reads the generated files.
func NeedsCode(g Generator) bool {
	_, ok := g.(*LLMGenerator)
	return ok
}

const llmSystemPrompt = `You are a senior backend architect for Node.js APIs.
You receive a JSON array of Express route files (src/routes/) and model files
(src/models/). Produce a Postman Collection v2.1 covering every route:
one folder per top-level router, one request per route with method, URL
({{baseUrl}}/api/...), headers and an example body derived from the model.
Define a collection variable baseUrl = http://localhost:5000 and script the
auth flow (signup, login, capture token, reuse it).

Answer only with JSON: {"postman_collection": { ... }}`

const llmUserPromptTmpl = `Route and model files:
%s`

// LLMGenerator asks the model to write the collection from generated routes
// and models.
type LLMGenerator struct {
	llm llm.CompletionProvider
	log zerolog.Logger
}

func NewLLMGenerator(p llm.CompletionProvider, log zerolog.Logger) *LLMGenerator {
	return &LLMGenerator{llm: p, log: log}
}

// RouteAndModelFiles keeps files under src/models/ and src/routes/.
func RouteAndModelFiles(files []types.GeneratedFile) []types.GeneratedFile {
	var out []types.GeneratedFile
	for _, f := range files {
		if strings.HasPrefix(f.FilePath, "src/models/") || strings.HasPrefix(f.FilePath, "src/routes/") {
			out = append(out, f)
		}
	}
	return out
}

func (g *LLMGenerator) Generate(ctx context.Context, project *types.Project, _ []types.Endpoint, files []types.GeneratedFile) (string, error) {
	ctx = reqctx.WithStage(ctx, "collection")
	selected := RouteAndModelFiles(files)
	if len(selected) == 0 {
		return "", apperr.InvalidInput("no route or model files to build a collection from")
	}
	body, err := jsonutil.MarshalNoEscapeIndent(selected, "", "  ")
	if err != nil {
		return "", fmt.Errorf("collection: encode files: %w", err)
	}
	resp, err := g.llm.Complete(ctx, llm.Request{
		System: llmSystemPrompt,
		Prompt: fmt.Sprintf(llmUserPromptTmpl, body),
		JSON:   true,
	})
	if err != nil {
		return "", apperr.LLMCall("collection generation failed", err)
	}
	coll, err := ParseAnswer(resp.Text)
	if err != nil {
		return "", err
	}
	path := filepath.Join(project.Dir, FileCollection)
	if err := jsonutil.WriteFile(path, coll); err != nil {
		return "", apperr.Persistence("write "+FileCollection, err)
	}
	g.log.Info().Str("project_id", project.ID).Int("files", len(selected)).Msg("collection: written by model")
	return path, nil
}

// ParseAnswer extracts the postman_collection object from a model answer.
func ParseAnswer(text string) (json.RawMessage, error) {
	raw, err := jsonutil.ExtractFirstObject(jsonutil.StripCodeFence(text))
	if err != nil {
		return nil, apperr.LLMParse("collection answer has no JSON object", err)
	}
	var env struct {
		Collection json.RawMessage `json:"postman_collection"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperr.LLMParse("collection answer is malformed", err)
	}
	c := strings.TrimSpace(string(env.Collection))
	if c == "" || c == "null" || !strings.HasPrefix(c, "{") {
		return nil, apperr.LLMParse("collection answer lacks postman_collection", nil)
	}
	return env.Collection, nil
}
