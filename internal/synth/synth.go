// Package synth turns the ordered endpoint set into a generated backend
// codebase with one streamed completion.
package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"f2b/internal/apperr"
	"f2b/internal/llm"
	"f2b/internal/reqctx"
	"f2b/internal/types"
	"f2b/internal/util/jsonutil"
)

const FileFinalCode = "final_code.json"

const (
	TemplateAuth     = "auth"
	TemplateDatabase = "database"
)

// summary is the per-endpoint view sent to the model.
type summary struct {
	EndpointName   string                `json:"endpointName"`
	Method         string                `json:"method"`
	Path           string                `json:"path"`
	Description    string                `json:"description"`
	AuthRequired   bool                  `json:"authRequired"`
	Request        types.Fields          `json:"request,omitempty"`
	Response       types.Fields          `json:"response,omitempty"`
	DatabaseSchema *types.DatabaseSchema `json:"database_schema,omitempty"`
}

// Progress observes streamed output. answer and reasoning are running byte
// counts.
type Progress func(answer, reasoning int)

type Synthesizer struct {
	llm       llm.CompletionProvider
	templates TemplateStore
	log       zerolog.Logger
	progress  Progress
}

func New(p llm.CompletionProvider, templates TemplateStore, log zerolog.Logger) *Synthesizer {
	return &Synthesizer{llm: p, templates: templates, log: log}
}

func (s *Synthesizer) OnProgress(fn Progress) { s.progress = fn }

// Synthesize generates the codebase for endpoints, persists it as
// final_code.json in project.Dir and returns the files and that path.
func (s *Synthesizer) Synthesize(ctx context.Context, project *types.Project, endpoints []types.Endpoint) ([]types.GeneratedFile, string, error) {
	ctx = reqctx.WithStage(ctx, "code_generation")
	log := s.log.With().Str("project_id", project.ID).Logger()

	prompt, err := s.buildPrompt(project, endpoints)
	if err != nil {
		return nil, "", err
	}

	var answer strings.Builder
	var reasoning int
	_, err = s.llm.CompleteStream(ctx, llm.Request{System: systemPrompt, Prompt: prompt}, func(c llm.StreamChunk) {
		switch c.Kind {
		case llm.StreamReasoning:
			reasoning += len(c.Text)
		default:
			answer.WriteString(c.Text)
		}
		if s.progress != nil {
			s.progress(answer.Len(), reasoning)
		}
	})
	if err != nil {
		return nil, "", apperr.LLMCall("code generation failed", err)
	}
	log.Info().Int("answer_bytes", answer.Len()).Int("reasoning_bytes", reasoning).Msg("synth: stream finished")

	files, err := ParseFiles(answer.String())
	if err != nil {
		return nil, "", err
	}
	files = dedupe(files, log)

	out := filepath.Join(project.Dir, FileFinalCode)
	if err := jsonutil.WriteFile(out, files); err != nil {
		return nil, "", apperr.Persistence("write "+FileFinalCode, err)
	}
	log.Info().Int("files", len(files)).Str("path", out).Msg("synth: codebase written")
	return files, out, nil
}

func (s *Synthesizer) buildPrompt(project *types.Project, endpoints []types.Endpoint) (string, error) {
	items := make([]summary, len(endpoints))
	for i, e := range endpoints {
		items[i] = summary{
			EndpointName:   e.EndpointName,
			Method:         e.Method,
			Path:           e.RoutePath(),
			Description:    e.Description,
			AuthRequired:   e.AuthRequired,
			Request:        e.Payload,
			Response:       e.Response,
			DatabaseSchema: e.DatabaseSchema,
		}
	}
	body, err := jsonutil.MarshalNoEscapeIndent(items, "", "  ")
	if err != nil {
		return "", fmt.Errorf("synth: encode summary: %w", err)
	}
	name := project.RepoName
	if name == "" {
		name = project.ID
	}
	return fmt.Sprintf(codebasePromptTmpl, name, body,
		referenceSection("Authentication", s.template(TemplateAuth)),
		referenceSection("Database", s.template(TemplateDatabase))), nil
}

// template loads a reference set; a missing set just leaves the section out.
func (s *Synthesizer) template(name string) []types.GeneratedFile {
	if s.templates == nil {
		return nil
	}
	files, err := s.templates.Load(name)
	if err != nil {
		ev := s.log.Warn()
		if errors.Is(err, os.ErrNotExist) {
			ev = s.log.Debug()
		}
		ev.Err(err).Str("template", name).Msg("synth: template unavailable")
		return nil
	}
	return files
}

// ParseFiles decodes the model answer into generated files. The answer must
// be a JSON array whose items all carry file_path and code.
func ParseFiles(text string) ([]types.GeneratedFile, error) {
	s := jsonutil.StripCodeFence(text)
	if s == "" {
		return nil, apperr.GenerationParse("empty code generation answer", nil)
	}
	raw := json.RawMessage(s)
	if !json.Valid(raw) {
		var err error
		if raw, err = jsonutil.ExtractFirstArray(s); err != nil {
			return nil, apperr.GenerationParse("code generation answer is not a JSON array", err)
		}
	}
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, apperr.GenerationParse("code generation answer is not an array of objects", err)
	}
	files := make([]types.GeneratedFile, 0, len(items))
	for i, it := range items {
		var f types.GeneratedFile
		for _, k := range []string{"file_path", "code"} {
			v, ok := it[k]
			if !ok {
				return nil, apperr.GenerationParse(fmt.Sprintf("file %d is missing %q", i, k), nil)
			}
			dst := &f.FilePath
			if k == "code" {
				dst = &f.Code
			}
			if err := json.Unmarshal(v, dst); err != nil {
				return nil, apperr.GenerationParse(fmt.Sprintf("file %d: %q is not a string", i, k), err)
			}
		}
		files = append(files, f)
	}
	return files, nil
}

// dedupe keeps one entry per path. The last code wins and keeps the
// position of the first occurrence.
func dedupe(files []types.GeneratedFile, log zerolog.Logger) []types.GeneratedFile {
	pos := make(map[string]int, len(files))
	out := make([]types.GeneratedFile, 0, len(files))
	for _, f := range files {
		if i, ok := pos[f.FilePath]; ok {
			log.Warn().Str("file_path", f.FilePath).Msg("synth: duplicate file path, keeping last")
			out[i] = f
			continue
		}
		pos[f.FilePath] = len(out)
		out = append(out, f)
	}
	return out
}
