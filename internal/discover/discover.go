// Package discover infers the REST surface a frontend needs by asking an
// LLM about each selected file and merging the answers.
package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"f2b/internal/apperr"
	"f2b/internal/errorsink"
	"f2b/internal/llm"
	"f2b/internal/reqctx"
	"f2b/internal/safeio"
	"f2b/internal/scan"
	"f2b/internal/types"
	"f2b/internal/util/jsonutil"
)

const (
	FileWithSamples    = "endpoints.json"
	FileWithoutSamples = "endpoints_no_samples.json"
)

// Result is the merged endpoint set and the paths of its two persisted views.
type Result struct {
	Endpoints          []types.Endpoint
	WithSamplesPath    string
	WithoutSamplesPath string
	FilesAnalyzed      int
}

// Progress is called after each file with the running totals.
type Progress func(done, total int, file string, endpoints int)

type Discoverer struct {
	llm      llm.CompletionProvider
	sink     errorsink.Sink
	opts     scan.Options
	log      zerolog.Logger
	progress Progress
}

func New(p llm.CompletionProvider, sink errorsink.Sink, opts scan.Options, log zerolog.Logger) *Discoverer {
	if sink == nil {
		sink = errorsink.Nop{}
	}
	return &Discoverer{llm: p, sink: sink, opts: opts, log: log}
}

// OnProgress registers a per-file progress callback.
func (d *Discoverer) OnProgress(fn Progress) { d.progress = fn }

// Discover analyzes the selected files of project one at a time so each call
// sees the endpoints accumulated so far. Per-file failures are recorded and
// skipped.
func (d *Discoverer) Discover(ctx context.Context, project *types.Project) (*Result, error) {
	ctx = reqctx.WithStage(ctx, "discovery")
	log := d.log.With().Str("project_id", project.ID).Logger()

	fsys, err := safeio.NewSafeFS(project.RepoPath)
	if err != nil {
		return nil, apperr.InvalidInput("repository path does not exist: %s", project.RepoPath)
	}
	files, err := scan.Select(ctx, fsys.Root(), d.opts, log)
	if err != nil {
		return nil, fmt.Errorf("discover: select files: %w", err)
	}
	log.Info().Int("files", len(files)).Msg("discover: analyzing files")

	merger := NewMerger()
	analyzed := 0
	for i, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found, err := d.analyzeFile(ctx, fsys, rel, merger.Endpoints())
		if err != nil {
			d.sink.Record(ctx, err.Error(), map[string]any{"file": rel})
			log.Warn().Err(err).Str("file", rel).Msg("discover: file skipped")
		} else {
			analyzed++
			merger.Merge(found)
		}
		if d.progress != nil {
			d.progress(i+1, len(files), rel, merger.Len())
		}
	}

	endpoints := merger.Endpoints()
	res := &Result{
		Endpoints:          endpoints,
		WithSamplesPath:    filepath.Join(project.Dir, FileWithSamples),
		WithoutSamplesPath: filepath.Join(project.Dir, FileWithoutSamples),
		FilesAnalyzed:      analyzed,
	}
	if err := jsonutil.WriteFile(res.WithSamplesPath, types.EndpointList{Endpoints: endpoints}); err != nil {
		return nil, apperr.Persistence("write "+FileWithSamples, err)
	}
	stripped := make([]types.Endpoint, len(endpoints))
	for i, e := range endpoints {
		stripped[i] = e.WithoutSamples()
	}
	if err := jsonutil.WriteFile(res.WithoutSamplesPath, types.EndpointList{Endpoints: stripped}); err != nil {
		return nil, apperr.Persistence("write "+FileWithoutSamples, err)
	}
	log.Info().Int("endpoints", len(endpoints)).Int("files_analyzed", analyzed).Msg("discover: done")
	return res, nil
}

func (d *Discoverer) analyzeFile(ctx context.Context, fsys *safeio.SafeFS, rel string, known []types.Endpoint) ([]types.Endpoint, error) {
	content, err := fsys.ReadText(rel)
	if err != nil {
		return nil, fmt.Errorf("discover: read %s: %w", rel, err)
	}
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	knownJSON := "[]"
	if len(known) > 0 {
		b, err := jsonutil.MarshalNoEscapeIndent(known, "", "  ")
		if err == nil {
			knownJSON = string(b)
		}
	}
	resp, err := d.llm.Complete(ctx, llm.Request{
		System: systemPrompt,
		Prompt: fmt.Sprintf(userPromptTmpl, rel, content, knownJSON),
		JSON:   true,
	})
	if err != nil {
		return nil, apperr.LLMCall("endpoint analysis failed for "+rel, err)
	}
	found, err := ParseEndpoints(resp.Text)
	if err != nil {
		return nil, apperr.LLMParse("endpoint analysis for "+rel+" is not valid JSON", err)
	}
	for i := range found {
		found[i].UsedInFiles = []string{rel}
	}
	return found, nil
}

// ParseEndpoints reads {"endpoints":[...]} (or a bare array) from an answer.
func ParseEndpoints(text string) ([]types.Endpoint, error) {
	text = jsonutil.StripCodeFence(text)
	if strings.HasPrefix(text, "[") {
		var arr []types.Endpoint
		if err := json.Unmarshal([]byte(text), &arr); err == nil {
			return arr, nil
		}
	}
	var list types.EndpointList
	if err := jsonutil.UnmarshalFlex([]byte(text), &list); err == nil {
		return list.Endpoints, nil
	}
	// Prose around the answer.
	if raw, err := jsonutil.ExtractFirstObject(text); err == nil {
		var env struct {
			Endpoints *[]types.Endpoint `json:"endpoints"`
		}
		if json.Unmarshal(raw, &env) == nil && env.Endpoints != nil {
			return *env.Endpoints, nil
		}
	}
	if raw, err := jsonutil.ExtractFirstArray(text); err == nil {
		var arr []types.Endpoint
		if json.Unmarshal(raw, &arr) == nil {
			return arr, nil
		}
	}
	return nil, fmt.Errorf("no endpoint list in answer")
}
