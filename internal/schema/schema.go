// Package schema attaches a database schema to every endpoint and seeds the
// document store with mock records for it.
package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"f2b/internal/apperr"
	"f2b/internal/errorsink"
	"f2b/internal/llm"
	"f2b/internal/mockdata"
	"f2b/internal/reqctx"
	"f2b/internal/store/docstore"
	"f2b/internal/types"
	"f2b/internal/util/jsonutil"
)

const FileWithSchema = "endpoints_with_schema.json"

const defaultConcurrency = 10

type Annotator struct {
	llm         llm.CompletionProvider
	mock        mockdata.Generator
	store       docstore.Store
	sink        errorsink.Sink
	log         zerolog.Logger
	concurrency int64
}

type Option func(*Annotator)

// WithConcurrency bounds in-flight schema and mock-data calls together.
func WithConcurrency(n int) Option {
	return func(a *Annotator) {
		if n > 0 {
			a.concurrency = int64(n)
		}
	}
}

func New(p llm.CompletionProvider, mock mockdata.Generator, store docstore.Store, sink errorsink.Sink, log zerolog.Logger, opts ...Option) *Annotator {
	if mock == nil {
		mock = mockdata.Disabled{}
	}
	if store == nil {
		store = docstore.NewMemory()
	}
	if sink == nil {
		sink = errorsink.Nop{}
	}
	a := &Annotator{llm: p, mock: mock, store: store, sink: sink, log: log, concurrency: defaultConcurrency}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Annotate returns endpoints in input order, each with database_schema set.
// A failing endpoint gets the "unknown" schema; siblings are unaffected.
func (a *Annotator) Annotate(ctx context.Context, project *types.Project, endpoints []types.Endpoint) ([]types.Endpoint, error) {
	ctx = reqctx.WithStage(ctx, "schema")
	dbName := filepath.Base(strings.TrimRight(project.RepoPath, "/"))
	out := types.CloneEndpoints(endpoints)
	sem := semaphore.NewWeighted(a.concurrency)

	g, gctx := errgroup.WithContext(ctx)
	for i := range out {
		g.Go(func() error {
			ms, err := a.processEndpoint(gctx, sem, project, out[i])
			if err != nil {
				return err
			}
			out[i].DatabaseSchema = ms.Public(dbName)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	path := filepath.Join(project.Dir, FileWithSchema)
	if err := jsonutil.WriteFile(path, types.EndpointList{Endpoints: out}); err != nil {
		return nil, apperr.Persistence("write "+FileWithSchema, err)
	}
	a.log.Info().Str("project_id", project.ID).Int("endpoints", len(out)).Msg("schema: annotated")
	return out, nil
}

// processEndpoint only returns an error when ctx is done; every other
// failure is recorded and degrades to the sentinel schema.
func (a *Annotator) processEndpoint(ctx context.Context, sem *semaphore.Weighted, project *types.Project, ep types.Endpoint) (types.MockSchema, error) {
	key := ep.Key().String()

	if err := sem.Acquire(ctx, 1); err != nil {
		return types.MockSchema{}, err
	}
	ms, err := a.inferSchema(ctx, ep)
	sem.Release(1)
	if err != nil {
		a.sink.Record(ctx, err.Error(), map[string]any{"endpoint": key})
		a.log.Warn().Err(err).Str("endpoint", key).Msg("schema: inference failed")
		return types.UnknownMockSchema(), nil
	}
	if ms.IsUnknown() {
		return ms, nil
	}

	if err := sem.Acquire(ctx, 1); err != nil {
		return types.MockSchema{}, err
	}
	records, err := a.mock.Generate(ctx, ms.Samples)
	sem.Release(1)
	switch {
	case err != nil:
		a.sink.Record(ctx, "mock data generation failed: "+err.Error(), map[string]any{"endpoint": key, "collection": ms.CollectionName})
	case len(records) == 0:
		a.log.Debug().Str("endpoint", key).Msg("schema: no mock data generated")
	default:
		if err := a.store.Replace(ctx, project.ID, ms.CollectionName, records); err != nil {
			a.sink.Record(ctx, "mock data insert failed: "+err.Error(), map[string]any{"endpoint": key, "collection": ms.CollectionName})
		}
	}
	return ms, nil
}

func (a *Annotator) inferSchema(ctx context.Context, ep types.Endpoint) (types.MockSchema, error) {
	payload, _ := jsonutil.MarshalNoEscapeIndent(orEmpty(ep.Payload), "", "  ")
	response, _ := jsonutil.MarshalNoEscapeIndent(orEmpty(ep.Response), "", "  ")
	resp, err := a.llm.Complete(ctx, llm.Request{
		System:      systemPrompt,
		Prompt:      fmt.Sprintf(userPromptTmpl, ep.EndpointName, ep.Method, ep.Description, payload, response),
		Temperature: 0.5,
	})
	if err != nil {
		return types.MockSchema{}, apperr.LLMCall("schema analysis failed for "+ep.Key().String(), err)
	}
	return ParseSchema(resp.Text)
}

// ParseSchema extracts the first JSON object of an answer as a MockSchema.
func ParseSchema(text string) (types.MockSchema, error) {
	raw, err := jsonutil.ExtractFirstObject(text)
	if err != nil {
		return types.MockSchema{}, apperr.LLMParse("no JSON object in schema answer", err)
	}
	var ms types.MockSchema
	if err := json.Unmarshal(raw, &ms); err != nil {
		return types.MockSchema{}, apperr.LLMParse("invalid schema answer", err)
	}
	ms.CollectionName = strings.TrimSpace(ms.CollectionName)
	if ms.CollectionName == "" {
		ms.CollectionName = "unknown"
	}
	if ms.Schema == nil {
		ms.Schema = map[string]any{}
	}
	if ms.Samples == nil {
		ms.Samples = map[string]any{}
	}
	return ms, nil
}

func orEmpty(f types.Fields) types.Fields {
	if f == nil {
		return types.Fields{}
	}
	return f
}
