package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"f2b/internal/apperr"
	"f2b/internal/discover"
	"f2b/internal/metrics"
	"f2b/internal/reqctx"
	"f2b/internal/types"
)

type fakeAcquirer struct{ err error }

func (f fakeAcquirer) Acquire(_ context.Context, url string) (*types.Project, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &types.Project{ID: "p-1", RepoName: "shop", RepoPath: "/tmp/p-1/shop", Dir: "/tmp/p-1"}, nil
}

type fakeDiscoverer struct{ eps []types.Endpoint }

func (f fakeDiscoverer) Discover(context.Context, *types.Project) (*discover.Result, error) {
	return &discover.Result{Endpoints: types.CloneEndpoints(f.eps)}, nil
}

type fakeAnnotator struct{ err error }

func (f fakeAnnotator) Annotate(_ context.Context, _ *types.Project, eps []types.Endpoint) ([]types.Endpoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range eps {
		eps[i].DatabaseSchema = &types.DatabaseSchema{CollectionName: eps[i].EndpointName, DBName: "shop"}
	}
	return eps, nil
}

type fakeOrderer struct{ err error }

func (f fakeOrderer) Order(_ context.Context, _ *types.Project, eps []types.Endpoint) ([]types.Endpoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]types.Endpoint, 0, len(eps))
	for i := len(eps) - 1; i >= 0; i-- {
		out = append(out, eps[i])
	}
	return out, nil
}

type fakeSynth struct {
	got []types.Endpoint
	err error
}

func (f *fakeSynth) Synthesize(_ context.Context, p *types.Project, eps []types.Endpoint) ([]types.GeneratedFile, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	f.got = eps
	return []types.GeneratedFile{{FilePath: "src/app.js", Code: "x"}}, filepath.Join(p.Dir, "final_code.json"), nil
}

type fakeCollection struct {
	err   error
	calls atomic.Int32
}

func (f *fakeCollection) Generate(context.Context, *types.Project, []types.Endpoint, []types.GeneratedFile) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return "/tmp/p-1/postman_collection.json", nil
}

type fakePackager struct {
	got string
	err error
}

func (f *fakePackager) Package(_ context.Context, path string) (string, error) {
	f.got = path
	if f.err != nil {
		return "", f.err
	}
	return filepath.Join(filepath.Dir(path), "api.zip"), nil
}

func (f *fakePackager) Mirror(context.Context, string, string) (string, error) {
	return "https://s3.local/p-1/api.zip", nil
}

type recordingSink struct {
	mu      sync.Mutex
	records []map[string]any
}

func (s *recordingSink) Record(ctx context.Context, msg string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := map[string]any{"message": msg, "project_id": reqctx.ProjectID(ctx)}
	for k, v := range fields {
		rec[k] = v
	}
	s.records = append(s.records, rec)
}

func (s *recordingSink) all() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.records...)
}

var endpoints = []types.Endpoint{
	{EndpointName: "users", Method: "POST"},
	{EndpointName: "orders", Method: "GET"},
}

func newStages() (Stages, *fakeSynth, *fakeCollection, *fakePackager) {
	synth := &fakeSynth{}
	coll := &fakeCollection{}
	pkg := &fakePackager{}
	return Stages{
		Acquirer:    fakeAcquirer{},
		Discoverer:  fakeDiscoverer{eps: endpoints},
		Annotator:   fakeAnnotator{},
		Orderer:     fakeOrderer{},
		Synthesizer: synth,
		Collection:  coll,
		Packager:    pkg,
	}, synth, coll, pkg
}

func collect(events *[]Event) EmitFunc {
	return func(ev Event) error {
		*events = append(*events, ev)
		return nil
	}
}

func TestRun_HappyPath(t *testing.T) {
	stages, synth, coll, pkg := newStages()
	o := New(stages, nil, metrics.New(), zerolog.Nop())

	res, err := o.Run(context.Background(), "https://github.com/acme/shop")
	require.NoError(t, err)
	assert.Equal(t, &types.Result{
		ProjectID:   "p-1",
		RepoName:    "shop",
		OutputPath:  "/tmp/p-1/final_code.json",
		ArchivePath: "/tmp/p-1/api.zip",
		ArchiveURL:  "https://s3.local/p-1/api.zip",
	}, res)
	assert.Equal(t, "/tmp/p-1/final_code.json", pkg.got)
	assert.Equal(t, int32(1), coll.calls.Load())

	require.Len(t, synth.got, 2)
	assert.Equal(t, "orders", synth.got[0].EndpointName, "priority order kept")
	require.NotNil(t, synth.got[0].DatabaseSchema, "schema joined onto sorted endpoints")
	assert.Equal(t, "orders", synth.got[0].DatabaseSchema.CollectionName)
}

func TestStream_EventSequence(t *testing.T) {
	stages, _, _, _ := newStages()
	var events []Event
	_, err := New(stages, nil, nil, zerolog.Nop()).Stream(context.Background(), "https://github.com/acme/shop", collect(&events))
	require.NoError(t, err)

	seen := map[EventType]int{}
	for _, ev := range events {
		seen[ev.Type]++
	}
	for _, want := range []EventType{EventStatus, EventEndpoints, EventSchema, EventPriority, EventCode, EventCollection, EventCompleted} {
		assert.NotZero(t, seen[want], want)
	}
	assert.Equal(t, EventCompleted, events[len(events)-1].Type)
	assert.Zero(t, seen[EventError])
}

func TestStream_PriorityFailureIsFatal(t *testing.T) {
	stages, synth, _, _ := newStages()
	stages.Orderer = fakeOrderer{err: apperr.LLMCall("priority ordering failed", errors.New("503"))}
	sink := &recordingSink{}

	var events []Event
	_, err := New(stages, sink, nil, zerolog.Nop()).Stream(context.Background(), "https://github.com/acme/shop", collect(&events))
	require.Error(t, err)
	assert.Nil(t, synth.got)

	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Equal(t, 502, last.Status)

	recs := sink.all()
	require.Len(t, recs, 1)
	assert.Equal(t, string(StagePrioritization), recs[0]["stage"])
	assert.Equal(t, "p-1", recs[0]["project_id"])
}

func TestRun_CollectionFailureIsIsolated(t *testing.T) {
	stages, _, coll, pkg := newStages()
	coll.err = errors.New("model refused")
	sink := &recordingSink{}

	var events []Event
	res, err := New(stages, sink, nil, zerolog.Nop()).Stream(context.Background(), "https://github.com/acme/shop", collect(&events))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/p-1/api.zip", res.ArchivePath)
	assert.NotEmpty(t, pkg.got)

	recs := sink.all()
	require.Len(t, recs, 1)
	assert.Equal(t, string(StageCollection), recs[0]["stage"])
	assert.Equal(t, EventCompleted, events[len(events)-1].Type)
}

func TestRun_NilCollectionSkipsBranch(t *testing.T) {
	stages, _, _, _ := newStages()
	stages.Collection = nil
	_, err := New(stages, nil, nil, zerolog.Nop()).Run(context.Background(), "u")
	require.NoError(t, err)
}

func TestRun_CloneFailureKeepsStatus(t *testing.T) {
	stages, _, _, _ := newStages()
	stages.Acquirer = fakeAcquirer{err: apperr.New(apperr.KindExternalAuth, "authentication required")}
	_, err := New(stages, nil, nil, zerolog.Nop()).Run(context.Background(), "u")
	assert.Equal(t, 403, apperr.StatusOf(err))
}

func TestStream_ConsumerGoneStopsAtBoundary(t *testing.T) {
	stages, synth, _, pkg := newStages()
	failed, late := false, 0
	emit := func(ev Event) error {
		if failed {
			late++
		}
		if ev.Type == EventEndpoints {
			failed = true
			return errors.New("broken pipe")
		}
		return nil
	}
	_, err := New(stages, nil, nil, zerolog.Nop()).Stream(context.Background(), "u", emit)
	assert.True(t, errors.Is(err, ErrConsumerGone))
	assert.Nil(t, synth.got)
	assert.Empty(t, pkg.got)
	assert.Zero(t, late, "no events after the failing emit")
}

func TestJoinSchemas(t *testing.T) {
	sorted := []types.Endpoint{{EndpointName: "b", Method: "get"}, {EndpointName: "a", Method: "POST"}, {EndpointName: "c", Method: "GET"}}
	annotated := []types.Endpoint{
		{EndpointName: "a", Method: "POST", DatabaseSchema: &types.DatabaseSchema{CollectionName: "as"}},
		{EndpointName: "b", Method: "GET", DatabaseSchema: &types.DatabaseSchema{CollectionName: "bs"}},
	}
	got := JoinSchemas(sorted, annotated)
	assert.Equal(t, "bs", got[0].DatabaseSchema.CollectionName)
	assert.Equal(t, "as", got[1].DatabaseSchema.CollectionName)
	assert.Nil(t, got[2].DatabaseSchema)
	assert.Nil(t, sorted[0].DatabaseSchema, "input untouched")
}
