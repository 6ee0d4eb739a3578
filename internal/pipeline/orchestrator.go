// Package pipeline runs the clone-to-archive pipeline and reports progress.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"f2b/internal/apperr"
	"f2b/internal/collection"
	"f2b/internal/discover"
	"f2b/internal/errorsink"
	"f2b/internal/metrics"
	"f2b/internal/reqctx"
	"f2b/internal/types"
)

type Acquirer interface {
	Acquire(ctx context.Context, sourceURL string) (*types.Project, error)
}

type Discoverer interface {
	Discover(ctx context.Context, project *types.Project) (*discover.Result, error)
}

type Annotator interface {
	Annotate(ctx context.Context, project *types.Project, endpoints []types.Endpoint) ([]types.Endpoint, error)
}

type Orderer interface {
	Order(ctx context.Context, project *types.Project, endpoints []types.Endpoint) ([]types.Endpoint, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, project *types.Project, endpoints []types.Endpoint) ([]types.GeneratedFile, string, error)
}

type Packager interface {
	Package(ctx context.Context, fileListPath string) (string, error)
	Mirror(ctx context.Context, projectID, archivePath string) (string, error)
}

// Stages holds one implementation per pipeline stage. Collection may be nil.
type Stages struct {
	Acquirer    Acquirer
	Discoverer  Discoverer
	Annotator   Annotator
	Orderer     Orderer
	Synthesizer Synthesizer
	Collection  collection.Generator
	Packager    Packager
}

type Orchestrator struct {
	stages  Stages
	sink    errorsink.Sink
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// New returns an Orchestrator. sink and m may be nil.
func New(stages Stages, sink errorsink.Sink, m *metrics.Metrics, log zerolog.Logger) *Orchestrator {
	if sink == nil {
		sink = errorsink.Nop{}
	}
	return &Orchestrator{stages: stages, sink: sink, metrics: m, log: log}
}

// Run executes the pipeline and returns its result.
func (o *Orchestrator) Run(ctx context.Context, sourceURL string) (*types.Result, error) {
	res, err := o.run(ctx, sourceURL, newReporter(nil))
	o.metrics.ObserveRun("sync", err)
	return res, err
}

// Stream executes the pipeline, reporting every stage through emit. The
// final event is completed or error unless emit itself failed first.
func (o *Orchestrator) Stream(ctx context.Context, sourceURL string, emit EmitFunc) (*types.Result, error) {
	r := newReporter(emit)
	res, err := o.run(ctx, sourceURL, r)
	o.metrics.ObserveRun("stream", err)
	if err != nil {
		if !errors.Is(err, ErrConsumerGone) {
			r.send(Event{Type: EventError, Stage: StageErrored, Message: apperr.MessageOf(err), Status: apperr.StatusOf(err)})
		}
		return nil, err
	}
	r.send(Event{Type: EventCompleted, Stage: StageCompleted, Message: "pipeline completed", Data: res})
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, sourceURL string, r *reporter) (*types.Result, error) {
	ctx, run := reqctx.New(ctx, sourceURL)
	log := o.log.With().Str("trace_id", run.TraceID).Str("repo_url", sourceURL).Logger()

	var project *types.Project
	r.status(StageCloning, "cloning repository")
	err := o.stage(ctx, StageCloning, func(ctx context.Context) error {
		var err error
		project, err = o.stages.Acquirer.Acquire(ctx, sourceURL)
		return err
	})
	if err != nil {
		return nil, o.fail(ctx, StageCloning, err)
	}
	ctx = reqctx.WithProject(ctx, project.ID)
	log = log.With().Str("project_id", project.ID).Logger()
	r.send(Event{Type: EventStatus, Stage: StageCloning, Message: "repository cloned", Data: project})
	if r.gone() {
		return nil, ErrConsumerGone
	}

	var endpoints []types.Endpoint
	r.status(StageEndpointExtraction, "extracting endpoints")
	err = o.stage(ctx, StageEndpointExtraction, func(ctx context.Context) error {
		res, err := o.stages.Discoverer.Discover(ctx, project)
		if err != nil {
			return err
		}
		endpoints = res.Endpoints
		return nil
	})
	if err != nil {
		return nil, o.fail(ctx, StageEndpointExtraction, err)
	}
	if o.metrics != nil {
		o.metrics.EndpointsDiscovered.Observe(float64(len(endpoints)))
	}
	r.send(Event{Type: EventEndpoints, Stage: StageEndpointExtraction, Message: "endpoints extracted", Data: endpointsData(endpoints)})
	if r.gone() {
		return nil, ErrConsumerGone
	}

	annotated, sorted, err := o.schemaAndPriority(ctx, project, endpoints, r)
	if err != nil {
		return nil, err
	}
	if r.gone() {
		return nil, ErrConsumerGone
	}
	ordered := JoinSchemas(sorted, annotated)

	finalCode, err := o.codeAndCollection(ctx, project, ordered, r)
	if err != nil {
		return nil, err
	}
	if r.gone() {
		return nil, ErrConsumerGone
	}

	var archive string
	r.status(StagePackaging, "packaging archive")
	err = o.stage(ctx, StagePackaging, func(ctx context.Context) error {
		var err error
		archive, err = o.stages.Packager.Package(ctx, finalCode)
		return err
	})
	if err != nil {
		return nil, o.fail(ctx, StagePackaging, err)
	}
	res := &types.Result{
		ProjectID:   project.ID,
		RepoName:    project.RepoName,
		OutputPath:  finalCode,
		ArchivePath: archive,
	}
	if url, err := o.stages.Packager.Mirror(ctx, project.ID, archive); err != nil {
		log.Warn().Err(err).Msg("pipeline: archive mirror failed")
	} else {
		res.ArchiveURL = url
	}
	log.Info().Str("archive", archive).Msg("pipeline: completed")
	return res, nil
}

// schemaAndPriority runs both branches on the discovered endpoints and
// joins them. Either failing fails the run.
func (o *Orchestrator) schemaAndPriority(ctx context.Context, project *types.Project, endpoints []types.Endpoint, r *reporter) ([]types.Endpoint, []types.Endpoint, error) {
	var annotated, sorted []types.Endpoint
	r.status(StageSchemaGeneration, "generating schemas and priorities")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := o.stage(gctx, StageSchemaGeneration, func(ctx context.Context) error {
			var err error
			annotated, err = o.stages.Annotator.Annotate(ctx, project, types.CloneEndpoints(endpoints))
			return err
		})
		if err != nil {
			return o.fail(gctx, StageSchemaGeneration, err)
		}
		r.send(Event{Type: EventSchema, Stage: StageSchemaGeneration, Message: "schemas generated", Data: endpointsData(annotated)})
		return nil
	})
	g.Go(func() error {
		err := o.stage(gctx, StagePrioritization, func(ctx context.Context) error {
			var err error
			sorted, err = o.stages.Orderer.Order(ctx, project, types.CloneEndpoints(endpoints))
			return err
		})
		if err != nil {
			return o.fail(gctx, StagePrioritization, err)
		}
		r.send(Event{Type: EventPriority, Stage: StagePrioritization, Message: "endpoints prioritized", Data: endpointsData(sorted)})
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return annotated, sorted, nil
}

// codeAndCollection runs code generation next to collection generation.
// A collection failure is recorded and never fails the run. It returns the
// path of the generated file list.
func (o *Orchestrator) codeAndCollection(ctx context.Context, project *types.Project, endpoints []types.Endpoint, r *reporter) (string, error) {
	var finalCode string
	codeReady := make(chan []types.GeneratedFile, 1)
	r.status(StageCodeGeneration, "generating code and collection")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(codeReady)
		var files []types.GeneratedFile
		err := o.stage(gctx, StageCodeGeneration, func(ctx context.Context) error {
			var err error
			files, finalCode, err = o.stages.Synthesizer.Synthesize(ctx, project, endpoints)
			return err
		})
		if err != nil {
			return o.fail(gctx, StageCodeGeneration, err)
		}
		if o.metrics != nil {
			o.metrics.FilesGenerated.Observe(float64(len(files)))
		}
		codeReady <- files
		r.send(Event{Type: EventCode, Stage: StageCodeGeneration, Message: "code generated", Data: map[string]any{"files": len(files), "output_path": finalCode}})
		return nil
	})

	gen := o.stages.Collection
	if gen != nil {
		g.Go(func() error {
			var files []types.GeneratedFile
			if collection.NeedsCode(gen) {
				var ok bool
				if files, ok = <-codeReady; !ok {
					return nil
				}
			}
			var path string
			err := o.stage(gctx, StageCollection, func(ctx context.Context) error {
				var err error
				path, err = gen.Generate(ctx, project, endpoints, files)
				return err
			})
			if err != nil {
				if gctx.Err() == nil {
					o.record(gctx, StageCollection, err)
					r.send(Event{Type: EventCollection, Stage: StageCollection, Message: "collection skipped: " + apperr.MessageOf(err)})
				}
				return nil
			}
			r.send(Event{Type: EventCollection, Stage: StageCollection, Message: "collection generated", Data: map[string]any{"path": path}})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return finalCode, nil
}

// stage times fn under the stage's context label.
func (o *Orchestrator) stage(ctx context.Context, stage Stage, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(reqctx.WithStage(ctx, string(stage)))
	kind := ""
	if err != nil {
		kind = string(apperr.KindOf(err))
	}
	o.metrics.ObserveStage(string(stage), time.Since(start), kind)
	return err
}

// fail records a fatal stage error and returns it unchanged.
func (o *Orchestrator) fail(ctx context.Context, stage Stage, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return err
	}
	o.record(ctx, stage, err)
	return err
}

func (o *Orchestrator) record(ctx context.Context, stage Stage, err error) {
	o.log.Error().Err(err).Str("project_id", reqctx.ProjectID(ctx)).Str("stage", string(stage)).Msg("pipeline: stage failed")
	if o.metrics != nil {
		o.metrics.RecordedErrs.WithLabelValues(string(stage)).Inc()
	}
	o.sink.Record(reqctx.WithStage(ctx, string(stage)), err.Error(), map[string]any{
		"stage":      string(stage),
		"error_kind": string(apperr.KindOf(err)),
	})
}

func endpointsData(eps []types.Endpoint) map[string]any {
	public := make([]types.Endpoint, len(eps))
	for i, e := range eps {
		public[i] = e.WithoutSamples()
	}
	return map[string]any{"count": len(eps), "endpoints": public}
}

// JoinSchemas returns sorted with database_schema taken from the annotated
// record of the same key. Order follows sorted.
func JoinSchemas(sorted, annotated []types.Endpoint) []types.Endpoint {
	byKey := make(map[types.EndpointKey]*types.DatabaseSchema, len(annotated))
	for _, e := range annotated {
		if e.DatabaseSchema != nil {
			byKey[e.Key()] = e.DatabaseSchema
		}
	}
	out := types.CloneEndpoints(sorted)
	for i := range out {
		if ds, ok := byKey[out[i].Key()]; ok {
			out[i].DatabaseSchema = types.Endpoint{DatabaseSchema: ds}.Clone().DatabaseSchema
		}
	}
	return out
}
