package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/reqpipe/reqpipe/internal/observability"
)

const pipelineTracerName = "reqpipe/pipeline"

// Executor runs a request through its stages in order. The first
// failing stage stops the pipeline; the request deadline is checked
// before every stage so an expired request does no further work.
type Executor struct {
	stages []Stage
	logger observability.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor creates a pipeline executor over the given stages.
func NewExecutor(stages []Stage, opts ...ExecutorOption) *Executor {
	e := &Executor{
		stages: stages,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the request through every stage. The returned error,
// if any, is the first stage failure; Classify maps it to a
// transport-level outcome.
func (e *Executor) Execute(ctx context.Context, rc *RequestContext) error {
	ctx, span := otel.Tracer(pipelineTracerName).Start(ctx, "pipeline.Execute",
		trace.WithAttributes(
			attribute.String("request.id", rc.ID),
			attribute.String("request.resource", rc.Resource),
			attribute.String("request.action", rc.Action),
		),
	)
	defer span.End()

	start := time.Now()

	for _, stage := range e.stages {
		if err := ctx.Err(); err != nil {
			e.finish(rc, start, stage.Name(), err)
			span.RecordError(err)
			return err
		}

		if err := e.runStage(ctx, stage, rc); err != nil {
			e.finish(rc, start, stage.Name(), err)
			span.RecordError(err)
			span.SetAttributes(attribute.String("pipeline.failed_stage", stage.Name()))
			return err
		}
	}

	e.finish(rc, start, "", nil)
	return nil
}

func (e *Executor) runStage(ctx context.Context, stage Stage, rc *RequestContext) error {
	ctx, span := otel.Tracer(pipelineTracerName).Start(ctx, "pipeline."+stage.Name())
	defer span.End()

	start := time.Now()
	err := stage.Run(ctx, rc)
	recordStage(stage.Name(), time.Since(start), err == nil)

	return err
}

func (e *Executor) finish(rc *RequestContext, start time.Time, failedStage string, err error) {
	elapsed := time.Since(start)

	if err == nil {
		recordRequest("ok", elapsed)
		e.logger.Info("request completed",
			observability.String(observability.FieldRequestID, rc.ID),
			observability.String(observability.FieldResource, rc.Resource),
			observability.String(observability.FieldAction, rc.Action),
			observability.Duration(observability.FieldLatency, elapsed))
		return
	}

	class := Classify(err)
	recordRequest(class.String(), elapsed)

	e.logger.Warn("request failed",
		observability.String(observability.FieldRequestID, rc.ID),
		observability.String(observability.FieldResource, rc.Resource),
		observability.String(observability.FieldAction, rc.Action),
		observability.String("stage", failedStage),
		observability.String("class", class.String()),
		observability.Duration(observability.FieldLatency, elapsed),
		observability.Error(err))
}
