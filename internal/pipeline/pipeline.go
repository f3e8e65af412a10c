// Package pipeline sequences export, precision reduction, benchmarking and
// manifest generation as a single forward pass that halts on the first error.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quantsmith/quantsmith/internal/bench"
	"github.com/quantsmith/quantsmith/internal/export"
	"github.com/quantsmith/quantsmith/internal/telemetry"
	"github.com/quantsmith/quantsmith/pkg/types"
	"github.com/sirupsen/logrus"
)

// Exporter produces the full-precision artifact
type Exporter interface {
	Export(ctx context.Context, opts export.Options) (types.Artifact, error)
}

// Reducer derives the requested precision
type Reducer interface {
	Reduce(ctx context.Context, in types.Artifact, mode types.Precision) (types.Artifact, error)
}

// Sampler benchmarks an artifact
type Sampler interface {
	Sample(ctx context.Context, art types.Artifact, opts bench.Options) (types.BenchmarkMetrics, error)
}

// ManifestWriter persists the provenance record
type ManifestWriter interface {
	Write(outDir string, art types.Artifact, metrics *types.BenchmarkMetrics) (*types.Manifest, error)
}

// Request is the input of one run
type Request struct {
	Checkpoint string
	OutputDir  string
	ImageSize  int
	Batch      int
	Mode       types.Precision
	// Samples is the benchmark size; zero skips benchmarking
	Samples int
	// Dataset is an optional descriptor for real benchmark inputs
	Dataset string
}

// Validate checks request fields that can be rejected before any stage runs
func (r Request) Validate() error {
	switch r.Mode {
	case types.PrecisionFP16, types.PrecisionInt8, types.PrecisionNone:
	default:
		return fmt.Errorf("%w: %q", types.ErrUnknownPrecision, r.Mode)
	}
	if r.Samples < 0 {
		return fmt.Errorf("%w: got %d", types.ErrInvalidSamples, r.Samples)
	}
	return nil
}

// Outcome records what a completed run produced
type Outcome struct {
	RunID    string
	State    State
	History  []State
	Full     types.Artifact
	Final    types.Artifact
	Metrics  *types.BenchmarkMetrics
	Manifest *types.Manifest
}

// StageHook is called before each stage starts
type StageHook func(stage Stage, index, total int)

// Orchestrator owns the collaborators of a run
type Orchestrator struct {
	exporter Exporter
	reducer  Reducer
	sampler  Sampler
	writer   ManifestWriter
	emitter  telemetry.Emitter
	log      logrus.FieldLogger
	onStage  StageHook
}

// Option customizes an Orchestrator
type Option func(*Orchestrator)

// WithEmitter sends one telemetry event per transition
func WithEmitter(e telemetry.Emitter) Option {
	return func(o *Orchestrator) { o.emitter = e }
}

// WithStageHook reports stage starts, e.g. for CLI progress lines
func WithStageHook(h StageHook) Option {
	return func(o *Orchestrator) { o.onStage = h }
}

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// New creates an Orchestrator
func New(exporter Exporter, reducer Reducer, sampler Sampler, writer ManifestWriter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		exporter: exporter,
		reducer:  reducer,
		sampler:  sampler,
		writer:   writer,
		emitter:  telemetry.Noop{},
		log:      logrus.StandardLogger(),
		onStage:  func(Stage, int, int) {},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run carries the state of one invocation
type run struct {
	id  string
	req Request
	out Outcome
	log logrus.FieldLogger
}

// Run executes the pipeline from the start. Any stage failure halts the run
// and is returned as a *StageError; nothing is retried and no manifest is
// written for a failed run.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	r := &run{
		id:  uuid.NewString(),
		req: req,
		out: Outcome{State: StateStart, History: []State{StateStart}},
	}
	r.out.RunID = r.id
	r.log = o.log.WithField("run_id", r.id)

	for index := 0; !IsTerminal(r.out.State); index++ {
		stage := stageFrom(r.out.State)
		o.onStage(stage, index+1, len(Stages))

		start := time.Now()
		res := o.step(ctx, r, stage)
		elapsed := time.Since(start)

		ev := telemetry.Event{
			RunID:     r.id,
			Stage:     string(stage),
			ElapsedMs: float64(elapsed) / float64(time.Millisecond),
		}

		if res.Err != nil {
			ev.State = string(r.out.State)
			ev.Error = res.Err.Error()
			o.emitter.Emit(ev)
			r.log.WithField("stage", stage).WithError(res.Err).Error("pipeline halted")
			return &r.out, &StageError{Stage: stage, State: r.out.State, Err: res.Err}
		}

		if !isAllowedTransition(r.out.State, res.Next) {
			return &r.out, &StageError{
				Stage: stage,
				State: r.out.State,
				Err:   fmt.Errorf("disallowed transition %s -> %s", r.out.State, res.Next),
			}
		}

		r.out.State = res.Next
		r.out.History = append(r.out.History, res.Next)
		ev.State = string(res.Next)
		o.emitter.Emit(ev)

		r.log.WithFields(logrus.Fields{
			"stage":   stage,
			"state":   res.Next,
			"elapsed": elapsed.Round(time.Millisecond),
		}).Debug("stage complete")
	}

	return &r.out, nil
}

func (o *Orchestrator) step(ctx context.Context, r *run, stage Stage) Result {
	switch stage {
	case StageExport:
		art, err := o.exporter.Export(ctx, export.Options{
			Checkpoint: r.req.Checkpoint,
			ImageSize:  r.req.ImageSize,
			Batch:      r.req.Batch,
			OutputDir:  r.req.OutputDir,
		})
		if err != nil {
			return Fail(err)
		}
		r.out.Full = art
		return Ok(StateExported)

	case StageQuantize:
		art, err := o.reducer.Reduce(ctx, r.out.Full, r.req.Mode)
		if err != nil {
			return Fail(err)
		}
		r.out.Final = art
		return Ok(StateQuantized)

	case StageBenchmark:
		if r.req.Samples <= 0 {
			r.log.Info("benchmark skipped: no samples requested")
			return Ok(StateSkippedBenchmark)
		}
		metrics, err := o.sampler.Sample(ctx, r.out.Final, bench.Options{
			ImageSize: r.req.ImageSize,
			Batch:     r.req.Batch,
			Samples:   r.req.Samples,
			Dataset:   r.req.Dataset,
		})
		if err != nil {
			return Fail(err)
		}
		r.out.Metrics = &metrics
		return Ok(StateBenchmarked)

	case StageManifest:
		m, err := o.writer.Write(r.req.OutputDir, r.out.Final, r.out.Metrics)
		if err != nil {
			return Fail(err)
		}
		r.out.Manifest = m
		return Ok(StateManifested)
	}

	return Fail(fmt.Errorf("unknown stage %q", stage))
}
