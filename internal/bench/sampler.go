// Package bench measures inference latency of an artifact and reduces the
// timings to summary statistics.
package bench

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/quantsmith/quantsmith/internal/engine"
	"github.com/quantsmith/quantsmith/pkg/types"
	"github.com/sirupsen/logrus"
)

// Options configures one benchmark run
type Options struct {
	ImageSize int
	// Batch is the fixed batch dimension of the graph; zero means 1
	Batch   int
	Samples int
	// Dataset is an optional descriptor path; empty means synthetic inputs
	Dataset string
}

// Progress receives one step per timed forward pass
type Progress interface {
	Add(n int)
	Finish()
}

type noProgress struct{}

func (noProgress) Add(int) {}
func (noProgress) Finish() {}

// Sampler runs timed forward passes against a loaded artifact
type Sampler struct {
	engine  engine.InferenceEngine
	threads int
	log     logrus.FieldLogger
	rng     *rand.Rand
	clock   func() time.Time

	// NewProgress builds a progress reporter for a run of total passes
	NewProgress func(total int) Progress
}

// SamplerOption customizes a Sampler
type SamplerOption func(*Sampler)

// WithThreads overrides the intra-op thread count (all cores by default)
func WithThreads(n int) SamplerOption {
	return func(s *Sampler) {
		if n > 0 {
			s.threads = n
		}
	}
}

// WithRand sets the source used for shuffling and synthetic inputs
func WithRand(r *rand.Rand) SamplerOption {
	return func(s *Sampler) { s.rng = r }
}

// WithClock replaces the time source used to measure passes
func WithClock(now func() time.Time) SamplerOption {
	return func(s *Sampler) { s.clock = now }
}

// WithProgress installs a progress reporter factory
func WithProgress(f func(total int) Progress) SamplerOption {
	return func(s *Sampler) { s.NewProgress = f }
}

// NewSampler creates a Sampler using every available core for intra-op parallelism
func NewSampler(e engine.InferenceEngine, log logrus.FieldLogger, opts ...SamplerOption) *Sampler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Sampler{
		engine:  e,
		threads: runtime.NumCPU(),
		log:     log,
		rng:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		clock:   time.Now,
		NewProgress: func(int) Progress {
			return noProgress{}
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Threads returns the configured intra-op thread count
func (s *Sampler) Threads() int {
	return s.threads
}

// Sample loads art, stages opts.Samples inputs and times one forward pass per
// input. A failing pass aborts the run; partial timings are discarded.
func (s *Sampler) Sample(ctx context.Context, art types.Artifact, opts Options) (types.BenchmarkMetrics, error) {
	if opts.Samples <= 0 {
		return types.BenchmarkMetrics{}, fmt.Errorf("%w: got %d", types.ErrInvalidSamples, opts.Samples)
	}
	if opts.ImageSize <= 0 {
		return types.BenchmarkMetrics{}, fmt.Errorf("%w: got %d", types.ErrInvalidDimension, opts.ImageSize)
	}
	if opts.Batch < 0 {
		return types.BenchmarkMetrics{}, fmt.Errorf("%w: got %d", types.ErrInvalidBatch, opts.Batch)
	}
	if opts.Batch == 0 {
		opts.Batch = 1
	}

	sess, err := s.engine.Load(ctx, art.Path, s.threads)
	if err != nil {
		return types.BenchmarkMetrics{}, &types.InferenceLoadError{Path: art.Path, Err: err}
	}
	defer sess.Close()

	slots, source, err := s.stageInputs(ctx, sess, opts)
	if err != nil {
		return types.BenchmarkMetrics{}, err
	}

	log := s.log.WithFields(logrus.Fields{
		"path":    art.Path,
		"samples": opts.Samples,
		"threads": s.threads,
		"batch":   opts.Batch,
		"inputs":  source,
	})
	log.Info("benchmarking")

	progress := s.NewProgress(len(slots))
	times := make([]time.Duration, 0, len(slots))
	for i, slot := range slots {
		start := s.clock()
		elapsed, err := sess.Run(ctx, slot)
		if err != nil {
			progress.Finish()
			return types.BenchmarkMetrics{}, &types.InferenceRunError{Sample: i, Err: err}
		}
		if elapsed <= 0 {
			elapsed = s.clock().Sub(start)
		}
		times = append(times, elapsed)
		progress.Add(1)
	}
	progress.Finish()

	metrics := Summarize(times)
	log.WithFields(logrus.Fields{
		"median_ms": metrics.MedianMs,
		"p95_ms":    metrics.P95Ms,
	}).Info("benchmark complete")
	return metrics, nil
}

// stageInputs materializes exactly opts.Samples inputs engine-side before
// timing starts. Real images are used when the dataset resolves and holds
// at least one image; otherwise inputs are uniform random tensors.
func (s *Sampler) stageInputs(ctx context.Context, sess engine.Session, opts Options) ([]int, string, error) {
	next, source := s.inputSource(opts)

	slots := make([]int, 0, opts.Samples)
	for i := 0; i < opts.Samples; i++ {
		tensor, err := next(i)
		if err != nil {
			return nil, source, &types.InferenceRunError{Sample: i, Err: err}
		}
		slot, err := sess.Stage(ctx, tensor)
		if err != nil {
			return nil, source, &types.InferenceRunError{Sample: i, Err: fmt.Errorf("stage input: %w", err)}
		}
		slots = append(slots, slot)
	}
	return slots, source, nil
}

func (s *Sampler) inputSource(opts Options) (func(int) (engine.Tensor, error), string) {
	synthetic := func(int) (engine.Tensor, error) {
		return s.randomTensor(opts.Batch, opts.ImageSize), nil
	}

	dsCap := ResolveDataset(opts.Dataset)
	ds, ok := dsCap.Get()
	if !ok {
		if opts.Dataset != "" {
			s.log.WithField("dataset", opts.Dataset).Warnf("dataset unavailable, using synthetic inputs: %s", dsCap.Reason())
		}
		return synthetic, "synthetic"
	}

	paths, err := ds.ImagePaths()
	if err != nil || len(paths) == 0 {
		s.log.WithField("dataset", opts.Dataset).WithError(err).Warn("no validation images found, using synthetic inputs")
		return synthetic, "synthetic"
	}

	s.rng.Shuffle(len(paths), func(i, j int) {
		paths[i], paths[j] = paths[j], paths[i]
	})
	if len(paths) > opts.Samples {
		paths = paths[:opts.Samples]
	}

	// Fewer images than samples are cycled so every requested pass runs
	return func(i int) (engine.Tensor, error) {
		t, err := LoadImageTensor(paths[i%len(paths)], opts.ImageSize)
		if err != nil {
			return engine.Tensor{}, err
		}
		return tileBatch(t, opts.Batch), nil
	}, "dataset"
}

func (s *Sampler) randomTensor(batch, size int) engine.Tensor {
	data := make([]float32, batch*3*size*size)
	for i := range data {
		data[i] = s.rng.Float32()
	}
	return engine.Tensor{
		Shape: inputShape(batch, size),
		Data:  data,
	}
}
