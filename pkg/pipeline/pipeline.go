// Package pipeline orchestrates a run: initialise the remote datasets, fetch
// A and B, multiply, reduce the product to a digest and validate it.
//
// Stages run strictly in order. The first error moves the run to
// StageFailed, skips everything after it and discards earlier results.
// Nothing is retried.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/polisai/polis-matrix/internal/governance"
	"github.com/polisai/polis-matrix/pkg/digest"
	"github.com/polisai/polis-matrix/pkg/domain"
	"github.com/polisai/polis-matrix/pkg/matrix"
	"github.com/polisai/polis-matrix/pkg/metrics"
	"github.com/polisai/polis-matrix/pkg/telemetry"
)

// Service is the remote side of a run. *remote.Client implements it.
type Service interface {
	Init(ctx context.Context, size int) error
	Validate(ctx context.Context, d digest.Digest) (domain.Passphrase, error)
}

// DatasetFetcher retrieves a complete dataset. *fetcher.Fetcher implements it.
type DatasetFetcher interface {
	FetchDataset(ctx context.Context, dataset domain.Dataset, size int) (*matrix.Matrix, error)
}

// Config sets the shape of a run.
type Config struct {
	Size int
	// ConcurrentDatasets fetches B while A is being fetched.
	ConcurrentDatasets bool
	// MultiplyWorkers defaults to GOMAXPROCS when zero.
	MultiplyWorkers int
}

// Options carries optional collaborators.
type Options struct {
	// Timeouts bounds the whole run. Nil means no run deadline.
	Timeouts *governance.TimeoutManager
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	// OnTransition observes every state change, including the move to a
	// terminal stage.
	OnTransition func(from, to Stage)
	// Multiply and Reduce replace the default implementations, mainly for tests.
	Multiply func(ctx context.Context, a, b *matrix.Matrix, workers int) (*matrix.Matrix, error)
	Reduce   func(m *matrix.Matrix) digest.Digest
}

// Result is the outcome of a successful run.
type Result struct {
	RunID      string
	Passphrase domain.Passphrase
	Digest     digest.Digest
	Stages     []StageRecord
}

// ComputeDuration is the time spent initialising, fetching and multiplying.
func (r *Result) ComputeDuration() time.Duration {
	var total time.Duration
	for _, s := range r.Stages {
		switch s.Stage {
		case StageInit, StageFetchA, StageFetchB, StageMultiply:
			total += s.Duration
		}
	}
	return total
}

// Pipeline runs the fetch, multiply, reduce and validate sequence.
type Pipeline struct {
	cfg     Config
	service Service
	fetcher DatasetFetcher
	opts    Options
	logger  *slog.Logger
}

// New wires a pipeline.
func New(cfg Config, service Service, fetcher DatasetFetcher, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Multiply == nil {
		opts.Multiply = matrix.Multiply
	}
	if opts.Reduce == nil {
		opts.Reduce = digest.Reduce
	}
	return &Pipeline{cfg: cfg, service: service, fetcher: fetcher, opts: opts, logger: logger}
}

// Run executes one run and returns its result, or a *StageError naming the
// stage that failed.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	r := &run{p: p, id: uuid.NewString()}
	r.logger = p.logger.With("run_id", r.id)

	if p.opts.Timeouts != nil {
		var cancel context.CancelFunc
		ctx, cancel = p.opts.Timeouts.WithRunTimeout(ctx)
		defer cancel()
	}

	ctx, span := telemetry.StartStage(ctx, r.id, "run", attribute.Int("matrix.size", p.cfg.Size))
	defer span.End()

	r.logger.Info("Run started", "size", p.cfg.Size, "concurrent_datasets", p.cfg.ConcurrentDatasets)

	res, err := r.execute(ctx)
	if err != nil {
		telemetry.RecordStageError(span, err)
		p.opts.Metrics.RecordRun(string(r.failedAt))
		r.logger.Error("Run failed", "stage", r.failedAt, "error", err)
		return nil, err
	}

	p.opts.Metrics.RecordRun(string(StageDone))
	r.logger.Info("Run complete", "digest", res.Digest.Hex(), "compute_duration", res.ComputeDuration())
	return res, nil
}

type run struct {
	p        *Pipeline
	id       string
	state    Stage
	failedAt Stage
	records  []StageRecord
	logger   *slog.Logger
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	size := r.p.cfg.Size

	if err := r.step(ctx, StageInit, func(ctx context.Context) error {
		return r.p.service.Init(ctx, size)
	}); err != nil {
		return nil, err
	}

	a, b, err := r.fetchDatasets(ctx)
	if err != nil {
		return nil, err
	}

	var product *matrix.Matrix
	if err := r.step(ctx, StageMultiply, func(ctx context.Context) error {
		var err error
		product, err = r.p.opts.Multiply(ctx, a, b, r.p.cfg.MultiplyWorkers)
		return err
	}); err != nil {
		return nil, err
	}

	var d digest.Digest
	if err := r.step(ctx, StageReduce, func(context.Context) error {
		d = r.p.opts.Reduce(product)
		return nil
	}); err != nil {
		return nil, err
	}

	var passphrase domain.Passphrase
	if err := r.step(ctx, StageValidate, func(ctx context.Context) error {
		var err error
		passphrase, err = r.p.service.Validate(ctx, d)
		return err
	}); err != nil {
		return nil, err
	}

	r.transition(StageDone)
	return &Result{RunID: r.id, Passphrase: passphrase, Digest: d, Stages: r.records}, nil
}

func (r *run) fetchDatasets(ctx context.Context) (*matrix.Matrix, *matrix.Matrix, error) {
	size := r.p.cfg.Size

	if !r.p.cfg.ConcurrentDatasets {
		var a, b *matrix.Matrix
		if err := r.step(ctx, StageFetchA, func(ctx context.Context) error {
			var err error
			a, err = r.p.fetcher.FetchDataset(ctx, domain.DatasetA, size)
			return err
		}); err != nil {
			return nil, nil, err
		}
		if err := r.step(ctx, StageFetchB, func(ctx context.Context) error {
			var err error
			b, err = r.p.fetcher.FetchDataset(ctx, domain.DatasetB, size)
			return err
		}); err != nil {
			return nil, nil, err
		}
		return a, b, nil
	}

	var pf *prefetch
	if err := r.step(ctx, StageFetchA, func(ctx context.Context) error {
		pf = r.prefetchBoth(ctx)
		if pf.failedFirst == domain.DatasetB {
			// B failed first; A only stopped because of it.
			return nil
		}
		return pf.errA
	}); err != nil {
		return nil, nil, err
	}
	if err := r.step(ctx, StageFetchB, func(context.Context) error {
		return pf.errB
	}); err != nil {
		return nil, nil, err
	}
	return pf.a, pf.b, nil
}

type prefetch struct {
	a, b       *matrix.Matrix
	errA, errB error

	once        sync.Once
	failedFirst domain.Dataset
}

func (pf *prefetch) fail(dataset domain.Dataset) {
	pf.once.Do(func() { pf.failedFirst = dataset })
}

// prefetchBoth fetches A and B together. A failure in either cancels the other.
func (r *run) prefetchBoth(ctx context.Context) *prefetch {
	size := r.p.cfg.Size
	pf := &prefetch{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pf.a, pf.errA = r.p.fetcher.FetchDataset(gctx, domain.DatasetA, size)
		if pf.errA != nil {
			pf.fail(domain.DatasetA)
		}
		return pf.errA
	})
	g.Go(func() error {
		pf.b, pf.errB = r.p.fetcher.FetchDataset(gctx, domain.DatasetB, size)
		if pf.errB != nil {
			pf.fail(domain.DatasetB)
		}
		return pf.errB
	})
	_ = g.Wait()
	return pf
}

// step runs fn as stage. On error the run moves to StageFailed and the error
// comes back as a *StageError.
func (r *run) step(ctx context.Context, stage Stage, fn func(context.Context) error) error {
	r.transition(stage)

	ctx, span := telemetry.StartStage(ctx, r.id, string(stage), attribute.Int("matrix.size", r.p.cfg.Size))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	if err == nil {
		// A cancelled context must not let a run drift on to the next stage.
		err = ctx.Err()
	}
	duration := time.Since(start)

	r.records = append(r.records, StageRecord{Stage: stage, Duration: duration, Err: err})

	outcome := "success"
	if err != nil {
		outcome = "failed"
	}
	telemetry.RecordStageMetrics(ctx, telemetry.StageMetrics{
		RunID:     r.id,
		Stage:     string(stage),
		Outcome:   outcome,
		ErrorKind: telemetry.ErrorKind(err),
		Size:      r.p.cfg.Size,
		Duration:  duration,
	})

	if err != nil {
		telemetry.RecordStageError(span, err)
		r.failedAt = stage
		r.transition(StageFailed)
		return &StageError{RunID: r.id, Stage: stage, Err: err}
	}

	r.logger.Info("Stage complete", "stage", stage, "duration", duration)
	return nil
}

func (r *run) transition(to Stage) {
	from := r.state
	r.state = to
	if r.p.opts.OnTransition != nil {
		r.p.opts.OnTransition(from, to)
	}
}
