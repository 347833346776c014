// Package fetcher retrieves a whole dataset from the numbers service by
// issuing one request per row concurrently and assembling the answers by row
// index.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/polisai/polis-matrix/pkg/domain"
	"github.com/polisai/polis-matrix/pkg/matrix"
	"github.com/polisai/polis-matrix/pkg/metrics"
)

// Rejection reasons reported to metrics.
const (
	reasonFailure = "failure"
	reasonLength  = "length"
)

// RowSource fetches a single decoded row. *remote.Client implements it.
type RowSource interface {
	FetchRow(ctx context.Context, dataset domain.Dataset, row int) (domain.RowResponse, error)
}

// Options tunes a Fetcher.
type Options struct {
	// Concurrency caps in-flight row requests; zero or less fans out one
	// request per row at once.
	Concurrency int
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Fetcher turns row fetches into complete matrices.
type Fetcher struct {
	source      RowSource
	concurrency int
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// New creates a Fetcher reading from source.
func New(source RowSource, opts Options) *Fetcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		source:      source,
		concurrency: opts.Concurrency,
		metrics:     opts.Metrics,
		logger:      logger,
	}
}

// FetchDataset fetches rows [0, size) of dataset and returns the assembled
// matrix. The first failing row cancels the requests still in flight and is
// returned; no partial matrix is ever returned.
func (f *Fetcher) FetchDataset(ctx context.Context, dataset domain.Dataset, size int) (*matrix.Matrix, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: dataset size %d must be positive", domain.ErrConfigInvalid, size)
	}

	start := time.Now()
	asm := matrix.NewAssembler(size)

	g, gctx := errgroup.WithContext(ctx)
	if f.concurrency > 0 {
		g.SetLimit(f.concurrency)
	}

	for i := 0; i < size; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return f.fetchRow(gctx, asm, dataset, i)
		})
	}

	if err := g.Wait(); err != nil {
		f.logger.Debug("Dataset fetch aborted", "dataset", dataset, "size", size, "error", err)
		return nil, fmt.Errorf("fetch dataset %s: %w", dataset, err)
	}
	// The caller's context may have ended before any goroutine noticed.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch dataset %s: %w", dataset, err)
	}

	m, err := asm.Matrix()
	if err != nil {
		return nil, fmt.Errorf("fetch dataset %s: %w", dataset, err)
	}

	f.logger.Debug("Dataset fetched", "dataset", dataset, "size", size, "duration", time.Since(start))
	return m, nil
}

func (f *Fetcher) fetchRow(ctx context.Context, asm *matrix.Assembler, dataset domain.Dataset, row int) error {
	resp, err := f.source.FetchRow(ctx, dataset, row)
	if err != nil {
		return err
	}
	if err := CheckRow(dataset, row, asm.Size(), resp); err != nil {
		f.metrics.RecordRowRejected(string(dataset), rejectionReason(resp))
		return err
	}
	if err := asm.Set(row, resp.Value); err != nil {
		return err
	}
	f.metrics.RecordRowFetched(string(dataset))
	return nil
}

// CheckRow enforces the row shape: the service must report success and the
// row must hold exactly size values.
func CheckRow(dataset domain.Dataset, row, size int, resp domain.RowResponse) error {
	if !resp.Success {
		reason := "service reported failure"
		if cause := resp.CauseText(); cause != "" {
			reason += ": " + cause
		}
		return &domain.MalformedRowError{Dataset: dataset, Row: row, Reason: reason}
	}
	if len(resp.Value) != size {
		return &domain.MalformedRowError{
			Dataset: dataset,
			Row:     row,
			Reason:  fmt.Sprintf("row has %d values, want %d", len(resp.Value), size),
		}
	}
	return nil
}

func rejectionReason(resp domain.RowResponse) string {
	if !resp.Success {
		return reasonFailure
	}
	return reasonLength
}
