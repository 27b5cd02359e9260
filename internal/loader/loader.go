// Package loader bulk-loads directories of NDJSON comment dumps into the
// store. Files are sharded across a fixed pool of goroutines, one file per
// goroutine at a time, and written in large batches.
package loader

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/agentic-research/commentprep/internal/record"
	"github.com/agentic-research/commentprep/internal/retry"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// DefaultBatchSize is the number of records per insert transaction.
	DefaultBatchSize = 100_000
	// ctxCheckLines is how often a file read looks for cancellation.
	ctxCheckLines = 1024
)

// Inserter writes one batch of records transactionally.
type Inserter interface {
	InsertBatch(ctx context.Context, records []record.Record) error
}

// Indexer builds secondary indexes once the load is complete.
type Indexer interface {
	BuildAll(ctx context.Context) error
}

// Options configure a Loader.
type Options struct {
	BatchSize   int
	Concurrency int
	// SkipMalformed logs and drops undecodable lines instead of failing the
	// file.
	SkipMalformed bool
	Retry         retry.Policy
	Logger        *slog.Logger
}

// Summary reports what a load wrote.
type Summary struct {
	Files    int
	Records  int64
	Batches  int64
	Skipped  int64
	Duration time.Duration
}

// Loader drives a bulk load.
type Loader struct {
	store   Inserter
	indexer Indexer
	opts    Options
	logger  *slog.Logger

	records atomic.Int64
	batches atomic.Int64
	skipped atomic.Int64
	// progress throttles per-flush logging across all workers.
	progress rate.Sometimes
}

// New returns a Loader. indexer may be nil to skip index creation.
func New(store Inserter, indexer Indexer, opts Options) *Loader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		store:    store,
		indexer:  indexer,
		opts:     opts,
		logger:   logger,
		progress: rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

// LoadFolder loads every regular file directly inside dir, then builds the
// indexes. The first failing file cancels the others.
func (l *Loader) LoadFolder(ctx context.Context, dir string) (Summary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Summary{}, fmt.Errorf("read input folder: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return l.LoadFiles(ctx, paths)
}

// LoadFiles loads the given files concurrently, then builds the indexes.
func (l *Loader) LoadFiles(ctx context.Context, paths []string) (Summary, error) {
	start := time.Now()
	l.logger.Info("loading files", "files", len(paths), "workers", l.opts.Concurrency, "batch_size", l.opts.BatchSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Concurrency)
	for _, p := range paths {
		g.Go(func() error {
			// Files queued behind a failure are never opened.
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := l.loadFile(gctx, p); err != nil {
				return fmt.Errorf("load %s: %w", filepath.Base(p), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return l.summary(len(paths), start), err
	}

	if l.indexer != nil {
		if err := l.indexer.BuildAll(ctx); err != nil {
			return l.summary(len(paths), start), err
		}
	}

	sum := l.summary(len(paths), start)
	l.logger.Info("load complete", "files", sum.Files, "records", sum.Records, "batches", sum.Batches,
		"skipped", sum.Skipped, "elapsed", sum.Duration.Round(time.Millisecond))
	return sum, nil
}

func (l *Loader) summary(files int, start time.Time) Summary {
	return Summary{
		Files:    files,
		Records:  l.records.Load(),
		Batches:  l.batches.Load(),
		Skipped:  l.skipped.Load(),
		Duration: time.Since(start),
	}
}

// loadFile streams one file line by line; only the current batch is held in
// memory.
func (l *Loader) loadFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }() // read-only

	dec := record.NewDecoder()
	batch := make([]record.Record, 0, l.opts.BatchSize)
	r := bufio.NewReaderSize(f, 1<<20)
	lineNo := 0
	for {
		line, readErr := r.ReadBytes('\n')
		if len(line) > 0 {
			lineNo++
			if lineNo%ctxCheckLines == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			line = bytes.TrimSpace(line)
			if len(line) > 0 {
				rec, err := dec.Decode(line)
				switch {
				case err == nil:
					batch = append(batch, rec)
				case l.opts.SkipMalformed:
					l.skipped.Add(1)
					l.logger.Warn("skipping malformed line", "file", path, "line", lineNo, "err", err)
				default:
					return &record.ParseError{Path: path, Line: lineNo, Err: err}
				}
			}
		}
		if len(batch) >= l.opts.BatchSize {
			if err := l.flush(ctx, path, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return readErr
		}
	}
	return l.flush(ctx, path, batch)
}

func (l *Loader) flush(ctx context.Context, path string, batch []record.Record) error {
	if len(batch) == 0 {
		return nil
	}
	err := l.opts.Retry.Do(ctx, "insert batch", func(ctx context.Context) error {
		return l.store.InsertBatch(ctx, batch)
	})
	if err != nil {
		return err
	}
	total := l.records.Add(int64(len(batch)))
	l.batches.Add(1)
	l.progress.Do(func() {
		l.logger.Info("batch committed", "file", filepath.Base(path), "rows", len(batch), "total", total)
	})
	return nil
}
