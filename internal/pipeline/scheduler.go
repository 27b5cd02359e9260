// Package pipeline drives the sanitization pass: a single leasing loop
// feeding a bounded pool of workers.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/agentic-research/commentprep/internal/queue"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxInFlight caps leased batches that are queued or being processed.
const DefaultMaxInFlight = 20

// Leaser hands out claimed batches. It is only ever called from the
// scheduler's own goroutine.
type Leaser interface {
	LeaseNext(ctx context.Context) (queue.Batch, bool, error)
}

// Processor handles one batch.
type Processor interface {
	Process(ctx context.Context, b queue.Batch) error
}

// Options configure a Scheduler.
type Options struct {
	Workers     int
	MaxInFlight int
	Logger      *slog.Logger
}

// Summary reports a finished pass.
type Summary struct {
	RunID    string
	Batches  int64
	Rows     int64
	Duration time.Duration
}

// Scheduler leases batches until the queue is exhausted, never holding more
// than MaxInFlight unfinished batches.
type Scheduler struct {
	leaser Leaser
	proc   Processor
	opts   Options
	logger *slog.Logger

	inFlight atomic.Int64
	peak     atomic.Int64
}

func NewScheduler(l Leaser, p Processor, opts Options) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = DefaultMaxInFlight
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{leaser: l, proc: p, opts: opts, logger: logger}
}

// PeakInFlight is the highest number of unfinished batches seen.
func (s *Scheduler) PeakInFlight() int64 { return s.peak.Load() }

// Run drives the queue to exhaustion and waits for every leased batch to be
// written. The first lease or worker error stops the loop and is returned
// once in-flight work has drained.
func (s *Scheduler) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	sum := Summary{RunID: uuid.NewString()}
	logger := s.logger.With("run", sum.RunID)
	logger.Info("sanitize started", "workers", s.opts.Workers, "max_in_flight", s.opts.MaxInFlight)

	g, gctx := errgroup.WithContext(ctx)
	slots := semaphore.NewWeighted(int64(s.opts.MaxInFlight))
	batches := make(chan queue.Batch, s.opts.MaxInFlight)

	var rows, done atomic.Int64
	for range s.opts.Workers {
		g.Go(func() error {
			for b := range batches {
				err := s.proc.Process(gctx, b)
				s.inFlight.Add(-1)
				slots.Release(1)
				if err != nil {
					return err
				}
				rows.Add(int64(len(b.Rows)))
				done.Add(1)
				logger.Debug("batch written", "batch", b.Seq, "rows", len(b.Rows))
			}
			return nil
		})
	}

	leaseErr := s.lease(gctx, logger, slots, batches)
	close(batches)
	err := g.Wait()
	if err == nil {
		err = leaseErr
	}

	sum.Batches, sum.Rows, sum.Duration = done.Load(), rows.Load(), time.Since(start)
	if err != nil {
		return sum, fmt.Errorf("sanitize: %w", err)
	}
	logger.Info("sanitize complete", "batches", sum.Batches, "rows", sum.Rows,
		"peak_in_flight", s.PeakInFlight(), "elapsed", sum.Duration.Round(time.Millisecond))
	return sum, nil
}

// lease is the single sequential leasing loop. A slot is taken before every
// lease and given back by the worker that finishes the batch.
func (s *Scheduler) lease(ctx context.Context, logger *slog.Logger, slots *semaphore.Weighted, out chan<- queue.Batch) error {
	for {
		if !slots.TryAcquire(1) {
			logger.Info("in-flight limit reached, waiting", "in_flight", s.inFlight.Load())
			if err := slots.Acquire(ctx, 1); err != nil {
				return err
			}
		}

		b, exhausted, err := s.leaser.LeaseNext(ctx)
		if err != nil {
			slots.Release(1)
			return err
		}
		if len(b.Rows) == 0 {
			slots.Release(1)
		} else {
			n := s.inFlight.Add(1)
			for {
				p := s.peak.Load()
				if n <= p || s.peak.CompareAndSwap(p, n) {
					break
				}
			}
			logger.Debug("batch leased", "batch", b.Seq, "rows", len(b.Rows), "in_flight", n)
			select {
			case out <- b:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if exhausted {
			return nil
		}
	}
}
